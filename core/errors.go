package core

import (
	"errors"
	"fmt"
)

// Error categories. Every specific error below wraps exactly one of them.
var (
	ErrValidation = errors.New("validation failed")
	ErrAuth       = errors.New("unauthorized")
	ErrLedger     = errors.New("ledger failure")
	ErrNotFound   = errors.New("not found")
)

// Validation errors
var (
	ErrMalformedMessage   = fmt.Errorf("%w: malformed sign-in message", ErrValidation)
	ErrInvalidAddress     = fmt.Errorf("%w: invalid ethereum address", ErrValidation)
	ErrMalformedSignature = fmt.Errorf("%w: malformed signature", ErrValidation)
	ErrInvalidTimeRange   = fmt.Errorf("%w: start time must be before end time", ErrValidation)
	ErrPastBooking        = fmt.Errorf("%w: cannot create booking in the past", ErrValidation)
	ErrInvalidHash        = fmt.Errorf("%w: invalid commitment hash", ErrValidation)
	ErrInvalidTransition  = fmt.Errorf("%w: invalid booking status transition", ErrValidation)

	ErrMetadataKeyCollision = fmt.Errorf("%w: metadata keys collide after unicode normalization", ErrValidation)
)

// Authentication errors
var (
	ErrNonceNotFound     = fmt.Errorf("%w: invalid or expired nonce", ErrAuth)
	ErrAddressMismatch   = fmt.Errorf("%w: address mismatch", ErrAuth)
	ErrChallengeExpired  = fmt.Errorf("%w: challenge expired", ErrAuth)
	ErrInvalidSignature  = fmt.Errorf("%w: invalid signature", ErrAuth)
	ErrTokenMalformed    = fmt.Errorf("%w: malformed session token", ErrAuth)
	ErrTokenExpired      = fmt.Errorf("%w: session token has expired", ErrAuth)
	ErrTokenBadSignature = fmt.Errorf("%w: session token signature mismatch", ErrAuth)
)

// Ledger errors
var (
	ErrSlotUnavailable = fmt.Errorf("%w: time slot is not available", ErrLedger)
	ErrLedgerTimeout   = fmt.Errorf("%w: ledger call timed out", ErrLedger)
)

// Lookup errors
var (
	ErrChallengeNotFound = fmt.Errorf("challenge %w", ErrNotFound)
	ErrIdentityNotFound  = fmt.Errorf("identity %w", ErrNotFound)
	ErrBookingNotFound   = fmt.Errorf("booking %w", ErrNotFound)
)

// ErrStatusConflict is returned by a booking store when a compare-and-set
// transition finds a status other than the expected one.
var ErrStatusConflict = errors.New("booking status changed concurrently")
