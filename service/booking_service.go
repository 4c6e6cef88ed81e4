package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/layer-3/eden/commitment"
	"github.com/layer-3/eden/core"
	"github.com/layer-3/eden/ports"
)

// DefaultLedgerTimeout bounds every ledger call made by the booking service.
const DefaultLedgerTimeout = 15 * time.Second

// BookingRequest holds the caller supplied fields of a new booking.
type BookingRequest struct {
	ProviderAddress string
	ClientAddress   string
	StartTime       time.Time
	EndTime         time.Time
	Metadata        core.Metadata
}

// Result reports a commit or cancel. When the ledger step fails the returned
// error wraps core.ErrLedger and Result still describes the stored booking.
type Result struct {
	Success bool
	Booking core.Booking
	TxHash  string
}

// VerifyRequest is a claimed ledger commitment, optionally tied to a booking.
type VerifyRequest struct {
	ProviderAddress string
	CommitmentHash  string
	BookingID       string
}

// VerifyResult reports the ledger and off-chain views of a commitment
// side by side. Drift is set when a booking was named and the two disagree.
type VerifyResult struct {
	OnLedger    bool
	Booking     *core.Booking
	HashMatches bool
	Drift       bool
}

// BookingService persists bookings and anchors their commitment hashes on
// the ledger.
//
// Create keeps the off-chain record when the ledger step fails, leaving it
// pending. Cancel applies the off-chain cancellation even when the ledger
// step fails. In both cases the caller gets Success=false and the ledger
// error.
type BookingService struct {
	store         ports.BookingStore
	ledger        ports.Ledger
	eventPub      ports.EventPublisher
	logger        *zap.Logger
	ledgerTimeout time.Duration
	now           func() time.Time
}

// NewBookingService creates a booking service. A non-positive ledgerTimeout
// falls back to DefaultLedgerTimeout.
func NewBookingService(
	store ports.BookingStore,
	ledger ports.Ledger,
	eventPub ports.EventPublisher,
	logger *zap.Logger,
	ledgerTimeout time.Duration,
) *BookingService {
	if ledgerTimeout <= 0 {
		ledgerTimeout = DefaultLedgerTimeout
	}
	return &BookingService{
		store:         store,
		ledger:        ledger,
		eventPub:      eventPub,
		logger:        logger.Named("booking"),
		ledgerTimeout: ledgerTimeout,
		now:           time.Now,
	}
}

// Create validates req, stores a pending booking and commits its hash.
func (s *BookingService) Create(ctx context.Context, req BookingRequest) (Result, error) {
	provider, err := core.NormalizeAddress(req.ProviderAddress)
	if err != nil {
		return Result{}, fmt.Errorf("provider: %w", err)
	}
	var client string
	if req.ClientAddress != "" {
		if client, err = core.NormalizeAddress(req.ClientAddress); err != nil {
			return Result{}, fmt.Errorf("client: %w", err)
		}
	}

	now := s.now().UTC()
	if !req.StartTime.Before(req.EndTime) {
		return Result{}, core.ErrInvalidTimeRange
	}
	if req.StartTime.Before(now) {
		return Result{}, core.ErrPastBooking
	}
	if err := commitment.ValidateMetadata(req.Metadata); err != nil {
		return Result{}, err
	}

	booking := core.Booking{
		ID:              uuid.NewString(),
		ProviderAddress: provider,
		ClientAddress:   client,
		StartTime:       req.StartTime.UTC(),
		EndTime:         req.EndTime.UTC(),
		Status:          core.BookingPending,
		Metadata:        req.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if booking.Metadata == nil {
		booking.Metadata = core.Metadata{}
	}
	booking.CommitmentHash = commitment.Hash(commitment.FromBooking(booking))

	if err := s.store.Create(ctx, booking); err != nil {
		return Result{}, fmt.Errorf("failed to store booking: %w", err)
	}

	log := s.logger.With(zap.String("booking_id", booking.ID), zap.String("commitment_hash", booking.CommitmentHash))
	log.Info("booking created", zap.String("provider", provider))
	s.publish(ctx, ports.BookingCreated, booking, nil)

	return s.commit(ctx, booking, log)
}

// RetryCommit re-attempts the ledger commit of a pending booking. The stored
// hash is recomputed first and a mismatch is refused.
func (s *BookingService) RetryCommit(ctx context.Context, id string) (Result, error) {
	booking, err := s.store.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if booking.Status != core.BookingPending {
		return Result{Booking: booking}, fmt.Errorf("%w: booking is %s", core.ErrInvalidTransition, booking.Status)
	}
	if !commitment.Verify(commitment.FromBooking(booking), booking.CommitmentHash) {
		return Result{Booking: booking}, fmt.Errorf("%w: stored hash does not match booking", core.ErrInvalidHash)
	}

	log := s.logger.With(zap.String("booking_id", booking.ID), zap.String("commitment_hash", booking.CommitmentHash))
	return s.commit(ctx, booking, log)
}

func (s *BookingService) commit(ctx context.Context, booking core.Booking, log *zap.Logger) (Result, error) {
	var txHash string
	err := s.withLedger(ctx, func(ctx context.Context) (err error) {
		txHash, err = s.ledger.Commit(ctx, booking.ProviderAddress, booking.StartTime, booking.EndTime, booking.CommitmentHash)
		return err
	})
	if err != nil {
		log.Warn("ledger commit failed, booking left pending", zap.Error(err))
		s.publish(ctx, ports.BookingCommitFailed, booking, err)
		return Result{Booking: booking}, err
	}

	committed, err := s.store.Transition(ctx, booking.ID, core.Transition{
		From:   core.BookingPending,
		To:     core.BookingCommitted,
		TxHash: txHash,
		At:     s.now().UTC(),
	})
	if err != nil {
		// The hash is anchored but the record moved on (e.g. a concurrent
		// cancel). Report the stored state.
		log.Error("failed to record commit", zap.String("tx_hash", txHash), zap.Error(err))
		if current, getErr := s.store.Get(ctx, booking.ID); getErr == nil {
			booking = current
		}
		return Result{Booking: booking, TxHash: txHash}, fmt.Errorf("failed to record commit: %w", err)
	}

	log.Info("booking committed", zap.String("tx_hash", txHash))
	s.publish(ctx, ports.BookingCommitted, committed, nil)

	return Result{Success: true, Booking: committed, TxHash: txHash}, nil
}

// Cancel releases the slot on the ledger and cancels the booking off-chain.
// The off-chain cancellation is applied whatever the ledger outcome.
// Cancelling a cancelled booking is a no-op success.
func (s *BookingService) Cancel(ctx context.Context, id string) (Result, error) {
	booking, err := s.store.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if booking.Status == core.BookingCancelled {
		return Result{Success: true, Booking: booking, TxHash: booking.CancelTx}, nil
	}
	if booking.Status.Terminal() {
		return Result{Booking: booking}, fmt.Errorf("%w: booking is %s", core.ErrInvalidTransition, booking.Status)
	}

	log := s.logger.With(zap.String("booking_id", booking.ID), zap.String("commitment_hash", booking.CommitmentHash))

	var txHash string
	ledgerErr := s.withLedger(ctx, func(ctx context.Context) (err error) {
		txHash, err = s.ledger.Cancel(ctx, booking.ProviderAddress, booking.StartTime, booking.EndTime, booking.CommitmentHash)
		return err
	})
	if ledgerErr != nil {
		log.Warn("ledger cancel failed, cancelling off-chain only", zap.Error(ledgerErr))
	}

	cancelled, err := s.markCancelled(ctx, booking, txHash)
	if err != nil {
		log.Error("failed to record cancellation", zap.Error(err))
		return Result{Booking: booking, TxHash: txHash}, fmt.Errorf("failed to record cancellation: %w", err)
	}

	if ledgerErr != nil {
		s.publish(ctx, ports.BookingCancelFailed, cancelled, ledgerErr)
		return Result{Booking: cancelled}, ledgerErr
	}

	log.Info("booking cancelled", zap.String("tx_hash", txHash))
	s.publish(ctx, ports.BookingCancelled, cancelled, nil)

	return Result{Success: true, Booking: cancelled, TxHash: txHash}, nil
}

// markCancelled moves booking to cancelled from whatever live status it holds,
// re-reading once if a concurrent commit changed it.
func (s *BookingService) markCancelled(ctx context.Context, booking core.Booking, txHash string) (core.Booking, error) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var cancelled core.Booking
		cancelled, err = s.store.Transition(ctx, booking.ID, core.Transition{
			From:   booking.Status,
			To:     core.BookingCancelled,
			TxHash: txHash,
			At:     s.now().UTC(),
		})
		if err == nil {
			return cancelled, nil
		}
		if !errors.Is(err, core.ErrStatusConflict) {
			return core.Booking{}, err
		}

		if booking, err = s.store.Get(ctx, booking.ID); err != nil {
			return core.Booking{}, err
		}
		if booking.Status == core.BookingCancelled {
			return booking, nil
		}
		if booking.Status.Terminal() {
			return core.Booking{}, fmt.Errorf("%w: booking is %s", core.ErrInvalidTransition, booking.Status)
		}
	}
	return core.Booking{}, err
}

// Complete marks a committed booking as completed. No ledger call is made.
func (s *BookingService) Complete(ctx context.Context, id string) (core.Booking, error) {
	booking, err := s.store.Get(ctx, id)
	if err != nil {
		return core.Booking{}, err
	}
	if !booking.Status.CanTransitionTo(core.BookingCompleted) {
		return booking, fmt.Errorf("%w: booking is %s", core.ErrInvalidTransition, booking.Status)
	}

	completed, err := s.store.Transition(ctx, id, core.Transition{
		From: booking.Status,
		To:   core.BookingCompleted,
		At:   s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, core.ErrStatusConflict) {
			return booking, fmt.Errorf("%w: %w", core.ErrInvalidTransition, err)
		}
		return booking, fmt.Errorf("failed to record completion: %w", err)
	}

	s.logger.Info("booking completed", zap.String("booking_id", id))
	s.publish(ctx, ports.BookingCompleted, completed, nil)
	return completed, nil
}

// Verify compares a claimed commitment with the ledger and, when a booking id
// is given, with the stored record. Disagreement is reported as drift.
func (s *BookingService) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	provider, err := core.NormalizeAddress(req.ProviderAddress)
	if err != nil {
		return VerifyResult{}, err
	}
	if !commitment.IsValid(req.CommitmentHash) {
		return VerifyResult{}, core.ErrInvalidHash
	}

	var res VerifyResult
	if req.BookingID != "" {
		booking, err := s.store.Get(ctx, req.BookingID)
		switch {
		case errors.Is(err, core.ErrBookingNotFound):
			res.Drift = true
		case err != nil:
			return VerifyResult{}, err
		default:
			res.Booking = &booking
			res.HashMatches = commitment.Verify(commitment.FromBooking(booking), req.CommitmentHash) &&
				strings.EqualFold(booking.CommitmentHash, req.CommitmentHash)
		}
	}

	err = s.withLedger(ctx, func(ctx context.Context) (err error) {
		res.OnLedger, err = s.ledger.HasCommitment(ctx, provider, req.CommitmentHash)
		return err
	})
	if err != nil {
		return res, err
	}

	if res.Booking != nil {
		res.Drift = !res.HashMatches || res.OnLedger != expectOnLedger(res.Booking.Status)
	}
	if res.Drift {
		s.logger.Warn("commitment drift",
			zap.String("booking_id", req.BookingID),
			zap.String("commitment_hash", req.CommitmentHash),
			zap.Bool("on_ledger", res.OnLedger),
			zap.Bool("hash_matches", res.HashMatches),
		)
	}
	return res, nil
}

// expectOnLedger reports whether a booking in status should have a live
// ledger commitment.
func expectOnLedger(status core.BookingStatus) bool {
	return status == core.BookingCommitted || status == core.BookingCompleted
}

// CheckAvailability asks the ledger whether provider is free in [start, end).
func (s *BookingService) CheckAvailability(ctx context.Context, providerAddress string, start, end time.Time) (bool, error) {
	provider, err := core.NormalizeAddress(providerAddress)
	if err != nil {
		return false, err
	}
	if !start.Before(end) {
		return false, core.ErrInvalidTimeRange
	}

	var available bool
	err = s.withLedger(ctx, func(ctx context.Context) (err error) {
		available, err = s.ledger.IsTimeSlotAvailable(ctx, provider, start, end)
		return err
	})
	return available, err
}

func (s *BookingService) Get(ctx context.Context, id string) (core.Booking, error) {
	return s.store.Get(ctx, id)
}

func (s *BookingService) ListByProvider(ctx context.Context, address string) ([]core.Booking, error) {
	normalized, err := core.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return s.store.ListByProvider(ctx, normalized)
}

func (s *BookingService) ListByClient(ctx context.Context, address string) ([]core.Booking, error) {
	normalized, err := core.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return s.store.ListByClient(ctx, normalized)
}

// withLedger runs fn under the ledger timeout. Every failure is returned
// wrapping core.ErrLedger, a deadline hit as core.ErrLedgerTimeout.
func (s *BookingService) withLedger(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()

	err := fn(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrValidation):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", core.ErrLedgerTimeout, err)
	case errors.Is(err, core.ErrLedger):
		return err
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", core.ErrLedgerTimeout, err)
	default:
		return fmt.Errorf("%w: %w", core.ErrLedger, err)
	}
}

func (s *BookingService) publish(ctx context.Context, event ports.BookingEvent, booking core.Booking, cause error) {
	if err := s.eventPub.PublishBooking(ctx, event, booking, cause); err != nil {
		s.logger.Warn("failed to publish booking event", zap.String("event", string(event)), zap.Error(err))
	}
}
