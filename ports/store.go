package ports

import (
	"context"
	"time"

	"github.com/layer-3/eden/core"
)

// ChallengeStore holds pending sign-in challenges keyed by nonce.
type ChallengeStore interface {
	// Create persists a new challenge. Nonces are unique by construction.
	Create(ctx context.Context, challenge core.Challenge) error
	// Consume atomically removes and returns the challenge for nonce. At most
	// one concurrent caller receives it; others get core.ErrChallengeNotFound.
	// Expired challenges may still be returned so the caller can report them.
	Consume(ctx context.Context, nonce string) (core.Challenge, error)
	// SweepExpired deletes every challenge past its deadline at now.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// IdentityStore persists pseudonymous identities.
type IdentityStore interface {
	// Upsert creates the identity if its ID is unknown, otherwise advances
	// LastVerifiedAt to at (or just past the stored value if at is not later).
	// It is atomic per ID and returns the stored identity.
	Upsert(ctx context.Context, identity core.Identity, at time.Time) (core.Identity, error)
	Get(ctx context.Context, id string) (core.Identity, error)
}

// BookingStore persists booking records.
type BookingStore interface {
	Create(ctx context.Context, booking core.Booking) error
	Get(ctx context.Context, id string) (core.Booking, error)
	// Transition applies t only if the stored status equals t.From,
	// otherwise it returns core.ErrStatusConflict.
	Transition(ctx context.Context, id string, t core.Transition) (core.Booking, error)
	ListByProvider(ctx context.Context, providerAddress string) ([]core.Booking, error)
	ListByClient(ctx context.Context, clientAddress string) ([]core.Booking, error)
}
