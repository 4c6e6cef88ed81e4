package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/layer-3/eden/core"
	"github.com/layer-3/eden/ports"
)

const (
	TopicAuth     = "eden.auth"
	TopicBookings = "eden.bookings"

	EventSignedIn = "auth.signed_in"
)

// SignInEvent is published after a successful wallet sign-in. It carries the
// pseudonymous id only.
type SignInEvent struct {
	Type       string    `json:"type"`
	IdentityID string    `json:"identity_id"`
	VerifiedAt time.Time `json:"verified_at"`
}

// BookingEvent describes a booking lifecycle change.
type BookingEvent struct {
	Type            string    `json:"type"`
	BookingID       string    `json:"booking_id"`
	ProviderAddress string    `json:"provider_address"`
	ClientAddress   string    `json:"client_address,omitempty"`
	Status          string    `json:"status"`
	CommitmentHash  string    `json:"commitment_hash"`
	TxHash          string    `json:"tx_hash,omitempty"`
	Error           string    `json:"error,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	prefix    string
}

// NewWatermillPublisher creates a new Watermill publisher. Topics are
// prefixed with prefix when it is not empty.
func NewWatermillPublisher(publisher message.Publisher, prefix string) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		prefix:    prefix,
	}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// PublishSignIn publishes a sign-in event
func (p *WatermillPublisher) PublishSignIn(ctx context.Context, identity core.Identity) error {
	return p.publish(ctx, TopicAuth, SignInEvent{
		Type:       EventSignedIn,
		IdentityID: identity.ID,
		VerifiedAt: identity.LastVerifiedAt,
	})
}

// PublishBooking publishes a booking lifecycle event. cause is recorded for
// the *_failed events.
func (p *WatermillPublisher) PublishBooking(ctx context.Context, event ports.BookingEvent, booking core.Booking, cause error) error {
	e := BookingEvent{
		Type:            string(event),
		BookingID:       booking.ID,
		ProviderAddress: booking.ProviderAddress,
		ClientAddress:   booking.ClientAddress,
		Status:          string(booking.Status),
		CommitmentHash:  booking.CommitmentHash,
		OccurredAt:      booking.UpdatedAt,
	}
	switch event {
	case ports.BookingCommitted:
		e.TxHash = booking.CommitTx
	case ports.BookingCancelled:
		e.TxHash = booking.CancelTx
	}
	if cause != nil {
		e.Error = cause.Error()
	}

	return p.publish(ctx, TopicBookings, e)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.prefix+topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Discard drops every event. It is used when publishing is disabled.
type Discard struct{}

var _ ports.EventPublisher = Discard{}

func (Discard) PublishSignIn(context.Context, core.Identity) error { return nil }

func (Discard) PublishBooking(context.Context, ports.BookingEvent, core.Booking, error) error {
	return nil
}
