package ports

import (
	"context"

	"github.com/layer-3/eden/core"
)

// BookingEvent names a booking lifecycle change.
type BookingEvent string

const (
	BookingCreated      BookingEvent = "booking.created"
	BookingCommitted    BookingEvent = "booking.committed"
	BookingCommitFailed BookingEvent = "booking.commit_failed"
	BookingCancelled    BookingEvent = "booking.cancelled"
	BookingCancelFailed BookingEvent = "booking.cancel_failed"
	BookingCompleted    BookingEvent = "booking.completed"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishSignIn(ctx context.Context, identity core.Identity) error
	PublishBooking(ctx context.Context, event BookingEvent, booking core.Booking, cause error) error
}
