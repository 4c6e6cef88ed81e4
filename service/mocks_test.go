package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/layer-3/eden/core"
	"github.com/layer-3/eden/ports"
)

type mockLedger struct {
	mock.Mock
}

var _ ports.Ledger = (*mockLedger)(nil)

func (m *mockLedger) IsTimeSlotAvailable(ctx context.Context, provider string, start, end time.Time) (bool, error) {
	args := m.Called(ctx, provider, start, end)
	return args.Bool(0), args.Error(1)
}

func (m *mockLedger) Commit(ctx context.Context, provider string, start, end time.Time, commitmentHash string) (string, error) {
	args := m.Called(ctx, provider, start, end, commitmentHash)
	return args.String(0), args.Error(1)
}

func (m *mockLedger) Cancel(ctx context.Context, provider string, start, end time.Time, commitmentHash string) (string, error) {
	args := m.Called(ctx, provider, start, end, commitmentHash)
	return args.String(0), args.Error(1)
}

func (m *mockLedger) HasCommitment(ctx context.Context, provider string, commitmentHash string) (bool, error) {
	args := m.Called(ctx, provider, commitmentHash)
	return args.Bool(0), args.Error(1)
}

// recordingPublisher keeps every published event in memory.
type recordingPublisher struct {
	mu       sync.Mutex
	signIns  []core.Identity
	bookings []ports.BookingEvent
}

var _ ports.EventPublisher = (*recordingPublisher)(nil)

func (p *recordingPublisher) PublishSignIn(ctx context.Context, identity core.Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signIns = append(p.signIns, identity)
	return nil
}

func (p *recordingPublisher) PublishBooking(ctx context.Context, event ports.BookingEvent, booking core.Booking, cause error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bookings = append(p.bookings, event)
	return nil
}

func (p *recordingPublisher) bookingEvents() []ports.BookingEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.BookingEvent(nil), p.bookings...)
}

// waitForCancel blocks a mocked ledger call until its context is done.
func waitForCancel(args mock.Arguments) {
	<-args.Get(0).(context.Context).Done()
}
