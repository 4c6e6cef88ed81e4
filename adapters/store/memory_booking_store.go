package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/layer-3/eden/core"
	"github.com/layer-3/eden/ports"
)

// MemoryBookingStore keeps bookings in memory with provider and client indexes.
type MemoryBookingStore struct {
	bookings   map[string]core.Booking
	byProvider map[string][]string
	byClient   map[string][]string
	mu         sync.RWMutex
}

// NewMemoryBookingStore creates an empty booking store.
func NewMemoryBookingStore() *MemoryBookingStore {
	return &MemoryBookingStore{
		bookings:   make(map[string]core.Booking),
		byProvider: make(map[string][]string),
		byClient:   make(map[string][]string),
	}
}

var _ ports.BookingStore = (*MemoryBookingStore)(nil)

func (s *MemoryBookingStore) Create(ctx context.Context, booking core.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bookings[booking.ID]; exists {
		return fmt.Errorf("booking %s already exists", booking.ID)
	}

	s.bookings[booking.ID] = booking.Clone()
	provider := strings.ToLower(booking.ProviderAddress)
	s.byProvider[provider] = append(s.byProvider[provider], booking.ID)
	if booking.ClientAddress != "" {
		client := strings.ToLower(booking.ClientAddress)
		s.byClient[client] = append(s.byClient[client], booking.ID)
	}
	return nil
}

func (s *MemoryBookingStore) Get(ctx context.Context, id string) (core.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	booking, exists := s.bookings[id]
	if !exists {
		return core.Booking{}, core.ErrBookingNotFound
	}
	return booking.Clone(), nil
}

// Transition only touches status, transaction references and UpdatedAt, so
// the hashed fields of a booking can never change after Create.
func (s *MemoryBookingStore) Transition(ctx context.Context, id string, t core.Transition) (core.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	booking, exists := s.bookings[id]
	if !exists {
		return core.Booking{}, core.ErrBookingNotFound
	}
	if booking.Status != t.From {
		return core.Booking{}, fmt.Errorf("%w: expected %s, found %s", core.ErrStatusConflict, t.From, booking.Status)
	}

	booking = t.Apply(booking)
	s.bookings[id] = booking
	return booking.Clone(), nil
}

func (s *MemoryBookingStore) ListByProvider(ctx context.Context, providerAddress string) ([]core.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(s.byProvider[strings.ToLower(providerAddress)]), nil
}

func (s *MemoryBookingStore) ListByClient(ctx context.Context, clientAddress string) ([]core.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(s.byClient[strings.ToLower(clientAddress)]), nil
}

// collect must be called with the lock held. Results are ordered by start time.
func (s *MemoryBookingStore) collect(ids []string) []core.Booking {
	out := make([]core.Booking, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.bookings[id].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}
