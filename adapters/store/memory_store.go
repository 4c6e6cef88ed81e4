package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/eden/core"
	"github.com/layer-3/eden/ports"
)

// MemoryChallengeStore is an in-memory implementation of the ChallengeStore interface
type MemoryChallengeStore struct {
	challenges map[string]core.Challenge
	mu         sync.Mutex
}

// NewMemoryChallengeStore creates a new in-memory challenge store
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[string]core.Challenge),
	}
}

var _ ports.ChallengeStore = (*MemoryChallengeStore)(nil)

// Create stores a challenge under its nonce
func (s *MemoryChallengeStore) Create(ctx context.Context, challenge core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[challenge.Nonce] = challenge
	return nil
}

// Consume removes and returns the challenge for nonce
func (s *MemoryChallengeStore) Consume(ctx context.Context, nonce string) (core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, exists := s.challenges[nonce]
	if !exists {
		return core.Challenge{}, core.ErrChallengeNotFound
	}
	delete(s.challenges, nonce)

	return challenge, nil
}

// SweepExpired drops every challenge past its deadline
func (s *MemoryChallengeStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for nonce, challenge := range s.challenges {
		if challenge.Expired(now) {
			delete(s.challenges, nonce)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of pending challenges
func (s *MemoryChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.challenges)
}

// MemoryIdentityStore is an in-memory implementation of the IdentityStore interface
type MemoryIdentityStore struct {
	identities map[string]core.Identity
	mu         sync.RWMutex
}

// NewMemoryIdentityStore creates a new in-memory identity store
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		identities: make(map[string]core.Identity),
	}
}

var _ ports.IdentityStore = (*MemoryIdentityStore)(nil)

// Upsert creates the identity or advances its LastVerifiedAt
func (s *MemoryIdentityStore) Upsert(ctx context.Context, identity core.Identity, at time.Time) (core.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.identities[identity.ID]
	if !exists {
		identity.CreatedAt = at
		identity.LastVerifiedAt = at
		s.identities[identity.ID] = identity
		return identity, nil
	}

	if !at.After(existing.LastVerifiedAt) {
		at = existing.LastVerifiedAt.Add(time.Nanosecond)
	}
	existing.LastVerifiedAt = at
	s.identities[identity.ID] = existing

	return existing, nil
}

// Get returns the identity with the given ID
func (s *MemoryIdentityStore) Get(ctx context.Context, id string) (core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, exists := s.identities[id]
	if !exists {
		return core.Identity{}, core.ErrIdentityNotFound
	}
	return identity, nil
}
