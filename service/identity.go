package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/layer-3/eden/core"
	"github.com/layer-3/eden/ports"
)

// identityIDLength is the number of hex characters kept from the digest.
const identityIDLength = 32

// IdentityID derives the pseudonymous id of a normalized address.
func IdentityID(address, salt string) string {
	sum := sha256.Sum256([]byte(address + salt))
	return hex.EncodeToString(sum[:])[:identityIDLength]
}

// IdentityResolver maps verified addresses to stable pseudonymous identities.
type IdentityResolver struct {
	store ports.IdentityStore
	salt  string
	now   func() time.Time
}

// NewIdentityResolver creates a resolver deriving ids with salt.
func NewIdentityResolver(store ports.IdentityStore, salt string) *IdentityResolver {
	return &IdentityResolver{
		store: store,
		salt:  salt,
		now:   time.Now,
	}
}

// Resolve returns the identity for address, creating it on first use.
// Repeated calls return the same id with a strictly later LastVerifiedAt.
func (r *IdentityResolver) Resolve(ctx context.Context, address string) (core.Identity, error) {
	normalized, err := core.NormalizeAddress(address)
	if err != nil {
		return core.Identity{}, err
	}

	identity, err := r.store.Upsert(ctx, core.Identity{
		ID:      IdentityID(normalized, r.salt),
		Address: normalized,
	}, r.now().UTC())
	if err != nil {
		return core.Identity{}, fmt.Errorf("failed to upsert identity: %w", err)
	}

	return identity, nil
}

// Get returns a stored identity by id.
func (r *IdentityResolver) Get(ctx context.Context, id string) (core.Identity, error) {
	return r.store.Get(ctx, id)
}
