package core

import "time"

// Challenge is a pending sign-in challenge bound to a single address.
type Challenge struct {
	Nonce     string    // 128-bit random hex, single use
	Address   string    // Normalized (lower-cased) ethereum address
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge stops being accepted
}

// Expired reports whether the challenge is past its deadline at t.
func (c Challenge) Expired(t time.Time) bool {
	return t.After(c.ExpiresAt)
}

// Identity is the pseudonymous account behind a verified address.
type Identity struct {
	ID             string    // sha256(address ∥ salt), truncated
	Address        string    // Normalized ethereum address
	CreatedAt      time.Time // First successful verification
	LastVerifiedAt time.Time // Most recent successful verification
}

// Session is the decoded content of a bearer session token.
type Session struct {
	SubjectID string    // Identity ID
	ExpiresAt time.Time // Hard expiry, no server-side revocation
	TokenID   string    // Random per-token id
}
