package tokenizer

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/layer-3/eden/core"
	"github.com/layer-3/eden/ports"
)

// DefaultSessionLifetime is how long an issued session token stays valid.
const DefaultSessionLifetime = 7 * 24 * time.Hour

const tokenIDBytes = 16

// HMACTokenizer implements the Tokenizer interface with HMAC-SHA256 signed
// tokens of the form subject:expiresAtMillis:tokenID:signatureHex.
type HMACTokenizer struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewHMACTokenizer creates a new tokenizer. A non-positive lifetime falls
// back to DefaultSessionLifetime.
func NewHMACTokenizer(secret []byte, lifetime time.Duration) *HMACTokenizer {
	if lifetime <= 0 {
		lifetime = DefaultSessionLifetime
	}
	return &HMACTokenizer{
		secret:   secret,
		lifetime: lifetime,
		now:      time.Now,
	}
}

var _ ports.Tokenizer = (*HMACTokenizer)(nil)

// Issue creates a session token for subjectID.
func (t *HMACTokenizer) Issue(subjectID string) (string, core.Session, error) {
	if subjectID == "" || strings.Contains(subjectID, ":") {
		return "", core.Session{}, fmt.Errorf("invalid subject id %q", subjectID)
	}

	idBytes := make([]byte, tokenIDBytes)
	if _, err := rand.Read(idBytes); err != nil {
		return "", core.Session{}, fmt.Errorf("failed to generate token id: %w", err)
	}

	session := core.Session{
		SubjectID: subjectID,
		ExpiresAt: t.now().Add(t.lifetime).Truncate(time.Millisecond),
		TokenID:   hex.EncodeToString(idBytes),
	}

	payload := payloadOf(session.SubjectID, strconv.FormatInt(session.ExpiresAt.UnixMilli(), 10), session.TokenID)
	return payload + ":" + hex.EncodeToString(t.sign(payload)), session, nil
}

// Verify checks the token structure, expiry and signature, in that order.
func (t *HMACTokenizer) Verify(token string) (core.Session, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 4 {
		return core.Session{}, core.ErrTokenMalformed
	}
	subjectID, expiresAtStr, tokenID, signature := parts[0], parts[1], parts[2], parts[3]
	if subjectID == "" || expiresAtStr == "" || tokenID == "" || signature == "" {
		return core.Session{}, core.ErrTokenMalformed
	}

	expiresAtMillis, err := strconv.ParseInt(expiresAtStr, 10, 64)
	if err != nil {
		return core.Session{}, core.ErrTokenMalformed
	}
	expiresAt := time.UnixMilli(expiresAtMillis)
	if t.now().After(expiresAt) {
		return core.Session{}, core.ErrTokenExpired
	}

	// The hex text is compared, not the decoded bytes, so a case change in
	// the signature does not verify.
	want := hex.EncodeToString(t.sign(payloadOf(subjectID, expiresAtStr, tokenID)))
	if !hmac.Equal([]byte(signature), []byte(want)) {
		return core.Session{}, core.ErrTokenBadSignature
	}

	return core.Session{
		SubjectID: subjectID,
		ExpiresAt: expiresAt,
		TokenID:   tokenID,
	}, nil
}

func (t *HMACTokenizer) sign(payload string) []byte {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

func payloadOf(subjectID, expiresAt, tokenID string) string {
	return subjectID + ":" + expiresAt + ":" + tokenID
}
