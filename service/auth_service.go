package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/layer-3/eden/core"
	"github.com/layer-3/eden/ports"
	"github.com/layer-3/eden/siwe"
)

// DefaultChallengeTTL is how long a sign-in challenge can be answered.
const DefaultChallengeTTL = 10 * time.Minute

const nonceBytes = 16

// AuthConfig holds the sign-in message settings.
type AuthConfig struct {
	Domain       string // Overrides the request host when set
	Statement    string
	ChainID      int64
	ChallengeTTL time.Duration
}

// AuthService handles authentication business logic
type AuthService struct {
	challenges ports.ChallengeStore
	identities *IdentityResolver
	tokenizer  ports.Tokenizer
	eventPub   ports.EventPublisher
	logger     *zap.Logger

	cfg AuthConfig
	now func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	cfg AuthConfig,
	challenges ports.ChallengeStore,
	identities *IdentityResolver,
	tokenizer ports.Tokenizer,
	eventPub ports.EventPublisher,
	logger *zap.Logger,
) *AuthService {
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = DefaultChallengeTTL
	}
	if cfg.ChainID <= 0 {
		cfg.ChainID = 1
	}
	return &AuthService{
		challenges: challenges,
		identities: identities,
		tokenizer:  tokenizer,
		eventPub:   eventPub,
		logger:     logger.Named("auth"),
		cfg:        cfg,
		now:        time.Now,
	}
}

// ChallengeResult is the message a wallet has to sign.
type ChallengeResult struct {
	Message   string
	Nonce     string
	ExpiresAt time.Time
}

// CreateChallenge generates a new sign-in challenge bound to address.
// domain and origin come from the request; a configured domain wins.
func (s *AuthService) CreateChallenge(ctx context.Context, address, domain, origin string) (ChallengeResult, error) {
	normalized, err := core.NormalizeAddress(address)
	if err != nil {
		return ChallengeResult{}, err
	}
	if s.cfg.Domain != "" {
		domain = s.cfg.Domain
	}

	raw := make([]byte, nonceBytes)
	if _, err := rand.Read(raw); err != nil {
		return ChallengeResult{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	challenge := core.Challenge{
		Nonce:     hex.EncodeToString(raw),
		Address:   normalized,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.ChallengeTTL),
	}
	if err := s.challenges.Create(ctx, challenge); err != nil {
		return ChallengeResult{}, fmt.Errorf("failed to store challenge: %w", err)
	}

	message := siwe.BuildMessage(siwe.Params{
		Address:   normalized,
		Domain:    domain,
		Origin:    origin,
		Statement: s.cfg.Statement,
		ChainID:   s.cfg.ChainID,
		Nonce:     challenge.Nonce,
		IssuedAt:  challenge.IssuedAt,
		ExpiresAt: challenge.ExpiresAt,
	})

	s.logger.Debug("challenge issued", zap.String("address", normalized), zap.String("nonce", challenge.Nonce))

	return ChallengeResult{
		Message:   message,
		Nonce:     challenge.Nonce,
		ExpiresAt: challenge.ExpiresAt,
	}, nil
}

// SignIn is the outcome of a successful verification.
type SignIn struct {
	Address  string
	Identity core.Identity
	Token    string
	Session  core.Session
}

// Verify checks a signed challenge message and opens a session.
//
// The nonce is consumed before the address, expiry and signature checks, so
// a given nonce can be verified at most once whatever the outcome.
func (s *AuthService) Verify(ctx context.Context, message, signature string) (SignIn, error) {
	msg, err := siwe.ParseMessage(message)
	if err != nil {
		return SignIn{}, err
	}

	challenge, err := s.challenges.Consume(ctx, msg.Nonce)
	if err != nil {
		if errors.Is(err, core.ErrChallengeNotFound) {
			return SignIn{}, core.ErrNonceNotFound
		}
		return SignIn{}, fmt.Errorf("failed to consume challenge: %w", err)
	}

	address, err := core.NormalizeAddress(msg.Address)
	if err != nil || address != challenge.Address {
		return SignIn{}, core.ErrAddressMismatch
	}

	if challenge.Expired(s.now()) {
		return SignIn{}, core.ErrChallengeExpired
	}

	if err := siwe.VerifySignature(message, signature, address); err != nil {
		s.logger.Info("signature rejected", zap.String("address", address), zap.Error(err))
		return SignIn{}, err
	}

	identity, err := s.identities.Resolve(ctx, address)
	if err != nil {
		return SignIn{}, err
	}

	token, session, err := s.tokenizer.Issue(identity.ID)
	if err != nil {
		return SignIn{}, fmt.Errorf("failed to issue session: %w", err)
	}

	s.logger.Info("signed in", zap.String("identity_id", identity.ID))
	if err := s.eventPub.PublishSignIn(ctx, identity); err != nil {
		s.logger.Warn("failed to publish sign-in event", zap.Error(err))
	}

	return SignIn{
		Address:  address,
		Identity: identity,
		Token:    token,
		Session:  session,
	}, nil
}

// ValidateSession decodes and checks a session token. No state is consulted.
func (s *AuthService) ValidateSession(token string) (core.Session, error) {
	return s.tokenizer.Verify(token)
}
