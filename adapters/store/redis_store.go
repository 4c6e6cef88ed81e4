package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/eden/core"
	"github.com/layer-3/eden/ports"
)

// RedisChallengeStore is a Redis implementation of the ChallengeStore interface.
// Expiry is delegated to Redis key TTLs.
type RedisChallengeStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisChallengeStore creates a new Redis challenge store
func NewRedisChallengeStore(client redis.UniversalClient) *RedisChallengeStore {
	return &RedisChallengeStore{
		client: client,
		prefix: "eden:challenge:",
	}
}

var _ ports.ChallengeStore = (*RedisChallengeStore)(nil)

type redisChallenge struct {
	Address   string    `json:"address"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Create stores the challenge with a TTL matching its lifetime
func (s *RedisChallengeStore) Create(ctx context.Context, challenge core.Challenge) error {
	payload, err := json.Marshal(redisChallenge{
		Address:   challenge.Address,
		IssuedAt:  challenge.IssuedAt,
		ExpiresAt: challenge.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	ttl := challenge.ExpiresAt.Sub(challenge.IssuedAt)
	if ttl <= 0 {
		return fmt.Errorf("challenge already expired")
	}

	created, err := s.client.SetNX(ctx, s.prefix+challenge.Nonce, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	if !created {
		return fmt.Errorf("nonce collision")
	}

	return nil
}

// Consume atomically reads and deletes the challenge with GETDEL
func (s *RedisChallengeStore) Consume(ctx context.Context, nonce string) (core.Challenge, error) {
	payload, err := s.client.GetDel(ctx, s.prefix+nonce).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Challenge{}, core.ErrChallengeNotFound
		}
		return core.Challenge{}, fmt.Errorf("failed to consume challenge: %w", err)
	}

	var stored redisChallenge
	if err := json.Unmarshal(payload, &stored); err != nil {
		return core.Challenge{}, fmt.Errorf("failed to decode challenge: %w", err)
	}

	return core.Challenge{
		Nonce:     nonce,
		Address:   stored.Address,
		IssuedAt:  stored.IssuedAt,
		ExpiresAt: stored.ExpiresAt,
	}, nil
}

// SweepExpired is a no-op, Redis evicts expired keys itself
func (s *RedisChallengeStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// upsertIdentity creates the identity hash or advances last_verified_at,
// keeping it strictly increasing. Times are Unix microseconds so they stay
// exact in Lua numbers.
var upsertIdentity = redis.NewScript(`
local now = tonumber(ARGV[2])
local prev = redis.call('HGET', KEYS[1], 'last_verified_at')
if prev and tonumber(prev) >= now then
	now = tonumber(prev) + 1
end
redis.call('HSETNX', KEYS[1], 'address', ARGV[1])
redis.call('HSETNX', KEYS[1], 'created_at', ARGV[2])
redis.call('HSET', KEYS[1], 'last_verified_at', string.format('%d', now))
return redis.call('HMGET', KEYS[1], 'address', 'created_at', 'last_verified_at')
`)

// RedisIdentityStore is a Redis implementation of the IdentityStore interface
type RedisIdentityStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisIdentityStore creates a new Redis identity store
func NewRedisIdentityStore(client redis.UniversalClient) *RedisIdentityStore {
	return &RedisIdentityStore{
		client: client,
		prefix: "eden:identity:",
	}
}

var _ ports.IdentityStore = (*RedisIdentityStore)(nil)

// Upsert runs the upsert script atomically for the identity key
func (s *RedisIdentityStore) Upsert(ctx context.Context, identity core.Identity, at time.Time) (core.Identity, error) {
	res, err := upsertIdentity.Run(ctx, s.client,
		[]string{s.prefix + identity.ID},
		identity.Address, strconv.FormatInt(at.UnixMicro(), 10),
	).Slice()
	if err != nil {
		return core.Identity{}, fmt.Errorf("failed to upsert identity: %w", err)
	}

	return decodeIdentity(identity.ID, res)
}

// Get loads the identity hash
func (s *RedisIdentityStore) Get(ctx context.Context, id string) (core.Identity, error) {
	res, err := s.client.HMGet(ctx, s.prefix+id, "address", "created_at", "last_verified_at").Result()
	if err != nil {
		return core.Identity{}, fmt.Errorf("failed to load identity: %w", err)
	}
	if res[0] == nil {
		return core.Identity{}, core.ErrIdentityNotFound
	}

	return decodeIdentity(id, res)
}

func decodeIdentity(id string, fields []interface{}) (core.Identity, error) {
	if len(fields) != 3 {
		return core.Identity{}, fmt.Errorf("unexpected identity reply of %d fields", len(fields))
	}

	var values [3]string
	for i, f := range fields {
		switch v := f.(type) {
		case string:
			values[i] = v
		case int64:
			values[i] = strconv.FormatInt(v, 10)
		default:
			return core.Identity{}, fmt.Errorf("unexpected identity field type %T", f)
		}
	}

	created, err := strconv.ParseInt(values[1], 10, 64)
	if err != nil {
		return core.Identity{}, fmt.Errorf("invalid created_at: %w", err)
	}
	verified, err := strconv.ParseInt(values[2], 10, 64)
	if err != nil {
		return core.Identity{}, fmt.Errorf("invalid last_verified_at: %w", err)
	}

	return core.Identity{
		ID:             id,
		Address:        values[0],
		CreatedAt:      time.UnixMicro(created),
		LastVerifiedAt: time.UnixMicro(verified),
	}, nil
}
