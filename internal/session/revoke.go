package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/clock"
	"github.com/redis/go-redis/v9"
)

// Revoker remembers logged-out token ids until the token would have expired anyway.
type Revoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

const revokedKeyPrefix = "session:revoked:"

// RedisRevoker stores revocations as expiring Redis keys so every replica sees them.
type RedisRevoker struct {
	rdb redis.UniversalClient
}

// NewRedisRevoker returns a Revoker backed by rdb.
func NewRedisRevoker(rdb redis.UniversalClient) *RedisRevoker {
	return &RedisRevoker{rdb: rdb}
}

func (r *RedisRevoker) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.rdb.Set(ctx, revokedKeyPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := r.rdb.Get(ctx, revokedKeyPrefix+jti).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("redis get: %w", err)
	}
}

// MemoryRevoker keeps revocations in process. Used when REDIS_ADDR is empty.
type MemoryRevoker struct {
	mu      sync.Mutex
	expires map[string]time.Time
	clock   clock.Clock
}

// NewMemoryRevoker returns an empty in-process Revoker.
func NewMemoryRevoker(clk clock.Clock) *MemoryRevoker {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &MemoryRevoker{expires: make(map[string]time.Time), clock: clk}
}

func (m *MemoryRevoker) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, exp := range m.expires {
		if !exp.After(now) {
			delete(m.expires, k)
		}
	}
	m.expires[jti] = now.Add(ttl)
	return nil
}

func (m *MemoryRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.expires[jti]
	return ok && exp.After(m.clock.Now()), nil
}
