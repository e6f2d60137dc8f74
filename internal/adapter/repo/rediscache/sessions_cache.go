// Package rediscache layers a read-through cache over the session repository.
// Active sessions are read on every answer, so cache hits skip the database
// round trip on the hot path.
package rediscache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
)

// DefaultTTL bounds staleness if an invalidation is ever lost; writes refresh
// the entry anyway.
const DefaultTTL = 30 * time.Minute

// SessionCache implements domain.SessionRepository by wrapping an inner
// repository with a Redis cache. Cache failures degrade to the inner repo.
type SessionCache struct {
	inner domain.SessionRepository
	rdb   *redis.Client
	ttl   time.Duration
}

// New wraps inner with a Redis cache. rdb may be nil, in which case the cache
// is a transparent passthrough.
func New(inner domain.SessionRepository, rdb *redis.Client, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SessionCache{inner: inner, rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string { return "session:" + id }

// Create writes through to the repository and primes the cache.
func (c *SessionCache) Create(ctx domain.Context, s domain.InterviewSession) error {
	if err := c.inner.Create(ctx, s); err != nil {
		return err
	}
	c.set(ctx, s)
	return nil
}

// Get serves from cache when possible, falling back to the repository.
func (c *SessionCache) Get(ctx domain.Context, id string) (domain.InterviewSession, error) {
	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, sessionKey(id)).Bytes()
		switch {
		case err == nil:
			var s domain.InterviewSession
			if uerr := json.Unmarshal(raw, &s); uerr == nil {
				return s, nil
			}
			// Corrupt entry: drop it and fall through to the repository.
			c.rdb.Del(ctx, sessionKey(id))
		case !errors.Is(err, redis.Nil):
			slog.Warn("session cache read failed",
				slog.String("session_id", id), slog.Any("error", err))
		}
	}

	s, err := c.inner.Get(ctx, id)
	if err != nil {
		return domain.InterviewSession{}, err
	}
	c.set(ctx, s)
	return s, nil
}

// Update writes through and refreshes the cache entry; completed sessions are
// evicted since they leave the hot path.
func (c *SessionCache) Update(ctx domain.Context, s domain.InterviewSession) error {
	if err := c.inner.Update(ctx, s); err != nil {
		return err
	}
	if s.Status == domain.SessionCompleted {
		if c.rdb != nil {
			if err := c.rdb.Del(ctx, sessionKey(s.ID)).Err(); err != nil {
				slog.Warn("session cache evict failed",
					slog.String("session_id", s.ID), slog.Any("error", err))
			}
		}
		return nil
	}
	c.set(ctx, s)
	return nil
}

func (c *SessionCache) set(ctx domain.Context, s domain.InterviewSession) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		slog.Warn("session cache encode failed",
			slog.String("session_id", s.ID), slog.Any("error", err))
		return
	}
	if err := c.rdb.Set(ctx, sessionKey(s.ID), raw, c.ttl).Err(); err != nil {
		slog.Warn("session cache write failed",
			slog.String("session_id", s.ID), slog.Any("error", err))
	}
}

// NewClient parses a Redis URL into a client. An empty URL yields nil, which
// downstream components treat as cache-disabled.
func NewClient(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("op=rediscache.client: %w", err)
	}
	return redis.NewClient(opts), nil
}
