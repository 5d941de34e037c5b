// Package roster adapts the session roster for the engine. RedisCache fronts
// the authoritative roster so every vote and unanimity check does not go to
// the scheduling tables.
package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"appeals/internal/judgment/models"
	id "appeals/pkg/domain"
	"appeals/pkg/platform/circuit"
	"appeals/pkg/requestcontext"
)

const keyPrefix = "appeals:roster:"

// Source is the authoritative roster.
type Source interface {
	SessionRoster(ctx context.Context, sessionID id.SessionID) ([]models.Member, error)
}

// RedisCache caches session rosters for ttl. Cache failures are logged and
// the source is consulted directly; they never fail the caller. After
// repeated failures the breaker opens and Redis is skipped until a probe
// succeeds.
type RedisCache struct {
	client  *redis.Client
	source  Source
	ttl     time.Duration
	logger  *slog.Logger
	breaker *circuit.Breaker
	hits    prometheus.Counter
	misses  prometheus.Counter
	errs    prometheus.Counter
}

type Option func(*RedisCache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

// WithBreaker replaces the default breaker guarding Redis calls.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *RedisCache) {
		c.breaker = b
	}
}

// WithRegisterer registers hit, miss and error counters with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *RedisCache) {
		f := promauto.With(reg)
		c.hits = f.NewCounter(prometheus.CounterOpts{
			Name: "appeals_roster_cache_hits_total",
			Help: "Session roster lookups served from Redis",
		})
		c.misses = f.NewCounter(prometheus.CounterOpts{
			Name: "appeals_roster_cache_misses_total",
			Help: "Session roster lookups that went to the source",
		})
		c.errs = f.NewCounter(prometheus.CounterOpts{
			Name: "appeals_roster_cache_errors_total",
			Help: "Redis failures while reading or writing the roster cache",
		})
	}
}

func NewRedisCache(client *redis.Client, source Source, ttl time.Duration, opts ...Option) *RedisCache {
	c := &RedisCache{client: client, source: source, ttl: ttl}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.breaker == nil {
		c.breaker = circuit.New("roster-cache")
	}
	return c
}

func key(sessionID id.SessionID) string {
	return keyPrefix + sessionID.String()
}

// SessionRoster returns the cached roster, loading and caching it on a miss.
// Source errors (including not found) are returned unchanged and not cached.
func (c *RedisCache) SessionRoster(ctx context.Context, sessionID id.SessionID) ([]models.Member, error) {
	if !c.breaker.Allow() {
		inc(c.misses)
		return c.source.SessionRoster(ctx, sessionID)
	}

	raw, err := c.client.Get(ctx, key(sessionID)).Bytes()
	switch {
	case err == nil:
		c.recordSuccess(ctx)
		var members []models.Member
		if err := json.Unmarshal(raw, &members); err == nil {
			inc(c.hits)
			return members, nil
		}
		c.warn(ctx, "discarding undecodable roster cache entry", sessionID, nil)
	case errors.Is(err, redis.Nil):
		c.recordSuccess(ctx)
	default:
		c.recordFailure(ctx, "roster cache read failed", sessionID, err)
	}

	inc(c.misses)
	members, err := c.source.SessionRoster(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !c.breaker.Allow() {
		return members, nil
	}

	body, err := json.Marshal(members)
	if err != nil {
		return nil, fmt.Errorf("encode roster: %w", err)
	}
	if err := c.client.Set(ctx, key(sessionID), body, c.ttl).Err(); err != nil {
		c.recordFailure(ctx, "roster cache write failed", sessionID, err)
		return members, nil
	}
	c.recordSuccess(ctx)
	return members, nil
}

// Invalidate drops the cached roster of sessionID, e.g. after a seat change.
func (c *RedisCache) Invalidate(ctx context.Context, sessionID id.SessionID) error {
	if err := c.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("invalidate roster cache: %w", err)
	}
	return nil
}

func (c *RedisCache) warn(ctx context.Context, msg string, sessionID id.SessionID, err error) {
	if err != nil {
		inc(c.errs)
	}
	c.logger.WarnContext(ctx, msg,
		"session_id", sessionID.String(),
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func (c *RedisCache) recordFailure(ctx context.Context, msg string, sessionID id.SessionID, err error) {
	c.warn(ctx, msg, sessionID, err)
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "roster cache circuit opened, serving from source",
			"breaker", c.breaker.Name(),
		)
	}
}

func (c *RedisCache) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "roster cache circuit closed", "breaker", c.breaker.Name())
	}
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}
