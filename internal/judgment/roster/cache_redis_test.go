package roster

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appeals/internal/judgment/models"
	id "appeals/pkg/domain"
	"appeals/pkg/platform/circuit"
	"appeals/pkg/platform/sentinel"
)

type countingSource struct {
	members []models.Member
	err     error
	calls   int
}

func (s *countingSource) SessionRoster(context.Context, id.SessionID) ([]models.Member, error) {
	s.calls++
	return s.members, s.err
}

// unreachableClient points at a port nothing listens on.
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSessionRosterFallsBackWhenRedisIsDown(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := &countingSource{members: []models.Member{
		{ID: id.MemberID(uuid.New()), Name: "Alice", Role: models.MemberRoleCounselor, Eligible: true},
	}}
	cache := NewRedisCache(unreachableClient(t), src, time.Minute, WithRegisterer(reg))

	members, err := cache.SessionRoster(context.Background(), id.SessionID(uuid.New()))
	require.NoError(t, err)

	assert.Equal(t, src.members, members)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(cache.misses))
	assert.Equal(t, float64(2), testutil.ToFloat64(cache.errs))
}

func TestSessionRosterReturnsSourceErrors(t *testing.T) {
	src := &countingSource{err: sentinel.ErrNotFound}
	cache := NewRedisCache(unreachableClient(t), src, time.Minute)

	_, err := cache.SessionRoster(context.Background(), id.SessionID(uuid.New()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestSessionRosterSkipsRedisWhileBreakerIsOpen(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := &countingSource{members: []models.Member{}}
	breaker := circuit.New("roster-cache", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))
	cache := NewRedisCache(unreachableClient(t), src, time.Minute, WithRegisterer(reg), WithBreaker(breaker))
	sessionID := id.SessionID(uuid.New())

	_, err := cache.SessionRoster(context.Background(), sessionID)
	require.NoError(t, err)
	assert.True(t, breaker.IsOpen())

	_, err = cache.SessionRoster(context.Background(), sessionID)
	require.NoError(t, err)

	assert.Equal(t, 2, src.calls)
	assert.Equal(t, float64(2), testutil.ToFloat64(cache.misses))
	assert.Equal(t, float64(1), testutil.ToFloat64(cache.errs), "no Redis call while open")
}
