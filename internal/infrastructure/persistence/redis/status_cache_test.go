package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/counseling-hub/internal/domain/status"
	"github.com/alem-hub/counseling-hub/pkg/circuitbreaker"
)

func unreachableCache(t *testing.T) *Cache {
	t.Helper()
	c := NewCacheWithClient(goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	}), "t:")
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestStatusCache_DefaultTTL(t *testing.T) {
	s := NewStatusCache(unreachableCache(t), 0)
	assert.Equal(t, TTLStatusCard, s.ttl)
	assert.NoError(t, s.Set(context.Background(), 1, nil))
}

func TestStatusCache_BreakerTurnsOutageIntoMisses(t *testing.T) {
	cb := circuitbreaker.New("status-cache", circuitbreaker.WithFailureThreshold(1), circuitbreaker.WithTimeout(time.Hour))
	s := NewStatusCache(unreachableCache(t), time.Minute, WithBreaker(cb))
	ctx := context.Background()

	_, err := s.Get(ctx, 1, "a@example.com")
	require.Error(t, err)
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())

	card, err := s.Get(ctx, 1, "a@example.com")
	assert.NoError(t, err)
	assert.Nil(t, card)

	assert.NoError(t, s.Set(ctx, 1, &status.Card{Email: "a@example.com"}))
	assert.Equal(t, 2, cb.Counts().Rejected)
}

func TestStatusCache_WithoutBreakerSurfacesErrors(t *testing.T) {
	s := NewStatusCache(unreachableCache(t), time.Minute)

	_, err := s.Get(context.Background(), 1, "a@example.com")
	assert.Error(t, err)
	assert.Error(t, s.Set(context.Background(), 1, &status.Card{Email: "a@example.com"}))
}
