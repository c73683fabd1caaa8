package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/counseling-hub/internal/domain/status"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
	"github.com/alem-hub/counseling-hub/pkg/circuitbreaker"
)

// StatusCache stores projected status cards. Keys include the store version
// the card was projected from, so a card never outlives the data behind it.
type StatusCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// StatusCacheOption configures a StatusCache.
type StatusCacheOption func(*StatusCache)

// WithBreaker guards every Redis call with cb. While the circuit is open Get
// reports a miss and Set is skipped.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) StatusCacheOption {
	return func(s *StatusCache) {
		s.breaker = cb
	}
}

// NewStatusCache creates a status-card cache. A non-positive ttl selects
// TTLStatusCard.
func NewStatusCache(cache *Cache, ttl time.Duration, opts ...StatusCacheOption) *StatusCache {
	if ttl <= 0 {
		ttl = TTLStatusCard
	}
	s := &StatusCache{cache: cache, ttl: ttl}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached card, or (nil, nil) on a miss.
func (s *StatusCache) Get(ctx context.Context, version int64, email student.Email) (*status.Card, error) {
	var card status.Card
	err := s.guard(ctx, func(ctx context.Context) error {
		err := s.cache.Get(ctx, s.cache.Keys().Status(version, email.String()), &card)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		return err
	})
	if circuitbreaker.IsRejected(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if card.Email == "" {
		return nil, nil
	}
	return &card, nil
}

// Set caches card for the given store version.
func (s *StatusCache) Set(ctx context.Context, version int64, card *status.Card) error {
	if card == nil {
		return nil
	}
	err := s.guard(ctx, func(ctx context.Context) error {
		return s.cache.Set(ctx, s.cache.Keys().Status(version, card.Email.String()), card, s.ttl)
	})
	if circuitbreaker.IsRejected(err) {
		return nil
	}
	return err
}

func (s *StatusCache) guard(ctx context.Context, fn func(context.Context) error) error {
	if s.breaker == nil {
		return fn(ctx)
	}
	return s.breaker.Execute(ctx, fn)
}
