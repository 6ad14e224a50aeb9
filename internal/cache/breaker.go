package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/cart-pricing/internal/domain"
	"github.com/fjod/go_cart/cart-pricing/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerCache stops calling a failing cache until it recovers.
// A miss is not a failure.
type BreakerCache struct {
	next CartCache
	cb   *gobreaker.CircuitBreaker[*domain.PricedCart]
}

func NewBreakerCache(next CartCache, logger *zap.Logger) *BreakerCache {
	s := circuitbreaker.DefaultSettings("cart-cache")
	s.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrCacheMiss)
	}
	return &BreakerCache{
		next: next,
		cb:   circuitbreaker.New[*domain.PricedCart](s, logger),
	}
}

func (b *BreakerCache) Get(ctx context.Context, userID string) (*domain.PricedCart, error) {
	return b.cb.Execute(func() (*domain.PricedCart, error) {
		return b.next.Get(ctx, userID)
	})
}

func (b *BreakerCache) Set(ctx context.Context, userID string, cart *domain.PricedCart) error {
	_, err := b.cb.Execute(func() (*domain.PricedCart, error) {
		return nil, b.next.Set(ctx, userID, cart)
	})
	return err
}

func (b *BreakerCache) Delete(ctx context.Context, userID string) error {
	_, err := b.cb.Execute(func() (*domain.PricedCart, error) {
		return nil, b.next.Delete(ctx, userID)
	})
	return err
}
