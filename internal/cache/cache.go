package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/cart-pricing/internal/domain"
)

// CartCache stores the last priced cart of a user.
type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.PricedCart, error)
	Set(ctx context.Context, userID string, cart *domain.PricedCart) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")
