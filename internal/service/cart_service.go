package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fjod/go_cart/cart-pricing/internal/cache"
	"github.com/fjod/go_cart/cart-pricing/internal/domain"
	"github.com/fjod/go_cart/cart-pricing/internal/pricing"
	"github.com/fjod/go_cart/cart-pricing/internal/repository"
	"github.com/fjod/go_cart/cart-pricing/internal/snapshot"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// maxWriteAttempts bounds retries of a whole transaction after a lazy-creation
// race or a version conflict on the cart row.
const maxWriteAttempts = 3

type CartService struct {
	repo      repository.CartRepository
	cache     cache.CartCache
	snapshots snapshot.Store
	logger    *zap.Logger
	now       func() time.Time
	sfg       singleflight.Group // Prevents cache stampede
	gens      generations
}

type Option func(*CartService)

// WithSnapshots publishes every committed priced cart to store.
func WithSnapshots(store snapshot.Store) Option {
	return func(s *CartService) { s.snapshots = store }
}

func WithClock(now func() time.Time) Option {
	return func(s *CartService) { s.now = now }
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, logger *zap.Logger, opts ...Option) *CartService {
	s := &CartService{
		repo:   repo,
		cache:  cache,
		logger: logger.With(zap.String("component", "cart_service")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetCart returns the user's priced cart, or an empty one when the user has none yet.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.PricedCart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cached, err := s.cache.Get(ctx, userID)
		switch {
		case err == nil && cached.FreshAt(s.now()):
			return cached, nil
		case err != nil && !errors.Is(err, cache.ErrCacheMiss):
			s.logger.Warn("cache get error", zap.String("user_id", userID), zap.Error(err))
		}

		gen := s.gens.current(userID)

		var priced *domain.PricedCart
		errTx := s.repo.InTx(ctx, func(tx repository.CartRepository) error {
			cart, err := tx.GetCartByUser(ctx, userID)
			if errors.Is(err, repository.ErrCartNotFound) {
				priced = domain.EmptyPricedCart("", userID, s.now())
				return nil
			}
			if err != nil {
				return err
			}
			priced, err = s.recompute(ctx, tx, cart, s.now(), false)
			return err
		})
		if errTx != nil {
			s.logger.Error("get cart failed", zap.String("user_id", userID), zap.Error(errTx))
			return nil, persistence(errTx)
		}

		if priced.CartID != "" {
			go s.fillCache(userID, priced, gen)
		}
		return priced, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.PricedCart), nil
}

// AddItem merges quantity into the user's line for productID, creating the
// cart on first use, and returns the line after the merge.
func (s *CartService) AddItem(ctx context.Context, userID string, productID int64, quantity int) (*domain.LineItem, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	var (
		item   *domain.LineItem
		priced *domain.PricedCart
	)
	err := s.withRetry(ctx, "add_item", func() error {
		return s.repo.InTx(ctx, func(tx repository.CartRepository) error {
			exists, err := tx.UserExists(ctx, userID)
			if err != nil {
				return err
			}
			if !exists {
				return ErrUserNotFound
			}

			if _, err := tx.GetProduct(ctx, productID); err != nil {
				if errors.Is(err, repository.ErrProductNotFound) {
					return ErrProductNotFound
				}
				return err
			}

			cart, err := s.cartForUser(ctx, tx, userID)
			if err != nil {
				return err
			}

			item, err = tx.MergeLineItem(ctx, &domain.LineItem{
				ID:        uuid.NewString(),
				CartID:    cart.ID,
				ProductID: productID,
				Quantity:  quantity,
			})
			if err != nil {
				return err
			}

			priced, err = s.recompute(ctx, tx, cart, s.now(), true)
			return err
		})
	})
	if err != nil {
		s.logger.Warn("add item failed",
			zap.String("user_id", userID),
			zap.Int64("product_id", productID),
			zap.Error(err))
		return nil, persistence(err)
	}

	s.logger.Info("item added",
		zap.String("cart_id", item.CartID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", item.Quantity))
	s.afterCommit(priced)
	return item, nil
}

// UpdateItemQuantity sets the quantity of a line; it does not add to it.
func (s *CartService) UpdateItemQuantity(ctx context.Context, lineItemID string, quantity int) (*domain.PricedCart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	return s.mutateLine(ctx, "update_item_quantity", lineItemID, func(tx repository.CartRepository) error {
		return tx.UpdateLineItemQuantity(ctx, lineItemID, quantity)
	})
}

func (s *CartService) RemoveItem(ctx context.Context, lineItemID string) (*domain.PricedCart, error) {
	return s.mutateLine(ctx, "remove_item", lineItemID, func(tx repository.CartRepository) error {
		return tx.DeleteLineItem(ctx, lineItemID)
	})
}

// ApplyCoupon attaches the coupon with the given code. Unlike a recompute, an
// invalid coupon fails the call and leaves the cart untouched.
func (s *CartService) ApplyCoupon(ctx context.Context, cartID, code string) (*domain.PricedCart, error) {
	canonical := strings.ToUpper(strings.TrimSpace(code))

	return s.mutateCart(ctx, "apply_coupon", cartID, func(tx repository.CartRepository, cart *domain.Cart, now time.Time) error {
		coupon, err := tx.GetCouponByCode(ctx, canonical)
		if errors.Is(err, repository.ErrCouponNotFound) {
			return ErrInvalidOrInactiveCoupon
		}
		if err != nil {
			return err
		}

		switch err := pricing.Validate(coupon, now); {
		case errors.Is(err, pricing.ErrCouponInactive):
			return ErrInvalidOrInactiveCoupon
		case errors.Is(err, pricing.ErrCouponOutsideWindow):
			return ErrExpiredOrNotYetValid
		}

		cart.CouponID = &coupon.ID
		return nil
	})
}

func (s *CartService) RemoveCoupon(ctx context.Context, cartID string) (*domain.PricedCart, error) {
	return s.mutateCart(ctx, "remove_coupon", cartID, func(_ repository.CartRepository, cart *domain.Cart, _ time.Time) error {
		cart.CouponID = nil
		return nil
	})
}

// ClearCart empties the cart and detaches its coupon. The zero total is
// written directly without a recompute.
func (s *CartService) ClearCart(ctx context.Context, cartID string) (*domain.PricedCart, error) {
	var priced *domain.PricedCart
	err := s.withRetry(ctx, "clear_cart", func() error {
		return s.repo.InTx(ctx, func(tx repository.CartRepository) error {
			cart, err := lockCart(ctx, tx, cartID)
			if err != nil {
				return err
			}
			if err := tx.DeleteLineItems(ctx, cart.ID); err != nil {
				return err
			}

			cart.CouponID = nil
			cart.Total = domain.ZeroTotal
			if err := tx.SaveCart(ctx, cart); err != nil {
				return err
			}

			priced = domain.EmptyPricedCart(cart.ID, cart.UserID, s.now())
			return appendPricedEvent(ctx, tx, priced)
		})
	})
	if err != nil {
		s.logger.Warn("clear cart failed", zap.String("cart_id", cartID), zap.Error(err))
		return nil, persistence(err)
	}

	s.afterCommit(priced)
	return priced, nil
}

// Recompute reprices the cart from its persisted state. Calling it again
// without an intervening mutation yields the same total.
func (s *CartService) Recompute(ctx context.Context, cartID string) (*domain.PricedCart, error) {
	var priced *domain.PricedCart
	err := s.withRetry(ctx, "recompute", func() error {
		return s.repo.InTx(ctx, func(tx repository.CartRepository) error {
			cart, err := lockCart(ctx, tx, cartID)
			if err != nil {
				return err
			}
			priced, err = s.recompute(ctx, tx, cart, s.now(), false)
			return err
		})
	})
	if err != nil {
		s.logger.Warn("recompute failed", zap.String("cart_id", cartID), zap.Error(err))
		return nil, persistence(err)
	}

	s.afterCommit(priced)
	return priced, nil
}

// DiscardUserCart deletes the user's cart after an order was placed from it.
// A user without a cart is not an error.
func (s *CartService) DiscardUserCart(ctx context.Context, userID string) error {
	deleted, err := s.repo.DeleteCartByUser(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		s.logger.Error("discard cart failed", zap.String("user_id", userID), zap.Error(err))
		return persistence(err)
	}

	s.invalidateCache(userID)
	if deleted != nil && s.snapshots != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.snapshots.Delete(ctx, deleted.ID); err != nil {
			s.logger.Warn("snapshot delete error", zap.String("cart_id", deleted.ID), zap.Error(err))
		}
	}
	return nil
}

// mutateLine locks the cart owning lineItemID, applies mutate and recomputes.
func (s *CartService) mutateLine(ctx context.Context, op, lineItemID string, mutate func(tx repository.CartRepository) error) (*domain.PricedCart, error) {
	var priced *domain.PricedCart
	err := s.withRetry(ctx, op, func() error {
		return s.repo.InTx(ctx, func(tx repository.CartRepository) error {
			item, err := tx.GetLineItem(ctx, lineItemID)
			if errors.Is(err, repository.ErrItemNotFound) {
				return ErrLineItemNotFound
			}
			if err != nil {
				return err
			}

			cart, err := tx.GetCart(ctx, item.CartID)
			if errors.Is(err, repository.ErrCartNotFound) {
				return ErrLineItemNotFound
			}
			if err != nil {
				return err
			}

			if err := mutate(tx); err != nil {
				if errors.Is(err, repository.ErrItemNotFound) {
					return ErrLineItemNotFound
				}
				return err
			}

			priced, err = s.recompute(ctx, tx, cart, s.now(), true)
			return err
		})
	})
	if err != nil {
		s.logger.Warn("line mutation failed", zap.String("op", op), zap.String("line_item_id", lineItemID), zap.Error(err))
		return nil, persistence(err)
	}

	s.afterCommit(priced)
	return priced, nil
}

// mutateCart locks cartID, lets mutate change the aggregate and recomputes.
func (s *CartService) mutateCart(ctx context.Context, op, cartID string, mutate func(tx repository.CartRepository, cart *domain.Cart, now time.Time) error) (*domain.PricedCart, error) {
	var priced *domain.PricedCart
	err := s.withRetry(ctx, op, func() error {
		return s.repo.InTx(ctx, func(tx repository.CartRepository) error {
			cart, err := lockCart(ctx, tx, cartID)
			if err != nil {
				return err
			}

			now := s.now()
			if err := mutate(tx, cart, now); err != nil {
				return err
			}

			priced, err = s.recompute(ctx, tx, cart, now, true)
			return err
		})
	})
	if err != nil {
		s.logger.Warn("cart mutation failed", zap.String("op", op), zap.String("cart_id", cartID), zap.Error(err))
		return nil, persistence(err)
	}

	s.afterCommit(priced)
	return priced, nil
}

// cartForUser returns the user's cart, creating it when missing. A concurrent
// creation surfaces as repository.ErrCartExists and is retried by withRetry.
func (s *CartService) cartForUser(ctx context.Context, tx repository.CartRepository, userID string) (*domain.Cart, error) {
	cart, err := tx.GetCartByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, repository.ErrCartNotFound) {
		return nil, err
	}

	cart = &domain.Cart{
		ID:     uuid.NewString(),
		UserID: userID,
		Total:  domain.ZeroTotal,
	}
	if err := tx.CreateCart(ctx, cart); err != nil {
		return nil, err
	}
	s.logger.Info("cart created", zap.String("cart_id", cart.ID), zap.String("user_id", userID))
	return cart, nil
}

func lockCart(ctx context.Context, tx repository.CartRepository, cartID string) (*domain.Cart, error) {
	cart, err := tx.GetCart(ctx, cartID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, ErrCartNotFound
	}
	return cart, err
}

func (s *CartService) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, repository.ErrCartExists) && !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Info("retrying after write conflict",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return err
}

func (s *CartService) afterCommit(priced *domain.PricedCart) {
	s.invalidateCache(priced.UserID)

	if s.snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.snapshots.Save(ctx, priced); err != nil {
		s.logger.Warn("snapshot save error", zap.String("cart_id", priced.CartID), zap.Error(err))
	}
}

// fillCache stores a cart priced while the user's generation was gen. A fill
// that raced an invalidation is dropped, or undone when the invalidation
// landed while the value was being written.
func (s *CartService) fillCache(userID string, priced *domain.PricedCart, gen uint64) {
	if s.gens.current(userID) != gen {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, userID, priced); err != nil {
		s.logger.Warn("cache set error", zap.String("user_id", userID), zap.Error(err))
		return
	}

	if s.gens.current(userID) != gen {
		s.logger.Debug("dropping cache fill raced by a write", zap.String("user_id", userID))
		if err := s.cache.Delete(ctx, userID); err != nil {
			s.logger.Warn("cache invalidate error", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

func (s *CartService) invalidateCache(userID string) {
	s.gens.bump(userID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("cache invalidate error", zap.String("user_id", userID), zap.Error(err))
	}
}
