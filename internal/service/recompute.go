package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/cart-pricing/internal/domain"
	"github.com/fjod/go_cart/cart-pricing/internal/pricing"
	"github.com/fjod/go_cart/cart-pricing/internal/repository"
)

// recompute prices cart from the lines and coupon visible to tx. An attached
// coupon that is no longer valid is skipped but stays attached. The cart row
// is written when dirty is set or the persisted total is stale.
func (s *CartService) recompute(ctx context.Context, tx repository.CartRepository, cart *domain.Cart, now time.Time, dirty bool) (*domain.PricedCart, error) {
	lines, err := tx.ListCartLines(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	var coupon *domain.Coupon
	if cart.CouponID != nil {
		coupon, err = tx.GetCoupon(ctx, *cart.CouponID)
		if errors.Is(err, repository.ErrCouponNotFound) {
			coupon = nil
		} else if err != nil {
			return nil, err
		}
	}

	q := pricing.Price(lines, coupon, now)
	priced := &domain.PricedCart{
		CartID:        cart.ID,
		UserID:        cart.UserID,
		Items:         q.Lines,
		Subtotal:      q.Subtotal,
		Discount:      q.Discount,
		Total:         q.Total,
		CouponApplied: q.CouponApplied,
		PricedAt:      now,
	}
	if coupon != nil {
		priced.CouponCode = coupon.Code
		priced.RepriceAt = pricing.WindowChangeAt(coupon, now)
	}

	total := priced.TotalString()
	if !dirty && total == cart.Total {
		return priced, nil
	}

	cart.Total = total
	if err := tx.SaveCart(ctx, cart); err != nil {
		return nil, err
	}
	if err := appendPricedEvent(ctx, tx, priced); err != nil {
		return nil, err
	}
	return priced, nil
}

func appendPricedEvent(ctx context.Context, tx repository.CartRepository, priced *domain.PricedCart) error {
	payload, err := json.Marshal(domain.NewCartPricedPayload(priced))
	if err != nil {
		return fmt.Errorf("marshal cart priced event: %w", err)
	}
	return tx.AppendOutboxEvent(ctx, &domain.OutboxEvent{
		AggregateID: priced.CartID,
		EventType:   domain.EventTypeCartPriced,
		Payload:     payload,
	})
}
