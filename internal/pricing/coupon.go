package pricing

import (
	"errors"
	"time"

	"github.com/fjod/go_cart/cart-pricing/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrCouponInactive      = errors.New("coupon is not active")
	ErrCouponOutsideWindow = errors.New("coupon is expired or not yet valid")
)

// Validate reports why a coupon cannot be used at now, or nil when it can.
// Both window bounds are inclusive.
func Validate(c *domain.Coupon, now time.Time) error {
	if !c.IsActive {
		return ErrCouponInactive
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return ErrCouponOutsideWindow
	}
	if c.ValidTo != nil && now.After(*c.ValidTo) {
		return ErrCouponOutsideWindow
	}
	return nil
}

func IsValid(c *domain.Coupon, now time.Time) bool {
	return Validate(c, now) == nil
}

// WindowChangeAt returns the next instant after now at which c changes validity
// on its own, or nil when its validity no longer depends on time.
func WindowChangeAt(c *domain.Coupon, now time.Time) *time.Time {
	if c == nil || !c.IsActive {
		return nil
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		at := *c.ValidFrom
		return &at
	}
	if c.ValidTo != nil && !now.After(*c.ValidTo) {
		// ValidTo itself is still inside the window
		at := c.ValidTo.Add(time.Nanosecond)
		return &at
	}
	return nil
}

// Discount computes the coupon discount for subtotal. A fixed discount
// never exceeds the subtotal.
func Discount(c *domain.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	switch c.DiscountType {
	case domain.DiscountPercentage:
		return percentOf(subtotal, c.DiscountValue)
	case domain.DiscountFixed:
		return decimal.Min(c.DiscountValue, subtotal)
	default:
		return decimal.Zero
	}
}

// Total is subtotal minus discount, clamped at zero.
func Total(subtotal, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}
