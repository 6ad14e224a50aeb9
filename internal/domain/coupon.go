package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Coupon is the read-only projection of a cart-level discount code.
// ValidFrom and ValidTo are open-ended when nil.
type Coupon struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	IsActive      bool            `json:"is_active"`
	ValidFrom     *time.Time      `json:"valid_from,omitempty"`
	ValidTo       *time.Time      `json:"valid_to,omitempty"`
}
