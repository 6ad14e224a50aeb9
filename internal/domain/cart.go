package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ZeroTotal is the persisted total of a cart without lines.
const ZeroTotal = "0.00"

// Cart is the aggregate root: one per user, created lazily on the first add.
// Total caches the last recompute and is never authoritative on its own.
type Cart struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CouponID  *string   `json:"coupon_id,omitempty"`
	Total     string    `json:"total"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LineItem struct {
	ID        string    `json:"id"`
	CartID    string    `json:"cart_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CartLine is a line item joined with the product it references.
type CartLine struct {
	Item    LineItem `json:"item"`
	Product Product  `json:"product"`
}

type PricedLine struct {
	LineItem
	ProductName  string          `json:"product_name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineSubtotal decimal.Decimal `json:"line_subtotal"`
}

// PricedCart is the result of a recompute.
type PricedCart struct {
	CartID        string          `json:"cart_id"`
	UserID        string          `json:"user_id"`
	Items         []PricedLine    `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	CouponCode    string          `json:"coupon_code,omitempty"`
	CouponApplied bool            `json:"coupon_applied"`
	PricedAt      time.Time       `json:"priced_at"`
	// RepriceAt is when the attached coupon enters or leaves its window.
	// The price may differ from then on without any mutation.
	RepriceAt *time.Time `json:"reprice_at,omitempty"`
}

// FreshAt reports whether the price still holds at now.
func (p *PricedCart) FreshAt(now time.Time) bool {
	return p.RepriceAt == nil || now.Before(*p.RepriceAt)
}

// TotalString formats the total the way it is persisted.
func (p *PricedCart) TotalString() string {
	return p.Total.StringFixed(2)
}

// EmptyPricedCart describes a cart with no lines and no coupon.
func EmptyPricedCart(cartID, userID string, at time.Time) *PricedCart {
	return &PricedCart{
		CartID:   cartID,
		UserID:   userID,
		Items:    []PricedLine{},
		Subtotal: decimal.Zero,
		Discount: decimal.Zero,
		Total:    decimal.Zero,
		PricedAt: at,
	}
}
