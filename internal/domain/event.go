package domain

import "time"

const EventTypeCartPriced = "cart.priced"

// OutboxEvent is a row of the transactional outbox.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// CartPricedPayload is the JSON body of a cart.priced event.
type CartPricedPayload struct {
	CartID     string    `json:"cart_id"`
	UserID     string    `json:"user_id"`
	Subtotal   string    `json:"subtotal"`
	Discount   string    `json:"discount"`
	Total      string    `json:"total"`
	CouponCode string    `json:"coupon_code,omitempty"`
	ItemCount  int       `json:"item_count"`
	PricedAt   time.Time `json:"priced_at"`
}

func NewCartPricedPayload(p *PricedCart) CartPricedPayload {
	count := 0
	for _, it := range p.Items {
		count += it.Quantity
	}
	code := ""
	if p.CouponApplied {
		code = p.CouponCode
	}
	return CartPricedPayload{
		CartID:     p.CartID,
		UserID:     p.UserID,
		Subtotal:   p.Subtotal.StringFixed(2),
		Discount:   p.Discount.StringFixed(2),
		Total:      p.TotalString(),
		CouponCode: code,
		ItemCount:  count,
		PricedAt:   p.PricedAt,
	}
}
