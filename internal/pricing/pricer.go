// Package pricing holds the pure money rules of a cart: line pricing,
// coupon validity and the clamped coupon discount.
package pricing

import (
	"time"

	"github.com/fjod/go_cart/cart-pricing/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// UnitPrice applies the product's own discount rule to its price.
// The result never drops below zero.
func UnitPrice(p domain.Product) decimal.Decimal {
	price := decimal.Zero
	if p.Price.Valid {
		price = p.Price.Decimal
	}

	var unit decimal.Decimal
	switch p.DiscountType {
	case domain.DiscountFixed:
		unit = price.Sub(p.DiscountValue)
	case domain.DiscountPercentage:
		unit = price.Sub(percentOf(price, p.DiscountValue))
	default:
		unit = price
	}

	if unit.IsNegative() {
		return decimal.Zero
	}
	return unit
}

func LineSubtotal(p domain.Product, quantity int) decimal.Decimal {
	return UnitPrice(p).Mul(decimal.NewFromInt(int64(quantity)))
}

// PriceLines prices every line and returns them with the cart subtotal.
func PriceLines(lines []domain.CartLine) ([]domain.PricedLine, decimal.Decimal) {
	priced := make([]domain.PricedLine, 0, len(lines))
	subtotal := decimal.Zero
	for _, l := range lines {
		unit := UnitPrice(l.Product)
		sub := unit.Mul(decimal.NewFromInt(int64(l.Item.Quantity)))
		priced = append(priced, domain.PricedLine{
			LineItem:     l.Item,
			ProductName:  l.Product.Name,
			UnitPrice:    unit,
			LineSubtotal: sub,
		})
		subtotal = subtotal.Add(sub)
	}
	return priced, subtotal
}

type Quote struct {
	Lines         []domain.PricedLine
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	CouponApplied bool
}

// Price composes the line pricer, the validator and the discount calculator.
// A coupon that fails validation at now is treated as absent.
func Price(lines []domain.CartLine, coupon *domain.Coupon, now time.Time) Quote {
	priced, subtotal := PriceLines(lines)
	q := Quote{
		Lines:    priced,
		Subtotal: subtotal,
		Discount: decimal.Zero,
		Total:    subtotal,
	}

	if coupon == nil || !IsValid(coupon, now) {
		return q
	}

	q.CouponApplied = true
	q.Total = Total(subtotal, Discount(coupon, subtotal))
	q.Discount = subtotal.Sub(q.Total)
	return q
}

func percentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred)
}
