package domain

import "github.com/shopspring/decimal"

type DiscountType string

const (
	DiscountNone       DiscountType = "none"
	DiscountFixed      DiscountType = "fixed"
	DiscountPercentage DiscountType = "percentage"
)

func (t DiscountType) String() string {
	return string(t)
}

// Product is the read-only catalog projection used for pricing.
// A null price counts as zero.
type Product struct {
	ID            int64               `json:"id"`
	Name          string              `json:"name"`
	Price         decimal.NullDecimal `json:"price"`
	DiscountType  DiscountType        `json:"discount_type"`
	DiscountValue decimal.Decimal     `json:"discount_value"`
	InStock       bool                `json:"in_stock"`
}
