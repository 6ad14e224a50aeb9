package grpc

import "github.com/fjod/go_cart/cart-pricing/internal/domain"

type GetCartRequest struct {
	UserID string `json:"user_id"`
}

type AddItemRequest struct {
	UserID    string `json:"user_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type AddItemResponse struct {
	Item *domain.LineItem `json:"item"`
}

type UpdateItemQuantityRequest struct {
	LineItemID string `json:"line_item_id"`
	Quantity   int    `json:"quantity"`
}

type RemoveItemRequest struct {
	LineItemID string `json:"line_item_id"`
}

type ApplyCouponRequest struct {
	CartID string `json:"cart_id"`
	Code   string `json:"code"`
}

// CartRequest addresses a cart by id for RemoveCoupon, ClearCart and Recompute.
type CartRequest struct {
	CartID string `json:"cart_id"`
}

type CartResponse struct {
	Cart *domain.PricedCart `json:"cart"`
}
