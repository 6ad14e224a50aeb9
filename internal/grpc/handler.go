package grpc

import (
	"context"

	"github.com/fjod/go_cart/cart-pricing/internal/domain"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CartService is the part of service.CartService exposed over gRPC.
type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.PricedCart, error)
	AddItem(ctx context.Context, userID string, productID int64, quantity int) (*domain.LineItem, error)
	UpdateItemQuantity(ctx context.Context, lineItemID string, quantity int) (*domain.PricedCart, error)
	RemoveItem(ctx context.Context, lineItemID string) (*domain.PricedCart, error)
	ApplyCoupon(ctx context.Context, cartID, code string) (*domain.PricedCart, error)
	RemoveCoupon(ctx context.Context, cartID string) (*domain.PricedCart, error)
	ClearCart(ctx context.Context, cartID string) (*domain.PricedCart, error)
	Recompute(ctx context.Context, cartID string) (*domain.PricedCart, error)
}

// CartServer implements CartPricingServer. Service errors already carry
// their gRPC status and are returned unchanged.
type CartServer struct {
	service CartService
}

func NewCartServer(service CartService) *CartServer {
	return &CartServer{service: service}
}

func (s *CartServer) GetCart(ctx context.Context, req *GetCartRequest) (*CartResponse, error) {
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	return cartResponse(s.service.GetCart(ctx, req.UserID))
}

func (s *CartServer) AddItem(ctx context.Context, req *AddItemRequest) (*AddItemResponse, error) {
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	if req.ProductID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "product_id must be greater than 0")
	}

	item, err := s.service.AddItem(ctx, req.UserID, req.ProductID, req.Quantity)
	if err != nil {
		return nil, err
	}
	return &AddItemResponse{Item: item}, nil
}

func (s *CartServer) UpdateItemQuantity(ctx context.Context, req *UpdateItemQuantityRequest) (*CartResponse, error) {
	if req.LineItemID == "" {
		return nil, status.Error(codes.InvalidArgument, "line_item_id is required")
	}
	return cartResponse(s.service.UpdateItemQuantity(ctx, req.LineItemID, req.Quantity))
}

func (s *CartServer) RemoveItem(ctx context.Context, req *RemoveItemRequest) (*CartResponse, error) {
	if req.LineItemID == "" {
		return nil, status.Error(codes.InvalidArgument, "line_item_id is required")
	}
	return cartResponse(s.service.RemoveItem(ctx, req.LineItemID))
}

func (s *CartServer) ApplyCoupon(ctx context.Context, req *ApplyCouponRequest) (*CartResponse, error) {
	if req.CartID == "" {
		return nil, status.Error(codes.InvalidArgument, "cart_id is required")
	}
	return cartResponse(s.service.ApplyCoupon(ctx, req.CartID, req.Code))
}

func (s *CartServer) RemoveCoupon(ctx context.Context, req *CartRequest) (*CartResponse, error) {
	if req.CartID == "" {
		return nil, status.Error(codes.InvalidArgument, "cart_id is required")
	}
	return cartResponse(s.service.RemoveCoupon(ctx, req.CartID))
}

func (s *CartServer) ClearCart(ctx context.Context, req *CartRequest) (*CartResponse, error) {
	if req.CartID == "" {
		return nil, status.Error(codes.InvalidArgument, "cart_id is required")
	}
	return cartResponse(s.service.ClearCart(ctx, req.CartID))
}

func (s *CartServer) Recompute(ctx context.Context, req *CartRequest) (*CartResponse, error) {
	if req.CartID == "" {
		return nil, status.Error(codes.InvalidArgument, "cart_id is required")
	}
	return cartResponse(s.service.Recompute(ctx, req.CartID))
}

func cartResponse(cart *domain.PricedCart, err error) (*CartResponse, error) {
	if err != nil {
		return nil, err
	}
	return &CartResponse{Cart: cart}, nil
}
