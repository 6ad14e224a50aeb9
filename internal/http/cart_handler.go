package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/go_cart/cart-pricing/internal/domain"
	"github.com/fjod/go_cart/cart-pricing/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxQuantity = 99

// CartService is the part of service.CartService exposed over HTTP.
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

type CartHandler struct {
	carts   CartService
	timeout time.Duration
	logger  *zap.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		logger:  logger,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type ApplyCouponRequestDTO struct {
	Code string `json:"code"`
}

type LineItemResponseDTO struct {
	ID        string `json:"id"`
	CartID    string `json:"cart_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PricedLineResponseDTO struct {
	ID           string `json:"id"`
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	Quantity     int    `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	LineSubtotal string `json:"line_subtotal"`
}

type CartResponseDTO struct {
	CartID        string                  `json:"cart_id,omitempty"`
	UserID        string                  `json:"user_id"`
	Items         []PricedLineResponseDTO `json:"items"`
	Subtotal      string                  `json:"subtotal"`
	Discount      string                  `json:"discount"`
	Total         string                  `json:"total"`
	CouponCode    string                  `json:"coupon_code,omitempty"`
	CouponApplied bool                    `json:"coupon_applied"`
	PricedAt      time.Time               `json:"priced_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func toCartResponse(p *domain.PricedCart) CartResponseDTO {
	items := make([]PricedLineResponseDTO, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, PricedLineResponseDTO{
			ID:           it.ID,
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice.StringFixed(2),
			LineSubtotal: it.LineSubtotal.StringFixed(2),
		})
	}
	return CartResponseDTO{
		CartID:        p.CartID,
		UserID:        p.UserID,
		Items:         items,
		Subtotal:      p.Subtotal.StringFixed(2),
		Discount:      p.Discount.StringFixed(2),
		Total:         p.TotalString(),
		CouponCode:    p.CouponCode,
		CouponApplied: p.CouponApplied,
		PricedAt:      p.PricedAt,
	}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user identity")
		return
	}

	cart, err := h.carts.GetCart(ctx, userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user identity")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if !validQuantity(req.Quantity) {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	item, err := h.carts.AddItem(ctx, userID, req.ProductID, req.Quantity)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, LineItemResponseDTO{
		ID:        item.ID,
		CartID:    item.CartID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
	})
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	itemID := chi.URLParam(r, "item_id")
	if itemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item_id is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if !validQuantity(req.Quantity) {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	cart, err := h.carts.UpdateItemQuantity(ctx, itemID, req.Quantity)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	itemID := chi.URLParam(r, "item_id")
	if itemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item_id is required")
		return
	}

	cart, err := h.carts.RemoveItem(ctx, itemID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ApplyCouponRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	cart, err := h.carts.ApplyCoupon(ctx, chi.URLParam(r, "cart_id"), req.Code)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	h.cartOperation(w, r, h.carts.RemoveCoupon)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.cartOperation(w, r, h.carts.ClearCart)
}

func (h *CartHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	h.cartOperation(w, r, h.carts.Recompute)
}

func (h *CartHandler) cartOperation(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, cartID string) (*domain.PricedCart, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := op(ctx, chi.URLParam(r, "cart_id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func validQuantity(q int) bool {
	return q >= 1 && q <= maxQuantity
}

func (h *CartHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	st, _ := status.FromError(err)
	if st.Code() == codes.Internal || st.Code() == codes.Unknown {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err))
	}
	handleGRPCError(w, err)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleGRPCError converts status codes to HTTP statuses. Service errors carry
// their own status and put their code in Details.
func handleGRPCError(w http.ResponseWriter, err error) {
	st, ok := status.FromError(err)
	if !ok {
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	var httpStatus int
	var code string

	switch st.Code() {
	case codes.InvalidArgument:
		httpStatus = http.StatusBadRequest
		code = "invalid_argument"
	case codes.NotFound:
		httpStatus = http.StatusNotFound
		code = "not_found"
	case codes.FailedPrecondition:
		httpStatus = http.StatusUnprocessableEntity
		code = "failed_precondition"
	case codes.AlreadyExists, codes.Aborted:
		httpStatus = http.StatusConflict
		code = "conflict"
	case codes.Unavailable:
		httpStatus = http.StatusServiceUnavailable
		code = "service_unavailable"
	case codes.DeadlineExceeded:
		httpStatus = http.StatusGatewayTimeout
		code = "timeout"
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	resp := ErrorResponse{Error: st.Message(), Code: code}
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		resp.Details = svcErr.Code
	}
	respondJSON(w, httpStatus, resp)
}
