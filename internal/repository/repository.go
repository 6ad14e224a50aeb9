package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/cart-pricing/internal/domain"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrItemNotFound    = errors.New("line item not found")
	ErrProductNotFound = errors.New("product not found")
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrCartExists      = errors.New("cart already exists for user")
	ErrVersionConflict = errors.New("cart was modified concurrently")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// CartRepository is the persistence port of the pricing engine.
// Cart reads lock the cart row until the surrounding transaction ends.
type CartRepository interface {
	// InTx runs fn inside one transaction. The repository passed to fn is bound
	// to that transaction; fn returning an error rolls everything back.
	InTx(ctx context.Context, fn func(tx CartRepository) error) error

	UserExists(ctx context.Context, userID string) (bool, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetCoupon(ctx context.Context, id string) (*domain.Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)

	GetCart(ctx context.Context, cartID string) (*domain.Cart, error)
	GetCartByUser(ctx context.Context, userID string) (*domain.Cart, error)
	CreateCart(ctx context.Context, cart *domain.Cart) error
	// SaveCart writes coupon, total and timestamps with a compare-and-swap on
	// cart.Version and increments it on success.
	SaveCart(ctx context.Context, cart *domain.Cart) error
	DeleteCartByUser(ctx context.Context, userID string) (*domain.Cart, error)

	GetLineItem(ctx context.Context, id string) (*domain.LineItem, error)
	ListCartLines(ctx context.Context, cartID string) ([]domain.CartLine, error)
	// MergeLineItem inserts item or adds its quantity to the existing line for the
	// same product and returns the stored line.
	MergeLineItem(ctx context.Context, item *domain.LineItem) (*domain.LineItem, error)
	UpdateLineItemQuantity(ctx context.Context, id string, quantity int) error
	DeleteLineItem(ctx context.Context, id string) error
	DeleteLineItems(ctx context.Context, cartID string) error

	AppendOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error
}

// OutboxRepository is consumed by the outbox publisher.
type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	DeleteProcessedEvents(ctx context.Context, olderThan time.Time) (int64, error)
}
