package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/cart-pricing/internal/domain"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type dialect struct {
	name string
	// lockClause is appended to cart reads inside a transaction.
	lockClause        string
	isUniqueViolation func(error) bool
}

// Repository implements CartRepository over database/sql for both
// Postgres and SQLite.
type Repository struct {
	db      *sql.DB
	q       querier
	dialect dialect
	inTx    bool
}

func newRepository(db *sql.DB, d dialect) *Repository {
	return &Repository{db: db, q: db, dialect: d}
}

func (r *Repository) InTx(ctx context.Context, fn func(tx CartRepository) error) error {
	return r.withTx(ctx, func(tx *Repository) error { return fn(tx) })
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *Repository) error) error {
	if r.inTx {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txRepo := &Repository{db: r.db, q: tx, dialect: r.dialect, inTx: true}
	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query user: %w", err)
	}
	return exists, nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT id, name, price, discount_type, discount_value, in_stock
	          FROM products WHERE id = $1`

	var p domain.Product
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Price,
		&p.DiscountType,
		&p.DiscountValue,
		&p.InStock,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

const couponColumns = `id, code, discount_type, discount_value, is_active, valid_from, valid_to`

func (r *Repository) GetCoupon(ctx context.Context, id string) (*domain.Coupon, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id)
	return scanCoupon(row)
}

// GetCouponByCode matches the canonical code exactly.
func (r *Repository) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code)
	return scanCoupon(row)
}

func scanCoupon(row *sql.Row) (*domain.Coupon, error) {
	var (
		c         domain.Coupon
		validFrom sql.NullTime
		validTo   sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.IsActive, &validFrom, &validTo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan coupon: %w", err)
	}
	if validFrom.Valid {
		c.ValidFrom = &validFrom.Time
	}
	if validTo.Valid {
		c.ValidTo = &validTo.Time
	}
	return &c, nil
}

const cartColumns = `id, user_id, coupon_id, total, version, created_at, updated_at`

func (r *Repository) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`+r.lockClause(), cartID)
	return scanCart(row)
}

func (r *Repository) GetCartByUser(ctx context.Context, userID string) (*domain.Cart, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+cartColumns+` FROM carts WHERE user_id = $1`+r.lockClause(), userID)
	return scanCart(row)
}

func (r *Repository) lockClause() string {
	if !r.inTx {
		return ""
	}
	return r.dialect.lockClause
}

func scanCart(row *sql.Row) (*domain.Cart, error) {
	var (
		c        domain.Cart
		couponID sql.NullString
	)
	err := row.Scan(&c.ID, &c.UserID, &couponID, &c.Total, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan cart: %w", err)
	}
	if couponID.Valid {
		c.CouponID = &couponID.String
	}
	return &c, nil
}

func (r *Repository) CreateCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now().UTC()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	if cart.Total == "" {
		cart.Total = domain.ZeroTotal
	}

	query := `INSERT INTO carts (id, user_id, coupon_id, total, version, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.q.ExecContext(ctx, query,
		cart.ID,
		cart.UserID,
		nullString(cart.CouponID),
		cart.Total,
		cart.Version,
		cart.CreatedAt,
		cart.UpdatedAt)
	if err != nil {
		if r.dialect.isUniqueViolation(err) {
			return ErrCartExists
		}
		return fmt.Errorf("insert cart: %w", err)
	}
	return nil
}

func (r *Repository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now().UTC()
	query := `UPDATE carts SET coupon_id = $1, total = $2, version = version + 1, updated_at = $3
	          WHERE id = $4 AND version = $5`

	res, err := r.q.ExecContext(ctx, query, nullString(cart.CouponID), cart.Total, now, cart.ID, cart.Version)
	if err != nil {
		return fmt.Errorf("update cart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update cart rows affected: %w", err)
	}
	if n == 0 {
		if _, getErr := r.GetCart(ctx, cart.ID); errors.Is(getErr, ErrCartNotFound) {
			return ErrCartNotFound
		}
		return ErrVersionConflict
	}

	cart.Version++
	cart.UpdatedAt = now
	return nil
}

// DeleteCartByUser removes the user's cart together with its lines and
// returns what was deleted.
func (r *Repository) DeleteCartByUser(ctx context.Context, userID string) (*domain.Cart, error) {
	var deleted *domain.Cart
	err := r.withTx(ctx, func(tx *Repository) error {
		cart, err := tx.GetCartByUser(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.DeleteLineItems(ctx, cart.ID); err != nil {
			return err
		}
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cart.ID); err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}
		deleted = cart
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

const lineItemColumns = `id, cart_id, product_id, quantity, created_at, updated_at`

func (r *Repository) GetLineItem(ctx context.Context, id string) (*domain.LineItem, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+lineItemColumns+` FROM cart_line_items WHERE id = $1`, id)
	return scanLineItem(row)
}

func scanLineItem(row *sql.Row) (*domain.LineItem, error) {
	var li domain.LineItem
	err := row.Scan(&li.ID, &li.CartID, &li.ProductID, &li.Quantity, &li.CreatedAt, &li.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan line item: %w", err)
	}
	return &li, nil
}

func (r *Repository) ListCartLines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	query := `SELECT li.id, li.cart_id, li.product_id, li.quantity, li.created_at, li.updated_at,
	                 p.id, p.name, p.price, p.discount_type, p.discount_value, p.in_stock
	          FROM cart_line_items li
	          JOIN products p ON p.id = li.product_id
	          WHERE li.cart_id = $1
	          ORDER BY li.created_at, li.id`

	rows, err := r.q.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(
			&l.Item.ID,
			&l.Item.CartID,
			&l.Item.ProductID,
			&l.Item.Quantity,
			&l.Item.CreatedAt,
			&l.Item.UpdatedAt,
			&l.Product.ID,
			&l.Product.Name,
			&l.Product.Price,
			&l.Product.DiscountType,
			&l.Product.DiscountValue,
			&l.Product.InStock,
		); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lines, nil
}

func (r *Repository) MergeLineItem(ctx context.Context, item *domain.LineItem) (*domain.LineItem, error) {
	now := time.Now().UTC()
	query := `INSERT INTO cart_line_items (id, cart_id, product_id, quantity, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $5)
	          ON CONFLICT (cart_id, product_id)
	          DO UPDATE SET quantity = cart_line_items.quantity + excluded.quantity, updated_at = excluded.updated_at`

	if _, err := r.q.ExecContext(ctx, query, item.ID, item.CartID, item.ProductID, item.Quantity, now); err != nil {
		return nil, fmt.Errorf("merge line item: %w", err)
	}

	row := r.q.QueryRowContext(ctx,
		`SELECT `+lineItemColumns+` FROM cart_line_items WHERE cart_id = $1 AND product_id = $2`,
		item.CartID, item.ProductID)
	return scanLineItem(row)
}

func (r *Repository) UpdateLineItemQuantity(ctx context.Context, id string, quantity int) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE cart_line_items SET quantity = $1, updated_at = $2 WHERE id = $3`,
		quantity, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update line item quantity: %w", err)
	}
	return expectAffected(res, ErrItemNotFound)
}

func (r *Repository) DeleteLineItem(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_line_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete line item: %w", err)
	}
	return expectAffected(res, ErrItemNotFound)
}

func (r *Repository) DeleteLineItems(ctx context.Context, cartID string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM cart_line_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("delete line items: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func expectAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
