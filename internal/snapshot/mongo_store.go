// Package snapshot keeps the latest priced state of every cart in MongoDB.
// Order placement reads these documents instead of repricing the cart.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/cart-pricing/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrSnapshotNotFound = errors.New("cart snapshot not found")

type Store interface {
	Save(ctx context.Context, cart *domain.PricedCart) error
	Get(ctx context.Context, cartID string) (*Snapshot, error)
	Delete(ctx context.Context, cartID string) error
}

// Snapshot stores money as fixed two-digit strings.
type Snapshot struct {
	CartID     string         `bson:"_id"`
	UserID     string         `bson:"user_id"`
	Items      []SnapshotItem `bson:"items"`
	Subtotal   string         `bson:"subtotal"`
	Discount   string         `bson:"discount"`
	Total      string         `bson:"total"`
	CouponCode string         `bson:"coupon_code,omitempty"`
	PricedAt   time.Time      `bson:"priced_at"`
}

type SnapshotItem struct {
	LineItemID   string `bson:"line_item_id"`
	ProductID    int64  `bson:"product_id"`
	ProductName  string `bson:"product_name"`
	Quantity     int    `bson:"quantity"`
	UnitPrice    string `bson:"unit_price"`
	LineSubtotal string `bson:"line_subtotal"`
}

func FromPricedCart(p *domain.PricedCart) *Snapshot {
	items := make([]SnapshotItem, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, SnapshotItem{
			LineItemID:   it.ID,
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice.StringFixed(2),
			LineSubtotal: it.LineSubtotal.StringFixed(2),
		})
	}
	s := &Snapshot{
		CartID:   p.CartID,
		UserID:   p.UserID,
		Items:    items,
		Subtotal: p.Subtotal.StringFixed(2),
		Discount: p.Discount.StringFixed(2),
		Total:    p.TotalString(),
		PricedAt: p.PricedAt,
	}
	if p.CouponApplied {
		s.CouponCode = p.CouponCode
	}
	return s
}

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection("cart_snapshots")}
}

func (m *MongoStore) Save(ctx context.Context, cart *domain.PricedCart) error {
	snap := FromPricedCart(cart)
	filter := bson.M{"_id": snap.CartID}
	opts := options.Replace().SetUpsert(true)

	if _, err := m.collection.ReplaceOne(ctx, filter, snap, opts); err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

func (m *MongoStore) Get(ctx context.Context, cartID string) (*Snapshot, error) {
	var snap Snapshot
	err := m.collection.FindOne(ctx, bson.M{"_id": cartID}).Decode(&snap)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &snap, nil
}

func (m *MongoStore) Delete(ctx context.Context, cartID string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": cartID}); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
