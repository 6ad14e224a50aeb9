package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjod/go_cart/cart-pricing/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runRepositorySuite exercises a repository seeded with the demo catalog:
// users user-1..user-3, products 1..5 and the demo coupons.
func runRepositorySuite(t *testing.T, setup func(t *testing.T) *Repository) {
	t.Run("GetProduct", func(t *testing.T) {
		repo := setup(t)
		ctx := context.Background()

		p, err := repo.GetProduct(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Wireless Mouse", p.Name)
		assert.Equal(t, domain.DiscountPercentage, p.DiscountType)
		require.True(t, p.Price.Valid)
		assert.Equal(t, "100.00", p.Price.Decimal.StringFixed(2))
		assert.Equal(t, "10.00", p.DiscountValue.StringFixed(2))

		nullPriced, err := repo.GetProduct(ctx, 4)
		require.NoError(t, err)
		assert.False(t, nullPriced.Price.Valid)

		_, err = repo.GetProduct(ctx, 999)
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("UserExists", func(t *testing.T) {
		repo := setup(t)
		ctx := context.Background()

		ok, err := repo.UserExists(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.UserExists(ctx, "ghost")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("GetCouponByCode", func(t *testing.T) {
		repo := setup(t)
		ctx := context.Background()

		c, err := repo.GetCouponByCode(ctx, "SAVE20")
		require.NoError(t, err)
		assert.True(t, c.IsActive)
		assert.Nil(t, c.ValidFrom)
		assert.Nil(t, c.ValidTo)
		assert.Equal(t, "20.00", c.DiscountValue.StringFixed(2))

		byID, err := repo.GetCoupon(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "SAVE20", byID.Code)

		expired, err := repo.GetCouponByCode(ctx, "EXPIRED10")
		require.NoError(t, err)
		require.NotNil(t, expired.ValidTo)
		assert.Equal(t, 2020, expired.ValidTo.UTC().Year())

		_, err = repo.GetCouponByCode(ctx, "save20")
		assert.ErrorIs(t, err, ErrCouponNotFound)
	})

	t.Run("CreateCart_UniquePerUser", func(t *testing.T) {
		repo := setup(t)
		ctx := context.Background()

		cart := &domain.Cart{ID: uuid.NewString(), UserID: "user-1"}
		require.NoError(t, repo.CreateCart(ctx, cart))
		assert.Equal(t, domain.ZeroTotal, cart.Total)

		got, err := repo.GetCartByUser(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, cart.ID, got.ID)
		assert.Nil(t, got.CouponID)

		err = repo.CreateCart(ctx, &domain.Cart{ID: uuid.NewString(), UserID: "user-1"})
		assert.ErrorIs(t, err, ErrCartExists)

		_, err = repo.GetCart(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrCartNotFound)
	})

	t.Run("SaveCart_CompareAndSwap", func(t *testing.T) {
		repo := setup(t)
		ctx := context.Background()

		cart := &domain.Cart{ID: uuid.NewString(), UserID: "user-2"}
		require.NoError(t, repo.CreateCart(ctx, cart))

		coupon, err := repo.GetCouponByCode(ctx, "SAVE20")
		require.NoError(t, err)

		stale := *cart
		cart.CouponID = &coupon.ID
		cart.Total = "144.00"
		require.NoError(t, repo.SaveCart(ctx, cart))
		assert.Equal(t, int64(1), cart.Version)

		got, err := repo.GetCart(ctx, cart.ID)
		require.NoError(t, err)
		assert.Equal(t, "144.00", got.Total)
		require.NotNil(t, got.CouponID)
		assert.Equal(t, coupon.ID, *got.CouponID)

		stale.Total = "1.00"
		assert.ErrorIs(t, repo.SaveCart(ctx, &stale), ErrVersionConflict)

		missing := &domain.Cart{ID: uuid.NewString(), Total: domain.ZeroTotal}
		assert.ErrorIs(t, repo.SaveCart(ctx, missing), ErrCartNotFound)
	})

	t.Run("MergeLineItem_IncrementsQuantity", func(t *testing.T) {
		repo := setup(t)
		ctx := context.Background()

		cart := &domain.Cart{ID: uuid.NewString(), UserID: "user-1"}
		require.NoError(t, repo.CreateCart(ctx, cart))

		first, err := repo.MergeLineItem(ctx, &domain.LineItem{ID: uuid.NewString(), CartID: cart.ID, ProductID: 1, Quantity: 2})
		require.NoError(t, err)
		assert.Equal(t, 2, first.Quantity)

		second, err := repo.MergeLineItem(ctx, &domain.LineItem{ID: uuid.NewString(), CartID: cart.ID, ProductID: 1, Quantity: 3})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 5, second.Quantity)

		lines, err := repo.ListCartLines(ctx, cart.ID)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, 5, lines[0].Item.Quantity)
		assert.Equal(t, "Wireless Mouse", lines[0].Product.Name)
	})

	t.Run("LineItemUpdatesAndDeletes", func(t *testing.T) {
		repo := setup(t)
		ctx := context.Background()

		cart := &domain.Cart{ID: uuid.NewString(), UserID: "user-3"}
		require.NoError(t, repo.CreateCart(ctx, cart))
		a, err := repo.MergeLineItem(ctx, &domain.LineItem{ID: uuid.NewString(), CartID: cart.ID, ProductID: 2, Quantity: 1})
		require.NoError(t, err)
		_, err = repo.MergeLineItem(ctx, &domain.LineItem{ID: uuid.NewString(), CartID: cart.ID, ProductID: 3, Quantity: 1})
		require.NoError(t, err)

		require.NoError(t, repo.UpdateLineItemQuantity(ctx, a.ID, 7))
		got, err := repo.GetLineItem(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 7, got.Quantity)

		assert.ErrorIs(t, repo.UpdateLineItemQuantity(ctx, "missing", 1), ErrItemNotFound)
		assert.ErrorIs(t, repo.DeleteLineItem(ctx, "missing"), ErrItemNotFound)

		require.NoError(t, repo.DeleteLineItem(ctx, a.ID))
		_, err = repo.GetLineItem(ctx, a.ID)
		assert.ErrorIs(t, err, ErrItemNotFound)

		require.NoError(t, repo.DeleteLineItems(ctx, cart.ID))
		lines, err := repo.ListCartLines(ctx, cart.ID)
		require.NoError(t, err)
		assert.Empty(t, lines)
	})

	t.Run("DeleteCartByUser", func(t *testing.T) {
		repo := setup(t)
		ctx := context.Background()

		cart := &domain.Cart{ID: uuid.NewString(), UserID: "user-1"}
		require.NoError(t, repo.CreateCart(ctx, cart))
		_, err := repo.MergeLineItem(ctx, &domain.LineItem{ID: uuid.NewString(), CartID: cart.ID, ProductID: 2, Quantity: 1})
		require.NoError(t, err)

		deleted, err := repo.DeleteCartByUser(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, cart.ID, deleted.ID)

		_, err = repo.GetCartByUser(ctx, "user-1")
		assert.ErrorIs(t, err, ErrCartNotFound)

		_, err = repo.DeleteCartByUser(ctx, "user-1")
		assert.ErrorIs(t, err, ErrCartNotFound)
	})

	t.Run("InTx_RollsBackOnError", func(t *testing.T) {
		repo := setup(t)
		ctx := context.Background()
		errAbort := errors.New("abort")

		err := repo.InTx(ctx, func(tx CartRepository) error {
			if err := tx.CreateCart(ctx, &domain.Cart{ID: uuid.NewString(), UserID: "user-2"}); err != nil {
				return err
			}
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)

		_, err = repo.GetCartByUser(ctx, "user-2")
		assert.ErrorIs(t, err, ErrCartNotFound)
	})

	t.Run("Outbox", func(t *testing.T) {
		repo := setup(t)
		ctx := context.Background()

		for _, id := range []string{"cart-a", "cart-b"} {
			require.NoError(t, repo.AppendOutboxEvent(ctx, &domain.OutboxEvent{
				AggregateID: id,
				EventType:   domain.EventTypeCartPriced,
				Payload:     []byte(`{"cart_id":"` + id + `"}`),
			}))
		}

		events, err := repo.GetUnprocessedEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "cart-a", events[0].AggregateID)
		assert.JSONEq(t, `{"cart_id":"cart-a"}`, string(events[0].Payload))

		require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))
		assert.Error(t, repo.MarkEventAsProcessed(ctx, events[0].ID))

		events, err = repo.GetUnprocessedEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "cart-b", events[0].AggregateID)

		purged, err := repo.DeleteProcessedEvents(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), purged, "only processed events are purged")

		events, err = repo.GetUnprocessedEvents(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})
}
