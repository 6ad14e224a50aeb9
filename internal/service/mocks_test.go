package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/fjod/go_cart/cart-pricing/internal/cache"
	"github.com/fjod/go_cart/cart-pricing/internal/domain"
	"github.com/fjod/go_cart/cart-pricing/internal/repository"
	"github.com/fjod/go_cart/cart-pricing/internal/snapshot"
)

type mockCache struct {
	m       sync.RWMutex
	carts   map[string]*domain.PricedCart
	deleted []string
	err     error
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.PricedCart)}
}

func (m *mockCache) Get(_ context.Context, userID string) (*domain.PricedCart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	cart, ok := m.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart, nil
}

func (m *mockCache) Set(_ context.Context, userID string, cart *domain.PricedCart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.carts[userID] = cart
	return nil
}

func (m *mockCache) Delete(_ context.Context, userID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deleted = append(m.deleted, userID)
	delete(m.carts, userID)
	return m.err
}

func (m *mockCache) cached(userID string) (*domain.PricedCart, bool) {
	m.m.RLock()
	defer m.m.RUnlock()
	cart, ok := m.carts[userID]
	return cart, ok
}

func (m *mockCache) deletedKeys() []string {
	m.m.RLock()
	defer m.m.RUnlock()
	return append([]string(nil), m.deleted...)
}

// blockingCache holds every Set until release is closed.
type blockingCache struct {
	*mockCache
	setStarted chan struct{}
	release    chan struct{}
	once       sync.Once
	sets       atomic.Int32
}

func newBlockingCache() *blockingCache {
	return &blockingCache{
		mockCache:  newMockCache(),
		setStarted: make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (b *blockingCache) Set(ctx context.Context, userID string, cart *domain.PricedCart) error {
	b.once.Do(func() { close(b.setStarted) })
	<-b.release
	err := b.mockCache.Set(ctx, userID, cart)
	b.sets.Add(1)
	return err
}

// mockSnapshotStore implements snapshot.Store for testing
type mockSnapshotStore struct {
	m     sync.Mutex
	saved map[string]*domain.PricedCart
	err   error
}

func newMockSnapshotStore() *mockSnapshotStore {
	return &mockSnapshotStore{saved: make(map[string]*domain.PricedCart)}
}

func (m *mockSnapshotStore) Save(_ context.Context, cart *domain.PricedCart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved[cart.CartID] = cart
	return nil
}

func (m *mockSnapshotStore) Get(_ context.Context, cartID string) (*snapshot.Snapshot, error) {
	m.m.Lock()
	defer m.m.Unlock()
	cart, ok := m.saved[cartID]
	if !ok {
		return nil, snapshot.ErrSnapshotNotFound
	}
	return snapshot.FromPricedCart(cart), nil
}

func (m *mockSnapshotStore) Delete(_ context.Context, cartID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.saved, cartID)
	return m.err
}

// conflictingRepository fails the first conflicts SaveCart calls with a
// version conflict, as a concurrent writer would.
type conflictingRepository struct {
	repository.CartRepository
	m         sync.Mutex
	conflicts int
	saves     int
}

func (c *conflictingRepository) InTx(ctx context.Context, fn func(tx repository.CartRepository) error) error {
	return c.CartRepository.InTx(ctx, func(tx repository.CartRepository) error {
		return fn(&conflictingTx{CartRepository: tx, parent: c})
	})
}

type conflictingTx struct {
	repository.CartRepository
	parent *conflictingRepository
}

func (t *conflictingTx) SaveCart(ctx context.Context, cart *domain.Cart) error {
	t.parent.m.Lock()
	t.parent.saves++
	conflict := t.parent.saves <= t.parent.conflicts
	t.parent.m.Unlock()
	if conflict {
		return repository.ErrVersionConflict
	}
	return t.CartRepository.SaveCart(ctx, cart)
}

var errDatabaseDown = errors.New("database is down")

// brokenRepository fails every transaction.
type brokenRepository struct {
	repository.CartRepository
}

func (brokenRepository) InTx(context.Context, func(tx repository.CartRepository) error) error {
	return errDatabaseDown
}

func (brokenRepository) DeleteCartByUser(context.Context, string) (*domain.Cart, error) {
	return nil, errDatabaseDown
}
