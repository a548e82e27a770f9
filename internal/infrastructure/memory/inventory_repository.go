package memory

import (
	"context"
	"sync"

	domain "github.com/kitewave/orderflow/internal/domain/inventory"
)

// InventoryRepository keeps stock in memory. The store mutex makes the
// check-and-decrement in Reserve one indivisible step, so two orders racing
// for the last unit can never both succeed.
type InventoryRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.Item
}

func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{
		items: make(map[string]*domain.Item),
	}
}

func (r *InventoryRepository) Reserve(ctx context.Context, productID string, quantity int) (int64, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[productID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if err := item.Reserve(quantity); err != nil {
		return 0, err
	}
	return item.UnitPrice, nil
}

func (r *InventoryRepository) Release(ctx context.Context, productID string, quantity int) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[productID]
	if !ok {
		return domain.ErrNotFound
	}
	return item.Release(quantity)
}

func (r *InventoryRepository) Get(ctx context.Context, productID string) (*domain.Item, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return item.Clone(), nil
}

func (r *InventoryRepository) Save(ctx context.Context, item *domain.Item) error {
	_ = ctx
	if item == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[item.ProductID] = item.Clone()
	return nil
}
