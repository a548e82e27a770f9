package inventory

import "context"

// Repository holds per-product stock. Reserve and Release on the same
// product id must be serialized by the implementation; Reserve checks and
// decrements in one indivisible step and returns the unit price on success.
type Repository interface {
	Reserve(ctx context.Context, productID string, quantity int) (unitPrice int64, err error)
	Release(ctx context.Context, productID string, quantity int) error
	Get(ctx context.Context, productID string) (*Item, error)
	Save(ctx context.Context, item *Item) error
}
