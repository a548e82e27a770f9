package payment

import "context"

type Repository interface {
	// Insert persists a new payment. It fails with ErrAlreadyCharged when a
	// non-FAILED payment already exists for the same order id.
	Insert(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
	FindByOrderID(ctx context.Context, orderID string) (*Payment, error)
}
