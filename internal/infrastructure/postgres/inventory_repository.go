package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/kitewave/orderflow/internal/domain/inventory"
)

type InventoryRepository struct {
	pool *pgxpool.Pool
}

func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// Reserve decrements stock in a single guarded UPDATE; the row lock plus
// the quantity predicate make the check-and-decrement atomic under
// concurrent callers.
func (r *InventoryRepository) Reserve(ctx context.Context, productID string, quantity int) (int64, error) {
	if quantity <= 0 {
		return 0, domain.ErrInvalidQuantity
	}

	var unitPrice int64
	err := r.pool.QueryRow(ctx, `
		UPDATE inventory SET quantity = quantity - $2, updated_at = now()
		WHERE product_id = $1 AND quantity >= $2
		RETURNING unit_price`, productID, quantity).Scan(&unitPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		// no row matched: either unknown product or not enough stock
		var have int
		lookupErr := r.pool.QueryRow(ctx,
			`SELECT quantity FROM inventory WHERE product_id = $1`, productID).Scan(&have)
		if errors.Is(lookupErr, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		if lookupErr != nil {
			return 0, lookupErr
		}
		return 0, domain.ErrInsufficientStock
	}
	if err != nil {
		return 0, err
	}
	return unitPrice, nil
}

func (r *InventoryRepository) Release(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE inventory SET quantity = quantity + $2, updated_at = now()
		WHERE product_id = $1`, productID, quantity)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *InventoryRepository) Get(ctx context.Context, productID string) (*domain.Item, error) {
	var item domain.Item
	err := r.pool.QueryRow(ctx, `
		SELECT product_id, quantity, unit_price, updated_at
		FROM inventory WHERE product_id = $1`, productID).
		Scan(&item.ProductID, &item.Quantity, &item.UnitPrice, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *InventoryRepository) Save(ctx context.Context, item *domain.Item) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inventory (product_id, quantity, unit_price, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (product_id) DO UPDATE SET quantity=$2, unit_price=$3, updated_at=$4`,
		item.ProductID, item.Quantity, item.UnitPrice, item.UpdatedAt)
	return err
}
