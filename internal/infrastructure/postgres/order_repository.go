package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/kitewave/orderflow/internal/domain/order"
)

const uniqueViolation = "23505"

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO orders (id, user_id, product_id, quantity, amount, status, failure_reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.UserID, o.ProductID, o.Quantity, o.Amount, o.Status, o.FailureReason, o.CreatedAt, o.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrConflict
	}
	return err
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, product_id, quantity, amount, status, failure_reason, created_at, updated_at
		FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.UserID, &o.ProductID, &o.Quantity, &o.Amount, &o.Status, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE orders SET amount=$2, status=$3, failure_reason=$4, updated_at=$5 WHERE id=$1`,
		o.ID, o.Amount, o.Status, o.FailureReason, o.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
