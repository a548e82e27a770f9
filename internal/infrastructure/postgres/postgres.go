package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	product_id     TEXT NOT NULL,
	quantity       INT NOT NULL,
	amount         BIGINT NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	failure_reason TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS inventory (
	product_id TEXT PRIMARY KEY,
	quantity   INT NOT NULL CHECK (quantity >= 0),
	unit_price BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS payments (
	id         TEXT PRIMARY KEY,
	order_id   TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	amount     BIGINT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS payments_active_order
	ON payments (order_id) WHERE status <> 'FAILED';
`

// Connect opens a pool and makes sure the schema exists.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return pool, nil
}
