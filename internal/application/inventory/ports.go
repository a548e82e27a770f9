package inventory

import (
	"context"
	"time"
)

// Reservation is the participant's own record of stock it reserved for an
// order. It is what makes the participant idempotent: a record means the
// order was already handled, and a released record means compensation ran
// too. Released records stay behind as tombstones so a late duplicate
// order.created cannot re-reserve stock for a terminal order.
type Reservation struct {
	OrderID    string    `json:"order_id"`
	ProductID  string    `json:"product_id"`
	Quantity   int       `json:"quantity"`
	UserID     string    `json:"user_id"`
	Amount     int64     `json:"amount"`
	ReservedAt time.Time `json:"reserved_at"`
	Released   bool      `json:"released"`
}

type ReservationStore interface {
	// MarkReserved records a successful reservation. Re-marking the same
	// order id keeps the first record.
	MarkReserved(ctx context.Context, res Reservation) error
	// Find returns the reservation for an order id if one exists,
	// released tombstones included.
	Find(ctx context.Context, orderID string) (Reservation, bool, error)
	// ClaimRelease atomically marks the reservation released and returns
	// it. The second claim for the same order id reports false, so a
	// redelivered failure event releases stock at most once. A claim with
	// no prior reservation leaves a released tombstone and reports false.
	ClaimRelease(ctx context.Context, orderID string) (Reservation, bool, error)
}
