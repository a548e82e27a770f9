package payment

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("payment: not found")
	ErrInvalidAmount  = errors.New("payment: amount must be greater than zero")
	ErrAlreadyCharged = errors.New("payment: order already has an active payment")
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Payment records one charge attempt. The PENDING row is written before the
// gateway call so a crash mid-call leaves a recoverable trace; at most one
// non-FAILED payment may exist per order id.
type Payment struct {
	ID        string
	OrderID   string
	UserID    string
	Amount    int64
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(id, orderID, userID string, amount int64) (*Payment, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	now := time.Now().UTC()
	return &Payment{
		ID:        id,
		OrderID:   orderID,
		UserID:    userID,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Active reports whether this payment blocks further charge attempts for
// its order.
func (p *Payment) Active() bool {
	return p.Status != StatusFailed
}

func (p *Payment) MarkCompleted() {
	p.Status = StatusCompleted
	p.touch()
}

func (p *Payment) MarkFailed() {
	p.Status = StatusFailed
	p.touch()
}

func (p *Payment) touch() {
	p.UpdatedAt = time.Now().UTC()
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
