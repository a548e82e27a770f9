package order

import (
	"errors"
	"time"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: already exists")
	ErrInvalidQuantity        = errors.New("order: quantity must be greater than zero")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
)

type Status string

const (
	StatusCreated           Status = "CREATED"
	StatusInventoryReserved Status = "INVENTORY_RESERVED"
	StatusPaymentCompleted  Status = "PAYMENT_COMPLETED"
	StatusCompleted         Status = "COMPLETED"
	StatusFailed            Status = "FAILED"
)

// Order is the saga's root entity. It is owned by the order context and
// mutated only through the state transitions below.
type Order struct {
	ID            string
	UserID        string
	ProductID     string
	Quantity      int
	Amount        int64
	Status        Status
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func New(id, userID, productID string, quantity int) (*Order, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	now := time.Now().UTC()
	return &Order{
		ID:        id,
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Terminal reports whether the order has converged and no further
// transitions may change it.
func (o *Order) Terminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusFailed
}

// InventoryReserved advances CREATED orders to INVENTORY_RESERVED. A stale
// or redelivered event arriving after the order already failed is a no-op.
func (o *Order) InventoryReserved() error {
	next, err := o.state().OnInventoryReserved(o)
	if err != nil {
		return err
	}
	o.apply(next)
	return nil
}

// PaymentCompleted records the captured payment amount and moves the order
// through PAYMENT_COMPLETED to its terminal COMPLETED status. Redelivery on
// an already completed order is a no-op.
func (o *Order) PaymentCompleted(amount int64) error {
	next, err := o.state().OnPaymentCompleted(o)
	if err != nil {
		return err
	}
	if amount > 0 && next.Status() == StatusPaymentCompleted {
		o.Amount = amount
	}
	o.apply(next)
	if o.Status == StatusPaymentCompleted {
		o.apply(completedState{})
	}
	return nil
}

// Failed moves any non-terminal order to FAILED, recording the reason.
// Already failed orders absorb redeliveries without change.
func (o *Order) Failed(reason string) error {
	next, err := o.state().OnFailed(o, reason)
	if err != nil {
		return err
	}
	o.apply(next)
	return nil
}

func (o *Order) apply(s orderState) {
	o.Status = s.Status()
	o.touch()
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}
