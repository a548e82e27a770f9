package inventory

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("inventory: product not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

const (
	FailureReasonNotFound          = "product not found"
	FailureReasonInsufficientStock = "insufficient stock"
)

// Item is the per-product stock record. Quantity never goes below zero;
// the repository guarantees reserve/release on the same product id are
// mutually exclusive.
type Item struct {
	ProductID string
	Quantity  int
	UnitPrice int64
	UpdatedAt time.Time
}

func NewItem(productID string, quantity int, unitPrice int64) (*Item, error) {
	if quantity < 0 || unitPrice < 0 {
		return nil, ErrInvalidQuantity
	}
	return &Item{
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Reserve deducts quantity after checking availability. Callers must hold
// the per-product lock for the check and the deduction to be one step.
func (i *Item) Reserve(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > i.Quantity {
		return ErrInsufficientStock
	}
	i.Quantity -= quantity
	i.touch()
	return nil
}

// Release restores previously reserved quantity.
func (i *Item) Release(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	i.Quantity += quantity
	i.touch()
	return nil
}

func (i *Item) touch() {
	i.UpdatedAt = time.Now().UTC()
}

func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	clone := *i
	return &clone
}
