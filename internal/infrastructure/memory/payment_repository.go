package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/kitewave/orderflow/internal/domain/payment"
)

type PaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment
	byOrder  map[string]string
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		payments: make(map[string]*domain.Payment),
		byOrder:  make(map[string]string),
	}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.byOrder[p.OrderID]; ok {
		if existing, found := r.payments[existingID]; found && existing.Active() {
			return domain.ErrAlreadyCharged
		}
	}

	r.payments[p.ID] = p.Clone()
	r.byOrder[p.OrderID] = p.ID
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[p.ID]; !exists {
		return domain.ErrNotFound
	}

	r.payments[p.ID] = p.Clone()
	return nil
}

func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p, found := r.payments[id]
	if !found {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}
