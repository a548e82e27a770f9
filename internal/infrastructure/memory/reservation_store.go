package memory

import (
	"context"
	"sync"

	appinv "github.com/kitewave/orderflow/internal/application/inventory"
)

type ReservationStore struct {
	mu           sync.Mutex
	reservations map[string]appinv.Reservation
}

func NewReservationStore() *ReservationStore {
	return &ReservationStore{
		reservations: make(map[string]appinv.Reservation),
	}
}

func (s *ReservationStore) MarkReserved(ctx context.Context, res appinv.Reservation) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reservations[res.OrderID]; exists {
		return nil
	}
	s.reservations[res.OrderID] = res
	return nil
}

func (s *ReservationStore) Find(ctx context.Context, orderID string) (appinv.Reservation, bool, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[orderID]
	return res, ok, nil
}

func (s *ReservationStore) ClaimRelease(ctx context.Context, orderID string) (appinv.Reservation, bool, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[orderID]
	if ok && res.Released {
		return appinv.Reservation{}, false, nil
	}
	if !ok {
		// failure before any reservation: leave a tombstone so a late
		// duplicate order.created cannot reserve for a terminal order
		s.reservations[orderID] = appinv.Reservation{OrderID: orderID, Released: true}
		return appinv.Reservation{}, false, nil
	}
	claimed := res
	res.Released = true
	s.reservations[orderID] = res
	return claimed, true, nil
}
