package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appinv "github.com/kitewave/orderflow/internal/application/inventory"
)

// ReservationStore keeps reservation records in Redis so multiple inventory
// workers share one claim-once view. SETNX keeps the first record on
// redelivery. Releases are claimed by SETNX on a marker key instead of
// deleting the record, so the reservation survives as a tombstone and a
// late duplicate order.created sees the order as already compensated.
type ReservationStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewReservationStore(rdb *redis.Client, ttl time.Duration) *ReservationStore {
	return &ReservationStore{rdb: rdb, ttl: ttl}
}

func key(orderID string) string {
	return fmt.Sprintf("reservation:%s", orderID)
}

func releasedKey(orderID string) string {
	return fmt.Sprintf("reservation:%s:released", orderID)
}

func (s *ReservationStore) MarkReserved(ctx context.Context, res appinv.Reservation) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("reservation store: marshal: %w", err)
	}
	if _, err := s.rdb.SetNX(ctx, key(res.OrderID), payload, s.ttl).Result(); err != nil {
		return fmt.Errorf("reservation store: setnx: %w", err)
	}
	return nil
}

func (s *ReservationStore) Find(ctx context.Context, orderID string) (appinv.Reservation, bool, error) {
	released, err := s.rdb.Exists(ctx, releasedKey(orderID)).Result()
	if err != nil {
		return appinv.Reservation{}, false, fmt.Errorf("reservation store: exists: %w", err)
	}

	raw, err := s.rdb.Get(ctx, key(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		if released > 0 {
			// release claimed before any reservation was recorded
			return appinv.Reservation{OrderID: orderID, Released: true}, true, nil
		}
		return appinv.Reservation{}, false, nil
	}
	if err != nil {
		return appinv.Reservation{}, false, fmt.Errorf("reservation store: get: %w", err)
	}
	var res appinv.Reservation
	if err := json.Unmarshal(raw, &res); err != nil {
		return appinv.Reservation{}, false, fmt.Errorf("reservation store: unmarshal: %w", err)
	}
	res.Released = released > 0
	return res, true, nil
}

func (s *ReservationStore) ClaimRelease(ctx context.Context, orderID string) (appinv.Reservation, bool, error) {
	claimed, err := s.rdb.SetNX(ctx, releasedKey(orderID), "1", s.ttl).Result()
	if err != nil {
		return appinv.Reservation{}, false, fmt.Errorf("reservation store: claim: %w", err)
	}
	if !claimed {
		return appinv.Reservation{}, false, nil
	}

	raw, err := s.rdb.Get(ctx, key(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		// nothing was reserved; the marker stays as a tombstone
		return appinv.Reservation{}, false, nil
	}
	if err != nil {
		return appinv.Reservation{}, false, fmt.Errorf("reservation store: get: %w", err)
	}
	var res appinv.Reservation
	if err := json.Unmarshal(raw, &res); err != nil {
		return appinv.Reservation{}, false, fmt.Errorf("reservation store: unmarshal: %w", err)
	}
	return res, true, nil
}
