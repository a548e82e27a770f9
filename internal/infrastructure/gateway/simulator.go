package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/kitewave/orderflow/internal/domain/payment"
)

// Simulator stands in for the external payment provider. It sleeps for a
// bounded pseudo-random latency, then applies a deterministic policy:
// amounts at or above the configured limit are declined with
// ErrLimitExceeded, everything else succeeds. A context that expires during
// the simulated call resolves to ErrGatewayUnavailable, the same path a
// real provider outage would take.
type Simulator struct {
	mu         sync.Mutex
	random     *rand.Rand
	limit      int64
	minLatency time.Duration
	maxLatency time.Duration
}

func NewSimulator(limit int64, minLatency, maxLatency time.Duration) *Simulator {
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	return &Simulator{
		random:     rand.New(rand.NewSource(time.Now().UnixNano())),
		limit:      limit,
		minLatency: minLatency,
		maxLatency: maxLatency,
	}
}

func (s *Simulator) Charge(ctx context.Context, orderID, userID string, amount int64) (string, error) {
	_ = userID

	timer := time.NewTimer(s.latency())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, ctx.Err())
	case <-timer.C:
	}

	if amount >= s.limit {
		return "", fmt.Errorf("%w: order %s amount %d", domain.ErrLimitExceeded, orderID, amount)
	}
	return uuid.NewString(), nil
}

func (s *Simulator) latency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	spread := s.maxLatency - s.minLatency
	if spread <= 0 {
		return s.minLatency
	}
	return s.minLatency + time.Duration(s.random.Int63n(int64(spread)))
}
