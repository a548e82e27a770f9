package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/kitewave/orderflow/internal/domain/payment"
)

func TestSimulatorChargeBelowLimit(t *testing.T) {
	sim := NewSimulator(50000, time.Millisecond, 2*time.Millisecond)

	ref, err := sim.Charge(context.Background(), "order-1", "user-1", 49999)
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
}

func TestSimulatorDeclinesAtLimit(t *testing.T) {
	sim := NewSimulator(50000, time.Millisecond, 2*time.Millisecond)

	_, err := sim.Charge(context.Background(), "order-1", "user-1", 50000)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)

	_, err = sim.Charge(context.Background(), "order-1", "user-1", 60000)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)
}

func TestSimulatorExpiredContextIsUnavailable(t *testing.T) {
	sim := NewSimulator(50000, 500*time.Millisecond, 500*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := sim.Charge(ctx, "order-1", "user-1", 100)
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
