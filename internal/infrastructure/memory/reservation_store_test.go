package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appinv "github.com/kitewave/orderflow/internal/application/inventory"
)

func TestMarkReservedKeepsFirstRecord(t *testing.T) {
	store := NewReservationStore()
	ctx := context.Background()

	require.NoError(t, store.MarkReserved(ctx, appinv.Reservation{OrderID: "o1", Quantity: 2}))
	require.NoError(t, store.MarkReserved(ctx, appinv.Reservation{OrderID: "o1", Quantity: 99}))

	res, found, err := store.Find(ctx, "o1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, res.Quantity)
}

func TestClaimReleaseIsClaimOnce(t *testing.T) {
	store := NewReservationStore()
	ctx := context.Background()

	require.NoError(t, store.MarkReserved(ctx, appinv.Reservation{OrderID: "o1", ProductID: "p1", Quantity: 2}))

	res, claimed, err := store.ClaimRelease(ctx, "o1")
	require.NoError(t, err)
	require.True(t, claimed)
	assert.Equal(t, "p1", res.ProductID)

	_, claimed, err = store.ClaimRelease(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, claimed)

	res, found, err := store.Find(ctx, "o1")
	require.NoError(t, err)
	require.True(t, found, "released reservation stays visible as a tombstone")
	assert.True(t, res.Released)
	assert.Equal(t, "p1", res.ProductID)
}

func TestClaimReleaseUnknownOrderLeavesTombstone(t *testing.T) {
	store := NewReservationStore()
	ctx := context.Background()

	_, claimed, err := store.ClaimRelease(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, claimed)

	res, found, err := store.Find(ctx, "missing")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, res.Released)

	// a reservation marked after the tombstone must not resurrect the order
	require.NoError(t, store.MarkReserved(ctx, appinv.Reservation{OrderID: "missing", Quantity: 1}))
	res, found, err = store.Find(ctx, "missing")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, res.Released)
}

func TestConcurrentClaimsYieldSingleWinner(t *testing.T) {
	store := NewReservationStore()
	ctx := context.Background()
	require.NoError(t, store.MarkReserved(ctx, appinv.Reservation{OrderID: "o1", Quantity: 1}))

	const claimers = 20
	var wg sync.WaitGroup
	wins := make(chan bool, claimers)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, claimed, err := store.ClaimRelease(ctx, "o1")
			assert.NoError(t, err)
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for claimed := range wins {
		if claimed {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}
