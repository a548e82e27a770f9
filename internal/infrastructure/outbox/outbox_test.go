package outbox

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domoutbox "github.com/kitewave/orderflow/internal/domain/outbox"
)

type testEvent struct {
	name string
	key  string
	seq  int
}

func (e testEvent) EventName() string { return e.name }
func (e testEvent) EventKey() string  { return e.key }

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus(nil)
	done := make(chan domoutbox.Event, 1)

	bus.Subscribe("thing.happened", func(_ context.Context, e domoutbox.Event) error {
		done <- e
		return nil
	})
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "thing.happened", key: "k1"}))

	select {
	case e := <-done:
		assert.Equal(t, "thing.happened", e.EventName())
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestEventsWithSameKeyStayOrdered(t *testing.T) {
	bus := NewBus(nil, WithShards(4))

	const keys = 8
	const perKey = 50

	var mu sync.Mutex
	seen := make(map[string][]int)
	var wg sync.WaitGroup
	wg.Add(keys * perKey)

	bus.Subscribe("ordered.event", func(_ context.Context, e domoutbox.Event) error {
		evt := e.(testEvent)
		mu.Lock()
		seen[evt.key] = append(seen[evt.key], evt.seq)
		mu.Unlock()
		wg.Done()
		return nil
	})
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	for seq := 0; seq < perKey; seq++ {
		for k := 0; k < keys; k++ {
			key := fmt.Sprintf("order-%d", k)
			require.NoError(t, bus.Publish(context.Background(), testEvent{
				name: "ordered.event", key: key, seq: seq,
			}))
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, keys)
	for key, seqs := range seen {
		require.Len(t, seqs, perKey, "key %s", key)
		for i, seq := range seqs {
			assert.Equal(t, i, seq, "key %s delivered out of order", key)
		}
	}
}

func TestFanoutReachesAllSubscribers(t *testing.T) {
	bus := NewBus(nil)
	var wg sync.WaitGroup
	wg.Add(3)

	var mu sync.Mutex
	var order []string
	handler := func(id string) domoutbox.Handler {
		return func(_ context.Context, _ domoutbox.Event) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			wg.Done()
			return nil
		}
	}
	bus.Subscribe("fanout.event", handler("a"))
	bus.Subscribe("fanout.event", handler("b"))
	bus.Subscribe("fanout.event", handler("c"))
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "fanout.event", key: "k"}))
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, order, "handlers run sequentially in subscription order")
}

func TestHandlerPanicDoesNotKillShard(t *testing.T) {
	bus := NewBus(nil)
	delivered := make(chan struct{}, 1)

	bus.Subscribe("risky.event", func(_ context.Context, e domoutbox.Event) error {
		if e.(testEvent).seq == 0 {
			panic("boom")
		}
		delivered <- struct{}{}
		return nil
	})
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "risky.event", key: "k", seq: 0}))
	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "risky.event", key: "k", seq: 1}))

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("shard stopped dispatching after handler panic")
	}
}

func TestPublishAfterStop(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())
	bus.Stop(context.Background())

	err := bus.Publish(context.Background(), testEvent{name: "late.event", key: "k"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentPublishAndStop(t *testing.T) {
	bus := NewBus(nil, WithShards(2))
	bus.Subscribe("race.event", func(_ context.Context, _ domoutbox.Event) error {
		return nil
	})
	bus.Start(context.Background())

	// publishers keep sending while Stop closes the shards; a send must
	// either land or report context.Canceled, never panic
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; ; j++ {
				err := bus.Publish(context.Background(), testEvent{
					name: "race.event", key: fmt.Sprintf("k%d-%d", i, j),
				})
				if err != nil {
					assert.ErrorIs(t, err, context.Canceled)
					return
				}
			}
		}(i)
	}

	time.Sleep(5 * time.Millisecond)
	bus.Stop(context.Background())
	wg.Wait()
}

func TestStopDrainsInFlightEvents(t *testing.T) {
	bus := NewBus(nil)
	var mu sync.Mutex
	handled := 0

	bus.Subscribe("drain.event", func(_ context.Context, _ domoutbox.Event) error {
		mu.Lock()
		handled++
		mu.Unlock()
		return nil
	})
	bus.Start(context.Background())

	const total = 100
	for i := 0; i < total; i++ {
		require.NoError(t, bus.Publish(context.Background(), testEvent{name: "drain.event", key: fmt.Sprintf("k%d", i)}))
	}
	bus.Stop(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, total, handled)
}
