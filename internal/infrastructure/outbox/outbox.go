package outbox

import (
	"context"
	"hash/fnv"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	domoutbox "github.com/kitewave/orderflow/internal/domain/outbox"
	"github.com/kitewave/orderflow/internal/observability"
	"github.com/kitewave/orderflow/internal/observability/logctx"
)

const componentOutbox = "outbox"

// Bus is an in-memory event bus suitable for single-process deployments and
// tests. Events are routed to a fixed shard by their key and each shard
// dispatches serially, so events for the same order are never handled
// concurrently while unrelated orders proceed in parallel. It is not
// durable; for cross-process delivery use the kafka bus.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string][]domoutbox.Handler
	shards    []chan domoutbox.Event
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	stopped   atomic.Bool
	cancel    context.CancelFunc

	// pubMu serializes shard sends against the close in Stop. It is
	// separate from mu: fanout holds mu while a publisher may be blocked
	// on a full shard, and a pending writer would stall both.
	pubMu sync.RWMutex

	handlerTimeout time.Duration
	log            observability.Logger
}

type Option func(*Bus)

// WithHandlerTimeout bounds how long a single handler may run per event.
func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Bus) { b.handlerTimeout = d }
}

// WithShards sets how many ordered dispatch lanes the bus keeps.
func WithShards(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.shards = make([]chan domoutbox.Event, n)
		}
	}
}

func NewBus(logger observability.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = observability.NopLogger()
	}
	b := &Bus{
		subs:           make(map[string][]domoutbox.Handler),
		shards:         make([]chan domoutbox.Event, 8),
		handlerTimeout: 30 * time.Second,
		log:            logger.With(observability.F("component", componentOutbox)),
	}
	for _, opt := range opts {
		opt(b)
	}
	for i := range b.shards {
		b.shards[i] = make(chan domoutbox.Event, 256) // buffer for backpressure
	}
	return b
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
		b.cancel = cancel
		for _, shard := range b.shards {
			b.wg.Add(1)
			go b.dispatchLoop(bg, shard)
		}
		logctx.FromOr(ctx, b.log).Info("event_bus_started",
			observability.F("shards", len(b.shards)),
		)
	})
}

// Stop closes the queues and waits for in-flight events to drain.
func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		b.pubMu.Lock()
		b.stopped.Store(true)
		for _, shard := range b.shards {
			close(shard)
		}
		b.pubMu.Unlock()
		b.wg.Wait()
		if b.cancel != nil {
			b.cancel()
		}
		logctx.FromOr(ctx, b.log).Info("event_bus_stopped")
	})
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	b.pubMu.RLock()
	defer b.pubMu.RUnlock()
	if b.stopped.Load() {
		return context.Canceled
	}
	shard := b.shards[b.shardIndex(e)]
	select {
	case shard <- e:
		logctx.FromOr(ctx, b.log).Debug("event_enqueued",
			observability.F("event", e.EventName()),
		)
		return nil
	case <-ctx.Done():
		logctx.FromOr(ctx, b.log).Warn("event_enqueue_aborted",
			observability.F("event", e.EventName()),
			observability.F("error", ctx.Err()),
		)
		return ctx.Err()
	}
}

// shardIndex hashes the event key so all events for one order land on the
// same lane. Unkeyed events fall back to the event name.
func (b *Bus) shardIndex(e domoutbox.Event) int {
	key := e.EventName()
	if keyed, ok := e.(domoutbox.Keyed); ok && keyed.EventKey() != "" {
		key = keyed.EventKey()
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(b.shards)))
}

func (b *Bus) dispatchLoop(ctx context.Context, shard <-chan domoutbox.Event) {
	defer b.wg.Done()
	for e := range shard {
		b.fanout(ctx, e)
	}
}

func (b *Bus) fanout(ctx context.Context, e domoutbox.Event) {
	name := e.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.log.Debug("event_dropped_no_subscriber",
			observability.F("event", name),
		)
		return
	}

	// Handlers run sequentially: per-key ordering must hold even when the
	// same event feeds several subscribers.
	for _, h := range handlers {
		b.invoke(ctx, name, e, h)
	}

	b.log.Debug("event_fanned_out",
		observability.F("event", name),
		observability.F("handlers", len(handlers)),
	)
}

func (b *Bus) invoke(ctx context.Context, name string, e domoutbox.Event, h domoutbox.Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event_handler_panic",
				observability.F("event", name),
				observability.F("panic", r),
				observability.F("stack", string(debug.Stack())),
			)
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
	defer cancel()
	hctx = logctx.With(hctx, b.log.With(observability.F("event", name)))

	if err := h(hctx, e); err != nil {
		b.log.Warn("event_handler_error",
			observability.F("event", name),
			observability.F("error", err),
		)
	}
}
