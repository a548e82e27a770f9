package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	dominv "github.com/kitewave/orderflow/internal/domain/inventory"
	domain "github.com/kitewave/orderflow/internal/domain/order"
	domoutbox "github.com/kitewave/orderflow/internal/domain/outbox"
	dompayment "github.com/kitewave/orderflow/internal/domain/payment"
	"github.com/kitewave/orderflow/internal/observability"
	"github.com/kitewave/orderflow/internal/observability/logctx"
)

const workerService = "order-worker"

// Worker is the order saga's state machine driver. It consumes the outcome
// events of the other participants and applies the corresponding transition
// to the owned Order. All handlers are idempotent: redelivered or stale
// events for terminal orders change nothing, and an unknown order id is
// reported without wedging the queue.
type Worker struct {
	repo       domain.Repository
	subscriber domoutbox.Subscriber

	log           observability.Logger
	eventsHandled observability.Counter // events_handled_total{event,outcome}
}

func NewWorker(
	repo domain.Repository,
	subscriber domoutbox.Subscriber,
	tel observability.Telemetry,
) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		repo:          repo,
		subscriber:    subscriber,
		log:           tel.Logger().With(observability.F("service", workerService)),
		eventsHandled: tel.Metrics().Counter(observability.MEventsHandled),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.repo == nil {
		return
	}
	w.subscriber.Subscribe(dominv.InventoryReservedEvent{}.EventName(), w.handleInventoryReserved)
	w.subscriber.Subscribe(dompayment.PaymentCompletedEvent{}.EventName(), w.handlePaymentCompleted)
	w.subscriber.Subscribe(domain.OrderFailedEvent{}.EventName(), w.handleOrderFailed)
}

func (w *Worker) handleInventoryReserved(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(dominv.InventoryReservedEvent)
	if !ok {
		return nil
	}
	return w.transition(ctx, e.EventName(), evt.OrderID, func(o *domain.Order) error {
		return o.InventoryReserved()
	})
}

func (w *Worker) handlePaymentCompleted(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(dompayment.PaymentCompletedEvent)
	if !ok {
		return nil
	}
	return w.transition(ctx, e.EventName(), evt.OrderID, func(o *domain.Order) error {
		return o.PaymentCompleted(evt.Amount)
	})
}

func (w *Worker) handleOrderFailed(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domain.OrderFailedEvent)
	if !ok {
		return nil
	}
	return w.transition(ctx, e.EventName(), evt.OrderID, func(o *domain.Order) error {
		return o.Failed(evt.Reason)
	})
}

// transition loads the order, applies the state change, and stores the
// result, logging one line per handled event.
func (w *Worker) transition(ctx context.Context, event, orderID string, apply func(*domain.Order) error) error {
	start := time.Now()
	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("event", event),
		observability.F("order_id", orderID),
	)

	order, err := w.repo.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// one bad event must not block the rest of the stream
			w.count(event, "not_found")
			logger.Warn("order_not_found")
			return nil
		}
		w.count(event, "error")
		return fmt.Errorf("order worker: load order: %w", err)
	}

	before := order.Status
	if err := apply(order); err != nil {
		w.count(event, "rejected")
		logger.Warn("order_state_transition_rejected",
			observability.F("status", string(before)),
			observability.F("error", err.Error()),
		)
		return nil
	}

	if order.Status == before {
		// idempotent replay, nothing to persist
		w.count(event, "noop")
		logger.Debug("event_replay_ignored",
			observability.F("status", string(order.Status)),
		)
		return nil
	}

	if err := w.repo.Update(ctx, order); err != nil {
		w.count(event, "error")
		return fmt.Errorf("order worker: update order: %w", err)
	}

	w.count(event, "success")
	logger.Info("order_transitioned",
		observability.F("from", string(before)),
		observability.F("to", string(order.Status)),
		observability.F("latency_seconds", time.Since(start).Seconds()),
	)
	return nil
}

func (w *Worker) count(event, outcome string) {
	if w.eventsHandled != nil {
		w.eventsHandled.Add(1,
			observability.L("event", event),
			observability.L("outcome", outcome),
		)
	}
}
