package inventory

import (
	"context"

	domorder "github.com/kitewave/orderflow/internal/domain/order"
	domoutbox "github.com/kitewave/orderflow/internal/domain/outbox"
	"github.com/kitewave/orderflow/internal/observability"
)

// Worker wires the inventory participant into the event stream. It reserves
// stock on order.created and releases it again on order.failed.
type Worker struct {
	reserve    *ReserveStockUseCase
	release    *ReleaseStockUseCase
	subscriber domoutbox.Subscriber

	log           observability.Logger
	eventsHandled observability.Counter
}

func NewWorker(
	reserve *ReserveStockUseCase,
	release *ReleaseStockUseCase,
	subscriber domoutbox.Subscriber,
	tel observability.Telemetry,
) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		reserve:       reserve,
		release:       release,
		subscriber:    subscriber,
		log:           tel.Logger().With(observability.F("service", inventoryService)),
		eventsHandled: tel.Metrics().Counter(observability.MEventsHandled),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(domorder.OrderCreatedEvent{}.EventName(), w.handleOrderCreated)
	w.subscriber.Subscribe(domorder.OrderFailedEvent{}.EventName(), w.handleOrderFailed)
}

func (w *Worker) handleOrderCreated(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domorder.OrderCreatedEvent)
	if !ok {
		return nil
	}

	result, err := w.reserve.Execute(ctx, evt)
	switch {
	case err != nil && result != nil && !result.Reserved:
		// business rejection, order.failed already emitted
		w.count(e.EventName(), "rejected")
		return nil
	case err != nil:
		w.count(e.EventName(), "error")
		return err
	default:
		w.count(e.EventName(), "success")
		return nil
	}
}

func (w *Worker) handleOrderFailed(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domorder.OrderFailedEvent)
	if !ok {
		return nil
	}

	released, err := w.release.Execute(ctx, evt)
	if err != nil {
		w.count(e.EventName(), "error")
		return err
	}
	if released {
		w.count(e.EventName(), "released")
	} else {
		w.count(e.EventName(), "noop")
	}
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
