package payment

import (
	"context"

	dominv "github.com/kitewave/orderflow/internal/domain/inventory"
	domoutbox "github.com/kitewave/orderflow/internal/domain/outbox"
	"github.com/kitewave/orderflow/internal/observability"
)

// Worker subscribes the payment participant to inventory.reserved.
type Worker struct {
	charge     *ChargePaymentUseCase
	subscriber domoutbox.Subscriber

	log           observability.Logger
	eventsHandled observability.Counter
}

func NewWorker(
	charge *ChargePaymentUseCase,
	subscriber domoutbox.Subscriber,
	tel observability.Telemetry,
) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		charge:        charge,
		subscriber:    subscriber,
		log:           tel.Logger().With(observability.F("service", paymentService)),
		eventsHandled: tel.Metrics().Counter(observability.MEventsHandled),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(dominv.InventoryReservedEvent{}.EventName(), w.handleInventoryReserved)
}

func (w *Worker) handleInventoryReserved(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(dominv.InventoryReservedEvent)
	if !ok {
		return nil
	}

	result, err := w.charge.Execute(ctx, evt)
	switch {
	case err != nil && result != nil && result.FailureReason != "":
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

func (w *Worker) count(event, outcome string) {
	if w.eventsHandled != nil {
		w.eventsHandled.Add(1,
			observability.L("event", event),
			observability.L("outcome", outcome),
		)
	}
}
