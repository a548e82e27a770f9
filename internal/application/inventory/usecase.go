package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dominv "github.com/kitewave/orderflow/internal/domain/inventory"
	domorder "github.com/kitewave/orderflow/internal/domain/order"
	domoutbox "github.com/kitewave/orderflow/internal/domain/outbox"
	"github.com/kitewave/orderflow/internal/observability"
	"github.com/kitewave/orderflow/internal/observability/logctx"
)

const (
	inventoryService    = "inventory-service"
	useCaseReserve      = "inventory.reserve"
	useCaseRelease      = "inventory.release"
	spanPrefix          = "UC."
	publishPeer         = "bus"
	endpointReserved    = "inventory.reserved"
	endpointOrderFailed = "order.failed"
	publishTimeout      = 300 * time.Millisecond
)

// ReservationResult exposes the outcome of the reservation attempt.
type ReservationResult struct {
	Reserved      bool
	Amount        int64
	FailureReason string
}

// ReserveStockUseCase reacts to order.created: it atomically deducts stock,
// records its own reservation for later compensation, and emits either
// inventory.reserved (amount = quantity x unit price) or order.failed.
type ReserveStockUseCase struct {
	invRepo   dominv.Repository
	store     ReservationStore
	publisher domoutbox.Publisher
	tel       observability.Telemetry

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewReserveStockUseCase(
	invRepo dominv.Repository,
	store ReservationStore,
	publisher domoutbox.Publisher,
	tel observability.Telemetry,
) *ReserveStockUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()

	return &ReserveStockUseCase{
		invRepo:      invRepo,
		store:        store,
		publisher:    publisher,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", inventoryService)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// Execute attempts the reservation for one order.created event.
func (uc *ReserveStockUseCase) Execute(ctx context.Context, e domorder.OrderCreatedEvent) (_ *ReservationResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseReserve),
		observability.F("order_id", e.OrderID),
		observability.F("product_id", e.ProductID),
		observability.F("quantity", e.Quantity),
	)

	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+"ReserveStock",
		attribute.String("use_case", useCaseReserve),
		attribute.String("order.id", e.OrderID),
		attribute.String("product.id", e.ProductID),
		attribute.Int("order.quantity", e.Quantity),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var failureReason string
	result := &ReservationResult{Reserved: true}

	defer func() {
		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, statusText)
			} else {
				span.SetStatus(codes.Ok, statusText)
			}
			span.End()
		}

		latency := time.Since(start).Seconds()
		if uc.reqCounter != nil {
			uc.reqCounter.Add(1,
				observability.L("use_case", useCaseReserve),
				observability.L("outcome", outcome),
			)
		}
		if uc.durHistogram != nil {
			uc.durHistogram.Observe(latency,
				observability.L("use_case", useCaseReserve),
			)
		}

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", latency),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if failureReason != "" {
			fields = append(fields, observability.F("failure_reason", failureReason))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	// A redelivered order.created must not deduct stock twice. Re-derive
	// the success event from the recorded reservation instead. A released
	// record means compensation already ran for this order, so the
	// duplicate must not touch stock or emit anything.
	if existing, found, lookupErr := uc.store.Find(ctx, e.OrderID); lookupErr != nil {
		outcome, statusText = "error", "RESERVATION_LOOKUP_FAILED"
		return nil, fmt.Errorf("inventory: reservation lookup: %w", lookupErr)
	} else if found && existing.Released {
		statusText = "ALREADY_COMPENSATED"
		result.Reserved = false
		return result, nil
	} else if found {
		statusText = "IDEMPOTENT_REPLAY"
		result.Amount = existing.Amount
		_ = uc.publish(ctx, endpointReserved,
			dominv.NewInventoryReservedEvent(existing.OrderID, existing.UserID, existing.Amount))
		return result, nil
	}

	unitPrice, reserveErr := uc.invRepo.Reserve(ctx, e.ProductID, e.Quantity)
	if reserveErr != nil {
		outcome, statusText = "error", "RESERVE_FAILED"
		failureReason = failureReasonFromError(reserveErr)
		result.Reserved = false
		result.FailureReason = failureReason
		_ = uc.publish(ctx, endpointOrderFailed,
			domorder.NewOrderFailedEvent(e.OrderID, e.ProductID, e.Quantity, failureReason))
		return result, fmt.Errorf("inventory: reserve: %w", reserveErr)
	}

	amount := int64(e.Quantity) * unitPrice
	result.Amount = amount

	if err := uc.store.MarkReserved(ctx, Reservation{
		OrderID:    e.OrderID,
		ProductID:  e.ProductID,
		Quantity:   e.Quantity,
		UserID:     e.UserID,
		Amount:     amount,
		ReservedAt: time.Now().UTC(),
	}); err != nil {
		outcome, statusText = "error", "RESERVATION_RECORD_FAILED"
		return result, fmt.Errorf("inventory: record reservation: %w", err)
	}

	if span != nil {
		span.AddEvent("inventory.reserved",
			trace.WithAttributes(
				attribute.String("order.id", e.OrderID),
				attribute.Int64("order.amount", amount),
			),
		)
	}

	if publishErr := uc.publish(ctx, endpointReserved,
		dominv.NewInventoryReservedEvent(e.OrderID, e.UserID, amount)); publishErr != nil {
		outcome, statusText = "error", "EVENT_PUBLISH_FAILED"
		return result, fmt.Errorf("inventory: publish reserved: %w", publishErr)
	}

	return result, nil
}

func (uc *ReserveStockUseCase) publish(ctx context.Context, endpoint string, event domoutbox.Event) error {
	return publishMetered(ctx, uc.publisher, endpoint, event, uc.extCounter, uc.extHistogram)
}

// ReleaseStockUseCase is the compensation half of the participant. It reacts
// to order.failed and restores the stock this participant reserved earlier.
// The claim-once reservation store keys the release by order id, so a
// failure before reservation is a no-op and a redelivered failure event
// releases nothing twice.
type ReleaseStockUseCase struct {
	invRepo dominv.Repository
	store   ReservationStore
	tel     observability.Telemetry

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewReleaseStockUseCase(
	invRepo dominv.Repository,
	store ReservationStore,
	tel observability.Telemetry,
) *ReleaseStockUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()

	return &ReleaseStockUseCase{
		invRepo:      invRepo,
		store:        store,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", inventoryService)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
	}
}

// Execute releases the reservation held for the failed order, if any.
func (uc *ReleaseStockUseCase) Execute(ctx context.Context, e domorder.OrderFailedEvent) (released bool, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseRelease),
		observability.F("order_id", e.OrderID),
	)

	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+"ReleaseStock",
		attribute.String("use_case", useCaseRelease),
		attribute.String("order.id", e.OrderID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, statusText)
			} else {
				span.SetStatus(codes.Ok, statusText)
			}
			span.End()
		}

		latency := time.Since(start).Seconds()
		if uc.reqCounter != nil {
			uc.reqCounter.Add(1,
				observability.L("use_case", useCaseRelease),
				observability.L("outcome", outcome),
			)
		}
		if uc.durHistogram != nil {
			uc.durHistogram.Observe(latency,
				observability.L("use_case", useCaseRelease),
			)
		}

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("released", released),
			observability.F("latency_seconds", latency),
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	res, claimed, claimErr := uc.store.ClaimRelease(ctx, e.OrderID)
	if claimErr != nil {
		outcome, statusText = "error", "CLAIM_FAILED"
		return false, fmt.Errorf("inventory: claim release: %w", claimErr)
	}
	if !claimed {
		// failed before reservation, or compensation already ran
		statusText = "NOTHING_TO_RELEASE"
		return false, nil
	}

	if releaseErr := uc.invRepo.Release(ctx, res.ProductID, res.Quantity); releaseErr != nil {
		outcome, statusText = "error", "RELEASE_FAILED"
		return false, fmt.Errorf("inventory: release: %w", releaseErr)
	}

	if span != nil {
		span.AddEvent("inventory.released",
			trace.WithAttributes(
				attribute.String("order.id", e.OrderID),
				attribute.String("product.id", res.ProductID),
				attribute.Int("order.quantity", res.Quantity),
			),
		)
	}
	return true, nil
}

func failureReasonFromError(err error) string {
	switch {
	case errors.Is(err, dominv.ErrNotFound):
		return dominv.FailureReasonNotFound
	case errors.Is(err, dominv.ErrInsufficientStock):
		return dominv.FailureReasonInsufficientStock
	default:
		return err.Error()
	}
}

func publishMetered(
	ctx context.Context,
	publisher domoutbox.Publisher,
	endpoint string,
	event domoutbox.Event,
	extCounter observability.Counter,
	extHistogram observability.Histogram,
) error {
	if publisher == nil || event == nil {
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	start := time.Now()
	err := publisher.Publish(pubCtx, event)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	cancel()

	if extCounter != nil {
		extCounter.Add(1,
			observability.L("peer", publishPeer),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
	}
	if extHistogram != nil {
		extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", publishPeer),
			observability.L("endpoint", endpoint),
		)
	}
	return err
}
