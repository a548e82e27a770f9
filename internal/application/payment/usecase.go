package payment

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
	domain "github.com/kitewave/orderflow/internal/domain/payment"
	"github.com/kitewave/orderflow/internal/observability"
	"github.com/kitewave/orderflow/internal/observability/logctx"
)

const (
	paymentService    = "payment-service"
	useCaseCharge     = "payment.charge"
	spanPrefix        = "UC."
	publishPeer       = "bus"
	gatewayPeer       = "payment-gateway"
	endpointCompleted = "payment.completed"
	endpointFailed    = "order.failed"
	endpointCharge    = "charge"
	publishTimeout    = 300 * time.Millisecond
)

const (
	FailureReasonLimitExceeded      = "payment limit exceeded"
	FailureReasonGatewayUnavailable = "payment gateway unavailable"
)

// ChargeResult reports what one inventory.reserved event led to.
type ChargeResult struct {
	Charged       bool
	PaymentID     string
	FailureReason string
}

// ChargePaymentUseCase is the payment participant. On inventory.reserved it
// writes a PENDING payment, calls the gateway, and emits payment.completed
// or order.failed. The repository's active-payment constraint makes a
// redelivered event a no-op: at most one charge per order ever reaches the
// gateway.
type ChargePaymentUseCase struct {
	repo        domain.Repository
	gateway     domain.Gateway
	idGenerator IDGenerator
	publisher   domoutbox.Publisher
	tel         observability.Telemetry

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewChargePaymentUseCase(
	repo domain.Repository,
	gateway domain.Gateway,
	idGen IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Telemetry,
) *ChargePaymentUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()

	return &ChargePaymentUseCase{
		repo:         repo,
		gateway:      gateway,
		idGenerator:  idGen,
		publisher:    publisher,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", paymentService)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// Execute charges the amount reserved for one order.
func (uc *ChargePaymentUseCase) Execute(ctx context.Context, e dominv.InventoryReservedEvent) (_ *ChargeResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseCharge),
		observability.F("order_id", e.OrderID),
		observability.F("amount", e.Amount),
	)

	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+"ChargePayment",
		attribute.String("use_case", useCaseCharge),
		attribute.String("order.id", e.OrderID),
		attribute.Int64("payment.amount", e.Amount),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var failureReason string

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
				observability.L("use_case", useCaseCharge),
				observability.L("outcome", outcome),
			)
		}
		if uc.durHistogram != nil {
			uc.durHistogram.Observe(latency,
				observability.L("use_case", useCaseCharge),
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

	// Redelivery guard: if an active payment already exists for this order,
	// the charge either already happened or is in flight on another replica.
	if existing, findErr := uc.repo.FindByOrderID(ctx, e.OrderID); findErr != nil && !errors.Is(findErr, domain.ErrNotFound) {
		outcome, statusText = "error", "PAYMENT_LOOKUP_FAILED"
		return nil, fmt.Errorf("payment: lookup: %w", findErr)
	} else if findErr == nil && existing.Active() {
		statusText = "IDEMPOTENT_REPLAY"
		if existing.Status == domain.StatusCompleted {
			_ = uc.publish(ctx, endpointCompleted,
				domain.NewPaymentCompletedEvent(existing.OrderID, existing.ID, existing.Amount))
		}
		return &ChargeResult{Charged: existing.Status == domain.StatusCompleted, PaymentID: existing.ID}, nil
	}

	entity, newErr := domain.New(uc.idGenerator.NewID(), e.OrderID, e.UserID, e.Amount)
	if newErr != nil {
		outcome, statusText = "error", "AMOUNT_INVALID"
		return nil, fmt.Errorf("payment: construct: %w", newErr)
	}
	if insertErr := uc.repo.Insert(ctx, entity); insertErr != nil {
		if errors.Is(insertErr, domain.ErrAlreadyCharged) {
			// lost the race against a concurrent delivery
			statusText = "IDEMPOTENT_REPLAY"
			return &ChargeResult{Charged: false}, nil
		}
		outcome, statusText = "error", "REPO_INSERT_FAILED"
		return nil, fmt.Errorf("payment: insert: %w", insertErr)
	}

	providerRef, chargeErr := uc.charge(ctx, entity)
	if chargeErr != nil {
		entity.MarkFailed()
		if updateErr := uc.repo.Update(ctx, entity); updateErr != nil {
			logger.Error("payment_mark_failed",
				observability.F("payment_id", entity.ID),
				observability.F("error", updateErr.Error()),
			)
		}

		outcome, statusText = "error", "CHARGE_REJECTED"
		failureReason = failureReasonFromError(chargeErr)
		_ = uc.publish(ctx, endpointFailed,
			domorder.NewOrderFailedEvent(e.OrderID, "", 0, failureReason))
		return &ChargeResult{Charged: false, PaymentID: entity.ID, FailureReason: failureReason},
			fmt.Errorf("payment: charge: %w", chargeErr)
	}

	entity.MarkCompleted()
	if updateErr := uc.repo.Update(ctx, entity); updateErr != nil {
		outcome, statusText = "error", "REPO_UPDATE_FAILED"
		return nil, fmt.Errorf("payment: update: %w", updateErr)
	}

	if span != nil {
		span.AddEvent("payment.completed",
			trace.WithAttributes(
				attribute.String("payment.id", entity.ID),
				attribute.String("payment.provider_ref", providerRef),
			),
		)
	}

	if publishErr := uc.publish(ctx, endpointCompleted,
		domain.NewPaymentCompletedEvent(entity.OrderID, entity.ID, entity.Amount)); publishErr != nil {
		outcome, statusText = "error", "EVENT_PUBLISH_FAILED"
		return &ChargeResult{Charged: true, PaymentID: entity.ID},
			fmt.Errorf("payment: publish completed: %w", publishErr)
	}

	return &ChargeResult{Charged: true, PaymentID: entity.ID}, nil
}

// ErrValidation marks rejected input on the query path.
var ErrValidation = errors.New("validation")

// Find returns the latest payment recorded for an order.
func (uc *ChargePaymentUseCase) Find(ctx context.Context, orderID string) (*domain.Payment, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	return uc.repo.FindByOrderID(ctx, orderID)
}

// charge calls the gateway and records it as an external request.
func (uc *ChargePaymentUseCase) charge(ctx context.Context, p *domain.Payment) (string, error) {
	start := time.Now()
	ref, err := uc.gateway.Charge(ctx, p.OrderID, p.UserID, p.Amount)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	if uc.extCounter != nil {
		uc.extCounter.Add(1,
			observability.L("peer", gatewayPeer),
			observability.L("endpoint", endpointCharge),
			observability.L("outcome", outcome),
		)
	}
	if uc.extHistogram != nil {
		uc.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", gatewayPeer),
			observability.L("endpoint", endpointCharge),
		)
	}
	return ref, err
}

func (uc *ChargePaymentUseCase) publish(ctx context.Context, endpoint string, event domoutbox.Event) error {
	if uc.publisher == nil || event == nil {
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	start := time.Now()
	err := uc.publisher.Publish(pubCtx, event)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	cancel()

	if uc.extCounter != nil {
		uc.extCounter.Add(1,
			observability.L("peer", publishPeer),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
	}
	if uc.extHistogram != nil {
		uc.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", publishPeer),
			observability.L("endpoint", endpoint),
		)
	}
	return err
}

func failureReasonFromError(err error) string {
	switch {
	case errors.Is(err, domain.ErrLimitExceeded):
		return FailureReasonLimitExceeded
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return FailureReasonGatewayUnavailable
	default:
		return err.Error()
	}
}
