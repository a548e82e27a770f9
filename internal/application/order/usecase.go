package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/kitewave/orderflow/internal/domain/order"
	domoutbox "github.com/kitewave/orderflow/internal/domain/outbox"
	"github.com/kitewave/orderflow/internal/observability"
	"github.com/kitewave/orderflow/internal/observability/logctx"
)

const (
	orderService    = "order-service"
	useCaseSubmit   = "order.submit"
	spanPrefix      = "UC."
	publishPeer     = "bus"
	endpointCreated = "order.created"
	publishTimeout  = 300 * time.Millisecond
)

var (
	ErrNotFound   = domain.ErrNotFound
	ErrConflict   = domain.ErrConflict
	ErrValidation = errors.New("validation")
	ErrRepository = errors.New("order: repository failure")
)

// SubmitOrderUseCase accepts a new order, persists it in CREATED, and
// publishes the order.created event that starts the saga.
type SubmitOrderUseCase struct {
	repo        domain.Repository
	idGenerator IDGenerator
	publisher   domoutbox.Publisher
	tel         observability.Telemetry

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewSubmitOrderUseCase(
	repo domain.Repository,
	idGen IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Telemetry,
) *SubmitOrderUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()

	return &SubmitOrderUseCase{
		repo:         repo,
		idGenerator:  idGen,
		publisher:    publisher,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", orderService)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

type SubmitOrderInput struct {
	UserID    string
	ProductID string
	Quantity  int
}

type SubmitOrderResult struct {
	OrderID string
	Status  domain.Status
}

// Execute performs the order submission flow.
func (uc *SubmitOrderUseCase) Execute(ctx context.Context, cmd SubmitOrderInput) (_ *SubmitOrderResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(observability.F("use_case", useCaseSubmit))

	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+"SubmitOrder",
		attribute.String("use_case", useCaseSubmit),
		attribute.String("order.user_id", cmd.UserID),
		attribute.String("order.product_id", cmd.ProductID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var orderID string
	var publishErr error

	defer func() {
		lat := time.Since(start).Seconds()

		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, statusText)
			} else {
				span.SetStatus(codes.Ok, statusText)
			}
			span.End()
		}

		if uc.reqCounter != nil {
			uc.reqCounter.Add(1,
				observability.L("use_case", useCaseSubmit),
				observability.L("outcome", outcome),
			)
		}
		if uc.durHistogram != nil {
			uc.durHistogram.Observe(lat,
				observability.L("use_case", useCaseSubmit),
			)
		}

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if orderID != "" {
			fields = append(fields, observability.F("order_id", orderID))
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if publishErr != nil {
			fields = append(fields, observability.F("event_publish_error", publishErr.Error()))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}

		logger.Info("use_case_done", fields...)
	}()

	if cmd.UserID == "" {
		outcome, statusText = "error", "USER_ID_REQUIRED"
		return nil, newValidation("user id is required")
	}
	if cmd.ProductID == "" {
		outcome, statusText = "error", "PRODUCT_ID_REQUIRED"
		return nil, newValidation("product id is required")
	}
	if cmd.Quantity <= 0 {
		outcome, statusText = "error", "QUANTITY_INVALID"
		return nil, newValidation("quantity must be greater than zero")
	}
	if err := ctx.Err(); err != nil {
		outcome, statusText = "error", "CONTEXT_CANCELED"
		return nil, err
	}

	orderID = uc.idGenerator.NewID()
	entity, derr := domain.New(orderID, cmd.UserID, cmd.ProductID, cmd.Quantity)
	if derr != nil {
		outcome, statusText = "error", "DOMAIN_CONSTRUCTION_FAILED"
		return nil, fmt.Errorf("order: construct: %w", derr)
	}
	if err := uc.repo.Insert(ctx, entity); err != nil {
		outcome, statusText = "error", "REPO_INSERT_FAILED"
		return nil, wrapRepositoryError(err)
	}

	if uc.publisher != nil {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		pubStart := time.Now()
		pubOutcome := "success"

		publishErr = uc.publisher.Publish(pubCtx, domain.NewOrderCreatedEvent(entity))
		if publishErr != nil {
			pubOutcome = "error"
			statusText = "EVENT_PUBLISH_FAILED"
		}
		cancel()

		if uc.extCounter != nil {
			uc.extCounter.Add(1,
				observability.L("peer", publishPeer),
				observability.L("endpoint", endpointCreated),
				observability.L("outcome", pubOutcome),
			)
		}
		if uc.extHistogram != nil {
			uc.extHistogram.Observe(time.Since(pubStart).Seconds(),
				observability.L("peer", publishPeer),
				observability.L("endpoint", endpointCreated),
			)
		}
	}

	span.SetAttributes(attribute.String("order.status", string(entity.Status)))
	span.AddEvent("order.created",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)

	return &SubmitOrderResult{OrderID: entity.ID, Status: entity.Status}, nil
}

// Get returns the current order snapshot.
func (uc *SubmitOrderUseCase) Get(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, newValidation("order id is required")
	}
	return uc.repo.Get(ctx, id)
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, domain.ErrConflict):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}

func newValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
