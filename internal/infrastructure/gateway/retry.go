package gateway

import (
	"context"
	"errors"
	"time"

	domain "github.com/kitewave/orderflow/internal/domain/payment"
	"github.com/kitewave/orderflow/internal/observability"
	"github.com/kitewave/orderflow/internal/observability/logctx"
)

// Retrying wraps a Gateway and retries transient failures with exponential
// backoff. Each attempt runs under its own timeout so a hung provider call
// resolves to ErrGatewayUnavailable instead of blocking the worker; business
// rejections (ErrLimitExceeded) surface immediately.
type Retrying struct {
	next           domain.Gateway
	maxAttempts    int
	backoff        time.Duration
	attemptTimeout time.Duration
	log            observability.Logger
}

func NewRetrying(next domain.Gateway, maxAttempts int, backoff, attemptTimeout time.Duration, logger observability.Logger) *Retrying {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Retrying{
		next:           next,
		maxAttempts:    maxAttempts,
		backoff:        backoff,
		attemptTimeout: attemptTimeout,
		log:            logger.With(observability.F("component", "payment_gateway")),
	}
}

func (r *Retrying) Charge(ctx context.Context, orderID, userID string, amount int64) (string, error) {
	var lastErr error
	delay := r.backoff

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		paymentID, err := r.attempt(ctx, orderID, userID, amount)
		if err == nil {
			return paymentID, nil
		}
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			return "", err
		}
		lastErr = err

		if attempt == r.maxAttempts || ctx.Err() != nil {
			break
		}
		logctx.FromOr(ctx, r.log).Warn("charge_retry",
			observability.F("order_id", orderID),
			observability.F("attempt", attempt),
			observability.F("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return "", lastErr
		case <-time.After(delay):
		}
		delay *= 2
	}
	return "", lastErr
}

func (r *Retrying) attempt(ctx context.Context, orderID, userID string, amount int64) (string, error) {
	if r.attemptTimeout <= 0 {
		return r.next.Charge(ctx, orderID, userID, amount)
	}
	actx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()
	return r.next.Charge(actx, orderID, userID, amount)
}
