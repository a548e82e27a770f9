package payment

import (
	"context"
	"errors"
)

var (
	// ErrLimitExceeded is a business rejection; it is never retried.
	ErrLimitExceeded = errors.New("payment gateway: limit exceeded")
	// ErrGatewayUnavailable covers timeouts and transient outages; the
	// adapter may retry it a bounded number of times before giving up.
	ErrGatewayUnavailable = errors.New("payment gateway: unavailable")
)

// Gateway is the external charge service. Implementations must be
// cancellable through the context and resolve within the caller's deadline.
type Gateway interface {
	Charge(ctx context.Context, orderID, userID string, amount int64) (paymentID string, err error)
}
