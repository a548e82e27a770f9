package payment

import "time"

// PaymentCompletedEvent is emitted when the gateway confirms a charge.
type PaymentCompletedEvent struct {
	OrderID    string    `json:"order_id"`
	PaymentID  string    `json:"payment_id"`
	Amount     int64     `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (PaymentCompletedEvent) EventName() string  { return "payment.completed" }
func (e PaymentCompletedEvent) EventKey() string { return e.OrderID }

func NewPaymentCompletedEvent(orderID, paymentID string, amount int64) PaymentCompletedEvent {
	return PaymentCompletedEvent{
		OrderID:    orderID,
		PaymentID:  paymentID,
		Amount:     amount,
		OccurredAt: time.Now().UTC(),
	}
}
