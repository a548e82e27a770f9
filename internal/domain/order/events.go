package order

import "time"

// OrderCreatedEvent is published when a new order is accepted. The inventory
// context reacts to it by attempting a reservation.
type OrderCreatedEvent struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	ProductID  string    `json:"product_id"`
	Quantity   int       `json:"quantity"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (OrderCreatedEvent) EventName() string  { return "order.created" }
func (e OrderCreatedEvent) EventKey() string { return e.OrderID }

func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		ProductID:  o.ProductID,
		Quantity:   o.Quantity,
		OccurredAt: time.Now().UTC(),
	}
}

// OrderFailedEvent is the saga's sole failure channel. Both the inventory and
// the payment contexts emit it; the order context marks the order FAILED and
// the inventory context releases any stock it reserved. ProductID and
// Quantity are informational; compensation is keyed by order id alone.
type OrderFailedEvent struct {
	OrderID    string    `json:"order_id"`
	ProductID  string    `json:"product_id,omitempty"`
	Quantity   int       `json:"quantity,omitempty"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (OrderFailedEvent) EventName() string  { return "order.failed" }
func (e OrderFailedEvent) EventKey() string { return e.OrderID }

func NewOrderFailedEvent(orderID, productID string, quantity int, reason string) OrderFailedEvent {
	return OrderFailedEvent{
		OrderID:    orderID,
		ProductID:  productID,
		Quantity:   quantity,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
