package inventory

import "time"

// InventoryReservedEvent is emitted when stock is successfully reserved for
// an order. Amount is quantity times the product's unit price and is what
// the payment context charges.
type InventoryReservedEvent struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	Amount     int64     `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (InventoryReservedEvent) EventName() string  { return "inventory.reserved" }
func (e InventoryReservedEvent) EventKey() string { return e.OrderID }

func NewInventoryReservedEvent(orderID, userID string, amount int64) InventoryReservedEvent {
	return InventoryReservedEvent{
		OrderID:    orderID,
		UserID:     userID,
		Amount:     amount,
		OccurredAt: time.Now().UTC(),
	}
}
