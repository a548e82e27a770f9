package kafkabus

import (
	"encoding/json"
	"fmt"

	dominv "github.com/kitewave/orderflow/internal/domain/inventory"
	domorder "github.com/kitewave/orderflow/internal/domain/order"
	domoutbox "github.com/kitewave/orderflow/internal/domain/outbox"
	dompayment "github.com/kitewave/orderflow/internal/domain/payment"
)

// Codec turns typed saga events into kafka payloads and back. Decoding is
// driven by the event name carried in the message header, so each topic can
// stay schema-stable while the Go types evolve.
type Codec struct {
	decoders map[string]func([]byte) (domoutbox.Event, error)
}

func NewCodec() *Codec {
	c := &Codec{decoders: make(map[string]func([]byte) (domoutbox.Event, error))}
	register[domorder.OrderCreatedEvent](c)
	register[domorder.OrderFailedEvent](c)
	register[dominv.InventoryReservedEvent](c)
	register[dompayment.PaymentCompletedEvent](c)
	return c
}

func register[E domoutbox.Event](c *Codec) {
	var zero E
	c.decoders[zero.EventName()] = func(payload []byte) (domoutbox.Event, error) {
		var e E
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	}
}

func (c *Codec) Encode(e domoutbox.Event) ([]byte, error) {
	return json.Marshal(e)
}

func (c *Codec) Decode(eventName string, payload []byte) (domoutbox.Event, error) {
	decode, ok := c.decoders[eventName]
	if !ok {
		return nil, fmt.Errorf("kafkabus: unknown event %q", eventName)
	}
	return decode(payload)
}
