package kafkabus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	domoutbox "github.com/kitewave/orderflow/internal/domain/outbox"
	"github.com/kitewave/orderflow/internal/observability"
	"github.com/kitewave/orderflow/internal/observability/logctx"
)

const (
	headerEventType     = "event_type"
	defaultRetryBackoff = time.Second
)

// Bus is a kafka-backed implementation of the event bus contracts. Topics
// are the event names; messages are keyed by the event key so kafka's
// per-partition ordering serializes events for the same order. Delivery is
// at-least-once: offsets commit after the handlers ran, and the handlers
// are written to absorb redelivery.
type Bus struct {
	mu           sync.RWMutex
	subs         map[string][]domoutbox.Handler
	brokers      []string
	group        string
	codec        *Codec
	writer       *kafka.Writer
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	log          observability.Logger
	retryBackoff time.Duration
}

func New(logger observability.Logger, brokers []string, group string) *Bus {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Bus{
		subs:         make(map[string][]domoutbox.Handler),
		brokers:      brokers,
		group:        group,
		codec:        NewCodec(),
		retryBackoff: defaultRetryBackoff,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		log: logger.With(observability.F("component", "kafkabus")),
	}
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	payload, err := b.codec.Encode(e)
	if err != nil {
		return fmt.Errorf("kafkabus: encode %s: %w", e.EventName(), err)
	}

	msg := kafka.Message{
		Topic: e.EventName(),
		Value: payload,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(e.EventName())},
		},
	}
	if keyed, ok := e.(domoutbox.Keyed); ok {
		msg.Key = []byte(keyed.EventKey())
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafkabus: write %s: %w", e.EventName(), err)
	}
	return nil
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

// Start spawns one consumer loop per subscribed topic. Call after all
// Subscribe registrations.
func (b *Bus) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel

	b.mu.RLock()
	topics := make([]string, 0, len(b.subs))
	for topic := range b.subs {
		topics = append(topics, topic)
	}
	b.mu.RUnlock()

	for _, topic := range topics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers: b.brokers,
			Topic:   topic,
			GroupID: b.group,
		})
		b.wg.Add(1)
		go func(topic string, reader *kafka.Reader) {
			defer b.wg.Done()
			defer reader.Close()
			if err := b.consume(runCtx, topic, reader); err != nil && !errors.Is(err, context.Canceled) {
				b.log.Error("consumer_stopped",
					observability.F("topic", topic),
					observability.F("error", err),
				)
			}
		}(topic, reader)
	}

	logctx.FromOr(ctx, b.log).Info("event_bus_started",
		observability.F("topics", len(topics)),
		observability.F("group", b.group),
	)
}

func (b *Bus) Stop(ctx context.Context) {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	if err := b.writer.Close(); err != nil {
		b.log.Warn("writer_close_failed", observability.F("error", err))
	}
	logctx.FromOr(ctx, b.log).Info("event_bus_stopped")
}

func (b *Bus) consume(ctx context.Context, topic string, reader *kafka.Reader) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		if err := b.process(ctx, topic, msg); err != nil {
			return err
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			b.log.Warn("commit_failed",
				observability.F("topic", topic),
				observability.F("error", err),
			)
		}
	}
}

// process dispatches one message and only returns once every handler
// succeeded, so the offset commits strictly after handling. Committing past
// a failed handler would turn a transient error into a dropped event; the
// handlers are idempotent, which is what makes rerunning them safe. Only
// an undecodable message is skipped.
func (b *Bus) process(ctx context.Context, topic string, msg kafka.Message) error {
	name := headerValue(msg.Headers, headerEventType)
	if name == "" {
		name = topic
	}
	event, err := b.codec.Decode(name, msg.Value)
	if err != nil {
		// poison message: log and move on so one bad event cannot
		// block the partition
		b.log.Error("event_decode_failed",
			observability.F("topic", topic),
			observability.F("error", err),
		)
		return nil
	}

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	hctx := logctx.With(ctx, b.log.With(observability.F("event", name)))
	for {
		failed := false
		for _, h := range handlers {
			if err := h(hctx, event); err != nil {
				b.log.Warn("event_handler_error",
					observability.F("event", name),
					observability.F("error", err),
				)
				failed = true
			}
		}
		if !failed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.retryBackoff):
		}
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
