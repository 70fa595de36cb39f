package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/ariefcatur/go-realtime-floor/internal/events"
)

const (
	HeaderEventType = "event_type"
	HeaderEventID   = "event_id"
)

// Encode turns an envelope into a record keyed by its correlation id. The
// active trace context travels in the headers.
func Encode(ctx context.Context, env events.Envelope) (kafka.Message, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s: %w", env.EventType, err)
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(env.EventType)},
		{Key: HeaderEventID, Value: []byte(env.EventID)},
	}
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Key:     events.PartitionKey(env.CorrelationID),
		Value:   b,
		Headers: headers,
		Time:    env.OccurredAt,
	}, nil
}

// Decode parses a record and returns ctx carrying the producer's trace.
func Decode(ctx context.Context, m kafka.Message) (context.Context, events.Envelope, error) {
	carrier := propagation.MapCarrier{}
	for _, h := range m.Headers {
		carrier[h.Key] = string(h.Value)
	}
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return ctx, env, fmt.Errorf("unmarshal envelope at offset %d: %w", m.Offset, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return ctx, env, fmt.Errorf("envelope at offset %d has no id or type", m.Offset)
	}
	return ctx, env, nil
}

// EventPublisher sends committed domain events to the floor topic.
type EventPublisher struct {
	p *Producer
}

func NewEventPublisher(p *Producer) *EventPublisher { return &EventPublisher{p: p} }

func (e *EventPublisher) Publish(ctx context.Context, evs ...events.Envelope) error {
	for _, ev := range evs {
		m, err := Encode(ctx, ev)
		if err != nil {
			return err
		}
		if err := e.p.Publish(ctx, m.Key, m.Value, m.Headers...); err != nil {
			return fmt.Errorf("publish %s %s: %w", ev.EventType, ev.EventID, err)
		}
	}
	return nil
}
