package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

type Type string

const (
	OrderCreated       Type = "OrderCreated"
	OrderUpdated       Type = "OrderUpdated"
	OrderStatusChanged Type = "OrderStatusChanged"
	ItemStatusChanged  Type = "ItemStatusChanged"
	PaymentAdded       Type = "PaymentAdded"

	StockLow                   Type = "StockLow"
	StockOut                   Type = "StockOut"
	ProductAvailabilityChanged Type = "ProductAvailabilityChanged"

	TableStatusChanged Type = "TableStatusChanged"
	TableAssigned      Type = "TableAssigned"
	TableUnassigned    Type = "TableUnassigned"

	ReservationCreated       Type = "ReservationCreated"
	ReservationUpdated       Type = "ReservationUpdated"
	ReservationStatusChanged Type = "ReservationStatusChanged"
)

// TopicFloorEvents carries every domain event; partition key is the
// correlation id so events of one aggregate keep their order.
const TopicFloorEvents = "floor.events"

func PartitionKey(correlationID string) []byte { return []byte(correlationID) }

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     Type            `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// New wraps payload in a v1 envelope.
func New(t Type, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     t,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

func DecodePayload[T any](env Envelope) (T, error) {
	var t T
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		return t, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return t, nil
}

// Publisher receives committed domain events.
type Publisher interface {
	Publish(ctx context.Context, evs ...Envelope) error
}

type PublisherFunc func(ctx context.Context, evs ...Envelope) error

func (f PublisherFunc) Publish(ctx context.Context, evs ...Envelope) error { return f(ctx, evs...) }

// Nop drops everything.
var Nop Publisher = PublisherFunc(func(context.Context, ...Envelope) error { return nil })

// MustNew is New for payloads that always encode (plain structs).
func MustNew(t Type, producer, correlationID string, payload any) Envelope {
	env, err := New(t, producer, correlationID, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Stamp copies the active trace id onto envelopes that have none.
func Stamp(ctx context.Context, evs []Envelope) []Envelope {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return evs
	}
	for i := range evs {
		if evs[i].TraceID == "" {
			evs[i].TraceID = sc.TraceID().String()
		}
	}
	return evs
}
