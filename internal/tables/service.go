package tables

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-floor/internal/apperr"
	"github.com/ariefcatur/go-realtime-floor/internal/domain"
	"github.com/ariefcatur/go-realtime-floor/internal/events"
	"github.com/ariefcatur/go-realtime-floor/internal/store"
)

var tracer = otel.Tracer("floor/tables")

type Service struct {
	store    store.Store
	pub      events.Publisher
	log      *zap.Logger
	producer string
}

func NewService(st store.Store, pub events.Publisher, log *zap.Logger, producer string) *Service {
	return &Service{store: st, pub: pub, log: log.With(zap.String("component", "tables")), producer: producer}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Table, error) {
	return s.store.GetTable(ctx, id)
}

func (s *Service) List(ctx context.Context, status string) ([]domain.Table, error) {
	var f store.TableFilter
	if status != "" {
		st, err := domain.ParseTableStatus(status)
		if err != nil {
			return nil, err
		}
		f.Status = st
	}
	return s.store.ListTables(ctx, f)
}

// UpdateStatus sets status explicitly; every value in the status set is
// accepted from any state. A non-empty waiterID also assigns the waiter.
func (s *Service) UpdateStatus(ctx context.Context, tableID, status, waiterID string) (*domain.Table, error) {
	ctx, span := tracer.Start(ctx, "tables.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("table.id", tableID), attribute.String("status", status))

	next, err := domain.ParseTableStatus(status)
	if err != nil {
		return nil, err
	}

	var (
		out *domain.Table
		evs []events.Envelope
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		t, err := tx.LockTable(ctx, tableID)
		if err != nil {
			return err
		}
		prevStatus, prevWaiter := t.Status, t.CurrentWaiterID
		t.Status = next
		if waiterID != "" {
			t.CurrentWaiterID = waiterID
		}
		t.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateTable(ctx, t); err != nil {
			return err
		}
		if prevStatus != next {
			evs = append(evs, events.MustNew(events.TableStatusChanged, s.producer, t.ID, events.TablePayload{
				TableID: t.ID, Number: t.Number, Status: string(next), PreviousStatus: string(prevStatus),
				WaiterID: t.CurrentWaiterID, Reason: "manual",
			}))
		}
		if t.CurrentWaiterID != prevWaiter {
			evs = append(evs, s.assignedEvent(t, prevWaiter))
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, evs)
	return out, nil
}

func (s *Service) AssignWaiter(ctx context.Context, tableID, waiterID string) (*domain.Table, error) {
	if waiterID == "" {
		return nil, apperr.Validation(map[string]string{"waiter_id": "required"})
	}
	return s.setWaiter(ctx, tableID, waiterID)
}

func (s *Service) RemoveWaiter(ctx context.Context, tableID string) (*domain.Table, error) {
	return s.setWaiter(ctx, tableID, "")
}

func (s *Service) setWaiter(ctx context.Context, tableID, waiterID string) (*domain.Table, error) {
	ctx, span := tracer.Start(ctx, "tables.SetWaiter")
	defer span.End()

	var (
		out *domain.Table
		evs []events.Envelope
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		t, err := tx.LockTable(ctx, tableID)
		if err != nil {
			return err
		}
		out = t
		if t.CurrentWaiterID == waiterID {
			return nil
		}
		prev := t.CurrentWaiterID
		t.CurrentWaiterID = waiterID
		t.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateTable(ctx, t); err != nil {
			return err
		}
		if waiterID == "" {
			evs = append(evs, events.MustNew(events.TableUnassigned, s.producer, t.ID, events.TablePayload{
				TableID: t.ID, Number: t.Number, Status: string(t.Status), PreviousWaiterID: prev,
			}))
		} else {
			evs = append(evs, s.assignedEvent(t, prev))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, evs)
	return out, nil
}

func (s *Service) assignedEvent(t *domain.Table, prevWaiter string) events.Envelope {
	return events.MustNew(events.TableAssigned, s.producer, t.ID, events.TablePayload{
		TableID: t.ID, Number: t.Number, Status: string(t.Status),
		WaiterID: t.CurrentWaiterID, PreviousWaiterID: prevWaiter,
	})
}

func (s *Service) publish(ctx context.Context, evs []events.Envelope) {
	if len(evs) == 0 {
		return
	}
	if err := s.pub.Publish(ctx, events.Stamp(ctx, evs)...); err != nil {
		s.log.Error("publish table events", zap.Error(err))
	}
}
