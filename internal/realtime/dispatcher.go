package realtime

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-floor/internal/auth"
	"github.com/ariefcatur/go-realtime-floor/internal/events"
)

// Dispatcher turns domain events into targeted sends. It also satisfies
// events.Publisher, so without a broker the services publish straight to it.
type Dispatcher struct {
	emit Emitter
	reg  Registry
	log  *zap.Logger
}

func NewDispatcher(emit Emitter, reg Registry, log *zap.Logger) *Dispatcher {
	return &Dispatcher{emit: emit, reg: reg, log: log.With(zap.String("component", "dispatcher"))}
}

var _ events.Publisher = (*Dispatcher)(nil)

func (d *Dispatcher) Publish(ctx context.Context, evs ...events.Envelope) error {
	var errs []error
	for _, ev := range evs {
		if err := d.Dispatch(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// userRoom resolves the user's live connection room, "" when offline.
func (d *Dispatcher) userRoom(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", nil
	}
	connID, err := d.reg.Lookup(ctx, userID)
	if err != nil || connID == "" {
		return "", err
	}
	return ConnRoom(connID), nil
}

func nonEmpty(rs ...string) []string {
	out := rs[:0]
	for _, r := range rs {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

func message(typ string, env events.Envelope) Message {
	return Message{Type: typ, Event: env.EventType, EventID: env.EventID, Data: env.Payload}
}

// Dispatch routes one envelope. Unknown event types are ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, env events.Envelope) error {
	var err error
	switch env.EventType {
	case events.OrderCreated, events.OrderUpdated, events.OrderStatusChanged,
		events.ItemStatusChanged, events.PaymentAdded:
		err = d.order(ctx, env)
	case events.StockLow:
		err = d.emit.Emit(ctx, message(MsgStockAlert, env),
			RoleRoom(auth.RoleAdmin), RoleRoom(auth.RoleManager), RoleRoom(auth.RoleKitchen))
	case events.StockOut:
		err = d.emit.Emit(ctx, message(MsgStockAlert, env), RoomStaff)
	case events.ProductAvailabilityChanged:
		err = d.emit.Broadcast(ctx, message(MsgProductAvailabilityChanged, env))
	case events.TableStatusChanged, events.TableAssigned, events.TableUnassigned:
		err = d.table(ctx, env)
	case events.ReservationCreated, events.ReservationUpdated, events.ReservationStatusChanged:
		err = d.reservation(ctx, env)
	default:
		d.log.Debug("no route for event", zap.String("event_type", string(env.EventType)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("dispatch %s %s: %w", env.EventType, env.EventID, err)
	}
	return nil
}

func (d *Dispatcher) order(ctx context.Context, env events.Envelope) error {
	p, err := events.DecodePayload[events.OrderPayload](env)
	if err != nil {
		return err
	}
	waiter, err := d.userRoom(ctx, p.WaiterID)
	if err != nil {
		return err
	}

	typ := MsgOrderStatusUpdated
	if env.EventType == events.OrderCreated {
		typ = MsgOrderCreated
	}
	if err := d.emit.Emit(ctx, message(typ, env), nonEmpty(waiter, TableRoom(p.TableID))...); err != nil {
		return err
	}

	// payments are front-of-house business; the kitchen sees everything else
	if env.EventType == events.PaymentAdded {
		return d.emit.Emit(ctx, message(MsgOrderStatusUpdated, env), RoleRoom(auth.RoleCashier))
	}
	return d.emit.Emit(ctx, message(MsgKitchenOrderUpdate, env), RoomKitchen)
}

func (d *Dispatcher) table(ctx context.Context, env events.Envelope) error {
	p, err := events.DecodePayload[events.TablePayload](env)
	if err != nil {
		return err
	}
	typ := MsgTableStatusUpdated
	targets := []string{TableRoom(p.TableID), RoleRoom(auth.RoleAdmin), RoleRoom(auth.RoleManager)}
	if env.EventType != events.TableStatusChanged {
		typ = MsgTableAssigned
		for _, uid := range []string{p.WaiterID, p.PreviousWaiterID} {
			r, err := d.userRoom(ctx, uid)
			if err != nil {
				return err
			}
			targets = append(targets, r)
		}
	}
	return d.emit.Emit(ctx, message(typ, env), nonEmpty(targets...)...)
}

func (d *Dispatcher) reservation(ctx context.Context, env events.Envelope) error {
	p, err := events.DecodePayload[events.ReservationPayload](env)
	if err != nil {
		return err
	}
	assigned, err := d.userRoom(ctx, p.AssignedTo)
	if err != nil {
		return err
	}
	return d.emit.Emit(ctx, message(MsgReservationUpdate, env),
		nonEmpty(assigned, RoleRoom(auth.RoleAdmin), RoleRoom(auth.RoleManager))...)
}
