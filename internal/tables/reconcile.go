package tables

import (
	"context"
	"time"

	"github.com/ariefcatur/go-realtime-floor/internal/domain"
	"github.com/ariefcatur/go-realtime-floor/internal/events"
	"github.com/ariefcatur/go-realtime-floor/internal/store"
)

// Reconciler re-derives a table's status from the orders and reservations
// that reference it. Orders and reservations call it inside their own
// transaction after changing status.
type Reconciler struct {
	Producer string
	Now      func() time.Time
}

func (r *Reconciler) today() string {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return now().Format(domain.DateLayout)
}

// Reconcile locks the table row, recomputes its status and persists it when
// it changed. reason ends up in the TableStatusChanged payload.
func (r *Reconciler) Reconcile(ctx context.Context, tx store.Tx, tableID, reason string) (*domain.Table, []events.Envelope, error) {
	t, err := tx.LockTable(ctx, tableID)
	if err != nil {
		return nil, nil, err
	}
	load, err := tx.TableLoad(ctx, tableID, r.today())
	if err != nil {
		return nil, nil, err
	}
	next := domain.DeriveTableStatus(t.Status, load)
	if next == t.Status {
		return t, nil, nil
	}
	prev := t.Status
	t.Status = next
	t.UpdatedAt = time.Now().UTC()
	if err := tx.UpdateTable(ctx, t); err != nil {
		return nil, nil, err
	}
	ev := events.MustNew(events.TableStatusChanged, r.Producer, t.ID, events.TablePayload{
		TableID:        t.ID,
		Number:         t.Number,
		Status:         string(t.Status),
		PreviousStatus: string(prev),
		WaiterID:       t.CurrentWaiterID,
		Reason:         reason,
	})
	return t, []events.Envelope{ev}, nil
}
