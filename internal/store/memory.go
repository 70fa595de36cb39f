package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-realtime-floor/internal/apperr"
	"github.com/ariefcatur/go-realtime-floor/internal/domain"
)

// Memory is an in-process Store. A transaction holds the write lock for its
// whole duration, so transactions are serial; writes are journaled and
// undone when fn fails.
type Memory struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	orders       map[string]domain.Order
	tables       map[string]domain.Table
	reservations map[string]domain.Reservation
}

func NewMemory() *Memory {
	return &Memory{
		products:     make(map[string]domain.Product),
		orders:       make(map[string]domain.Order),
		tables:       make(map[string]domain.Table),
		reservations: make(map[string]domain.Reservation),
	}
}

var _ Store = (*Memory)(nil)

// SeedProduct inserts or replaces a product. Catalog management lives
// outside this service; seeding covers fixtures and local runs.
func (m *Memory) SeedProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *Memory) SeedTable(t domain.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[t.ID] = t
}

func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{m: m}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// ---- read side ----

func (m *Memory) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, apperr.NotFound("product", id)
	}
	return &p, nil
}

func (m *Memory) ListProducts(_ context.Context) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	cp := copyOrder(o)
	return &cp, nil
}

func (m *Memory) ListOrders(_ context.Context, f OrderFilter) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Order, 0)
	for _, o := range m.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.TableID != "" && o.TableID != f.TableID {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) GetTable(_ context.Context, id string) (*domain.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[id]
	if !ok {
		return nil, apperr.NotFound("table", id)
	}
	return &t, nil
}

func (m *Memory) ListTables(_ context.Context, f TableFilter) ([]domain.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Table, 0, len(m.tables))
	for _, t := range m.tables {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.ActiveOnly && !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *Memory) GetReservation(_ context.Context, id string) (*domain.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, apperr.NotFound("reservation", id)
	}
	return &r, nil
}

func (m *Memory) ListReservations(_ context.Context, f ReservationFilter) ([]domain.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterReservations(f), nil
}

func (m *Memory) filterReservations(f ReservationFilter) []domain.Reservation {
	out := make([]domain.Reservation, 0)
	for _, r := range m.reservations {
		if f.Date != "" && r.Date != f.Date {
			continue
		}
		if f.TableID != "" && r.TableID != f.TableID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out
}

// ---- transaction ----

type memTx struct {
	m    *Memory
	undo []func()
}

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memTx) LockProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := tx.m.products[id]
	if !ok {
		return nil, apperr.NotFound("product", id)
	}
	return &p, nil
}

func (tx *memTx) UpdateProductStock(_ context.Context, id string, stock int) error {
	p, ok := tx.m.products[id]
	if !ok {
		return apperr.NotFound("product", id)
	}
	prev := p
	tx.undo = append(tx.undo, func() { tx.m.products[id] = prev })
	p.Stock = stock
	p.UpdatedAt = time.Now().UTC()
	tx.m.products[id] = p
	return nil
}

func (tx *memTx) InsertOrder(_ context.Context, o *domain.Order) error {
	id := o.ID
	tx.undo = append(tx.undo, func() { delete(tx.m.orders, id) })
	stored := copyOrder(*o)
	stored.Items = nil
	stored.Payments = nil
	tx.m.orders[id] = stored
	return nil
}

func (tx *memTx) LockOrder(_ context.Context, id string) (*domain.Order, error) {
	o, ok := tx.m.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	cp := copyOrder(o)
	return &cp, nil
}

// replaceOrder journals the previous state of an order before mutating it.
func (tx *memTx) replaceOrder(id string, mutate func(o *domain.Order) error) error {
	o, ok := tx.m.orders[id]
	if !ok {
		return apperr.NotFound("order", id)
	}
	prev := copyOrder(o)
	next := copyOrder(o)
	if err := mutate(&next); err != nil {
		return err
	}
	tx.undo = append(tx.undo, func() { tx.m.orders[id] = prev })
	tx.m.orders[id] = next
	return nil
}

func (tx *memTx) UpdateOrder(_ context.Context, o *domain.Order) error {
	return tx.replaceOrder(o.ID, func(cur *domain.Order) error {
		items, payments := cur.Items, cur.Payments
		*cur = copyOrder(*o)
		cur.Items, cur.Payments = items, payments
		return nil
	})
}

func (tx *memTx) InsertItem(_ context.Context, it *domain.OrderItem) error {
	return tx.replaceOrder(it.OrderID, func(cur *domain.Order) error {
		cur.Items = append(cur.Items, copyItem(*it))
		return nil
	})
}

func (tx *memTx) UpdateItem(_ context.Context, it *domain.OrderItem) error {
	return tx.replaceOrder(it.OrderID, func(cur *domain.Order) error {
		_, idx := cur.Item(it.ID)
		if idx < 0 {
			return apperr.NotFound("order item", it.ID)
		}
		cur.Items[idx] = copyItem(*it)
		return nil
	})
}

func (tx *memTx) DeleteItem(_ context.Context, orderID, itemID string) error {
	return tx.replaceOrder(orderID, func(cur *domain.Order) error {
		_, idx := cur.Item(itemID)
		if idx < 0 {
			return apperr.NotFound("order item", itemID)
		}
		cur.Items = append(cur.Items[:idx], cur.Items[idx+1:]...)
		return nil
	})
}

func (tx *memTx) InsertPayment(_ context.Context, p *domain.Payment) error {
	return tx.replaceOrder(p.OrderID, func(cur *domain.Order) error {
		cur.Payments = append(cur.Payments, *p)
		return nil
	})
}

func (tx *memTx) LockTable(_ context.Context, id string) (*domain.Table, error) {
	t, ok := tx.m.tables[id]
	if !ok {
		return nil, apperr.NotFound("table", id)
	}
	return &t, nil
}

func (tx *memTx) UpdateTable(_ context.Context, t *domain.Table) error {
	prev, ok := tx.m.tables[t.ID]
	if !ok {
		return apperr.NotFound("table", t.ID)
	}
	tx.undo = append(tx.undo, func() { tx.m.tables[prev.ID] = prev })
	tx.m.tables[t.ID] = *t
	return nil
}

func (tx *memTx) TableLoad(_ context.Context, tableID, today string) (domain.TableLoad, error) {
	var load domain.TableLoad
	for _, o := range tx.m.orders {
		if o.TableID == tableID && !o.Status.Terminal() {
			load.ActiveOrders++
		}
	}
	for _, r := range tx.m.reservations {
		if r.TableID != tableID {
			continue
		}
		switch r.Status {
		case domain.ReservationSeated:
			load.SeatedReservations++
		case domain.ReservationPending, domain.ReservationConfirmed:
			if r.Date == today {
				load.HeldReservations++
			}
		}
	}
	return load, nil
}

func (tx *memTx) InsertReservation(_ context.Context, r *domain.Reservation) error {
	id := r.ID
	tx.undo = append(tx.undo, func() { delete(tx.m.reservations, id) })
	tx.m.reservations[id] = *r
	return nil
}

func (tx *memTx) LockReservation(_ context.Context, id string) (*domain.Reservation, error) {
	r, ok := tx.m.reservations[id]
	if !ok {
		return nil, apperr.NotFound("reservation", id)
	}
	return &r, nil
}

func (tx *memTx) UpdateReservation(_ context.Context, r *domain.Reservation) error {
	prev, ok := tx.m.reservations[r.ID]
	if !ok {
		return apperr.NotFound("reservation", r.ID)
	}
	tx.undo = append(tx.undo, func() { tx.m.reservations[prev.ID] = prev })
	tx.m.reservations[r.ID] = *r
	return nil
}

func (tx *memTx) ReservationsOn(_ context.Context, tableID, date string) ([]domain.Reservation, error) {
	return tx.m.filterReservations(ReservationFilter{TableID: tableID, Date: date}), nil
}

func copyItem(it domain.OrderItem) domain.OrderItem {
	if it.Options != nil {
		opts := make(map[string]any, len(it.Options))
		for k, v := range it.Options {
			opts[k] = v
		}
		it.Options = opts
	}
	return it
}

func copyOrder(o domain.Order) domain.Order {
	if o.Items != nil {
		items := make([]domain.OrderItem, len(o.Items))
		for i, it := range o.Items {
			items[i] = copyItem(it)
		}
		o.Items = items
	}
	if o.Payments != nil {
		o.Payments = append([]domain.Payment(nil), o.Payments...)
	}
	return o
}
