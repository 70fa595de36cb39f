package inventory

import (
	"context"

	"github.com/ariefcatur/go-realtime-floor/internal/apperr"
	"github.com/ariefcatur/go-realtime-floor/internal/domain"
	"github.com/ariefcatur/go-realtime-floor/internal/events"
	"github.com/ariefcatur/go-realtime-floor/internal/store"
)

// Ledger owns every stock write. It never opens a transaction itself: the
// caller passes the Tx so the debit commits or rolls back together with the
// order change that caused it.
type Ledger struct {
	DefaultLowThreshold int
	Producer            string
}

// Take checks the product can be ordered and debits qty from it.
func (l *Ledger) Take(ctx context.Context, tx store.Tx, productID string, qty int) (*domain.Product, []events.Envelope, error) {
	p, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return nil, nil, err
	}
	if !p.Orderable() {
		return nil, nil, apperr.New(apperr.KindProductUnavailable, "product %s is not available", p.Name)
	}
	evs, err := l.debit(ctx, tx, p, qty)
	if err != nil {
		return nil, nil, err
	}
	return p, evs, nil
}

// Debit removes qty without the orderable check, used when an existing
// line item grows.
func (l *Ledger) Debit(ctx context.Context, tx store.Tx, productID string, qty int) ([]events.Envelope, error) {
	p, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return l.debit(ctx, tx, p, qty)
}

func (l *Ledger) debit(ctx context.Context, tx store.Tx, p *domain.Product, qty int) ([]events.Envelope, error) {
	if qty <= 0 {
		return nil, nil
	}
	if p.Stock < qty {
		return nil, apperr.New(apperr.KindInsufficientStock,
			"insufficient stock for %s: available %d, requested %d", p.Name, p.Stock, qty)
	}
	return l.write(ctx, tx, p, p.Stock-qty)
}

// Credit restocks qty.
func (l *Ledger) Credit(ctx context.Context, tx store.Tx, productID string, qty int) ([]events.Envelope, error) {
	if qty <= 0 {
		return nil, nil
	}
	p, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return l.write(ctx, tx, p, p.Stock+qty)
}

// Apply moves stock by diff: positive debits, negative credits.
func (l *Ledger) Apply(ctx context.Context, tx store.Tx, productID string, diff int) ([]events.Envelope, error) {
	switch {
	case diff > 0:
		return l.Debit(ctx, tx, productID, diff)
	case diff < 0:
		return l.Credit(ctx, tx, productID, -diff)
	}
	return nil, nil
}

// Adjust is the manual stock correction behind the products endpoint.
func (l *Ledger) Adjust(ctx context.Context, tx store.Tx, productID string, qty int, op domain.StockOperation) (*domain.Product, []events.Envelope, error) {
	fields := apperr.FieldErrors{}
	if !op.Valid() {
		fields.Add("operation", "must be one of set, add, subtract")
	}
	if qty < 0 {
		fields.Add("quantity", "must not be negative")
	}
	if err := fields.Err(); err != nil {
		return nil, nil, err
	}

	p, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return nil, nil, err
	}
	var evs []events.Envelope
	switch op {
	case domain.StockSet:
		evs, err = l.write(ctx, tx, p, qty)
	case domain.StockAdd:
		evs, err = l.write(ctx, tx, p, p.Stock+qty)
	case domain.StockSubtract:
		evs, err = l.debit(ctx, tx, p, qty)
	}
	if err != nil {
		return nil, nil, err
	}
	return p, evs, nil
}

// write persists the new level and returns the alerts the change triggers.
// p is updated in place.
func (l *Ledger) write(ctx context.Context, tx store.Tx, p *domain.Product, next int) ([]events.Envelope, error) {
	if next < 0 {
		return nil, apperr.New(apperr.KindInsufficientStock, "stock for %s cannot go below zero", p.Name)
	}
	prev := p.Stock
	if err := tx.UpdateProductStock(ctx, p.ID, next); err != nil {
		return nil, err
	}
	p.Stock = next
	return l.alerts(*p, prev), nil
}

func (l *Ledger) threshold(p domain.Product) int {
	if p.LowStockThreshold > 0 {
		return p.LowStockThreshold
	}
	return l.DefaultLowThreshold
}

func (l *Ledger) alerts(p domain.Product, prev int) []events.Envelope {
	th := l.threshold(p)
	cur := p.Stock
	var evs []events.Envelope

	switch {
	case cur == 0 && prev > 0:
		evs = append(evs,
			events.MustNew(events.StockOut, l.Producer, p.ID, events.StockPayload{
				ProductID: p.ID, Name: p.Name, Stock: 0, Threshold: th, Level: "out",
			}),
			events.MustNew(events.ProductAvailabilityChanged, l.Producer, p.ID, events.AvailabilityPayload{
				ProductID: p.ID, Name: p.Name, Available: false, Stock: 0,
			}),
		)
	case prev == 0 && cur > 0:
		evs = append(evs, events.MustNew(events.ProductAvailabilityChanged, l.Producer, p.ID, events.AvailabilityPayload{
			ProductID: p.ID, Name: p.Name, Available: true, Stock: cur,
		}))
		if cur <= th {
			evs = append(evs, l.low(p, th))
		}
	case cur > 0 && cur <= th && prev > th:
		evs = append(evs, l.low(p, th))
	}
	return evs
}

func (l *Ledger) low(p domain.Product, th int) events.Envelope {
	return events.MustNew(events.StockLow, l.Producer, p.ID, events.StockPayload{
		ProductID: p.ID, Name: p.Name, Stock: p.Stock, Threshold: th, Level: "low",
	})
}
