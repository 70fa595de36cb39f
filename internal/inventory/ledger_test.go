package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-floor/internal/apperr"
	"github.com/ariefcatur/go-realtime-floor/internal/domain"
	"github.com/ariefcatur/go-realtime-floor/internal/events"
	"github.com/ariefcatur/go-realtime-floor/internal/store"
)

func setup(t *testing.T, stock, threshold int) (*store.Memory, *Service, *events.Recorder) {
	t.Helper()
	st := store.NewMemory()
	st.SeedProduct(domain.Product{
		ID: "p1", Name: "Burger", Price: decimal.NewFromInt(10),
		Stock: stock, LowStockThreshold: threshold, IsActive: true, IsAvailable: true,
	})
	rec := &events.Recorder{}
	svc := NewService(st, &Ledger{DefaultLowThreshold: 5, Producer: "test"}, rec, zap.NewNop())
	return st, svc, rec
}

func TestAdjustStock_Operations(t *testing.T) {
	ctx := context.Background()
	_, svc, _ := setup(t, 10, 0)

	p, err := svc.AdjustStock(ctx, "p1", 5, domain.StockAdd)
	if err != nil || p.Stock != 15 {
		t.Fatalf("add: %v %v", p, err)
	}
	p, err = svc.AdjustStock(ctx, "p1", 4, domain.StockSubtract)
	if err != nil || p.Stock != 11 {
		t.Fatalf("subtract: %v %v", p, err)
	}
	p, err = svc.AdjustStock(ctx, "p1", 3, domain.StockSet)
	if err != nil || p.Stock != 3 {
		t.Fatalf("set: %v %v", p, err)
	}
}

func TestAdjustStock_SubtractBelowZero(t *testing.T) {
	ctx := context.Background()
	st, svc, rec := setup(t, 2, 0)

	_, err := svc.AdjustStock(ctx, "p1", 3, domain.StockSubtract)
	if !errors.Is(err, apperr.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	p, _ := st.GetProduct(ctx, "p1")
	if p.Stock != 2 {
		t.Fatalf("stock changed on failure: %d", p.Stock)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("failed adjust published %v", rec.Types())
	}
}

func TestAdjustStock_InvalidInput(t *testing.T) {
	ctx := context.Background()
	_, svc, _ := setup(t, 2, 0)
	if _, err := svc.AdjustStock(ctx, "p1", 1, "multiply"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.AdjustStock(ctx, "p1", -1, domain.StockSet); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.AdjustStock(ctx, "nope", 1, domain.StockSet); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAlerts_LowOutAndBack(t *testing.T) {
	ctx := context.Background()
	_, svc, rec := setup(t, 10, 3)

	// 10 -> 4: above threshold, nothing
	if _, err := svc.AdjustStock(ctx, "p1", 6, domain.StockSubtract); err != nil {
		t.Fatal(err)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("unexpected alerts %v", rec.Types())
	}

	// 4 -> 2: crosses into low
	if _, err := svc.AdjustStock(ctx, "p1", 2, domain.StockSubtract); err != nil {
		t.Fatal(err)
	}
	if got := rec.Types(); len(got) != 1 || got[0] != events.StockLow {
		t.Fatalf("expected StockLow, got %v", got)
	}
	rec.Reset()

	// 2 -> 1: already low, no repeat
	if _, err := svc.AdjustStock(ctx, "p1", 1, domain.StockSubtract); err != nil {
		t.Fatal(err)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("low alert repeated: %v", rec.Types())
	}

	// 1 -> 0: out + availability
	if _, err := svc.AdjustStock(ctx, "p1", 1, domain.StockSubtract); err != nil {
		t.Fatal(err)
	}
	got := rec.Types()
	if len(got) != 2 || got[0] != events.StockOut || got[1] != events.ProductAvailabilityChanged {
		t.Fatalf("expected StockOut+Availability, got %v", got)
	}
	rec.Reset()

	// 0 -> 20: back in stock
	if _, err := svc.AdjustStock(ctx, "p1", 20, domain.StockSet); err != nil {
		t.Fatal(err)
	}
	evs := rec.Events()
	if len(evs) != 1 || evs[0].EventType != events.ProductAvailabilityChanged {
		t.Fatalf("expected availability only, got %v", rec.Types())
	}
	payload, err := events.DecodePayload[events.AvailabilityPayload](evs[0])
	if err != nil || !payload.Available || payload.Stock != 20 {
		t.Fatalf("payload = %+v, %v", payload, err)
	}
}

func TestLedger_TakeRejectsUnavailable(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.SeedProduct(domain.Product{ID: "p1", Name: "Off menu", Stock: 9, IsActive: true, IsAvailable: false})
	l := &Ledger{DefaultLowThreshold: 1}
	err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, _, err := l.Take(ctx, tx, "p1", 1)
		return err
	})
	if !errors.Is(err, apperr.ErrProductUnavailable) {
		t.Fatalf("expected product unavailable, got %v", err)
	}
}
