package orders

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-floor/internal/apperr"
	"github.com/ariefcatur/go-realtime-floor/internal/domain"
	"github.com/ariefcatur/go-realtime-floor/internal/events"
	"github.com/ariefcatur/go-realtime-floor/internal/inventory"
	"github.com/ariefcatur/go-realtime-floor/internal/store"
	"github.com/ariefcatur/go-realtime-floor/internal/tables"
)

var tracer = otel.Tracer("floor/orders")

type ItemInput struct {
	ProductID string         `json:"product_id"`
	Quantity  int            `json:"quantity"`
	Note      string         `json:"note,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type CreateInput struct {
	TableID    string
	WaiterID   string
	CustomerID string
	Note       string
	Items      []ItemInput
}

type Config struct {
	TaxRate  decimal.Decimal
	Producer string
}

// Service is the order aggregate's application layer. Every mutation runs
// in one store transaction together with its ledger writes and the table
// reconcile; events are published only after commit.
type Service struct {
	store    store.Store
	ledger   *inventory.Ledger
	tables   *tables.Reconciler
	pub      events.Publisher
	log      *zap.Logger
	taxRate  decimal.Decimal
	producer string
}

func NewService(st store.Store, ledger *inventory.Ledger, rec *tables.Reconciler, pub events.Publisher, log *zap.Logger, cfg Config) *Service {
	return &Service{
		store:    st,
		ledger:   ledger,
		tables:   rec,
		pub:      pub,
		log:      log.With(zap.String("component", "orders")),
		taxRate:  cfg.TaxRate,
		producer: cfg.Producer,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	return s.store.GetOrder(ctx, id)
}

func (s *Service) List(ctx context.Context, status, tableID string) ([]domain.Order, error) {
	f := store.OrderFilter{TableID: tableID}
	if status != "" {
		st := domain.OrderStatus(status)
		if !st.Valid() {
			return nil, apperr.Validation(map[string]string{"status": "unknown order status"})
		}
		f.Status = st
	}
	return s.store.ListOrders(ctx, f)
}

func validateItem(fields apperr.FieldErrors, prefix string, in ItemInput) {
	if in.ProductID == "" {
		fields.Add(prefix+"product_id", "required")
	}
	if in.Quantity < 1 {
		fields.Add(prefix+"quantity", "must be at least 1")
	}
}

// Create opens an order on a table with its initial items. Either every item
// is debited and created or nothing is.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.Create")
	defer span.End()
	span.SetAttributes(attribute.String("table.id", in.TableID), attribute.Int("items", len(in.Items)))

	fields := apperr.FieldErrors{}
	if in.TableID == "" {
		fields.Add("table_id", "required")
	}
	if in.WaiterID == "" {
		fields.Add("waiter_id", "required")
	}
	if len(in.Items) == 0 {
		fields.Add("items", "at least one item is required")
	}
	for i, it := range in.Items {
		validateItem(fields, itemPrefix(i), it)
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	o := &domain.Order{
		ID:            uuid.NewString(),
		Status:        domain.OrderPending,
		TableID:       in.TableID,
		WaiterID:      in.WaiterID,
		CustomerID:    in.CustomerID,
		Note:          in.Note,
		PaymentStatus: domain.PaymentUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var side []events.Envelope
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := lockProducts(ctx, tx, in.Items); err != nil {
			return err
		}
		// table lock sebelum insert: FK orders->dining_tables ambil KEY SHARE
		t, err := tx.LockTable(ctx, o.TableID)
		if err != nil {
			return err
		}
		if !t.IsActive || t.Status == domain.TableMaintenance {
			return apperr.New(apperr.KindInvalidTableStatus, "table %d is not accepting orders", t.Number)
		}

		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		for _, it := range in.Items {
			item, evs, err := s.newItem(ctx, tx, o.ID, it, now)
			if err != nil {
				return err
			}
			o.Items = append(o.Items, *item)
			side = append(side, evs...)
		}

		if t.CurrentWaiterID == "" {
			t.CurrentWaiterID = o.WaiterID
			t.UpdatedAt = now
			if err := tx.UpdateTable(ctx, t); err != nil {
				return err
			}
			side = append(side, events.MustNew(events.TableAssigned, s.producer, t.ID, events.TablePayload{
				TableID: t.ID, Number: t.Number, Status: string(t.Status), WaiterID: t.CurrentWaiterID,
			}))
		}

		o.Recalculate(s.taxRate)
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		_, tevs, err := s.tables.Reconcile(ctx, tx, o.TableID, "order_created")
		if err != nil {
			return err
		}
		side = append(side, tevs...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("table_id", o.TableID),
		zap.Int("items", len(o.Items)),
		zap.String("final_amount", o.FinalAmount.String()),
	)
	ev := s.orderEvent(events.OrderCreated, o, events.OrderPayload{})
	s.publish(ctx, append([]events.Envelope{ev}, side...))
	return o, nil
}

// lockProducts takes the product row locks in id order so two orders
// touching the same products cannot deadlock.
func lockProducts(ctx context.Context, tx store.Tx, items []ItemInput) error {
	ids := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := tx.LockProduct(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// byProduct returns item indexes ordered by product id, the same order
// lockProducts uses.
func byProduct(items []domain.OrderItem) []int {
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return items[idx[a]].ProductID < items[idx[b]].ProductID })
	return idx
}

func (s *Service) newItem(ctx context.Context, tx store.Tx, orderID string, in ItemInput, now time.Time) (*domain.OrderItem, []events.Envelope, error) {
	p, evs, err := s.ledger.Take(ctx, tx, in.ProductID, in.Quantity)
	if err != nil {
		return nil, nil, err
	}
	item := &domain.OrderItem{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    in.Quantity,
		UnitPrice:   p.CurrentPrice(),
		Status:      domain.ItemPending,
		Note:        in.Note,
		Options:     in.Options,
		CreatedAt:   now,
	}
	if err := tx.InsertItem(ctx, item); err != nil {
		return nil, nil, err
	}
	return item, evs, nil
}

// change describes what a mutation did so mutate can emit the order event.
type change struct {
	event     events.Type
	payload   events.OrderPayload
	side      []events.Envelope
	reconcile string
}

// mutate locks the order, applies fn, recomputes totals and persists the
// header. A result where paid exceeds final is rejected and rolled back.
func (s *Service) mutate(ctx context.Context, op, orderID string, fn func(ctx context.Context, tx store.Tx, o *domain.Order) (*change, error)) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders."+op)
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	var (
		out *domain.Order
		ch  *change
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		c, err := fn(ctx, tx, o)
		if err != nil {
			return err
		}
		o.Recalculate(s.taxRate)
		if o.PaidAmount.GreaterThan(o.FinalAmount) {
			return apperr.New(apperr.KindValidation,
				"change would drop the order total %s below the amount already paid %s", o.FinalAmount, o.PaidAmount)
		}
		o.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if c.reconcile != "" {
			_, tevs, err := s.tables.Reconcile(ctx, tx, o.TableID, c.reconcile)
			if err != nil {
				return err
			}
			c.side = append(c.side, tevs...)
		}
		out, ch = o, c
		return nil
	})
	if err != nil {
		return nil, err
	}
	ev := s.orderEvent(ch.event, out, ch.payload)
	s.publish(ctx, append([]events.Envelope{ev}, ch.side...))
	return out, nil
}

func requireOpen(o *domain.Order) error {
	if o.Status.Terminal() {
		return apperr.New(apperr.KindInvalidTransition, "order %s is %s and can no longer change", o.ID, o.Status)
	}
	return nil
}

func findItem(o *domain.Order, itemID string) (*domain.OrderItem, error) {
	it, _ := o.Item(itemID)
	if it == nil {
		return nil, apperr.NotFound("order item", itemID)
	}
	return it, nil
}

func (s *Service) AddItem(ctx context.Context, orderID string, in ItemInput) (*domain.Order, error) {
	fields := apperr.FieldErrors{}
	validateItem(fields, "", in)
	if err := fields.Err(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "AddItem", orderID, func(ctx context.Context, tx store.Tx, o *domain.Order) (*change, error) {
		if err := requireOpen(o); err != nil {
			return nil, err
		}
		item, evs, err := s.newItem(ctx, tx, o.ID, in, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		o.Items = append(o.Items, *item)
		return &change{
			event:   events.OrderUpdated,
			payload: events.OrderPayload{Change: "item_added", ItemID: item.ID, ItemStatus: string(item.Status)},
			side:    evs,
		}, nil
	})
}

// UpdateItem changes quantity (and note when non-nil); the stock moves by
// the difference.
func (s *Service) UpdateItem(ctx context.Context, orderID, itemID string, quantity int, note *string) (*domain.Order, error) {
	if quantity < 1 {
		return nil, apperr.Validation(map[string]string{"quantity": "must be at least 1"})
	}
	return s.mutate(ctx, "UpdateItem", orderID, func(ctx context.Context, tx store.Tx, o *domain.Order) (*change, error) {
		if err := requireOpen(o); err != nil {
			return nil, err
		}
		item, err := findItem(o, itemID)
		if err != nil {
			return nil, err
		}
		if item.Status == domain.ItemCancelled {
			return nil, apperr.New(apperr.KindInvalidTransition, "item %s is cancelled", itemID)
		}
		evs, err := s.ledger.Apply(ctx, tx, item.ProductID, quantity-item.Quantity)
		if err != nil {
			return nil, err
		}
		item.Quantity = quantity
		if note != nil {
			item.Note = *note
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return nil, err
		}
		return &change{
			event:   events.OrderUpdated,
			payload: events.OrderPayload{Change: "item_updated", ItemID: item.ID, ItemStatus: string(item.Status)},
			side:    evs,
		}, nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, orderID, itemID string) (*domain.Order, error) {
	return s.mutate(ctx, "RemoveItem", orderID, func(ctx context.Context, tx store.Tx, o *domain.Order) (*change, error) {
		if err := requireOpen(o); err != nil {
			return nil, err
		}
		item, err := findItem(o, itemID)
		if err != nil {
			return nil, err
		}
		var evs []events.Envelope
		// a cancelled item was restocked when it was cancelled
		if item.Status != domain.ItemCancelled {
			if evs, err = s.ledger.Credit(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return nil, err
			}
		}
		if err := tx.DeleteItem(ctx, o.ID, itemID); err != nil {
			return nil, err
		}
		_, idx := o.Item(itemID)
		o.Items = append(o.Items[:idx], o.Items[idx+1:]...)
		return &change{
			event:   events.OrderUpdated,
			payload: events.OrderPayload{Change: "item_removed", ItemID: itemID},
			side:    evs,
		}, nil
	})
}

// UpdateStatus moves the order along its transition table. Cancelling
// restocks every live item; completing or cancelling re-derives the table.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status string) (*domain.Order, error) {
	next := domain.OrderStatus(status)
	if !next.Valid() {
		return nil, apperr.Validation(map[string]string{"status": "unknown order status"})
	}
	return s.mutate(ctx, "UpdateStatus", orderID, func(ctx context.Context, tx store.Tx, o *domain.Order) (*change, error) {
		prev := o.Status
		if !prev.CanTransition(next) {
			return nil, apperr.New(apperr.KindInvalidTransition, "order cannot move from %s to %s", prev, next)
		}
		c := &change{
			event:   events.OrderStatusChanged,
			payload: events.OrderPayload{PreviousStatus: string(prev)},
		}
		if next == domain.OrderCancelled {
			if o.PaidAmount.IsPositive() {
				return nil, apperr.New(apperr.KindInvalidTransition,
					"order %s has %s paid and cannot be cancelled", o.ID, o.PaidAmount)
			}
			for _, i := range byProduct(o.Items) {
				it := &o.Items[i]
				if it.Status == domain.ItemCancelled {
					continue
				}
				evs, err := s.ledger.Credit(ctx, tx, it.ProductID, it.Quantity)
				if err != nil {
					return nil, err
				}
				c.side = append(c.side, evs...)
				it.Status = domain.ItemCancelled
				if err := tx.UpdateItem(ctx, it); err != nil {
					return nil, err
				}
			}
		}
		o.Status = next
		if next.Terminal() {
			c.reconcile = "order_" + string(next)
		}
		return c, nil
	})
}

func (s *Service) UpdateItemStatus(ctx context.Context, orderID, itemID, status string) (*domain.Order, error) {
	next := domain.ItemStatus(status)
	if !next.Valid() {
		return nil, apperr.Validation(map[string]string{"status": "unknown item status"})
	}
	return s.mutate(ctx, "UpdateItemStatus", orderID, func(ctx context.Context, tx store.Tx, o *domain.Order) (*change, error) {
		if err := requireOpen(o); err != nil {
			return nil, err
		}
		item, err := findItem(o, itemID)
		if err != nil {
			return nil, err
		}
		if !item.Status.CanTransition(next) {
			return nil, apperr.New(apperr.KindInvalidTransition, "item cannot move from %s to %s", item.Status, next)
		}
		var evs []events.Envelope
		if next == domain.ItemCancelled {
			if evs, err = s.ledger.Credit(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return nil, err
			}
		}
		item.Status = next
		if err := tx.UpdateItem(ctx, item); err != nil {
			return nil, err
		}
		return &change{
			event:   events.ItemStatusChanged,
			payload: events.OrderPayload{ItemID: item.ID, ItemStatus: string(next)},
			side:    evs,
		}, nil
	})
}

func (s *Service) AddPayment(ctx context.Context, orderID string, amount decimal.Decimal, method, receivedBy string) (*domain.Order, error) {
	fields := apperr.FieldErrors{}
	if !amount.IsPositive() {
		fields.Add("amount", "must be greater than zero")
	} else if !centPrecise(amount) {
		fields.Add("amount", "must have at most 2 decimal places")
	}
	m := domain.PaymentMethod(method)
	if !m.Valid() {
		fields.Add("method", "must be one of cash, card, mobile")
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "AddPayment", orderID, func(ctx context.Context, tx store.Tx, o *domain.Order) (*change, error) {
		if o.Status == domain.OrderCancelled {
			return nil, apperr.New(apperr.KindInvalidTransition, "order %s is cancelled", o.ID)
		}
		if remaining := o.Remaining(); amount.GreaterThan(remaining) {
			return nil, apperr.New(apperr.KindOverpayment,
				"payment %s exceeds the remaining balance %s", amount, remaining)
		}
		p := &domain.Payment{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			Amount:     amount,
			Method:     m,
			ReceivedBy: receivedBy,
			CreatedAt:  time.Now().UTC(),
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return nil, err
		}
		o.Payments = append(o.Payments, *p)
		o.PaidAmount = o.PaidAmount.Add(amount)
		return &change{
			event:   events.PaymentAdded,
			payload: events.OrderPayload{Amount: amount.String(), Method: string(m)},
		}, nil
	})
}

func (s *Service) ApplyDiscount(ctx context.Context, orderID string, amount decimal.Decimal) (*domain.Order, error) {
	if amount.IsNegative() {
		return nil, apperr.Validation(map[string]string{"amount": "must not be negative"})
	}
	if !centPrecise(amount) {
		return nil, apperr.Validation(map[string]string{"amount": "must have at most 2 decimal places"})
	}
	return s.mutate(ctx, "ApplyDiscount", orderID, func(ctx context.Context, tx store.Tx, o *domain.Order) (*change, error) {
		if err := requireOpen(o); err != nil {
			return nil, err
		}
		if gross := o.TotalAmount.Add(o.Tax); amount.GreaterThan(gross) {
			return nil, apperr.Validation(map[string]string{"amount": "exceeds order total " + gross.String()})
		}
		o.Discount = amount
		return &change{
			event:   events.OrderUpdated,
			payload: events.OrderPayload{Change: "discount", Amount: amount.String()},
		}, nil
	})
}

// centPrecise reports whether d fits the NUMERIC(12,2) money columns
// without rounding.
func centPrecise(d decimal.Decimal) bool { return d.Equal(d.Round(2)) }

func (s *Service) orderEvent(t events.Type, o *domain.Order, p events.OrderPayload) events.Envelope {
	p.OrderID = o.ID
	p.TableID = o.TableID
	p.WaiterID = o.WaiterID
	p.Status = string(o.Status)
	p.PaymentStatus = string(o.PaymentStatus)
	p.Order = o
	return events.MustNew(t, s.producer, o.ID, p)
}

func (s *Service) publish(ctx context.Context, evs []events.Envelope) {
	if err := s.pub.Publish(ctx, events.Stamp(ctx, evs)...); err != nil {
		s.log.Error("publish order events", zap.Error(err), zap.Int("count", len(evs)))
	}
}

func itemPrefix(i int) string {
	return "items[" + strconv.Itoa(i) + "]."
}
