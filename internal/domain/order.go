package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderServed    OrderStatus = "served"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every order status; tests walk it to check the
// transition table is total.
var OrderStatuses = []OrderStatus{OrderPending, OrderPreparing, OrderReady, OrderServed, OrderCompleted, OrderCancelled}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderPreparing, OrderCancelled},
	OrderPreparing: {OrderReady, OrderCancelled},
	OrderReady:     {OrderServed, OrderCancelled},
	OrderServed:    {OrderCompleted, OrderCancelled},
	OrderCompleted: {},
	OrderCancelled: {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) Terminal() bool { return s == OrderCompleted || s == OrderCancelled }

func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// NextOrderStatuses returns the legal targets from s.
func NextOrderStatuses(s OrderStatus) []OrderStatus {
	return append([]OrderStatus(nil), orderTransitions[s]...)
}

type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemPreparing ItemStatus = "preparing"
	ItemReady     ItemStatus = "ready"
	ItemServed    ItemStatus = "served"
	ItemCancelled ItemStatus = "cancelled"
)

var ItemStatuses = []ItemStatus{ItemPending, ItemPreparing, ItemReady, ItemServed, ItemCancelled}

var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemPending:   {ItemPreparing, ItemCancelled},
	ItemPreparing: {ItemReady, ItemCancelled},
	ItemReady:     {ItemServed, ItemCancelled},
	ItemServed:    {ItemCancelled},
	ItemCancelled: {},
}

func (s ItemStatus) Valid() bool {
	_, ok := itemTransitions[s]
	return ok
}

func (s ItemStatus) CanTransition(to ItemStatus) bool {
	for _, next := range itemTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentPaid          PaymentStatus = "paid"
)

type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodCard   PaymentMethod = "card"
	MethodMobile PaymentMethod = "mobile"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodMobile:
		return true
	}
	return false
}

type Order struct {
	ID            string          `json:"id"`
	Status        OrderStatus     `json:"status"`
	TableID       string          `json:"table_id"`
	WaiterID      string          `json:"waiter_id"`
	CustomerID    string          `json:"customer_id,omitempty"`
	Note          string          `json:"note,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Discount      decimal.Decimal `json:"discount"`
	Tax           decimal.Decimal `json:"tax"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Items         []OrderItem     `json:"items"`
	Payments      []Payment       `json:"payments,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Status      ItemStatus      `json:"status"`
	Note        string          `json:"note,omitempty"`
	Options     map[string]any  `json:"options,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Payment struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     PaymentMethod   `json:"method"`
	ReceivedBy string          `json:"received_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (o *Order) Item(id string) (*OrderItem, int) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i], i
		}
	}
	return nil, -1
}

// Remaining is what is still owed.
func (o *Order) Remaining() decimal.Decimal {
	return o.FinalAmount.Sub(o.PaidAmount)
}
