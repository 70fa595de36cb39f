package events

// OrderPayload is shared by every order event; optional fields are set
// depending on the change.
type OrderPayload struct {
	OrderID        string `json:"order_id"`
	TableID        string `json:"table_id"`
	WaiterID       string `json:"waiter_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	PaymentStatus  string `json:"payment_status"`
	Change         string `json:"change,omitempty"` // item_added, item_updated, item_removed, discount
	ItemID         string `json:"item_id,omitempty"`
	ItemStatus     string `json:"item_status,omitempty"`
	Amount         string `json:"amount,omitempty"`
	Method         string `json:"method,omitempty"`
	Order          any    `json:"order,omitempty"`
}

type StockPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
	Level     string `json:"level"` // low | out
}

type AvailabilityPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Stock     int    `json:"stock"`
}

type TablePayload struct {
	TableID          string `json:"table_id"`
	Number           int    `json:"number"`
	Status           string `json:"status"`
	PreviousStatus   string `json:"previous_status,omitempty"`
	WaiterID         string `json:"waiter_id,omitempty"`
	PreviousWaiterID string `json:"previous_waiter_id,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

type ReservationPayload struct {
	ReservationID  string `json:"reservation_id"`
	TableID        string `json:"table_id"`
	AssignedTo     string `json:"assigned_to,omitempty"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Reservation    any    `json:"reservation,omitempty"`
}
