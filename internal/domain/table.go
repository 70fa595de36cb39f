package domain

import (
	"time"

	"github.com/ariefcatur/go-realtime-floor/internal/apperr"
)

type TableStatus string

const (
	TableAvailable   TableStatus = "available"
	TableOccupied    TableStatus = "occupied"
	TableReserved    TableStatus = "reserved"
	TableMaintenance TableStatus = "maintenance"
)

var TableStatuses = []TableStatus{TableAvailable, TableOccupied, TableReserved, TableMaintenance}

func (s TableStatus) Valid() bool {
	switch s {
	case TableAvailable, TableOccupied, TableReserved, TableMaintenance:
		return true
	}
	return false
}

func ParseTableStatus(s string) (TableStatus, error) {
	st := TableStatus(s)
	if !st.Valid() {
		return "", apperr.New(apperr.KindInvalidTableStatus, "invalid table status %q", s)
	}
	return st, nil
}

type Table struct {
	ID              string      `json:"id"`
	Number          int         `json:"number"`
	Capacity        int         `json:"capacity"`
	Status          TableStatus `json:"status"`
	CurrentWaiterID string      `json:"current_waiter_id,omitempty"`
	Location        string      `json:"location,omitempty"`
	IsActive        bool        `json:"is_active"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (t Table) IsAvailable() bool   { return t.Status == TableAvailable }
func (t Table) IsOccupied() bool    { return t.Status == TableOccupied }
func (t Table) IsReserved() bool    { return t.Status == TableReserved }
func (t Table) CanBeReserved() bool { return t.Status != TableMaintenance }

// TableLoad is what currently references a table.
type TableLoad struct {
	ActiveOrders       int // orders not completed/cancelled
	SeatedReservations int
	HeldReservations   int // pending/confirmed reservations for today
}

// DeriveTableStatus applies the occupancy rule. Maintenance is never
// overridden; any active order or seated party means occupied; once both
// drop to zero an occupied table goes back to reserved when a reservation
// still holds it for today and to available otherwise.
func DeriveTableStatus(current TableStatus, load TableLoad) TableStatus {
	if current == TableMaintenance {
		return current
	}
	if load.ActiveOrders > 0 || load.SeatedReservations > 0 {
		return TableOccupied
	}
	switch current {
	case TableOccupied, TableReserved:
		if load.HeldReservations > 0 {
			return TableReserved
		}
		return TableAvailable
	}
	return current
}
