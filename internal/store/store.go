// Package store declares the persistence ports used by the floor services.
// Implementations: Memory here, Postgres in internal/postgres.
package store

import (
	"context"

	"github.com/ariefcatur/go-realtime-floor/internal/domain"
)

type OrderFilter struct {
	Status  domain.OrderStatus
	TableID string
}

type TableFilter struct {
	Status     domain.TableStatus
	ActiveOnly bool
}

type ReservationFilter struct {
	Date    string
	TableID string
	Status  domain.ReservationStatus
}

// Reader is the lock-free read side. Results are snapshots; never call it
// from inside WithTx.
type Reader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error)
	GetTable(ctx context.Context, id string) (*domain.Table, error)
	ListTables(ctx context.Context, f TableFilter) ([]domain.Table, error)
	GetReservation(ctx context.Context, id string) (*domain.Reservation, error)
	ListReservations(ctx context.Context, f ReservationFilter) ([]domain.Reservation, error)
}

// Tx is one unit of work. Lock* methods take a row lock held until the
// transaction ends; callers lock orders, then products, then tables.
type Tx interface {
	LockProduct(ctx context.Context, id string) (*domain.Product, error)
	UpdateProductStock(ctx context.Context, id string, stock int) error

	InsertOrder(ctx context.Context, o *domain.Order) error
	LockOrder(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, o *domain.Order) error
	InsertItem(ctx context.Context, it *domain.OrderItem) error
	UpdateItem(ctx context.Context, it *domain.OrderItem) error
	DeleteItem(ctx context.Context, orderID, itemID string) error
	InsertPayment(ctx context.Context, p *domain.Payment) error

	LockTable(ctx context.Context, id string) (*domain.Table, error)
	UpdateTable(ctx context.Context, t *domain.Table) error
	// TableLoad counts what references the table; held reservations are
	// the pending/confirmed ones dated today.
	TableLoad(ctx context.Context, tableID, today string) (domain.TableLoad, error)

	InsertReservation(ctx context.Context, r *domain.Reservation) error
	LockReservation(ctx context.Context, id string) (*domain.Reservation, error)
	UpdateReservation(ctx context.Context, r *domain.Reservation) error
	ReservationsOn(ctx context.Context, tableID, date string) ([]domain.Reservation, error)
}

type Store interface {
	Reader
	// WithTx commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
