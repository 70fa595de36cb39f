package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-realtime-floor/internal/apperr"
	"github.com/ariefcatur/go-realtime-floor/internal/domain"
	"github.com/ariefcatur/go-realtime-floor/internal/store"
)

// querier is what pool and tx have in common.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct{ DB *pgxpool.Pool }

var _ store.Store = (*Store)(nil)

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// WithTx: commit kalau fn sukses, selain itu rollback via defer.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return apperr.Internal(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Internal(err, "commit tx")
	}
	return nil
}

// SeedProduct upserts a catalog row.
func (s *Store) SeedProduct(ctx context.Context, p domain.Product) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products(id, name, category_id, price, discounted_price, stock, low_stock_threshold, is_active, is_available, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, category_id=EXCLUDED.category_id, price=EXCLUDED.price,
			discounted_price=EXCLUDED.discounted_price, stock=EXCLUDED.stock,
			low_stock_threshold=EXCLUDED.low_stock_threshold, is_active=EXCLUDED.is_active,
			is_available=EXCLUDED.is_available, updated_at=now()`,
		p.ID, p.Name, p.CategoryID, p.Price, p.DiscountedPrice, p.Stock, p.LowStockThreshold, p.IsActive, p.IsAvailable)
	return err
}

func (s *Store) SeedTable(ctx context.Context, t domain.Table) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO dining_tables(id, number, capacity, status, current_waiter_id, location, is_active, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (id) DO UPDATE SET
			number=EXCLUDED.number, capacity=EXCLUDED.capacity, status=EXCLUDED.status,
			current_waiter_id=EXCLUDED.current_waiter_id, location=EXCLUDED.location,
			is_active=EXCLUDED.is_active, updated_at=now()`,
		t.ID, t.Number, t.Capacity, t.Status, t.CurrentWaiterID, t.Location, t.IsActive)
	return err
}

// ---- read side ----

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.DB, id, false)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY name`)
	if err != nil {
		return nil, apperr.Internal(err, "list products")
	}
	return collect(rows, scanProduct)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, s.DB, id, false)
}

func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]domain.Order, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+orderCols+` FROM orders
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR table_id = $2)
		ORDER BY created_at DESC`, string(f.Status), f.TableID)
	if err != nil {
		return nil, apperr.Internal(err, "list orders")
	}
	out, err := collect(rows, scanOrder)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if err := loadLines(ctx, s.DB, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) GetTable(ctx context.Context, id string) (*domain.Table, error) {
	return getTable(ctx, s.DB, id, false)
}

func (s *Store) ListTables(ctx context.Context, f store.TableFilter) ([]domain.Table, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+tableCols+` FROM dining_tables
		WHERE ($1 = '' OR status = $1) AND (NOT $2 OR is_active)
		ORDER BY number`, string(f.Status), f.ActiveOnly)
	if err != nil {
		return nil, apperr.Internal(err, "list tables")
	}
	return collect(rows, scanTable)
}

func (s *Store) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	return getReservation(ctx, s.DB, id, false)
}

func (s *Store) ListReservations(ctx context.Context, f store.ReservationFilter) ([]domain.Reservation, error) {
	return listReservations(ctx, s.DB, f)
}

// ---- shared queries ----

const (
	productCols     = `id, name, category_id, price, discounted_price, stock, low_stock_threshold, is_active, is_available, updated_at`
	tableCols       = `id, number, capacity, status, current_waiter_id, location, is_active, updated_at`
	orderCols       = `id, status, table_id, waiter_id, customer_id, note, total_amount, discount, tax, final_amount, paid_amount, payment_status, created_at, updated_at`
	itemCols        = `id, order_id, product_id, product_name, quantity, unit_price, status, note, options, created_at`
	paymentCols     = `id, order_id, amount, method, received_by, created_at`
	reservationCols = `id, table_id, customer_name, customer_phone, res_date, res_time, duration_minutes, guest_count, status, notes, assigned_to, created_by, created_at, updated_at`
)

func forUpdate(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	return apperr.Internal(err, "load "+entity)
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, apperr.Internal(err, "scan")
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "rows")
	}
	return out, nil
}

func scanProduct(r pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := r.Scan(&p.ID, &p.Name, &p.CategoryID, &p.Price, &p.DiscountedPrice, &p.Stock,
		&p.LowStockThreshold, &p.IsActive, &p.IsAvailable, &p.UpdatedAt)
	return p, err
}

func scanTable(r pgx.Row) (domain.Table, error) {
	var t domain.Table
	err := r.Scan(&t.ID, &t.Number, &t.Capacity, &t.Status, &t.CurrentWaiterID, &t.Location, &t.IsActive, &t.UpdatedAt)
	return t, err
}

func scanOrder(r pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := r.Scan(&o.ID, &o.Status, &o.TableID, &o.WaiterID, &o.CustomerID, &o.Note,
		&o.TotalAmount, &o.Discount, &o.Tax, &o.FinalAmount, &o.PaidAmount, &o.PaymentStatus,
		&o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func scanItem(r pgx.Row) (domain.OrderItem, error) {
	var it domain.OrderItem
	err := r.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice,
		&it.Status, &it.Note, &it.Options, &it.CreatedAt)
	return it, err
}

func scanPayment(r pgx.Row) (domain.Payment, error) {
	var p domain.Payment
	err := r.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.ReceivedBy, &p.CreatedAt)
	return p, err
}

func scanReservation(r pgx.Row) (domain.Reservation, error) {
	var v domain.Reservation
	err := r.Scan(&v.ID, &v.TableID, &v.CustomerName, &v.CustomerPhone, &v.Date, &v.Time,
		&v.DurationMinutes, &v.GuestCount, &v.Status, &v.Notes, &v.AssignedTo, &v.CreatedBy,
		&v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func getProduct(ctx context.Context, q querier, id string, lock bool) (*domain.Product, error) {
	p, err := scanProduct(q.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`+forUpdate(lock), id))
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &p, nil
}

func getTable(ctx context.Context, q querier, id string, lock bool) (*domain.Table, error) {
	t, err := scanTable(q.QueryRow(ctx, `SELECT `+tableCols+` FROM dining_tables WHERE id=$1`+forUpdate(lock), id))
	if err != nil {
		return nil, notFound(err, "table", id)
	}
	return &t, nil
}

func getReservation(ctx context.Context, q querier, id string, lock bool) (*domain.Reservation, error) {
	v, err := scanReservation(q.QueryRow(ctx, `SELECT `+reservationCols+` FROM reservations WHERE id=$1`+forUpdate(lock), id))
	if err != nil {
		return nil, notFound(err, "reservation", id)
	}
	return &v, nil
}

// getOrder loads the header plus its items and payments. Locking the
// header row is enough: every item and payment write goes through it.
func getOrder(ctx context.Context, q querier, id string, lock bool) (*domain.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`+forUpdate(lock), id))
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	if err := loadLines(ctx, q, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func loadLines(ctx context.Context, q querier, o *domain.Order) error {
	rows, err := q.Query(ctx, `SELECT `+itemCols+` FROM order_items WHERE order_id=$1 ORDER BY created_at, id`, o.ID)
	if err != nil {
		return apperr.Internal(err, "load items")
	}
	if o.Items, err = collect(rows, scanItem); err != nil {
		return err
	}
	rows, err = q.Query(ctx, `SELECT `+paymentCols+` FROM payments WHERE order_id=$1 ORDER BY created_at, id`, o.ID)
	if err != nil {
		return apperr.Internal(err, "load payments")
	}
	if o.Payments, err = collect(rows, scanPayment); err != nil {
		return err
	}
	return nil
}

func listReservations(ctx context.Context, q querier, f store.ReservationFilter) ([]domain.Reservation, error) {
	rows, err := q.Query(ctx, `
		SELECT `+reservationCols+` FROM reservations
		WHERE ($1 = '' OR res_date = $1) AND ($2 = '' OR table_id = $2) AND ($3 = '' OR status = $3)
		ORDER BY res_date, res_time`, f.Date, f.TableID, string(f.Status))
	if err != nil {
		return nil, apperr.Internal(err, "list reservations")
	}
	return collect(rows, scanReservation)
}

func mustAffect(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(entity, id)
	}
	if tag.RowsAffected() > 1 {
		return apperr.Internal(fmt.Errorf("%d rows affected", tag.RowsAffected()), "update "+entity)
	}
	return nil
}
