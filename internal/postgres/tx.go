package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-realtime-floor/internal/apperr"
	"github.com/ariefcatur/go-realtime-floor/internal/domain"
	"github.com/ariefcatur/go-realtime-floor/internal/store"
)

type pgTx struct{ tx pgx.Tx }

var _ store.Tx = (*pgTx)(nil)

// lock stok per product (FOR UPDATE); rilis saat commit/rollback
func (t *pgTx) LockProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateProductStock(ctx context.Context, id string, stock int) error {
	tag, err := t.tx.Exec(ctx, `UPDATE products SET stock=$2, updated_at=now() WHERE id=$1`, id, stock)
	if err != nil {
		return apperr.Internal(err, "update stock")
	}
	return mustAffect(tag, "product", id)
}

func (t *pgTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(`+orderCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		o.ID, string(o.Status), o.TableID, o.WaiterID, o.CustomerID, o.Note,
		o.TotalAmount, o.Discount, o.Tax, o.FinalAmount, o.PaidAmount, string(o.PaymentStatus),
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return apperr.Internal(err, "insert order")
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *domain.Order) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders SET status=$2, table_id=$3, waiter_id=$4, customer_id=$5, note=$6,
			total_amount=$7, discount=$8, tax=$9, final_amount=$10, paid_amount=$11,
			payment_status=$12, updated_at=$13
		WHERE id=$1`,
		o.ID, string(o.Status), o.TableID, o.WaiterID, o.CustomerID, o.Note,
		o.TotalAmount, o.Discount, o.Tax, o.FinalAmount, o.PaidAmount, string(o.PaymentStatus), o.UpdatedAt)
	if err != nil {
		return apperr.Internal(err, "update order")
	}
	return mustAffect(tag, "order", o.ID)
}

func (t *pgTx) InsertItem(ctx context.Context, it *domain.OrderItem) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_items(`+itemCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		it.ID, it.OrderID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice,
		string(it.Status), it.Note, it.Options, it.CreatedAt)
	if err != nil {
		return apperr.Internal(err, "insert item")
	}
	return nil
}

func (t *pgTx) UpdateItem(ctx context.Context, it *domain.OrderItem) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE order_items SET quantity=$3, unit_price=$4, status=$5, note=$6, options=$7
		WHERE id=$1 AND order_id=$2`,
		it.ID, it.OrderID, it.Quantity, it.UnitPrice, string(it.Status), it.Note, it.Options)
	if err != nil {
		return apperr.Internal(err, "update item")
	}
	return mustAffect(tag, "order item", it.ID)
}

func (t *pgTx) DeleteItem(ctx context.Context, orderID, itemID string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE id=$1 AND order_id=$2`, itemID, orderID)
	if err != nil {
		return apperr.Internal(err, "delete item")
	}
	return mustAffect(tag, "order item", itemID)
}

func (t *pgTx) InsertPayment(ctx context.Context, p *domain.Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments(`+paymentCols+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.OrderID, p.Amount, string(p.Method), p.ReceivedBy, p.CreatedAt)
	if err != nil {
		return apperr.Internal(err, "insert payment")
	}
	return nil
}

func (t *pgTx) LockTable(ctx context.Context, id string) (*domain.Table, error) {
	return getTable(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateTable(ctx context.Context, tb *domain.Table) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE dining_tables SET number=$2, capacity=$3, status=$4, current_waiter_id=$5,
			location=$6, is_active=$7, updated_at=$8
		WHERE id=$1`,
		tb.ID, tb.Number, tb.Capacity, string(tb.Status), tb.CurrentWaiterID, tb.Location, tb.IsActive, tb.UpdatedAt)
	if err != nil {
		return apperr.Internal(err, "update table")
	}
	return mustAffect(tag, "table", tb.ID)
}

func (t *pgTx) TableLoad(ctx context.Context, tableID, today string) (domain.TableLoad, error) {
	var load domain.TableLoad
	err := t.tx.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM orders
			  WHERE table_id=$1 AND status NOT IN ('completed','cancelled')),
			(SELECT count(*) FROM reservations
			  WHERE table_id=$1 AND status='seated'),
			(SELECT count(*) FROM reservations
			  WHERE table_id=$1 AND status IN ('pending','confirmed') AND res_date=$2)`,
		tableID, today).Scan(&load.ActiveOrders, &load.SeatedReservations, &load.HeldReservations)
	if err != nil {
		return load, apperr.Internal(err, "table load")
	}
	return load, nil
}

func (t *pgTx) InsertReservation(ctx context.Context, r *domain.Reservation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO reservations(`+reservationCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		r.ID, r.TableID, r.CustomerName, r.CustomerPhone, r.Date, r.Time, r.DurationMinutes,
		r.GuestCount, string(r.Status), r.Notes, r.AssignedTo, r.CreatedBy, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return apperr.Internal(err, "insert reservation")
	}
	return nil
}

func (t *pgTx) LockReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	return getReservation(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateReservation(ctx context.Context, r *domain.Reservation) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE reservations SET table_id=$2, customer_name=$3, customer_phone=$4, res_date=$5,
			res_time=$6, duration_minutes=$7, guest_count=$8, status=$9, notes=$10,
			assigned_to=$11, updated_at=$12
		WHERE id=$1`,
		r.ID, r.TableID, r.CustomerName, r.CustomerPhone, r.Date, r.Time, r.DurationMinutes,
		r.GuestCount, string(r.Status), r.Notes, r.AssignedTo, r.UpdatedAt)
	if err != nil {
		return apperr.Internal(err, "update reservation")
	}
	return mustAffect(tag, "reservation", r.ID)
}

// ReservationsOn reads under the table lock the caller already holds, so
// concurrent bookings for the same table serialize on it.
func (t *pgTx) ReservationsOn(ctx context.Context, tableID, date string) ([]domain.Reservation, error) {
	return listReservations(ctx, t.tx, store.ReservationFilter{TableID: tableID, Date: date})
}
