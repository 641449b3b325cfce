package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-crypto-checkout/internal/asset"
	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
)

type OrderRepo struct{ DB *pgxpool.Pool }

const orderColumns = `id, customer_id, status, payment_status, payment_method, shipping_address,
	total_usd, total_eth, total_btc, transaction_hash, inventory_committed,
	tracking_number, cancel_reason, estimated_delivery_date, created_at, updated_at`

func (r *OrderRepo) CreateOrder(ctx context.Context, o orders.Order) error {
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return err
	}
	tx, err := begin(ctx, r.DB)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		o.ID, o.CustomerID, string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod), addr,
		toNumeric(o.Total.USD), toNumeric(o.Total.ETH), toNumeric(o.Total.BTC),
		o.TransactionHash, o.InventoryCommitted, o.TrackingNumber, o.CancelReason,
		o.EstimatedDeliveryDate, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	for i, li := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, line_no, product_id, name, quantity, unit_usd, unit_eth, unit_btc)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			o.ID, i, li.ProductID, li.Name, li.Quantity,
			toNumeric(li.UnitPrice.USD), toNumeric(li.UnitPrice.ETH), toNumeric(li.UnitPrice.BTC)); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *OrderRepo) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return orders.Order{}, err
	}
	if err := r.loadItems(ctx, r.DB, []*orders.Order{&o}); err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

// UpdateOrder holds the row lock (FOR UPDATE) while fn runs. Repo calls fn makes
// with the context it receives join the same transaction as savepoints.
func (r *OrderRepo) UpdateOrder(ctx context.Context, id string, fn func(context.Context, *orders.Order) error) (orders.Order, error) {
	tx, err := begin(ctx, r.DB)
	if err != nil {
		return orders.Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return orders.Order{}, err
	}
	if err := r.loadItems(ctx, tx, []*orders.Order{&o}); err != nil {
		return orders.Order{}, err
	}
	items := o.Items

	if err := fn(withTx(ctx, tx), &o); err != nil {
		return orders.Order{}, err
	}
	o.Items = items

	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return orders.Order{}, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE orders SET
			status=$2, payment_status=$3, payment_method=$4, shipping_address=$5,
			transaction_hash=$6, inventory_committed=$7, tracking_number=$8,
			cancel_reason=$9, estimated_delivery_date=$10, updated_at=$11
		WHERE id=$1`,
		o.ID, string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod), addr,
		o.TransactionHash, o.InventoryCommitted, o.TrackingNumber,
		o.CancelReason, o.EstimatedDeliveryDate, o.UpdatedAt)
	if err != nil {
		return orders.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

// ListOrders returns newest first.
func (r *OrderRepo) ListOrders(ctx context.Context, q orders.ListQuery) ([]orders.Order, int, error) {
	var (
		where []string
		args  []any
	)
	if q.CustomerID != "" {
		args = append(args, q.CustomerID)
		where = append(where, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if q.Status != "" {
		args = append(args, string(q.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT count(*) FROM orders`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, q.Limit, q.Offset())
	rows, err := r.DB.Query(ctx, fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	list, err := r.collect(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *OrderRepo) StaleUnpaidOrders(ctx context.Context, cutoff time.Time, limit int) ([]orders.Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status=$1 AND payment_status<>$2 AND created_at < $3
		ORDER BY created_at
		LIMIT $4`,
		string(orders.StatusPending), string(orders.PaymentCompleted), cutoff, limit)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

func (r *OrderRepo) collect(ctx context.Context, rows pgx.Rows) ([]orders.Order, error) {
	var list []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*orders.Order, len(list))
	for i := range list {
		ptrs[i] = &list[i]
	}
	if err := r.loadItems(ctx, r.DB, ptrs); err != nil {
		return nil, err
	}
	return list, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *OrderRepo) loadItems(ctx context.Context, q querier, list []*orders.Order) error {
	if len(list) == 0 {
		return nil
	}
	byID := make(map[string]*orders.Order, len(list))
	ids := make([]string, len(list))
	for i, o := range list {
		byID[o.ID] = o
		ids[i] = o.ID
		o.Items = []orders.LineItem{}
	}

	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, name, quantity, unit_usd, unit_eth, unit_btc
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, line_no`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID       string
			li            orders.LineItem
			usd, eth, btc pgtype.Numeric
		)
		if err := rows.Scan(&orderID, &li.ProductID, &li.Name, &li.Quantity, &usd, &eth, &btc); err != nil {
			return err
		}
		if li.UnitPrice, err = price(usd, eth, btc); err != nil {
			return err
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, li)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (orders.Order, error) {
	var (
		o                       orders.Order
		status, payStatus, meth string
		addr                    []byte
		usd, eth, btc           pgtype.Numeric
	)
	err := row.Scan(&o.ID, &o.CustomerID, &status, &payStatus, &meth, &addr,
		&usd, &eth, &btc, &o.TransactionHash, &o.InventoryCommitted,
		&o.TrackingNumber, &o.CancelReason, &o.EstimatedDeliveryDate, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	if err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(status)
	o.PaymentStatus = orders.PaymentStatus(payStatus)
	o.PaymentMethod = asset.Asset(meth)
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return orders.Order{}, fmt.Errorf("decode shipping address: %w", err)
	}
	if o.Total, err = price(usd, eth, btc); err != nil {
		return orders.Order{}, err
	}
	return o, nil
}
