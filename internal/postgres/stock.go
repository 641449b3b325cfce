package postgres

import (
	"context"
	"errors"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-crypto-checkout/internal/inventory"
)

type StockRepo struct{ DB *pgxpool.Pool }

func (r *StockRepo) CreateStock(ctx context.Context, rec inventory.StockRecord) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO stock(product_id, on_hand, reserved, low_stock_threshold, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ProductID, rec.OnHand, rec.Reserved, rec.LowStockThreshold, rec.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return inventory.ErrStockExists
	}
	return err
}

func (r *StockRepo) GetStock(ctx context.Context, productID string) (inventory.StockRecord, error) {
	var rec inventory.StockRecord
	err := r.DB.QueryRow(ctx, `
		SELECT product_id, on_hand, reserved, low_stock_threshold, updated_at
		FROM stock WHERE product_id=$1`, productID).
		Scan(&rec.ProductID, &rec.OnHand, &rec.Reserved, &rec.LowStockThreshold, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.StockRecord{}, inventory.ErrStockNotFound
	}
	return rec, err
}

// MutateStock locks the rows in product id order (FOR UPDATE) so concurrent
// batches over overlapping products cannot deadlock, applies fn, and commits
// every row or none.
func (r *StockRepo) MutateStock(ctx context.Context, productIDs []string, fn func(context.Context, map[string]*inventory.StockRecord) error) ([]inventory.StockRecord, error) {
	ids := slices.Clone(productIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	tx, err := begin(ctx, r.DB)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT product_id, on_hand, reserved, low_stock_threshold, updated_at
		FROM stock WHERE product_id = ANY($1)
		ORDER BY product_id
		FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	recs := make(map[string]*inventory.StockRecord, len(ids))
	for rows.Next() {
		var rec inventory.StockRecord
		if err := rows.Scan(&rec.ProductID, &rec.OnHand, &rec.Reserved, &rec.LowStockThreshold, &rec.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		recs[rec.ProductID] = &rec
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(recs) != len(ids) {
		return nil, inventory.ErrStockNotFound
	}

	if err := fn(withTx(ctx, tx), recs); err != nil {
		return nil, err
	}

	out := make([]inventory.StockRecord, 0, len(ids))
	for _, id := range ids {
		rec := recs[id]
		if _, err := tx.Exec(ctx, `
			UPDATE stock SET on_hand=$2, reserved=$3, updated_at=$4
			WHERE product_id=$1`,
			rec.ProductID, rec.OnHand, rec.Reserved, rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *StockRepo) AppendAdjustment(ctx context.Context, adj inventory.Adjustment) error {
	tx, err := begin(ctx, r.DB)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `
		INSERT INTO stock_adjustments(product_id, delta, reason, on_hand, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		adj.ProductID, adj.Delta, adj.Reason, adj.OnHand, adj.At); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Adjustments returns the correction log for one product, oldest first.
func (r *StockRepo) Adjustments(ctx context.Context, productID string) ([]inventory.Adjustment, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, delta, reason, on_hand, created_at
		FROM stock_adjustments WHERE product_id=$1 ORDER BY id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Adjustment
	for rows.Next() {
		var a inventory.Adjustment
		if err := rows.Scan(&a.ProductID, &a.Delta, &a.Reason, &a.OnHand, &a.At); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
