package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-crypto-checkout/internal/asset"
	"github.com/ariefcatur/go-crypto-checkout/internal/payments"
)

type IntentRepo struct{ DB *pgxpool.Pool }

const intentColumns = `id, order_id, customer_id, amounts, usd_amount, selected_asset,
	receiving_addresses, status, transaction_hash, failure_reason, expires_at, created_at, updated_at`

var openStatuses = []string{string(payments.StatusPending), string(payments.StatusProcessing)}

// CreateIntent serializes on the order row so two concurrent requests cannot
// both pass the active intent check.
func (r *IntentRepo) CreateIntent(ctx context.Context, in payments.Intent, now time.Time) error {
	amounts, err := json.Marshal(in.Amounts)
	if err != nil {
		return err
	}
	addrs, err := json.Marshal(in.ReceivingAddresses)
	if err != nil {
		return err
	}

	tx, err := begin(ctx, r.DB)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var orderID string
	err = tx.QueryRow(ctx, `SELECT id FROM orders WHERE id=$1 FOR UPDATE`, in.OrderID).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return payments.ErrOrderNotFound
	}
	if err != nil {
		return err
	}

	var active bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payment_intents
			WHERE order_id=$1 AND status = ANY($2) AND expires_at >= $3
		)`, in.OrderID, openStatuses, now).Scan(&active); err != nil {
		return err
	}
	if active {
		return payments.ErrActiveIntentExists
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO payment_intents(`+intentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		in.ID, in.OrderID, in.CustomerID, amounts, toNumeric(in.USDAmount), string(in.SelectedAsset),
		addrs, string(in.Status), nullable(in.TransactionHash), in.FailureReason,
		in.ExpiresAt, in.CreatedAt, in.UpdatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *IntentRepo) GetIntent(ctx context.Context, id string) (payments.Intent, error) {
	return scanIntent(r.DB.QueryRow(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE id=$1`, id))
}

func (r *IntentRepo) UpdateIntent(ctx context.Context, id string, fn func(*payments.Intent) error) (payments.Intent, error) {
	tx, err := begin(ctx, r.DB)
	if err != nil {
		return payments.Intent{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	in, err := scanIntent(tx.QueryRow(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return payments.Intent{}, err
	}
	if err := fn(&in); err != nil {
		return payments.Intent{}, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE payment_intents SET
			status=$2, transaction_hash=$3, failure_reason=$4, updated_at=$5
		WHERE id=$1`,
		in.ID, string(in.Status), nullable(in.TransactionHash), in.FailureReason, in.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return payments.Intent{}, payments.ErrTransactionHashTaken
	}
	if err != nil {
		return payments.Intent{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return payments.Intent{}, err
	}
	return in, nil
}

func (r *IntentRepo) IntentByTransactionHash(ctx context.Context, hash string) (payments.Intent, error) {
	return scanIntent(r.DB.QueryRow(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE transaction_hash=$1`, hash))
}

func (r *IntentRepo) ActiveIntent(ctx context.Context, orderID string, now time.Time) (payments.Intent, error) {
	return scanIntent(r.DB.QueryRow(ctx, `
		SELECT `+intentColumns+` FROM payment_intents
		WHERE order_id=$1 AND status = ANY($2) AND expires_at >= $3
		ORDER BY created_at DESC
		LIMIT 1`, orderID, openStatuses, now))
}

func (r *IntentRepo) ExpiredIntents(ctx context.Context, now time.Time, limit int) ([]payments.Intent, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+intentColumns+` FROM payment_intents
		WHERE status = ANY($1) AND expires_at < $2
		ORDER BY expires_at
		LIMIT $3`, openStatuses, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payments.Intent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanIntent(row pgx.Row) (payments.Intent, error) {
	var (
		in             payments.Intent
		amounts, addrs []byte
		usd            pgtype.Numeric
		selected, st   string
		hash           *string
	)
	err := row.Scan(&in.ID, &in.OrderID, &in.CustomerID, &amounts, &usd, &selected,
		&addrs, &st, &hash, &in.FailureReason, &in.ExpiresAt, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return payments.Intent{}, payments.ErrIntentNotFound
	}
	if err != nil {
		return payments.Intent{}, err
	}
	in.SelectedAsset = asset.Asset(selected)
	in.Status = payments.Status(st)
	if hash != nil {
		in.TransactionHash = *hash
	}
	if err := json.Unmarshal(amounts, &in.Amounts); err != nil {
		return payments.Intent{}, fmt.Errorf("decode amounts: %w", err)
	}
	if err := json.Unmarshal(addrs, &in.ReceivingAddresses); err != nil {
		return payments.Intent{}, fmt.Errorf("decode receiving addresses: %w", err)
	}
	if in.USDAmount, err = fromNumeric(usd); err != nil {
		return payments.Intent{}, err
	}
	return in, nil
}
