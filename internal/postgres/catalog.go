package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
)

type CatalogRepo struct{ DB *pgxpool.Pool }

// UpsertProduct lists a product or replaces its catalog entry.
func (r *CatalogRepo) UpsertProduct(ctx context.Context, p orders.Product) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products(id, sku, name, price_usd, price_eth, price_btc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			sku=EXCLUDED.sku, name=EXCLUDED.name,
			price_usd=EXCLUDED.price_usd, price_eth=EXCLUDED.price_eth, price_btc=EXCLUDED.price_btc,
			updated_at=EXCLUDED.updated_at`,
		p.ID, p.SKU, p.Name,
		toNumeric(p.Price.USD), toNumeric(p.Price.ETH), toNumeric(p.Price.BTC),
		p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *CatalogRepo) Product(ctx context.Context, id string) (orders.Product, error) {
	var (
		p             orders.Product
		usd, eth, btc pgtype.Numeric
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, sku, name, price_usd, price_eth, price_btc, created_at, updated_at
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &usd, &eth, &btc, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, orders.ErrProductNotFound
	}
	if err != nil {
		return orders.Product{}, err
	}
	if p.Price, err = price(usd, eth, btc); err != nil {
		return orders.Product{}, err
	}
	return p, nil
}

func price(usd, eth, btc pgtype.Numeric) (orders.Price, error) {
	var (
		p   orders.Price
		err error
	)
	if p.USD, err = fromNumeric(usd); err != nil {
		return p, err
	}
	if p.ETH, err = fromNumeric(eth); err != nil {
		return p, err
	}
	p.BTC, err = fromNumeric(btc)
	return p, err
}
