// Package seed lists products and opening stock from a JSON file at startup.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-crypto-checkout/internal/inventory"
	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
)

type Product struct {
	ID                string       `json:"id"`
	SKU               string       `json:"sku"`
	Name              string       `json:"name"`
	Price             orders.Price `json:"price"`
	Stock             int          `json:"stock"`
	LowStockThreshold int          `json:"low_stock_threshold"`
}

type Catalog interface {
	UpsertProduct(ctx context.Context, p orders.Product) error
}

type Registrar interface {
	Register(ctx context.Context, productID string, onHand, lowStockThreshold int) (inventory.StockRecord, error)
}

func ReadFile(path string) ([]Product, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ps []Product
	if err := json.Unmarshal(b, &ps); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return ps, nil
}

// Load upserts every product and registers its stock. Products that already
// have a stock record keep their current levels.
func Load(ctx context.Context, products []Product, catalog Catalog, stock Registrar, log *zap.Logger) error {
	now := time.Now().UTC()
	for _, p := range products {
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("seed product %q: id and name required", p.ID)
		}
		if p.Stock < 0 {
			return fmt.Errorf("seed product %s: negative stock", p.ID)
		}
		if err := catalog.UpsertProduct(ctx, orders.Product{
			ID: p.ID, SKU: p.SKU, Name: p.Name, Price: p.Price, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
		threshold := p.LowStockThreshold
		if threshold == 0 {
			threshold = inventory.DefaultLowStockThreshold
		}
		_, err := stock.Register(ctx, p.ID, p.Stock, threshold)
		if errors.Is(err, inventory.ErrStockExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("register stock %s: %w", p.ID, err)
		}
		log.Info("product seeded", zap.String("product_id", p.ID), zap.Int("on_hand", p.Stock))
	}
	return nil
}
