package inventory

import (
	"errors"
	"time"
)

var (
	ErrStockNotFound     = errors.New("stock record not found")
	ErrStockExists       = errors.New("stock record already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidCommit     = errors.New("invalid reservation commit")
	ErrInvalidAdjustment = errors.New("invalid stock adjustment")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// DefaultLowStockThreshold applies when a product is listed without an explicit threshold.
const DefaultLowStockThreshold = 10

// StockRecord holds the counters for one sellable product.
// Invariant: 0 <= Reserved <= OnHand.
type StockRecord struct {
	ProductID         string    `json:"product_id"`
	OnHand            int       `json:"on_hand"`
	Reserved          int       `json:"reserved"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (r StockRecord) Available() int { return r.OnHand - r.Reserved }

func (r StockRecord) LowStock() bool { return r.OnHand <= r.LowStockThreshold }

// Item is one product/quantity pair of a batch operation.
type Item struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// Adjustment is an entry of the append-only administrative correction log.
type Adjustment struct {
	ProductID string    `json:"product_id"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	OnHand    int       `json:"on_hand"`
	At        time.Time `json:"at"`
}

func (r *StockRecord) reserve(qty int) error {
	if r.Available() < qty {
		return ErrInsufficientStock
	}
	r.Reserved += qty
	return nil
}

func (r *StockRecord) release(qty int) {
	r.Reserved -= min(qty, r.Reserved)
}

func (r *StockRecord) commit(qty int) error {
	if r.Reserved < qty {
		return ErrInvalidCommit
	}
	r.OnHand -= qty
	r.Reserved -= qty
	return nil
}

func (r *StockRecord) adjust(delta int) error {
	next := r.OnHand + delta
	if next < 0 || next < r.Reserved {
		return ErrInvalidAdjustment
	}
	r.OnHand = next
	return nil
}

// mergeItems folds duplicate product ids into one entry so a batch touches each record once.
func mergeItems(items []Item) ([]Item, error) {
	out := make([]Item, 0, len(items))
	idx := make(map[string]int, len(items))
	for _, it := range items {
		if it.Qty <= 0 {
			return nil, ErrInvalidQuantity
		}
		if i, ok := idx[it.ProductID]; ok {
			out[i].Qty += it.Qty
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out, nil
}
