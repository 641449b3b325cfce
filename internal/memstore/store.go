// Package memstore keeps stock, orders, products and payment intents in process
// memory. Every record has its own lock so writers to different records never
// contend and multi-record stock batches lock in sorted id order.
package memstore

import (
	"sync"

	"github.com/ariefcatur/go-crypto-checkout/internal/inventory"
	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
	"github.com/ariefcatur/go-crypto-checkout/internal/payments"
)

type stockEntry struct {
	mu  sync.Mutex
	rec inventory.StockRecord
}

type orderEntry struct {
	mu sync.Mutex
	o  orders.Order
}

type intentEntry struct {
	mu sync.Mutex
	in payments.Intent
}

type Store struct {
	mu          sync.RWMutex
	stock       map[string]*stockEntry
	adjustments []inventory.Adjustment
	products    map[string]orders.Product
	orders      map[string]*orderEntry
	orderSeq    []string
	intents     map[string]*intentEntry
	// txHashes indexes completed or submitted hashes to intent ids.
	txHashes map[string]string
	// byOrder points each order at its newest intent, the only one that can be active.
	byOrder map[string]string
	// intentCreate serializes the active-intent check with the insert.
	intentCreate sync.Mutex
}

func New() *Store {
	return &Store{
		stock:    make(map[string]*stockEntry),
		products: make(map[string]orders.Product),
		orders:   make(map[string]*orderEntry),
		intents:  make(map[string]*intentEntry),
		txHashes: make(map[string]string),
		byOrder:  make(map[string]string),
	}
}
