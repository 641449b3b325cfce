package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-crypto-checkout/internal/asset"
)

// DeliveryOffset is added to the shipping time to estimate delivery.
const DeliveryOffset = 5 * 24 * time.Hour

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderInput struct {
	CustomerID      string          `json:"customer_id"`
	Items           []ItemInput     `json:"items"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   asset.Asset     `json:"payment_method"`
}

// TransitionRequest carries the only fields a status change may touch.
type TransitionRequest struct {
	OrderID        string
	Status         Status
	Actor          Actor
	Reason         string
	TrackingNumber string
}

// PaymentOutcome is the verified settlement handed over by the payment side.
type PaymentOutcome struct {
	PaymentID       string
	TransactionHash string
	Asset           asset.Asset
}

type Service struct {
	store    Store
	catalog  Catalog
	stock    Inventory
	notify   Notifier
	payments Payments
	log      *zap.Logger
	now      func() time.Time
}

func NewService(store Store, catalog Catalog, stock Inventory, notify Notifier, log *zap.Logger) *Service {
	return &Service{store: store, catalog: catalog, stock: stock, notify: notify, log: log, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithPayments lets cancellation close the order's open payment intent in the
// same unit as the status change. Set it before serving.
func (s *Service) WithPayments(p Payments) *Service {
	s.payments = p
	return s
}

// CreateOrder snapshots prices, reserves all line items as one batch and
// persists the order in pending. No order exists if the reservation fails.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error) {
	if strings.TrimSpace(in.CustomerID) == "" {
		return Order{}, fmt.Errorf("%w: customer id required", ErrInvalidOrder)
	}
	if len(in.Items) == 0 {
		return Order{}, fmt.Errorf("%w: no items", ErrInvalidOrder)
	}
	if in.PaymentMethod != "" {
		a, err := asset.Parse(string(in.PaymentMethod))
		if err != nil {
			return Order{}, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
		}
		in.PaymentMethod = a
	}

	items := make([]LineItem, 0, len(in.Items))
	var total Price
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: invalid quantity for product %s", ErrInvalidOrder, it.ProductID)
		}
		p, err := s.catalog.Product(ctx, it.ProductID)
		if err != nil {
			return Order{}, fmt.Errorf("resolve product %s: %w", it.ProductID, err)
		}
		li := LineItem{ProductID: p.ID, Name: p.Name, Quantity: it.Quantity, UnitPrice: p.Price}
		total = total.Add(li.Subtotal())
		items = append(items, li)
	}

	now := s.now().UTC()
	o := Order{
		ID:              uuid.NewString(),
		CustomerID:      in.CustomerID,
		Items:           items,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		Total:           total,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.stock.ReserveBatch(ctx, o.StockItems()); err != nil {
		return Order{}, err
	}
	if err := s.store.CreateOrder(ctx, o); err != nil {
		if rerr := s.stock.ReleaseBatch(ctx, o.StockItems()); rerr != nil {
			s.log.Error("release reservation after failed order insert",
				zap.String("order_id", o.ID), zap.Error(rerr))
		}
		return Order{}, fmt.Errorf("persist order: %w", err)
	}

	s.log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
		zap.String("total_usd", o.Total.USD.String()))
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, actor Actor, id string) (Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !actor.CanView(o) {
		return Order{}, ErrNotAuthorized
	}
	return o, nil
}

// ListOrders pages through orders. Customers only ever see their own.
func (s *Service) ListOrders(ctx context.Context, actor Actor, q ListQuery) (Page, error) {
	if !actor.Privileged() {
		if actor.CustomerID == "" {
			return Page{}, ErrNotAuthorized
		}
		q.CustomerID = actor.CustomerID
	}
	if q.Status != "" && !q.Status.Valid() {
		return Page{}, fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, q.Status)
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageLimit
	}
	q.Limit = min(q.Limit, maxPageLimit)

	list, total, err := s.store.ListOrders(ctx, q)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Orders: list,
		Page:   q.Page,
		Limit:  q.Limit,
		Total:  total,
		Pages:  (total + q.Limit - 1) / q.Limit,
	}, nil
}

// StaleUnpaid lists pending orders created before cutoff that were never paid.
func (s *Service) StaleUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]Order, error) {
	return s.store.StaleUnpaidOrders(ctx, cutoff, limit)
}

func authorize(actor Actor, o Order, to Status) error {
	if actor.Privileged() {
		return nil
	}
	if actor.Role == RoleCustomer && actor.CustomerID != "" && actor.CustomerID == o.CustomerID && to == StatusCancelled {
		return nil
	}
	return ErrNotAuthorized
}

// TransitionOrder moves an order along the status table and applies the
// inventory side effect of the target state while the order is locked.
func (s *Service) TransitionOrder(ctx context.Context, req TransitionRequest) (Order, error) {
	if !req.Status.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, req.Status)
	}
	var from Status
	o, err := s.store.UpdateOrder(ctx, req.OrderID, func(ctx context.Context, o *Order) error {
		if err := authorize(req.Actor, *o, req.Status); err != nil {
			return err
		}
		from = o.Status
		if !CanTransition(o.Status, req.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, req.Status)
		}
		now := s.now().UTC()

		switch req.Status {
		case StatusCancelled:
			if err := s.returnStock(ctx, *o); err != nil {
				return err
			}
			if s.payments != nil {
				if err := s.payments.CancelOrderPayments(ctx, o.ID); err != nil {
					return fmt.Errorf("close payment intent: %w", err)
				}
			}
			o.CancelReason = strings.TrimSpace(req.Reason)
		case StatusDelivered:
			if !o.InventoryCommitted {
				if err := s.stock.CommitBatch(ctx, o.StockItems()); err != nil {
					return err
				}
				o.InventoryCommitted = true
			}
		case StatusShipped:
			eta := now.Add(DeliveryOffset)
			o.EstimatedDeliveryDate = &eta
			if tn := strings.TrimSpace(req.TrackingNumber); tn != "" {
				o.TrackingNumber = tn
			}
		}
		o.Status = req.Status
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.log.Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(o.Status)),
		zap.String("actor_role", string(req.Actor.Role)))
	s.notify.OrderStatusChanged(ctx, o, from)
	return o, nil
}

// returnStock undoes the order's hold on inventory: reservations are released,
// already committed units are put back on hand.
func (s *Service) returnStock(ctx context.Context, o Order) error {
	if !o.InventoryCommitted {
		return s.stock.ReleaseBatch(ctx, o.StockItems())
	}
	reason := fmt.Sprintf("order %s cancelled after commit", o.ID)
	for _, it := range o.StockItems() {
		if _, err := s.stock.Adjust(ctx, it.ProductID, it.Qty, reason); err != nil {
			return fmt.Errorf("restock %s: %w", it.ProductID, err)
		}
	}
	return nil
}

// FinalizePayment credits a verified payment to the order: inventory is
// committed, payment becomes completed and a pending order is confirmed.
// Calling it again for an already paid order changes nothing.
func (s *Service) FinalizePayment(ctx context.Context, orderID string, out PaymentOutcome) (Order, error) {
	applied := false
	o, err := s.store.UpdateOrder(ctx, orderID, func(ctx context.Context, o *Order) error {
		if o.PaymentStatus == PaymentCompleted {
			return nil
		}
		if o.Status != StatusPending && o.Status != StatusConfirmed {
			return fmt.Errorf("%w: cannot settle payment on %s order", ErrInvalidTransition, o.Status)
		}
		if !o.InventoryCommitted {
			if err := s.stock.CommitBatch(ctx, o.StockItems()); err != nil {
				return err
			}
			o.InventoryCommitted = true
		}
		o.PaymentStatus = PaymentCompleted
		o.TransactionHash = out.TransactionHash
		if out.Asset != "" {
			o.PaymentMethod = out.Asset
		}
		if o.Status == StatusPending {
			o.Status = StatusConfirmed
		}
		o.UpdatedAt = s.now().UTC()
		applied = true
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if !applied {
		return o, nil
	}

	s.log.Info("payment finalized",
		zap.String("order_id", o.ID),
		zap.String("payment_id", out.PaymentID),
		zap.String("tx_hash", out.TransactionHash))
	s.notify.OrderConfirmed(ctx, o)
	return o, nil
}
