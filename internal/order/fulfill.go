package order

import (
	"context"
	"errors"
	"time"

	"github.com/abcretail/order-service/internal/config"
	"github.com/abcretail/order-service/internal/fault"
	"github.com/abcretail/order-service/internal/model"
	"github.com/abcretail/order-service/internal/msg"
	"github.com/abcretail/order-service/internal/obs"
	"github.com/abcretail/order-service/internal/queue"
	"github.com/abcretail/order-service/internal/table"
)

// Fulfiller consumes CreateOrder messages: it durably creates the order
// record keyed by the producer-assigned identifier, applies the inventory
// delta under optimistic concurrency, and emits a stock-change
// notification.
//
// The handler is written for at-least-once delivery. The order insert is
// idempotent by key; the stock decrement is guarded by a StockApplied
// marker written after a successful conditional write, so a redelivery
// that finds the marker skips the decrement instead of applying it twice.
// A crash between the stock write and the marker insert still
// double-decrements on redelivery: there is no transaction spanning the
// two records.
type Fulfiller struct {
	cfg    config.Config
	tables table.Client
	stock  *queue.Queue
}

// NewFulfiller constructs the fulfillment handler.
func NewFulfiller(cfg config.Config, tables table.Client, stock *queue.Queue) *Fulfiller {
	return &Fulfiller{cfg: cfg, tables: tables, stock: stock}
}

// Handle processes one delivery. Messages of foreign types are
// acknowledged untouched; the order queue is shared with status
// notifications. Any failure propagates so the queue's redelivery and
// poison policy governs recovery.
func (f *Fulfiller) Handle(ctx context.Context, m queue.Message) error {
	start := time.Now()

	typ, err := msg.TypeOf(m.Body)
	if err != nil {
		return err
	}
	if typ != msg.TypeCreateOrder {
		obs.Logger.Debug("message_ignored", "type", typ, "message_id", m.ID)
		return nil
	}
	co, err := msg.DecodeCreateOrder(m.Body)
	if err != nil {
		return err
	}

	if err := f.insertOrder(ctx, co); err != nil {
		return err
	}
	if applied, err := f.stockAlreadyApplied(ctx, co.OrderID); err != nil {
		return err
	} else if applied {
		obs.StockDecrementSkippedTotal.Inc()
		obs.Logger.Info("stock_decrement_skipped",
			"order_id", co.OrderID,
			"product_id", co.ProductID,
			"dequeue_count", m.DequeueCount,
		)
		return nil
	}
	prev, next, err := f.decrementStock(ctx, co)
	if err != nil {
		return err
	}
	if err := f.markApplied(ctx, co); err != nil {
		return err
	}
	if err := f.publishStockUpdated(co, prev, next); err != nil {
		return err
	}

	obs.OrdersFulfilledTotal.Inc()
	obs.FulfillDuration.Observe(time.Since(start).Seconds())
	obs.Logger.Info("order_fulfilled",
		"order_id", co.OrderID,
		"product_id", co.ProductID,
		"quantity", co.Quantity,
		"previous_stock", prev,
		"new_stock", next,
	)
	return nil
}

// insertOrder persists the order with the identifier carried in the
// message. A duplicate key means this delivery is a replay; the existing
// record is left untouched.
func (f *Fulfiller) insertOrder(ctx context.Context, co msg.CreateOrder) error {
	o := model.Order{
		ID:           co.OrderID,
		CustomerID:   co.CustomerID,
		ProductID:    co.ProductID,
		ProductName:  co.ProductName,
		Quantity:     co.Quantity,
		UnitPrice:    co.UnitPrice,
		OrderDateUTC: time.Now().UTC(),
		Status:       model.StatusSubmitted,
	}
	e, err := table.Marshal(f.cfg.TableOrder, o.ID, o)
	if err != nil {
		return &fault.TransientError{Op: "order encode", Err: err}
	}
	_, err = f.tables.Insert(ctx, e)
	if errors.Is(err, table.ErrEntityExists) {
		obs.Logger.Info("order_replay", "order_id", co.OrderID)
		return nil
	}
	if err != nil {
		return &fault.TransientError{Op: "order insert", Err: err}
	}
	return nil
}

func (f *Fulfiller) stockAlreadyApplied(ctx context.Context, orderID string) (bool, error) {
	_, err := f.tables.Get(ctx, f.cfg.TableStockApplied, orderID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, table.ErrNotFound) {
		return false, nil
	}
	return false, &fault.TransientError{Op: "stock marker lookup", Err: err}
}

// decrementStock applies the quantity delta conditioned on the version
// tag read here. A conflicting concurrent write surfaces as a conflict
// error and the whole delivery is retried from a fresh read.
func (f *Fulfiller) decrementStock(ctx context.Context, co msg.CreateOrder) (prev, next int, err error) {
	pe, err := f.tables.Get(ctx, f.cfg.TableProduct, co.ProductID)
	if errors.Is(err, table.ErrNotFound) {
		return 0, 0, fault.NotFound("product %s not found for order %s", co.ProductID, co.OrderID)
	}
	if err != nil {
		return 0, 0, &fault.TransientError{Op: "product read", Err: err}
	}
	var product model.Product
	if err := pe.Into(&product); err != nil {
		return 0, 0, &fault.TransientError{Op: "product decode", Err: err}
	}

	prev = product.StockAvailable
	product.StockAvailable -= co.Quantity
	next = product.StockAvailable
	if next < 0 {
		// The intake check is advisory; an oversell slipped through the race
		// window. Apply it anyway and leave resolution to inventory management.
		obs.Logger.Warn("stock_negative",
			"product_id", co.ProductID,
			"order_id", co.OrderID,
			"stock", next,
		)
	}

	ne, err := table.Marshal(f.cfg.TableProduct, co.ProductID, product)
	if err != nil {
		return 0, 0, &fault.TransientError{Op: "product encode", Err: err}
	}
	ne.ETag = pe.ETag
	if _, err := f.tables.Update(ctx, ne); err != nil {
		if errors.Is(err, table.ErrPreconditionFailed) {
			obs.StockConflictsTotal.Inc()
			return 0, 0, &fault.ConflictError{Op: "stock update", Err: err}
		}
		return 0, 0, &fault.TransientError{Op: "stock update", Err: err}
	}
	return prev, next, nil
}

func (f *Fulfiller) markApplied(ctx context.Context, co msg.CreateOrder) error {
	marker := model.StockApplied{
		OrderID:      co.OrderID,
		ProductID:    co.ProductID,
		Quantity:     co.Quantity,
		AppliedAtUTC: time.Now().UTC(),
	}
	e, err := table.Marshal(f.cfg.TableStockApplied, co.OrderID, marker)
	if err != nil {
		return &fault.TransientError{Op: "stock marker encode", Err: err}
	}
	_, err = f.tables.Insert(ctx, e)
	if err != nil && !errors.Is(err, table.ErrEntityExists) {
		return &fault.TransientError{Op: "stock marker insert", Err: err}
	}
	return nil
}

func (f *Fulfiller) publishStockUpdated(co msg.CreateOrder, prev, next int) error {
	body, err := msg.Encode(msg.StockUpdated{
		Type:           msg.TypeStockUpdated,
		ProductID:      co.ProductID,
		ProductName:    co.ProductName,
		PreviousStock:  prev,
		NewStock:       next,
		UpdatedDateUTC: time.Now().UTC(),
		UpdatedBy:      UpdatedByProcessor,
	})
	if err != nil {
		return &fault.TransientError{Op: "stock message encode", Err: err}
	}
	if _, ok := f.stock.Enqueue(body); !ok {
		return &fault.TransientError{
			Op:  "stock publish",
			Err: errors.New("queue intake closed"),
		}
	}
	return nil
}
