// Package order implements the order-fulfillment pipeline: intake,
// fulfillment consumer, status transitions, and the stock-change sink.
package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abcretail/order-service/internal/config"
	"github.com/abcretail/order-service/internal/fault"
	"github.com/abcretail/order-service/internal/model"
	"github.com/abcretail/order-service/internal/msg"
	"github.com/abcretail/order-service/internal/obs"
	"github.com/abcretail/order-service/internal/queue"
	"github.com/abcretail/order-service/internal/table"
)

// Updating-agent tags carried on outgoing notifications.
const (
	UpdatedByProcessor = "Order Queue Processor"
	UpdatedBySystem    = "System"
)

// CreateRequest is the intake input.
type CreateRequest struct {
	CustomerID string `json:"CustomerId"`
	ProductID  string `json:"ProductId"`
	Quantity   int    `json:"Quantity"`
}

// Intake validates purchase requests and queues them for fulfillment.
// It never writes an order record itself: the caller gets an optimistic
// Queued acknowledgment and the consumer owns persistence.
type Intake struct {
	cfg    config.Config
	tables table.Client
	orders *queue.Queue
}

// NewIntake constructs the intake service.
func NewIntake(cfg config.Config, tables table.Client, orders *queue.Queue) *Intake {
	return &Intake{cfg: cfg, tables: tables, orders: orders}
}

// Create validates the request against current product and customer state,
// publishes a CreateOrder message carrying a price and name snapshot, and
// returns an order view with status Queued. The stock check is a
// point-in-time snapshot, advisory only: the consumer's conditional
// decrement is the authoritative mutation.
func (s *Intake) Create(ctx context.Context, req CreateRequest) (model.OrderView, error) {
	if req.CustomerID == "" || req.ProductID == "" || req.Quantity < 1 {
		obs.OrdersRejectedTotal.WithLabelValues("validation").Inc()
		return model.OrderView{}, fault.Validation("CustomerId, ProductId, Quantity >= 1 required")
	}

	pe, err := s.tables.Get(ctx, s.cfg.TableProduct, req.ProductID)
	if errors.Is(err, table.ErrNotFound) {
		obs.OrdersRejectedTotal.WithLabelValues("invalid_product").Inc()
		return model.OrderView{}, fault.NotFound("Invalid ProductId")
	}
	if err != nil {
		return model.OrderView{}, &fault.TransientError{Op: "product lookup", Err: err}
	}
	var product model.Product
	if err := pe.Into(&product); err != nil {
		return model.OrderView{}, &fault.TransientError{Op: "product decode", Err: err}
	}

	ce, err := s.tables.Get(ctx, s.cfg.TableCustomer, req.CustomerID)
	if errors.Is(err, table.ErrNotFound) {
		obs.OrdersRejectedTotal.WithLabelValues("invalid_customer").Inc()
		return model.OrderView{}, fault.NotFound("Invalid CustomerId")
	}
	if err != nil {
		return model.OrderView{}, &fault.TransientError{Op: "customer lookup", Err: err}
	}
	var customer model.Customer
	if err := ce.Into(&customer); err != nil {
		return model.OrderView{}, &fault.TransientError{Op: "customer decode", Err: err}
	}

	if product.StockAvailable < req.Quantity {
		obs.OrdersRejectedTotal.WithLabelValues("insufficient_stock").Inc()
		return model.OrderView{}, &fault.InsufficientStockError{
			ProductID: req.ProductID,
			Available: product.StockAvailable,
			Requested: req.Quantity,
		}
	}

	orderID := NewOrderID()
	body, err := msg.Encode(msg.CreateOrder{
		Type:          msg.TypeCreateOrder,
		OrderID:       orderID,
		CustomerID:    req.CustomerID,
		CustomerName:  customer.Name + " " + customer.Surname,
		ProductID:     req.ProductID,
		ProductName:   product.ProductName,
		Quantity:      req.Quantity,
		UnitPrice:     product.Price,
		PreviousStock: product.StockAvailable,
	})
	if err != nil {
		return model.OrderView{}, &fault.TransientError{Op: "message encode", Err: err}
	}
	if _, ok := s.orders.Enqueue(body); !ok {
		return model.OrderView{}, &fault.TransientError{
			Op:  "order publish",
			Err: errors.New("queue intake closed"),
		}
	}

	obs.OrdersAcceptedTotal.Inc()
	obs.Logger.Info("order_queued",
		"order_id", orderID,
		"customer_id", req.CustomerID,
		"product_id", req.ProductID,
		"quantity", req.Quantity,
	)

	return model.Order{
		ID:           orderID,
		CustomerID:   req.CustomerID,
		ProductID:    req.ProductID,
		ProductName:  product.ProductName,
		Quantity:     req.Quantity,
		UnitPrice:    product.Price,
		OrderDateUTC: time.Now().UTC(),
		Status:       model.StatusQueued,
	}.View(), nil
}

// NewOrderID generates a globally-unique order identifier.
func NewOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
