package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/abcretail/order-service/internal/config"
	"github.com/abcretail/order-service/internal/fault"
	"github.com/abcretail/order-service/internal/model"
	"github.com/abcretail/order-service/internal/msg"
	"github.com/abcretail/order-service/internal/obs"
	"github.com/abcretail/order-service/internal/queue"
	"github.com/abcretail/order-service/internal/table"
)

// Status performs synchronous status transitions on existing orders and
// notifies downstream systems. Unlike creation there is no queue hop: the
// write happens in the request path, conditioned on the version tag, and
// a concurrent change fails the whole operation with no automatic retry.
type Status struct {
	cfg           config.Config
	tables        table.Client
	notifications *queue.Queue
}

// NewStatus constructs the status service. Notifications go to the shared
// order queue, whose fulfillment consumer ignores them by type.
func NewStatus(cfg config.Config, tables table.Client, notifications *queue.Queue) *Status {
	return &Status{cfg: cfg, tables: tables, notifications: notifications}
}

// Update sets a new status on the order and publishes an
// OrderStatusUpdated notification carrying the previous value.
func (s *Status) Update(ctx context.Context, orderID, newStatus string) (model.OrderView, error) {
	if strings.TrimSpace(newStatus) == "" {
		return model.OrderView{}, fault.Validation("Status is required")
	}

	e, err := s.tables.Get(ctx, s.cfg.TableOrder, orderID)
	if errors.Is(err, table.ErrNotFound) {
		return model.OrderView{}, fault.NotFound("Order not found")
	}
	if err != nil {
		return model.OrderView{}, &fault.TransientError{Op: "order read", Err: err}
	}
	var o model.Order
	if err := e.Into(&o); err != nil {
		return model.OrderView{}, &fault.TransientError{Op: "order decode", Err: err}
	}

	previous := o.Status
	o.Status = newStatus

	ne, err := table.Marshal(s.cfg.TableOrder, orderID, o)
	if err != nil {
		return model.OrderView{}, &fault.TransientError{Op: "order encode", Err: err}
	}
	ne.ETag = e.ETag
	if _, err := s.tables.Update(ctx, ne); err != nil {
		if errors.Is(err, table.ErrPreconditionFailed) {
			return model.OrderView{}, &fault.ConflictError{Op: "status update", Err: err}
		}
		return model.OrderView{}, &fault.TransientError{Op: "status update", Err: err}
	}

	body, err := msg.Encode(msg.OrderStatusUpdated{
		Type:           msg.TypeOrderStatusUpdated,
		OrderID:        orderID,
		PreviousStatus: previous,
		NewStatus:      newStatus,
		UpdatedDateUTC: time.Now().UTC(),
		UpdatedBy:      UpdatedBySystem,
	})
	if err != nil {
		return model.OrderView{}, &fault.TransientError{Op: "status message encode", Err: err}
	}
	if _, ok := s.notifications.Enqueue(body); !ok {
		return model.OrderView{}, &fault.TransientError{
			Op:  "status publish",
			Err: errors.New("queue intake closed"),
		}
	}

	obs.Logger.Info("order_status_updated",
		"order_id", orderID,
		"previous_status", previous,
		"new_status", newStatus,
	)
	return o.View(), nil
}
