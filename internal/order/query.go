package order

import (
	"context"
	"errors"
	"sort"

	"github.com/abcretail/order-service/internal/config"
	"github.com/abcretail/order-service/internal/fault"
	"github.com/abcretail/order-service/internal/model"
	"github.com/abcretail/order-service/internal/table"
)

// Queries is the read/delete side of the order collection, consumed by
// the synchronous boundary.
type Queries struct {
	cfg    config.Config
	tables table.Client
}

// NewQueries constructs the query helper.
func NewQueries(cfg config.Config, tables table.Client) *Queries {
	return &Queries{cfg: cfg, tables: tables}
}

// ListOrders returns all orders, newest first by order timestamp.
func (q *Queries) ListOrders(ctx context.Context) ([]model.OrderView, error) {
	entities, err := q.tables.List(ctx, q.cfg.TableOrder)
	if err != nil {
		return nil, &fault.TransientError{Op: "order list", Err: err}
	}
	views := make([]model.OrderView, 0, len(entities))
	for _, e := range entities {
		var o model.Order
		if err := e.Into(&o); err != nil {
			return nil, &fault.TransientError{Op: "order decode", Err: err}
		}
		views = append(views, o.View())
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].OrderDateUTC.After(views[j].OrderDateUTC)
	})
	return views, nil
}

// GetOrder returns one order by id.
func (q *Queries) GetOrder(ctx context.Context, id string) (model.OrderView, error) {
	e, err := q.tables.Get(ctx, q.cfg.TableOrder, id)
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
	return o.View(), nil
}

// DeleteOrder removes an order record. Administrative use only.
func (q *Queries) DeleteOrder(ctx context.Context, id string) error {
	if err := q.tables.Delete(ctx, q.cfg.TableOrder, id); err != nil {
		return &fault.TransientError{Op: "order delete", Err: err}
	}
	return nil
}
