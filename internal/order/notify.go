package order

import (
	"context"

	"github.com/abcretail/order-service/internal/msg"
	"github.com/abcretail/order-service/internal/obs"
	"github.com/abcretail/order-service/internal/queue"
)

// StockSink consumes stock-change notifications. Its responsibility today
// is observability; downstream consumers (reporting sync, alerting)
// attach here without touching the fulfillment path. It has no side
// effects on the order or product records.
type StockSink struct{}

// NewStockSink constructs the sink.
func NewStockSink() *StockSink { return &StockSink{} }

// Handle logs one stock-change notification. Unknown message types are
// acknowledged silently for forward compatibility.
func (s *StockSink) Handle(_ context.Context, m queue.Message) error {
	typ, err := msg.TypeOf(m.Body)
	if err != nil {
		return err
	}
	if typ != msg.TypeStockUpdated {
		return nil
	}
	su, err := msg.DecodeStockUpdated(m.Body)
	if err != nil {
		return err
	}
	obs.StockNotificationsTotal.Inc()
	obs.Logger.Info("stock_updated",
		"product_id", su.ProductID,
		"product_name", su.ProductName,
		"previous_stock", su.PreviousStock,
		"new_stock", su.NewStock,
		"updated_by", su.UpdatedBy,
		"updated_date_utc", su.UpdatedDateUTC,
	)
	return nil
}
