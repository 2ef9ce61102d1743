// Package msg defines the JSON envelopes exchanged over the queues.
//
// The payload is a tagged union: every message carries a Type field and an
// ad hoc shape per type. Consumers parse the tag first and ignore unknown
// tags so new message kinds can be added without breaking old readers.
package msg

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Message type tags.
const (
	TypeCreateOrder        = "CreateOrder"
	TypeStockUpdated       = "StockUpdated"
	TypeOrderStatusUpdated = "OrderStatusUpdated"
)

// CreateOrder instructs the fulfillment consumer to persist an order and
// decrement stock. The order id is generated by the producer so the
// consumer never invents keys.
type CreateOrder struct {
	Type          string          `json:"Type"`
	OrderID       string          `json:"OrderId"`
	CustomerID    string          `json:"CustomerId"`
	CustomerName  string          `json:"CustomerName"`
	ProductID     string          `json:"ProductId"`
	ProductName   string          `json:"ProductName"`
	Quantity      int             `json:"Quantity"`
	UnitPrice     decimal.Decimal `json:"UnitPrice"`
	PreviousStock int             `json:"PreviousStock"`
}

// StockUpdated announces a stock change applied by the consumer.
type StockUpdated struct {
	Type           string    `json:"Type"`
	ProductID      string    `json:"ProductId"`
	ProductName    string    `json:"ProductName"`
	PreviousStock  int       `json:"PreviousStock"`
	NewStock       int       `json:"NewStock"`
	UpdatedDateUTC time.Time `json:"UpdatedDateUtc"`
	UpdatedBy      string    `json:"UpdatedBy"`
}

// OrderStatusUpdated announces a synchronous status transition.
type OrderStatusUpdated struct {
	Type           string    `json:"Type"`
	OrderID        string    `json:"OrderId"`
	PreviousStatus string    `json:"PreviousStatus"`
	NewStatus      string    `json:"NewStatus"`
	UpdatedDateUTC time.Time `json:"UpdatedDateUtc"`
	UpdatedBy      string    `json:"UpdatedBy"`
}

type envelope struct {
	Type string `json:"Type"`
}

// TypeOf extracts the type tag from a raw message body.
func TypeOf(body []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	return env.Type, nil
}

// Encode marshals a message for the wire.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}

// DecodeCreateOrder parses a CreateOrder body.
func DecodeCreateOrder(body []byte) (CreateOrder, error) {
	var m CreateOrder
	if err := json.Unmarshal(body, &m); err != nil {
		return CreateOrder{}, fmt.Errorf("decode CreateOrder: %w", err)
	}
	return m, nil
}

// DecodeStockUpdated parses a StockUpdated body.
func DecodeStockUpdated(body []byte) (StockUpdated, error) {
	var m StockUpdated
	if err := json.Unmarshal(body, &m); err != nil {
		return StockUpdated{}, fmt.Errorf("decode StockUpdated: %w", err)
	}
	return m, nil
}

// DecodeOrderStatusUpdated parses an OrderStatusUpdated body.
func DecodeOrderStatusUpdated(body []byte) (OrderStatusUpdated, error) {
	var m OrderStatusUpdated
	if err := json.Unmarshal(body, &m); err != nil {
		return OrderStatusUpdated{}, fmt.Errorf("decode OrderStatusUpdated: %w", err)
	}
	return m, nil
}
