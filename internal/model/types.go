// Package model defines domain types used by the service.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses. An order is Queued between intake and fulfillment,
// Submitted once the fulfillment consumer has persisted it, and any
// caller-supplied value afterwards.
const (
	StatusQueued    = "Queued"
	StatusSubmitted = "Submitted"
)

// Order is the persisted order record. UnitPrice and ProductName are
// snapshots taken at intake time.
type Order struct {
	ID           string          `json:"Id"`
	CustomerID   string          `json:"CustomerId"`
	ProductID    string          `json:"ProductId"`
	ProductName  string          `json:"ProductName"`
	Quantity     int             `json:"Quantity"`
	UnitPrice    decimal.Decimal `json:"UnitPrice"`
	OrderDateUTC time.Time       `json:"OrderDateUtc"`
	Status       string          `json:"Status"`
}

// OrderView is the order representation returned on the synchronous boundary.
type OrderView struct {
	Order
	TotalAmount decimal.Decimal `json:"TotalAmount"`
}

// View derives the outward representation of an order.
func (o Order) View() OrderView {
	return OrderView{
		Order:       o,
		TotalAmount: o.UnitPrice.Mul(decimal.NewFromInt(int64(o.Quantity))),
	}
}

// Product is the inventory record. StockAvailable is a shared mutable
// counter guarded only by the store's version tag.
type Product struct {
	ID             string          `json:"Id"`
	ProductName    string          `json:"ProductName"`
	Description    string          `json:"Description,omitempty"`
	Price          decimal.Decimal `json:"Price"`
	StockAvailable int             `json:"StockAvailable"`
	ImageURL       string          `json:"ImageUrl,omitempty"`
}

// Customer is read-only to the pipeline.
type Customer struct {
	ID              string `json:"Id"`
	Name            string `json:"Name"`
	Surname         string `json:"Surname"`
	Username        string `json:"Username,omitempty"`
	Email           string `json:"Email,omitempty"`
	ShippingAddress string `json:"ShippingAddress,omitempty"`
}

// StockApplied marks that the inventory delta for an order has been
// applied, so a redelivered creation message skips the decrement.
type StockApplied struct {
	OrderID      string    `json:"OrderId"`
	ProductID    string    `json:"ProductId"`
	Quantity     int       `json:"Quantity"`
	AppliedAtUTC time.Time `json:"AppliedAtUtc"`
}
