package order

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abcretail/order-service/internal/fault"
	"github.com/abcretail/order-service/internal/model"
	"github.com/abcretail/order-service/internal/msg"
)

func TestIntakeQueuesSnapshotMessage(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "prod-1", "249.90", 50)
	e.seedCustomer(t, "cust-1", "Ada", "Okafor")
	intake := NewIntake(e.cfg, e.tables, e.orderQ)

	view, err := intake.Create(context.Background(), CreateRequest{
		CustomerID: "cust-1", ProductID: "prod-1", Quantity: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusQueued, view.Status)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "Espresso Machine", view.ProductName)
	assert.True(t, view.UnitPrice.Equal(decimal.RequireFromString("249.90")))
	assert.True(t, view.TotalAmount.Equal(decimal.RequireFromString("1249.50")))

	// No order record exists yet: creation is owned by the consumer.
	_, exists := e.order(t, view.ID)
	assert.False(t, exists)

	m, ok := e.orderQ.TryDequeue()
	require.True(t, ok, "expected a CreateOrder message")
	co, err := msg.DecodeCreateOrder(m.Body)
	require.NoError(t, err)
	assert.Equal(t, msg.TypeCreateOrder, co.Type)
	assert.Equal(t, view.ID, co.OrderID)
	assert.Equal(t, "cust-1", co.CustomerID)
	assert.Equal(t, "Ada Okafor", co.CustomerName)
	assert.Equal(t, "prod-1", co.ProductID)
	assert.Equal(t, "Espresso Machine", co.ProductName)
	assert.Equal(t, 5, co.Quantity)
	assert.True(t, co.UnitPrice.Equal(decimal.RequireFromString("249.90")))
	assert.Equal(t, 50, co.PreviousStock)
}

func TestIntakeValidation(t *testing.T) {
	e := newEnv(t)
	intake := NewIntake(e.cfg, e.tables, e.orderQ)

	cases := []CreateRequest{
		{ProductID: "p", Quantity: 1},
		{CustomerID: "c", Quantity: 1},
		{CustomerID: "c", ProductID: "p", Quantity: 0},
		{CustomerID: "c", ProductID: "p", Quantity: -3},
	}
	for _, req := range cases {
		_, err := intake.Create(context.Background(), req)
		assert.True(t, fault.IsValidation(err), "request %+v: got %v", req, err)
	}
	assert.Equal(t, 0, e.orderQ.Len(), "rejected requests must not publish")
}

func TestIntakeUnknownReferences(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "prod-1", "10.00", 5)
	e.seedCustomer(t, "cust-1", "Ada", "Okafor")
	intake := NewIntake(e.cfg, e.tables, e.orderQ)

	_, err := intake.Create(context.Background(), CreateRequest{
		CustomerID: "cust-1", ProductID: "ghost", Quantity: 1,
	})
	require.True(t, fault.IsNotFound(err))
	assert.EqualError(t, err, "Invalid ProductId")

	_, err = intake.Create(context.Background(), CreateRequest{
		CustomerID: "ghost", ProductID: "prod-1", Quantity: 1,
	})
	require.True(t, fault.IsNotFound(err))
	assert.EqualError(t, err, "Invalid CustomerId")

	assert.Equal(t, 0, e.orderQ.Len())
}

func TestIntakeInsufficientStock(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "prod-1", "10.00", 50)
	e.seedCustomer(t, "cust-1", "Ada", "Okafor")
	intake := NewIntake(e.cfg, e.tables, e.orderQ)

	_, err := intake.Create(context.Background(), CreateRequest{
		CustomerID: "cust-1", ProductID: "prod-1", Quantity: 51,
	})
	require.True(t, fault.IsInsufficientStock(err))

	var ise *fault.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 50, ise.Available)
	assert.Equal(t, 51, ise.Requested)

	assert.Equal(t, 0, e.orderQ.Len(), "no message may be published on rejection")
	assert.Equal(t, 50, e.product(t, "prod-1").StockAvailable)
}

func TestIntakeRejectsWhenQueueClosed(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "prod-1", "10.00", 5)
	e.seedCustomer(t, "cust-1", "Ada", "Okafor")
	intake := NewIntake(e.cfg, e.tables, e.orderQ)

	e.orderQ.CloseIntake()
	_, err := intake.Create(context.Background(), CreateRequest{
		CustomerID: "cust-1", ProductID: "prod-1", Quantity: 1,
	})
	require.Error(t, err)
	var te *fault.TransientError
	assert.ErrorAs(t, err, &te)
}
