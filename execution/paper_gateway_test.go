package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherwood-quant/core/models"
)

func TestPaperGateway_BuyThenSell(t *testing.T) {
	g := NewPaperGateway(10000, "USD")
	g.SetPrice("AAPL", 100)

	order, err := g.SubmitOrder(context.Background(), OrderSpec{
		Symbol: "AAPL", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, order.Status)

	snap, err := g.AccountBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9000.0, snap.CashByCurrency["USD"])
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 10.0, snap.Positions[0].Quantity)
	assert.Equal(t, 100.0, snap.Positions[0].AverageCost)

	g.SetPrice("AAPL", 110)
	_, err = g.SubmitOrder(context.Background(), OrderSpec{
		Symbol: "AAPL", Side: models.OrderSideSell, Type: models.OrderTypeMarket, Quantity: 10,
	})
	require.NoError(t, err)

	snap, err = g.AccountBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10100.0, snap.CashByCurrency["USD"])
	assert.Empty(t, snap.Positions)
}

func TestPaperGateway_InsufficientFunds(t *testing.T) {
	g := NewPaperGateway(500, "USD")
	g.SetPrice("AAPL", 100)

	order, err := g.SubmitOrder(context.Background(), OrderSpec{
		Symbol: "AAPL", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: 10,
	})
	require.Error(t, err)
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusRejected, order.Status)

	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, ErrInsufficientFunds, ge.Kind)
}

func TestPaperGateway_InvalidQuantity(t *testing.T) {
	g := NewPaperGateway(1000, "USD")
	_, err := g.SubmitOrder(context.Background(), OrderSpec{
		Symbol: "AAPL", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: 0,
	})
	require.Error(t, err)
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, ErrInvalidQuantity, ge.Kind)
}

func TestPaperGateway_AveragingCost(t *testing.T) {
	g := NewPaperGateway(100000, "USD")
	g.SetPrice("AAPL", 100)
	_, err := g.SubmitOrder(context.Background(), OrderSpec{
		Symbol: "AAPL", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: 10,
	})
	require.NoError(t, err)

	g.SetPrice("AAPL", 120)
	_, err = g.SubmitOrder(context.Background(), OrderSpec{
		Symbol: "AAPL", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: 10,
	})
	require.NoError(t, err)

	snap, err := g.AccountBalance(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Positions, 1)
	assert.InDelta(t, 110.0, snap.Positions[0].AverageCost, 0.001)
	assert.Equal(t, 20.0, snap.Positions[0].Quantity)
}

func TestPaperGateway_CancelAndReplace(t *testing.T) {
	g := NewPaperGateway(10000, "USD")
	g.SetPrice("AAPL", 100)
	order, err := g.SubmitOrder(context.Background(), OrderSpec{
		Symbol: "AAPL", Side: models.OrderSideBuy, Type: models.OrderTypeLimit, Price: 90, Quantity: 5,
	})
	require.NoError(t, err)

	// A limit order fills instantly in the paper simulation; cancelling a
	// filled order must fail.
	err = g.CancelOrder(context.Background(), order.ID)
	require.Error(t, err)

	err = g.CancelOrder(context.Background(), "nonexistent")
	require.Error(t, err)

	_, replaceErr := g.ReplaceOrder(context.Background(), "nonexistent", 1, 1)
	require.Error(t, replaceErr)
}

func TestPaperGateway_OnOrderChangedCallback(t *testing.T) {
	g := NewPaperGateway(10000, "USD")
	g.SetPrice("AAPL", 100)

	done := make(chan models.Order, 1)
	g.OnOrderChanged(func(o models.Order) { done <- o })

	_, err := g.SubmitOrder(context.Background(), OrderSpec{
		Symbol: "AAPL", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: 1,
	})
	require.NoError(t, err)

	select {
	case o := <-done:
		assert.Equal(t, "AAPL", o.Symbol)
	case <-context.Background().Done():
		t.Fatal("callback not invoked")
	}
}

func TestPaperGateway_TodayOrdersExcludesCancelled(t *testing.T) {
	g := NewPaperGateway(10000, "USD")
	g.SetPrice("AAPL", 100)

	orders, err := g.TodayOrders(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, err = g.SubmitOrder(context.Background(), OrderSpec{
		Symbol: "AAPL", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: 1,
	})
	require.NoError(t, err)

	orders, err = g.TodayOrders(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	now := time.Now()
	g.orders["paper-cancelled"] = models.Order{
		ID: "paper-cancelled", Symbol: "AAPL", Side: models.OrderSideBuy,
		Status: models.OrderStatusCancelled, CreatedAt: now, UpdatedAt: now,
	}
	orders, err = g.TodayOrders(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}
