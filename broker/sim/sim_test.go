package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmtrader/broker"
)

func newTestEngine() *Engine {
	return New(broker.Account{Equity: 100000, Cash: 100000, BuyingPower: 200000})
}

func TestMarketOrderFillsAtQuote(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	e.SetQuote(broker.Quote{Symbol: "AAPL", Bid: 49.98, Ask: 50.02, Time: time.Now()})

	ctx := context.Background()
	orderID, err := e.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: "AAPL", Side: broker.Buy, Quantity: 100, Type: "market",
	})
	require.NoError(t, err)
	require.NotEmpty(t, orderID)

	orders, err := e.GetOrders(ctx, broker.OrdersFilter{Status: "all"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "filled", orders[0].Status)
	require.NotNil(t, orders[0].FilledPrice)
	assert.Equal(t, 50.02, *orders[0].FilledPrice)

	pos, err := e.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 100, pos.Quantity)
	assert.Equal(t, "long", pos.Side)

	acct, err := e.GetAccount(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100000-100*50.02, acct.Cash, 0.001)
}

func TestShortSellOpensNegativePosition(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	e.SetQuote(broker.Quote{Symbol: "TSLA", Bid: 200.00, Ask: 200.10, Time: time.Now()})

	ctx := context.Background()
	_, err := e.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: "TSLA", Side: broker.Sell, Quantity: 10, Type: "market",
	})
	require.NoError(t, err)

	pos, err := e.GetPosition(ctx, "TSLA")
	require.NoError(t, err)
	assert.Equal(t, -10, pos.Quantity)
	assert.Equal(t, "short", pos.Side)

	acct, err := e.GetAccount(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100000+10*200.00, acct.Cash, 0.001)
}

func TestLimitOrderRestsAndCancels(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	ctx := context.Background()

	limit := 95.0
	orderID, err := e.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: "MSFT", Side: broker.Buy, Quantity: 50, Type: "limit", LimitPrice: &limit,
	})
	require.NoError(t, err)

	open, err := e.GetOrders(ctx, broker.OrdersFilter{Status: "open", Symbols: []string{"MSFT"}})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "new", open[0].Status)

	require.NoError(t, e.CancelOrder(ctx, orderID))

	open, err = e.GetOrders(ctx, broker.OrdersFilter{Status: "open"})
	require.NoError(t, err)
	assert.Empty(t, open)

	assert.Error(t, e.CancelOrder(ctx, orderID))
}

func TestSyntheticQuoteForUnknownSymbol(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	q, err := e.GetQuote(context.Background(), "NVDA")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, q.Mid(), 0.01)
}

func TestMarketClock(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	ctx := context.Background()

	open, err := e.IsMarketOpen(ctx)
	require.NoError(t, err)
	assert.True(t, open)

	e.SetMarketOpen(false)
	open, err = e.IsMarketOpen(ctx)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestRoundTripFlattensPosition(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	e.SetQuote(broker.Quote{Symbol: "AMD", Bid: 150.00, Ask: 150.04, Time: time.Now()})
	ctx := context.Background()

	_, err := e.SubmitOrder(ctx, broker.OrderRequest{Symbol: "AMD", Side: broker.Buy, Quantity: 20, Type: "market"})
	require.NoError(t, err)
	_, err = e.SubmitOrder(ctx, broker.OrderRequest{Symbol: "AMD", Side: broker.Sell, Quantity: 20, Type: "market"})
	require.NoError(t, err)

	positions, err := e.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}
