// Package broker defines the gateway contract to the brokerage and the
// domain types shared by everything that reads account or order state.
package broker

import (
	"context"
	"time"
)

// Side of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Account is a read-only snapshot of the brokerage account for one cycle.
type Account struct {
	Equity           float64
	Cash             float64
	BuyingPower      float64
	PortfolioValue   float64
	DayTradeCount    int
	PatternDayTrader bool
}

// Position is an open position as reported by the broker.
type Position struct {
	Symbol       string
	Quantity     int
	AvgCost      float64
	CurrentPrice float64
	UnrealizedPL float64
	MarketValue  float64
	Side         string // "long" or "short"
}

// Order is an order as reported by the broker.
type Order struct {
	ID          string
	Symbol      string
	Side        string
	Quantity    int
	Type        string
	Status      string
	FilledQty   int
	FilledPrice *float64
	LimitPrice  *float64
	StopPrice   *float64
	SubmittedAt time.Time
	FilledAt    *time.Time
}

// Filled reports whether the order is completely filled.
func (o Order) Filled() bool {
	return o.Status == "filled"
}

// Open reports whether the order can still be cancelled.
func (o Order) Open() bool {
	switch o.Status {
	case "new", "accepted", "pending_new", "partially_filled", "open":
		return true
	}
	return false
}

// Quote is the latest bid/ask for a symbol.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

// Mid returns the bid/ask midpoint, the price the sizing engine works from.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// OrderRequest describes one order submission. StopLoss and TakeProfit are
// only honoured when the gateway supports bracket orders and the caller
// opted in; a nil value means entry-only.
type OrderRequest struct {
	Symbol      string
	Side        Side
	Quantity    int
	Type        string // "market" or "limit"
	LimitPrice  *float64
	StopLoss    *float64
	TakeProfit  *float64
	TimeInForce string // defaults to "day"
}

// OrdersFilter narrows a GetOrders call.
type OrdersFilter struct {
	Status  string // "open", "closed", "all"
	Symbols []string
	Limit   int
}

// Gateway is the brokerage contract consumed by the executor and runner.
/// Implementations own their retry policy: a returned error means retries
// are already exhausted.
type Gateway interface {
	GetAccount(ctx context.Context) (*Account, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetPosition(ctx context.Context, symbol string) (*Position, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (string, error)
	GetOrders(ctx context.Context, filter OrdersFilter) ([]Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	IsMarketOpen(ctx context.Context) (bool, error)
}
