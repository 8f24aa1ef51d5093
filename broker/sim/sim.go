// Package sim is an in-memory broker gateway for dry runs and tests:
// market orders fill instantly at the posted quote, limit orders rest open
// until cancelled. No real money moves.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"llmtrader/broker"
	"llmtrader/pkg/id"
)

// Engine implements broker.Gateway against in-memory state.
type Engine struct {
	mu         sync.Mutex
	account    broker.Account
	quotes     map[string]broker.Quote
	positions  map[string]broker.Position
	orders     []broker.Order
	marketOpen bool
}

var _ broker.Gateway = (*Engine)(nil)

func New(account broker.Account) *Engine {
	return &Engine{
		account:    account,
		quotes:     make(map[string]broker.Quote),
		positions:  make(map[string]broker.Position),
		marketOpen: true,
	}
}

// SetQuote posts a quote. Symbols without a posted quote get a synthetic
// $100 quote so dry runs work without market data.
func (e *Engine) SetQuote(q broker.Quote) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quotes[q.Symbol] = q
}

// SetMarketOpen flips the simulated market clock.
func (e *Engine) SetMarketOpen(open bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.marketOpen = open
}

func (e *Engine) GetAccount(ctx context.Context) (*broker.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a := e.account
	return &a, nil
}

func (e *Engine) GetPositions(ctx context.Context) ([]broker.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]broker.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, p)
	}
	return out, nil
}

func (e *Engine) GetPosition(ctx context.Context, symbol string) (*broker.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("sim: no position for %s", symbol)
	}
	return &p, nil
}

func (e *Engine) SubmitOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	q := e.quoteLocked(req.Symbol)
	now := time.Now().UTC()

	order := broker.Order{
		ID:          id.New(),
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		Quantity:    req.Quantity,
		Type:        req.Type,
		Status:      "new",
		LimitPrice:  req.LimitPrice,
		StopPrice:   req.StopLoss,
		SubmittedAt: now,
	}

	if req.Type == "market" {
		fillPrice := q.Ask
		if req.Side == broker.Sell {
			fillPrice = q.Bid
		}
		order.Status = "filled"
		order.FilledQty = req.Quantity
		order.FilledPrice = &fillPrice
		order.FilledAt = &now
		e.fillLocked(req, fillPrice)
	}

	e.orders = append(e.orders, order)
	return order.ID, nil
}

// fillLocked applies a fill to the simulated account and positions.
func (e *Engine) fillLocked(req broker.OrderRequest, price float64) {
	cost := float64(req.Quantity) * price
	side := "long"
	qty := req.Quantity
	if req.Side == broker.Sell {
		side = "short"
		qty = -req.Quantity
		cost = -cost
	}

	e.account.Cash -= cost
	e.account.BuyingPower -= cost

	pos := e.positions[req.Symbol]
	pos.Symbol = req.Symbol
	pos.Quantity += qty
	pos.AvgCost = price
	pos.CurrentPrice = price
	pos.MarketValue = float64(pos.Quantity) * price
	pos.Side = side
	if pos.Quantity == 0 {
		delete(e.positions, req.Symbol)
		return
	}
	e.positions[req.Symbol] = pos
}

func (e *Engine) GetOrders(ctx context.Context, filter broker.OrdersFilter) ([]broker.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []broker.Order
	for _, o := range e.orders {
		switch filter.Status {
		case "open":
			if !o.Open() {
				continue
			}
		case "closed":
			if o.Open() {
				continue
			}
		}
		if len(filter.Symbols) > 0 && !contains(filter.Symbols, o.Symbol) {
			continue
		}
		out = append(out, o)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.orders {
		if e.orders[i].ID != orderID {
			continue
		}
		if !e.orders[i].Open() {
			return fmt.Errorf("sim: order %s is not open", orderID)
		}
		e.orders[i].Status = "canceled"
		return nil
	}
	return fmt.Errorf("sim: order %s not found", orderID)
}

func (e *Engine) GetQuote(ctx context.Context, symbol string) (*broker.Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q := e.quoteLocked(symbol)
	return &q, nil
}

func (e *Engine) IsMarketOpen(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.marketOpen, nil
}

func (e *Engine) quoteLocked(symbol string) broker.Quote {
	if q, ok := e.quotes[symbol]; ok {
		return q
	}
	return broker.Quote{Symbol: symbol, Bid: 99.99, Ask: 100.01, Time: time.Now().UTC()}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
