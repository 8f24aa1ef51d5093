// Package alpaca implements broker.Gateway against the Alpaca trading API.
package alpaca

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"llmtrader/broker"
	"llmtrader/config"
)

// Client wraps the Alpaca trading and market-data clients behind the
// gateway contract. Every call retries transient failures per the
// configured policy before reporting an error.
type Client struct {
	trade  *alpaca.Client
	md     *marketdata.Client
	policy broker.RetryPolicy
	log    *zap.Logger
}

var _ broker.Gateway = (*Client)(nil)

// New builds a gateway from config. BaseURL selects paper or live trading.
func New(cfg config.AlpacaConfig, log *zap.Logger) *Client {
	return &Client{
		trade: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.SecretKey,
			BaseURL:   cfg.BaseURL,
		}),
		md: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.SecretKey,
		}),
		policy: broker.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryDelayDuration(),
		},
		log: log,
	}
}

func (c *Client) GetAccount(ctx context.Context) (*broker.Account, error) {
	a, err := broker.Retry(ctx, c.policy, c.log, "getAccount", func() (*alpaca.Account, error) {
		return c.trade.GetAccount()
	})
	if err != nil {
		return nil, err
	}
	return &broker.Account{
		Equity:           a.Equity.InexactFloat64(),
		Cash:             a.Cash.InexactFloat64(),
		BuyingPower:      a.BuyingPower.InexactFloat64(),
		PortfolioValue:   a.PortfolioValue.InexactFloat64(),
		DayTradeCount:    int(a.DaytradeCount),
		PatternDayTrader: a.PatternDayTrader,
	}, nil
}

func (c *Client) GetPositions(ctx context.Context) ([]broker.Position, error) {
	raw, err := broker.Retry(ctx, c.policy, c.log, "getPositions", func() ([]alpaca.Position, error) {
		return c.trade.GetPositions()
	})
	if err != nil {
		return nil, err
	}
	out := make([]broker.Position, 0, len(raw))
	for i := range raw {
		out = append(out, mapPosition(&raw[i]))
	}
	return out, nil
}

func (c *Client) GetPosition(ctx context.Context, symbol string) (*broker.Position, error) {
	p, err := broker.Retry(ctx, c.policy, c.log, "getPosition", func() (*alpaca.Position, error) {
		return c.trade.GetPosition(symbol)
	})
	if err != nil {
		return nil, err
	}
	pos := mapPosition(p)
	return &pos, nil
}

func (c *Client) SubmitOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	qty := decimal.NewFromInt(int64(req.Quantity))
	tif := alpaca.Day
	if req.TimeInForce != "" {
		tif = alpaca.TimeInForce(req.TimeInForce)
	}
	preq := alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		Side:        alpaca.Side(req.Side),
		Type:        alpaca.OrderType(req.Type),
		TimeInForce: tif,
	}
	if req.Type == "limit" {
		if req.LimitPrice == nil {
			return "", fmt.Errorf("submitOrder %s: limit order without limit price", req.Symbol)
		}
		lp := decimal.NewFromFloat(*req.LimitPrice)
		preq.LimitPrice = &lp
	}
	if req.StopLoss != nil || req.TakeProfit != nil {
		preq.OrderClass = alpaca.Bracket
		if req.StopLoss != nil {
			sl := decimal.NewFromFloat(*req.StopLoss)
			preq.StopLoss = &alpaca.StopLoss{StopPrice: &sl}
		}
		if req.TakeProfit != nil {
			tp := decimal.NewFromFloat(*req.TakeProfit)
			preq.TakeProfit = &alpaca.TakeProfit{LimitPrice: &tp}
		}
	}

	o, err := broker.Retry(ctx, c.policy, c.log, "submitOrder", func() (*alpaca.Order, error) {
		return c.trade.PlaceOrder(preq)
	})
	if err != nil {
		return "", err
	}
	return o.ID, nil
}

func (c *Client) GetOrders(ctx context.Context, filter broker.OrdersFilter) ([]broker.Order, error) {
	greq := alpaca.GetOrdersRequest{
		Status:  filter.Status,
		Symbols: filter.Symbols,
		Limit:   filter.Limit,
	}
	raw, err := broker.Retry(ctx, c.policy, c.log, "getOrders", func() ([]alpaca.Order, error) {
		return c.trade.GetOrders(greq)
	})
	if err != nil {
		return nil, err
	}
	out := make([]broker.Order, 0, len(raw))
	for i := range raw {
		out = append(out, mapOrder(&raw[i]))
	}
	return out, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	_, err := broker.Retry(ctx, c.policy, c.log, "cancelOrder", func() (struct{}, error) {
		return struct{}{}, c.trade.CancelOrder(orderID)
	})
	return err
}

func (c *Client) GetQuote(ctx context.Context, symbol string) (*broker.Quote, error) {
	q, err := broker.Retry(ctx, c.policy, c.log, "getQuote", func() (*marketdata.Quote, error) {
		return c.md.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
	})
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("getQuote %s: no quote", symbol)
	}
	return &broker.Quote{
		Symbol: symbol,
		Bid:    q.BidPrice,
		Ask:    q.AskPrice,
		Time:   q.Timestamp,
	}, nil
}

func (c *Client) IsMarketOpen(ctx context.Context) (bool, error) {
	clock, err := broker.Retry(ctx, c.policy, c.log, "getClock", func() (*alpaca.Clock, error) {
		return c.trade.GetClock()
	})
	if err != nil {
		return false, err
	}
	return clock.IsOpen, nil
}

func mapPosition(p *alpaca.Position) broker.Position {
	pos := broker.Position{
		Symbol:   p.Symbol,
		Quantity: int(p.Qty.IntPart()),
		AvgCost:  p.AvgEntryPrice.InexactFloat64(),
		Side:     string(p.Side),
	}
	if p.CurrentPrice != nil {
		pos.CurrentPrice = p.CurrentPrice.InexactFloat64()
	}
	if p.UnrealizedPL != nil {
		pos.UnrealizedPL = p.UnrealizedPL.InexactFloat64()
	}
	if p.MarketValue != nil {
		pos.MarketValue = p.MarketValue.InexactFloat64()
	}
	return pos
}

func mapOrder(o *alpaca.Order) broker.Order {
	out := broker.Order{
		ID:          o.ID,
		Symbol:      o.Symbol,
		Side:        string(o.Side),
		Type:        string(o.Type),
		Status:      string(o.Status),
		FilledQty:   int(o.FilledQty.IntPart()),
		SubmittedAt: o.CreatedAt,
		FilledAt:    o.FilledAt,
	}
	if o.Qty != nil {
		out.Quantity = int(o.Qty.IntPart())
	}
	if o.FilledAvgPrice != nil {
		v := o.FilledAvgPrice.InexactFloat64()
		out.FilledPrice = &v
	}
	if o.LimitPrice != nil {
		v := o.LimitPrice.InexactFloat64()
		out.LimitPrice = &v
	}
	if o.StopPrice != nil {
		v := o.StopPrice.InexactFloat64()
		out.StopPrice = &v
	}
	return out
}
