// Package decision defines the trading-decision schema produced by the
// decision generator and consumed by the runner and executor. A Decision is
// immutable once received: one batch of per-symbol recommendations for a
// single run.
package decision

import (
	"context"
	"fmt"
	"time"
)

// Action is a per-symbol trading recommendation.
type Action string

const (
	ActionLong    Action = "long"
	ActionShort   Action = "short"
	ActionNoTrade Action = "no-trade"
)

// Valid reports whether the action is one of the known values.
func (a Action) Valid() bool {
	switch a {
	case ActionLong, ActionShort, ActionNoTrade:
		return true
	}
	return false
}

// IsTrade reports whether the action requires an order.
func (a Action) IsTrade() bool {
	return a == ActionLong || a == ActionShort
}

// OrderKind is the requested order type.
type OrderKind string

const (
	OrderMarket OrderKind = "market"
	OrderLimit  OrderKind = "limit"
)

// OrderPlan describes how an item should be entered. StopLogic and
// TakeProfitLogic are free-text hints ("stop 3% below entry", "2R target");
// the sizing engine parses them best-effort and falls back to documented
// defaults.
type OrderPlan struct {
	Type            OrderKind `json:"type"`
	EntryNote       string    `json:"entry_note"`
	LimitPrice      *float64  `json:"limit_price,omitempty"`
	StopLogic       string    `json:"stop_logic"`
	TakeProfitLogic string    `json:"take_profit_logic"`
	SizePctEquity   float64   `json:"size_pct_equity"`
	QtyEstimate     int       `json:"qty_estimate"`
}

// Item is the decision for a single symbol.
type Item struct {
	Symbol             string     `json:"symbol"`
	Action             Action     `json:"action"`
	Confidence         float64    `json:"confidence"`
	UpsideDownsideRatio float64   `json:"upside_downside_ratio"`
	ExpectedReturn     string     `json:"exp_return_brief"`
	OrderPlan          *OrderPlan `json:"order_plan,omitempty"`
}

// Source is one news source backing a research item.
type Source struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Publisher string `json:"publisher"`
	Date      string `json:"date"`
	Takeaway  string `json:"takeaway"`
}

// Research is the analysis behind a decision item.
type Research struct {
	Symbol      string   `json:"symbol"`
	Thesis      string   `json:"thesis"`
	Sentiment   string   `json:"sentiment"`
	HypeScore   float64  `json:"hype_score"`
	Catalyst    string   `json:"catalyst"`
	LiquidityOK bool     `json:"liquidity_ok"`
	Sources     []Source `json:"sources"`
	Checks      []string `json:"checks"`
	Risks       []string `json:"risks"`
}

// PositionsContext captures the portfolio state the generator saw.
type PositionsContext struct {
	CashEstimate     string   `json:"cash_estimate"`
	NotableExposures []string `json:"notable_exposures"`
}

// Safety carries the generator's risk commentary.
type Safety struct {
	WhyNoTrade           string `json:"why_no_trade_if_any,omitempty"`
	KillSwitchSuggestion string `json:"drawdown_kill_switch_suggestion"`
}

// Decision is one complete batch of recommendations for a single run.
type Decision struct {
	SchemaVersion    int              `json:"schema_version"`
	RunID            string           `json:"run_id"`
	Timestamp        time.Time        `json:"timestamp_local"`
	Universe         []string         `json:"universe_considered"`
	PositionsContext PositionsContext `json:"positions_context"`
	Research         []Research       `json:"research"`
	Items            []Item           `json:"decision"`
	Notes            []string         `json:"notes,omitempty"`
	Safety           Safety           `json:"safety"`
}

// Validate enforces the decision contract. A trade action without an order
// plan is a contract violation here, before anything reaches the executor.
func (d *Decision) Validate() error {
	if d.RunID == "" {
		return fmt.Errorf("decision: run_id is required")
	}
	if d.Timestamp.IsZero() {
		return fmt.Errorf("decision: timestamp is required")
	}
	for i, item := range d.Items {
		if item.Symbol == "" {
			return fmt.Errorf("decision: item %d: symbol is required", i)
		}
		if !item.Action.Valid() {
			return fmt.Errorf("decision: item %d (%s): unknown action %q", i, item.Symbol, item.Action)
		}
		if item.Confidence < 0 || item.Confidence > 1 {
			return fmt.Errorf("decision: item %d (%s): confidence %v outside [0,1]", i, item.Symbol, item.Confidence)
		}
		if item.Action.IsTrade() && item.OrderPlan == nil {
			return fmt.Errorf("decision: item %d (%s): order_plan required for action %q", i, item.Symbol, item.Action)
		}
		if item.OrderPlan != nil {
			if item.OrderPlan.Type != OrderMarket && item.OrderPlan.Type != OrderLimit {
				return fmt.Errorf("decision: item %d (%s): unknown order type %q", i, item.Symbol, item.OrderPlan.Type)
			}
			if item.OrderPlan.Type == OrderLimit && item.OrderPlan.LimitPrice == nil {
				return fmt.Errorf("decision: item %d (%s): limit order without limit_price", i, item.Symbol)
			}
			if item.OrderPlan.SizePctEquity < 0 {
				return fmt.Errorf("decision: item %d (%s): negative size_pct_equity", i, item.Symbol)
			}
		}
	}
	return nil
}

// TradeItems returns the items that require an order, in decision order.
func (d *Decision) TradeItems() []Item {
	var out []Item
	for _, item := range d.Items {
		if item.Action.IsTrade() {
			out = append(out, item)
		}
	}
	return out
}

// Request is the portfolio context handed to the generator.
type Request struct {
	FocusSymbols     []string
	CashEstimate     string
	NotableExposures []string
	NumPositions     int
}

// Generator produces one Decision per trading cycle. Implementations are
// injected at construction so tests can substitute doubles.
type Generator interface {
	GenerateDecision(ctx context.Context, req Request) (*Decision, error)
}
