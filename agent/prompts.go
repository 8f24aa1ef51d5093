package agent

import (
	"fmt"
	"strings"
	"time"

	"llmtrader/config"
	"llmtrader/decision"
)

const systemPrompt = `You are an expert financial analyst and quantitative trader specializing in momentum and event-driven strategies.

Your role is to analyze market news, sentiment, and company events to identify high-conviction trading opportunities with strict risk management.

STRATEGY: Hype & Event Momentum
- Focus on stocks with significant news catalysts and momentum
- Long positions when sentiment is positive with high hype scores
- Short positions when sentiment is negative with low hype scores
- No trade otherwise

QUANTITATIVE GATES (ALL MUST PASS):
- Price >= $5 USD (no penny stocks)
- Average daily volume >= 1,000,000 shares
- Bid-ask spread <= 1%
- Not within 2 trading days of earnings (unless earnings is the catalyst)
- Sufficient liquidity for position size

OUTPUT FORMAT:
You MUST return ONLY valid JSON following the exact schema provided. No additional text, explanations, or markdown formatting.

If any quantitative gate fails or evidence is insufficient, return no-trade with a brief reason in the safety section.

Be conservative and thorough. Quality over quantity. Only trade when you have high confidence.`

const repairPromptFormat = `The JSON you provided has validation errors. Please fix the following issues and return ONLY the corrected JSON:

ERRORS:
%s

ORIGINAL JSON:
%s

Return the corrected JSON with no additional text or formatting.`

func buildRunPrompt(req decision.Request, strategy config.StrategyConfig, now time.Time) string {
	focus := "Market scan (top movers, news-driven stocks)"
	if len(req.FocusSymbols) > 0 {
		focus = strings.Join(req.FocusSymbols, ", ")
	}
	exposures := "None"
	if len(req.NotableExposures) > 0 {
		exposures = strings.Join(req.NotableExposures, ", ")
	}
	cash := req.CashEstimate
	if cash == "" {
		cash = "Unknown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TRADING ANALYSIS REQUEST\n\n")
	fmt.Fprintf(&b, "Current Time: %s\n\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "PORTFOLIO CONTEXT:\n")
	fmt.Fprintf(&b, "Cash Estimate: %s\n", cash)
	fmt.Fprintf(&b, "Notable Exposures: %s\n", exposures)
	fmt.Fprintf(&b, "Current Positions: %d/%d\n\n", req.NumPositions, strategy.MaxPositions)
	fmt.Fprintf(&b, "UNIVERSE TO ANALYZE:\n%s\n\n", focus)
	fmt.Fprintf(&b, "RISK PARAMETERS:\n")
	fmt.Fprintf(&b, "- Risk per position: %.2f%% of equity\n", strategy.RiskPerPositionPct)
	fmt.Fprintf(&b, "- Max positions: %d\n", strategy.MaxPositions)
	fmt.Fprintf(&b, "- Kill switch drawdown limit: %.1f%%\n\n", strategy.KillSwitchPct)
	fmt.Fprintf(&b, "INSTRUCTIONS:\n")
	fmt.Fprintf(&b, "1. Research each symbol for recent news and catalysts\n")
	fmt.Fprintf(&b, "2. Apply all quantitative gates strictly\n")
	fmt.Fprintf(&b, "3. Make trading decisions based on strategy rules\n")
	fmt.Fprintf(&b, "4. Return ONLY valid JSON - no other text\n")
	return b.String()
}
