// Package agent generates trading decisions through an OpenRouter
// chat-completions model. Responses must be strict JSON; a response that
// fails schema validation gets one repair round-trip before the cycle is
// declared failed.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"llmtrader/config"
	"llmtrader/decision"
	"llmtrader/pkg/id"
)

// Metrics counts agent activity since construction.
type Metrics struct {
	TotalCalls        int
	SuccessfulCalls   int
	FailedCalls       int
	TotalTokens       int
	RepairAttempts    int
	SuccessfulRepairs int
}

// Agent is the OpenRouter-backed decision generator.
type Agent struct {
	client   *resty.Client
	cfg      config.LLMConfig
	strategy config.StrategyConfig
	log      *zap.Logger

	mu      sync.Mutex
	metrics Metrics
}

var _ decision.Generator = (*Agent)(nil)

func New(cfg config.LLMConfig, strategy config.StrategyConfig, log *zap.Logger) *Agent {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &Agent{
		client:   client,
		cfg:      cfg,
		strategy: strategy,
		log:      log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// GenerateDecision runs one prompt/validate/repair cycle and returns a
// validated decision stamped with a fresh run id.
func (a *Agent) GenerateDecision(ctx context.Context, req decision.Request) (*decision.Decision, error) {
	runID := id.NewRunID()
	now := time.Now()
	log := a.log.With(zap.String("run_id", runID))

	prompt := buildRunPrompt(req, a.strategy, now)
	content, err := a.chat(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate decision %s: %w", runID, err)
	}

	d, err := a.parseDecision(content)
	if err != nil {
		log.Warn("decision failed validation, attempting repair", zap.Error(err))
		d, err = a.repair(ctx, content, err)
		if err != nil {
			return nil, fmt.Errorf("generate decision %s: %w", runID, err)
		}
	}

	d.RunID = runID
	d.Timestamp = now
	log.Info("decision generated",
		zap.Int("research_items", len(d.Research)),
		zap.Int("decision_items", len(d.Items)))
	return d, nil
}

func (a *Agent) chat(ctx context.Context, userPrompt string) (string, error) {
	body := chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * time.Second
			a.log.Warn("model call failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		a.countCall()

		var out chatResponse
		resp, err := a.client.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&out).
			Post("/chat/completions")
		if err != nil {
			lastErr = err
			a.countFailure()
			continue
		}
		if resp.IsError() {
			lastErr = fmt.Errorf("model call: status %d: %s", resp.StatusCode(), resp.String())
			a.countFailure()
			continue
		}
		if len(out.Choices) == 0 {
			lastErr = fmt.Errorf("model call: empty choices")
			a.countFailure()
			continue
		}

		a.countSuccess(out.Usage.TotalTokens)
		return strings.TrimSpace(out.Choices[0].Message.Content), nil
	}
	return "", fmt.Errorf("model call: retries exhausted: %w", lastErr)
}

func (a *Agent) parseDecision(content string) (*decision.Decision, error) {
	raw := extractJSON(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var d decision.Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	// Validation happens before run id stamping, so fill a placeholder.
	if d.RunID == "" {
		d.RunID = "pending"
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (a *Agent) repair(ctx context.Context, original string, cause error) (*decision.Decision, error) {
	a.mu.Lock()
	a.metrics.RepairAttempts++
	a.mu.Unlock()

	prompt := fmt.Sprintf(repairPromptFormat, cause.Error(), extractJSON(original))
	content, err := a.chat(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("repair: %w", err)
	}

	d, err := a.parseDecision(content)
	if err != nil {
		return nil, fmt.Errorf("repair failed: %w", err)
	}

	a.mu.Lock()
	a.metrics.SuccessfulRepairs++
	a.mu.Unlock()
	return d, nil
}

// extractJSON pulls the JSON object out of a model response that may wrap
// it in prose or a markdown code fence.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		return text
	}

	if i := strings.Index(text, "```json"); i >= 0 {
		rest := text[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return ""
}

// GetMetrics returns a copy of the current counters.
func (a *Agent) GetMetrics() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metrics
}

func (a *Agent) countCall() {
	a.mu.Lock()
	a.metrics.TotalCalls++
	a.mu.Unlock()
}

func (a *Agent) countSuccess(tokens int) {
	a.mu.Lock()
	a.metrics.SuccessfulCalls++
	a.metrics.TotalTokens += tokens
	a.mu.Unlock()
}

func (a *Agent) countFailure() {
	a.mu.Lock()
	a.metrics.FailedCalls++
	a.mu.Unlock()
}
