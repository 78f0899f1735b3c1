package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/strategy"
)

// Generator produces trading signals from an LLM. Any transport or auth
// failure surfaces as strategy.ErrUnavailable so arbitration falls through
// to the rule strategies; a parseable but malformed signal is a validation
// rejection, not an availability problem.
type Generator struct {
	client        *Client
	minConfidence float64
}

func NewGenerator(client *Client, minConfidence float64) *Generator {
	return &Generator{client: client, minConfidence: minConfidence}
}

func (g *Generator) Name() string { return "AI" }

// MinConfidence is the floor below which arbitration ignores AI output.
func (g *Generator) MinConfidence() float64 { return g.minConfidence }

type rawSignal struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	EntryPrice float64 `json:"entry_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Reason     string  `json:"reason"`
}

func (g *Generator) Generate(ctx context.Context, symbol string, snap strategy.Snapshot) (*strategy.Signal, error) {
	raw, err := g.client.Complete(ctx, signalPrompt(symbol, snap))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", strategy.ErrUnavailable, err)
	}

	var parsed rawSignal
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("unparseable ai response: %w", err)
	}

	action := strategy.Action(strings.ToUpper(strings.TrimSpace(parsed.Action)))
	if action == strategy.ActionFlat {
		return nil, nil
	}

	sig := &strategy.Signal{
		Symbol:     symbol,
		Action:     action,
		Confidence: parsed.Confidence,
		EntryPrice: parsed.EntryPrice,
		StopLoss:   parsed.StopLoss,
		TakeProfit: parsed.TakeProfit,
		Source:     "AI",
		Reason:     parsed.Reason,
		Timestamp:  time.Now().UTC(),
	}
	if err := sig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ai signal: %w", err)
	}
	return sig, nil
}

// stripMarkdownCodeBlock unwraps ```json fences the model sometimes adds
// despite the prompt, then falls back to the outermost brace pair.
func stripMarkdownCodeBlock(s string) string {
	s = strings.TrimSpace(s)

	if idx := strings.Index(s, "```json"); idx >= 0 {
		rest := s[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// MetaValidator asks the model to second-guess a chosen signal. It fails
// open: any error, timeout, or missing key approves the signal, because a
// broken validator must not stop the engine.
type MetaValidator struct {
	client  *Client
	enabled bool
}

func NewMetaValidator(client *Client, enabled bool) *MetaValidator {
	return &MetaValidator{client: client, enabled: enabled}
}

type riskVerdict struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// Approve returns whether the signal should proceed.
func (m *MetaValidator) Approve(ctx context.Context, sig *strategy.Signal, snap strategy.Snapshot) bool {
	if !m.enabled || m.client == nil {
		return true
	}

	log := logging.Component("ai.meta")

	raw, err := m.client.Complete(ctx, riskPrompt(sig, snap))
	if err != nil {
		log.Debug().Err(err).Str("symbol", sig.Symbol).Msg("meta validation unavailable, approving")
		return true
	}

	var verdict riskVerdict
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(raw)), &verdict); err != nil {
		log.Debug().Err(err).Str("symbol", sig.Symbol).Msg("meta verdict unparseable, approving")
		return true
	}

	if !verdict.Approved {
		log.Warn().Str("symbol", sig.Symbol).Str("action", string(sig.Action)).
			Str("reason", verdict.Reason).Msg("meta validator rejected signal")
	}
	return verdict.Approved
}
