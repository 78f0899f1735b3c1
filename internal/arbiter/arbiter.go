package arbiter

import (
	"context"
	"errors"

	"paper-trading-bot/internal/events"
	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/strategy"
)

// Rejection reason codes attached to SIGNAL_REJECTED events.
const (
	ReasonValidation   = "VALIDATION"
	ReasonMetaRejected = "META_REJECTED"
)

// Approver is the second-opinion risk check applied to the winning signal.
type Approver interface {
	Approve(ctx context.Context, sig *strategy.Signal, snap strategy.Snapshot) bool
}

// Arbiter picks at most one signal per symbol per cycle. The AI source is
// primary: a valid AI signal at or above the confidence floor wins without
// consulting the rules. Otherwise the rule sources compete on confidence,
// with registration order breaking ties.
type Arbiter struct {
	ai            strategy.SignalSource
	aiMinConfidence float64
	rules         []strategy.SignalSource
	meta          Approver
	bus           *events.EventBus
}

// New builds an arbiter. ai and meta may be nil; rules must be given in
// priority order.
func New(ai strategy.SignalSource, aiMinConfidence float64, rules []strategy.SignalSource, meta Approver, bus *events.EventBus) *Arbiter {
	return &Arbiter{
		ai:              ai,
		aiMinConfidence: aiMinConfidence,
		rules:           rules,
		meta:            meta,
		bus:             bus,
	}
}

// Choose returns the winning signal for symbol, or nil when no source
// produced an acceptable one.
func (a *Arbiter) Choose(ctx context.Context, symbol string, snap strategy.Snapshot) *strategy.Signal {
	log := logging.Component("arbiter")

	chosen := a.tryAI(ctx, symbol, snap)
	if chosen == nil {
		chosen = a.bestRule(ctx, symbol, snap)
	}
	if chosen == nil {
		return nil
	}

	if a.meta != nil && !a.meta.Approve(ctx, chosen, snap) {
		log.Info().Str("symbol", symbol).Str("source", chosen.Source).Msg("signal vetoed by meta validator")
		a.publishRejected(symbol, chosen.Source, ReasonMetaRejected)
		return nil
	}

	log.Info().
		Str("symbol", symbol).
		Str("source", chosen.Source).
		Str("action", string(chosen.Action)).
		Float64("confidence", chosen.Confidence).
		Msg("signal chosen")
	if a.bus != nil {
		a.bus.PublishSignal(chosen.Source, symbol, string(chosen.Action), chosen.Confidence, chosen.EntryPrice)
	}
	return chosen
}

func (a *Arbiter) tryAI(ctx context.Context, symbol string, snap strategy.Snapshot) *strategy.Signal {
	if a.ai == nil {
		return nil
	}
	log := logging.Component("arbiter")

	sig, err := a.ai.Generate(ctx, symbol, snap)
	switch {
	case errors.Is(err, strategy.ErrUnavailable):
		// Normal fallback path, not an error worth more than debug noise.
		log.Debug().Str("symbol", symbol).Err(err).Msg("ai source unavailable, falling back to rules")
		return nil
	case err != nil:
		// The AI answered but produced garbage.
		log.Warn().Str("symbol", symbol).Err(err).Msg("ai signal rejected")
		a.publishRejected(symbol, "AI", ReasonValidation)
		return nil
	case sig == nil:
		return nil
	case sig.Confidence < a.aiMinConfidence:
		log.Debug().Str("symbol", symbol).Float64("confidence", sig.Confidence).
			Float64("floor", a.aiMinConfidence).Msg("ai confidence below floor, falling back to rules")
		return nil
	}
	return sig
}

// bestRule runs every rule and keeps the highest confidence. A strict
// comparison means earlier (higher priority) rules win exact ties.
func (a *Arbiter) bestRule(ctx context.Context, symbol string, snap strategy.Snapshot) *strategy.Signal {
	var best *strategy.Signal
	for _, rule := range a.rules {
		sig, err := rule.Generate(ctx, symbol, snap)
		if err != nil || sig == nil {
			continue
		}
		if best == nil || sig.Confidence > best.Confidence {
			best = sig
		}
	}
	return best
}

func (a *Arbiter) publishRejected(symbol, source, reason string) {
	if a.bus != nil {
		a.bus.PublishSignalRejected(symbol, source, reason)
	}
}
