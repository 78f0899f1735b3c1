package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Action is the direction a signal proposes.
type Action string

const (
	ActionLong  Action = "LONG"
	ActionShort Action = "SHORT"
	ActionFlat  Action = "FLAT"
)

// ErrUnavailable marks a source that could not produce a signal for
// infrastructure reasons (timeout, API failure, missing credentials).
// Arbitration treats it as "skip this source", not as a trading error.
var ErrUnavailable = errors.New("signal source unavailable")

// Signal is a fully specified trade proposal.
type Signal struct {
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Source     string    `json:"source"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate checks structural soundness: confidence bounds, finite positive
// prices, and stop/target ordering consistent with the direction.
func (s *Signal) Validate() error {
	if s == nil {
		return errors.New("nil signal")
	}
	if s.Symbol == "" {
		return errors.New("signal missing symbol")
	}
	if s.Action != ActionLong && s.Action != ActionShort && s.Action != ActionFlat {
		return fmt.Errorf("invalid action %q", s.Action)
	}
	if s.Action == ActionFlat {
		return nil
	}
	if s.Confidence < 0 || s.Confidence > 1 || math.IsNaN(s.Confidence) {
		return fmt.Errorf("confidence %v out of range [0,1]", s.Confidence)
	}
	for name, p := range map[string]float64{
		"entry_price": s.EntryPrice,
		"stop_loss":   s.StopLoss,
		"take_profit": s.TakeProfit,
	} {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%s must be a positive finite price, got %v", name, p)
		}
	}
	switch s.Action {
	case ActionLong:
		if !(s.StopLoss < s.EntryPrice && s.EntryPrice < s.TakeProfit) {
			return fmt.Errorf("long requires stop < entry < target, got %v / %v / %v",
				s.StopLoss, s.EntryPrice, s.TakeProfit)
		}
	case ActionShort:
		if !(s.TakeProfit < s.EntryPrice && s.EntryPrice < s.StopLoss) {
			return fmt.Errorf("short requires target < entry < stop, got %v / %v / %v",
				s.TakeProfit, s.EntryPrice, s.StopLoss)
		}
	}
	return nil
}

// SignalSource produces at most one signal per symbol per cycle.
// A nil signal with nil error means "no opportunity".
type SignalSource interface {
	Name() string
	Generate(ctx context.Context, symbol string, snap Snapshot) (*Signal, error)
}
