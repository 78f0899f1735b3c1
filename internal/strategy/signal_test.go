package strategy

import (
	"testing"
	"time"
)

func validLong() *Signal {
	return &Signal{
		Symbol:     "BTCUSDT",
		Action:     ActionLong,
		Confidence: 0.7,
		EntryPrice: 100,
		StopLoss:   95,
		TakeProfit: 110,
		Source:     "RULE:momentum",
		Timestamp:  time.Now(),
	}
}

func TestValidateAcceptsWellFormedSignals(t *testing.T) {
	if err := validLong().Validate(); err != nil {
		t.Errorf("long: %v", err)
	}

	short := validLong()
	short.Action = ActionShort
	short.StopLoss = 105
	short.TakeProfit = 90
	if err := short.Validate(); err != nil {
		t.Errorf("short: %v", err)
	}

	flat := &Signal{Symbol: "BTCUSDT", Action: ActionFlat}
	if err := flat.Validate(); err != nil {
		t.Errorf("flat: %v", err)
	}
}

func TestValidateRejectsMalformedSignals(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Signal)
	}{
		{"missing symbol", func(s *Signal) { s.Symbol = "" }},
		{"bad action", func(s *Signal) { s.Action = "BUY" }},
		{"confidence above one", func(s *Signal) { s.Confidence = 1.5 }},
		{"negative confidence", func(s *Signal) { s.Confidence = -0.1 }},
		{"zero entry", func(s *Signal) { s.EntryPrice = 0 }},
		{"negative stop", func(s *Signal) { s.StopLoss = -5 }},
		{"long stop above entry", func(s *Signal) { s.StopLoss = 101 }},
		{"long target below entry", func(s *Signal) { s.TakeProfit = 99 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := validLong()
			tt.mutate(sig)
			if err := sig.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestValidateShortOrdering(t *testing.T) {
	sig := validLong()
	sig.Action = ActionShort
	// Long-shaped prices are inverted for a short.
	if err := sig.Validate(); err == nil {
		t.Error("expected error for short with stop below entry")
	}
}
