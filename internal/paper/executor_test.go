package paper

import (
	"context"
	"errors"
	"math"
	"testing"

	"paper-trading-bot/internal/market"
	"paper-trading-bot/internal/risk"
	"paper-trading-bot/internal/strategy"
)

// fixedPrices serves one price and spread without a live feed.
type fixedPrices struct {
	last   float64
	spread float64
	err    error
}

func (f *fixedPrices) LastPrice(context.Context, string) (float64, error) {
	return f.last, f.err
}
func (f *fixedPrices) Spread(context.Context, string) (float64, error) {
	return f.spread, f.err
}

var _ market.PriceSource = (*fixedPrices)(nil)

func testLedger(capital float64) *risk.Ledger {
	return risk.NewLedger(capital, risk.Limits{
		MaxDrawdownPct:      5,
		MaxDailyLossPct:     2,
		MaxDailyTrades:      100,
		MaxPositionSizePct:  1,
		MaxPortfolioRiskPct: 20,
		LotStep:             0.01,
		FeeRate:             0.001,
	}, nil)
}

func testSignal() *strategy.Signal {
	return &strategy.Signal{
		Symbol:     "BTCUSDT",
		Action:     strategy.ActionLong,
		Confidence: 1.0,
		EntryPrice: 100,
		StopLoss:   99,
		TakeProfit: 110,
		Source:     "AI",
	}
}

func TestOpenAppliesAdverseSlippage(t *testing.T) {
	prices := &fixedPrices{last: 100, spread: 0.0001}
	exec := NewExecutor(prices, testLedger(10000), nil, 0.002, 0.001)
	exec.BeginCycle("c1")

	pos, err := exec.Open(context.Background(), testSignal(), "c1")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	// LONG pays up: fill above last.
	if math.Abs(pos.EntryPrice-100.1) > 1e-9 {
		t.Errorf("expected fill 100.1, got %v", pos.EntryPrice)
	}

	short := testSignal()
	short.Symbol = "ETHUSDT"
	short.Action = strategy.ActionShort
	short.StopLoss = 105
	short.TakeProfit = 90

	pos, err = exec.Open(context.Background(), short, "c1")
	if err != nil {
		t.Fatalf("short open failed: %v", err)
	}
	// SHORT sells down: fill below last.
	if math.Abs(pos.EntryPrice-99.9) > 1e-9 {
		t.Errorf("expected fill 99.9, got %v", pos.EntryPrice)
	}
}

func TestOpenRejectsWideSpread(t *testing.T) {
	prices := &fixedPrices{last: 100, spread: 0.01}
	exec := NewExecutor(prices, testLedger(10000), nil, 0.002, 0.001)
	exec.BeginCycle("c1")

	_, err := exec.Open(context.Background(), testSignal(), "c1")
	if !errors.Is(err, ErrSpreadTooWide) {
		t.Errorf("expected ErrSpreadTooWide, got %v", err)
	}
}

func TestOpenIdempotentWithinCycleWindow(t *testing.T) {
	prices := &fixedPrices{last: 100, spread: 0.0001}
	ledger := testLedger(10000)
	exec := NewExecutor(prices, ledger, nil, 0.002, 0)
	exec.BeginCycle("c1")

	sig := testSignal()
	pos, err := exec.Open(context.Background(), sig, "c1")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// Same signal, same cycle: duplicate.
	if _, err := exec.Open(context.Background(), sig, "c1"); !errors.Is(err, ErrDuplicateSignal) {
		t.Errorf("expected ErrDuplicateSignal, got %v", err)
	}

	// Next cycle still remembers the previous cycle's key.
	exec.BeginCycle("c2")
	if _, err := exec.Open(context.Background(), sig, "c1"); !errors.Is(err, ErrDuplicateSignal) {
		t.Errorf("expected previous-cycle key to be remembered, got %v", err)
	}

	// Two cycles later the key is forgotten, but the ledger still holds
	// the open position, so the symbol gate rejects instead.
	exec.BeginCycle("c3")
	ledger.ClosePosition(pos.ID, 110, risk.ExitTakeProfit, pos.OpenedAt)
	if _, err := exec.Open(context.Background(), sig, "c3"); err != nil {
		t.Errorf("expected fresh open after window expiry, got %v", err)
	}
}

func TestOpenPropagatesGateRejection(t *testing.T) {
	prices := &fixedPrices{last: 100, spread: 0.0001}
	exec := NewExecutor(prices, testLedger(10000), nil, 0.002, 0)
	exec.BeginCycle("c1")

	if _, err := exec.Open(context.Background(), testSignal(), "c1"); err != nil {
		t.Fatalf("first open failed: %v", err)
	}

	dup := testSignal()
	dup.Source = "RULE:momentum" // different key, same symbol
	_, err := exec.Open(context.Background(), dup, "c1")
	var rej *risk.RejectionError
	if !errors.As(err, &rej) || rej.Reason != risk.ReasonSymbolOpen {
		t.Errorf("expected SYMBOL_OPEN rejection, got %v", err)
	}
}

func TestOpenPriceFetchFailureIsTransient(t *testing.T) {
	prices := &fixedPrices{err: errors.New("connection reset")}
	exec := NewExecutor(prices, testLedger(10000), nil, 0.002, 0)
	exec.BeginCycle("c1")

	_, err := exec.Open(context.Background(), testSignal(), "c1")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrSpreadTooWide) || errors.Is(err, ErrDuplicateSignal) {
		t.Errorf("transient fetch failure misclassified: %v", err)
	}

	// The failed attempt must not burn the idempotency key.
	prices.err = nil
	prices.last, prices.spread = 100, 0.0001
	if _, err := exec.Open(context.Background(), testSignal(), "c1"); err != nil {
		t.Errorf("retry after transient failure rejected: %v", err)
	}
}
