package risk

import (
	"errors"
	"math"
	"testing"
	"time"

	"paper-trading-bot/internal/strategy"
)

func testLimits() Limits {
	return Limits{
		MaxDrawdownPct:      5.0,
		MaxDailyLossPct:     2.0,
		MaxDailyTrades:      100,
		MaxPositionSizePct:  1.0,
		MaxPortfolioRiskPct: 20.0,
		LotStep:             0.01,
		FeeRate:             0.001,
	}
}

func longSignal(symbol string, entry, stop, target, confidence float64) *strategy.Signal {
	return &strategy.Signal{
		Symbol:     symbol,
		Action:     strategy.ActionLong,
		Confidence: confidence,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		Source:     "RULE:momentum",
	}
}

func day(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func rejectionReason(t *testing.T, err error) string {
	t.Helper()
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	return rej.Reason
}

func TestOpenCloseSmallAccountScenario(t *testing.T) {
	l := NewLedger(10.0, testLimits(), nil)
	now := day("2026-08-30T10:00:00Z")

	pos, err := l.OpenPosition(longSignal("BTCUSDT", 100, 99, 110, 1.0), 100, now)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if math.Abs(pos.Size-0.10) > 1e-9 {
		t.Fatalf("expected size 0.10, got %v", pos.Size)
	}
	if got := l.Snapshot().DailyTradeCount; got != 1 {
		t.Errorf("expected trade count 1, got %d", got)
	}
	// Capital is not debited at open.
	if got := l.Snapshot().Capital; got != 10.0 {
		t.Errorf("capital changed at open: %v", got)
	}

	trade, ok := l.ClosePosition(pos.ID, 99, ExitStopLoss, now.Add(time.Minute))
	if !ok {
		t.Fatal("close reported missing position")
	}
	if math.Abs(trade.RealizedPnL-(-0.1199)) > 1e-9 {
		t.Errorf("expected realized pnl -0.1199, got %v", trade.RealizedPnL)
	}
	if math.Abs(trade.FeesPaid-0.0199) > 1e-9 {
		t.Errorf("expected fees 0.0199, got %v", trade.FeesPaid)
	}

	snap := l.Snapshot()
	if math.Abs(snap.Capital-9.8801) > 1e-9 {
		t.Errorf("expected capital 9.8801, got %v", snap.Capital)
	}
	if len(l.OpenPositions()) != 0 {
		t.Error("position not removed after close")
	}
	if len(l.TradeHistory()) != 1 {
		t.Error("trade not appended")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	l := NewLedger(1000, testLimits(), nil)
	now := day("2026-08-30T10:00:00Z")

	pos, err := l.OpenPosition(longSignal("BTCUSDT", 100, 99, 110, 1.0), 100, now)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if _, ok := l.ClosePosition(pos.ID, 99, ExitStopLoss, now); !ok {
		t.Fatal("first close failed")
	}
	capitalAfter := l.Snapshot().Capital

	// A retried tick closing the same id must be a no-op.
	if _, ok := l.ClosePosition(pos.ID, 99, ExitStopLoss, now); ok {
		t.Fatal("second close should report missing position")
	}
	if got := l.Snapshot().Capital; got != capitalAfter {
		t.Errorf("capital double-applied: %v vs %v", got, capitalAfter)
	}
	if len(l.TradeHistory()) != 1 {
		t.Errorf("expected 1 trade, got %d", len(l.TradeHistory()))
	}
}

func TestSymbolAlreadyOpenRejected(t *testing.T) {
	l := NewLedger(1000, testLimits(), nil)
	now := day("2026-08-30T10:00:00Z")

	if _, err := l.OpenPosition(longSignal("BTCUSDT", 100, 99, 110, 1.0), 100, now); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	_, err := l.OpenPosition(longSignal("BTCUSDT", 101, 100, 111, 1.0), 101, now)
	if rejectionReason(t, err) != ReasonSymbolOpen {
		t.Errorf("expected SYMBOL_OPEN, got %v", err)
	}

	// A different symbol is fine.
	if _, err := l.OpenPosition(longSignal("ETHUSDT", 100, 99, 110, 1.0), 100, now); err != nil {
		t.Errorf("second symbol rejected: %v", err)
	}
}

func TestDailyTradeLimitRejected(t *testing.T) {
	limits := testLimits()
	limits.MaxDailyTrades = 2
	l := NewLedger(1000, limits, nil)
	now := day("2026-08-30T10:00:00Z")

	for i, symbol := range []string{"BTCUSDT", "ETHUSDT"} {
		pos, err := l.OpenPosition(longSignal(symbol, 100, 99, 110, 1.0), 100, now)
		if err != nil {
			t.Fatalf("open %d failed: %v", i, err)
		}
		l.ClosePosition(pos.ID, 110, ExitTakeProfit, now)
	}

	_, err := l.OpenPosition(longSignal("SOLUSDT", 100, 99, 110, 1.0), 100, now)
	if rejectionReason(t, err) != ReasonDailyTradeLimit {
		t.Errorf("expected DAILY_TRADE_LIMIT, got %v", err)
	}
}

func TestPortfolioRiskCeiling(t *testing.T) {
	limits := testLimits()
	limits.MaxPositionSizePct = 10
	limits.MaxPortfolioRiskPct = 15
	l := NewLedger(1000, limits, nil)
	now := day("2026-08-30T10:00:00Z")

	// Each position risks 10% of capital; the second pushes open risk to
	// 20%, over the 15% portfolio ceiling.
	if _, err := l.OpenPosition(longSignal("BTCUSDT", 100, 90, 130, 1.0), 100, now); err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	_, err := l.OpenPosition(longSignal("ETHUSDT", 100, 90, 130, 1.0), 100, now)
	if rejectionReason(t, err) != ReasonPortfolioRisk {
		t.Errorf("expected PORTFOLIO_RISK, got %v", err)
	}
}

func TestDailyResetExactlyOncePerDate(t *testing.T) {
	l := NewLedger(1000, testLimits(), nil)
	day1 := day("2026-08-30T23:50:00Z")
	day2 := day("2026-08-31T00:00:05Z")

	pos, err := l.OpenPosition(longSignal("BTCUSDT", 100, 99, 110, 1.0), 100, day1)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	l.ClosePosition(pos.ID, 110, ExitTakeProfit, day1)

	before := l.Snapshot()
	if before.DailyTradeCount != 1 || before.DailyPnL == 0 {
		t.Fatalf("expected non-zero daily counters, got %+v", before)
	}

	l.Touch(day2)
	after := l.Snapshot()
	if after.DailyTradeCount != 0 || after.DailyPnL != 0 {
		t.Errorf("counters not reset at day roll: %+v", after)
	}
	if after.DayStartDate != "2026-08-31" {
		t.Errorf("day start date not advanced: %s", after.DayStartDate)
	}
	if after.DayStartCapital != after.Capital {
		t.Errorf("day start capital not re-based: %+v", after)
	}

	// Trade within the same date, then touch again: no second reset.
	pos, err = l.OpenPosition(longSignal("BTCUSDT", 100, 99, 110, 1.0), 100, day2.Add(time.Hour))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	l.ClosePosition(pos.ID, 110, ExitTakeProfit, day2.Add(2*time.Hour))

	mid := l.Snapshot()
	l.Touch(day2.Add(3 * time.Hour))
	again := l.Snapshot()
	if again.DailyTradeCount != mid.DailyTradeCount || again.DailyPnL != mid.DailyPnL {
		t.Errorf("counters reset twice for the same date: %+v vs %+v", again, mid)
	}
	if again.DayStartCapital != mid.DayStartCapital {
		t.Errorf("day start capital moved mid-day")
	}
}

func TestDrawdownHaltAndManualResume(t *testing.T) {
	limits := testLimits()
	limits.MaxPositionSizePct = 10
	l := NewLedger(1000, limits, nil)
	now := day("2026-08-30T10:00:00Z")

	// Risk 10% and hit the stop: ~10.2% drawdown, over the 5% limit.
	pos, err := l.OpenPosition(longSignal("BTCUSDT", 100, 90, 130, 1.0), 100, now)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	l.ClosePosition(pos.ID, 90, ExitStopLoss, now)

	snap := l.Snapshot()
	if snap.TradingState != StateHaltedDrawdown {
		t.Fatalf("expected HALTED_DRAWDOWN, got %s", snap.TradingState)
	}

	_, err = l.OpenPosition(longSignal("ETHUSDT", 100, 99, 110, 1.0), 100, now)
	if rejectionReason(t, err) != ReasonHalted {
		t.Errorf("expected TRADING_HALTED, got %v", err)
	}

	// The day roll does not clear a drawdown halt.
	l.Touch(day("2026-08-31T00:00:05Z"))
	if got := l.Snapshot().TradingState; got != StateHaltedDrawdown {
		t.Errorf("drawdown halt cleared by day roll: %s", got)
	}

	l.ResumeTrading()
	snap = l.Snapshot()
	if snap.TradingState != StateActive {
		t.Errorf("expected ACTIVE after manual resume, got %s", snap.TradingState)
	}
	if snap.PeakCapital != snap.Capital {
		t.Errorf("resume should re-base the peak: %+v", snap)
	}
}

func TestDailyLossHaltClearsAtDayRoll(t *testing.T) {
	limits := testLimits()
	limits.MaxPositionSizePct = 3 // loses ~3.2%: over the 2% daily limit, under the 5% drawdown limit
	l := NewLedger(1000, limits, nil)
	now := day("2026-08-30T10:00:00Z")

	pos, err := l.OpenPosition(longSignal("BTCUSDT", 100, 97, 110, 1.0), 100, now)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	l.ClosePosition(pos.ID, 97, ExitStopLoss, now)

	if got := l.Snapshot().TradingState; got != StateHaltedDailyLoss {
		t.Fatalf("expected HALTED_DAILY_LOSS, got %s", got)
	}

	_, err = l.OpenPosition(longSignal("ETHUSDT", 100, 99, 110, 1.0), 100, now)
	if rejectionReason(t, err) != ReasonHalted {
		t.Errorf("expected TRADING_HALTED, got %v", err)
	}

	l.Touch(day("2026-08-31T00:00:05Z"))
	if got := l.Snapshot().TradingState; got != StateActive {
		t.Errorf("daily-loss halt should clear at day roll, got %s", got)
	}
}

func TestPnLConservationOverReplay(t *testing.T) {
	limits := testLimits()
	limits.MaxDailyTrades = 1000
	l := NewLedger(10000, limits, nil)
	now := day("2026-08-30T00:10:00Z")

	// Scripted alternating wins and losses across several symbols.
	script := []struct {
		symbol     string
		entry      float64
		exit       float64
		reason     ExitReason
		confidence float64
	}{
		{"BTCUSDT", 100, 110, ExitTakeProfit, 1.0},
		{"ETHUSDT", 50, 49, ExitStopLoss, 0.8},
		{"BTCUSDT", 105, 103, ExitStopLoss, 0.6},
		{"SOLUSDT", 20, 22, ExitTakeProfit, 0.9},
		{"ETHUSDT", 48, 50, ExitManual, 1.0},
		{"BTCUSDT", 104, 102, ExitError, 0.7},
	}

	initial := l.Snapshot().Capital
	for i, step := range script {
		sig := longSignal(step.symbol, step.entry, step.entry*0.98, step.entry*1.1, step.confidence)
		pos, err := l.OpenPosition(sig, step.entry, now.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("step %d open failed: %v", i, err)
		}
		if _, ok := l.ClosePosition(pos.ID, step.exit, step.reason, now.Add(time.Duration(i)*time.Minute+30*time.Second)); !ok {
			t.Fatalf("step %d close failed", i)
		}
	}

	var sum float64
	for _, trade := range l.TradeHistory() {
		sum += trade.RealizedPnL
	}
	final := l.Snapshot().Capital
	if math.Abs(sum-(final-initial)) > 1e-9 {
		t.Errorf("pnl leak: sum of realized %v, capital delta %v", sum, final-initial)
	}
}

func TestRestoreRebuildsOpenPositions(t *testing.T) {
	l := NewLedger(1000, testLimits(), nil)

	restored := State{
		Capital: 950, PeakCapital: 1010, DailyPnL: -5, DailyTradeCount: 3,
		DayStartDate: "2026-08-30", DayStartCapital: 955, TradingState: StateActive,
	}
	positions := []Position{{
		ID: "pos-1", Symbol: "BTCUSDT", Side: strategy.ActionLong,
		EntryPrice: 100, Size: 0.5, StopLoss: 95, TakeProfit: 110,
	}}
	l.Restore(&restored, positions)

	if got := l.Snapshot(); got.Capital != 950 || got.DailyTradeCount != 3 {
		t.Errorf("state not restored: %+v", got)
	}
	if !l.HasOpenPosition("BTCUSDT") {
		t.Error("open position not restored")
	}

	// The restored position participates in close accounting.
	trade, ok := l.ClosePosition("pos-1", 110, ExitTakeProfit, day("2026-08-30T12:00:00Z"))
	if !ok {
		t.Fatal("restored position not closable")
	}
	if trade.RealizedPnL <= 0 {
		t.Errorf("expected profit on restored close, got %v", trade.RealizedPnL)
	}
}
