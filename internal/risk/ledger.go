package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"paper-trading-bot/internal/events"
	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/strategy"
)

// Limits holds the portfolio risk configuration the gate enforces.
type Limits struct {
	MaxDrawdownPct      float64
	MaxDailyLossPct     float64
	MaxDailyTrades      int
	MaxPositionSizePct  float64
	MaxPortfolioRiskPct float64
	LotStep             float64
	FeeRate             float64
}

// Ledger is the authoritative record of capital, risk counters, and open
// positions. One mutex guards everything; methods never perform I/O, so
// callers do their price and AI fetching first and pass results in.
type Ledger struct {
	mu sync.Mutex

	limits   Limits
	state    State
	bySymbol map[string]Position // open positions, keyed by symbol
	byID     map[string]string   // position id -> symbol
	trades   []Trade

	bus *events.EventBus
	log zerolog.Logger
}

func NewLedger(initialCapital float64, limits Limits, bus *events.EventBus) *Ledger {
	now := time.Now().UTC()
	return &Ledger{
		limits: limits,
		state: State{
			Capital:         initialCapital,
			PeakCapital:     initialCapital,
			DayStartDate:    now.Format("2006-01-02"),
			DayStartCapital: initialCapital,
			TradingState:    StateActive,
		},
		bySymbol: make(map[string]Position),
		byID:     make(map[string]string),
		trades:   make([]Trade, 0),
		bus:      bus,
		log:      logging.Component("ledger"),
	}
}

// Restore replaces state and open positions from durable storage. Used at
// startup before the loops run.
func (l *Ledger) Restore(state *State, positions []Position) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if state != nil {
		l.state = *state
		if l.state.TradingState == "" {
			l.state.TradingState = StateActive
		}
	}
	for _, p := range positions {
		l.bySymbol[p.Symbol] = p
		l.byID[p.ID] = p.Symbol
	}
}

// OpenPosition admits the signal through every risk check and, if accepted,
// creates the position at fillPrice and increments the daily trade count.
// All checks and the mutation happen in one critical section so a
// concurrent close can never be half-observed.
func (l *Ledger) OpenPosition(sig *strategy.Signal, fillPrice float64, now time.Time) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollDayLocked(now)

	if l.state.TradingState != StateActive {
		return Position{}, &RejectionError{
			Reason: ReasonHalted,
			Detail: fmt.Sprintf("state=%s reason=%s", l.state.TradingState, l.state.HaltReason),
		}
	}
	if _, open := l.bySymbol[sig.Symbol]; open {
		return Position{}, &RejectionError{Reason: ReasonSymbolOpen, Detail: sig.Symbol}
	}
	if l.state.DailyTradeCount >= l.limits.MaxDailyTrades {
		return Position{}, &RejectionError{
			Reason: ReasonDailyTradeLimit,
			Detail: fmt.Sprintf("%d trades today, limit %d", l.state.DailyTradeCount, l.limits.MaxDailyTrades),
		}
	}

	size, err := Size(l.state.Capital, sig.EntryPrice, sig.StopLoss, sig.Confidence,
		l.limits.MaxPositionSizePct, l.limits.LotStep)
	if err != nil {
		return Position{}, &RejectionError{Reason: ReasonZeroSize, Detail: err.Error()}
	}

	riskAmount := math.Abs(sig.EntryPrice-sig.StopLoss) * size
	maxRisk := l.state.Capital * l.limits.MaxPositionSizePct / 100
	if riskAmount > maxRisk*(1+1e-9) {
		return Position{}, &RejectionError{
			Reason: ReasonPositionRisk,
			Detail: fmt.Sprintf("risk %.4f exceeds per-position cap %.4f", riskAmount, maxRisk),
		}
	}

	openRisk := riskAmount
	for _, p := range l.bySymbol {
		openRisk += p.RiskAmount()
	}
	portfolioCap := l.state.Capital * l.limits.MaxPortfolioRiskPct / 100
	if openRisk > portfolioCap {
		return Position{}, &RejectionError{
			Reason: ReasonPortfolioRisk,
			Detail: fmt.Sprintf("open risk %.4f exceeds portfolio cap %.4f", openRisk, portfolioCap),
		}
	}

	pos := Position{
		ID:         uuid.NewString(),
		Symbol:     sig.Symbol,
		Side:       sig.Action,
		EntryPrice: fillPrice,
		Size:       size,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		OpenedAt:   now,
		Source:     sig.Source,
	}
	l.bySymbol[pos.Symbol] = pos
	l.byID[pos.ID] = pos.Symbol
	l.state.DailyTradeCount++

	l.log.Info().
		Str("position_id", pos.ID).
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Float64("entry_price", pos.EntryPrice).
		Float64("size", pos.Size).
		Int("daily_trade_count", l.state.DailyTradeCount).
		Msg("position opened")
	return pos, nil
}

// ClosePosition settles the position at exitPrice in one critical section:
// append the trade, drop the position, apply realized P&L to capital and
// daily P&L, recompute the peak, and evaluate halt transitions. A missing
// id is a no-op so a retried tick cannot double-apply P&L.
func (l *Ledger) ClosePosition(positionID string, exitPrice float64, reason ExitReason, now time.Time) (Trade, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	symbol, ok := l.byID[positionID]
	if !ok {
		return Trade{}, false
	}
	pos := l.bySymbol[symbol]

	l.rollDayLocked(now)

	grossPnL := (exitPrice - pos.EntryPrice) * pos.Size * pos.Direction()
	fees := (pos.EntryPrice*pos.Size + exitPrice*pos.Size) * l.limits.FeeRate
	realized := grossPnL - fees

	trade := Trade{
		PositionID:  pos.ID,
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		Size:        pos.Size,
		StopLoss:    pos.StopLoss,
		TakeProfit:  pos.TakeProfit,
		ExitReason:  reason,
		RealizedPnL: realized,
		FeesPaid:    fees,
		Source:      pos.Source,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    now,
	}

	l.trades = append(l.trades, trade)
	delete(l.bySymbol, symbol)
	delete(l.byID, positionID)

	l.state.Capital += realized
	l.state.DailyPnL += realized
	if l.state.Capital > l.state.PeakCapital {
		l.state.PeakCapital = l.state.Capital
	}

	l.log.Info().
		Str("position_id", trade.PositionID).
		Str("symbol", trade.Symbol).
		Str("exit_reason", string(reason)).
		Float64("exit_price", exitPrice).
		Float64("realized_pnl", realized).
		Float64("fees", fees).
		Float64("capital", l.state.Capital).
		Msg("position closed")

	if l.bus != nil {
		l.bus.PublishPositionClosed(trade.PositionID, trade.Symbol, string(reason),
			trade.EntryPrice, trade.ExitPrice, trade.Size, trade.RealizedPnL)
	}

	l.evaluateHaltsLocked()
	return trade, true
}

// ResumeTrading manually clears any halt. The drawdown halt has no other
// exit; the daily-loss halt also clears on its own at the UTC day roll.
func (l *Ledger) ResumeTrading() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.TradingState == StateActive {
		return
	}
	prev := l.state.TradingState
	l.state.TradingState = StateActive
	l.state.HaltReason = ""
	// Manual resume re-bases the drawdown so the same breach does not
	// re-halt on the next close.
	l.state.PeakCapital = l.state.Capital

	l.log.Warn().Str("previous_state", string(prev)).Msg("trading resumed manually")
	if l.bus != nil {
		l.bus.PublishRiskResumed(string(prev))
	}
}

// Touch gives the ledger a chance to roll the UTC day outside of an
// open/close; the monitor calls it every tick.
func (l *Ledger) Touch(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked(now)
}

// Snapshot returns a copy of the risk counters.
func (l *Ledger) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// OpenPositions returns a copy of the open position table.
func (l *Ledger) OpenPositions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Position, 0, len(l.bySymbol))
	for _, p := range l.bySymbol {
		out = append(out, p)
	}
	return out
}

// HasOpenPosition reports whether symbol currently has an open position.
func (l *Ledger) HasOpenPosition(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.bySymbol[symbol]
	return ok
}

// TradeHistory returns a copy of the closed-trade ledger, oldest first.
func (l *Ledger) TradeHistory() []Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// rollDayLocked resets the daily counters the first time a new UTC date is
// observed. At most once per date; the drawdown baseline is untouched and
// a drawdown halt survives the roll.
func (l *Ledger) rollDayLocked(now time.Time) {
	date := now.UTC().Format("2006-01-02")
	if date == l.state.DayStartDate {
		return
	}

	l.state.DayStartDate = date
	l.state.DailyPnL = 0
	l.state.DailyTradeCount = 0
	l.state.DayStartCapital = l.state.Capital

	if l.state.TradingState == StateHaltedDailyLoss {
		l.state.TradingState = StateActive
		l.state.HaltReason = ""
		l.log.Info().Str("date", date).Msg("daily-loss halt cleared by day roll")
	}

	l.log.Info().Str("date", date).Float64("day_start_capital", l.state.DayStartCapital).Msg("daily counters reset")
	if l.bus != nil {
		l.bus.PublishDailyReset(date, l.state.DayStartCapital)
	}
}

// evaluateHaltsLocked runs after every close. Drawdown is checked first
// since it is the stickier state.
func (l *Ledger) evaluateHaltsLocked() {
	if !isFinite(l.state.Capital) || l.state.Capital < 0 {
		// Should be unreachable if sizing and P&L math hold; halting here
		// beats trading on a corrupt number.
		l.haltLocked(StateHaltedDrawdown, "risk state corrupt", l.state.Capital, 0)
		l.log.Error().Float64("capital", l.state.Capital).Msg("capital is negative or non-finite")
		return
	}
	if l.state.TradingState != StateActive {
		return
	}

	if l.state.PeakCapital > 0 {
		drawdown := (l.state.PeakCapital - l.state.Capital) / l.state.PeakCapital * 100
		if drawdown >= l.limits.MaxDrawdownPct {
			l.haltLocked(StateHaltedDrawdown,
				fmt.Sprintf("drawdown %.2f%% breached limit %.2f%%", drawdown, l.limits.MaxDrawdownPct),
				drawdown, l.limits.MaxDrawdownPct)
			return
		}
	}

	lossLimit := l.limits.MaxDailyLossPct / 100 * l.state.DayStartCapital
	if l.state.DailyPnL <= -lossLimit && lossLimit > 0 {
		l.haltLocked(StateHaltedDailyLoss,
			fmt.Sprintf("daily pnl %.4f breached limit -%.4f", l.state.DailyPnL, lossLimit),
			l.state.DailyPnL, -lossLimit)
	}
}

func (l *Ledger) haltLocked(state TradingState, reason string, metricValue, limitValue float64) {
	l.state.TradingState = state
	l.state.HaltReason = reason

	l.log.Warn().
		Str("state", string(state)).
		Str("reason", reason).
		Float64("metric_value", metricValue).
		Float64("limit_value", limitValue).
		Msg("trading halted")
	if l.bus != nil {
		l.bus.PublishRiskHalted(string(state), reason, metricValue, limitValue)
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
