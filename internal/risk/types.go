package risk

import (
	"fmt"
	"math"
	"time"

	"paper-trading-bot/internal/strategy"
)

// TradingState is the RiskGate state machine.
type TradingState string

const (
	StateActive          TradingState = "ACTIVE"
	StateHaltedDrawdown  TradingState = "HALTED_DRAWDOWN"
	StateHaltedDailyLoss TradingState = "HALTED_DAILY_LOSS"
)

// ExitReason explains why a position was closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitManual     ExitReason = "MANUAL"
	ExitError      ExitReason = "ERROR"
)

// Position is an open paper trade. Exactly one may exist per symbol.
type Position struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       strategy.Action `json:"side"`
	EntryPrice float64         `json:"entry_price"`
	Size       float64         `json:"size"`
	StopLoss   float64         `json:"stop_loss"`
	TakeProfit float64         `json:"take_profit"`
	OpenedAt   time.Time       `json:"opened_at"`
	Source     string          `json:"source"`
}

// Direction is +1 for LONG, -1 for SHORT.
func (p Position) Direction() float64 {
	if p.Side == strategy.ActionShort {
		return -1
	}
	return 1
}

// RiskAmount is the capital at risk if the stop is hit.
func (p Position) RiskAmount() float64 {
	return math.Abs(p.EntryPrice-p.StopLoss) * p.Size
}

// Trade is the immutable record of a closed position.
type Trade struct {
	PositionID  string          `json:"position_id"`
	Symbol      string          `json:"symbol"`
	Side        strategy.Action `json:"side"`
	EntryPrice  float64         `json:"entry_price"`
	ExitPrice   float64         `json:"exit_price"`
	Size        float64         `json:"size"`
	StopLoss    float64         `json:"stop_loss"`
	TakeProfit  float64         `json:"take_profit"`
	ExitReason  ExitReason      `json:"exit_reason"`
	RealizedPnL float64         `json:"realized_pnl"`
	FeesPaid    float64         `json:"fees_paid"`
	Source      string          `json:"source"`
	OpenedAt    time.Time       `json:"opened_at"`
	ClosedAt    time.Time       `json:"closed_at"`
}

// State is a snapshot of the risk ledger's counters.
type State struct {
	Capital         float64      `json:"capital"`
	PeakCapital     float64      `json:"peak_capital"`
	DailyPnL        float64      `json:"daily_pnl"`
	DailyTradeCount int          `json:"daily_trade_count"`
	DayStartDate    string       `json:"day_start_date"` // UTC calendar date, YYYY-MM-DD
	DayStartCapital float64      `json:"day_start_capital"`
	TradingState    TradingState `json:"trading_state"`
	HaltReason      string       `json:"halt_reason,omitempty"`
}

// Rejection reason codes carried on RejectionError and rejection events.
const (
	ReasonHalted          = "TRADING_HALTED"
	ReasonSymbolOpen      = "SYMBOL_OPEN"
	ReasonDailyTradeLimit = "DAILY_TRADE_LIMIT"
	ReasonZeroSize        = "ZERO_SIZE"
	ReasonPositionRisk    = "POSITION_TOO_LARGE"
	ReasonPortfolioRisk   = "PORTFOLIO_RISK"
)

// RejectionError reports why the gate refused to open a position.
type RejectionError struct {
	Reason string
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}
