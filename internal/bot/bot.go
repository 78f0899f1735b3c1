package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"paper-trading-bot/internal/arbiter"
	"paper-trading-bot/internal/events"
	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/market"
	"paper-trading-bot/internal/paper"
	"paper-trading-bot/internal/retry"
	"paper-trading-bot/internal/risk"
	"paper-trading-bot/internal/strategy"
)

// PersistenceSink is the durable-storage contract. The engine calls it on
// every close and flushes everything at shutdown; it imposes no format.
type PersistenceSink interface {
	AppendTrade(ctx context.Context, trade risk.Trade) error
	LoadOpenPositions(ctx context.Context) ([]risk.Position, error)
	SaveOpenPositions(ctx context.Context, positions []risk.Position) error
	SaveRiskState(ctx context.Context, state risk.State) error
	LoadRiskState(ctx context.Context) (*risk.State, error)
}

// Config holds the loop timings and per-call timeouts.
type Config struct {
	Symbols         []string
	SignalInterval  time.Duration
	MonitorInterval time.Duration
	PriceTimeout    time.Duration
	KlineInterval   string
	KlineLimit      int
	SlippagePct     float64
}

// Bot wires the signal path and the monitor path over the shared ledger.
// Two goroutines run concurrently; every ledger mutation happens inside
// the ledger's own critical section, with all I/O done beforehand.
type Bot struct {
	cfg      Config
	provider market.Provider
	arbiter  *arbiter.Arbiter
	executor *paper.Executor
	ledger   *risk.Ledger
	sink     PersistenceSink
	bus      *events.EventBus
	retry    retry.Policy
	log      zerolog.Logger

	wg sync.WaitGroup
}

func New(cfg Config, provider market.Provider, arb *arbiter.Arbiter, exec *paper.Executor, ledger *risk.Ledger, sink PersistenceSink, bus *events.EventBus) *Bot {
	return &Bot{
		cfg:      cfg,
		provider: provider,
		arbiter:  arb,
		executor: exec,
		ledger:   ledger,
		sink:     sink,
		bus:      bus,
		retry:    retry.DefaultPolicy(),
		log:      logging.Component("bot"),
	}
}

// Start restores durable state, launches both loops, and returns. Stop
// the bot by cancelling ctx; Wait blocks until both loops have exited and
// the final flush completed.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.restore(ctx); err != nil {
		return fmt.Errorf("restoring state: %w", err)
	}

	b.wg.Add(2)
	go b.signalLoop(ctx)
	go b.monitorLoop(ctx)

	if b.bus != nil {
		b.bus.Publish(events.Event{Type: events.EventBotStarted, Data: map[string]interface{}{
			"symbols": b.cfg.Symbols,
		}})
	}
	b.log.Info().Strs("symbols", b.cfg.Symbols).
		Dur("signal_interval", b.cfg.SignalInterval).
		Dur("monitor_interval", b.cfg.MonitorInterval).
		Msg("bot started")
	return nil
}

// Wait blocks until both loops have stopped, then flushes open positions
// and risk state to the sink.
func (b *Bot) Wait() {
	b.wg.Wait()
	b.flush()

	if b.bus != nil {
		b.bus.Publish(events.Event{Type: events.EventBotStopped, Data: map[string]interface{}{}})
	}
	b.log.Info().Msg("bot stopped")
}

func (b *Bot) restore(ctx context.Context) error {
	if b.sink == nil {
		return nil
	}

	state, err := b.sink.LoadRiskState(ctx)
	if err != nil {
		return fmt.Errorf("loading risk state: %w", err)
	}
	positions, err := b.sink.LoadOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("loading open positions: %w", err)
	}

	b.ledger.Restore(state, positions)
	if state != nil || len(positions) > 0 {
		b.log.Info().Int("open_positions", len(positions)).Msg("restored state from storage")
	}
	return nil
}

func (b *Bot) flush() {
	if b.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := b.sink.SaveOpenPositions(ctx, b.ledger.OpenPositions()); err != nil {
		b.log.Error().Err(err).Msg("flushing open positions failed")
	}
	if err := b.sink.SaveRiskState(ctx, b.ledger.Snapshot()); err != nil {
		b.log.Error().Err(err).Msg("flushing risk state failed")
	}
}

// signalLoop runs a cycle immediately and then on every tick.
func (b *Bot) signalLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.SignalInterval)
	defer ticker.Stop()

	b.runSignalCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.runSignalCycle(ctx)
		}
	}
}

func (b *Bot) runSignalCycle(ctx context.Context) {
	cycleID := uuid.NewString()
	b.executor.BeginCycle(cycleID)

	for _, symbol := range b.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		if b.ledger.HasOpenPosition(symbol) {
			continue
		}

		snap, ok := b.marketSnapshot(ctx, symbol)
		if !ok {
			continue
		}

		sig := b.arbiter.Choose(ctx, symbol, snap)
		if sig == nil {
			continue
		}

		if _, err := b.executor.Open(ctx, sig, cycleID); err != nil {
			var rej *risk.RejectionError
			switch {
			case errors.As(err, &rej):
				b.log.Info().Str("symbol", symbol).Str("reason", rej.Reason).Msg("signal rejected by risk gate")
			case errors.Is(err, paper.ErrSpreadTooWide), errors.Is(err, paper.ErrDuplicateSignal):
				// Already logged and published by the executor.
			default:
				b.log.Warn().Str("symbol", symbol).Err(err).Msg("open failed")
			}
		}
	}

	b.logStatus()
}

// marketSnapshot fetches candles with retry and computes indicators.
func (b *Bot) marketSnapshot(ctx context.Context, symbol string) (strategy.Snapshot, bool) {
	klines, err := retry.DoWithResult(ctx, b.retry, func() ([]market.Kline, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, b.cfg.PriceTimeout)
		defer cancel()
		return b.provider.Klines(fetchCtx, symbol, b.cfg.KlineInterval, b.cfg.KlineLimit)
	})
	if err != nil {
		b.log.Warn().Str("symbol", symbol).Err(err).Msg("kline fetch failed, skipping symbol this cycle")
		return strategy.Snapshot{}, false
	}

	snap, ok := strategy.ComputeSnapshot(klines)
	if !ok {
		b.log.Debug().Str("symbol", symbol).Int("candles", len(klines)).Msg("not enough candles for indicators")
	}
	return snap, ok
}

// monitorLoop evaluates open positions against current prices every tick.
func (b *Bot) monitorLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.runMonitorTick(ctx)
		}
	}
}

func (b *Bot) runMonitorTick(ctx context.Context) {
	now := time.Now().UTC()
	b.ledger.Touch(now)

	// Immutable snapshot of the position table; concurrent opens are not
	// observed mid-iteration.
	positions := b.ledger.OpenPositions()

	for _, pos := range positions {
		if ctx.Err() != nil {
			return
		}

		price, err := retry.DoWithResult(ctx, b.retry, func() (float64, error) {
			fetchCtx, cancel := context.WithTimeout(ctx, b.cfg.PriceTimeout)
			defer cancel()
			return b.provider.LastPrice(fetchCtx, pos.Symbol)
		})
		if err != nil {
			// Transient: this position is retried next tick, the rest of
			// the snapshot still gets evaluated.
			b.log.Warn().Str("symbol", pos.Symbol).Str("position_id", pos.ID).
				Err(err).Msg("price fetch failed, skipping position this tick")
			continue
		}

		reason, triggered := evaluateTrigger(pos, price)
		if !triggered {
			continue
		}

		exitPrice := b.exitPrice(pos, reason)
		trade, ok := b.ledger.ClosePosition(pos.ID, exitPrice, reason, time.Now().UTC())
		if !ok {
			continue // already closed by a concurrent path
		}
		b.persistTrade(ctx, trade)
	}
}

// evaluateTrigger checks stop and target. When a gap crosses both in one
// tick, the stop wins.
func evaluateTrigger(pos risk.Position, price float64) (risk.ExitReason, bool) {
	if pos.Side == strategy.ActionShort {
		if price >= pos.StopLoss {
			return risk.ExitStopLoss, true
		}
		if price <= pos.TakeProfit {
			return risk.ExitTakeProfit, true
		}
		return "", false
	}
	if price <= pos.StopLoss {
		return risk.ExitStopLoss, true
	}
	if price >= pos.TakeProfit {
		return risk.ExitTakeProfit, true
	}
	return "", false
}

// exitPrice applies closing slippage adversely to the trigger level.
func (b *Bot) exitPrice(pos risk.Position, reason risk.ExitReason) float64 {
	level := pos.StopLoss
	if reason == risk.ExitTakeProfit {
		level = pos.TakeProfit
	}
	if pos.Side == strategy.ActionShort {
		return level * (1 + b.cfg.SlippagePct)
	}
	return level * (1 - b.cfg.SlippagePct)
}

// CloseManually closes a position at the current market price.
func (b *Bot) CloseManually(ctx context.Context, positionID string) (risk.Trade, error) {
	var target *risk.Position
	for _, pos := range b.ledger.OpenPositions() {
		if pos.ID == positionID {
			p := pos
			target = &p
			break
		}
	}
	if target == nil {
		return risk.Trade{}, fmt.Errorf("position %s not found", positionID)
	}

	price, err := retry.DoWithResult(ctx, b.retry, func() (float64, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, b.cfg.PriceTimeout)
		defer cancel()
		return b.provider.LastPrice(fetchCtx, target.Symbol)
	})
	if err != nil {
		return risk.Trade{}, fmt.Errorf("fetching price for manual close: %w", err)
	}

	exit := price
	if target.Side == strategy.ActionShort {
		exit = price * (1 + b.cfg.SlippagePct)
	} else {
		exit = price * (1 - b.cfg.SlippagePct)
	}

	trade, ok := b.ledger.ClosePosition(positionID, exit, risk.ExitManual, time.Now().UTC())
	if !ok {
		return risk.Trade{}, fmt.Errorf("position %s already closed", positionID)
	}
	b.persistTrade(ctx, trade)
	return trade, nil
}

func (b *Bot) persistTrade(ctx context.Context, trade risk.Trade) {
	if b.sink == nil {
		return
	}
	if err := b.sink.AppendTrade(ctx, trade); err != nil {
		b.log.Error().Err(err).Str("position_id", trade.PositionID).Msg("persisting trade failed")
		if b.bus != nil {
			b.bus.PublishError("bot", "persisting trade failed", err)
		}
	}
	if err := b.sink.SaveRiskState(ctx, b.ledger.Snapshot()); err != nil {
		b.log.Error().Err(err).Msg("persisting risk state failed")
	}
}

func (b *Bot) logStatus() {
	snap := b.ledger.Snapshot()
	drawdown := 0.0
	if snap.PeakCapital > 0 {
		drawdown = (snap.PeakCapital - snap.Capital) / snap.PeakCapital * 100
	}

	b.log.Info().
		Float64("capital", snap.Capital).
		Float64("daily_pnl", snap.DailyPnL).
		Float64("drawdown_pct", drawdown).
		Int("open_positions", len(b.ledger.OpenPositions())).
		Int("daily_trades", snap.DailyTradeCount).
		Str("state", string(snap.TradingState)).
		Msg("cycle status")
}
