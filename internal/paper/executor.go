package paper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"paper-trading-bot/internal/events"
	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/market"
	"paper-trading-bot/internal/risk"
	"paper-trading-bot/internal/strategy"
)

var (
	// ErrSpreadTooWide rejects fills on illiquid or stale quotes.
	ErrSpreadTooWide = errors.New("spread exceeds limit")

	// ErrDuplicateSignal rejects a signal whose idempotency key was
	// already executed this cycle or the previous one.
	ErrDuplicateSignal = errors.New("duplicate signal for cycle")
)

// Rejection reason codes published on executor rejections.
const (
	ReasonSpread    = "SPREAD"
	ReasonDuplicate = "DUPLICATE"
)

// Executor simulates order fills against live quotes: it filters on
// spread, applies adverse slippage to the last price, and hands the fill
// to the ledger. All market I/O happens before the ledger lock is taken.
type Executor struct {
	prices market.PriceSource
	ledger *risk.Ledger
	bus    *events.EventBus

	maxSpreadPct float64
	slippagePct  float64

	mu        sync.Mutex
	cycleID   string
	seen      map[string]struct{} // idempotency keys, current cycle
	seenPrev  map[string]struct{} // idempotency keys, previous cycle
}

func NewExecutor(prices market.PriceSource, ledger *risk.Ledger, bus *events.EventBus, maxSpreadPct, slippagePct float64) *Executor {
	return &Executor{
		prices:       prices,
		ledger:       ledger,
		bus:          bus,
		maxSpreadPct: maxSpreadPct,
		slippagePct:  slippagePct,
		seen:         make(map[string]struct{}),
		seenPrev:     make(map[string]struct{}),
	}
}

// BeginCycle rotates the idempotency window: keys from the previous cycle
// are still recognized, older ones are forgotten.
func (e *Executor) BeginCycle(cycleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cycleID == e.cycleID {
		return
	}
	e.seenPrev = e.seen
	e.seen = make(map[string]struct{})
	e.cycleID = cycleID
}

// Open executes the signal as a paper fill and opens the position.
func (e *Executor) Open(ctx context.Context, sig *strategy.Signal, cycleID string) (risk.Position, error) {
	log := logging.Component("executor")
	key := idempotencyKey(sig, cycleID)

	e.mu.Lock()
	_, dupCur := e.seen[key]
	_, dupPrev := e.seenPrev[key]
	e.mu.Unlock()
	if dupCur || dupPrev {
		log.Debug().Str("key", key).Msg("signal already executed, skipping")
		e.publishRejected(sig, ReasonDuplicate)
		return risk.Position{}, fmt.Errorf("%w: %s", ErrDuplicateSignal, key)
	}

	spread, err := e.prices.Spread(ctx, sig.Symbol)
	if err != nil {
		return risk.Position{}, fmt.Errorf("fetching spread for %s: %w", sig.Symbol, err)
	}
	if spread > e.maxSpreadPct {
		log.Info().Str("symbol", sig.Symbol).Float64("spread", spread).
			Float64("limit", e.maxSpreadPct).Msg("rejecting fill, spread too wide")
		e.publishRejected(sig, ReasonSpread)
		return risk.Position{}, fmt.Errorf("%w: %.5f > %.5f", ErrSpreadTooWide, spread, e.maxSpreadPct)
	}

	last, err := e.prices.LastPrice(ctx, sig.Symbol)
	if err != nil {
		return risk.Position{}, fmt.Errorf("fetching price for %s: %w", sig.Symbol, err)
	}

	fill := e.fillPrice(last, sig.Action)

	pos, err := e.ledger.OpenPosition(sig, fill, time.Now().UTC())
	if err != nil {
		var rej *risk.RejectionError
		if errors.As(err, &rej) {
			e.publishRejected(sig, rej.Reason)
		}
		return risk.Position{}, err
	}

	e.mu.Lock()
	e.seen[key] = struct{}{}
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.PublishPositionOpened(pos.ID, pos.Symbol, string(pos.Side), pos.Source, pos.EntryPrice, pos.Size)
	}
	return pos, nil
}

// fillPrice moves the last price against the taker by the slippage rate.
func (e *Executor) fillPrice(last float64, action strategy.Action) float64 {
	if action == strategy.ActionShort {
		return last * (1 - e.slippagePct)
	}
	return last * (1 + e.slippagePct)
}

func (e *Executor) publishRejected(sig *strategy.Signal, reason string) {
	if e.bus != nil {
		e.bus.PublishSignalRejected(sig.Symbol, sig.Source, reason)
	}
}

func idempotencyKey(sig *strategy.Signal, cycleID string) string {
	return sig.Symbol + "|" + sig.Source + "|" + cycleID
}
