package market

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStale is returned when the freshest known quote is older than the
	// configured staleness limit.
	ErrStale = errors.New("market data stale")

	// ErrNoData is returned when no quote or candle data exists for a symbol.
	ErrNoData = errors.New("no market data for symbol")
)

// Quote is a top-of-book snapshot for one symbol.
type Quote struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64
	Timestamp time.Time
}

// SpreadPct returns the bid/ask spread as a fraction of the mid price.
func (q Quote) SpreadPct() float64 {
	mid := (q.Bid + q.Ask) / 2
	if mid <= 0 {
		return 0
	}
	return (q.Ask - q.Bid) / mid
}

// Kline is a single OHLCV candle.
type Kline struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// PriceSource serves current prices and spreads to the trading loops.
type PriceSource interface {
	// LastPrice returns the freshest traded price for symbol.
	LastPrice(ctx context.Context, symbol string) (float64, error)
	// Spread returns the current bid/ask spread as a fraction of mid.
	Spread(ctx context.Context, symbol string) (float64, error)
}

// CandleSource serves historical candles for indicator computation.
type CandleSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
}

// Provider combines quote and candle access.
type Provider interface {
	PriceSource
	CandleSource
}
