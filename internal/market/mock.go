package market

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// MockProvider simulates a market with random-walk prices. It serves
// offline runs and tests; no network access is performed.
type MockProvider struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
}

var mockBasePrices = map[string]float64{
	"BTCUSDT": 65000,
	"ETHUSDT": 3200,
	"SOLUSDT": 150,
	"BNBUSDT": 580,
}

func NewMockProvider(symbols []string) *MockProvider {
	p := &MockProvider{
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		prices: make(map[string]float64),
	}
	for _, s := range symbols {
		p.prices[s] = baseFor(s)
	}
	return p
}

func baseFor(symbol string) float64 {
	if base, ok := mockBasePrices[strings.ToUpper(symbol)]; ok {
		return base
	}
	return 100
}

func (p *MockProvider) LastPrice(_ context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.step(symbol)
}

func (p *MockProvider) Spread(_ context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.prices[symbol]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}
	// Liquid-pair spreads hover around a couple of basis points.
	return 0.0001 + p.rng.Float64()*0.0002, nil
}

func (p *MockProvider) Klines(_ context.Context, symbol, _ string, limit int) ([]Kline, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}
	if limit <= 0 {
		limit = 100
	}

	// Walk backwards from the current price so the last candle closes near it.
	klines := make([]Kline, limit)
	closePrice := price
	now := time.Now().Truncate(5 * time.Minute)
	for i := limit - 1; i >= 0; i-- {
		drift := closePrice * (p.rng.Float64() - 0.5) * 0.004
		open := closePrice - drift
		high := math.Max(open, closePrice) * (1 + p.rng.Float64()*0.001)
		low := math.Min(open, closePrice) * (1 - p.rng.Float64()*0.001)
		klines[i] = Kline{
			OpenTime: now.Add(-time.Duration(limit-i) * 5 * time.Minute),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   10 + p.rng.Float64()*90,
		}
		closePrice = open
	}
	return klines, nil
}

// SetPrice pins a symbol's price, for tests.
func (p *MockProvider) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

func (p *MockProvider) step(symbol string) (float64, error) {
	price, ok := p.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}
	price *= 1 + (p.rng.Float64()-0.5)*0.002
	p.prices[symbol] = price
	return price, nil
}

var _ Provider = (*MockProvider)(nil)
