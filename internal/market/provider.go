package market

import (
	"context"
	"errors"
	"time"

	"paper-trading-bot/internal/logging"
)

// LiveProvider serves quotes from the websocket feed and falls back to the
// REST API when the feed is stale or has no data yet. Candles always come
// from REST.
type LiveProvider struct {
	feed *WSFeed
	rest *RESTClient
}

func NewLiveProvider(feed *WSFeed, rest *RESTClient) *LiveProvider {
	return &LiveProvider{feed: feed, rest: rest}
}

// Start launches the websocket feed in the background.
func (p *LiveProvider) Start(ctx context.Context) {
	go p.feed.Run(ctx)
}

func (p *LiveProvider) LastPrice(ctx context.Context, symbol string) (float64, error) {
	q, err := p.quote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return q.Last, nil
}

func (p *LiveProvider) Spread(ctx context.Context, symbol string) (float64, error) {
	q, err := p.quote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return q.SpreadPct(), nil
}

func (p *LiveProvider) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	return p.rest.Klines(ctx, symbol, interval, limit)
}

func (p *LiveProvider) quote(ctx context.Context, symbol string) (Quote, error) {
	q, err := p.feed.Quote(symbol)
	if err == nil {
		return q, nil
	}

	if errors.Is(err, ErrStale) || errors.Is(err, ErrNoData) {
		log := logging.Component("market")
		log.Debug().Str("symbol", symbol).Err(err).Msg("feed miss, using rest fallback")
		return p.rest.BookTicker(ctx, symbol)
	}
	return Quote{}, err
}

var _ Provider = (*LiveProvider)(nil)

// ProviderFromConfig wires either the live provider or the mock, depending
// on mock mode.
func ProviderFromConfig(ctx context.Context, wsURL, restURL string, symbols []string, staleAfter time.Duration, mock bool) Provider {
	if mock {
		return NewMockProvider(symbols)
	}
	p := NewLiveProvider(
		NewWSFeed(wsURL, symbols, staleAfter),
		NewRESTClient(restURL, 10*time.Second),
	)
	p.Start(ctx)
	return p
}
