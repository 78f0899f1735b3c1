package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"paper-trading-bot/internal/logging"
)

// WSFeed maintains a live top-of-book cache from the exchange bookTicker
// stream. It reconnects with backoff and exposes quotes with a staleness
// limit so a dead connection never feeds old prices into fills.
type WSFeed struct {
	baseURL    string
	symbols    []string
	staleAfter time.Duration

	mu     sync.RWMutex
	quotes map[string]Quote
}

// bookTickerMsg mirrors the combined-stream bookTicker payload.
type bookTickerMsg struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Bid    string `json:"b"`
		Ask    string `json:"a"`
	} `json:"data"`
}

// NewWSFeed prepares a feed for the given symbols. Run must be called to
// start streaming.
func NewWSFeed(baseURL string, symbols []string, staleAfter time.Duration) *WSFeed {
	return &WSFeed{
		baseURL:    baseURL,
		symbols:    symbols,
		staleAfter: staleAfter,
		quotes:     make(map[string]Quote),
	}
}

// Run streams quotes until ctx is cancelled, reconnecting on failure.
func (f *WSFeed) Run(ctx context.Context) {
	log := logging.Component("market.ws")
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		err := f.streamOnce(ctx)
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Dur("backoff", backoff).Msg("stream dropped, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *WSFeed) streamOnce(ctx context.Context) error {
	streams := make([]string, 0, len(f.symbols))
	for _, s := range f.symbols {
		streams = append(streams, strings.ToLower(s)+"@bookTicker")
	}
	url := fmt.Sprintf("%s/stream?streams=%s", strings.TrimSuffix(f.baseURL, "/ws"), strings.Join(streams, "/"))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	// Drop the connection promptly when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(time.Minute))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var msg bookTickerMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Data.Symbol == "" {
			continue
		}

		bid, err1 := strconv.ParseFloat(msg.Data.Bid, 64)
		ask, err2 := strconv.ParseFloat(msg.Data.Ask, 64)
		if err1 != nil || err2 != nil || bid <= 0 || ask <= 0 {
			continue
		}

		f.mu.Lock()
		f.quotes[msg.Data.Symbol] = Quote{
			Symbol:    msg.Data.Symbol,
			Bid:       bid,
			Ask:       ask,
			Last:      (bid + ask) / 2,
			Timestamp: time.Now(),
		}
		f.mu.Unlock()
	}
}

// Quote returns the cached quote for symbol, rejecting stale or missing data.
func (f *WSFeed) Quote(symbol string) (Quote, error) {
	f.mu.RLock()
	q, ok := f.quotes[symbol]
	f.mu.RUnlock()

	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}
	if f.staleAfter > 0 && time.Since(q.Timestamp) > f.staleAfter {
		return Quote{}, fmt.Errorf("%w: %s quote is %s old", ErrStale, symbol, time.Since(q.Timestamp).Round(time.Millisecond))
	}
	return q, nil
}
