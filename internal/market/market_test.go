package market

import (
	"context"
	"testing"
	"time"
)

func TestQuoteSpreadPct(t *testing.T) {
	q := Quote{Bid: 99.9, Ask: 100.1}
	got := q.SpreadPct()
	want := 0.2 / 100.0
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected spread %v, got %v", want, got)
	}
}

func TestQuoteSpreadPctZeroMid(t *testing.T) {
	q := Quote{}
	if got := q.SpreadPct(); got != 0 {
		t.Errorf("expected 0 for empty quote, got %v", got)
	}
}

func TestWSFeedRejectsStaleQuote(t *testing.T) {
	feed := NewWSFeed("wss://example", []string{"BTCUSDT"}, 100*time.Millisecond)
	feed.quotes["BTCUSDT"] = Quote{
		Symbol:    "BTCUSDT",
		Bid:       100,
		Ask:       100.1,
		Last:      100.05,
		Timestamp: time.Now().Add(-time.Second),
	}

	if _, err := feed.Quote("BTCUSDT"); err == nil {
		t.Fatal("expected stale quote error")
	}

	feed.quotes["BTCUSDT"] = Quote{Symbol: "BTCUSDT", Bid: 100, Ask: 100.1, Last: 100.05, Timestamp: time.Now()}
	if _, err := feed.Quote("BTCUSDT"); err != nil {
		t.Fatalf("expected fresh quote, got %v", err)
	}
}

func TestWSFeedUnknownSymbol(t *testing.T) {
	feed := NewWSFeed("wss://example", nil, time.Second)
	if _, err := feed.Quote("DOGEUSDT"); err == nil {
		t.Fatal("expected error for unknown symbol")
	}
}

func TestMockProviderKnownSymbol(t *testing.T) {
	p := NewMockProvider([]string{"BTCUSDT"})
	ctx := context.Background()

	price, err := p.LastPrice(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price <= 0 {
		t.Errorf("expected positive price, got %v", price)
	}

	spread, err := p.Spread(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spread <= 0 || spread > 0.01 {
		t.Errorf("spread out of expected range: %v", spread)
	}
}

func TestMockProviderUnknownSymbol(t *testing.T) {
	p := NewMockProvider([]string{"BTCUSDT"})
	if _, err := p.LastPrice(context.Background(), "XRPUSDT"); err == nil {
		t.Fatal("expected error for symbol outside universe")
	}
}

func TestMockProviderKlines(t *testing.T) {
	p := NewMockProvider([]string{"ETHUSDT"})
	klines, err := p.Klines(context.Background(), "ETHUSDT", "5m", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(klines) != 50 {
		t.Fatalf("expected 50 klines, got %d", len(klines))
	}
	for i, k := range klines {
		if k.High < k.Low {
			t.Errorf("kline %d: high %v below low %v", i, k.High, k.Low)
		}
		if k.Close <= 0 || k.Open <= 0 {
			t.Errorf("kline %d: non-positive prices", i)
		}
		if i > 0 && !klines[i-1].OpenTime.Before(k.OpenTime) {
			t.Errorf("kline %d: timestamps not increasing", i)
		}
	}
}

func TestMockProviderSetPrice(t *testing.T) {
	p := NewMockProvider([]string{"BTCUSDT"})
	p.SetPrice("BTCUSDT", 50000)

	price, err := p.LastPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One random-walk step of at most 0.1% away from the pinned price.
	if price < 49900 || price > 50100 {
		t.Errorf("price drifted too far from pinned value: %v", price)
	}
}
