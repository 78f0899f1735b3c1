package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// RESTClient fetches candles and quotes over the exchange REST API. It
// backs the websocket feed for quote gaps and is the only candle source.
type RESTClient struct {
	baseURL string
	client  *http.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Klines fetches up to limit recent candles for symbol at the given interval.
func (c *RESTClient) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d", c.baseURL, symbol, interval, limit)

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	// Each kline arrives as a mixed-type array:
	// [openTime, open, high, low, close, volume, closeTime, ...]
	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing klines: %w", err)
	}

	klines := make([]Kline, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		openTime, ok := row[0].(float64)
		if !ok {
			continue
		}
		k := Kline{OpenTime: time.UnixMilli(int64(openTime))}
		var parseErr error
		k.Open, parseErr = parseField(row[1], parseErr)
		k.High, parseErr = parseField(row[2], parseErr)
		k.Low, parseErr = parseField(row[3], parseErr)
		k.Close, parseErr = parseField(row[4], parseErr)
		k.Volume, parseErr = parseField(row[5], parseErr)
		if parseErr != nil {
			continue
		}
		klines = append(klines, k)
	}

	if len(klines) == 0 {
		return nil, fmt.Errorf("%w: %s klines", ErrNoData, symbol)
	}
	return klines, nil
}

// BookTicker fetches the current top of book for symbol.
func (c *RESTClient) BookTicker(ctx context.Context, symbol string) (Quote, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/bookTicker?symbol=%s", c.baseURL, symbol)

	body, err := c.get(ctx, url)
	if err != nil {
		return Quote{}, err
	}

	var resp struct {
		Symbol string `json:"symbol"`
		Bid    string `json:"bidPrice"`
		Ask    string `json:"askPrice"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Quote{}, fmt.Errorf("parsing book ticker: %w", err)
	}

	bid, err1 := strconv.ParseFloat(resp.Bid, 64)
	ask, err2 := strconv.ParseFloat(resp.Ask, 64)
	if err1 != nil || err2 != nil || bid <= 0 || ask <= 0 {
		return Quote{}, fmt.Errorf("%w: %s book ticker", ErrNoData, symbol)
	}

	return Quote{
		Symbol:    resp.Symbol,
		Bid:       bid,
		Ask:       ask,
		Last:      (bid + ask) / 2,
		Timestamp: time.Now(),
	}, nil
}

func (c *RESTClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}

func parseField(v interface{}, prev error) (float64, error) {
	if prev != nil {
		return 0, prev
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected kline field type %T", v)
	}
	return strconv.ParseFloat(s, 64)
}
