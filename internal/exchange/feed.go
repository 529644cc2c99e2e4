package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Candle is one OHLCV candlestick.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// CandleSource supplies historical candles to signal generators. Calls may
// block on the network and may fail transiently; callers treat a failure as
// "no signal this cycle".
type CandleSource interface {
	Candles(ctx context.Context, coin, interval string, limit int) ([]Candle, error)
}

// Feed fetches candles from a public klines endpoint. Each generator gets
// its own Feed so the per-source rate limiter serializes only that
// generator's requests.
type Feed struct {
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
}

// NewFeed creates a candle feed against baseURL with the given request
// timeout and per-source minimum request interval.
func NewFeed(baseURL string, timeout, minRequestInterval time.Duration) *Feed {
	return &Feed{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    NewRateLimiter(minRequestInterval),
	}
}

// Candles fetches up to limit candles for coin at the given interval
// (e.g. "1m", "5m", "1h").
func (f *Feed) Candles(ctx context.Context, coin, interval string, limit int) ([]Candle, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", coin+"USDT")
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", f.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error building klines request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading klines response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines API error: %s", string(body))
	}

	// The endpoint returns arrays of mixed numbers and numeric strings.
	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		openTime, ok := row[0].(float64)
		if !ok {
			continue
		}
		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(int64(openTime)),
			Open:     parsePrice(row[1]),
			High:     parsePrice(row[2]),
			Low:      parsePrice(row[3]),
			Close:    parsePrice(row[4]),
			Volume:   parsePrice(row[5]),
		})
	}

	return candles, nil
}

func parsePrice(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	default:
		return 0
	}
}
