package strategy

import (
	"context"
	"fmt"
	"time"

	"hyperliquid-trading-bot/internal/exchange"
)

// RangeLowStrategy signals BUY when price sits just above the lookback
// period's low. Long-only: it never emits SELL. Configured as the 24-hour
// variant (24 hourly candles) or the 7-day variant (168).
type RangeLowStrategy struct {
	name            string
	timeframe       string
	lookbackCandles int
	longOffsetPct   float64 // buy-range start relative to the low, e.g. -1.0
	tolerancePct    float64 // buy-range width above the start, e.g. 2.0
	candles         exchange.CandleSource
}

// NewRangeLowStrategy creates a range-low generator. name should describe
// the lookback window, e.g. "range_24h_low".
func NewRangeLowStrategy(name, timeframe string, lookbackCandles int, longOffsetPct, tolerancePct float64, candles exchange.CandleSource) *RangeLowStrategy {
	return &RangeLowStrategy{
		name:            name,
		timeframe:       timeframe,
		lookbackCandles: lookbackCandles,
		longOffsetPct:   longOffsetPct,
		tolerancePct:    tolerancePct,
		candles:         candles,
	}
}

func (s *RangeLowStrategy) Name() string {
	return s.name
}

func (s *RangeLowStrategy) Generate(ctx context.Context, coin string) (*Signal, error) {
	candles, err := s.candles.Candles(ctx, coin, s.timeframe, s.lookbackCandles)
	if err != nil {
		return nil, fmt.Errorf("%s: fetching candles for %s: %w", s.name, coin, err)
	}
	if len(candles) < s.lookbackCandles/2 {
		return nil, nil
	}

	lows := make([]float64, len(candles))
	for i, c := range candles {
		lows[i] = c.Low
	}
	periodLow := lowestLow(lows)
	price := candles[len(candles)-1].Close
	if periodLow <= 0 || price <= 0 {
		return nil, nil
	}

	rangeLow := periodLow * (1 + s.longOffsetPct/100)
	rangeHigh := periodLow * (1 + (s.longOffsetPct+s.tolerancePct)/100)

	action := ActionHold
	strength := 0.0
	if price >= rangeLow && price <= rangeHigh {
		action = ActionBuy
		// Stronger the closer price is to the bottom of the buy range.
		position := (price - rangeLow) / (rangeHigh - rangeLow)
		strength = 1.0 - 0.3*position
	}

	return &Signal{
		Coin:      coin,
		Action:    action,
		Strength:  strength,
		Timestamp: time.Now(),
		Source:    s.name,
		Metadata: map[string]interface{}{
			"period_low": periodLow,
			"range_low":  rangeLow,
			"range_high": rangeHigh,
			"price":      price,
			"timeframe":  s.timeframe,
		},
	}, nil
}
