package strategy

import (
	"context"
	"fmt"
	"time"

	"hyperliquid-trading-bot/internal/exchange"
)

// SMACrossStrategy signals on short/long SMA alignment: BUY when the short
// average is above the long one with price confirming, SELL on the mirror
// condition.
type SMACrossStrategy struct {
	name        string
	timeframe   string
	shortPeriod int
	longPeriod  int
	candles     exchange.CandleSource
}

func NewSMACrossStrategy(timeframe string, shortPeriod, longPeriod int, candles exchange.CandleSource) *SMACrossStrategy {
	return &SMACrossStrategy{
		name:        "sma_" + timeframe,
		timeframe:   timeframe,
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		candles:     candles,
	}
}

func (s *SMACrossStrategy) Name() string {
	return s.name
}

func (s *SMACrossStrategy) Generate(ctx context.Context, coin string) (*Signal, error) {
	candles, err := s.candles.Candles(ctx, coin, s.timeframe, s.longPeriod+50)
	if err != nil {
		return nil, fmt.Errorf("%s: fetching candles for %s: %w", s.name, coin, err)
	}
	if len(candles) < s.longPeriod+1 {
		return nil, nil
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	shortSMA := SMA(closes, s.shortPeriod)
	longSMA := SMA(closes, s.longPeriod)
	price := closes[len(closes)-1]

	action := ActionHold
	switch {
	case shortSMA > longSMA && price > shortSMA:
		action = ActionBuy
	case shortSMA < longSMA && price < shortSMA:
		action = ActionSell
	}

	return &Signal{
		Coin:      coin,
		Action:    action,
		Strength:  smaStrength(shortSMA, longSMA, action),
		Timestamp: time.Now(),
		Source:    s.name,
		Metadata: map[string]interface{}{
			"short_sma": shortSMA,
			"long_sma":  longSMA,
			"price":     price,
			"timeframe": s.timeframe,
		},
	}, nil
}

// smaStrength scales with the separation between the averages: a wide gap
// means a well-established trend.
func smaStrength(shortSMA, longSMA float64, action Action) float64 {
	if action == ActionHold || longSMA == 0 {
		return 0
	}
	separation := shortSMA - longSMA
	if separation < 0 {
		separation = -separation
	}
	strength := 0.6 + (separation/longSMA)*20
	if strength > 1.0 {
		strength = 1.0
	}
	return strength
}
