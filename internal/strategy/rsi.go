package strategy

import (
	"context"
	"fmt"
	"time"

	"hyperliquid-trading-bot/internal/exchange"
)

// RSIStrategy signals BUY when RSI drops to the oversold threshold and SELL
// when it reaches the overbought threshold. One instance per timeframe, so
// each runs on its own check interval.
type RSIStrategy struct {
	name       string
	timeframe  string // candle interval, e.g. "1h"
	period     int
	oversold   float64
	overbought float64
	candles    exchange.CandleSource
}

// NewRSIStrategy creates an RSI generator for the given candle timeframe.
// The name encodes the timeframe ("rsi_1h") and keys the check interval.
func NewRSIStrategy(timeframe string, period int, oversold, overbought float64, candles exchange.CandleSource) *RSIStrategy {
	return &RSIStrategy{
		name:       "rsi_" + timeframe,
		timeframe:  timeframe,
		period:     period,
		oversold:   oversold,
		overbought: overbought,
		candles:    candles,
	}
}

func (s *RSIStrategy) Name() string {
	return s.name
}

func (s *RSIStrategy) Generate(ctx context.Context, coin string) (*Signal, error) {
	candles, err := s.candles.Candles(ctx, coin, s.timeframe, s.period+50)
	if err != nil {
		return nil, fmt.Errorf("%s: fetching candles for %s: %w", s.name, coin, err)
	}
	if len(candles) < s.period+1 {
		return nil, nil
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	rsi := RSI(closes, s.period)

	action := ActionHold
	switch {
	case rsi <= s.oversold:
		action = ActionBuy
	case rsi >= s.overbought:
		action = ActionSell
	}

	return &Signal{
		Coin:      coin,
		Action:    action,
		Strength:  s.strength(rsi, action),
		Timestamp: time.Now(),
		Source:    s.name,
		Metadata: map[string]interface{}{
			"rsi":       rsi,
			"period":    s.period,
			"timeframe": s.timeframe,
		},
	}, nil
}

// strength grows with the RSI's distance past the threshold, floored at 0.6
// so any threshold crossing clears a moderate admission bar.
func (s *RSIStrategy) strength(rsi float64, action Action) float64 {
	switch action {
	case ActionBuy:
		return clampStrength(1.0 - rsi/s.oversold)
	case ActionSell:
		return clampStrength((rsi - s.overbought) / (100 - s.overbought))
	default:
		return 0
	}
}

func clampStrength(v float64) float64 {
	if v < 0.6 {
		return 0.6
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}
