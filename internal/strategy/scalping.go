package strategy

import (
	"context"
	"fmt"
	"time"

	"hyperliquid-trading-bot/internal/exchange"
)

// volumeLookback is the candle count the spike detector averages over.
const volumeLookback = 20

// ScalpStrategy trades short momentum bursts: a fast/slow EMA crossover
// sets the direction, RSI inside the neutral band confirms, and a volume
// spike times the entry. Meant for the 1m timeframe with tight exits.
type ScalpStrategy struct {
	name             string
	timeframe        string
	fastEMA          int
	slowEMA          int
	rsiPeriod        int
	oversold         float64
	overbought       float64
	volumeMultiplier float64
	candles          exchange.CandleSource
}

// NewScalpStrategy creates a scalping generator for the given candle
// timeframe. The name encodes the timeframe ("scalping_1m") and keys the
// check interval.
func NewScalpStrategy(timeframe string, fastEMA, slowEMA, rsiPeriod int, oversold, overbought, volumeMultiplier float64, candles exchange.CandleSource) *ScalpStrategy {
	return &ScalpStrategy{
		name:             "scalping_" + timeframe,
		timeframe:        timeframe,
		fastEMA:          fastEMA,
		slowEMA:          slowEMA,
		rsiPeriod:        rsiPeriod,
		oversold:         oversold,
		overbought:       overbought,
		volumeMultiplier: volumeMultiplier,
		candles:          candles,
	}
}

func (s *ScalpStrategy) Name() string {
	return s.name
}

func (s *ScalpStrategy) Generate(ctx context.Context, coin string) (*Signal, error) {
	candles, err := s.candles.Candles(ctx, coin, s.timeframe, 100)
	if err != nil {
		return nil, fmt.Errorf("%s: fetching candles for %s: %w", s.name, coin, err)
	}
	minCandles := s.slowEMA
	if minCandles < volumeLookback {
		minCandles = volumeLookback
	}
	if len(candles) < minCandles+5 {
		return nil, nil
	}

	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	fast := EMASeries(closes, s.fastEMA)
	slow := EMASeries(closes, s.slowEMA)
	rsi := RSI(closes, s.rsiPeriod)
	spike := volumeSpike(volumes, s.volumeMultiplier)

	last := len(closes) - 1
	bullishCross := fast[last] > slow[last] && fast[last-1] <= slow[last-1]
	bearishCross := fast[last] < slow[last] && fast[last-1] >= slow[last-1]

	action := ActionHold
	switch {
	case bullishCross && rsi > s.oversold && rsi < s.overbought && spike:
		action = ActionBuy
	case bearishCross && rsi < s.overbought && rsi > s.oversold && spike:
		action = ActionSell
	}

	emaDiffPct := 0.0
	if slow[last] != 0 {
		emaDiffPct = (fast[last] - slow[last]) / slow[last] * 100
	}

	return &Signal{
		Coin:      coin,
		Action:    action,
		Strength:  scalpStrength(rsi, emaDiffPct, spike, action),
		Timestamp: time.Now(),
		Source:    s.name,
		Metadata: map[string]interface{}{
			"fast_ema":     fast[last],
			"slow_ema":     slow[last],
			"ema_diff_pct": emaDiffPct,
			"rsi":          rsi,
			"volume_spike": spike,
			"timeframe":    s.timeframe,
		},
	}, nil
}

// volumeSpike reports whether the latest volume exceeds the lookback
// average by the multiplier. The average includes the latest candle.
func volumeSpike(volumes []float64, multiplier float64) bool {
	if len(volumes) < volumeLookback {
		return false
	}
	sum := 0.0
	for _, v := range volumes[len(volumes)-volumeLookback:] {
		sum += v
	}
	avg := sum / volumeLookback
	return volumes[len(volumes)-1] > avg*multiplier
}

// scalpStrength stacks confluence on a 0.6 base: RSI depth, wide EMA
// separation, and the volume spike each add a step.
func scalpStrength(rsi, emaDiffPct float64, spike bool, action Action) float64 {
	if action == ActionHold {
		return 0
	}

	strength := 0.6
	switch action {
	case ActionBuy:
		if rsi < 35 {
			strength += 0.1
		}
		if rsi < 30 {
			strength += 0.1
		}
	case ActionSell:
		if rsi > 65 {
			strength += 0.1
		}
		if rsi > 70 {
			strength += 0.1
		}
	}
	if emaDiffPct < 0 {
		emaDiffPct = -emaDiffPct
	}
	if emaDiffPct > 0.5 {
		strength += 0.1
	}
	if spike {
		strength += 0.1
	}
	if strength > 1.0 {
		strength = 1.0
	}
	return strength
}
