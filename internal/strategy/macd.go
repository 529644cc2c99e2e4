package strategy

import (
	"context"
	"fmt"
	"time"

	"hyperliquid-trading-bot/internal/exchange"
)

// MACDStrategy signals on histogram zero crossings: BUY when the histogram
// turns positive, SELL when it turns negative.
type MACDStrategy struct {
	name         string
	timeframe    string
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
	candles      exchange.CandleSource
}

func NewMACDStrategy(timeframe string, fastPeriod, slowPeriod, signalPeriod int, candles exchange.CandleSource) *MACDStrategy {
	return &MACDStrategy{
		name:         "macd_" + timeframe,
		timeframe:    timeframe,
		fastPeriod:   fastPeriod,
		slowPeriod:   slowPeriod,
		signalPeriod: signalPeriod,
		candles:      candles,
	}
}

func (s *MACDStrategy) Name() string {
	return s.name
}

func (s *MACDStrategy) Generate(ctx context.Context, coin string) (*Signal, error) {
	required := s.slowPeriod + s.signalPeriod + 10
	limit := required
	if limit > 200 {
		limit = 200
	}

	candles, err := s.candles.Candles(ctx, coin, s.timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: fetching candles for %s: %w", s.name, coin, err)
	}
	if len(candles) < s.slowPeriod+s.signalPeriod {
		return nil, nil
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	result := MACD(closes, s.fastPeriod, s.slowPeriod, s.signalPeriod)
	if result == nil {
		return nil, nil
	}

	action := ActionHold
	switch {
	case result.PrevHistogram <= 0 && result.Histogram > 0:
		action = ActionBuy
	case result.PrevHistogram >= 0 && result.Histogram < 0:
		action = ActionSell
	}

	return &Signal{
		Coin:      coin,
		Action:    action,
		Strength:  macdStrength(result, action),
		Timestamp: time.Now(),
		Source:    s.name,
		Metadata: map[string]interface{}{
			"macd":      result.MACD,
			"signal":    result.Signal,
			"histogram": result.Histogram,
			"timeframe": s.timeframe,
		},
	}, nil
}

// macdStrength boosts a 0.7 base with histogram magnitude and momentum.
func macdStrength(r *MACDResult, action Action) float64 {
	if action == ActionHold {
		return 0
	}
	histogram := r.Histogram
	if histogram < 0 {
		histogram = -histogram
	}
	momentum := r.Histogram - r.PrevHistogram
	if momentum < 0 {
		momentum = -momentum
	}

	histogramBoost := histogram * 0.05
	if histogramBoost > 0.2 {
		histogramBoost = 0.2
	}
	momentumBoost := momentum * 0.02
	if momentumBoost > 0.1 {
		momentumBoost = 0.1
	}

	strength := 0.7 + histogramBoost + momentumBoost
	if strength > 1.0 {
		strength = 1.0
	}
	return strength
}
