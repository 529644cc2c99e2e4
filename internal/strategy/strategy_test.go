package strategy

import (
	"context"
	"errors"
	"math"
	"testing"

	"hyperliquid-trading-bot/internal/exchange"
)

// fakeCandles serves a canned candle slice regardless of coin or interval.
type fakeCandles struct {
	candles []exchange.Candle
	err     error
}

func (f *fakeCandles) Candles(ctx context.Context, coin, interval string, limit int) ([]exchange.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

func candlesFromCloses(closes []float64) []exchange.Candle {
	out := make([]exchange.Candle, len(closes))
	for i, c := range closes {
		out[i] = exchange.Candle{Open: c, High: c, Low: c, Close: c}
	}
	return out
}

func TestRSIStrategyOversoldBuys(t *testing.T) {
	var closes []float64
	price := 100.0
	for i := 0; i < 30; i++ {
		price -= 0.5
		closes = append(closes, price)
	}
	s := NewRSIStrategy("5m", 14, 30, 70, &fakeCandles{candles: candlesFromCloses(closes)})

	if s.Name() != "rsi_5m" {
		t.Errorf("name = %q, want rsi_5m", s.Name())
	}

	sig, err := s.Generate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sig.Action != ActionBuy {
		t.Fatalf("action = %s, want BUY on a pure downtrend", sig.Action)
	}
	if sig.Strength < 0.6 || sig.Strength > 1.0 {
		t.Errorf("strength = %v, want within [0.6, 1.0]", sig.Strength)
	}
	if err := sig.Validate(); err != nil {
		t.Errorf("generated signal fails validation: %v", err)
	}
}

func TestRSIStrategyOverboughtSells(t *testing.T) {
	var closes []float64
	price := 100.0
	for i := 0; i < 30; i++ {
		price += 0.5
		closes = append(closes, price)
	}
	s := NewRSIStrategy("1h", 14, 30, 70, &fakeCandles{candles: candlesFromCloses(closes)})

	sig, err := s.Generate(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sig.Action != ActionSell {
		t.Errorf("action = %s, want SELL on a pure uptrend", sig.Action)
	}
}

func TestRSIStrategyNeutralHolds(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 100
		} else {
			closes[i] = 101
		}
	}
	s := NewRSIStrategy("1m", 14, 30, 70, &fakeCandles{candles: candlesFromCloses(closes)})

	sig, err := s.Generate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sig.Action != ActionHold {
		t.Errorf("action = %s, want HOLD at a neutral RSI", sig.Action)
	}
	if sig.Strength != 0 {
		t.Errorf("HOLD strength = %v, want 0", sig.Strength)
	}
}

func TestRSIStrategyInsufficientData(t *testing.T) {
	s := NewRSIStrategy("4h", 14, 30, 70, &fakeCandles{candles: candlesFromCloses([]float64{1, 2, 3})})

	sig, err := s.Generate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sig != nil {
		t.Error("expected no signal with too few candles")
	}
}

func TestRSIStrategyFetchError(t *testing.T) {
	wantErr := errors.New("feed down")
	s := NewRSIStrategy("5m", 14, 30, 70, &fakeCandles{err: wantErr})

	_, err := s.Generate(context.Background(), "BTC")
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want wrapped feed error", err)
	}
}

func TestSMACrossStrategyBullishAlignment(t *testing.T) {
	// Flat base then a steady climb: short SMA above long, price above short.
	var closes []float64
	for i := 0; i < 20; i++ {
		closes = append(closes, 100)
	}
	price := 100.0
	for i := 0; i < 15; i++ {
		price += 2.0
		closes = append(closes, price)
	}
	s := NewSMACrossStrategy("5m", 10, 20, &fakeCandles{candles: candlesFromCloses(closes)})

	if s.Name() != "sma_5m" {
		t.Errorf("name = %q, want sma_5m", s.Name())
	}

	sig, err := s.Generate(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sig.Action != ActionBuy {
		t.Fatalf("action = %s, want BUY on bullish alignment", sig.Action)
	}
	if err := sig.Validate(); err != nil {
		t.Errorf("generated signal fails validation: %v", err)
	}
}

func TestSMACrossStrategyBearishAlignment(t *testing.T) {
	var closes []float64
	for i := 0; i < 20; i++ {
		closes = append(closes, 100)
	}
	price := 100.0
	for i := 0; i < 15; i++ {
		price -= 2.0
		closes = append(closes, price)
	}
	s := NewSMACrossStrategy("5m", 10, 20, &fakeCandles{candles: candlesFromCloses(closes)})

	sig, err := s.Generate(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sig.Action != ActionSell {
		t.Errorf("action = %s, want SELL on bearish alignment", sig.Action)
	}
}

func TestMACDStrategyBuysOnPositiveCross(t *testing.T) {
	// Decline then sharp rally so the histogram crosses from negative to
	// positive on the last candle.
	var closes []float64
	price := 200.0
	for i := 0; i < 60; i++ {
		price -= 1.0
		closes = append(closes, price)
	}
	// Find the rally length where the final candle is the crossing point.
	rally := 0
	for n := 1; n < 40; n++ {
		test := append(append([]float64{}, closes...), rallyCloses(price, n)...)
		r := MACD(test, 12, 26, 9)
		if r != nil && r.PrevHistogram <= 0 && r.Histogram > 0 {
			rally = n
			break
		}
	}
	if rally == 0 {
		t.Fatal("could not construct a crossing series")
	}
	closes = append(closes, rallyCloses(price, rally)...)

	s := NewMACDStrategy("15m", 12, 26, 9, &fakeCandles{candles: candlesFromCloses(closes)})
	if s.Name() != "macd_15m" {
		t.Errorf("name = %q, want macd_15m", s.Name())
	}

	sig, err := s.Generate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sig.Action != ActionBuy {
		t.Fatalf("action = %s, want BUY at the zero crossing", sig.Action)
	}
	if sig.Strength < 0.7 || sig.Strength > 1.0 {
		t.Errorf("strength = %v, want within [0.7, 1.0]", sig.Strength)
	}
}

func rallyCloses(from float64, n int) []float64 {
	out := make([]float64, n)
	price := from
	for i := range out {
		price += 4.0
		out[i] = price
	}
	return out
}

func TestMACDStrategyHoldsWithoutCross(t *testing.T) {
	var closes []float64
	price := 100.0
	for i := 0; i < 80; i++ {
		price += 0.5
		closes = append(closes, price)
	}
	s := NewMACDStrategy("15m", 12, 26, 9, &fakeCandles{candles: candlesFromCloses(closes)})

	sig, err := s.Generate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sig.Action != ActionHold {
		t.Errorf("action = %s, want HOLD in a steady trend", sig.Action)
	}
}

func TestRangeLowStrategyBuysNearLow(t *testing.T) {
	// 24 hourly candles with the low at 95; price closes at 96, within a
	// buy range of [95*0.99, 95*1.01].
	candles := make([]exchange.Candle, 24)
	for i := range candles {
		candles[i] = exchange.Candle{Open: 100, High: 102, Low: 98, Close: 100}
	}
	candles[10].Low = 95
	candles[23].Close = 95.5
	candles[23].Low = 95.2

	s := NewRangeLowStrategy("range_24h_low", "1h", 24, -1.0, 2.0, &fakeCandles{candles: candles})
	if s.Name() != "range_24h_low" {
		t.Errorf("name = %q, want range_24h_low", s.Name())
	}

	sig, err := s.Generate(context.Background(), "HYPE")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sig.Action != ActionBuy {
		t.Fatalf("action = %s, want BUY near the period low", sig.Action)
	}
	if sig.Strength < 0.7 || sig.Strength > 1.0 {
		t.Errorf("strength = %v, want within [0.7, 1.0]", sig.Strength)
	}
	if err := sig.Validate(); err != nil {
		t.Errorf("generated signal fails validation: %v", err)
	}
}

func TestRangeLowStrategyHoldsFarFromLow(t *testing.T) {
	candles := make([]exchange.Candle, 24)
	for i := range candles {
		candles[i] = exchange.Candle{Open: 100, High: 102, Low: 98, Close: 100}
	}
	candles[0].Low = 90 // price 100 is 11% above the low

	s := NewRangeLowStrategy("range_24h_low", "1h", 24, -1.0, 2.0, &fakeCandles{candles: candles})

	sig, err := s.Generate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sig.Action != ActionHold {
		t.Errorf("action = %s, want HOLD far above the low", sig.Action)
	}
}

func TestRangeLowStrategyNeverSells(t *testing.T) {
	// Price far above any conceivable buy range still yields HOLD, not SELL.
	candles := make([]exchange.Candle, 24)
	for i := range candles {
		candles[i] = exchange.Candle{Open: 50, High: 200, Low: 50, Close: 200}
	}

	s := NewRangeLowStrategy("range_7d_low", "1h", 24, -1.0, 2.0, &fakeCandles{candles: candles})

	sig, err := s.Generate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sig.Action == ActionSell {
		t.Error("range-low is long-only and must not SELL")
	}
}

// scalpCloses alternates 100/101 for 29 candles and then jumps by the given
// amount, so the fast EMA crosses above the slow one on the last candle.
func scalpCloses(jump float64) []float64 {
	closes := make([]float64, 30)
	for i := 0; i < 29; i++ {
		closes[i] = 100
		if i%2 == 1 {
			closes[i] = 101
		}
	}
	closes[29] = closes[28] + jump
	return closes
}

func scalpCandles(closes []float64, lastVolume float64) []exchange.Candle {
	out := candlesFromCloses(closes)
	for i := range out {
		out[i].Volume = 10
	}
	out[len(out)-1].Volume = lastVolume
	return out
}

func TestScalpStrategyBuysOnCrossWithVolumeSpike(t *testing.T) {
	candles := scalpCandles(scalpCloses(3), 40)
	s := NewScalpStrategy("1m", 5, 13, 7, 30, 70, 1.5, &fakeCandles{candles: candles})

	if s.Name() != "scalping_1m" {
		t.Errorf("name = %q, want scalping_1m", s.Name())
	}

	sig, err := s.Generate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sig.Action != ActionBuy {
		t.Fatalf("action = %s, want BUY on a bullish cross with volume, metadata %v", sig.Action, sig.Metadata)
	}
	// Base 0.6 plus 0.1 for the spike; RSI sits mid-band and the EMA gap
	// stays under 0.5%.
	if math.Abs(sig.Strength-0.7) > 1e-9 {
		t.Errorf("strength = %v, want 0.7", sig.Strength)
	}
	if sig.Metadata["volume_spike"] != true {
		t.Error("metadata should flag the volume spike")
	}
	if err := sig.Validate(); err != nil {
		t.Errorf("generated signal fails validation: %v", err)
	}
}

func TestScalpStrategyHoldsWithoutVolumeSpike(t *testing.T) {
	candles := scalpCandles(scalpCloses(3), 10)
	s := NewScalpStrategy("1m", 5, 13, 7, 30, 70, 1.5, &fakeCandles{candles: candles})

	sig, err := s.Generate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sig.Action != ActionHold || sig.Strength != 0 {
		t.Errorf("signal = %s/%v, want HOLD without the volume confirmation", sig.Action, sig.Strength)
	}
}

func TestScalpStrategyNeedsEnoughCandles(t *testing.T) {
	candles := scalpCandles(scalpCloses(3), 40)[:10]
	s := NewScalpStrategy("1m", 5, 13, 7, 30, 70, 1.5, &fakeCandles{candles: candles})

	sig, err := s.Generate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sig != nil {
		t.Errorf("signal = %+v, want no opinion on thin data", sig)
	}
}
