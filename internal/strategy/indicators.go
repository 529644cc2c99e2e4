package strategy

// Indicator math over closing prices. Kept as plain functions so the
// generators and their tests share one implementation.

// SMA calculates the Simple Moving Average over the last period closes.
func SMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(period)
}

// EMASeries calculates the Exponential Moving Average for every point of
// the series, seeded with the first value.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) == 0 {
		return nil
	}
	multiplier := 2.0 / float64(period+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*multiplier + out[i-1]*(1-multiplier)
	}
	return out
}

// RSI calculates the Relative Strength Index over the last period changes.
// Returns 50 (neutral) when there is not enough data.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50.0
	}

	gains := 0.0
	losses := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACDResult holds the last two points of the MACD computation; the
// previous histogram value is needed for crossover detection.
type MACDResult struct {
	MACD          float64
	Signal        float64
	Histogram     float64
	PrevHistogram float64
}

// MACD calculates the MACD line (fast EMA - slow EMA), its signal line
// (EMA of the MACD line), and the histogram.
func MACD(closes []float64, fastPeriod, slowPeriod, signalPeriod int) *MACDResult {
	if len(closes) < slowPeriod+signalPeriod {
		return nil
	}

	fastEMA := EMASeries(closes, fastPeriod)
	slowEMA := EMASeries(closes, slowPeriod)

	macdLine := make([]float64, len(closes))
	for i := range closes {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := EMASeries(macdLine, signalPeriod)

	last := len(closes) - 1
	return &MACDResult{
		MACD:          macdLine[last],
		Signal:        signalLine[last],
		Histogram:     macdLine[last] - signalLine[last],
		PrevHistogram: macdLine[last-1] - signalLine[last-1],
	}
}

// lowestLow returns the lowest low across the given candles' Low values.
func lowestLow(lows []float64) float64 {
	if len(lows) == 0 {
		return 0
	}
	min := lows[0]
	for _, l := range lows[1:] {
		if l < min {
			min = l
		}
	}
	return min
}
