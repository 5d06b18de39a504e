package scoring

import (
	"github.com/markcheno/go-talib"
)

// Indicators computes the standard chart overlays from ascending closes.
// Warmup prefixes (where the indicator is not yet defined) are dropped from
// each series.
func Indicators(tradeDates []string, closes []float64) []Indicator {
	var out []Indicator

	if ma20 := smaIndicator(tradeDates, closes, 20); ma20 != nil {
		out = append(out, *ma20)
	}
	if ma60 := smaIndicator(tradeDates, closes, 60); ma60 != nil {
		out = append(out, *ma60)
	}
	if rsi := rsiIndicator(tradeDates, closes, 14); rsi != nil {
		out = append(out, *rsi)
	}
	if macd := macdIndicator(tradeDates, closes); macd != nil {
		out = append(out, *macd)
	}
	out = append(out, bollIndicators(tradeDates, closes)...)
	return out
}

func smaIndicator(dates []string, closes []float64, period int) *Indicator {
	if len(closes) < period {
		return nil
	}
	values := talib.Sma(closes, period)
	series := buildSeries(dates, values, period-1)
	return &Indicator{
		Name:   "MA",
		Params: map[string]int{"period": period},
		Last:   series[len(series)-1].Value,
		Series: series,
	}
}

func rsiIndicator(dates []string, closes []float64, period int) *Indicator {
	if len(closes) <= period {
		return nil
	}
	values := talib.Rsi(closes, period)
	series := buildSeries(dates, values, period)
	return &Indicator{
		Name:   "RSI",
		Params: map[string]int{"period": period},
		Last:   series[len(series)-1].Value,
		Series: series,
	}
}

// macdIndicator computes MACD(12,26,9). The histogram follows the A-share
// charting convention: (dif - dea) * 2.
func macdIndicator(dates []string, closes []float64) *Indicator {
	const fast, slow, signal = 12, 26, 9
	warmup := slow - 1 + signal - 1
	if len(closes) <= warmup {
		return nil
	}

	dif, dea, _ := talib.Macd(closes, fast, slow, signal)
	hist := make([]float64, len(dif))
	for i := range dif {
		hist[i] = (dif[i] - dea[i]) * 2
	}

	series := buildSeries(dates, hist, warmup)
	return &Indicator{
		Name:   "MACD",
		Params: map[string]int{"fast": fast, "slow": slow, "signal": signal},
		Last:   series[len(series)-1].Value,
		Series: series,
	}
}

// bollIndicators computes Bollinger Bands(20, 2σ) as three series.
func bollIndicators(dates []string, closes []float64) []Indicator {
	const period = 20
	if len(closes) < period {
		return nil
	}

	upper, middle, lower := talib.BBands(closes, period, 2, 2, talib.SMA)
	params := map[string]int{"period": period, "dev": 2}

	out := make([]Indicator, 0, 3)
	for _, band := range []struct {
		name   string
		values []float64
	}{
		{"BOLL_UPPER", upper},
		{"BOLL_MID", middle},
		{"BOLL_LOWER", lower},
	} {
		series := buildSeries(dates, band.values, period-1)
		out = append(out, Indicator{
			Name:   band.name,
			Params: params,
			Last:   series[len(series)-1].Value,
			Series: series,
		})
	}
	return out
}

// buildSeries pairs values with dates, skipping the warmup prefix.
func buildSeries(dates []string, values []float64, warmup int) []IndicatorPoint {
	out := make([]IndicatorPoint, 0, len(values)-warmup)
	for i := warmup; i < len(values); i++ {
		out = append(out, IndicatorPoint{TradeDate: dates[i], Value: values[i]})
	}
	return out
}
