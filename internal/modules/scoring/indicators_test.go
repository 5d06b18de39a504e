package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indicatorByName(items []Indicator, name string) *Indicator {
	for i := range items {
		if items[i].Name == name {
			return &items[i]
		}
	}
	return nil
}

func TestIndicatorsIncludeBollingerBands(t *testing.T) {
	closes := risingCloses(80, 10, 0.05)
	dates := make([]string, len(closes))
	for i := range dates {
		dates[i] = "2024-01-02"
	}

	items := Indicators(dates, closes)

	upper := indicatorByName(items, "BOLL_UPPER")
	mid := indicatorByName(items, "BOLL_MID")
	lower := indicatorByName(items, "BOLL_LOWER")
	require.NotNil(t, upper)
	require.NotNil(t, mid)
	require.NotNil(t, lower)

	assert.Equal(t, 20, upper.Params["period"])
	assert.Equal(t, 2, upper.Params["dev"])
	// Warmup prefix dropped: 80 closes leave 61 defined points.
	assert.Len(t, mid.Series, len(closes)-19)
	assert.Greater(t, upper.Last, mid.Last)
	assert.Greater(t, mid.Last, lower.Last)
}

func TestIndicatorsSkipUndefinedSeries(t *testing.T) {
	closes := risingCloses(25, 10, 0.05)
	dates := make([]string, len(closes))
	for i := range dates {
		dates[i] = "2024-01-02"
	}

	items := Indicators(dates, closes)

	// 25 closes: MA20 and Bollinger are defined, MA60 and MACD are not.
	require.NotNil(t, indicatorByName(items, "BOLL_MID"))
	assert.Nil(t, indicatorByName(items, "MACD"))
}
