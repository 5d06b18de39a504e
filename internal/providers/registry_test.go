package providers

import (
	"context"
	"testing"

	"github.com/datanger/workbench/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	r := NewRegistry(zerolog.Nop())
	r.Register(NewTushareProvider("", zerolog.Nop()), 5, 5)
	r.Register(NewEastmoneyProvider(zerolog.Nop()), 5, 5)
	r.Register(NewMockProvider(), 100, 100)
	return r
}

func TestRegistryOrderedPrefersConfiguredOrder(t *testing.T) {
	r := newTestRegistry()

	ordered := r.Ordered([]string{"akshare", "tushare"})
	require.Len(t, ordered, 3)
	assert.Equal(t, "akshare", ordered[0].Name())
	assert.Equal(t, "tushare", ordered[1].Name())
	assert.Equal(t, "mock", ordered[2].Name())
}

func TestRegistryOrderedSkipsUnknownNames(t *testing.T) {
	r := newTestRegistry()

	ordered := r.Ordered([]string{"nonexistent", "mock"})
	require.Len(t, ordered, 3)
	assert.Equal(t, "mock", ordered[0].Name())
	assert.Equal(t, "tushare", ordered[1].Name())
	assert.Equal(t, "akshare", ordered[2].Name())
}

func TestTushareStatusWithoutToken(t *testing.T) {
	r := newTestRegistry()

	p, ok := r.Get("tushare")
	require.True(t, ok)
	status := p.Status(context.Background())
	assert.False(t, status.OK)
}

func TestMockProviderBarsAreDeterministic(t *testing.T) {
	p := NewMockProvider()
	ctx := context.Background()

	first, err := p.BarsDaily(ctx, "600000", domain.ExchangeSSE, "20240101", "20240301", domain.AdjRaw)
	require.NoError(t, err)
	second, err := p.BarsDaily(ctx, "600000", domain.ExchangeSSE, "20240101", "20240301", domain.AdjRaw)
	require.NoError(t, err)

	require.NotEmpty(t, first)
	assert.Equal(t, first, second)

	for _, bar := range first {
		assert.Positive(t, bar.Close)
		assert.GreaterOrEqual(t, bar.High, bar.Low)
	}
}

func TestMockProviderSkipsWeekends(t *testing.T) {
	p := NewMockProvider()

	// 2024-01-06 and 2024-01-07 are a weekend
	bars, err := p.BarsDaily(context.Background(), "000001", domain.ExchangeSZSE, "20240105", "20240108", domain.AdjRaw)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "2024-01-05", bars[0].TradeDate)
	assert.Equal(t, "2024-01-08", bars[1].TradeDate)
}
