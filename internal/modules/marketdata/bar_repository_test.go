package marketdata

import (
	"path/filepath"
	"testing"

	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/providers"
	"github.com/datanger/workbench/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBars(t *testing.T) *BarRepository {
	t.Helper()
	db := testutil.OpenDB(t)
	return NewBarRepository(db.Conn(), NewQuoteCache(), zerolog.Nop())
}

func sampleBars() []providers.BarDailyRow {
	return []providers.BarDailyRow{
		{TradeDate: "2024-03-01", Open: 10, High: 10.2, Low: 9.9, Close: 10.1, Volume: 1e6, Amount: 1.01e7},
		{TradeDate: "2024-03-04", Open: 10.1, High: 10.5, Low: 10.0, Close: 10.4, Volume: 1.2e6, Amount: 1.25e7},
	}
}

func TestUpsertBarsIsIdempotent(t *testing.T) {
	repo := newTestBars(t)

	require.NoError(t, repo.UpsertBars("600000", domain.ExchangeSSE, domain.AdjRaw, sampleBars()))
	require.NoError(t, repo.UpsertBars("600000", domain.ExchangeSSE, domain.AdjRaw, sampleBars()))

	count, err := repo.CountBars("600000", domain.ExchangeSSE)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUpsertOverwritesSameTradeDate(t *testing.T) {
	repo := newTestBars(t)
	require.NoError(t, repo.UpsertBars("600000", domain.ExchangeSSE, domain.AdjRaw, sampleBars()))

	revised := []providers.BarDailyRow{
		{TradeDate: "2024-03-04", Open: 10.1, High: 10.6, Low: 10.0, Close: 10.55, Volume: 1.3e6, Amount: 1.3e7},
	}
	require.NoError(t, repo.UpsertBars("600000", domain.ExchangeSSE, domain.AdjRaw, revised))

	quote, err := repo.LatestQuote("600000", domain.ExchangeSSE)
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.Equal(t, "2024-03-04", quote.TradeDate)
	assert.InDelta(t, 10.55, quote.Close, 1e-9)
	assert.InDelta(t, 10.1, quote.PrevClose, 1e-9)
}

func TestLatestQuoteNilWithoutBars(t *testing.T) {
	repo := newTestBars(t)

	quote, err := repo.LatestQuote("600000", domain.ExchangeSSE)
	require.NoError(t, err)
	assert.Nil(t, quote)
}

func TestRecentClosesAscending(t *testing.T) {
	repo := newTestBars(t)
	require.NoError(t, repo.UpsertBars("600000", domain.ExchangeSSE, domain.AdjRaw, sampleBars()))

	series, err := repo.RecentCloses("600000", domain.ExchangeSSE, 10)
	require.NoError(t, err)
	require.Len(t, series.Closes, 2)
	assert.Equal(t, []string{"2024-03-01", "2024-03-04"}, series.TradeDates)
	assert.InDelta(t, 10.1, series.Closes[0], 1e-9)
	assert.InDelta(t, 10.4, series.Closes[1], 1e-9)
}

func TestAdjVariantsAreSeparate(t *testing.T) {
	repo := newTestBars(t)
	require.NoError(t, repo.UpsertBars("600000", domain.ExchangeSSE, domain.AdjRaw, sampleBars()))
	require.NoError(t, repo.UpsertBars("600000", domain.ExchangeSSE, domain.AdjQfq, sampleBars()[:1]))

	raw, err := repo.RecentBars("600000", domain.ExchangeSSE, domain.AdjRaw, 10)
	require.NoError(t, err)
	assert.Len(t, raw, 2)

	qfq, err := repo.RecentBars("600000", domain.ExchangeSSE, domain.AdjQfq, 10)
	require.NoError(t, err)
	assert.Len(t, qfq, 1)
}

func TestQuoteCacheSnapshotRoundTrip(t *testing.T) {
	cache := NewQuoteCache()
	cache.Set(Quote{Symbol: "600000", Exchange: domain.ExchangeSSE, TradeDate: "2024-03-04", Close: 10.4, PrevClose: 10.1})

	path := filepath.Join(t.TempDir(), "quotes.msgpack")
	require.NoError(t, cache.SaveSnapshot(path))

	restored := NewQuoteCache()
	require.NoError(t, restored.LoadSnapshot(path))
	require.Equal(t, 1, restored.Len())

	quote, ok := restored.Get("600000", string(domain.ExchangeSSE))
	require.True(t, ok)
	assert.InDelta(t, 10.4, quote.Close, 1e-9)

	// Missing file is fine.
	assert.NoError(t, NewQuoteCache().LoadSnapshot(filepath.Join(t.TempDir(), "absent")))
}
