package instruments

import (
	"testing"

	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db := testutil.OpenDB(t)
	return NewRepository(db.Conn(), zerolog.Nop())
}

func TestUpsertOverwritesExisting(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Upsert(Instrument{
		Symbol: "600000", Exchange: domain.ExchangeSSE, Market: domain.MarketCNA,
		Name: "SPD Bank", Industry: "Banking", IsActive: true,
	}))
	require.NoError(t, repo.Upsert(Instrument{
		Symbol: "600000", Exchange: domain.ExchangeSSE, Market: domain.MarketCNA,
		Name: "Shanghai Pudong Development Bank", Industry: "Banking", IsActive: true,
	}))

	got, err := repo.Get("600000", domain.ExchangeSSE)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Shanghai Pudong Development Bank", got.Name)

	all, err := repo.ListActive()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetMissingReturnsNil(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.Get("999999", domain.ExchangeSSE)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpsertBatch(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.UpsertBatch([]Instrument{
		{Symbol: "600000", Exchange: domain.ExchangeSSE, Market: domain.MarketCNA, Name: "SPD Bank", IsActive: true},
		{Symbol: "000001", Exchange: domain.ExchangeSZSE, Market: domain.MarketCNA, Name: "PAB", IsActive: true},
		{Symbol: "600001", Exchange: domain.ExchangeSSE, Market: domain.MarketCNA, Name: "delisted", IsActive: false},
	})
	require.NoError(t, err)

	active, err := repo.ListActive()
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestSearchMatchesSymbolPrefixAndName(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.UpsertBatch([]Instrument{
		{Symbol: "600000", Exchange: domain.ExchangeSSE, Market: domain.MarketCNA, Name: "SPD Bank", IsActive: true},
		{Symbol: "600519", Exchange: domain.ExchangeSSE, Market: domain.MarketCNA, Name: "Kweichow Moutai", IsActive: true},
		{Symbol: "000001", Exchange: domain.ExchangeSZSE, Market: domain.MarketCNA, Name: "Ping An Bank", IsActive: true},
	}))

	bySymbol, err := repo.Search("600", 10)
	require.NoError(t, err)
	assert.Len(t, bySymbol, 2)

	byName, err := repo.Search("Bank", 10)
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	none, err := repo.Search("601", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
