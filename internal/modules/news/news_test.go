package news

import (
	"testing"

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

func TestIngestMockIsIdempotentPerDay(t *testing.T) {
	repo := newTestRepo(t)

	inserted, err := repo.IngestMock([]string{"600000", "000001"})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	again, err := repo.IngestMock([]string{"600000", "000001"})
	require.NoError(t, err)
	assert.Equal(t, 0, again)
}

func TestListFiltersBySymbol(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.IngestMock([]string{"600000", "000001"})
	require.NoError(t, err)

	items, err := repo.List("600000", 20)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Symbols, "600000")

	all, err := repo.List("", 20)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMockItemsCarrySentiment(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.IngestMock([]string{"600000"})
	require.NoError(t, err)

	items, err := repo.List("600000", 10)
	require.NoError(t, err)
	require.NotEmpty(t, items)
	for _, item := range items {
		require.NotNil(t, item.Sentiment)
		assert.GreaterOrEqual(t, *item.Sentiment, -1.0)
		assert.Less(t, *item.Sentiment, 1.0)
		assert.Equal(t, "mock", item.Source)
	}
}
