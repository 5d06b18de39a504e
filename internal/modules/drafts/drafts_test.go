package drafts

import (
	"testing"

	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/modules/portfolio"
	"github.com/datanger/workbench/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepo returns the repository plus two portfolio IDs; drafts carry a
// foreign key on portfolios, so they must exist first.
func newTestRepo(t *testing.T) (*Repository, string, string) {
	t.Helper()
	db := testutil.OpenDB(t)
	conn := db.Conn()
	portfolios := portfolio.NewRepository(conn, zerolog.Nop())
	p1, err := portfolios.Create("first", 100000)
	require.NoError(t, err)
	p2, err := portfolios.Create("second", 100000)
	require.NoError(t, err)
	return NewRepository(conn, zerolog.Nop()), p1.PortfolioID, p2.PortfolioID
}

func limitPrice(v float64) *float64 { return &v }

func TestCreateFillsDefaults(t *testing.T) {
	repo, pid, _ := newTestRepo(t)

	draft, err := repo.Create(Draft{
		PortfolioID: pid, Symbol: "600000", Exchange: domain.ExchangeSSE,
		Side: domain.SideBuy, Price: limitPrice(10.5), Qty: 200,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, draft.DraftID)
	assert.Equal(t, "DRAFT", draft.Status)
	assert.Equal(t, OriginManual, draft.Origin)
	assert.Equal(t, domain.OrderLimit, draft.OrderType)
	assert.NotEmpty(t, draft.CreatedAt)

	got, err := repo.Get(draft.DraftID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Price)
	assert.Equal(t, 10.5, *got.Price)
}

func TestGetManyPreservesAll(t *testing.T) {
	repo, pid, _ := newTestRepo(t)

	var ids []string
	for _, symbol := range []string{"600000", "000001", "600519"} {
		draft, err := repo.Create(Draft{
			PortfolioID: pid, Symbol: symbol, Exchange: domain.ExchangeSSE,
			Side: domain.SideBuy, Qty: 100,
		})
		require.NoError(t, err)
		ids = append(ids, draft.DraftID)
	}

	got, err := repo.GetMany(ids)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestUpdateChangesMutableFieldsOnly(t *testing.T) {
	repo, pid, _ := newTestRepo(t)
	draft, err := repo.Create(Draft{
		PortfolioID: pid, Symbol: "600000", Exchange: domain.ExchangeSSE,
		Side: domain.SideBuy, Price: limitPrice(10), Qty: 100,
	})
	require.NoError(t, err)

	qty := 300.0
	notes := "scale in"
	updated, err := repo.Update(draft.DraftID, nil, &qty, &notes)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, 300.0, updated.Qty)
	assert.Equal(t, "scale in", updated.Notes)
	require.NotNil(t, updated.Price)
	assert.Equal(t, 10.0, *updated.Price)

	missing, err := repo.Update("no-such-draft", nil, &qty, nil)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeleteReportsExistence(t *testing.T) {
	repo, pid, _ := newTestRepo(t)
	draft, err := repo.Create(Draft{
		PortfolioID: pid, Symbol: "600000", Exchange: domain.ExchangeSSE,
		Side: domain.SideSell, Qty: 100,
	})
	require.NoError(t, err)

	ok, err := repo.Delete(draft.DraftID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Delete(draft.DraftID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCountTodayScopedToPortfolio(t *testing.T) {
	repo, p1, p2 := newTestRepo(t)
	for i := 0; i < 2; i++ {
		_, err := repo.Create(Draft{
			PortfolioID: p1, Symbol: "600000", Exchange: domain.ExchangeSSE,
			Side: domain.SideBuy, Qty: 100,
		})
		require.NoError(t, err)
	}
	_, err := repo.Create(Draft{
		PortfolioID: p2, Symbol: "600000", Exchange: domain.ExchangeSSE,
		Side: domain.SideBuy, Qty: 100,
	})
	require.NoError(t, err)

	count, err := repo.CountToday(p1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
