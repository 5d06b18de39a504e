package radar

import (
	"context"
	"testing"
	"time"

	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/modules/instruments"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/datanger/workbench/internal/modules/scoring"
	"github.com/datanger/workbench/internal/modules/watchlists"
	"github.com/datanger/workbench/internal/providers"
	"github.com/datanger/workbench/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type radarFixture struct {
	svc         *Service
	repo        *Repository
	instruments *instruments.Repository
	watchlists  *watchlists.Repository
	bars        *marketdata.BarRepository
}

func newRadarFixture(t *testing.T) *radarFixture {
	t.Helper()
	db := testutil.OpenDB(t)
	conn := db.Conn()
	nop := zerolog.Nop()

	repo := NewRepository(conn, nop)
	instrumentRepo := instruments.NewRepository(conn, nop)
	watchlistRepo := watchlists.NewRepository(conn, nop)
	bars := marketdata.NewBarRepository(conn, marketdata.NewQuoteCache(), nop)
	scoringSvc := scoring.NewService(bars, scoring.NewRepository(conn, nop), nop)

	return &radarFixture{
		svc:         NewService(repo, instrumentRepo, watchlistRepo, scoringSvc, nop),
		repo:        repo,
		instruments: instrumentRepo,
		watchlists:  watchlistRepo,
		bars:        bars,
	}
}

func (f *radarFixture) seedInstrument(t *testing.T, symbol string, exchange domain.Exchange, name, industry string) {
	t.Helper()
	require.NoError(t, f.instruments.Upsert(instruments.Instrument{
		Symbol: symbol, Exchange: exchange, Market: domain.MarketCNA,
		Name: name, Industry: industry, IsActive: true,
	}))
}

func (f *radarFixture) seedHistory(t *testing.T, symbol string, exchange domain.Exchange) {
	t.Helper()
	rows := make([]providers.BarDailyRow, 80)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range rows {
		c := 10 + float64(i)*0.05
		rows[i] = providers.BarDailyRow{
			TradeDate: day.AddDate(0, 0, i).Format("2006-01-02"),
			Open:      c, High: c * 1.01, Low: c * 0.99, Close: c,
			Volume: 1e6, Amount: c * 1e6,
		}
	}
	require.NoError(t, f.bars.UpsertBars(symbol, exchange, domain.AdjRaw, rows))
}

func TestMatchRulesOperators(t *testing.T) {
	inst := instruments.Instrument{
		Symbol: "600000", Exchange: domain.ExchangeSSE, Name: "SPD Bank", Industry: "Banking",
	}

	reasons, ok := matchRules(inst, []Rule{
		{Field: "industry", Op: OpEq, Value: "Banking"},
		{Field: "symbol", Op: OpPrefix, Value: "60"},
	})
	require.True(t, ok)
	assert.Len(t, reasons, 2)

	_, ok = matchRules(inst, []Rule{
		{Field: "industry", Op: OpEq, Value: "Mining"},
	})
	assert.False(t, ok)

	_, ok = matchRules(inst, []Rule{
		{Field: "exchange", Op: OpIn, Value: []interface{}{"SSE", "SZSE"}},
	})
	assert.True(t, ok)
}

func TestRunScoresMatchedCandidates(t *testing.T) {
	f := newRadarFixture(t)
	f.seedInstrument(t, "600000", domain.ExchangeSSE, "SPD Bank", "Banking")
	f.seedInstrument(t, "000001", domain.ExchangeSZSE, "PAB", "Banking")
	f.seedHistory(t, "600000", domain.ExchangeSSE)
	f.seedHistory(t, "000001", domain.ExchangeSZSE)

	tpl, err := f.repo.CreateTemplate(Template{
		Name:     "sh banks",
		Universe: Universe{Type: UniverseAll},
		Rules:    []Rule{{Field: "symbol", Op: OpPrefix, Value: "60"}},
	})
	require.NoError(t, err)

	summary, err := f.svc.Run(context.Background(), "task-1", tpl.TemplateID)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Candidates)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Scored)
	assert.Empty(t, summary.SkippedNoData)

	results, err := f.repo.Results("task-1", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "600000", results[0].Symbol)
	assert.Contains(t, results[0].Reasons, "symbol startswith 60")
}

func TestRunSkipsCandidatesWithoutHistory(t *testing.T) {
	f := newRadarFixture(t)

	tpl, err := f.repo.CreateTemplate(Template{
		Name:     "custom",
		Universe: Universe{Type: UniverseCustom, Symbols: []string{"600000"}},
	})
	require.NoError(t, err)

	summary, err := f.svc.Run(context.Background(), "task-2", tpl.TemplateID)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 0, summary.Scored)
	assert.Equal(t, []string{"600000"}, summary.SkippedNoData)
}

func TestRunOrdersResultsByScore(t *testing.T) {
	f := newRadarFixture(t)
	f.seedInstrument(t, "600000", domain.ExchangeSSE, "up", "x")
	f.seedInstrument(t, "600111", domain.ExchangeSSE, "down", "x")
	f.seedHistory(t, "600000", domain.ExchangeSSE)

	// 600111 gets a falling series, which scores lower.
	rows := make([]providers.BarDailyRow, 80)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range rows {
		c := 20 - float64(i)*0.1
		rows[i] = providers.BarDailyRow{
			TradeDate: day.AddDate(0, 0, i).Format("2006-01-02"),
			Open:      c, High: c * 1.01, Low: c * 0.99, Close: c,
			Volume: 1e6, Amount: c * 1e6,
		}
	}
	require.NoError(t, f.bars.UpsertBars("600111", domain.ExchangeSSE, domain.AdjRaw, rows))

	tpl, err := f.repo.CreateTemplate(Template{
		Name:     "all",
		Universe: Universe{Type: UniverseAll},
	})
	require.NoError(t, err)

	_, err = f.svc.Run(context.Background(), "task-3", tpl.TemplateID)
	require.NoError(t, err)

	results, err := f.repo.Results("task-3", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "600000", results[0].Symbol)
	assert.GreaterOrEqual(t, results[0].ScoreTotal, results[1].ScoreTotal)
}

func TestWatchlistUniverse(t *testing.T) {
	f := newRadarFixture(t)
	f.seedInstrument(t, "600000", domain.ExchangeSSE, "SPD Bank", "Banking")
	f.seedHistory(t, "600000", domain.ExchangeSSE)
	_, err := f.watchlists.Add("core", "600000", domain.ExchangeSSE)
	require.NoError(t, err)

	tpl, err := f.repo.CreateTemplate(Template{
		Name:     "watch",
		Universe: Universe{Type: UniverseWatchlist, ListType: "core"},
	})
	require.NoError(t, err)

	summary, err := f.svc.Run(context.Background(), "task-4", tpl.TemplateID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Scored)
}
