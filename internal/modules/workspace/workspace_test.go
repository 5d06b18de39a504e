package workspace

import (
	"testing"
	"time"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/modules/instruments"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/datanger/workbench/internal/modules/news"
	"github.com/datanger/workbench/internal/modules/notes"
	"github.com/datanger/workbench/internal/modules/plans"
	"github.com/datanger/workbench/internal/modules/scoring"
	"github.com/datanger/workbench/internal/providers"
	"github.com/datanger/workbench/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workspaceFixture struct {
	svc         *Service
	instruments *instruments.Repository
	bars        *marketdata.BarRepository
	notes       *notes.Repository
}

func newWorkspaceFixture(t *testing.T) *workspaceFixture {
	t.Helper()
	db := testutil.OpenDB(t)
	conn := db.Conn()
	nop := zerolog.Nop()

	instrumentRepo := instruments.NewRepository(conn, nop)
	bars := marketdata.NewBarRepository(conn, marketdata.NewQuoteCache(), nop)
	fundamentalRepo := marketdata.NewFundamentalRepository(conn, nop)
	capitalFlowRepo := marketdata.NewCapitalFlowRepository(conn, nop)
	scoringSvc := scoring.NewService(bars, scoring.NewRepository(conn, nop), nop)
	planRepo := plans.NewRepository(conn, nop)
	noteRepo := notes.NewRepository(conn, nop)
	newsRepo := news.NewRepository(conn, nop)

	svc := NewService(instrumentRepo, bars, fundamentalRepo, capitalFlowRepo,
		scoringSvc, planRepo, noteRepo, newsRepo, nop)
	return &workspaceFixture{
		svc:         svc,
		instruments: instrumentRepo,
		bars:        bars,
		notes:       noteRepo,
	}
}

func (f *workspaceFixture) seedBars(t *testing.T, symbol string, exchange domain.Exchange, n int) {
	t.Helper()
	rows := make([]providers.BarDailyRow, n)
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

func TestBuildWithoutBarsIsNotReady(t *testing.T) {
	f := newWorkspaceFixture(t)

	_, err := f.svc.Build("600000", domain.ExchangeSSE)
	require.Error(t, err)
	apiErr := apierr.From(err)
	assert.Equal(t, apierr.CodeDataNotReady, apiErr.Code)
	assert.Equal(t, "ingest_bars_daily", apiErr.Details["task"])
}

func TestBuildAggregatesSections(t *testing.T) {
	f := newWorkspaceFixture(t)
	f.seedBars(t, "600000", domain.ExchangeSSE, 80)
	require.NoError(t, f.instruments.Upsert(instruments.Instrument{
		Symbol: "600000", Exchange: domain.ExchangeSSE, Market: domain.MarketCNA,
		Name: "SPD Bank", Industry: "Banking", IsActive: true,
	}))
	_, err := f.notes.Create(notes.Note{
		Symbol: "600000", Exchange: "SSE", Title: "thesis", Content: "cheap",
	})
	require.NoError(t, err)

	view, err := f.svc.Build("600000", domain.ExchangeSSE)
	require.NoError(t, err)

	assert.NotEmpty(t, view.Bars)
	require.NotNil(t, view.Instrument)
	assert.Equal(t, "SPD Bank", view.Instrument.Name)
	require.NotNil(t, view.Quote)
	assert.NotEmpty(t, view.Indicators)
	require.Len(t, view.Notes, 1)
	assert.Nil(t, view.Plan)
	assert.Nil(t, view.Fundamental)
}

func TestBuildMissingSectionsDegradeToEmpty(t *testing.T) {
	f := newWorkspaceFixture(t)
	f.seedBars(t, "000001", domain.ExchangeSZSE, 10)

	view, err := f.svc.Build("000001", domain.ExchangeSZSE)
	require.NoError(t, err)

	assert.Len(t, view.Bars, 10)
	assert.Nil(t, view.Instrument)
	assert.Nil(t, view.Score)
	assert.Empty(t, view.News)
}
