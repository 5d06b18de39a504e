package rebalance

import (
	"testing"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/modules/drafts"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/datanger/workbench/internal/modules/portfolio"
	"github.com/datanger/workbench/internal/providers"
	"github.com/datanger/workbench/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rebalanceFixture struct {
	svc        *Service
	drafts     *drafts.Repository
	portfolios *portfolio.Repository
	bars       *marketdata.BarRepository
}

func newRebalanceFixture(t *testing.T) *rebalanceFixture {
	t.Helper()
	db := testutil.OpenDB(t)
	conn := db.Conn()
	nop := zerolog.Nop()

	bars := marketdata.NewBarRepository(conn, marketdata.NewQuoteCache(), nop)
	portfolioRepo := portfolio.NewRepository(conn, nop)
	portfolioSvc := portfolio.NewService(portfolioRepo, bars, nop)
	draftRepo := drafts.NewRepository(conn, nop)

	return &rebalanceFixture{
		svc:        NewService(portfolioSvc, bars, draftRepo, 100, nop),
		drafts:     draftRepo,
		portfolios: portfolioRepo,
		bars:       bars,
	}
}

func (f *rebalanceFixture) seedPrice(t *testing.T, symbol string, exchange domain.Exchange, close float64) {
	t.Helper()
	rows := []providers.BarDailyRow{
		{TradeDate: "2024-03-04", Open: close, High: close, Low: close, Close: close, Volume: 1e6, Amount: close * 1e6},
	}
	require.NoError(t, f.bars.UpsertBars(symbol, exchange, domain.AdjRaw, rows))
}

func TestSuggestRejectsBadInput(t *testing.T) {
	f := newRebalanceFixture(t)

	_, err := f.svc.Suggest("p", map[string]float64{}, 0, false)
	require.Error(t, err)
	assert.Equal(t, apierr.CodeValidation, apierr.From(err).Code)

	_, err = f.svc.Suggest("p", map[string]float64{"600000": 1}, 1.0, false)
	require.Error(t, err)
	assert.Equal(t, apierr.CodeValidation, apierr.From(err).Code)

	_, err = f.svc.Suggest("p", map[string]float64{"600000": 0}, 0, false)
	require.Error(t, err)
	assert.Equal(t, apierr.CodeValidation, apierr.From(err).Code)
}

func TestSuggestBuysTowardTargets(t *testing.T) {
	f := newRebalanceFixture(t)
	p, err := f.portfolios.Create("test", 100000)
	require.NoError(t, err)
	f.seedPrice(t, "600000", domain.ExchangeSSE, 10)
	f.seedPrice(t, "000001", domain.ExchangeSZSE, 20)

	result, err := f.svc.Suggest(p.PortfolioID, map[string]float64{
		"600000": 0.5,
		"000001": 0.5,
	}, 0.1, false)
	require.NoError(t, err)

	assert.Equal(t, 100000.0, result.TotalEquity)
	assert.Equal(t, 90000.0, result.Investable)
	require.Len(t, result.Suggestions, 2)
	for _, sug := range result.Suggestions {
		assert.Equal(t, domain.SideBuy, sug.Side)
	}
	// 45000 per leg: 4500 shares at 10, 2200 at 20 after lot flooring.
	assert.Equal(t, 4500.0, result.Suggestions[1].Qty)
	assert.Equal(t, 2200.0, result.Suggestions[0].Qty)
	assert.Empty(t, result.MissingPrices)
}

func TestSuggestLeavesUntargetedHoldingsAlone(t *testing.T) {
	f := newRebalanceFixture(t)
	p, err := f.portfolios.Create("test", 10000)
	require.NoError(t, err)
	f.seedPrice(t, "600000", domain.ExchangeSSE, 10)
	f.seedPrice(t, "000001", domain.ExchangeSZSE, 20)
	require.NoError(t, f.portfolios.UpsertPosition(portfolio.Position{
		PortfolioID: p.PortfolioID, Symbol: "000001", Exchange: domain.ExchangeSZSE,
		Qty: 300, AvgCost: 18,
	}))

	result, err := f.svc.Suggest(p.PortfolioID, map[string]float64{"600000": 1}, 0, false)
	require.NoError(t, err)

	// Only targets get suggestions; the held 000001 stays untouched.
	for _, sug := range result.Suggestions {
		assert.NotEqual(t, "000001", sug.Symbol)
	}
	require.Len(t, result.Suggestions, 1)
	assert.Equal(t, "600000", result.Suggestions[0].Symbol)
	assert.Equal(t, domain.SideBuy, result.Suggestions[0].Side)
}

func TestSuggestSkipsSubLotDeltas(t *testing.T) {
	f := newRebalanceFixture(t)
	p, err := f.portfolios.Create("test", 100)
	require.NoError(t, err)
	f.seedPrice(t, "600000", domain.ExchangeSSE, 10)
	// 990 shares at 10 is 9900 of a 10000 target: the 100 delta is below one lot.
	require.NoError(t, f.portfolios.UpsertPosition(portfolio.Position{
		PortfolioID: p.PortfolioID, Symbol: "600000", Exchange: domain.ExchangeSSE,
		Qty: 990, AvgCost: 10,
	}))

	result, err := f.svc.Suggest(p.PortfolioID, map[string]float64{"600000": 1}, 0, false)
	require.NoError(t, err)
	assert.Empty(t, result.Suggestions)
}

func TestSuggestReportsMissingPrices(t *testing.T) {
	f := newRebalanceFixture(t)
	p, err := f.portfolios.Create("test", 10000)
	require.NoError(t, err)

	result, err := f.svc.Suggest(p.PortfolioID, map[string]float64{"600000": 1}, 0, false)
	require.NoError(t, err)
	assert.Empty(t, result.Suggestions)
	assert.Equal(t, []string{"600000"}, result.MissingPrices)
}

func TestSuggestCreatesDrafts(t *testing.T) {
	f := newRebalanceFixture(t)
	p, err := f.portfolios.Create("test", 50000)
	require.NoError(t, err)
	f.seedPrice(t, "600000", domain.ExchangeSSE, 10)

	result, err := f.svc.Suggest(p.PortfolioID, map[string]float64{"600000": 1}, 0.5, true)
	require.NoError(t, err)
	require.Len(t, result.Suggestions, 1)
	require.NotEmpty(t, result.Suggestions[0].DraftID)

	d, err := f.drafts.Get(result.Suggestions[0].DraftID)
	require.NoError(t, err)
	assert.Equal(t, drafts.OriginRebalance, d.Origin)
	assert.Equal(t, domain.OrderLimit, d.OrderType)
	require.NotNil(t, d.Price)
	assert.Equal(t, 10.0, *d.Price)
	assert.Equal(t, result.Suggestions[0].Qty, d.Qty)
}
