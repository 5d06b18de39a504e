package portfolio

import (
	"testing"

	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/datanger/workbench/internal/providers"
	"github.com/datanger/workbench/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type portfolioFixture struct {
	repo *Repository
	svc  *Service
	bars *marketdata.BarRepository
}

func newPortfolioFixture(t *testing.T) *portfolioFixture {
	t.Helper()
	db := testutil.OpenDB(t)
	conn := db.Conn()
	nop := zerolog.Nop()

	repo := NewRepository(conn, nop)
	bars := marketdata.NewBarRepository(conn, marketdata.NewQuoteCache(), nop)
	return &portfolioFixture{
		repo: repo,
		svc:  NewService(repo, bars, nop),
		bars: bars,
	}
}

func (f *portfolioFixture) seedClose(t *testing.T, symbol string, exchange domain.Exchange, close float64) {
	t.Helper()
	rows := []providers.BarDailyRow{
		{TradeDate: "2024-03-04", Open: close, High: close, Low: close, Close: close, Volume: 1e6, Amount: close * 1e6},
	}
	require.NoError(t, f.bars.UpsertBars(symbol, exchange, domain.AdjRaw, rows))
}

func TestCreateAndGetPortfolio(t *testing.T) {
	f := newPortfolioFixture(t)

	p, err := f.repo.Create("paper", 100000)
	require.NoError(t, err)
	require.NotEmpty(t, p.PortfolioID)
	assert.Equal(t, "CNY", p.BaseCurrency)

	got, err := f.repo.Get(p.PortfolioID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "paper", got.Name)

	cash, err := f.repo.Cash(p.PortfolioID)
	require.NoError(t, err)
	assert.Equal(t, 100000.0, cash)

	missing, err := f.repo.Get("no-such-id")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsertPositionZeroQtyDeletes(t *testing.T) {
	f := newPortfolioFixture(t)
	p, err := f.repo.Create("paper", 100000)
	require.NoError(t, err)

	pos := Position{
		PortfolioID: p.PortfolioID, Symbol: "600000", Exchange: domain.ExchangeSSE,
		Qty: 200, AvgCost: 10,
	}
	require.NoError(t, f.repo.UpsertPosition(pos))

	got, err := f.repo.GetPosition(p.PortfolioID, "600000", domain.ExchangeSSE)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 200.0, got.Qty)

	pos.Qty = 0
	require.NoError(t, f.repo.UpsertPosition(pos))

	got, err = f.repo.GetPosition(p.PortfolioID, "600000", domain.ExchangeSSE)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestValuationMarksToLatestClose(t *testing.T) {
	f := newPortfolioFixture(t)
	p, err := f.repo.Create("paper", 10000)
	require.NoError(t, err)
	f.seedClose(t, "600000", domain.ExchangeSSE, 12)
	require.NoError(t, f.repo.UpsertPosition(Position{
		PortfolioID: p.PortfolioID, Symbol: "600000", Exchange: domain.ExchangeSSE,
		Qty: 1000, AvgCost: 10,
	}))

	v, err := f.svc.Valuation(p.PortfolioID)
	require.NoError(t, err)

	assert.Equal(t, 10000.0, v.Cash)
	assert.InDelta(t, 12000.0, v.MVTotal, 1e-9)
	assert.InDelta(t, 22000.0, v.TotalEquity, 1e-9)
	assert.InDelta(t, 10000.0/22000.0, v.CashRatio, 1e-9)
	assert.Empty(t, v.MissingPrices)

	require.Len(t, v.Positions, 1)
	vp := v.Positions[0]
	require.NotNil(t, vp.LastPrice)
	assert.InDelta(t, 12.0, *vp.LastPrice, 1e-9)
	require.NotNil(t, vp.UnrealizedPnL)
	assert.InDelta(t, 2000.0, *vp.UnrealizedPnL, 1e-9)
	require.NotNil(t, vp.Weight)
	assert.InDelta(t, 12000.0/22000.0, *vp.Weight, 1e-9)
}

func TestValuationReportsMissingPrices(t *testing.T) {
	f := newPortfolioFixture(t)
	p, err := f.repo.Create("paper", 5000)
	require.NoError(t, err)
	require.NoError(t, f.repo.UpsertPosition(Position{
		PortfolioID: p.PortfolioID, Symbol: "000001", Exchange: domain.ExchangeSZSE,
		Qty: 100, AvgCost: 8,
	}))

	v, err := f.svc.Valuation(p.PortfolioID)
	require.NoError(t, err)

	assert.Equal(t, []string{"000001"}, v.MissingPrices)
	assert.Equal(t, 5000.0, v.TotalEquity)
	require.Len(t, v.Positions, 1)
	assert.Nil(t, v.Positions[0].MarketValue)
}

func TestValuationUnknownPortfolio(t *testing.T) {
	f := newPortfolioFixture(t)

	_, err := f.svc.Valuation("missing")
	require.Error(t, err)
}
