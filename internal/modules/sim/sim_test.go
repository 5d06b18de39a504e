package sim

import (
	"testing"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/config"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/events"
	"github.com/datanger/workbench/internal/modules/drafts"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/datanger/workbench/internal/modules/portfolio"
	"github.com/datanger/workbench/internal/modules/risk"
	"github.com/datanger/workbench/internal/providers"
	"github.com/datanger/workbench/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type simFixture struct {
	svc        *Service
	risk       *risk.Service
	drafts     *drafts.Repository
	portfolios *portfolio.Repository
	bars       *marketdata.BarRepository
}

func newSimFixture(t *testing.T) *simFixture {
	t.Helper()
	db := testutil.OpenDB(t)
	conn := db.Conn()
	nop := zerolog.Nop()

	bars := marketdata.NewBarRepository(conn, marketdata.NewQuoteCache(), nop)
	portfolioRepo := portfolio.NewRepository(conn, nop)
	portfolioSvc := portfolio.NewService(portfolioRepo, bars, nop)
	draftRepo := drafts.NewRepository(conn, nop)
	rules := risk.NewRulesRepository(conn, config.RiskConfig{
		MaxPositionPerSymbol:     0.5,
		MinCashRatio:             0.01,
		MaxOrderValue:            200000,
		MinOrderValue:            100,
		MaxOrdersPerDay:          50,
		MaxOrderFrequencySeconds: 60,
		PriceDeviationLimit:      0.03,
		LotSize:                  100,
		MaxDailyTradingValue:     1000000,
	}, nop)
	riskSvc := risk.NewService(conn, rules, draftRepo, portfolioSvc, bars, nop)

	cfg := config.SimConfig{FeeRate: 0.001, SlippageRate: 0.002}
	svc := NewService(db, cfg, riskSvc, draftRepo, portfolioRepo, bars, events.NewManager(), nop)

	return &simFixture{
		svc:        svc,
		risk:       riskSvc,
		drafts:     draftRepo,
		portfolios: portfolioRepo,
		bars:       bars,
	}
}

func (f *simFixture) seedFlatQuote(t *testing.T, symbol string, exchange domain.Exchange, close float64) {
	t.Helper()
	rows := []providers.BarDailyRow{
		{TradeDate: "2024-03-01", Open: close, High: close, Low: close, Close: close, Volume: 1e6, Amount: close * 1e6},
		{TradeDate: "2024-03-04", Open: close, High: close, Low: close, Close: close, Volume: 1e6, Amount: close * 1e6},
	}
	require.NoError(t, f.bars.UpsertBars(symbol, exchange, domain.AdjRaw, rows))
}

func (f *simFixture) stageDraft(t *testing.T, portfolioID string, side domain.Side, qty float64) string {
	t.Helper()
	d, err := f.drafts.Create(drafts.Draft{
		PortfolioID: portfolioID,
		Symbol:      "600000",
		Exchange:    domain.ExchangeSSE,
		Side:        side,
		OrderType:   domain.OrderMarket,
		Qty:         qty,
		Origin:      drafts.OriginManual,
	})
	require.NoError(t, err)
	return d.DraftID
}

func (f *simFixture) passCheck(t *testing.T, portfolioID string, draftIDs []string) string {
	t.Helper()
	result, err := f.risk.Check(portfolioID, draftIDs)
	require.NoError(t, err)
	require.NotEqual(t, domain.RiskFail, result.Status)
	return result.RiskcheckID
}

func TestConfirmRefusesUnknownCheck(t *testing.T) {
	f := newSimFixture(t)
	p, err := f.portfolios.Create("test", 100000)
	require.NoError(t, err)

	_, err = f.svc.Confirm("nope", p.PortfolioID, []string{"some-draft"})
	require.Error(t, err)
	assert.Equal(t, apierr.CodeRiskCheckFail, apierr.From(err).Code)
}

func TestConfirmRefusesFailedCheck(t *testing.T) {
	f := newSimFixture(t)
	p, err := f.portfolios.Create("test", 100000)
	require.NoError(t, err)
	f.seedFlatQuote(t, "600000", domain.ExchangeSSE, 10)

	// Selling with nothing held fails the check.
	draftID := f.stageDraft(t, p.PortfolioID, domain.SideSell, 200)
	check, err := f.risk.Check(p.PortfolioID, []string{draftID})
	require.NoError(t, err)
	require.Equal(t, domain.RiskFail, check.Status)

	_, err = f.svc.Confirm(check.RiskcheckID, p.PortfolioID, []string{draftID})
	require.Error(t, err)
	assert.Equal(t, apierr.CodeRiskCheckFail, apierr.From(err).Code)
}

func TestConfirmBuyMovesCashAndPosition(t *testing.T) {
	f := newSimFixture(t)
	p, err := f.portfolios.Create("test", 100000)
	require.NoError(t, err)
	f.seedFlatQuote(t, "600000", domain.ExchangeSSE, 10)

	draftID := f.stageDraft(t, p.PortfolioID, domain.SideBuy, 200)
	checkID := f.passCheck(t, p.PortfolioID, []string{draftID})

	result, err := f.svc.Confirm(checkID, p.PortfolioID, []string{draftID})
	require.NoError(t, err)

	// fill 2000, fee 2, slippage 4
	assert.InDelta(t, 100000-2006, result.CashAfter, 0.001)
	require.Len(t, result.Trades, 1)
	assert.InDelta(t, 2.0, result.Trades[0].Fee, 0.001)
	assert.InDelta(t, 4.0, result.Trades[0].Slippage, 0.001)
	assert.Equal(t, "FILLED", result.Order.Status)
	assert.InDelta(t, 10.0, result.Order.AvgFillPrice, 0.001)

	pos, err := f.portfolios.GetPosition(p.PortfolioID, "600000", domain.ExchangeSSE)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 200.0, pos.Qty)
	// Fees and slippage fold into the average cost.
	assert.InDelta(t, 2006.0/200, pos.AvgCost, 0.001)

	d, err := f.drafts.Get(draftID)
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", d.Status)

	cash, err := f.portfolios.Cash(p.PortfolioID)
	require.NoError(t, err)
	assert.InDelta(t, result.CashAfter, cash, 0.001)
}

func TestConfirmSellToZeroRemovesPosition(t *testing.T) {
	f := newSimFixture(t)
	p, err := f.portfolios.Create("test", 100000)
	require.NoError(t, err)
	f.seedFlatQuote(t, "600000", domain.ExchangeSSE, 10)

	buyID := f.stageDraft(t, p.PortfolioID, domain.SideBuy, 200)
	checkID := f.passCheck(t, p.PortfolioID, []string{buyID})
	_, err = f.svc.Confirm(checkID, p.PortfolioID, []string{buyID})
	require.NoError(t, err)

	sellID := f.stageDraft(t, p.PortfolioID, domain.SideSell, 200)
	checkID = f.passCheck(t, p.PortfolioID, []string{sellID})
	result, err := f.svc.Confirm(checkID, p.PortfolioID, []string{sellID})
	require.NoError(t, err)

	pos, err := f.portfolios.GetPosition(p.PortfolioID, "600000", domain.ExchangeSSE)
	require.NoError(t, err)
	assert.Nil(t, pos)

	// Round trip costs two fees and two slippages.
	assert.InDelta(t, 100000-2*(2+4), result.CashAfter, 0.001)
}

func TestOrdersAndTradesAreListed(t *testing.T) {
	f := newSimFixture(t)
	p, err := f.portfolios.Create("test", 100000)
	require.NoError(t, err)
	f.seedFlatQuote(t, "600000", domain.ExchangeSSE, 10)

	draftID := f.stageDraft(t, p.PortfolioID, domain.SideBuy, 100)
	checkID := f.passCheck(t, p.PortfolioID, []string{draftID})
	confirmed, err := f.svc.Confirm(checkID, p.PortfolioID, []string{draftID})
	require.NoError(t, err)

	orders, err := f.svc.Orders(p.PortfolioID, 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, confirmed.Order.OrderID, orders[0].OrderID)

	trades, err := f.svc.Trades(p.PortfolioID, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, confirmed.Order.OrderID, trades[0].OrderID)
}
