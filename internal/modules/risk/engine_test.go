package risk

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/config"
	"github.com/datanger/workbench/internal/database"
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

func testRiskDefaults() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionPerSymbol:     0.5,
		MinCashRatio:             0.05,
		MaxOrderValue:            200000,
		MinOrderValue:            1000,
		MaxOrdersPerDay:          50,
		MaxOrderFrequencySeconds: 60,
		PriceDeviationLimit:      0.03,
		LotSize:                  100,
		MaxDailyTradingValue:     1000000,
	}
}

type riskFixture struct {
	db         *database.DB
	svc        *Service
	rules      *RulesRepository
	drafts     *drafts.Repository
	portfolios *portfolio.Repository
	bars       *marketdata.BarRepository
}

func newRiskFixture(t *testing.T, defaults config.RiskConfig) *riskFixture {
	t.Helper()
	db := testutil.OpenDB(t)
	conn := db.Conn()
	nop := zerolog.Nop()

	bars := marketdata.NewBarRepository(conn, marketdata.NewQuoteCache(), nop)
	portfolioRepo := portfolio.NewRepository(conn, nop)
	portfolioSvc := portfolio.NewService(portfolioRepo, bars, nop)
	draftRepo := drafts.NewRepository(conn, nop)
	rules := NewRulesRepository(conn, defaults, nop)

	return &riskFixture{
		db:         db,
		svc:        NewService(conn, rules, draftRepo, portfolioSvc, bars, nop),
		rules:      rules,
		drafts:     draftRepo,
		portfolios: portfolioRepo,
		bars:       bars,
	}
}

// seedQuote inserts two bars so the latest quote carries a prior close.
func (f *riskFixture) seedQuote(t *testing.T, symbol string, exchange domain.Exchange, prevClose, lastClose float64) {
	t.Helper()
	rows := []providers.BarDailyRow{
		{TradeDate: "2024-03-01", Open: prevClose, High: prevClose, Low: prevClose, Close: prevClose, Volume: 1e6, Amount: prevClose * 1e6},
		{TradeDate: "2024-03-04", Open: lastClose, High: lastClose, Low: lastClose, Close: lastClose, Volume: 1e6, Amount: lastClose * 1e6},
	}
	require.NoError(t, f.bars.UpsertBars(symbol, exchange, domain.AdjRaw, rows))
}

func (f *riskFixture) createPortfolio(t *testing.T, cash float64) string {
	t.Helper()
	p, err := f.portfolios.Create("test", cash)
	require.NoError(t, err)
	return p.PortfolioID
}

func (f *riskFixture) createDraft(t *testing.T, portfolioID, symbol string, exchange domain.Exchange, side domain.Side, qty float64) string {
	t.Helper()
	d, err := f.drafts.Create(drafts.Draft{
		PortfolioID: portfolioID,
		Symbol:      symbol,
		Exchange:    exchange,
		Side:        side,
		OrderType:   domain.OrderMarket,
		Qty:         qty,
		Origin:      drafts.OriginManual,
	})
	require.NoError(t, err)
	return d.DraftID
}

func findItem(items []Item, code string) *Item {
	for i := range items {
		if items[i].Code == code {
			return &items[i]
		}
	}
	return nil
}

func TestCheckPassesCleanBuy(t *testing.T) {
	f := newRiskFixture(t, testRiskDefaults())
	pid := f.createPortfolio(t, 100000)
	f.seedQuote(t, "600000", domain.ExchangeSSE, 10, 10.1)
	draftID := f.createDraft(t, pid, "600000", domain.ExchangeSSE, domain.SideBuy, 200)

	result, err := f.svc.Check(pid, []string{draftID})
	require.NoError(t, err)

	assert.Equal(t, domain.RiskPass, result.Status)
	assert.Empty(t, result.Items)
	assert.Equal(t, 100000.0, result.Summary.CashBefore)
	assert.InDelta(t, 100000-200*10.1, result.Summary.CashAfterEst, 0.01)
}

func TestCheckRejectsOddLot(t *testing.T) {
	f := newRiskFixture(t, testRiskDefaults())
	pid := f.createPortfolio(t, 100000)
	f.seedQuote(t, "600000", domain.ExchangeSSE, 10, 10.1)
	draftID := f.createDraft(t, pid, "600000", domain.ExchangeSSE, domain.SideBuy, 150)

	result, err := f.svc.Check(pid, []string{draftID})
	require.NoError(t, err)

	assert.Equal(t, domain.RiskFail, result.Status)
	item := findItem(result.Items, CodeInvalidQty)
	require.NotNil(t, item)
	assert.Equal(t, domain.RiskFail, item.Level)
}

func TestCheckLimitUpFailsBuyButWarnsSell(t *testing.T) {
	f := newRiskFixture(t, testRiskDefaults())
	// 10.0 -> 11.0 is a 10% move, at the A-share daily limit.
	f.seedQuote(t, "600000", domain.ExchangeSSE, 10, 11)

	buyPid := f.createPortfolio(t, 100000)
	buyID := f.createDraft(t, buyPid, "600000", domain.ExchangeSSE, domain.SideBuy, 200)
	buyResult, err := f.svc.Check(buyPid, []string{buyID})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskFail, buyResult.Status)
	require.NotNil(t, findItem(buyResult.Items, CodeLimitUp))

	sellPid := f.createPortfolio(t, 100000)
	require.NoError(t, f.portfolios.UpsertPosition(portfolio.Position{
		PortfolioID: sellPid, Symbol: "600000", Exchange: domain.ExchangeSSE,
		Qty: 400, AvgCost: 9,
	}))
	sellID := f.createDraft(t, sellPid, "600000", domain.ExchangeSSE, domain.SideSell, 200)
	sellResult, err := f.svc.Check(sellPid, []string{sellID})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskWarn, sellResult.Status)
	item := findItem(sellResult.Items, CodeLimitUp)
	require.NotNil(t, item)
	assert.Equal(t, domain.RiskWarn, item.Level)
}

func TestCheckRejectsOversell(t *testing.T) {
	f := newRiskFixture(t, testRiskDefaults())
	pid := f.createPortfolio(t, 100000)
	f.seedQuote(t, "600000", domain.ExchangeSSE, 10, 10.1)
	require.NoError(t, f.portfolios.UpsertPosition(portfolio.Position{
		PortfolioID: pid, Symbol: "600000", Exchange: domain.ExchangeSSE,
		Qty: 100, AvgCost: 10,
	}))
	draftID := f.createDraft(t, pid, "600000", domain.ExchangeSSE, domain.SideSell, 200)

	result, err := f.svc.Check(pid, []string{draftID})
	require.NoError(t, err)

	assert.Equal(t, domain.RiskFail, result.Status)
	item := findItem(result.Items, CodeSellExceedsPosition)
	require.NotNil(t, item)
	assert.Equal(t, "RISK_SELL_QTY_EXCEEDS_POSITION", item.Code)
}

func TestCheckRejectsSellOfUnheldSymbol(t *testing.T) {
	f := newRiskFixture(t, testRiskDefaults())
	pid := f.createPortfolio(t, 100000)
	f.seedQuote(t, "000001", domain.ExchangeSZSE, 10, 10.1)
	draftID := f.createDraft(t, pid, "000001", domain.ExchangeSZSE, domain.SideSell, 100)

	result, err := f.svc.Check(pid, []string{draftID})
	require.NoError(t, err)

	assert.Equal(t, domain.RiskFail, result.Status)
	item := findItem(result.Items, CodeSellExceedsPosition)
	require.NotNil(t, item)
	assert.Equal(t, "RISK_SELL_QTY_EXCEEDS_POSITION", item.Code)
	assert.Equal(t, domain.RiskFail, item.Level)
}

func TestCheckRejectsInsufficientCash(t *testing.T) {
	f := newRiskFixture(t, testRiskDefaults())
	pid := f.createPortfolio(t, 1000)
	f.seedQuote(t, "600000", domain.ExchangeSSE, 10, 10.1)
	draftID := f.createDraft(t, pid, "600000", domain.ExchangeSSE, domain.SideBuy, 200)

	result, err := f.svc.Check(pid, []string{draftID})
	require.NoError(t, err)

	assert.Equal(t, domain.RiskFail, result.Status)
	require.NotNil(t, findItem(result.Items, CodeInsufficientCash))
}

func TestCheckFailsOnCashRatioBreach(t *testing.T) {
	f := newRiskFixture(t, testRiskDefaults())
	pid := f.createPortfolio(t, 10000)
	f.seedQuote(t, "600000", domain.ExchangeSSE, 11, 11)
	// 900 shares at 11 leaves 100 cash against 10000 equity, a 1% ratio.
	draftID := f.createDraft(t, pid, "600000", domain.ExchangeSSE, domain.SideBuy, 900)

	result, err := f.svc.Check(pid, []string{draftID})
	require.NoError(t, err)

	assert.Equal(t, domain.RiskFail, result.Status)
	require.NotNil(t, findItem(result.Items, CodeMinCashRatio))
	require.NotNil(t, findItem(result.Items, CodePositionLimit))
}

func TestCheckWarnsOnDailyOrderCount(t *testing.T) {
	defaults := testRiskDefaults()
	defaults.MaxOrdersPerDay = 2
	f := newRiskFixture(t, defaults)
	pid := f.createPortfolio(t, 100000)
	f.seedQuote(t, "600000", domain.ExchangeSSE, 10, 10.1)

	var draftIDs []string
	for i := 0; i < 3; i++ {
		draftIDs = append(draftIDs, f.createDraft(t, pid, "600000", domain.ExchangeSSE, domain.SideBuy, 100))
	}

	result, err := f.svc.Check(pid, draftIDs)
	require.NoError(t, err)

	item := findItem(result.Items, CodeMaxOrdersPerDay)
	require.NotNil(t, item)
	assert.Equal(t, "RISK_MAX_ORDERS_PER_DAY", item.Code)
	assert.Equal(t, domain.RiskWarn, item.Level)
}

func TestCheckWarnsWhenOrderCountReachesCap(t *testing.T) {
	defaults := testRiskDefaults()
	defaults.MaxOrdersPerDay = 2
	f := newRiskFixture(t, defaults)
	pid := f.createPortfolio(t, 100000)
	f.seedQuote(t, "600000", domain.ExchangeSSE, 10, 10.1)

	var draftIDs []string
	for i := 0; i < 2; i++ {
		draftIDs = append(draftIDs, f.createDraft(t, pid, "600000", domain.ExchangeSSE, domain.SideBuy, 100))
	}

	result, err := f.svc.Check(pid, draftIDs)
	require.NoError(t, err)

	require.NotNil(t, findItem(result.Items, CodeMaxOrdersPerDay))
}

func TestCheckFailsWithoutQuote(t *testing.T) {
	f := newRiskFixture(t, testRiskDefaults())
	pid := f.createPortfolio(t, 100000)
	draftID := f.createDraft(t, pid, "600000", domain.ExchangeSSE, domain.SideBuy, 200)

	result, err := f.svc.Check(pid, []string{draftID})
	require.NoError(t, err)

	assert.Equal(t, domain.RiskFail, result.Status)
	item := findItem(result.Items, CodeDataNotReady)
	require.NotNil(t, item)
	assert.Equal(t, "DATA_NOT_READY", item.Code)
}

func TestCheckRejectsEmptyBatch(t *testing.T) {
	f := newRiskFixture(t, testRiskDefaults())
	pid := f.createPortfolio(t, 100000)

	_, err := f.svc.Check(pid, nil)
	require.Error(t, err)
	assert.Equal(t, apierr.CodeValidation, apierr.From(err).Code)
}

func TestCheckResultIsPersisted(t *testing.T) {
	f := newRiskFixture(t, testRiskDefaults())
	pid := f.createPortfolio(t, 100000)
	f.seedQuote(t, "600000", domain.ExchangeSSE, 10, 10.1)
	draftID := f.createDraft(t, pid, "600000", domain.ExchangeSSE, domain.SideBuy, 200)

	result, err := f.svc.Check(pid, []string{draftID})
	require.NoError(t, err)

	stored, err := f.svc.Get(result.RiskcheckID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, result.Status, stored.Status)
	assert.Equal(t, RulesetVersion, stored.RulesetVersion)
	assert.Equal(t, []string{draftID}, stored.DraftIDs)

	created, err := time.Parse(time.RFC3339, stored.CreatedAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), created, time.Minute)
}

func TestRulesOverridesApply(t *testing.T) {
	f := newRiskFixture(t, testRiskDefaults())

	effective, err := f.rules.Effective()
	require.NoError(t, err)
	assert.Equal(t, 100, effective.LotSize)

	_, err = f.rules.SetOverrides(map[string]json.RawMessage{
		"lot_size":       json.RawMessage("200"),
		"min_cash_ratio": json.RawMessage("0.1"),
	})
	require.NoError(t, err)

	effective, err = f.rules.Effective()
	require.NoError(t, err)
	assert.Equal(t, 200, effective.LotSize)
	assert.Equal(t, 0.1, effective.MinCashRatio)
	assert.Equal(t, 0.5, effective.MaxPositionPerSymbol)
}

func TestRulesRejectUnknownKey(t *testing.T) {
	f := newRiskFixture(t, testRiskDefaults())

	_, err := f.rules.SetOverrides(map[string]json.RawMessage{
		"no_such_rule": json.RawMessage("1"),
	})
	require.Error(t, err)
	assert.Equal(t, apierr.CodeValidation, apierr.From(err).Code)
}
