package monitor

import (
	"encoding/json"
	"testing"

	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/events"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/datanger/workbench/internal/modules/portfolio"
	"github.com/datanger/workbench/internal/modules/scoring"
	"github.com/datanger/workbench/internal/providers"
	"github.com/datanger/workbench/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type monitorFixture struct {
	svc        *Service
	repo       *Repository
	portfolios *portfolio.Repository
	bars       *marketdata.BarRepository
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()
	db := testutil.OpenDB(t)
	conn := db.Conn()
	nop := zerolog.Nop()

	repo := NewRepository(conn, nop)
	bars := marketdata.NewBarRepository(conn, marketdata.NewQuoteCache(), nop)
	portfolioRepo := portfolio.NewRepository(conn, nop)
	portfolioSvc := portfolio.NewService(portfolioRepo, bars, nop)
	scores := scoring.NewRepository(conn, nop)

	return &monitorFixture{
		svc:        NewService(repo, bars, scores, portfolioSvc, events.NewManager(), nop),
		repo:       repo,
		portfolios: portfolioRepo,
		bars:       bars,
	}
}

func (f *monitorFixture) seedQuote(t *testing.T, symbol string, exchange domain.Exchange, prevClose, lastClose float64) {
	t.Helper()
	rows := []providers.BarDailyRow{
		{TradeDate: "2024-03-01", Open: prevClose, High: prevClose, Low: prevClose, Close: prevClose, Volume: 1e6, Amount: prevClose * 1e6},
		{TradeDate: "2024-03-04", Open: lastClose, High: lastClose, Low: lastClose, Close: lastClose, Volume: 1e6, Amount: lastClose * 1e6},
	}
	require.NoError(t, f.bars.UpsertBars(symbol, exchange, domain.AdjRaw, rows))
}

func TestPriceChangeRuleRaisesAlert(t *testing.T) {
	f := newMonitorFixture(t)
	f.seedQuote(t, "600000", domain.ExchangeSSE, 10, 10.8)
	_, err := f.repo.CreateRule(RulePriceChangePct,
		json.RawMessage(`{"symbol":"600000","exchange":"SSE","threshold":0.05}`))
	require.NoError(t, err)

	summary, err := f.svc.CheckAll()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RulesChecked)
	assert.Equal(t, 1, summary.AlertsRaised)

	alerts, err := f.repo.ListAlerts(true, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityWarn, alerts[0].Severity)
	assert.False(t, alerts[0].Acknowledged)
}

func TestLimitMoveEscalatesToCritical(t *testing.T) {
	f := newMonitorFixture(t)
	f.seedQuote(t, "600000", domain.ExchangeSSE, 10, 11)
	_, err := f.repo.CreateRule(RulePriceChangePct,
		json.RawMessage(`{"symbol":"600000","exchange":"SSE","threshold":0.05}`))
	require.NoError(t, err)

	_, err = f.svc.CheckAll()
	require.NoError(t, err)

	alerts, err := f.repo.ListAlerts(true, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
}

func TestSecondCheckIsDebounced(t *testing.T) {
	f := newMonitorFixture(t)
	f.seedQuote(t, "600000", domain.ExchangeSSE, 10, 11)
	_, err := f.repo.CreateRule(RulePriceChangePct,
		json.RawMessage(`{"symbol":"600000","exchange":"SSE","threshold":0.05}`))
	require.NoError(t, err)

	first, err := f.svc.CheckAll()
	require.NoError(t, err)
	require.Equal(t, 1, first.AlertsRaised)

	second, err := f.svc.CheckAll()
	require.NoError(t, err)
	assert.Equal(t, 0, second.AlertsRaised)
	assert.Equal(t, 1, second.Debounced)

	alerts, err := f.repo.ListAlerts(false, 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestQuietMarketRaisesNothing(t *testing.T) {
	f := newMonitorFixture(t)
	f.seedQuote(t, "600000", domain.ExchangeSSE, 10, 10.1)
	_, err := f.repo.CreateRule(RulePriceChangePct,
		json.RawMessage(`{"symbol":"600000","exchange":"SSE","threshold":0.05}`))
	require.NoError(t, err)

	summary, err := f.svc.CheckAll()
	require.NoError(t, err)
	assert.Equal(t, 0, summary.AlertsRaised)
}

func TestCashRatioRule(t *testing.T) {
	f := newMonitorFixture(t)
	p, err := f.portfolios.Create("test", 1000)
	require.NoError(t, err)
	f.seedQuote(t, "600000", domain.ExchangeSSE, 10, 10)
	require.NoError(t, f.portfolios.UpsertPosition(portfolio.Position{
		PortfolioID: p.PortfolioID, Symbol: "600000", Exchange: domain.ExchangeSSE,
		Qty: 10000, AvgCost: 10,
	}))

	params, err := json.Marshal(map[string]interface{}{
		"portfolio_id": p.PortfolioID, "min_ratio": 0.05,
	})
	require.NoError(t, err)
	_, err = f.repo.CreateRule(RuleCashRatio, params)
	require.NoError(t, err)

	summary, err := f.svc.CheckAll()
	require.NoError(t, err)
	require.Equal(t, 1, summary.AlertsRaised)

	alerts, err := f.repo.ListAlerts(true, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
}

func TestDisabledRulesAreSkipped(t *testing.T) {
	f := newMonitorFixture(t)
	f.seedQuote(t, "600000", domain.ExchangeSSE, 10, 11)
	rule, err := f.repo.CreateRule(RulePriceChangePct,
		json.RawMessage(`{"symbol":"600000","exchange":"SSE","threshold":0.05}`))
	require.NoError(t, err)
	_, err = f.repo.SetRuleEnabled(rule.RuleID, false)
	require.NoError(t, err)

	summary, err := f.svc.CheckAll()
	require.NoError(t, err)
	assert.Equal(t, 0, summary.RulesChecked)
	assert.Equal(t, 0, summary.AlertsRaised)
}

func TestAckAlert(t *testing.T) {
	f := newMonitorFixture(t)
	f.seedQuote(t, "600000", domain.ExchangeSSE, 10, 11)
	_, err := f.repo.CreateRule(RulePriceChangePct,
		json.RawMessage(`{"symbol":"600000","exchange":"SSE","threshold":0.05}`))
	require.NoError(t, err)
	_, err = f.svc.CheckAll()
	require.NoError(t, err)

	alerts, err := f.repo.ListAlerts(true, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	ok, err := f.repo.AckAlert(alerts[0].AlertID)
	require.NoError(t, err)
	assert.True(t, ok)

	unacked, err := f.repo.ListAlerts(true, 10)
	require.NoError(t, err)
	assert.Empty(t, unacked)
}
