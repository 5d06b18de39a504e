package scoring

import (
	"testing"
	"time"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/datanger/workbench/internal/providers"
	"github.com/datanger/workbench/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *marketdata.BarRepository) {
	t.Helper()
	db := testutil.OpenDB(t)
	bars := marketdata.NewBarRepository(db.Conn(), marketdata.NewQuoteCache(), zerolog.Nop())
	return NewService(bars, NewRepository(db.Conn(), zerolog.Nop()), zerolog.Nop()), bars
}

func seedCloses(t *testing.T, bars *marketdata.BarRepository, symbol string, exchange domain.Exchange, closes []float64) {
	t.Helper()
	rows := make([]providers.BarDailyRow, len(closes))
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		rows[i] = providers.BarDailyRow{
			TradeDate: day.AddDate(0, 0, i).Format("2006-01-02"),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1e6,
			Amount:    c * 1e6,
		}
	}
	require.NoError(t, bars.UpsertBars(symbol, exchange, domain.AdjRaw, rows))
}

func risingCloses(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestCalcNeedsMinBars(t *testing.T) {
	svc, bars := newTestService(t)
	seedCloses(t, bars, "600000", domain.ExchangeSSE, risingCloses(MinBars-1, 10, 0.01))

	_, err := svc.Calc("600000", domain.ExchangeSSE)
	require.Error(t, err)
	assert.Equal(t, apierr.CodeDataNotReady, apierr.From(err).Code)
}

func TestCalcPersistsSnapshot(t *testing.T) {
	svc, bars := newTestService(t)
	seedCloses(t, bars, "600000", domain.ExchangeSSE, risingCloses(80, 10, 0.05))

	snapshot, err := svc.Calc("600000", domain.ExchangeSSE)
	require.NoError(t, err)

	assert.NotEmpty(t, snapshot.ScoreID)
	assert.Equal(t, RulesetVersion, snapshot.RulesetVersion)
	assert.GreaterOrEqual(t, snapshot.ScoreTotal, 0.0)
	assert.LessOrEqual(t, snapshot.ScoreTotal, 100.0)
	assert.Equal(t, 80, snapshot.DataVersion.BarsCount)
	assert.NotEmpty(t, snapshot.Breakdown)
	assert.Contains(t, snapshot.Metrics, "ma20")

	stored, err := svc.Latest("600000", domain.ExchangeSSE)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, snapshot.ScoreID, stored.ScoreID)
}

func TestCalcConstantSeriesBreakdown(t *testing.T) {
	svc, bars := newTestService(t)
	closes := make([]float64, MinBars)
	for i := range closes {
		closes[i] = 1000
	}
	// seedCloses sets amount = close * 1e6, so liq20 is 1e9 here.
	seedCloses(t, bars, "600519", domain.ExchangeSSE, closes)

	snapshot, err := svc.Calc("600519", domain.ExchangeSSE)
	require.NoError(t, err)

	// Flat series: no strict > fires for trend or momentum; zero volatility
	// and deep liquidity take full points.
	assert.Equal(t, 0.0, snapshot.Breakdown["trend"])
	assert.Equal(t, 0.0, snapshot.Breakdown["momentum"])
	assert.Equal(t, 10.0, snapshot.Breakdown["volatility"])
	assert.Equal(t, 10.0, snapshot.Breakdown["liquidity"])
	assert.Equal(t, 40.0, snapshot.ScoreTotal)
	assert.Equal(t, []string{"vol20_low", "liq20_gt_1e8"}, snapshot.Reasons)

	stored, err := svc.Latest("600519", domain.ExchangeSSE)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, snapshot.Breakdown, stored.Breakdown)
	assert.Equal(t, snapshot.Reasons, stored.Reasons)
}

func TestCalcUptrendScoresHigherThanDowntrend(t *testing.T) {
	svc, bars := newTestService(t)
	seedCloses(t, bars, "600000", domain.ExchangeSSE, risingCloses(80, 10, 0.10))
	seedCloses(t, bars, "000001", domain.ExchangeSZSE, risingCloses(80, 20, -0.10))

	up, err := svc.Calc("600000", domain.ExchangeSSE)
	require.NoError(t, err)
	down, err := svc.Calc("000001", domain.ExchangeSZSE)
	require.NoError(t, err)

	assert.Greater(t, up.ScoreTotal, down.ScoreTotal)
}

func TestLatestOrCalcReturnsStoredSnapshot(t *testing.T) {
	svc, bars := newTestService(t)
	seedCloses(t, bars, "600000", domain.ExchangeSSE, risingCloses(80, 10, 0.05))

	first, err := svc.LatestOrCalc("600000", domain.ExchangeSSE)
	require.NoError(t, err)
	second, err := svc.LatestOrCalc("600000", domain.ExchangeSSE)
	require.NoError(t, err)

	assert.Equal(t, first.ScoreID, second.ScoreID)
}

func TestLatestOrCalcWithoutDataFails(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.LatestOrCalc("600000", domain.ExchangeSSE)
	require.Error(t, err)
	assert.Equal(t, apierr.CodeDataNotReady, apierr.From(err).Code)
}
