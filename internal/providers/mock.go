package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/datanger/workbench/internal/domain"
)

// MockProvider generates deterministic synthetic data. It backs tests and
// offline use: bars for a given symbol are stable across runs.
type MockProvider struct {
	instruments []InstrumentRow
}

// NewMockProvider creates a mock provider with a small default universe.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		instruments: []InstrumentRow{
			{Symbol: "600000", Exchange: domain.ExchangeSSE, Market: domain.MarketCNA, Name: "Mock Bank", Industry: "Banking"},
			{Symbol: "600519", Exchange: domain.ExchangeSSE, Market: domain.MarketCNA, Name: "Mock Liquor", Industry: "Beverages"},
			{Symbol: "000001", Exchange: domain.ExchangeSZSE, Market: domain.MarketCNA, Name: "Mock Pingan", Industry: "Banking"},
			{Symbol: "000333", Exchange: domain.ExchangeSZSE, Market: domain.MarketCNA, Name: "Mock Appliance", Industry: "Home Appliances"},
			{Symbol: "300750", Exchange: domain.ExchangeSZSE, Market: domain.MarketCNA, Name: "Mock Battery", Industry: "Electrical Equipment"},
		},
	}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Status(ctx context.Context) Status {
	return Status{Name: "mock", OK: true, Details: "synthetic data"}
}

func (p *MockProvider) Instruments(ctx context.Context) ([]InstrumentRow, error) {
	out := make([]InstrumentRow, len(p.instruments))
	copy(out, p.instruments)
	return out, nil
}

// BarsDaily produces a deterministic random-walk series seeded by the symbol.
// Weekends are skipped so trade dates look like a real calendar.
func (p *MockProvider) BarsDaily(ctx context.Context, symbol string, exchange domain.Exchange, start, end string, adj domain.Adj) ([]BarDailyRow, error) {
	startDate, err := time.Parse("20060102", start)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	endDate, err := time.Parse("20060102", end)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", end, err)
	}

	seed := hashSymbol(symbol)
	price := 10.0 + float64(seed%900)/10.0
	var out []BarDailyRow
	day := 0
	for d := startDate; !d.After(endDate); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		day++
		// Drift plus a bounded oscillation keeps the walk positive.
		change := 0.002 + 0.01*math.Sin(float64(seed%17)+float64(day)/3.0)
		open := price
		price = price * (1 + change)
		high := math.Max(open, price) * 1.005
		low := math.Min(open, price) * 0.995
		volume := 1e6 + float64((seed+uint32(day))%1000)*1e4
		out = append(out, BarDailyRow{
			TradeDate: d.Format("2006-01-02"),
			Open:      round2(open),
			High:      round2(high),
			Low:       round2(low),
			Close:     round2(price),
			Volume:    volume,
			Amount:    round2(volume * price),
		})
	}
	return out, nil
}

// FundamentalsDaily returns a deterministic snapshot.
func (p *MockProvider) FundamentalsDaily(ctx context.Context, symbol string, exchange domain.Exchange) (*FundamentalRow, error) {
	seed := hashSymbol(symbol)
	pe := 8.0 + float64(seed%40)
	pb := 0.8 + float64(seed%30)/10.0
	dy := float64(seed%50) / 10.0
	mv := 5e9 + float64(seed%1000)*1e8
	return &FundamentalRow{
		ReportPeriod:  time.Now().UTC().Format("2006-01-02"),
		PETTM:         &pe,
		PB:            &pb,
		DividendYield: &dy,
		MV:            &mv,
	}, nil
}

// CapitalFlowDaily returns deterministic flows for each weekday in the range.
func (p *MockProvider) CapitalFlowDaily(ctx context.Context, symbol string, exchange domain.Exchange, start, end string) ([]CapitalFlowRow, error) {
	bars, err := p.BarsDaily(ctx, symbol, exchange, start, end, domain.AdjRaw)
	if err != nil {
		return nil, err
	}
	seed := hashSymbol(symbol)
	out := make([]CapitalFlowRow, 0, len(bars))
	for i, bar := range bars {
		main := math.Sin(float64(seed%13)+float64(i)) * 1e7
		super := main * 0.5
		large := main * 0.3
		medium := -main * 0.4
		small := -main * 0.4
		out = append(out, CapitalFlowRow{
			TradeDate:           bar.TradeDate,
			MainNetInflow:       &main,
			SuperLargeNetInflow: &super,
			LargeNetInflow:      &large,
			MediumNetInflow:     &medium,
			SmallNetInflow:      &small,
		})
	}
	return out, nil
}

func hashSymbol(symbol string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return h.Sum32()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
