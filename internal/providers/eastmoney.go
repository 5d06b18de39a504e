package providers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/datanger/workbench/internal/domain"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// EastmoneyProvider fetches data from the public Eastmoney quote endpoints.
// No credentials needed, so it is the default fallback provider. Registered
// under the name "akshare" since it mirrors that library's data source.
type EastmoneyProvider struct {
	client *resty.Client
	log    zerolog.Logger
}

// NewEastmoneyProvider creates an Eastmoney client.
func NewEastmoneyProvider(log zerolog.Logger) *EastmoneyProvider {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("User-Agent", "Mozilla/5.0 (workbench)")

	return &EastmoneyProvider{
		client: client,
		log:    log.With().Str("provider", "akshare").Logger(),
	}
}

func (p *EastmoneyProvider) Name() string { return "akshare" }

func (p *EastmoneyProvider) Status(ctx context.Context) Status {
	return Status{Name: "akshare", OK: true}
}

type emKlineResponse struct {
	Data struct {
		Code   string   `json:"code"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

type emListResponse struct {
	Data struct {
		Total int `json:"total"`
		Diff  []struct {
			Code     string `json:"f12"`
			Name     string `json:"f14"`
			Market   int    `json:"f13"` // 1 = SSE, 0 = SZSE
			Industry string `json:"f100"`
		} `json:"diff"`
	} `json:"data"`
}

// Instruments lists A-share instruments from the clist endpoint, paging
// through the full universe.
func (p *EastmoneyProvider) Instruments(ctx context.Context) ([]InstrumentRow, error) {
	var out []InstrumentRow
	pageSize := 1000
	for page := 1; ; page++ {
		var result emListResponse
		resp, err := p.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"pn":     strconv.Itoa(page),
				"pz":     strconv.Itoa(pageSize),
				"po":     "1",
				"np":     "1",
				"fltt":   "2",
				"fid":    "f12",
				"fs":     "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23",
				"fields": "f12,f13,f14,f100",
			}).
			SetResult(&result).
			Get("https://82.push2.eastmoney.com/api/qt/clist/get")
		if err != nil {
			return nil, fmt.Errorf("eastmoney clist request failed: %w", err)
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("eastmoney clist returned HTTP %d", resp.StatusCode())
		}
		if len(result.Data.Diff) == 0 {
			break
		}
		for _, item := range result.Data.Diff {
			exchange := domain.ExchangeSZSE
			if item.Market == 1 {
				exchange = domain.ExchangeSSE
			}
			out = append(out, InstrumentRow{
				Symbol:   domain.NormalizeSymbol(item.Code),
				Exchange: exchange,
				Market:   domain.MarketCNA,
				Name:     item.Name,
				Industry: item.Industry,
			})
		}
		if len(out) >= result.Data.Total {
			break
		}
	}
	return out, nil
}

// BarsDaily fetches daily klines. fqt 0 is raw, 1 forward adjusted, 2 backward.
func (p *EastmoneyProvider) BarsDaily(ctx context.Context, symbol string, exchange domain.Exchange, start, end string, adj domain.Adj) ([]BarDailyRow, error) {
	fqt := "0"
	switch adj {
	case domain.AdjQfq:
		fqt = "1"
	case domain.AdjHfq:
		fqt = "2"
	}

	secID := "0." + symbol
	if exchange == domain.ExchangeSSE {
		secID = "1." + symbol
	}

	var result emKlineResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"secid":   secID,
			"klt":     "101", // daily
			"fqt":     fqt,
			"beg":     start,
			"end":     end,
			"fields1": "f1,f2,f3,f4,f5,f6",
			"fields2": "f51,f52,f53,f54,f55,f56,f57",
		}).
		SetResult(&result).
		Get("https://push2his.eastmoney.com/api/qt/stock/kline/get")
	if err != nil {
		return nil, fmt.Errorf("eastmoney kline request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("eastmoney kline returned HTTP %d", resp.StatusCode())
	}

	out := make([]BarDailyRow, 0, len(result.Data.Klines))
	for _, line := range result.Data.Klines {
		// date,open,close,high,low,volume,amount
		parts := strings.Split(line, ",")
		if len(parts) < 7 {
			continue
		}
		out = append(out, BarDailyRow{
			TradeDate: parts[0],
			Open:      parseFloat(parts[1]),
			Close:     parseFloat(parts[2]),
			High:      parseFloat(parts[3]),
			Low:       parseFloat(parts[4]),
			Volume:    parseFloat(parts[5]) * 100, // reported in lots
			Amount:    parseFloat(parts[6]),
		})
	}
	return out, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
