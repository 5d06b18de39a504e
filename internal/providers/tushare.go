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

const tushareAPIURL = "http://api.tushare.pro"

// TushareProvider fetches data from the tushare pro HTTP API.
// Requires a token; without one Status reports unhealthy and ingest falls
// through to the next provider.
type TushareProvider struct {
	client *resty.Client
	token  string
	log    zerolog.Logger
}

// NewTushareProvider creates a tushare client.
func NewTushareProvider(token string, log zerolog.Logger) *TushareProvider {
	client := resty.New().
		SetBaseURL(tushareAPIURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &TushareProvider{
		client: client,
		token:  token,
		log:    log.With().Str("provider", "tushare").Logger(),
	}
}

func (p *TushareProvider) Name() string { return "tushare" }

// Status reports whether the provider is usable. A missing token is the
// common unhealthy case for a fresh install.
func (p *TushareProvider) Status(ctx context.Context) Status {
	if p.token == "" {
		return Status{Name: "tushare", OK: false, Details: "TUSHARE_TOKEN not set"}
	}
	return Status{Name: "tushare", OK: true}
}

type tushareRequest struct {
	APIName string                 `json:"api_name"`
	Token   string                 `json:"token"`
	Params  map[string]interface{} `json:"params"`
	Fields  string                 `json:"fields,omitempty"`
}

type tushareResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Fields []string        `json:"fields"`
		Items  [][]interface{} `json:"items"`
	} `json:"data"`
}

// query posts a tushare API call and returns rows as field-name maps.
func (p *TushareProvider) query(ctx context.Context, apiName string, params map[string]interface{}, fields string) ([]map[string]interface{}, error) {
	if p.token == "" {
		return nil, fmt.Errorf("tushare token not configured")
	}

	var result tushareResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(tushareRequest{APIName: apiName, Token: p.token, Params: params, Fields: fields}).
		SetResult(&result).
		Post("")
	if err != nil {
		return nil, fmt.Errorf("tushare %s request failed: %w", apiName, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("tushare %s returned HTTP %d", apiName, resp.StatusCode())
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("tushare %s error: %s", apiName, result.Msg)
	}

	rows := make([]map[string]interface{}, 0, len(result.Data.Items))
	for _, item := range result.Data.Items {
		row := make(map[string]interface{}, len(result.Data.Fields))
		for i, field := range result.Data.Fields {
			if i < len(item) {
				row[field] = item[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Instruments lists all active A-share instruments via stock_basic.
func (p *TushareProvider) Instruments(ctx context.Context) ([]InstrumentRow, error) {
	rows, err := p.query(ctx, "stock_basic",
		map[string]interface{}{"list_status": "L"},
		"ts_code,symbol,name,industry,exchange")
	if err != nil {
		return nil, err
	}

	out := make([]InstrumentRow, 0, len(rows))
	for _, row := range rows {
		tsCode := asString(row["ts_code"])
		symbol, exchange, ok := splitTSCode(tsCode)
		if !ok {
			continue
		}
		out = append(out, InstrumentRow{
			Symbol:   symbol,
			Exchange: exchange,
			Market:   domain.MarketCNA,
			Name:     asString(row["name"]),
			Industry: asString(row["industry"]),
		})
	}
	return out, nil
}

// BarsDaily fetches raw daily bars via the daily endpoint. Adjusted series
// are not requested from tushare; adjustment happens downstream when needed.
func (p *TushareProvider) BarsDaily(ctx context.Context, symbol string, exchange domain.Exchange, start, end string, adj domain.Adj) ([]BarDailyRow, error) {
	if adj != domain.AdjRaw {
		return nil, fmt.Errorf("tushare provider only serves RAW bars, got %s", adj)
	}

	rows, err := p.query(ctx, "daily",
		map[string]interface{}{
			"ts_code":    joinTSCode(symbol, exchange),
			"start_date": start,
			"end_date":   end,
		},
		"trade_date,open,high,low,close,vol,amount")
	if err != nil {
		return nil, err
	}

	out := make([]BarDailyRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, BarDailyRow{
			TradeDate: formatTradeDate(asString(row["trade_date"])),
			Open:      asFloat(row["open"]),
			High:      asFloat(row["high"]),
			Low:       asFloat(row["low"]),
			Close:     asFloat(row["close"]),
			Volume:    asFloat(row["vol"]) * 100,      // tushare vol is in lots
			Amount:    asFloat(row["amount"]) * 1000,  // tushare amount is in thousand CNY
		})
	}
	reverseBars(out) // tushare returns newest first
	return out, nil
}

// FundamentalsDaily fetches the latest daily_basic snapshot.
func (p *TushareProvider) FundamentalsDaily(ctx context.Context, symbol string, exchange domain.Exchange) (*FundamentalRow, error) {
	rows, err := p.query(ctx, "daily_basic",
		map[string]interface{}{"ts_code": joinTSCode(symbol, exchange)},
		"trade_date,pe_ttm,pb,dv_ratio,total_mv")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("tushare daily_basic returned no rows for %s", symbol)
	}

	row := rows[0]
	out := &FundamentalRow{
		ReportPeriod:  formatTradeDate(asString(row["trade_date"])),
		PETTM:         asFloatPtr(row["pe_ttm"]),
		PB:            asFloatPtr(row["pb"]),
		DividendYield: asFloatPtr(row["dv_ratio"]),
	}
	// total_mv is reported in ten-thousand CNY
	if mv := asFloatPtr(row["total_mv"]); mv != nil {
		cny := *mv * 1e4
		out.MV = &cny
	}
	return out, nil
}

// CapitalFlowDaily fetches daily money flow via moneyflow.
func (p *TushareProvider) CapitalFlowDaily(ctx context.Context, symbol string, exchange domain.Exchange, start, end string) ([]CapitalFlowRow, error) {
	rows, err := p.query(ctx, "moneyflow",
		map[string]interface{}{
			"ts_code":    joinTSCode(symbol, exchange),
			"start_date": start,
			"end_date":   end,
		},
		"trade_date,net_mf_amount,buy_elg_amount,sell_elg_amount,buy_lg_amount,sell_lg_amount,buy_md_amount,sell_md_amount,buy_sm_amount,sell_sm_amount")
	if err != nil {
		return nil, err
	}

	out := make([]CapitalFlowRow, 0, len(rows))
	for _, row := range rows {
		flow := CapitalFlowRow{TradeDate: formatTradeDate(asString(row["trade_date"]))}
		// amounts are in ten-thousand CNY
		flow.MainNetInflow = scalePtr(asFloatPtr(row["net_mf_amount"]), 1e4)
		flow.SuperLargeNetInflow = netPtr(row["buy_elg_amount"], row["sell_elg_amount"])
		flow.LargeNetInflow = netPtr(row["buy_lg_amount"], row["sell_lg_amount"])
		flow.MediumNetInflow = netPtr(row["buy_md_amount"], row["sell_md_amount"])
		flow.SmallNetInflow = netPtr(row["buy_sm_amount"], row["sell_sm_amount"])
		out = append(out, flow)
	}
	return out, nil
}

// joinTSCode builds the tushare symbol form, e.g. 600000.SH.
func joinTSCode(symbol string, exchange domain.Exchange) string {
	if exchange == domain.ExchangeSSE {
		return symbol + ".SH"
	}
	return symbol + ".SZ"
}

func splitTSCode(tsCode string) (string, domain.Exchange, bool) {
	symbol, suffix, ok := strings.Cut(tsCode, ".")
	if !ok {
		return "", "", false
	}
	switch suffix {
	case "SH":
		return symbol, domain.ExchangeSSE, true
	case "SZ":
		return symbol, domain.ExchangeSZSE, true
	default:
		return "", "", false
	}
}

// formatTradeDate converts YYYYMMDD to YYYY-MM-DD.
func formatTradeDate(d string) string {
	if len(d) != 8 {
		return d
	}
	return d[:4] + "-" + d[4:6] + "-" + d[6:]
}

func reverseBars(bars []BarDailyRow) {
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}

func asFloatPtr(v interface{}) *float64 {
	if v == nil {
		return nil
	}
	f := asFloat(v)
	return &f
}

func scalePtr(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	scaled := *v * factor
	return &scaled
}

func netPtr(buy, sell interface{}) *float64 {
	b, s := asFloatPtr(buy), asFloatPtr(sell)
	if b == nil || s == nil {
		return nil
	}
	net := (*b - *s) * 1e4
	return &net
}
