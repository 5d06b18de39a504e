package risk

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/modules/drafts"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/datanger/workbench/internal/modules/portfolio"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Check item codes.
const (
	CodeInvalidQty            = "RISK_INVALID_QTY"
	CodeDataNotReady          = "DATA_NOT_READY"
	CodePriceDeviation        = "RISK_PRICE_DEVIATION"
	CodeOrderFrequency        = "RISK_ORDER_FREQUENCY"
	CodeLimitUp               = "RISK_LIMIT_UP"
	CodeLimitDown             = "RISK_LIMIT_DOWN"
	CodeDailyValueLimit       = "RISK_DAILY_VALUE_LIMIT"
	CodeMaxOrderValue         = "RISK_MAX_ORDER_VALUE"
	CodeMinOrderValue         = "RISK_MIN_ORDER_VALUE"
	CodeSellExceedsPosition   = "RISK_SELL_QTY_EXCEEDS_POSITION"
	CodeUnsupportedSide       = "RISK_UNSUPPORTED_SIDE"
	CodeInsufficientCash      = "RISK_INSUFFICIENT_CASH"
	CodeMinCashRatio          = "RISK_MIN_CASH_RATIO"
	CodePositionLimit         = "RISK_POSITION_LIMIT"
	CodeMaxOrdersPerDay       = "RISK_MAX_ORDERS_PER_DAY"
	CodePositionPricesMissing = "RISK_PRICE_MISSING_FOR_SOME_POSITIONS"
)

// A-share daily price limit, with a margin for rounding.
const limitThreshold = 0.099

// instKey identifies an instrument inside the simulated batch. The same
// symbol can in principle exist on both exchanges, so symbol alone is not
// enough.
type instKey struct {
	symbol   string
	exchange domain.Exchange
}

// Item is one finding of a check run.
type Item struct {
	Code       string            `json:"code"`
	Level      domain.RiskStatus `json:"level"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	DraftID    string            `json:"draft_id,omitempty"`
}

// Summary estimates the batch effect assuming every draft fills.
type Summary struct {
	CashBefore     float64 `json:"cash_before"`
	CashAfterEst   float64 `json:"cash_after_est"`
	TotalEquityEst float64 `json:"total_equity_est"`
}

// CheckResult is one persisted risk check run.
type CheckResult struct {
	RiskcheckID    string            `json:"riskcheck_id"`
	CreatedAt      string            `json:"created_at"`
	Status         domain.RiskStatus `json:"status"`
	Items          []Item            `json:"items"`
	RulesetVersion string            `json:"ruleset_version"`
	DraftIDs       []string          `json:"draft_ids"`
	Summary        Summary           `json:"summary"`
}

// Service runs risk checks over order drafts.
type Service struct {
	db         *sql.DB
	rules      *RulesRepository
	drafts     *drafts.Repository
	portfolios *portfolio.Service
	bars       *marketdata.BarRepository
	log        zerolog.Logger
}

// NewService creates the risk service.
func NewService(db *sql.DB, rules *RulesRepository, draftRepo *drafts.Repository, portfolios *portfolio.Service, bars *marketdata.BarRepository, log zerolog.Logger) *Service {
	return &Service{
		db:         db,
		rules:      rules,
		drafts:     draftRepo,
		portfolios: portfolios,
		bars:       bars,
		log:        log.With().Str("service", "risk").Logger(),
	}
}

// Check evaluates the drafts sequentially against the effective rules,
// simulating cash and position changes draft by draft so a later draft sees
// the estimated effect of earlier ones. The result is persisted and the
// overall status is the worst item level.
func (s *Service) Check(portfolioID string, draftIDs []string) (*CheckResult, error) {
	if len(draftIDs) == 0 {
		return nil, apierr.Validation("draft_ids must not be empty")
	}

	rules, err := s.rules.Effective()
	if err != nil {
		return nil, err
	}
	batch, err := s.drafts.GetMany(draftIDs)
	if err != nil {
		return nil, apierr.Validation(err.Error())
	}
	for _, d := range batch {
		if d.PortfolioID != portfolioID {
			return nil, apierr.Validation(fmt.Sprintf("draft %s belongs to another portfolio", d.DraftID))
		}
	}

	valuation, err := s.portfolios.Valuation(portfolioID)
	if err != nil {
		return nil, err
	}

	var items []Item

	todayCount, err := s.drafts.CountToday(portfolioID)
	if err != nil {
		return nil, err
	}
	if todayCount >= rules.MaxOrdersPerDay {
		items = append(items, Item{
			Code:  CodeMaxOrdersPerDay,
			Level: domain.RiskWarn,
			Message: fmt.Sprintf("%d drafts created today, at or above the daily limit of %d",
				todayCount, rules.MaxOrdersPerDay),
			Suggestion: "reduce trading frequency",
		})
	}

	lastBuyAt, err := s.lastBuyTimes(portfolioID)
	if err != nil {
		return nil, err
	}
	dayBuyValue, err := s.todayBuyValue(portfolioID)
	if err != nil {
		return nil, err
	}

	cash := valuation.Cash
	qtyHeld := make(map[instKey]float64)
	pxLast := make(map[instKey]float64)
	for _, pos := range valuation.Positions {
		k := instKey{pos.Symbol, pos.Exchange}
		qtyHeld[k] = pos.Qty
		if pos.LastPrice != nil {
			pxLast[k] = *pos.LastPrice
		}
	}

	lot := float64(rules.LotSize)
	for _, draft := range batch {
		if draft.Qty <= 0 || math.Mod(draft.Qty, lot) != 0 {
			items = append(items, Item{
				Code: CodeInvalidQty, Level: domain.RiskFail, DraftID: draft.DraftID,
				Message:    fmt.Sprintf("qty %.0f is not a positive multiple of the lot size %d", draft.Qty, rules.LotSize),
				Suggestion: fmt.Sprintf("use a multiple of %d shares", rules.LotSize),
			})
			continue
		}

		quote, err := s.bars.LatestQuote(draft.Symbol, draft.Exchange)
		if err != nil {
			return nil, err
		}
		if quote == nil {
			items = append(items, Item{
				Code: CodeDataNotReady, Level: domain.RiskFail, DraftID: draft.DraftID,
				Message:    fmt.Sprintf("no daily close available for %s", draft.Symbol),
				Suggestion: "run the ingest_bars_daily task first",
			})
			continue
		}
		key := instKey{draft.Symbol, draft.Exchange}
		px := quote.Close
		pxLast[key] = px

		effPrice := px
		if draft.OrderType == domain.OrderLimit && draft.Price != nil {
			effPrice = *draft.Price
			if dev := math.Abs(effPrice/px - 1); dev > rules.PriceDeviationLimit {
				items = append(items, Item{
					Code: CodePriceDeviation, Level: domain.RiskWarn, DraftID: draft.DraftID,
					Message:    fmt.Sprintf("limit price %.2f deviates %.1f%% from the last close %.2f", effPrice, dev*100, px),
					Suggestion: "move the limit price closer to the last close",
				})
			}
		}

		if draft.Side == domain.SideBuy {
			if last, ok := lastBuyAt[draft.Symbol]; ok {
				created, err := time.Parse(time.RFC3339, draft.CreatedAt)
				if err == nil && created.Sub(last) >= 0 &&
					created.Sub(last) < time.Duration(rules.MaxOrderFrequencySeconds)*time.Second {
					items = append(items, Item{
						Code: CodeOrderFrequency, Level: domain.RiskWarn, DraftID: draft.DraftID,
						Message:    fmt.Sprintf("another BUY of %s within %d seconds", draft.Symbol, rules.MaxOrderFrequencySeconds),
						Suggestion: "space out repeated buys of the same symbol",
					})
				}
			}
		}

		changePct := quote.ChangePct()
		if changePct >= limitThreshold {
			level := domain.RiskFail
			if draft.Side == domain.SideSell {
				level = domain.RiskWarn
			}
			items = append(items, Item{
				Code: CodeLimitUp, Level: level, DraftID: draft.DraftID,
				Message:    fmt.Sprintf("%s closed %.1f%% up, at or near limit-up", draft.Symbol, changePct*100),
				Suggestion: "buying into a limit-up close rarely fills",
			})
			if level == domain.RiskFail {
				continue
			}
		} else if changePct <= -limitThreshold {
			level := domain.RiskFail
			if draft.Side == domain.SideBuy {
				level = domain.RiskWarn
			}
			items = append(items, Item{
				Code: CodeLimitDown, Level: level, DraftID: draft.DraftID,
				Message:    fmt.Sprintf("%s closed %.1f%% down, at or near limit-down", draft.Symbol, changePct*100),
				Suggestion: "selling into a limit-down close rarely fills",
			})
			if level == domain.RiskFail {
				continue
			}
		}

		orderValue := effPrice * draft.Qty
		if draft.Side == domain.SideBuy {
			dayBuyValue += orderValue
			if dayBuyValue > rules.MaxDailyTradingValue {
				items = append(items, Item{
					Code: CodeDailyValueLimit, Level: domain.RiskWarn, DraftID: draft.DraftID,
					Message:    fmt.Sprintf("today's buy value %.0f exceeds the daily limit %.0f", dayBuyValue, rules.MaxDailyTradingValue),
					Suggestion: "split the purchases across days",
				})
			}
		}
		if orderValue > rules.MaxOrderValue {
			items = append(items, Item{
				Code: CodeMaxOrderValue, Level: domain.RiskWarn, DraftID: draft.DraftID,
				Message:    fmt.Sprintf("order value %.0f exceeds the single-order limit %.0f", orderValue, rules.MaxOrderValue),
				Suggestion: "split the order",
			})
		} else if orderValue < rules.MinOrderValue {
			items = append(items, Item{
				Code: CodeMinOrderValue, Level: domain.RiskWarn, DraftID: draft.DraftID,
				Message:    fmt.Sprintf("order value %.0f is below the minimum %.0f", orderValue, rules.MinOrderValue),
				Suggestion: "small orders waste fees",
			})
		}

		switch draft.Side {
		case domain.SideSell:
			if draft.Qty > qtyHeld[key] {
				items = append(items, Item{
					Code: CodeSellExceedsPosition, Level: domain.RiskFail, DraftID: draft.DraftID,
					Message:    fmt.Sprintf("selling %.0f but only %.0f of %s held", draft.Qty, qtyHeld[key], draft.Symbol),
					Suggestion: "reduce the sell quantity",
				})
				continue
			}
			cash += orderValue
			qtyHeld[key] -= draft.Qty
		case domain.SideBuy:
			if orderValue > cash {
				items = append(items, Item{
					Code: CodeInsufficientCash, Level: domain.RiskFail, DraftID: draft.DraftID,
					Message:    fmt.Sprintf("order needs %.0f but only %.0f cash is left", orderValue, cash),
					Suggestion: "reduce the buy quantity or free up cash",
				})
				continue
			}
			cash -= orderValue
			qtyHeld[key] += draft.Qty
		default:
			items = append(items, Item{
				Code: CodeUnsupportedSide, Level: domain.RiskFail, DraftID: draft.DraftID,
				Message: fmt.Sprintf("unsupported side %q", draft.Side),
			})
			continue
		}

		equity := s.estimateEquity(cash, qtyHeld, pxLast)
		if equity > 0 {
			if cash/equity < rules.MinCashRatio {
				items = append(items, Item{
					Code: CodeMinCashRatio, Level: domain.RiskFail, DraftID: draft.DraftID,
					Message:    fmt.Sprintf("cash ratio %.1f%% would fall below the minimum %.1f%%", cash/equity*100, rules.MinCashRatio*100),
					Suggestion: "keep a cash reserve for drawdowns",
				})
			}
			weight := qtyHeld[key] * pxLast[key] / equity
			if weight > rules.MaxPositionPerSymbol {
				items = append(items, Item{
					Code: CodePositionLimit, Level: domain.RiskFail, DraftID: draft.DraftID,
					Message:    fmt.Sprintf("%s would be %.1f%% of equity, above the %.1f%% cap", draft.Symbol, weight*100, rules.MaxPositionPerSymbol*100),
					Suggestion: "cap single-symbol exposure",
				})
			}
		}
	}

	status := worstLevel(items)
	if status == domain.RiskPass && len(valuation.MissingPrices) > 0 {
		items = append(items, Item{
			Code:  CodePositionPricesMissing,
			Level: domain.RiskWarn,
			Message: fmt.Sprintf("no latest close for held positions: %v; cash and weight estimates are incomplete",
				valuation.MissingPrices),
			Suggestion: "run the ingest_bars_daily task first",
		})
		status = domain.RiskWarn
	}

	result := &CheckResult{
		RiskcheckID:    uuid.New().String(),
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		Status:         status,
		Items:          items,
		RulesetVersion: RulesetVersion,
		DraftIDs:       draftIDs,
		Summary: Summary{
			CashBefore:     valuation.Cash,
			CashAfterEst:   cash,
			TotalEquityEst: s.estimateEquity(cash, qtyHeld, pxLast),
		},
	}
	if err := s.save(result); err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns one persisted check result or nil.
func (s *Service) Get(riskcheckID string) (*CheckResult, error) {
	row := s.db.QueryRow(`
		SELECT riskcheck_id, created_at, status, items_json, ruleset_version, input_draft_ids_json
		FROM risk_check_results WHERE riskcheck_id = ?`, riskcheckID)

	var result CheckResult
	var itemsJSON, draftIDsJSON string
	err := row.Scan(&result.RiskcheckID, &result.CreatedAt, &result.Status,
		&itemsJSON, &result.RulesetVersion, &draftIDsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get risk check %s: %w", riskcheckID, err)
	}
	if err := json.Unmarshal([]byte(itemsJSON), &result.Items); err != nil {
		return nil, fmt.Errorf("failed to decode risk check items: %w", err)
	}
	if err := json.Unmarshal([]byte(draftIDsJSON), &result.DraftIDs); err != nil {
		return nil, fmt.Errorf("failed to decode risk check draft ids: %w", err)
	}
	return &result, nil
}

// Stats returns check counts grouped by status.
func (s *Service) Stats() (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT status, COUNT(1) FROM risk_check_results GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to read risk check stats: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan risk check stats: %w", err)
		}
		out[status] = count
	}
	return out, rows.Err()
}

func (s *Service) save(result *CheckResult) error {
	itemsJSON, err := json.Marshal(result.Items)
	if err != nil {
		return fmt.Errorf("failed to encode risk check items: %w", err)
	}
	draftIDsJSON, err := json.Marshal(result.DraftIDs)
	if err != nil {
		return fmt.Errorf("failed to encode risk check draft ids: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO risk_check_results
			(riskcheck_id, created_at, status, items_json, ruleset_version, input_draft_ids_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		result.RiskcheckID, result.CreatedAt, result.Status,
		string(itemsJSON), result.RulesetVersion, string(draftIDsJSON))
	if err != nil {
		return fmt.Errorf("failed to save risk check result: %w", err)
	}
	return nil
}

func (s *Service) lastBuyTimes(portfolioID string) (map[string]time.Time, error) {
	rows, err := s.db.Query(`
		SELECT symbol, MAX(created_at) FROM sim_trades
		WHERE portfolio_id = ? AND side = 'BUY' GROUP BY symbol`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to read last buy times: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var symbol, createdAt string
		if err := rows.Scan(&symbol, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan last buy time: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			out[symbol] = t
		}
	}
	return out, rows.Err()
}

func (s *Service) todayBuyValue(portfolioID string) (float64, error) {
	today := time.Now().UTC().Format("2006-01-02")
	var value float64
	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(price * qty), 0) FROM sim_trades
		WHERE portfolio_id = ? AND side = 'BUY' AND created_at >= ?`,
		portfolioID, today).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to read today's buy value: %w", err)
	}
	return value, nil
}

func (s *Service) estimateEquity(cash float64, qty, px map[instKey]float64) float64 {
	equity := cash
	keys := make([]instKey, 0, len(qty))
	for k := range qty {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].symbol != keys[j].symbol {
			return keys[i].symbol < keys[j].symbol
		}
		return keys[i].exchange < keys[j].exchange
	})
	for _, k := range keys {
		equity += qty[k] * px[k]
	}
	return equity
}

func worstLevel(items []Item) domain.RiskStatus {
	status := domain.RiskPass
	for _, item := range items {
		if item.Level == domain.RiskFail {
			return domain.RiskFail
		}
		if item.Level == domain.RiskWarn {
			status = domain.RiskWarn
		}
	}
	return status
}
