package monitor

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/events"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/datanger/workbench/internal/modules/portfolio"
	"github.com/datanger/workbench/internal/modules/scoring"
	"github.com/rs/zerolog"
)

// Debounce windows. A rule that just fired stays quiet for the window.
const (
	defaultDebounce     = time.Hour
	volumeSpikeDebounce = 2 * time.Hour
)

// CheckSummary is the outcome of one evaluation pass.
type CheckSummary struct {
	RulesChecked int `json:"rules_checked"`
	AlertsRaised int `json:"alerts_raised"`
	Debounced    int `json:"debounced"`
}

// Service evaluates alert rules.
type Service struct {
	repo       *Repository
	bars       *marketdata.BarRepository
	scores     *scoring.Repository
	portfolios *portfolio.Service
	events     *events.Manager
	log        zerolog.Logger
}

// NewService creates the monitor service.
func NewService(repo *Repository, bars *marketdata.BarRepository, scores *scoring.Repository, portfolios *portfolio.Service, eventBus *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		bars:       bars,
		scores:     scores,
		portfolios: portfolios,
		events:     eventBus,
		log:        log.With().Str("service", "monitor").Logger(),
	}
}

// CheckAll evaluates every enabled rule once. Rule failures are logged and
// skipped so one broken rule cannot stop the pass.
func (s *Service) CheckAll() (*CheckSummary, error) {
	rules, err := s.repo.ListRules(true)
	if err != nil {
		return nil, err
	}

	summary := &CheckSummary{}
	for _, rule := range rules {
		summary.RulesChecked++

		debounced, err := s.isDebounced(rule)
		if err != nil {
			s.log.Warn().Err(err).Str("rule_id", rule.RuleID).Msg("Debounce lookup failed")
			continue
		}
		if debounced {
			summary.Debounced++
			continue
		}

		alert, err := s.evaluate(rule)
		if err != nil {
			s.log.Warn().Err(err).Str("rule_id", rule.RuleID).
				Str("rule_type", rule.RuleType).Msg("Alert rule evaluation failed")
			continue
		}
		if alert == nil {
			continue
		}

		if err := s.repo.InsertAlert(alert); err != nil {
			return nil, err
		}
		summary.AlertsRaised++
		s.events.Publish(events.AlertRaised, alert)
		s.log.Info().Str("rule_id", rule.RuleID).Str("severity", alert.Severity).
			Str("title", alert.Title).Msg("Alert raised")
	}
	return summary, nil
}

func (s *Service) isDebounced(rule Rule) (bool, error) {
	last, err := s.repo.LastAlertTime(rule.RuleID)
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return false, nil
	}
	window := defaultDebounce
	if rule.RuleType == RuleVolumeSpike {
		window = volumeSpikeDebounce
	}
	return time.Since(last) < window, nil
}

func (s *Service) evaluate(rule Rule) (*Alert, error) {
	switch rule.RuleType {
	case RulePriceChangePct:
		return s.checkPriceChange(rule)
	case RuleVolumeSpike:
		return s.checkVolumeSpike(rule)
	case RuleScoreChange:
		return s.checkScoreChange(rule)
	case RulePositionLimit:
		return s.checkPositionLimit(rule)
	case RuleCashRatio:
		return s.checkCashRatio(rule)
	default:
		return nil, fmt.Errorf("unknown rule type %q", rule.RuleType)
	}
}

type symbolParams struct {
	Symbol    string  `json:"symbol"`
	Exchange  string  `json:"exchange"`
	Threshold float64 `json:"threshold"`
}

func (s *Service) checkPriceChange(rule Rule) (*Alert, error) {
	var p symbolParams
	if err := json.Unmarshal(rule.Params, &p); err != nil {
		return nil, err
	}
	quote, err := s.bars.LatestQuote(p.Symbol, domain.Exchange(p.Exchange))
	if err != nil || quote == nil {
		return nil, err
	}

	change := quote.ChangePct()
	if math.Abs(change) < p.Threshold {
		return nil, nil
	}
	severity := SeverityWarn
	if math.Abs(change) >= 0.099 {
		severity = SeverityCritical
	}
	context, _ := json.Marshal(map[string]interface{}{
		"symbol": p.Symbol, "change_pct": change, "close": quote.Close,
	})
	return &Alert{
		RuleID:   rule.RuleID,
		Severity: severity,
		Title:    fmt.Sprintf("%s moved %.1f%%", p.Symbol, change*100),
		Message: fmt.Sprintf("%s closed at %.2f on %s, %.1f%% against the prior close",
			p.Symbol, quote.Close, quote.TradeDate, change*100),
		Context: context,
	}, nil
}

type volumeParams struct {
	Symbol   string  `json:"symbol"`
	Exchange string  `json:"exchange"`
	Multiple float64 `json:"multiple"`
}

func (s *Service) checkVolumeSpike(rule Rule) (*Alert, error) {
	var p volumeParams
	if err := json.Unmarshal(rule.Params, &p); err != nil {
		return nil, err
	}
	if p.Multiple <= 0 {
		p.Multiple = 2
	}
	bars, err := s.bars.RecentBars(p.Symbol, domain.Exchange(p.Exchange), domain.AdjRaw, 21)
	if err != nil {
		return nil, err
	}
	if len(bars) < 21 {
		return nil, nil
	}

	// bars are newest first
	latest := bars[0]
	var baseline float64
	for _, bar := range bars[1:] {
		baseline += bar.Volume
	}
	baseline /= float64(len(bars) - 1)
	if baseline <= 0 || latest.Volume < baseline*p.Multiple {
		return nil, nil
	}

	context, _ := json.Marshal(map[string]interface{}{
		"symbol": p.Symbol, "volume": latest.Volume, "baseline": baseline,
	})
	return &Alert{
		RuleID:   rule.RuleID,
		Severity: SeverityWarn,
		Title:    fmt.Sprintf("%s volume spike", p.Symbol),
		Message: fmt.Sprintf("%s traded %.0fx its 20-day average volume on %s",
			p.Symbol, latest.Volume/baseline, latest.TradeDate),
		Context: context,
	}, nil
}

type scoreParams struct {
	Symbol   string  `json:"symbol"`
	Exchange string  `json:"exchange"`
	MinDelta float64 `json:"min_delta"`
}

func (s *Service) checkScoreChange(rule Rule) (*Alert, error) {
	var p scoreParams
	if err := json.Unmarshal(rule.Params, &p); err != nil {
		return nil, err
	}
	if p.MinDelta <= 0 {
		p.MinDelta = 10
	}
	snapshots, err := s.scores.List(p.Symbol, domain.Exchange(p.Exchange), 2)
	if err != nil {
		return nil, err
	}
	if len(snapshots) < 2 {
		return nil, nil
	}

	delta := snapshots[0].ScoreTotal - snapshots[1].ScoreTotal
	if math.Abs(delta) < p.MinDelta {
		return nil, nil
	}
	context, _ := json.Marshal(map[string]interface{}{
		"symbol": p.Symbol, "score": snapshots[0].ScoreTotal, "delta": delta,
	})
	return &Alert{
		RuleID:   rule.RuleID,
		Severity: SeverityInfo,
		Title:    fmt.Sprintf("%s score moved %+.0f", p.Symbol, delta),
		Message: fmt.Sprintf("%s score went from %.0f to %.0f",
			p.Symbol, snapshots[1].ScoreTotal, snapshots[0].ScoreTotal),
		Context: context,
	}, nil
}

type portfolioParams struct {
	PortfolioID string  `json:"portfolio_id"`
	MaxWeight   float64 `json:"max_weight"`
	MinRatio    float64 `json:"min_ratio"`
}

func (s *Service) checkPositionLimit(rule Rule) (*Alert, error) {
	var p portfolioParams
	if err := json.Unmarshal(rule.Params, &p); err != nil {
		return nil, err
	}
	if p.MaxWeight <= 0 {
		p.MaxWeight = 0.25
	}
	valuation, err := s.portfolios.Valuation(p.PortfolioID)
	if err != nil {
		return nil, err
	}

	for _, pos := range valuation.Positions {
		if pos.Weight == nil || *pos.Weight <= p.MaxWeight {
			continue
		}
		context, _ := json.Marshal(map[string]interface{}{
			"portfolio_id": p.PortfolioID, "symbol": pos.Symbol, "weight": *pos.Weight,
		})
		return &Alert{
			RuleID:   rule.RuleID,
			Severity: SeverityWarn,
			Title:    fmt.Sprintf("%s over position limit", pos.Symbol),
			Message: fmt.Sprintf("%s is %.1f%% of portfolio equity, above the %.1f%% cap",
				pos.Symbol, *pos.Weight*100, p.MaxWeight*100),
			Context: context,
		}, nil
	}
	return nil, nil
}

func (s *Service) checkCashRatio(rule Rule) (*Alert, error) {
	var p portfolioParams
	if err := json.Unmarshal(rule.Params, &p); err != nil {
		return nil, err
	}
	if p.MinRatio <= 0 {
		p.MinRatio = 0.05
	}
	valuation, err := s.portfolios.Valuation(p.PortfolioID)
	if err != nil {
		return nil, err
	}
	if valuation.CashRatio >= p.MinRatio {
		return nil, nil
	}

	context, _ := json.Marshal(map[string]interface{}{
		"portfolio_id": p.PortfolioID, "cash_ratio": valuation.CashRatio,
	})
	return &Alert{
		RuleID:   rule.RuleID,
		Severity: SeverityCritical,
		Title:    "Cash ratio below floor",
		Message: fmt.Sprintf("portfolio cash ratio %.1f%% is below the %.1f%% floor",
			valuation.CashRatio*100, p.MinRatio*100),
		Context: context,
	}, nil
}
