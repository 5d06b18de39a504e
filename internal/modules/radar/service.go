package radar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/modules/instruments"
	"github.com/datanger/workbench/internal/modules/scoring"
	"github.com/datanger/workbench/internal/modules/watchlists"
	"github.com/rs/zerolog"
)

// RunSummary is the task result of one radar run.
type RunSummary struct {
	TemplateID    string   `json:"template_id"`
	Candidates    int      `json:"candidates"`
	Matched       int      `json:"matched"`
	Scored        int      `json:"scored"`
	SkippedNoData []string `json:"skipped_no_data,omitempty"`
}

// Service runs radar screens.
type Service struct {
	repo        *Repository
	instruments *instruments.Repository
	watchlists  *watchlists.Repository
	scoring     *scoring.Service
	log         zerolog.Logger
}

// NewService creates the radar service.
func NewService(repo *Repository, instrumentRepo *instruments.Repository, watchlistRepo *watchlists.Repository, scoringSvc *scoring.Service, log zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		instruments: instrumentRepo,
		watchlists:  watchlistRepo,
		scoring:     scoringSvc,
		log:         log.With().Str("service", "radar").Logger(),
	}
}

// Run executes the template: resolve the universe, filter by the rules,
// score every match and persist the ranked results under the task ID.
// Candidates without enough bar history are skipped, not fatal.
func (s *Service) Run(ctx context.Context, taskID, templateID string) (*RunSummary, error) {
	tpl, err := s.repo.GetTemplate(templateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, apierr.Validation("radar template %s not found", templateID)
	}

	candidates, err := s.resolveUniverse(tpl.Universe)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{TemplateID: templateID, Candidates: len(candidates)}
	now := time.Now().UTC().Format(time.RFC3339)

	for _, inst := range candidates {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ruleReasons, ok := matchRules(inst, tpl.Rules)
		if !ok {
			continue
		}
		summary.Matched++

		snapshot, err := s.scoring.LatestOrCalc(inst.Symbol, inst.Exchange)
		if err != nil {
			summary.SkippedNoData = append(summary.SkippedNoData, inst.Symbol)
			continue
		}
		summary.Scored++

		keyMetrics := map[string]interface{}{
			"name":     inst.Name,
			"industry": inst.Industry,
		}
		for name, value := range snapshot.Metrics {
			keyMetrics[name] = value
		}

		result := Result{
			TaskID:     taskID,
			Symbol:     inst.Symbol,
			Exchange:   inst.Exchange,
			ScoreTotal: snapshot.ScoreTotal,
			Breakdown:  snapshot.Breakdown,
			Reasons:    append(ruleReasons, snapshot.Reasons...),
			KeyMetrics: keyMetrics,
			CreatedAt:  now,
		}
		if err := s.repo.SaveResult(result); err != nil {
			return nil, err
		}
	}

	s.log.Info().Str("template_id", templateID).Int("candidates", summary.Candidates).
		Int("matched", summary.Matched).Int("scored", summary.Scored).Msg("Radar run finished")
	return summary, nil
}

func (s *Service) resolveUniverse(universe Universe) ([]instruments.Instrument, error) {
	switch universe.Type {
	case UniverseAll:
		return s.instruments.ListActive()

	case UniverseCustom:
		if len(universe.Symbols) == 0 {
			return nil, apierr.Validation("CUSTOM universe needs symbols")
		}
		out := make([]instruments.Instrument, 0, len(universe.Symbols))
		for _, raw := range universe.Symbols {
			symbol := domain.NormalizeSymbol(raw)
			exchange := domain.GuessExchange(symbol)
			if inst, err := s.instruments.Get(symbol, exchange); err == nil && inst != nil {
				out = append(out, *inst)
				continue
			}
			out = append(out, instruments.Instrument{
				Symbol: symbol, Exchange: exchange, Market: domain.MarketCNA, IsActive: true,
			})
		}
		return out, nil

	case UniverseWatchlist:
		if universe.ListType == "" {
			return nil, apierr.Validation("WATCHLIST universe needs list_type")
		}
		items, err := s.watchlists.Items(universe.ListType)
		if err != nil {
			return nil, err
		}
		out := make([]instruments.Instrument, 0, len(items))
		for _, item := range items {
			if inst, err := s.instruments.Get(item.Symbol, item.Exchange); err == nil && inst != nil {
				out = append(out, *inst)
				continue
			}
			out = append(out, instruments.Instrument{
				Symbol: item.Symbol, Exchange: item.Exchange, Market: domain.MarketCNA, IsActive: true,
			})
		}
		return out, nil

	default:
		return nil, apierr.Validation("unknown universe type %q", universe.Type)
	}
}

// matchRules evaluates every rule against the instrument. All rules must
// hold; the returned reasons describe the matched predicates.
func matchRules(inst instruments.Instrument, rules []Rule) ([]string, bool) {
	reasons := make([]string, 0, len(rules))
	for _, rule := range rules {
		field := fieldValue(inst, rule.Field)

		switch rule.Op {
		case OpEq:
			want, ok := rule.Value.(string)
			if !ok || field != want {
				return nil, false
			}
			reasons = append(reasons, fmt.Sprintf("%s==%s", rule.Field, want))

		case OpIn:
			values, ok := rule.Value.([]interface{})
			if !ok {
				return nil, false
			}
			found := false
			for _, v := range values {
				if s, ok := v.(string); ok && s == field {
					found = true
					break
				}
			}
			if !found {
				return nil, false
			}
			reasons = append(reasons, fmt.Sprintf("%s in %v", rule.Field, rule.Value))

		case OpPrefix:
			want, ok := rule.Value.(string)
			if !ok || !strings.HasPrefix(field, want) {
				return nil, false
			}
			reasons = append(reasons, fmt.Sprintf("%s startswith %s", rule.Field, want))

		default:
			return nil, false
		}
	}
	return reasons, true
}

func fieldValue(inst instruments.Instrument, field string) string {
	switch field {
	case "symbol":
		return inst.Symbol
	case "name":
		return inst.Name
	case "industry":
		return inst.Industry
	case "exchange":
		return string(inst.Exchange)
	default:
		return ""
	}
}
