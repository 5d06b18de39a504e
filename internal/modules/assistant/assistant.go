// Package assistant produces deterministic research briefs for one
// instrument: a direction read from the latest score, the evidence behind it,
// the active plan and related knowledge base material. No model calls, the
// same inputs always give the same brief.
package assistant

import (
	"fmt"
	"strings"

	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/modules/kb"
	"github.com/datanger/workbench/internal/modules/notes"
	"github.com/datanger/workbench/internal/modules/plans"
	"github.com/datanger/workbench/internal/modules/scoring"
	"github.com/rs/zerolog"
)

// Directions the assistant can take.
const (
	DirectionLong      = "LONG"
	DirectionLeanLong  = "LEAN_LONG"
	DirectionNeutral   = "NEUTRAL"
	DirectionLeanShort = "LEAN_SHORT"
	DirectionAvoid     = "AVOID"
)

// Citation points at one supporting kb document.
type Citation struct {
	DocID   string `json:"doc_id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Report is one generated brief.
type Report struct {
	Symbol     string          `json:"symbol"`
	Exchange   domain.Exchange `json:"exchange"`
	Direction  string          `json:"direction"`
	Confidence string          `json:"confidence"`
	ScoreTotal float64         `json:"score_total"`
	Summary    string          `json:"summary"`
	Evidence   []string        `json:"evidence"`
	Plan       *plans.Plan     `json:"plan,omitempty"`
	Citations  []Citation      `json:"citations,omitempty"`
	NoteID     string          `json:"note_id,omitempty"`
}

// Service generates assistant reports.
type Service struct {
	scoring *scoring.Service
	plans   *plans.Repository
	notes   *notes.Repository
	kb      *kb.Repository
	log     zerolog.Logger
}

// NewService creates the assistant service.
func NewService(scoringSvc *scoring.Service, planRepo *plans.Repository, noteRepo *notes.Repository, kbRepo *kb.Repository, log zerolog.Logger) *Service {
	return &Service{
		scoring: scoringSvc,
		plans:   planRepo,
		notes:   noteRepo,
		kb:      kbRepo,
		log:     log.With().Str("service", "assistant").Logger(),
	}
}

// Report builds a brief for the instrument. When persist is set the brief is
// also stored as a note and its ID returned.
func (s *Service) Report(symbol string, exchange domain.Exchange, persist bool) (*Report, error) {
	snapshot, err := s.scoring.LatestOrCalc(symbol, exchange)
	if err != nil {
		return nil, err
	}

	direction, confidence := classify(snapshot.ScoreTotal)
	report := &Report{
		Symbol:     symbol,
		Exchange:   exchange,
		Direction:  direction,
		Confidence: confidence,
		ScoreTotal: snapshot.ScoreTotal,
		Evidence:   snapshot.Reasons,
	}

	plan, err := s.plans.Latest(symbol, exchange)
	if err == nil && plan != nil {
		report.Plan = plan
	}

	if hits, err := s.kb.Search(symbol, 3); err == nil {
		for _, hit := range hits {
			report.Citations = append(report.Citations, Citation{
				DocID: hit.DocID, Title: hit.Title, Snippet: hit.Snippet,
			})
		}
	}

	report.Summary = buildSummary(report, snapshot)

	if persist {
		note, err := s.notes.Create(notes.Note{
			Symbol:   symbol,
			Exchange: string(exchange),
			Title:    fmt.Sprintf("Assistant brief %s %s", symbol, snapshot.TradeDate),
			Content:  report.Summary,
			Tags:     []string{"assistant", strings.ToLower(direction)},
		})
		if err != nil {
			return nil, err
		}
		report.NoteID = note.NoteID
	}

	return report, nil
}

// classify maps a 0-100 score onto a direction and confidence.
func classify(score float64) (string, string) {
	switch {
	case score >= 80:
		return DirectionLong, "HIGH"
	case score >= 65:
		return DirectionLeanLong, "MEDIUM"
	case score <= 40:
		return DirectionAvoid, "HIGH"
	case score <= 55:
		return DirectionLeanShort, "MEDIUM"
	default:
		return DirectionNeutral, "LOW"
	}
}

func buildSummary(report *Report, snapshot *scoring.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s.%s scores %.0f/100 (%s, %s confidence) as of %s.",
		report.Symbol, report.Exchange, snapshot.ScoreTotal,
		report.Direction, report.Confidence, snapshot.TradeDate)

	if len(report.Evidence) > 0 {
		fmt.Fprintf(&b, " Signals: %s.", strings.Join(report.Evidence, "; "))
	}
	if plan := report.Plan; plan != nil {
		if plan.EntryLow != nil && plan.EntryHigh != nil {
			fmt.Fprintf(&b, " Active plan v%d: entry %.2f-%.2f", plan.PlanVersion,
				*plan.EntryLow, *plan.EntryHigh)
			if plan.StopLoss != nil {
				fmt.Fprintf(&b, ", stop %.2f", *plan.StopLoss)
			}
			if plan.TakeProfit != nil {
				fmt.Fprintf(&b, ", target %.2f", *plan.TakeProfit)
			}
			b.WriteString(".")
		}
	}
	if len(report.Citations) > 0 {
		titles := make([]string, 0, len(report.Citations))
		for _, c := range report.Citations {
			titles = append(titles, c.Title)
		}
		fmt.Fprintf(&b, " Related: %s.", strings.Join(titles, "; "))
	}
	return b.String()
}
