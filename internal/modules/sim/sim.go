// Package sim fills confirmed order drafts against the latest daily close,
// with configurable fee and slippage, and keeps the resulting paper ledger.
package sim

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/config"
	"github.com/datanger/workbench/internal/database"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/events"
	"github.com/datanger/workbench/internal/modules/drafts"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/datanger/workbench/internal/modules/portfolio"
	"github.com/datanger/workbench/internal/modules/risk"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Order is one simulated order covering a confirmed batch of drafts.
type Order struct {
	OrderID       string   `json:"order_id"`
	PortfolioID   string   `json:"portfolio_id"`
	CreatedAt     string   `json:"created_at"`
	Status        string   `json:"status"`
	DraftIDs      []string `json:"draft_ids"`
	FilledQty     float64  `json:"filled_qty"`
	AvgFillPrice  float64  `json:"avg_fill_price"`
	FeeTotal      float64  `json:"fee_total"`
	SlippageTotal float64  `json:"slippage_total"`
}

// Trade is one simulated fill.
type Trade struct {
	TradeID     string          `json:"trade_id"`
	OrderID     string          `json:"order_id"`
	PortfolioID string          `json:"portfolio_id"`
	Symbol      string          `json:"symbol"`
	Exchange    domain.Exchange `json:"exchange"`
	Side        domain.Side     `json:"side"`
	Price       float64         `json:"price"`
	Qty         float64         `json:"qty"`
	Fee         float64         `json:"fee"`
	Slippage    float64         `json:"slippage"`
	CreatedAt   string          `json:"created_at"`
}

// ConfirmResult is the outcome of one confirmed batch.
type ConfirmResult struct {
	Order     Order   `json:"order"`
	Trades    []Trade `json:"trades"`
	CashAfter float64 `json:"cash_after"`
}

// Service executes confirmed drafts.
type Service struct {
	db         *database.DB
	cfg        config.SimConfig
	risk       *risk.Service
	drafts     *drafts.Repository
	portfolios *portfolio.Repository
	bars       *marketdata.BarRepository
	events     *events.Manager
	log        zerolog.Logger
}

// NewService creates the sim service.
func NewService(db *database.DB, cfg config.SimConfig, riskSvc *risk.Service, draftRepo *drafts.Repository, portfolios *portfolio.Repository, bars *marketdata.BarRepository, eventBus *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		db:         db,
		cfg:        cfg,
		risk:       riskSvc,
		drafts:     draftRepo,
		portfolios: portfolios,
		bars:       bars,
		events:     eventBus,
		log:        log.With().Str("service", "sim").Logger(),
	}
}

// Confirm fills the drafts at the latest daily close in a single transaction.
// A LIMIT price overrides the fill price; slippage is always charged on the
// close. The referenced risk check must exist and must not be FAIL.
func (s *Service) Confirm(riskcheckID, portfolioID string, draftIDs []string) (*ConfirmResult, error) {
	if len(draftIDs) == 0 {
		return nil, apierr.Validation("draft_ids must not be empty")
	}

	check, err := s.risk.Get(riskcheckID)
	if err != nil {
		return nil, err
	}
	if check == nil {
		return nil, apierr.Newf(apierr.CodeRiskCheckFail, "risk check %s not found", riskcheckID)
	}
	if check.Status == domain.RiskFail {
		return nil, apierr.Newf(apierr.CodeRiskCheckFail,
			"risk check %s failed, confirmation refused", riskcheckID)
	}

	batch, err := s.drafts.GetMany(draftIDs)
	if err != nil {
		return nil, apierr.Validation(err.Error())
	}
	for _, d := range batch {
		if d.PortfolioID != portfolioID {
			return nil, apierr.Validation("draft %s belongs to another portfolio", d.DraftID)
		}
	}

	cash, err := s.portfolios.Cash(portfolioID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	order := Order{
		OrderID:     uuid.New().String(),
		PortfolioID: portfolioID,
		CreatedAt:   now,
		Status:      "FILLED",
		DraftIDs:    draftIDs,
	}
	var trades []Trade
	var fillValueSum float64

	err = database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		for _, draft := range batch {
			quote, err := s.bars.LatestQuote(draft.Symbol, draft.Exchange)
			if err != nil {
				return err
			}
			if quote == nil {
				return apierr.DataNotReady("no daily close for %s", draft.Symbol).
					WithDetails(map[string]interface{}{"task": "ingest_bars_daily"})
			}
			base := quote.Close

			fill := base
			if draft.OrderType == domain.OrderLimit && draft.Price != nil {
				fill = *draft.Price
			}
			slippage := base * s.cfg.SlippageRate * draft.Qty
			fee := fill * draft.Qty * s.cfg.FeeRate

			pos, err := s.portfolios.GetPosition(portfolioID, draft.Symbol, draft.Exchange)
			if err != nil {
				return err
			}
			var curQty, curAvg float64
			if pos != nil {
				curQty, curAvg = pos.Qty, pos.AvgCost
			}

			switch draft.Side {
			case domain.SideBuy:
				cost := fill*draft.Qty + fee + slippage
				cash -= cost
				newQty := curQty + draft.Qty
				newAvg := (curQty*curAvg + cost) / newQty
				if err := portfolio.UpsertPositionTx(tx, portfolio.Position{
					PortfolioID: portfolioID, Symbol: draft.Symbol, Exchange: draft.Exchange,
					Qty: newQty, AvgCost: newAvg,
				}); err != nil {
					return err
				}
			case domain.SideSell:
				if draft.Qty > curQty {
					return apierr.Validation("selling %.0f but only %.0f of %s held",
						draft.Qty, curQty, draft.Symbol)
				}
				cash += fill*draft.Qty - fee - slippage
				if err := portfolio.UpsertPositionTx(tx, portfolio.Position{
					PortfolioID: portfolioID, Symbol: draft.Symbol, Exchange: draft.Exchange,
					Qty: curQty - draft.Qty, AvgCost: curAvg,
				}); err != nil {
					return err
				}
			default:
				return apierr.Validation("unsupported side %q", draft.Side)
			}

			trade := Trade{
				TradeID:     uuid.New().String(),
				OrderID:     order.OrderID,
				PortfolioID: portfolioID,
				Symbol:      draft.Symbol,
				Exchange:    draft.Exchange,
				Side:        draft.Side,
				Price:       fill,
				Qty:         draft.Qty,
				Fee:         fee,
				Slippage:    slippage,
				CreatedAt:   now,
			}
			if _, err := tx.Exec(`
				INSERT INTO sim_trades
					(trade_id, order_id, portfolio_id, symbol, exchange, side, price, qty,
					 fee, slippage, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				trade.TradeID, trade.OrderID, trade.PortfolioID, trade.Symbol, trade.Exchange,
				trade.Side, trade.Price, trade.Qty, trade.Fee, trade.Slippage, trade.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to insert sim trade: %w", err)
			}
			trades = append(trades, trade)

			order.FilledQty += draft.Qty
			order.FeeTotal += fee
			order.SlippageTotal += slippage
			fillValueSum += fill * draft.Qty

			if _, err := tx.Exec(`
				UPDATE order_drafts SET status = 'CONFIRMED' WHERE draft_id = ?`,
				draft.DraftID); err != nil {
				return fmt.Errorf("failed to mark draft confirmed: %w", err)
			}
		}

		if order.FilledQty > 0 {
			order.AvgFillPrice = fillValueSum / order.FilledQty
		}
		draftIDsJSON, err := json.Marshal(order.DraftIDs)
		if err != nil {
			return fmt.Errorf("failed to encode draft ids: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO sim_orders
				(order_id, portfolio_id, created_at, status, draft_ids_json, filled_qty,
				 avg_fill_price, fee_total, slippage_total)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			order.OrderID, order.PortfolioID, order.CreatedAt, order.Status,
			string(draftIDsJSON), order.FilledQty, order.AvgFillPrice,
			order.FeeTotal, order.SlippageTotal,
		); err != nil {
			return fmt.Errorf("failed to insert sim order: %w", err)
		}

		return portfolio.SetCashTx(tx, portfolioID, cash)
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(events.SimConfirmed, map[string]interface{}{
		"order_id": order.OrderID, "portfolio_id": portfolioID, "trades": len(trades),
	})
	s.log.Info().Str("order_id", order.OrderID).Int("trades", len(trades)).
		Float64("cash_after", cash).Msg("Simulated order filled")

	return &ConfirmResult{Order: order, Trades: trades, CashAfter: cash}, nil
}

// Orders returns simulated orders for a portfolio, newest first.
func (s *Service) Orders(portfolioID string, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Conn().Query(`
		SELECT order_id, portfolio_id, created_at, status, draft_ids_json, filled_qty,
		       avg_fill_price, fee_total, slippage_total
		FROM sim_orders WHERE portfolio_id = ?
		ORDER BY created_at DESC LIMIT ?`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sim orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		var draftIDsJSON string
		if err := rows.Scan(&o.OrderID, &o.PortfolioID, &o.CreatedAt, &o.Status,
			&draftIDsJSON, &o.FilledQty, &o.AvgFillPrice, &o.FeeTotal, &o.SlippageTotal); err != nil {
			return nil, fmt.Errorf("failed to scan sim order: %w", err)
		}
		if err := json.Unmarshal([]byte(draftIDsJSON), &o.DraftIDs); err != nil {
			return nil, fmt.Errorf("failed to decode draft ids: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Trades returns simulated fills for a portfolio, newest first.
func (s *Service) Trades(portfolioID string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Conn().Query(`
		SELECT trade_id, order_id, portfolio_id, symbol, exchange, side, price, qty,
		       fee, slippage, created_at
		FROM sim_trades WHERE portfolio_id = ?
		ORDER BY created_at DESC LIMIT ?`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sim trades: %w", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.TradeID, &t.OrderID, &t.PortfolioID, &t.Symbol, &t.Exchange,
			&t.Side, &t.Price, &t.Qty, &t.Fee, &t.Slippage, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sim trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
