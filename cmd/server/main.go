// Package main is the entry point for the workbench, a local-first research
// and paper-trading server for Chinese A-shares. It wires the SQLite store,
// data providers, background task pool, scheduler and HTTP API, then runs
// until interrupted.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/config"
	"github.com/datanger/workbench/internal/database"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/events"
	"github.com/datanger/workbench/internal/modules/assistant"
	"github.com/datanger/workbench/internal/modules/audit"
	"github.com/datanger/workbench/internal/modules/drafts"
	"github.com/datanger/workbench/internal/modules/health"
	"github.com/datanger/workbench/internal/modules/instruments"
	"github.com/datanger/workbench/internal/modules/kb"
	"github.com/datanger/workbench/internal/modules/live"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/datanger/workbench/internal/modules/monitor"
	"github.com/datanger/workbench/internal/modules/news"
	"github.com/datanger/workbench/internal/modules/notes"
	"github.com/datanger/workbench/internal/modules/plans"
	"github.com/datanger/workbench/internal/modules/portfolio"
	"github.com/datanger/workbench/internal/modules/radar"
	"github.com/datanger/workbench/internal/modules/rebalance"
	"github.com/datanger/workbench/internal/modules/risk"
	"github.com/datanger/workbench/internal/modules/scoring"
	"github.com/datanger/workbench/internal/modules/sim"
	"github.com/datanger/workbench/internal/modules/tasks"
	"github.com/datanger/workbench/internal/modules/watchlists"
	"github.com/datanger/workbench/internal/modules/workspace"
	"github.com/datanger/workbench/internal/providers"
	"github.com/datanger/workbench/internal/reliability"
	"github.com/datanger/workbench/internal/server"
	"github.com/datanger/workbench/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting workbench")

	db, err := database.New(database.Config{Path: cfg.DBPath})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	if err := db.Migrate(log); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	eventBus := events.NewManager()

	quoteCache := marketdata.NewQuoteCache()
	cachePath := filepath.Join(cfg.DataDir, "quotes.cache")
	if err := quoteCache.LoadSnapshot(cachePath); err != nil {
		log.Warn().Err(err).Msg("Quote cache snapshot not loaded, starting cold")
	}

	registry := providers.NewRegistry(log)
	if cfg.TushareToken != "" {
		registry.Register(providers.NewTushareProvider(cfg.TushareToken, log), 5, 10)
	} else {
		log.Warn().Msg("TUSHARE_TOKEN not set, tushare provider disabled")
	}
	registry.Register(providers.NewEastmoneyProvider(log), 10, 20)
	registry.Register(providers.NewMockProvider(), 100, 100)

	// Repositories.
	conn := db.Conn()
	auditRec := audit.NewRecorder(conn, log)
	instrumentRepo := instruments.NewRepository(conn, log)
	barRepo := marketdata.NewBarRepository(conn, quoteCache, log)
	fundamentalRepo := marketdata.NewFundamentalRepository(conn, log)
	capitalFlowRepo := marketdata.NewCapitalFlowRepository(conn, log)
	scoreRepo := scoring.NewRepository(conn, log)
	planRepo := plans.NewRepository(conn, log)
	noteRepo := notes.NewRepository(conn, log)
	watchlistRepo := watchlists.NewRepository(conn, log)
	portfolioRepo := portfolio.NewRepository(conn, log)
	draftRepo := drafts.NewRepository(conn, log)
	radarRepo := radar.NewRepository(conn, log)
	taskRepo := tasks.NewRepository(conn, log)
	newsRepo := news.NewRepository(conn, log)
	kbRepo := kb.NewRepository(conn, log)
	monitorRepo := monitor.NewRepository(conn, log)
	riskRules := risk.NewRulesRepository(conn, cfg.Risk, log)

	// Services.
	ingestSvc := marketdata.NewIngestService(registry, cfg.ProviderOrder,
		instrumentRepo, barRepo, fundamentalRepo, capitalFlowRepo, cfg.MaxWorkers, log)
	scoringSvc := scoring.NewService(barRepo, scoreRepo, log)
	planSvc := plans.NewService(planRepo, scoringSvc, barRepo, log)
	portfolioSvc := portfolio.NewService(portfolioRepo, barRepo, log)
	rebalanceSvc := rebalance.NewService(portfolioSvc, barRepo, draftRepo, cfg.Risk.LotSize, log)
	riskSvc := risk.NewService(conn, riskRules, draftRepo, portfolioSvc, barRepo, log)
	simSvc := sim.NewService(db, cfg.Sim, riskSvc, draftRepo, portfolioRepo, barRepo, eventBus, log)
	radarSvc := radar.NewService(radarRepo, instrumentRepo, watchlistRepo, scoringSvc, log)
	workspaceSvc := workspace.NewService(instrumentRepo, barRepo, fundamentalRepo,
		capitalFlowRepo, scoringSvc, planRepo, noteRepo, newsRepo, log)
	assistantSvc := assistant.NewService(scoringSvc, planRepo, noteRepo, kbRepo, log)
	monitorSvc := monitor.NewService(monitorRepo, barRepo, scoreRepo, portfolioSvc, eventBus, log)
	healthSvc := health.NewService(db, registry, taskRepo, cfg.DataDir, log)

	var s3Client *reliability.S3Client
	if cfg.Backup.S3Bucket != "" {
		s3Client, err = reliability.NewS3Client(context.Background(),
			cfg.Backup.S3Bucket, cfg.Backup.S3Prefix, log)
		if err != nil {
			log.Error().Err(err).Msg("S3 client init failed, backups stay local")
			s3Client = nil
		}
	}
	backupSvc := reliability.NewBackupService(db, cfg.Backup, s3Client, log)

	// Task pool.
	manager := tasks.NewManager(taskRepo, eventBus, cfg.MaxWorkers, log)
	registerRunners(manager, ingestSvc, radarSvc, newsRepo)
	manager.RecoverOrphans()

	// Scheduler: monitor rules every five minutes, housekeeping nightly.
	scheduler := cron.New()
	maintenance := reliability.NewMaintenanceJob(db, backupSvc, log)
	if _, err := scheduler.AddFunc("@every 5m", func() { runMonitorCheck(monitorSvc, log) }); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule monitor check")
	}
	if _, err := scheduler.AddJob("30 2 * * *", maintenance); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule maintenance")
	}
	scheduler.Start()

	srv := server.New(server.Config{
		Log:     log,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		Events:  eventBus,

		Instruments: instruments.NewHandlers(instrumentRepo, log),
		Marketdata:  marketdata.NewHandlers(barRepo, fundamentalRepo, capitalFlowRepo, log),
		Scoring:     scoring.NewHandlers(scoringSvc, scoreRepo, auditRec, log),
		Plans:       plans.NewHandlers(planSvc, planRepo, auditRec, log),
		Notes:       notes.NewHandlers(noteRepo, auditRec, log),
		Watchlists:  watchlists.NewHandlers(watchlistRepo, auditRec, log),
		Radar:       radar.NewHandlers(radarRepo, manager, auditRec, log),
		Workspace:   workspace.NewHandlers(workspaceSvc, log),
		Portfolio:   portfolio.NewHandlers(portfolioSvc, portfolioRepo, auditRec, log),
		Drafts:      drafts.NewHandlers(draftRepo, auditRec, log),
		Rebalance:   rebalance.NewHandlers(rebalanceSvc, auditRec, log),
		Risk:        risk.NewHandlers(riskSvc, riskRules, auditRec, log),
		Sim:         sim.NewHandlers(simSvc, auditRec, log),
		Tasks:       tasks.NewHandlers(manager, taskRepo, log),
		Monitor:     monitor.NewHandlers(monitorSvc, monitorRepo, auditRec, log),
		News:        news.NewHandlers(newsRepo, log),
		KB:          kb.NewHandlers(kbRepo, auditRec, log),
		Assistant:   assistant.NewHandlers(assistantSvc, auditRec, log),
		Live:        live.NewHandlers(live.NewUnavailableBroker(), log),
		Audit:       audit.NewHandlers(auditRec, log),
		Health:      health.NewHandlers(healthSvc, log),
		Backup:      reliability.NewHandlers(backupSvc, auditRec, log),
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutdown signal received")

	scheduler.Stop()
	manager.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}

	if err := quoteCache.SaveSnapshot(cachePath); err != nil {
		log.Warn().Err(err).Msg("Quote cache snapshot not saved")
	}
	if err := db.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("Final WAL checkpoint failed")
	}
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("Database close failed")
	}
	log.Info().Msg("Workbench stopped")
}

type ingestBarsPayload struct {
	Symbols []marketdata.SymbolRef `json:"symbols"`
	Start   string                 `json:"start"`
	End     string                 `json:"end"`
	Adj     string                 `json:"adj"`
}

type ingestSymbolsPayload struct {
	Symbols []marketdata.SymbolRef `json:"symbols"`
}

type ingestFlowPayload struct {
	Symbols []marketdata.SymbolRef `json:"symbols"`
	Start   string                 `json:"start"`
	End     string                 `json:"end"`
}

type radarRunPayload struct {
	TemplateID string `json:"template_id"`
}

type newsMockPayload struct {
	Symbols []string `json:"symbols"`
}

// registerRunners binds each task type to its executor. Runners decode their
// own payload so the manager stays payload-agnostic.
func registerRunners(manager *tasks.Manager, ingestSvc *marketdata.IngestService, radarSvc *radar.Service, newsRepo *news.Repository) {
	manager.Register(tasks.TypeIngestInstruments, func(ctx context.Context, taskID string, payload json.RawMessage) (interface{}, error) {
		return ingestSvc.IngestInstruments(ctx)
	})

	manager.Register(tasks.TypeIngestBarsDaily, func(ctx context.Context, taskID string, payload json.RawMessage) (interface{}, error) {
		var p ingestBarsPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		adj := domain.AdjRaw
		if p.Adj != "" {
			if !domain.ValidAdj(p.Adj) {
				return nil, apierr.Validation("adj must be RAW, QFQ or HFQ")
			}
			adj = domain.Adj(p.Adj)
		}
		return ingestSvc.IngestBarsDaily(ctx, p.Symbols, p.Start, p.End, adj)
	})

	manager.Register(tasks.TypeIngestFundamentals, func(ctx context.Context, taskID string, payload json.RawMessage) (interface{}, error) {
		var p ingestSymbolsPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		return ingestSvc.IngestFundamentals(ctx, p.Symbols)
	})

	manager.Register(tasks.TypeIngestCapitalFlowDaily, func(ctx context.Context, taskID string, payload json.RawMessage) (interface{}, error) {
		var p ingestFlowPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		return ingestSvc.IngestCapitalFlow(ctx, p.Symbols, p.Start, p.End)
	})

	manager.Register(tasks.TypeRadarRun, func(ctx context.Context, taskID string, payload json.RawMessage) (interface{}, error) {
		var p radarRunPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		if p.TemplateID == "" {
			return nil, apierr.Validation("template_id is required")
		}
		return radarSvc.Run(ctx, taskID, p.TemplateID)
	})

	manager.Register(tasks.TypeIngestNewsMock, func(ctx context.Context, taskID string, payload json.RawMessage) (interface{}, error) {
		var p newsMockPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		inserted, err := newsRepo.IngestMock(p.Symbols)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"inserted": inserted}, nil
	})
}

func decodePayload(payload json.RawMessage, dst interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return apierr.Validation("invalid task payload: %v", err)
	}
	return nil
}

func runMonitorCheck(svc *monitor.Service, log zerolog.Logger) {
	summary, err := svc.CheckAll()
	if err != nil {
		log.Error().Err(err).Msg("Scheduled monitor check failed")
		return
	}
	if summary.AlertsRaised > 0 {
		log.Info().Int("alerts", summary.AlertsRaised).Msg("Monitor check raised alerts")
	}
}
