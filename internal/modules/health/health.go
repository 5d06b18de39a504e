// Package health reports the runtime condition of the workbench: database
// integrity, data providers, task queue depth and host resources.
package health

import (
	"context"
	"runtime"
	"time"

	"github.com/datanger/workbench/internal/database"
	"github.com/datanger/workbench/internal/modules/tasks"
	"github.com/datanger/workbench/internal/providers"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Report is the full health payload.
type Report struct {
	Status     string             `json:"status"`
	Database   DatabaseHealth     `json:"database"`
	Providers  []providers.Status `json:"providers"`
	QueueDepth int                `json:"queue_depth"`
	System     SystemHealth       `json:"system"`
	UptimeSecs float64            `json:"uptime_secs"`
}

// DatabaseHealth is the integrity check outcome.
type DatabaseHealth struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// SystemHealth is a host resource snapshot.
type SystemHealth struct {
	NumCPU         int     `json:"num_cpu"`
	NumGoroutine   int     `json:"num_goroutine"`
	MemUsedPercent float64 `json:"mem_used_percent"`
	DiskFreeBytes  uint64  `json:"disk_free_bytes"`
}

// Service assembles health reports.
type Service struct {
	db        *database.DB
	registry  *providers.Registry
	tasks     *tasks.Repository
	dataDir   string
	startedAt time.Time
	log       zerolog.Logger
}

// NewService creates the health service.
func NewService(db *database.DB, registry *providers.Registry, taskRepo *tasks.Repository, dataDir string, log zerolog.Logger) *Service {
	return &Service{
		db:        db,
		registry:  registry,
		tasks:     taskRepo,
		dataDir:   dataDir,
		startedAt: time.Now(),
		log:       log.With().Str("service", "health").Logger(),
	}
}

// Report gathers all health signals. Provider and host failures degrade the
// status but never error the endpoint.
func (s *Service) Report(ctx context.Context) *Report {
	report := &Report{
		Status:     "ok",
		UptimeSecs: time.Since(s.startedAt).Seconds(),
		System: SystemHealth{
			NumCPU:       runtime.NumCPU(),
			NumGoroutine: runtime.NumGoroutine(),
		},
	}

	if err := s.db.HealthCheck(ctx); err != nil {
		report.Database = DatabaseHealth{OK: false, Error: err.Error()}
		report.Status = "degraded"
	} else {
		report.Database = DatabaseHealth{OK: true}
	}

	report.Providers = s.registry.Statuses(ctx)
	healthyProvider := false
	for _, status := range report.Providers {
		if status.OK {
			healthyProvider = true
			break
		}
	}
	if !healthyProvider && len(report.Providers) > 0 {
		report.Status = "degraded"
	}

	if depth, err := s.tasks.QueueDepth(); err == nil {
		report.QueueDepth = depth
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		report.System.MemUsedPercent = vm.UsedPercent
	}
	if usage, err := disk.UsageWithContext(ctx, s.dataDir); err == nil {
		report.System.DiskFreeBytes = usage.Free
	}

	return report
}
