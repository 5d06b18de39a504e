package reliability

import (
	"context"
	"time"

	"github.com/datanger/workbench/internal/database"
	"github.com/rs/zerolog"
)

// MaintenanceJob is the nightly housekeeping pass: integrity check, WAL
// checkpoint and a fresh backup. Wired into the cron scheduler.
type MaintenanceJob struct {
	db     *database.DB
	backup *BackupService
	log    zerolog.Logger
}

// NewMaintenanceJob creates the maintenance job.
func NewMaintenanceJob(db *database.DB, backup *BackupService, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:     db,
		backup: backup,
		log:    log.With().Str("job", "maintenance").Logger(),
	}
}

// Run executes one maintenance pass. Failures are logged, not returned, so
// the scheduler keeps the job alive.
func (j *MaintenanceJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("Integrity check failed, skipping backup")
		return
	}
	if err := j.db.WALCheckpoint("PASSIVE"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}
	if j.backup != nil {
		if _, err := j.backup.Run(ctx); err != nil {
			j.log.Error().Err(err).Msg("Scheduled backup failed")
		}
	}
	j.log.Info().Dur("duration", time.Since(start)).Msg("Maintenance finished")
}
