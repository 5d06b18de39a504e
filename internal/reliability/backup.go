// Package reliability keeps the single SQLite database safe: periodic local
// backups with retention, optional S3 upload, and scheduled maintenance.
package reliability

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/datanger/workbench/internal/config"
	"github.com/datanger/workbench/internal/database"
	"github.com/rs/zerolog"
)

const backupPrefix = "workbench-backup-"
const backupTimeLayout = "2006-01-02-150405"

// BackupInfo describes one local backup file.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
	Checksum  string    `json:"checksum,omitempty"`
}

// BackupService copies the database to the backup directory and prunes old
// copies. When an S3 client is configured each backup is also uploaded.
type BackupService struct {
	db  *database.DB
	cfg config.BackupConfig
	s3  *S3Client
	log zerolog.Logger
}

// NewBackupService creates the backup service. s3 may be nil.
func NewBackupService(db *database.DB, cfg config.BackupConfig, s3 *S3Client, log zerolog.Logger) *BackupService {
	return &BackupService{
		db:  db,
		cfg: cfg,
		s3:  s3,
		log: log.With().Str("service", "backup").Logger(),
	}
}

// Run checkpoints the WAL, copies the database file into the backup
// directory and prunes local copies beyond the retention count.
func (s *BackupService) Run(ctx context.Context) (*BackupInfo, error) {
	start := time.Now()
	if err := os.MkdirAll(s.cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	// Fold the WAL into the main file so the copy is self-contained.
	if err := s.db.WALCheckpoint("TRUNCATE"); err != nil {
		return nil, err
	}

	timestamp := time.Now().UTC()
	filename := backupPrefix + timestamp.Format(backupTimeLayout) + ".db"
	target := filepath.Join(s.cfg.Dir, filename)

	size, err := copyFile(s.db.Path(), target)
	if err != nil {
		return nil, fmt.Errorf("failed to copy database: %w", err)
	}
	checksum, err := fileChecksum(target)
	if err != nil {
		return nil, err
	}

	info := &BackupInfo{
		Filename:  filename,
		Timestamp: timestamp,
		SizeBytes: size,
		Checksum:  checksum,
	}

	if err := s.prune(); err != nil {
		s.log.Warn().Err(err).Msg("Backup pruning failed")
	}

	if s.s3 != nil {
		file, err := os.Open(target)
		if err != nil {
			return nil, fmt.Errorf("failed to open backup for upload: %w", err)
		}
		defer file.Close()
		if err := s.s3.Upload(ctx, filename, file, size); err != nil {
			s.log.Error().Err(err).Msg("S3 upload failed, local backup kept")
		}
	}

	s.log.Info().Str("filename", filename).Int64("size_bytes", size).
		Dur("duration", time.Since(start)).Msg("Backup completed")
	return info, nil
}

// List returns local backups, newest first.
func (s *BackupService) List() ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	now := time.Now()
	var out []BackupInfo
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, ".db") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), ".db")
		timestamp, err := time.Parse(backupTimeLayout, stamp)
		if err != nil {
			continue
		}
		fileInfo, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, BackupInfo{
			Filename:  name,
			Timestamp: timestamp,
			SizeBytes: fileInfo.Size(),
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// prune removes local backups beyond the configured retention count.
func (s *BackupService) prune() error {
	backups, err := s.List()
	if err != nil {
		return err
	}
	keep := s.cfg.Keep
	if keep < 1 {
		keep = 1
	}
	for _, old := range backups[min(keep, len(backups)):] {
		if err := os.Remove(filepath.Join(s.cfg.Dir, old.Filename)); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", old.Filename, err)
		}
		s.log.Info().Str("filename", old.Filename).Msg("Pruned old backup")
	}
	return nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	size, err := io.Copy(out, in)
	if err != nil {
		return 0, err
	}
	return size, out.Sync()
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}
