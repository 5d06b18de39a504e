package database

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies all embedded migration scripts that have not run yet.
// Scripts are ordered by their numeric filename prefix and each runs in its
// own transaction. Applied versions are tracked in schema_migrations.
func (db *DB) Migrate(log zerolog.Logger) error {
	if _, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	type script struct {
		version int
		name    string
	}
	var scripts []script
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return fmt.Errorf("migration %s has no numeric prefix", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return fmt.Errorf("migration %s has invalid version prefix: %w", name, err)
		}
		scripts = append(scripts, script{version: version, name: name})
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].version < scripts[j].version })

	for _, s := range scripts {
		var applied int
		err := db.conn.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, s.version).Scan(&applied)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", s.name, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationFS.ReadFile("migrations/" + s.name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", s.name, err)
		}

		err = WithTransaction(db.conn, func(tx *sql.Tx) error {
			if _, err := tx.Exec(string(content)); err != nil {
				return fmt.Errorf("failed to execute migration %s: %w", s.name, err)
			}
			_, err := tx.Exec(
				`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
				s.version, s.name, time.Now().UTC().Format(time.RFC3339),
			)
			return err
		})
		if err != nil {
			return err
		}
		log.Info().Str("migration", s.name).Msg("Applied migration")
	}

	return nil
}
