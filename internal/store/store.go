package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migration moves the run log from version-1 to version.
type migration struct {
	version int
	name    string
	stmt    string
}

// migrations are applied in order, each in its own transaction. The
// database's user_version is the last one applied.
var migrations = []migration{
	{version: 1, name: "run log tables", stmt: schemaSQL},
	{version: 2, name: "diagnostics by code", stmt: `
		CREATE INDEX IF NOT EXISTS idx_diagnostics_run_code ON diagnostics(run_id, code)`},
	{version: 3, name: "installs by method", stmt: `
		CREATE INDEX IF NOT EXISTS idx_installs_run_method ON installs(run_id, method)`},
}

// SchemaVersion is the version Open migrates to.
var SchemaVersion = migrations[len(migrations)-1].version

// runLogTables must all exist once migrations have run.
var runLogTables = []string{"runs", "installs", "diagnostics"}

// connPragmas hold for every connection; the pool is a single connection.
var connPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// Store is the run log: one row per patch run, plus every install and
// diagnostic the run produced.
type Store struct {
	db *sql.DB
}

// Health describes an open run log.
type Health struct {
	Version     int
	JournalMode string
	ForeignKeys bool
}

// Open opens the run log at path, creating it if needed, and migrates it to
// SchemaVersion. ":memory:" gives a private in-memory log.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("open run log %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	for _, p := range connPragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	if err := s.migrate(ctx); err != nil {
		return err
	}
	return s.checkTables(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("schema version %d is newer than %d", current, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func (s *Store) checkTables(ctx context.Context) error {
	var missing []string
	for _, name := range runLogTables {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
		if err != nil {
			return fmt.Errorf("check table %s: %w", name, err)
		}
		if n == 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("not a run log: missing tables %s", strings.Join(missing, ", "))
	}
	return nil
}

// Health reports the schema version and connection settings.
func (s *Store) Health(ctx context.Context) (Health, error) {
	var h Health
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&h.Version); err != nil {
		return h, fmt.Errorf("health: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&h.JournalMode); err != nil {
		return h, fmt.Errorf("health: %w", err)
	}
	var fk int
	if err := s.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		return h, fmt.Errorf("health: %w", err)
	}
	h.ForeignKeys = fk == 1
	return h, nil
}

// Close closes the run log.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
