package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/patch"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning  RunStatus = "running"
	StatusComplete RunStatus = "complete"
	StatusFailed   RunStatus = "failed"
)

// Run is one activation of a manifest.
type Run struct {
	ID       string
	Seq      int64
	Manifest string
	Mods     []string
	Status   RunStatus

	// Installs and Diagnostics are totals filled in by FinishRun.
	Installs    int
	Diagnostics int
}

// Install records one successful patch install.
type Install struct {
	RunID       string
	Seq         int64
	Method      string
	Owner       string
	BeforeHash  string
	AfterHash   string
	Prefixes    int
	Postfixes   int
	Finalizers  int
	Transpilers int
}

// Diagnostic records one reported problem.
type Diagnostic struct {
	RunID   string
	Seq     int64
	Code    patch.Code
	Method  string
	Message string
}

// BeginRun inserts a run in the running state. Its Seq is one past the
// highest existing run.
func (s *Store) BeginRun(ctx context.Context, id, manifest string, mods []string) (Run, error) {
	if mods == nil {
		mods = []string{}
	}
	modsJSON, err := json.Marshal(mods)
	if err != nil {
		return Run{}, fmt.Errorf("begin run: marshal mods: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("begin run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return Run{}, fmt.Errorf("begin run: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, seq, manifest, mods, status)
		VALUES (?, ?, ?, ?, ?)
	`, id, seq, manifest, string(modsJSON), string(StatusRunning))
	if err != nil {
		return Run{}, fmt.Errorf("begin run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("begin run: commit: %w", err)
	}

	return Run{ID: id, Seq: seq, Manifest: manifest, Mods: mods, Status: StatusRunning}, nil
}

// FinishRun sets the final status and totals of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			status = ?,
			installs = (SELECT COUNT(*) FROM installs WHERE run_id = ?),
			diagnostics = (SELECT COUNT(*) FROM diagnostics WHERE run_id = ?)
		WHERE id = ?
	`, string(status), id, id, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// WriteInstall inserts an install record.
// Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency.
func (s *Store) WriteInstall(ctx context.Context, in Install) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO installs
		(run_id, seq, method, owner, before_hash, after_hash, prefixes, postfixes, finalizers, transpilers)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		in.RunID,
		in.Seq,
		in.Method,
		in.Owner,
		in.BeforeHash,
		in.AfterHash,
		in.Prefixes,
		in.Postfixes,
		in.Finalizers,
		in.Transpilers,
	)
	if err != nil {
		return fmt.Errorf("write install: %w", err)
	}
	return nil
}

// WriteDiagnostic inserts a diagnostic record.
// Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency.
func (s *Store) WriteDiagnostic(ctx context.Context, d Diagnostic) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO diagnostics (run_id, seq, code, method, message)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`, d.RunID, d.Seq, string(d.Code), d.Method, d.Message)
	if err != nil {
		return fmt.Errorf("write diagnostic: %w", err)
	}
	return nil
}
