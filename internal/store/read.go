package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/patch"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, seq, manifest, mods, status, installs, diagnostics`

// Runs returns every run ordered by seq.
//
// Returns an empty slice (not nil) if the store holds no runs.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Run returns the run with the given ID.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return r, err
}

// LatestRun returns the run with the highest seq.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq DESC LIMIT 1`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return r, err
}

// Installs returns the installs of a run ordered by seq.
func (s *Store) Installs(ctx context.Context, runID string) ([]Install, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, method, owner, before_hash, after_hash, prefixes, postfixes, finalizers, transpilers
		FROM installs
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query installs: %w", err)
	}
	defer rows.Close()

	installs := []Install{}
	for rows.Next() {
		var in Install
		if err := rows.Scan(&in.RunID, &in.Seq, &in.Method, &in.Owner, &in.BeforeHash, &in.AfterHash,
			&in.Prefixes, &in.Postfixes, &in.Finalizers, &in.Transpilers); err != nil {
			return nil, fmt.Errorf("scan install: %w", err)
		}
		installs = append(installs, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate installs: %w", err)
	}
	return installs, nil
}

// Diagnostics returns the diagnostics of a run ordered by seq.
func (s *Store) Diagnostics(ctx context.Context, runID string) ([]Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, code, method, message
		FROM diagnostics
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	diags := []Diagnostic{}
	for rows.Next() {
		var (
			d    Diagnostic
			code string
		)
		if err := rows.Scan(&d.RunID, &d.Seq, &code, &d.Method, &d.Message); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Code = patch.Code(code)
		diags = append(diags, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostics: %w", err)
	}
	return diags, nil
}

// CountByCode returns how many diagnostics of each code a run produced.
func (s *Store) CountByCode(ctx context.Context, runID string) (map[patch.Code]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, COUNT(*)
		FROM diagnostics
		WHERE run_id = ?
		GROUP BY code
		ORDER BY code ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query diagnostic counts: %w", err)
	}
	defer rows.Close()

	counts := map[patch.Code]int{}
	for rows.Next() {
		var (
			code string
			n    int
		)
		if err := rows.Scan(&code, &n); err != nil {
			return nil, fmt.Errorf("scan diagnostic count: %w", err)
		}
		counts[patch.Code(code)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostic counts: %w", err)
	}
	return counts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r            Run
		mods, status string
	)
	if err := row.Scan(&r.ID, &r.Seq, &r.Manifest, &mods, &status, &r.Installs, &r.Diagnostics); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(mods), &r.Mods); err != nil {
		return Run{}, fmt.Errorf("unmarshal mods: %w", err)
	}
	r.Status = RunStatus(status)
	return r, nil
}
