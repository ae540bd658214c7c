package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/patch"
)

// Recorder writes the installs and diagnostics of one run. It is a
// patch.Reporter and its RecordInstall fits host.Patcher.OnInstall.
//
// Installs and diagnostics share one seq counter so the interleaving can be
// reconstructed. Write failures are logged and kept; Err returns the first.
type Recorder struct {
	ctx   context.Context
	store *Store
	runID string

	mu  sync.Mutex
	seq int64
	err error
}

// NewRecorder returns a recorder for runID.
func (s *Store) NewRecorder(ctx context.Context, runID string) *Recorder {
	return &Recorder{ctx: ctx, store: s, runID: runID}
}

// RunID returns the run being recorded.
func (r *Recorder) RunID() string { return r.runID }

// Report records d.
func (r *Recorder) Report(d patch.Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.keep(r.store.WriteDiagnostic(r.ctx, Diagnostic{
		RunID:   r.runID,
		Seq:     r.seq,
		Code:    d.Code,
		Method:  d.Method,
		Message: d.Message,
	}))
}

// RecordInstall records ev with fingerprints of the code before and after.
func (r *Recorder) RecordInstall(ev host.InstallEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.keep(r.store.WriteInstall(r.ctx, Install{
		RunID:       r.runID,
		Seq:         r.seq,
		Method:      ev.Method.Descriptor(),
		Owner:       ev.Owner,
		BeforeHash:  il.Fingerprint(ev.Before),
		AfterHash:   il.Fingerprint(ev.After),
		Prefixes:    ev.Prefixes,
		Postfixes:   ev.Postfixes,
		Finalizers:  ev.Finalizers,
		Transpilers: ev.Transpilers,
	}))
}

// Err returns the first write failure.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) keep(err error) {
	if err == nil {
		return
	}
	slog.Error("failed to record patch run", "run", r.runID, "seq", r.seq, "error", err)
	if r.err == nil {
		r.err = err
	}
}
