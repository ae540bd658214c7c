package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/compat"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/store"
)

// PatchOptions holds flags for the patch command.
type PatchOptions struct {
	*RootOptions
	Program  string
	Database string
	Mods     []string
	Dump     bool
	Seed     uint64
}

// PatchResult is the outcome of one patch run.
type PatchResult struct {
	RunID       string            `json:"run_id"`
	Activated   []string          `json:"activated"`
	Applied     int               `json:"applied"`
	Failed      []string          `json:"failed,omitempty"`
	Diagnostics map[string]int    `json:"diagnostics"`
	Reports     []CLIError        `json:"reports"`
	Patched     []string          `json:"patched"`
	Audit       *AuditResult      `json:"audit,omitempty"`
	Code        map[string]string `json:"code,omitempty"`
}

// NewPatchCommand creates the patch command.
func NewPatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "patch <manifest-dir>",
		Short: "Apply a manifest to a program",
		Long: `Load a program, activate the mods of a CUE manifest against it and
report what was patched.

With --db, the run, every install and every diagnostic are recorded in
a SQLite database for later inspection with "mpcompat report".

Exit codes:
  0 - Every request applied
  1 - A setup or request failed
  2 - Command error (invalid paths, unreadable manifest, etc.)

Examples:
  mpcompat patch --program mods/colony.yaml ./manifest
  mpcompat patch --program mods/colony.yaml --db runs.db --mods colony.mod ./manifest
  mpcompat patch --program mods/colony.yaml --dump --format json ./manifest`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Program, "program", "", "program file to patch (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().StringSliceVar(&opts.Mods, "mods", nil, "running mods (default: every mod in the manifest)")
	cmd.Flags().BoolVar(&opts.Dump, "dump", false, "print the patched code of every patched method")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "generator seed (default: built-in seed)")
	_ = cmd.MarkFlagRequired("program")

	return cmd
}

func runPatch(opts *PatchOptions, dir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := newFormatter(opts.RootOptions, cmd)

	m, err := loadManifest(f, dir)
	if err != nil {
		return err
	}
	ws, err := openWorkspace(opts.Program, opts.Seed)
	if err != nil {
		return err
	}
	mods := selectMods(m, opts.Mods)

	var (
		st  *store.Store
		rec *store.Recorder
	)
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()

		run, err := st.BeginRun(ctx, ws.env.RunID(), dir, mods)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		rec = st.NewRecorder(ctx, run.ID)
		ws.env.AddReporter(rec)
		ws.patcher.OnInstall(rec.RecordInstall)
	}

	catalog := compat.NewCatalog()
	if err := m.Register(catalog); err != nil {
		return WrapExitError(ExitCommandError, "failed to register mods", err)
	}
	act := catalog.Activate(ws.env, mods)

	result := PatchResult{
		RunID:     act.RunID,
		Activated: act.Activated,
		Applied:   act.Patch.Applied,
	}
	if result.Activated == nil {
		result.Activated = []string{}
	}
	for _, se := range act.Failed {
		result.Failed = append(result.Failed, se.Error())
	}
	for _, re := range act.Patch.Failed {
		result.Failed = append(result.Failed, re.Error())
	}

	report, auditErr := ws.env.Audit(ctx, m.Audit)
	if m.Audit.Enabled && report != nil {
		result.Audit = newAuditResult(report)
	}
	if auditErr != nil {
		result.Failed = append(result.Failed, auditErr.Error())
	}

	result.Diagnostics = ws.diagnosticCounts()
	result.Reports = []CLIError{}
	for _, d := range ws.env.Diagnostics() {
		result.Reports = append(result.Reports, NewDiagnosticError(d))
	}
	result.Patched = ws.patchedMethods()
	if opts.Dump {
		result.Code = make(map[string]string, len(result.Patched))
		for _, pm := range ws.patcher.PatchedMethods() {
			if code, ok := ws.patcher.EffectiveCode(pm); ok {
				result.Code[pm.Descriptor()] = il.Disassemble(code)
			}
		}
	}

	failed := len(result.Failed) > 0
	if st != nil {
		status := store.StatusComplete
		if failed {
			status = store.StatusFailed
		}
		if err := st.FinishRun(ctx, result.RunID, status); err != nil {
			return WrapExitError(ExitCommandError, "failed to finish run", err)
		}
		if err := rec.Err(); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		slog.Info("run recorded", "run", result.RunID, "db", opts.Database, "status", string(status))
	}

	status := "ok"
	if failed {
		status = "error"
	}
	if err := f.Emit(status, result.RunID, result, func(w io.Writer) { writePatchText(w, result) }); err != nil {
		return err
	}
	if failed {
		return NewExitError(ExitFailure, fmt.Sprintf("%d request(s) failed", len(result.Failed)))
	}
	return nil
}

func writePatchText(w io.Writer, r PatchResult) {
	mark := "✓"
	if len(r.Failed) > 0 {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s run %s: %d mod(s) activated, %d request(s) applied, %d failed\n",
		mark, r.RunID, len(r.Activated), r.Applied, len(r.Failed))
	for _, e := range r.Failed {
		fmt.Fprintf(w, "  failed: %s\n", e)
	}
	for _, name := range r.Patched {
		fmt.Fprintf(w, "  patched: %s\n", name)
	}

	codes := make([]string, 0, len(r.Diagnostics))
	for code := range r.Diagnostics {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %s: %d\n", code, r.Diagnostics[code])
	}
	for _, e := range r.Reports {
		fmt.Fprintf(w, "  [%s] %s\n", e.Code, e.Message)
	}

	if r.Audit != nil {
		writeAuditText(w, *r.Audit)
	}
	for _, name := range r.Patched {
		if code, ok := r.Code[name]; ok {
			fmt.Fprintf(w, "\n; %s\n%s", name, code)
		}
	}
}

// requireFile fails with a command error when path does not exist.
func requireFile(path, what string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s not found: %s", what, path))
	}
	return nil
}
