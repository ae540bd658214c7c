package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/compat"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/rng"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Program   string
	Exclude   []string
	Workers   int
	NoReplace bool
	Log       bool
	Seed      uint64
}

// AuditResult is the JSON form of a sweep report.
type AuditResult struct {
	Types   int      `json:"types"`
	Patched []string `json:"patched"`
	Fields  []string `json:"fields"`
	Failed  []string `json:"failed"`
}

func newAuditResult(r *rng.SweepReport) *AuditResult {
	nonNil := func(s []string) []string {
		if s == nil {
			return []string{}
		}
		return s
	}
	return &AuditResult{
		Types:   r.Types,
		Patched: nonNil(r.Patched),
		Fields:  nonNil(r.Fields),
		Failed:  nonNil(r.Failed),
	}
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Sweep a program for unsynchronized random generators",
		Long: `Sweep every loaded type outside the excluded namespaces, redirect
System.Random construction and UnityEngine.Random calls to the shared
deterministic generator, and install the runtime call gate.

Exit codes:
  0 - Sweep complete, every rewrite installed
  1 - One or more methods could not be rewritten
  2 - Command error

Examples:
  mpcompat audit --program mods/colony.yaml
  mpcompat audit --program mods/colony.yaml --exclude Harmony,Colony.Ui --workers 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("exclude") {
				opts.Exclude = nil
			}
			return runAudit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Program, "program", "", "program file to sweep (required)")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "namespaces to skip (replaces the default list)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent type sweeps (default: GOMAXPROCS)")
	cmd.Flags().BoolVar(&opts.NoReplace, "no-replace", false, "leave untrusted draws on the stock generator")
	cmd.Flags().BoolVar(&opts.Log, "log", false, "log untrusted draws")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "generator seed (default: built-in seed)")
	_ = cmd.MarkFlagRequired("program")

	return cmd
}

func runAudit(opts *AuditOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	ws, err := openWorkspace(opts.Program, opts.Seed)
	if err != nil {
		return err
	}

	report, err := ws.env.Audit(cmd.Context(), compat.AuditConfig{
		Enabled:            true,
		ExcludedNamespaces: opts.Exclude,
		Workers:            opts.Workers,
		Replace:            !opts.NoReplace,
		Log:                opts.Log,
	})
	if report == nil {
		return WrapExitError(ExitCommandError, "audit failed", err)
	}
	result := newAuditResult(report)

	status := "ok"
	failed := err != nil || len(result.Failed) > 0
	if failed {
		status = "error"
	}
	if emitErr := f.Emit(status, ws.env.RunID(), result, func(w io.Writer) { writeAuditText(w, *result) }); emitErr != nil {
		return emitErr
	}
	if err != nil {
		return WrapExitError(ExitFailure, "audit incomplete", err)
	}
	if failed {
		return NewExitError(ExitFailure, fmt.Sprintf("%d method(s) could not be rewritten", len(result.Failed)))
	}
	return nil
}

func writeAuditText(w io.Writer, r AuditResult) {
	fmt.Fprintf(w, "audit: %d type(s) swept, %d method(s) rewritten, %d field(s) replaced, %d failed\n",
		r.Types, len(r.Patched), len(r.Fields), len(r.Failed))
	for _, m := range r.Patched {
		fmt.Fprintf(w, "  rewritten: %s\n", m)
	}
	for _, fld := range r.Fields {
		fmt.Fprintf(w, "  field: %s\n", fld)
	}
	for _, m := range r.Failed {
		fmt.Fprintf(w, "  failed: %s\n", m)
	}
}
