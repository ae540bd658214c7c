package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
	RunID    string
	List     bool
}

// RunReport is one recorded run with its installs and diagnostics.
type RunReport struct {
	ID          string             `json:"id"`
	Seq         int64              `json:"seq"`
	Manifest    string             `json:"manifest"`
	Mods        []string           `json:"mods"`
	Status      string             `json:"status"`
	Installs    []InstallRecord    `json:"installs"`
	Diagnostics []DiagnosticRecord `json:"diagnostics"`
	Counts      map[string]int     `json:"counts"`
}

// InstallRecord is the JSON form of a stored install.
type InstallRecord struct {
	Seq         int64  `json:"seq"`
	Method      string `json:"method"`
	Owner       string `json:"owner"`
	Changed     bool   `json:"changed"`
	Prefixes    int    `json:"prefixes"`
	Postfixes   int    `json:"postfixes"`
	Finalizers  int    `json:"finalizers"`
	Transpilers int    `json:"transpilers"`
}

// DiagnosticRecord is the JSON form of a stored diagnostic.
type DiagnosticRecord struct {
	Seq     int64  `json:"seq"`
	Code    string `json:"code"`
	Method  string `json:"method,omitempty"`
	Message string `json:"message"`
}

// RunSummary is one line of the run list.
type RunSummary struct {
	ID          string `json:"id"`
	Seq         int64  `json:"seq"`
	Status      string `json:"status"`
	Installs    int    `json:"installs"`
	Diagnostics int    `json:"diagnostics"`
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show a recorded patch run",
		Long: `Show a run recorded by "mpcompat patch --db": its installs, its
diagnostics and the diagnostic count per code. Without --run, the latest
run is shown.

Examples:
  mpcompat report --db runs.db
  mpcompat report --db runs.db --run 0190a6f2-...
  mpcompat report --db runs.db --list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database written by patch --db (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run to show (default: latest)")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list every run instead")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReport(opts *ReportOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := newFormatter(opts.RootOptions, cmd)

	// Open creates missing files; a report never should.
	if err := requireFile(opts.Database, "database"); err != nil {
		return err
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()
	if h, err := st.Health(ctx); err == nil {
		f.VerboseLog("run log schema v%d, journal %s", h.Version, h.JournalMode)
	}

	if opts.List {
		runs, err := st.Runs(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read runs", err)
		}
		list := make([]RunSummary, 0, len(runs))
		for _, r := range runs {
			list = append(list, RunSummary{ID: r.ID, Seq: r.Seq, Status: string(r.Status), Installs: r.Installs, Diagnostics: r.Diagnostics})
		}
		return f.Emit("ok", "", list, func(w io.Writer) {
			for _, r := range list {
				fmt.Fprintf(w, "%4d  %s  %-8s  %d install(s), %d diagnostic(s)\n", r.Seq, r.ID, r.Status, r.Installs, r.Diagnostics)
			}
		})
	}

	var run store.Run
	if opts.RunID != "" {
		run, err = st.Run(ctx, opts.RunID)
	} else {
		run, err = st.LatestRun(ctx)
	}
	if errors.Is(err, store.ErrRunNotFound) {
		return WrapExitError(ExitFailure, "no such run", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	report, err := buildRunReport(cmd, st, run)
	if err != nil {
		return err
	}
	status := "ok"
	if run.Status == store.StatusFailed {
		status = "error"
	}
	return f.Emit(status, run.ID, report, func(w io.Writer) { writeReportText(w, report) })
}

func buildRunReport(cmd *cobra.Command, st *store.Store, run store.Run) (RunReport, error) {
	ctx := cmd.Context()
	report := RunReport{
		ID:          run.ID,
		Seq:         run.Seq,
		Manifest:    run.Manifest,
		Mods:        run.Mods,
		Status:      string(run.Status),
		Installs:    []InstallRecord{},
		Diagnostics: []DiagnosticRecord{},
		Counts:      map[string]int{},
	}

	installs, err := st.Installs(ctx, run.ID)
	if err != nil {
		return report, WrapExitError(ExitCommandError, "failed to read installs", err)
	}
	for _, in := range installs {
		report.Installs = append(report.Installs, InstallRecord{
			Seq:         in.Seq,
			Method:      in.Method,
			Owner:       in.Owner,
			Changed:     in.BeforeHash != in.AfterHash,
			Prefixes:    in.Prefixes,
			Postfixes:   in.Postfixes,
			Finalizers:  in.Finalizers,
			Transpilers: in.Transpilers,
		})
	}

	diags, err := st.Diagnostics(ctx, run.ID)
	if err != nil {
		return report, WrapExitError(ExitCommandError, "failed to read diagnostics", err)
	}
	for _, d := range diags {
		report.Diagnostics = append(report.Diagnostics, DiagnosticRecord{
			Seq:     d.Seq,
			Code:    string(d.Code),
			Method:  d.Method,
			Message: d.Message,
		})
	}

	counts, err := st.CountByCode(ctx, run.ID)
	if err != nil {
		return report, WrapExitError(ExitCommandError, "failed to count diagnostics", err)
	}
	for code, n := range counts {
		report.Counts[string(code)] = n
	}
	return report, nil
}

func writeReportText(w io.Writer, r RunReport) {
	fmt.Fprintf(w, "run %s (#%d) %s\n", r.ID, r.Seq, r.Status)
	fmt.Fprintf(w, "  manifest: %s\n", r.Manifest)
	fmt.Fprintf(w, "  mods: %v\n", r.Mods)
	fmt.Fprintf(w, "  installs: %d\n", len(r.Installs))
	for _, in := range r.Installs {
		fmt.Fprintf(w, "    %4d  %-20s %s\n", in.Seq, in.Owner, in.Method)
	}

	fmt.Fprintf(w, "  diagnostics: %d\n", len(r.Diagnostics))
	codes := make([]string, 0, len(r.Counts))
	for code := range r.Counts {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "    %s: %d\n", code, r.Counts[code])
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintf(w, "    %4d  %s  %s\n", d.Seq, d.Code, d.Message)
	}
}
