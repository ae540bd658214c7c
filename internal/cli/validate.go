package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/compat"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Program string
}

// UnresolvedTarget is a manifest entry whose target is not in the program.
type UnresolvedTarget struct {
	Mod    string `json:"mod"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool               `json:"valid"`
	Mods       int                `json:"mods"`
	Requests   int                `json:"requests"`
	Unresolved []UnresolvedTarget `json:"unresolved,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <manifest-dir>",
		Short: "Validate a manifest without patching",
		Long: `Validate a CUE patch manifest against the manifest schema.

With --program, every target is also resolved against the program and
the stock model, without installing anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Program, "program", "", "resolve targets against this program file")

	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	m, err := loadManifest(f, dir)
	if err != nil {
		return err
	}
	requests := m.Requests()
	result := ValidationResult{Valid: true, Mods: len(m.Mods), Requests: len(requests)}

	if opts.Program != "" {
		ws, err := openWorkspace(opts.Program, 0)
		if err != nil {
			return err
		}
		for _, r := range requests {
			if err := ws.resolve(r); err != nil {
				result.Unresolved = append(result.Unresolved, UnresolvedTarget{
					Mod:    r.Mod,
					Kind:   string(r.Kind),
					Target: r.Target,
					Reason: err.Error(),
				})
			}
		}
		result.Valid = len(result.Unresolved) == 0
	}

	status := "ok"
	if !result.Valid {
		status = "error"
	}
	if err := f.Emit(status, "", result, func(w io.Writer) { writeValidateText(w, result) }); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d target(s) not found", len(result.Unresolved)))
	}
	return nil
}

// resolve looks r's target up without patching it.
func (w *workspace) resolve(r compat.Request) error {
	if r.Kind == compat.KindSystemRandCtor {
		_, err := w.model.Reg.TypeByName(r.Target)
		return err
	}
	_, err := w.model.Reg.Method(r.Target)
	return err
}

func writeValidateText(w io.Writer, r ValidationResult) {
	if r.Valid {
		fmt.Fprintf(w, "✓ Validation passed (%d mods, %d requests)\n", r.Mods, r.Requests)
		return
	}
	fmt.Fprintf(w, "✗ Validation failed: %d of %d target(s) not found\n", len(r.Unresolved), r.Requests)
	for _, u := range r.Unresolved {
		fmt.Fprintf(w, "  %s %s (%s): %s\n", u.Kind, u.Target, u.Mod, u.Reason)
	}
}
