package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/compat"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// DisasmOptions holds flags for the disasm command.
type DisasmOptions struct {
	*RootOptions
	Program  string
	Manifest string
	Mods     []string
}

// DisasmResult is the code of one method.
type DisasmResult struct {
	Method  string `json:"method"`
	Patched bool   `json:"patched"`
	Code    string `json:"code"`
}

// NewDisasmCommand creates the disasm command.
func NewDisasmCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DisasmOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "disasm <method>",
		Short: "Print the code of a method",
		Long: `Print the instruction listing of a program method, given as
"Namespace.Type:Method" or "Namespace.Type:Method(params)".

With --manifest, the manifest is applied first and the patched code is
printed.

Examples:
  mpcompat disasm --program mods/dice.yaml "Dice.Cup:Roll"
  mpcompat disasm --program mods/colony.yaml --manifest ./manifest "Colony.Turret:Tick"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDisasm(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Program, "program", "", "program file (required)")
	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "apply this manifest before disassembling")
	cmd.Flags().StringSliceVar(&opts.Mods, "mods", nil, "running mods (default: every mod in the manifest)")
	_ = cmd.MarkFlagRequired("program")

	return cmd
}

func runDisasm(opts *DisasmOptions, spec string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	ws, err := openWorkspace(opts.Program, 0)
	if err != nil {
		return err
	}

	if opts.Manifest != "" {
		m, err := loadManifest(f, opts.Manifest)
		if err != nil {
			return err
		}
		catalog := compat.NewCatalog()
		if err := m.Register(catalog); err != nil {
			return WrapExitError(ExitCommandError, "failed to register mods", err)
		}
		act := catalog.Activate(ws.env, selectMods(m, opts.Mods))
		f.VerboseLog("Applied %d request(s), %d failed", act.Patch.Applied, len(act.Patch.Failed))
	}

	method, err := ws.model.Reg.Method(spec)
	if err != nil {
		return WrapExitError(ExitFailure, "method not found", err)
	}
	code, ok := ws.patcher.EffectiveCode(method)
	if !ok {
		return NewExitError(ExitFailure, fmt.Sprintf("%s has a native body", method.Descriptor()))
	}

	result := DisasmResult{
		Method:  method.Descriptor(),
		Patched: ws.patcher.IsPatched(method),
		Code:    il.Disassemble(code),
	}
	return f.Emit("ok", ws.env.RunID(), result, func(w io.Writer) { io.WriteString(w, result.Code) })
}
