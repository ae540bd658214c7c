package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/compat"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/game"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/manifest"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/rng"
)

// workspace is a stock model with one program loaded and an Env over it.
type workspace struct {
	model   *game.Model
	program *game.Program
	patcher *host.Patcher
	env     *compat.Env
}

// openWorkspace loads the program at path. seed 0 uses rng.DefaultSeed.
func openWorkspace(path string, seed uint64) (*workspace, error) {
	if path == "" {
		return nil, NewExitError(ExitCommandError, "--program is required")
	}
	if seed == 0 {
		seed = rng.DefaultSeed
	}
	gen := rng.NewRand(seed)

	model, err := game.Load(host.NewRegistry(), gen)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load model", err)
	}
	prog, err := game.LoadProgramFile(model.Reg, path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load program", err)
	}

	patcher := host.NewPatcher(model.Reg, host.WithPatcherLogger(slog.Default()))
	env, err := compat.NewEnv(model, patcher, gen, compat.WithLogger(slog.Default()))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to set up patching", err)
	}
	slog.Debug("program loaded", "path", path, "mod", prog.Mod, "types", len(prog.Types), "run", env.RunID())

	return &workspace{model: model, program: prog, patcher: patcher, env: env}, nil
}

// patchedMethods lists the descriptors of every patched method, sorted.
func (w *workspace) patchedMethods() []string {
	out := []string{}
	for _, m := range w.patcher.PatchedMethods() {
		out = append(out, m.Descriptor())
	}
	sort.Strings(out)
	return out
}

// diagnosticCounts groups the env's diagnostics by code.
func (w *workspace) diagnosticCounts() map[string]int {
	counts := map[string]int{}
	for _, d := range w.env.Diagnostics() {
		counts[string(d.Code)]++
	}
	return counts
}

// loadManifest loads dir and maps load errors to exit codes: a manifest
// that was read but is wrong is a failure, anything else a command error.
func loadManifest(f *OutputFormatter, dir string) (*manifest.Manifest, error) {
	m, err := manifest.Load(dir)
	if err == nil {
		f.VerboseLog("Loaded %d mod(s) from %s", len(m.Mods), dir)
		return m, nil
	}

	code, msg := manifest.ErrCodeGeneric, err.Error()
	var le *manifest.LoadError
	if errors.As(err, &le) {
		code, msg = le.Code, le.Message
		if le.Pos.IsValid() {
			msg = fmt.Sprintf("%s:%d:%d: %s", le.Pos.Filename(), le.Pos.Line(), le.Pos.Column(), le.Message)
		}
	}
	_ = f.Error(code, msg, nil)

	exit := ExitCommandError
	if code == manifest.ErrCodeSchema || code == manifest.ErrCodeEntry {
		exit = ExitFailure
	}
	return nil, NewExitError(exit, fmt.Sprintf("%s: %s", code, msg))
}

// selectMods returns mods, or every mod of m when mods is empty. Unknown
// ids are logged.
func selectMods(m *manifest.Manifest, mods []string) []string {
	if len(mods) == 0 {
		return m.ModIDs()
	}
	known := make(map[string]bool)
	for _, id := range m.ModIDs() {
		known[id] = true
	}
	for _, id := range mods {
		if !known[id] {
			slog.Warn("mod not in manifest", "mod", id)
		}
	}
	return mods
}
