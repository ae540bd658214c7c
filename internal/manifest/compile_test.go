package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/compat"
)

const sampleManifest = `
mods: "vanilla.furniture": {
	name: "Vanilla Furniture Expanded"
	system_rand: ["VFE.Spawner:Roll"]
	current_map: [
		"VFE.Turret:Tick",
		{method: "VFE.Lamp:Glow", log_if_nothing_patched: false},
	]
}
mods: "alpha.animals": {
	unity_rand: [{method: "AA.Herd:Scatter", push_pop: false}]
	cancel_in_interface: ["AA.Gizmo:Draw"]
	cancel_if_unsafe: ["AA.Loader:Spawn"]
}
audit: {
	enabled: true
	workers: 4
	excluded_namespaces: ["Harmony"]
}
`

func TestCompileManifest(t *testing.T) {
	m, err := CompileString(sampleManifest, "mods.cue")
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha.animals", "vanilla.furniture"}, m.ModIDs())
	assert.Equal(t, "Vanilla Furniture Expanded", m.Mods[1].Name)

	assert.Equal(t, []compat.Request{
		{Mod: "alpha.animals", Kind: compat.KindUnityRand, Target: "AA.Herd:Scatter", PushPop: false, LogIfNothingPatched: true, LogIfMissing: true},
		compat.NewRequest("alpha.animals", compat.KindCancelInInterface, "AA.Gizmo:Draw"),
		compat.NewRequest("alpha.animals", compat.KindCancelIfUnsafe, "AA.Loader:Spawn"),
	}, m.Mods[0].Requests)

	assert.Equal(t, []compat.Request{
		compat.NewRequest("vanilla.furniture", compat.KindSystemRand, "VFE.Spawner:Roll"),
		compat.NewRequest("vanilla.furniture", compat.KindCurrentMap, "VFE.Turret:Tick"),
		{Mod: "vanilla.furniture", Kind: compat.KindCurrentMap, Target: "VFE.Lamp:Glow", PushPop: true, LogIfNothingPatched: false, LogIfMissing: true},
	}, m.Mods[1].Requests)

	assert.Equal(t, compat.AuditConfig{
		Enabled:            true,
		Workers:            4,
		ExcludedNamespaces: []string{"Harmony"},
		Replace:            true,
	}, m.Audit)
}

func TestCompileEmptyManifest(t *testing.T) {
	m, err := CompileString(``, "empty.cue")
	require.NoError(t, err)
	assert.Empty(t, m.Mods)
	assert.Equal(t, compat.AuditConfig{Replace: true}, m.Audit)
}

func TestRequestsFiltersByMod(t *testing.T) {
	m, err := CompileString(sampleManifest, "mods.cue")
	require.NoError(t, err)

	assert.Len(t, m.Requests(), 6)
	reqs := m.Requests("vanilla.furniture", "not.loaded")
	require.Len(t, reqs, 3)
	for _, r := range reqs {
		assert.Equal(t, "vanilla.furniture", r.Mod)
	}
}

func TestCompileRejectsUnknownKind(t *testing.T) {
	_, err := CompileString(`
mods: "some.mod": {
	sytem_rand: ["A.B:C"]
}
`, "typo.cue")
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "not allowed")
	assert.True(t, ce.Pos.IsValid())
}

func TestCompileRejectsWrongFlagType(t *testing.T) {
	_, err := CompileString(`
audit: workers: "many"
`, "audit.cue")
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Pos.IsValid())
}

func TestCompileEntryWithoutMethod(t *testing.T) {
	_, err := CompileString(`
mods: "some.mod": {
	current_map: [
		"A.B:C",
		{log_if_missing: false},
	]
}
`, "entry.cue")
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "current_map", ce.Field)
	assert.Equal(t, 5, ce.Pos.Line())
	assert.Contains(t, err.Error(), "entry.cue:5:")
}

func TestCompileEmptyMethod(t *testing.T) {
	_, err := CompileString(`mods: "some.mod": push_pop: [""]`, "empty.cue")
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "method must not be empty", ce.Message)
}

func TestRegisterBuildsCatalog(t *testing.T) {
	m, err := CompileString(sampleManifest, "mods.cue")
	require.NoError(t, err)

	c := compat.NewCatalog()
	require.NoError(t, m.Register(c))
	mods := c.Modules()
	require.Len(t, mods, 2)
	assert.Equal(t, "alpha.animals", mods[0].Name)

	assert.ErrorIs(t, m.Register(c), compat.ErrDuplicateModule)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"), []byte(`package mods

mods: "some.mod": system_rand: ["A.B:C"]
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.cue"), []byte(`package mods

mods: "other.mod": current_map: ["D.E:F"]
audit: enabled: true
`), 0644))

	m, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"other.mod", "some.mod"}, m.ModIDs())
	assert.True(t, m.Audit.Enabled)
}

func TestLoadErrors(t *testing.T) {
	var le *LoadError

	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNotFound, le.Code)

	empty := t.TempDir()
	_, err = Load(empty)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNoFiles, le.Code)

	bad := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, "bad.cue"), []byte(`package mods

mods: "some.mod": unity_rand: [{push_pop: true}]
`), 0644))
	_, err = Load(bad)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeEntry, le.Code)
	assert.True(t, le.Pos.IsValid())
}
