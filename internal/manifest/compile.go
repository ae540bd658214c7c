package manifest

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/compat"
)

// Manifest is a compiled set of mod patch lists.
type Manifest struct {
	// Mods is sorted by ID.
	Mods  []Mod
	Audit compat.AuditConfig
}

// Mod is the patch list of one mod.
type Mod struct {
	ID       string
	Name     string
	Requests []compat.Request
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

// CompileString compiles a single manifest source. filename is used in
// error positions.
func CompileString(src, filename string) (*Manifest, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return Compile(v)
}

// Compile validates v against the manifest schema and extracts it.
func Compile(v cue.Value) (*Manifest, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := v.Context().CompileString(schemaSource, cue.Filename("manifest-schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("manifest schema: %w", err)
	}
	if err := schema.LookupPath(cue.ParsePath("#Manifest")).Unify(v).Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &Manifest{Audit: compat.AuditConfig{Replace: true}}

	modsVal := v.LookupPath(cue.ParsePath("mods"))
	if modsVal.Exists() {
		iter, err := modsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			mod, err := compileMod(iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				return nil, err
			}
			m.Mods = append(m.Mods, mod)
		}
	}
	sort.Slice(m.Mods, func(i, j int) bool { return m.Mods[i].ID < m.Mods[j].ID })

	auditVal := v.LookupPath(cue.ParsePath("audit"))
	if auditVal.Exists() {
		if err := compileAudit(auditVal, &m.Audit); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// compileMod reads the entry lists in kind order.
func compileMod(id string, v cue.Value) (Mod, error) {
	mod := Mod{ID: id}

	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return mod, formatCUEError(err)
		}
		mod.Name = name
	}

	for _, kind := range compat.Kinds() {
		list := v.LookupPath(cue.MakePath(cue.Str(string(kind))))
		if !list.Exists() {
			continue
		}
		iter, err := list.List()
		if err != nil {
			return mod, formatCUEError(err)
		}
		for iter.Next() {
			r, err := compileEntry(id, kind, iter.Value())
			if err != nil {
				return mod, err
			}
			mod.Requests = append(mod.Requests, r)
		}
	}
	return mod, nil
}

// compileEntry accepts a bare "Type:Method" string or a struct with the
// method and optional flags.
func compileEntry(mod string, kind compat.Kind, v cue.Value) (compat.Request, error) {
	if s, err := v.String(); err == nil {
		if s == "" {
			return compat.Request{}, &CompileError{Field: string(kind), Message: "method must not be empty", Pos: v.Pos()}
		}
		return compat.NewRequest(mod, kind, s), nil
	}

	methodVal := v.LookupPath(cue.ParsePath("method"))
	if !methodVal.Exists() {
		return compat.Request{}, &CompileError{
			Field:   string(kind),
			Message: "entry must be a string or a struct with a method field",
			Pos:     v.Pos(),
		}
	}
	method, err := methodVal.String()
	if err != nil {
		return compat.Request{}, formatCUEError(err)
	}
	if method == "" {
		return compat.Request{}, &CompileError{Field: string(kind) + ".method", Message: "method must not be empty", Pos: methodVal.Pos()}
	}

	r := compat.NewRequest(mod, kind, method)
	flags := []struct {
		name string
		dst  *bool
	}{
		{"push_pop", &r.PushPop},
		{"log_if_nothing_patched", &r.LogIfNothingPatched},
		{"log_if_missing", &r.LogIfMissing},
	}
	for _, f := range flags {
		if err := optionalBool(v, f.name, f.dst); err != nil {
			return compat.Request{}, err
		}
	}
	return r, nil
}

func compileAudit(v cue.Value, cfg *compat.AuditConfig) error {
	for _, f := range []struct {
		name string
		dst  *bool
	}{
		{"enabled", &cfg.Enabled},
		{"replace", &cfg.Replace},
		{"log", &cfg.Log},
	} {
		if err := optionalBool(v, f.name, f.dst); err != nil {
			return err
		}
	}

	if w := v.LookupPath(cue.ParsePath("workers")); w.Exists() {
		n, err := w.Int64()
		if err != nil {
			return formatCUEError(err)
		}
		cfg.Workers = int(n)
	}

	if ns := v.LookupPath(cue.ParsePath("excluded_namespaces")); ns.Exists() {
		iter, err := ns.List()
		if err != nil {
			return formatCUEError(err)
		}
		cfg.ExcludedNamespaces = []string{}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return formatCUEError(err)
			}
			cfg.ExcludedNamespaces = append(cfg.ExcludedNamespaces, s)
		}
	}
	return nil
}

func optionalBool(v cue.Value, name string, dst *bool) error {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return nil
	}
	b, err := f.Bool()
	if err != nil {
		return formatCUEError(err)
	}
	*dst = b
	return nil
}

// Requests returns the requests of the given mods in mod ID order. With no
// ids, every mod is included.
func (m *Manifest) Requests(ids ...string) []compat.Request {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []compat.Request
	for _, mod := range m.Mods {
		if len(ids) > 0 && !want[mod.ID] {
			continue
		}
		out = append(out, mod.Requests...)
	}
	return out
}

// ModIDs lists the mods the manifest covers.
func (m *Manifest) ModIDs() []string {
	ids := make([]string, len(m.Mods))
	for i, mod := range m.Mods {
		ids[i] = mod.ID
	}
	return ids
}

// Register adds one module per mod to c. Each module's setup enqueues the
// mod's requests.
func (m *Manifest) Register(c *compat.Catalog) error {
	for _, mod := range m.Mods {
		requests := mod.Requests
		if err := c.Register(compat.Module{
			Name: mod.ID,
			Setup: func(env *compat.Env) error {
				env.Enqueue(requests...)
				return nil
			},
		}); err != nil {
			return err
		}
	}
	return nil
}
