package compat

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrDuplicateModule is returned when a name is registered twice.
	ErrDuplicateModule = errors.New("module already registered")
	// ErrInvalidModule is returned for a module without a name or setup.
	ErrInvalidModule = errors.New("invalid module")
)

// Module is the compatibility glue for one mod. Name is the mod's package
// id and is matched case-insensitively.
type Module struct {
	Name  string
	Setup func(env *Env) error
}

// Catalog holds the known modules.
type Catalog struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{modules: make(map[string]Module)}
}

func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Register adds m.
func (c *Catalog) Register(m Module) error {
	key := normalize(m.Name)
	if key == "" || m.Setup == nil {
		return fmt.Errorf("%q: %w", m.Name, ErrInvalidModule)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.modules[key]; ok {
		return fmt.Errorf("%q: %w", m.Name, ErrDuplicateModule)
	}
	c.modules[key] = m
	return nil
}

// Lookup returns the module registered under name.
func (c *Catalog) Lookup(name string) (Module, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.modules[normalize(name)]
	return m, ok
}

// Modules lists the registered modules sorted by name.
func (c *Catalog) Modules() []Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Module, 0, len(c.modules))
	for _, m := range c.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return normalize(out[i].Name) < normalize(out[j].Name) })
	return out
}

// SetupError is a module whose setup failed or panicked.
type SetupError struct {
	Module string
	Err    error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %s: %v", e.Module, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// Activation is the outcome of one Activate.
type Activation struct {
	RunID     string
	Activated []string
	Failed    []*SetupError
	Patch     PatchSummary
}

// Activate runs the setup of every module whose name is in running, in name
// order, then drains the request queue. A failing or panicking setup is
// logged and skipped; its queued requests still apply.
func (c *Catalog) Activate(env *Env, running []string) Activation {
	act := Activation{RunID: env.RunID()}

	active := make(map[string]bool, len(running))
	for _, name := range running {
		active[normalize(name)] = true
	}

	for _, m := range c.Modules() {
		if !active[normalize(m.Name)] {
			continue
		}
		if err := runSetup(m, env); err != nil {
			env.Logger().Error("module setup failed", "run", act.RunID, "module", m.Name, "error", err)
			act.Failed = append(act.Failed, &SetupError{Module: m.Name, Err: err})
			continue
		}
		env.Logger().Info("module activated", "run", act.RunID, "module", m.Name)
		act.Activated = append(act.Activated, m.Name)
	}

	act.Patch = env.PatchAll()
	return act
}

func runSetup(m Module, env *Env) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return m.Setup(env)
}
