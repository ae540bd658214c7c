package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/compat"
)

// Scenario loads mod code, applies patches to it, invokes the patched
// methods and checks the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is the path of the mod program to load on top of the stock
	// model. Relative paths are resolved against the scenario file.
	Program string `yaml:"program"`

	// Manifest is an optional CUE manifest directory whose requests are
	// activated before Patches.
	Manifest string `yaml:"manifest,omitempty"`

	// Mods restricts the manifest to these mod ids. Empty means all.
	Mods []string `yaml:"mods,omitempty"`

	// Patches are applied in order after the manifest.
	Patches []PatchStep `yaml:"patches,omitempty"`

	// Seed seeds the generator. Zero means rng.DefaultSeed.
	Seed uint64 `yaml:"seed,omitempty"`

	// CurrentMap is the id of the map Find.CurrentMap returns.
	CurrentMap *int `yaml:"current_map,omitempty"`

	// Flow is the list of invocations, run in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final patch state and diagnostics.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// RunID fixes the run id. Defaults to "scenario-run".
	RunID string `yaml:"run_id,omitempty"`
}

// PatchStep is one patch request. Unset flags default to true.
type PatchStep struct {
	Kind                string `yaml:"kind"`
	Method              string `yaml:"method"`
	PushPop             *bool  `yaml:"push_pop,omitempty"`
	LogIfNothingPatched *bool  `yaml:"log_if_nothing_patched,omitempty"`
	LogIfMissing        *bool  `yaml:"log_if_missing,omitempty"`
}

// Request converts the step to a compat request attributed to mod.
func (p PatchStep) Request(mod string) compat.Request {
	r := compat.NewRequest(mod, compat.Kind(p.Kind), p.Method)
	if p.PushPop != nil {
		r.PushPop = *p.PushPop
	}
	if p.LogIfNothingPatched != nil {
		r.LogIfNothingPatched = *p.LogIfNothingPatched
	}
	if p.LogIfMissing != nil {
		r.LogIfMissing = *p.LogIfMissing
	}
	return r
}

// FlowStep invokes one method.
type FlowStep struct {
	// Invoke is the "Type:Method" to call.
	Invoke string `yaml:"invoke"`

	// Receiver creates the instance for instance methods.
	Receiver *ReceiverSpec `yaml:"receiver,omitempty"`

	Args []any `yaml:"args,omitempty"`

	// InInterface runs the call as if from the interface.
	InInterface bool `yaml:"in_interface,omitempty"`

	// Unsafe runs the call inside the unsafe load section.
	Unsafe bool `yaml:"unsafe,omitempty"`

	// Session runs the call with the multiplayer session active.
	Session bool `yaml:"session,omitempty"`

	// Expect is checked against the call's outcome. Nil checks nothing.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ReceiverSpec describes a fresh instance. Map spawns a thing on the map
// with that id.
type ReceiverSpec struct {
	Type string `yaml:"type"`
	Map  *int   `yaml:"map,omitempty"`
}

// ExpectClause specifies an expected call outcome. Only the fields that are
// set are checked.
type ExpectClause struct {
	// Result is compared to the returned value. Maps compare as "map#<id>".
	Result any `yaml:"result,omitempty"`

	// Nil expects the call to return nothing, as a cancelled call does.
	Nil bool `yaml:"nil,omitempty"`

	// Error expects the call to fail.
	Error bool `yaml:"error,omitempty"`

	// Draws is the number of generator draws the call leaves consumed.
	Draws *uint64 `yaml:"draws,omitempty"`
}

// Assertion validates the state after the flow.
type Assertion struct {
	// Type specifies the assertion type:
	// - "patched": Method has patches installed
	// - "not_patched": Method has no patches
	// - "diagnostic": A diagnostic with Code (and Method, if set) was reported
	// - "diagnostic_count": Exactly Count diagnostics (with Code, if set)
	// - "code_contains": Method's effective code contains Text
	Type string `yaml:"type"`

	Method string `yaml:"method,omitempty"`
	Code   string `yaml:"code,omitempty"`
	Count  int    `yaml:"count,omitempty"`
	Text   string `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertPatched         = "patched"
	AssertNotPatched      = "not_patched"
	AssertDiagnostic      = "diagnostic"
	AssertDiagnosticCount = "diagnostic_count"
	AssertCodeContains    = "code_contains"
)

// LoadScenario reads and parses a scenario YAML file. Program and manifest
// paths are resolved against the file's directory.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	scenario.Program = resolve(base, scenario.Program)
	scenario.Manifest = resolve(base, scenario.Manifest)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Program == "" {
		return fmt.Errorf("program is required")
	}
	if _, err := os.Stat(s.Program); os.IsNotExist(err) {
		return fmt.Errorf("program file not found: %s", s.Program)
	}
	if s.Manifest != "" {
		if _, err := os.Stat(s.Manifest); os.IsNotExist(err) {
			return fmt.Errorf("manifest directory not found: %s", s.Manifest)
		}
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, p := range s.Patches {
		if !compat.Kind(p.Kind).Valid() {
			return fmt.Errorf("patches[%d]: unknown kind %q", i, p.Kind)
		}
		if p.Method == "" {
			return fmt.Errorf("patches[%d]: method is required", i)
		}
	}

	for i, step := range s.Flow {
		if step.Invoke == "" {
			return fmt.Errorf("flow[%d]: invoke is required", i)
		}
		if step.Receiver != nil && step.Receiver.Type == "" {
			return fmt.Errorf("flow[%d].receiver: type is required", i)
		}
		if e := step.Expect; e != nil && e.Nil && e.Result != nil {
			return fmt.Errorf("flow[%d].expect: result and nil are exclusive", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertPatched, AssertNotPatched:
		if a.Method == "" {
			return fmt.Errorf("assertions[%d]: method is required for %s", index, a.Type)
		}
	case AssertDiagnostic:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for diagnostic", index)
		}
	case AssertDiagnosticCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for diagnostic_count", index)
		}
	case AssertCodeContains:
		if a.Method == "" || a.Text == "" {
			return fmt.Errorf("assertions[%d]: method and text are required for code_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
