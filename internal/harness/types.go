package harness

import "github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/store"

// TraceEvent is one invocation made by the flow.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Method string `json:"method"`
	Args   []any  `json:"args,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	// Draws is how many generator draws the call left consumed.
	Draws uint64 `json:"draws"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	RunID string `json:"run_id"`

	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Installs and Diagnostics are read back from the run's store.
	Installs    []store.Install    `json:"-"`
	Diagnostics []store.Diagnostic `json:"-"`

	// Patched lists the descriptors of every patched method, sorted.
	Patched []string `json:"patched"`
}

// NewResult creates a new passing result.
func NewResult(runID string) *Result {
	return &Result{
		Pass:    true,
		RunID:   runID,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Patched: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
