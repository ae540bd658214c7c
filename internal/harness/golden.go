package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the golden form of a scenario result. Fingerprints are
// reduced to whether the install changed the code, so snapshots stay
// readable.
type TraceSnapshot struct {
	ScenarioName string               `json:"scenario"`
	RunID        string               `json:"run_id"`
	Trace        []TraceEvent         `json:"trace"`
	Installs     []InstallSnapshot    `json:"installs"`
	Diagnostics  []DiagnosticSnapshot `json:"diagnostics"`
}

// InstallSnapshot is one recorded install.
type InstallSnapshot struct {
	Seq         int64  `json:"seq"`
	Method      string `json:"method"`
	Owner       string `json:"owner"`
	Prefixes    int    `json:"prefixes"`
	Postfixes   int    `json:"postfixes"`
	Finalizers  int    `json:"finalizers"`
	Transpilers int    `json:"transpilers"`
	Changed     bool   `json:"changed"`
}

// DiagnosticSnapshot is one recorded diagnostic.
type DiagnosticSnapshot struct {
	Seq     int64  `json:"seq"`
	Code    string `json:"code"`
	Method  string `json:"method,omitempty"`
	Message string `json:"message"`
}

// NewTraceSnapshot builds the snapshot of result.
func NewTraceSnapshot(name string, result *Result) TraceSnapshot {
	s := TraceSnapshot{
		ScenarioName: name,
		RunID:        result.RunID,
		Trace:        result.Trace,
		Installs:     make([]InstallSnapshot, 0, len(result.Installs)),
		Diagnostics:  make([]DiagnosticSnapshot, 0, len(result.Diagnostics)),
	}
	if s.Trace == nil {
		s.Trace = []TraceEvent{}
	}
	for _, in := range result.Installs {
		s.Installs = append(s.Installs, InstallSnapshot{
			Seq:         in.Seq,
			Method:      in.Method,
			Owner:       in.Owner,
			Prefixes:    in.Prefixes,
			Postfixes:   in.Postfixes,
			Finalizers:  in.Finalizers,
			Transpilers: in.Transpilers,
			Changed:     in.BeforeHash != in.AfterHash,
		})
	}
	for _, d := range result.Diagnostics {
		s.Diagnostics = append(s.Diagnostics, DiagnosticSnapshot{
			Seq:     d.Seq,
			Code:    string(d.Code),
			Method:  d.Method,
			Message: d.Message,
		})
	}
	return s
}

// Marshal renders the snapshot as indented JSON with a trailing newline.
func (s TraceSnapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewTraceSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
