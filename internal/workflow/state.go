package workflow

import (
	"github.com/mohammad-safakhou/marketresearch/internal/executor"
	"github.com/mohammad-safakhou/marketresearch/internal/planner"
)

// RunState accumulates everything a run produces. The controller owns it;
// phases only read it and describe their changes as a Delta.
type RunState struct {
	Topic     string
	Narrative string
	Steps     []planner.Step
	Findings  []executor.Finding
	Errors    []string
	Report    string
}

// Delta is a partial update. Nil fields leave the state untouched and
// AppendErrors is appended, never substituted.
type Delta struct {
	Narrative    *string
	Steps        []planner.Step
	Findings     []executor.Finding
	Report       *string
	AppendErrors []string
}

// Apply merges d into s.
func (s *RunState) Apply(d Delta) {
	if d.Narrative != nil {
		s.Narrative = *d.Narrative
	}
	if d.Steps != nil {
		s.Steps = d.Steps
	}
	if d.Findings != nil {
		s.Findings = d.Findings
	}
	if d.Report != nil {
		s.Report = *d.Report
	}
	s.Errors = append(s.Errors, d.AppendErrors...)
}
