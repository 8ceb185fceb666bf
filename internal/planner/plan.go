package planner

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tool names a plan step may reference.
const (
	ToolWebSearch    = "web_search"
	ToolCalculator   = "calculator"
	ToolSaveFindings = "save_findings"
)

// Plan is an ordered list of research steps plus a narrative summary.
type Plan struct {
	Narrative string `json:"plan_text"`
	Steps     []Step `json:"steps"`
}

// Step is one executable unit of a plan. ExpectedOutput is advisory.
type Step struct {
	ID             string `json:"id"`
	Tool           string `json:"tool"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output,omitempty"`
}

// Valid reports whether both tool and input are non-blank.
func (s Step) Valid() bool {
	return strings.TrimSpace(s.Tool) != "" && strings.TrimSpace(s.Input) != ""
}

// String renders the step for diagnostics.
func (s Step) String() string {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf("%+v", struct {
			ID, Tool, Input string
		}{s.ID, s.Tool, s.Input})
	}
	return string(b)
}

// DefaultStepID is the identifier given to the n-th (1-based) step when the
// model omitted one.
func DefaultStepID(n int) string {
	return fmt.Sprintf("step_%d", n)
}
