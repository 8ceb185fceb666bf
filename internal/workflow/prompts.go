package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/mohammad-safakhou/marketresearch/internal/executor"
)

// PlanningPrompt asks the model for a JSON plan over the tools the executor
// knows about.
func PlanningPrompt(topic string) string {
	return fmt.Sprintf(`
You are a planner for a market research agent.
Create a COMPLETE plan for topic: %q.

Return JSON only, inside a single `+"```json"+` fenced block, in this schema:
{
  "plan_text": "high-level strategy",
  "steps": [
    {
      "id": "step_1",
      "tool": "web_search" | "calculator" | "save_findings",
      "input": "tool input string",
      "expected_output": "what this step should produce"
    }
  ]
}

Rules:
- 4 to 8 steps total.
- Prefer web_search for evidence gathering.
- Use calculator only for metric computations; input is a plain arithmetic expression.
- Use save_findings only to keep intermediate notes; input is {"filename": "...", "content": "..."}.
- Ensure steps are sequential and coherent.
`, topic)
}

// SynthesisPrompt asks the model to turn the findings into a markdown report.
func SynthesisPrompt(topic, narrative string, findings []executor.Finding, errs []string) (string, error) {
	if findings == nil {
		findings = []executor.Finding{}
	}
	if errs == nil {
		errs = []string{}
	}
	findingsJSON, err := json.MarshalIndent(findings, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal findings: %w", err)
	}
	errorsJSON, err := json.MarshalIndent(errs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal errors: %w", err)
	}
	return fmt.Sprintf(`
You are a research synthesis agent.

Topic: %s
Plan summary:
%s

Findings JSON:
%s

Execution errors JSON:
%s

Write a professional markdown report with:
1) Executive Summary
2) Market Overview
3) Key Findings
4) Competitive Landscape
5) Recommendations
6) Sources

Requirements:
- Cite links from findings when available.
- Clearly state uncertainty or missing data if errors exist.
- Do NOT invent numbers without a source in findings.
`, topic, narrative, findingsJSON, errorsJSON), nil
}
