package planner

// SampleCAGRExpression is the compute step of the fallback plan.
const SampleCAGRExpression = "((10.9 / 3.66) ** (1/3) - 1) * 100"

// Narratives used when the model output could not be turned into a plan.
const (
	NarrativeDefault     = "Planner generated a structured plan."
	NarrativeParseFailed = "Fallback plan used due to JSON parse failure."
	NarrativeMissingJSON = "Fallback plan used because planner did not return JSON."
)

// FallbackSteps returns the deterministic four step plan for topic.
func FallbackSteps(topic string) []Step {
	return []Step{
		{
			ID:             "step_1",
			Tool:           ToolWebSearch,
			Input:          topic + " market size current year",
			ExpectedOutput: "Current market size estimate with source links.",
		},
		{
			ID:             "step_2",
			Tool:           ToolWebSearch,
			Input:          topic + " forecast CAGR 2024 2026",
			ExpectedOutput: "Growth rate projections and forecast values.",
		},
		{
			ID:             "step_3",
			Tool:           ToolWebSearch,
			Input:          topic + " top players and competitive landscape",
			ExpectedOutput: "Key players and market positioning.",
		},
		{
			ID:             "step_4",
			Tool:           ToolCalculator,
			Input:          SampleCAGRExpression,
			ExpectedOutput: "Sample CAGR computation template.",
		},
	}
}

// FallbackPlan is FallbackSteps with the given narrative.
func FallbackPlan(topic, narrative string) Plan {
	return Plan{Narrative: narrative, Steps: FallbackSteps(topic)}
}
