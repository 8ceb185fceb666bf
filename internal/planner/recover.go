package planner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Conditions recorded in the run's error list while recovering a plan.
const (
	CodeJSONMissing = "plan_json_missing"
	CodeParseFailed = "plan_json_parse_failed"
	CodeStepsEmpty  = "plan_steps_empty"
)

// Recovery is the outcome of RecoverPlan. Errors are non-fatal and belong in
// the run's error list; Warnings are advisory schema findings.
type Recovery struct {
	Plan         Plan
	Errors       []string
	Warnings     []string
	UsedFallback bool
}

var jsonFence = regexp.MustCompile("(?is)```json\\s*(.*?)\\s*```")

// ExtractJSONBlock locates the structured payload in model output: the first
// ```json fenced block, otherwise the whole trimmed text when it is wrapped in
// {} or []. An empty fenced block counts as no payload.
func ExtractJSONBlock(text string) (string, bool) {
	if m := jsonFence.FindStringSubmatch(text); m != nil {
		return m[1], m[1] != ""
	}
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 {
		return "", false
	}
	first, last := trimmed[0], trimmed[len(trimmed)-1]
	if (first == '{' && last == '}') || (first == '[' && last == ']') {
		return trimmed, true
	}
	return "", false
}

// RecoverPlan turns free-form planner output into a Plan. It never fails: when
// no usable payload is found the deterministic fallback plan for topic is used.
func RecoverPlan(raw, topic string) Recovery {
	candidate, ok := ExtractJSONBlock(raw)
	if !ok {
		return Recovery{
			Plan:         FallbackPlan(topic, NarrativeMissingJSON),
			Errors:       []string{CodeJSONMissing},
			UsedFallback: true,
		}
	}

	plan, err := decodePlan([]byte(candidate))
	if err != nil {
		return Recovery{
			Plan:         FallbackPlan(topic, NarrativeParseFailed),
			Errors:       []string{fmt.Sprintf("%s: %v", CodeParseFailed, err)},
			UsedFallback: true,
		}
	}

	rec := Recovery{Plan: plan}
	if err := ValidatePlanDocument([]byte(candidate)); err != nil {
		rec.Warnings = append(rec.Warnings, err.Error())
	}
	if len(rec.Plan.Steps) == 0 {
		rec.Plan.Steps = FallbackSteps(topic)
		rec.Errors = append(rec.Errors, CodeStepsEmpty)
		rec.UsedFallback = true
	}
	return rec
}

var errNotObject = errors.New("plan document is not a JSON object")

func decodePlan(data []byte) (Plan, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Plan{}, err
	}
	if dec.More() {
		return Plan{}, errors.New("unexpected data after plan document")
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return Plan{}, errNotObject
	}

	plan := Plan{Narrative: NarrativeDefault}
	for _, key := range []string{"plan_text", "narrative"} {
		if s := strings.TrimSpace(stringify(obj[key])); s != "" {
			plan.Narrative = s
			break
		}
	}

	switch steps := obj["steps"].(type) {
	case nil:
	case []any:
		plan.Steps = make([]Step, 0, len(steps))
		for i, item := range steps {
			plan.Steps = append(plan.Steps, normalizeStep(i+1, item))
		}
	default:
		return Plan{}, fmt.Errorf("steps must be an array, got %T", steps)
	}
	return plan, nil
}

// normalizeStep keeps malformed entries so the executor can record them as
// failed findings.
func normalizeStep(n int, item any) Step {
	m, ok := item.(map[string]any)
	if !ok {
		return Step{ID: DefaultStepID(n), Input: stringify(item)}
	}
	step := Step{
		ID:             strings.TrimSpace(stringify(m["id"])),
		Tool:           stringify(m["tool"]),
		Input:          stringify(m["input"]),
		ExpectedOutput: stringify(m["expected_output"]),
	}
	if step.ID == "" {
		step.ID = DefaultStepID(n)
	}
	return step
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
