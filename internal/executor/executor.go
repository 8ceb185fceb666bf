package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/marketresearch/internal/planner"
	"github.com/mohammad-safakhou/marketresearch/internal/tools"
)

// Finding is the recorded outcome of one plan step.
type Finding struct {
	StepID         string `json:"step_id"`
	Tool           string `json:"tool"`
	Input          string `json:"input"`
	OK             bool   `json:"ok"`
	Output         string `json:"output"`
	ExpectedOutput string `json:"expected_output,omitempty"`
}

// Invoker runs a single tool call. *tools.Gateway satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, call tools.Call) tools.Result
}

// Metrics aggregates optional telemetry callbacks.
type Metrics struct {
	StepCounter func(context.Context, Finding)
	Duration    func(context.Context, Finding, time.Duration)
}

// StepHook observes each finding as soon as it is produced.
type StepHook func(ctx context.Context, index int, step planner.Step, finding Finding)

// Executor runs plan steps one at a time, in order.
type Executor struct {
	gateway Invoker
	logger  *log.Logger
	metrics Metrics
	hook    StepHook
}

// Option configures executor behaviour.
type Option func(*Executor)

// WithGateway sets the tool gateway steps are dispatched to.
func WithGateway(g Invoker) Option {
	return func(ex *Executor) {
		ex.gateway = g
	}
}

func WithLogger(l *log.Logger) Option {
	return func(ex *Executor) {
		ex.logger = l
	}
}

// WithMetrics sets executor metrics callbacks.
func WithMetrics(m Metrics) Option {
	return func(ex *Executor) {
		ex.metrics = m
	}
}

func WithStepHook(h StepHook) Option {
	return func(ex *Executor) {
		ex.hook = h
	}
}

// New creates a new Executor. Without WithGateway it uses a default
// tools.Gateway, which has no search backend.
func New(opts ...Option) *Executor {
	ex := &Executor{}
	for _, opt := range opts {
		opt(ex)
	}
	if ex.gateway == nil {
		ex.gateway = tools.New()
	}
	if ex.logger == nil {
		ex.logger = log.New(log.Writer(), "[EXECUTOR] ", log.LstdFlags)
	}
	return ex
}

// ExecuteSteps produces exactly one finding per step, positionally aligned
// with steps. A failing step never stops the ones after it. The returned
// errors hold invalid steps, unknown tools and tool crashes; a tool that
// merely reports a failure only yields a finding with OK false.
func (e *Executor) ExecuteSteps(ctx context.Context, steps []planner.Step) ([]Finding, []string) {
	findings := make([]Finding, 0, len(steps))
	var errs []string
	for i, step := range steps {
		if step.ID == "" {
			step.ID = planner.DefaultStepID(i + 1)
		}
		start := time.Now()
		finding, errMsg := e.runStep(ctx, step)
		if errMsg != "" {
			errs = append(errs, errMsg)
		}
		findings = append(findings, finding)

		if e.metrics.StepCounter != nil {
			e.metrics.StepCounter(ctx, finding)
		}
		if e.metrics.Duration != nil {
			e.metrics.Duration(ctx, finding, time.Since(start))
		}
		if e.hook != nil {
			e.hook(ctx, i, step, finding)
		}
	}
	return findings, errs
}

func (e *Executor) runStep(ctx context.Context, step planner.Step) (finding Finding, errMsg string) {
	toolName := strings.TrimSpace(step.Tool)
	input := strings.TrimSpace(step.Input)
	finding = Finding{
		StepID:         step.ID,
		Tool:           toolName,
		Input:          input,
		ExpectedOutput: step.ExpectedOutput,
	}

	if !step.Valid() {
		msg := "invalid_step_definition: " + step.String()
		e.logger.Printf("step %s skipped: %s", step.ID, msg)
		if finding.Tool == "" {
			finding.Tool = "unknown"
		}
		finding.Output = tools.ErrorPrefix + " " + msg
		return finding, msg
	}

	call, err := tools.CallForStep(step)
	if err != nil {
		finding.Output = fmt.Sprintf("%s Unsupported tool '%s'", tools.ErrorPrefix, toolName)
		e.logger.Printf("step %s: %s", step.ID, finding.Output)
		return finding, finding.Output
	}

	res := e.invoke(ctx, call)
	finding.OK = res.OK()
	finding.Output = res.Payload()

	var execErr *tools.ExecutionError
	if errors.As(res.Err, &execErr) {
		e.logger.Printf("step %s: %v", step.ID, execErr)
		return finding, finding.Output
	}
	if !finding.OK {
		e.logger.Printf("step %s returned an error payload", step.ID)
	}
	return finding, ""
}

// invoke shields the loop from gateways that panic instead of returning a
// failure result.
func (e *Executor) invoke(ctx context.Context, call tools.Call) (res tools.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = tools.Failure(&tools.ExecutionError{Tool: call.Kind(), Cause: fmt.Errorf("%v", r)})
		}
	}()
	return e.gateway.Invoke(ctx, call)
}
