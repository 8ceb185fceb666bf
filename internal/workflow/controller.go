// Package workflow drives one research run through its three phases:
// planning, step execution and report synthesis.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/marketresearch/internal/executor"
	"github.com/mohammad-safakhou/marketresearch/internal/planner"
	"github.com/mohammad-safakhou/marketresearch/internal/tools"
	"github.com/mohammad-safakhou/marketresearch/internal/trace"
	"github.com/mohammad-safakhou/marketresearch/provider"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	// DefaultReportFile is the name the synthesized report is persisted under.
	DefaultReportFile = "market_report.md"
	// Framework tags workflow phase events.
	Framework = "plan-execute"
)

// Phase names as they appear in trace events and errors.
const (
	PhaseWorkflow  = "workflow"
	PhasePlanning  = "planning"
	PhaseExecution = "execution"
	PhaseSynthesis = "synthesis"
)

// ErrEmptyReport fails a run whose synthesis produced no text.
var ErrEmptyReport = errors.New("workflow produced empty report")

var workflowTracer = otel.Tracer("marketresearch/internal/workflow")

// SummaryRecorder receives the summary of every finished run.
type SummaryRecorder interface {
	SaveSummary(ctx context.Context, summary trace.Summary) error
}

// RunMetrics counts finished runs by status.
type RunMetrics interface {
	ObserveRun(status string)
}

// Controller sequences the phases of a run. A Controller serves one run at a
// time; concurrent runs need their own controllers and tracers.
type Controller struct {
	llm        provider.Generator
	gateway    executor.Invoker
	executor   *executor.Executor
	tracer     *trace.Tracer
	recorder   SummaryRecorder
	metrics    RunMetrics
	logger     *log.Logger
	reportFile string
}

type Option func(*Controller)

// WithGateway sets the gateway used for tool steps and the report file.
func WithGateway(g executor.Invoker) Option { return func(c *Controller) { c.gateway = g } }

// WithExecutor overrides the step executor built from the gateway.
func WithExecutor(ex *executor.Executor) Option { return func(c *Controller) { c.executor = ex } }

func WithTracer(t *trace.Tracer) Option { return func(c *Controller) { c.tracer = t } }

func WithSummaryRecorder(r SummaryRecorder) Option { return func(c *Controller) { c.recorder = r } }

func WithRunMetrics(m RunMetrics) Option { return func(c *Controller) { c.metrics = m } }

func WithLogger(l *log.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithReportFile renames the persisted report. An empty name disables
// persisting it.
func WithReportFile(name string) Option { return func(c *Controller) { c.reportFile = name } }

// New creates a controller around an LLM.
func New(llm provider.Generator, opts ...Option) *Controller {
	c := &Controller{llm: llm, reportFile: DefaultReportFile}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.New(log.Writer(), "[WORKFLOW] ", log.LstdFlags)
	}
	if c.gateway == nil {
		c.gateway = tools.New()
	}
	if c.executor == nil {
		c.executor = executor.New(executor.WithGateway(c.gateway))
	}
	return c
}

// Tracer returns the run tracer, which may be nil.
func (c *Controller) Tracer() *trace.Tracer { return c.tracer }

type phaseFunc func(ctx context.Context, state *RunState) (Delta, error)

// Run executes planning, execution and synthesis in order and returns the
// report. The tracer is completed exactly once whatever the outcome.
func (c *Controller) Run(ctx context.Context, topic string) (string, error) {
	ctx = trace.WithTracer(ctx, c.tracer)
	ctx, span := workflowTracer.Start(ctx, "workflow.run",
		oteltrace.WithAttributes(
			attribute.String("topic", topic),
			attribute.String("run.id", c.tracer.RunID()),
		))
	defer span.End()

	c.tracer.LogPhase(PhaseWorkflow, trace.PhaseStarted, trace.Payload{"topic": topic, "framework": Framework})
	state := &RunState{Topic: topic}

	phases := []struct {
		name string
		span string
		run  phaseFunc
	}{
		{PhasePlanning, "workflow.plan", c.plan},
		{PhaseExecution, "workflow.execute", c.execute},
		{PhaseSynthesis, "workflow.synthesize", c.synthesize},
	}
	for _, ph := range phases {
		delta, err := c.runPhase(ctx, ph.span, ph.run, state)
		if err != nil {
			return "", c.fail(ctx, span, ph.name, err)
		}
		state.Apply(delta)
	}
	if strings.TrimSpace(state.Report) == "" {
		return "", c.fail(ctx, span, PhaseSynthesis, ErrEmptyReport)
	}

	report := state.Report
	summary, err := c.tracer.Complete(trace.StatusSuccess, &report, nil)
	if err != nil {
		c.logger.Printf("run %s: finalising trace: %v", c.tracer.RunID(), err)
	}
	c.finish(ctx, trace.StatusSuccess, summary)
	span.SetAttributes(attribute.Int("report.length", len(report)))
	return report, nil
}

// runPhase runs one phase in its own span. A panic inside the phase is
// returned as an error so the run still ends in the error state.
func (c *Controller) runPhase(ctx context.Context, name string, fn phaseFunc, state *RunState) (delta Delta, err error) {
	ctx, span := workflowTracer.Start(ctx, name)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			delta, err = Delta{}, fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	return fn(ctx, state)
}

func (c *Controller) fail(ctx context.Context, span oteltrace.Span, phase string, cause error) error {
	err := fmt.Errorf("workflow failed: %s phase: %w", phase, cause)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Printf("run %s: %v", c.tracer.RunID(), err)
	summary, cerr := c.tracer.Complete(trace.StatusError, nil, err)
	if cerr != nil {
		c.logger.Printf("run %s: finalising trace: %v", c.tracer.RunID(), cerr)
	}
	c.finish(ctx, trace.StatusError, summary)
	return err
}

func (c *Controller) finish(ctx context.Context, status string, summary trace.Summary) {
	if c.metrics != nil {
		c.metrics.ObserveRun(status)
	}
	if c.recorder == nil || !c.tracer.Enabled() {
		return
	}
	// The run context may already be cancelled by an interrupt.
	if err := c.recorder.SaveSummary(context.WithoutCancel(ctx), summary); err != nil {
		c.logger.Printf("run %s: recording summary: %v", summary.RunID, err)
	}
}

func (c *Controller) plan(ctx context.Context, state *RunState) (Delta, error) {
	c.tracer.LogPhase(PhasePlanning, trace.PhaseStarted, trace.Payload{"topic": state.Topic, "framework": Framework})

	raw, err := c.llm.Generate(ctx, PlanningPrompt(state.Topic))
	if err != nil {
		return Delta{}, fmt.Errorf("planner call: %w", err)
	}
	c.tracer.LogMessageSnapshot("planner", raw)

	rec := planner.RecoverPlan(raw, state.Topic)
	for _, e := range rec.Errors {
		c.logger.Printf("plan recovery: %s", e)
	}
	for _, w := range rec.Warnings {
		c.logger.Printf("plan validation: %s", w)
	}

	c.tracer.LogPhase(PhasePlanning, trace.PhaseCompleted, trace.Payload{
		"step_count":    len(rec.Plan.Steps),
		"used_fallback": rec.UsedFallback,
	})
	narrative := rec.Plan.Narrative
	return Delta{
		Narrative:    &narrative,
		Steps:        rec.Plan.Steps,
		AppendErrors: rec.Errors,
	}, nil
}

func (c *Controller) execute(ctx context.Context, state *RunState) (Delta, error) {
	c.tracer.LogPhase(PhaseExecution, trace.PhaseStarted, trace.Payload{"step_count": len(state.Steps)})

	findings, errs := c.executor.ExecuteSteps(ctx, state.Steps)

	c.tracer.LogPhase(PhaseExecution, trace.PhaseCompleted, trace.Payload{
		"step_count":  len(findings),
		"error_count": countFailed(findings),
	})
	return Delta{Findings: findings, AppendErrors: errs}, nil
}

func (c *Controller) synthesize(ctx context.Context, state *RunState) (Delta, error) {
	c.tracer.LogPhase(PhaseSynthesis, trace.PhaseStarted, trace.Payload{"finding_count": len(state.Findings)})

	prompt, err := SynthesisPrompt(state.Topic, state.Narrative, state.Findings, state.Errors)
	if err != nil {
		return Delta{}, err
	}
	report, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		return Delta{}, fmt.Errorf("synthesis call: %w", err)
	}

	if c.reportFile != "" && strings.TrimSpace(report) != "" {
		res := c.gateway.Invoke(ctx, tools.PersistCall{Filename: c.reportFile, Content: report})
		if !res.OK() {
			c.logger.Printf("report not persisted: %s", res.Payload())
		}
	}

	c.tracer.LogMessageSnapshot("synthesis", report)
	c.tracer.LogPhase(PhaseSynthesis, trace.PhaseCompleted, nil)
	return Delta{Report: &report}, nil
}

func countFailed(findings []executor.Finding) int {
	n := 0
	for _, f := range findings {
		if !f.OK {
			n++
		}
	}
	return n
}
