// Package tools is the gateway between plan steps and the closed set of tools
// a run may use: web search, arithmetic and report persistence.
//
// Every invocation returns a Result. Tools never panic or return Go errors
// past Invoke; failures travel as the error variant of Result.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/marketresearch/internal/calc"
	"github.com/mohammad-safakhou/marketresearch/internal/trace"
	"github.com/mohammad-safakhou/marketresearch/tools/web_search/models"
)

// ErrorPrefix starts the textual rendering of a failed Result.
const ErrorPrefix = "ERROR:"

var (
	ErrUnsupportedTool   = errors.New("unsupported tool")
	ErrSearchUnavailable = errors.New("no search backend configured")
)

// Result is the tagged outcome of a tool call: Output on success, Err otherwise.
type Result struct {
	Output string
	Err    error
}

func Success(output string) Result { return Result{Output: output} }
func Failure(err error) Result     { return Result{Err: err} }

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Payload renders the result as text, prefixing failures with ErrorPrefix.
func (r Result) Payload() string {
	if r.Err != nil {
		return ErrorPrefix + " " + r.Err.Error()
	}
	return r.Output
}

// IsErrorPayload reports whether text is a rendered failure.
func IsErrorPayload(text string) bool {
	return strings.HasPrefix(text, ErrorPrefix)
}

// ExecutionError wraps a tool that blew up instead of returning a result.
type ExecutionError struct {
	Tool  Kind
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool_execution_failed(%s): %v", e.Tool, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// Searcher backs the search tool.
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.Result, error)
}

// Metrics observes every tool call.
type Metrics interface {
	ObserveTool(tool string, ok bool, latency time.Duration)
}

// Gateway dispatches calls to tools.
type Gateway struct {
	searcher  Searcher
	outputDir string
	logger    *log.Logger
	metrics   Metrics
}

type Option func(*Gateway)

func WithSearcher(s Searcher) Option { return func(g *Gateway) { g.searcher = s } }

// WithOutputDir sets the only directory persist writes to.
func WithOutputDir(dir string) Option { return func(g *Gateway) { g.outputDir = dir } }

func WithLogger(l *log.Logger) Option { return func(g *Gateway) { g.logger = l } }

func WithMetrics(m Metrics) Option { return func(g *Gateway) { g.metrics = m } }

// DefaultOutputDir is used when no output directory is configured.
const DefaultOutputDir = "outputs"

func New(opts ...Option) *Gateway {
	g := &Gateway{outputDir: DefaultOutputDir}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = log.New(log.Writer(), "[TOOLS] ", log.LstdFlags)
	}
	return g
}

// OutputDir returns the persist root.
func (g *Gateway) OutputDir() string { return g.outputDir }

// Invoke runs call. When ctx carries a tracer the call is logged before it
// runs and its result (with latency and preview) after.
func (g *Gateway) Invoke(ctx context.Context, call Call) (res Result) {
	tr := trace.FromContext(ctx)
	kind := call.Kind()
	tr.LogToolCall(string(kind), call.traceArgs())
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			g.logger.Printf("%s panicked: %v", kind, r)
			res = Failure(&ExecutionError{Tool: kind, Cause: fmt.Errorf("%v", r)})
		}
		latency := time.Since(start)
		tr.LogToolResult(string(kind), res.OK(), latency, res.Payload())
		if g.metrics != nil {
			g.metrics.ObserveTool(string(kind), res.OK(), latency)
		}
	}()

	switch c := call.(type) {
	case SearchCall:
		return g.search(ctx, c)
	case ComputeCall:
		return compute(c)
	case PersistCall:
		return g.persist(c)
	default:
		return Failure(fmt.Errorf("%w: %T", ErrUnsupportedTool, call))
	}
}

func (g *Gateway) search(ctx context.Context, c SearchCall) Result {
	if g.searcher == nil {
		return Failure(fmt.Errorf("Search failed: %w", ErrSearchUnavailable))
	}
	query := strings.TrimSpace(c.Query)
	if query == "" {
		return Failure(errors.New("Search failed: empty query"))
	}
	results, err := g.searcher.Search(ctx, query)
	if err != nil {
		return Failure(fmt.Errorf("Search failed: %w", err))
	}
	if results == nil {
		results = []models.Result{}
	}
	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return Failure(fmt.Errorf("Failed to parse search results: %w", err))
	}
	return Success(string(out))
}

func compute(c ComputeCall) Result {
	out, err := calc.Evaluate(c.Expression)
	if err != nil {
		return Failure(err)
	}
	return Success(out)
}
