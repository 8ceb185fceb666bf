package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/marketresearch/config"
	"github.com/mohammad-safakhou/marketresearch/internal/trace"
)

func TestRunFlagsApply(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.LLM.Provider = "openai"
	cfg.Trace.Enabled = true
	flags := runFlags{provider: "Anthropic", model: "m1", output: "out.md", traceDir: "tr", noTrace: true}
	if err := flags.apply(cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.Model != "m1" || cfg.Output.File != "out.md" || cfg.Trace.Dir != "tr" || cfg.Trace.Enabled {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	if err := (runFlags{provider: "gemini"}).apply(&config.Config{}); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		name string
		ctx  context.Context
		err  error
		want int
	}{
		{"success", context.Background(), nil, 0},
		{"failure", context.Background(), errors.New("boom"), exitFailure},
		{"interrupted", cancelled, errors.New("workflow failed: planning phase: context canceled"), exitInterrupted},
		{"canceled error", context.Background(), context.Canceled, exitInterrupted},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := exitCode(tc.ctx, tc.err); got != tc.want {
				t.Fatalf("exitCode = %d want %d", got, tc.want)
			}
		})
	}
}

func TestWriteReportCreatesDirectories(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "reports", "r.md")
	if err := writeReport(path, "# Report"); err != nil {
		t.Fatalf("writeReport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "# Report" {
		t.Fatalf("unexpected file %q: %v", data, err)
	}
}

func TestRunsCommands(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tr, err := trace.New(trace.Options{Topic: "wind turbines", Provider: "openai", Model: "m", Enabled: true, Dir: dir, RunID: "run-1"})
	if err != nil {
		t.Fatalf("trace.New: %v", err)
	}
	report := "Turbine blades are getting longer."
	if _, err := tr.Complete(trace.StatusSuccess, &report, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run-2.jsonl"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	run := func(args ...string) string {
		t.Helper()
		root := newRootCMD()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs(append(args, "--trace-dir", dir))
		if err := root.Execute(); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		return out.String()
	}

	list := run("runs", "list")
	if !strings.Contains(list, "run-1") || !strings.Contains(list, "wind turbines") {
		t.Fatalf("list missing completed run:\n%s", list)
	}
	if !strings.Contains(list, "run-2") || !strings.Contains(list, "incomplete") {
		t.Fatalf("list missing incomplete run:\n%s", list)
	}

	show := run("runs", "show", "run-1", "--recompute")
	if !strings.Contains(show, `"status": "success"`) || !strings.Contains(show, `"event_count": 3`) {
		t.Fatalf("unexpected show output:\n%s", show)
	}

	search := run("runs", "search", "blades")
	if !strings.Contains(search, "run-1") {
		t.Fatalf("search did not find run:\n%s", search)
	}
}
