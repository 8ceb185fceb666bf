package runtime

import (
	"context"
	"testing"

	"github.com/mohammad-safakhou/marketresearch/config"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupTelemetryDisabled(t *testing.T) {
	tel, tracer, err := SetupTelemetry(context.Background(), config.TelemetryConfig{ServiceName: "mr"}, TelemetryOptions{})
	if err != nil {
		t.Fatalf("SetupTelemetry: %v", err)
	}
	if tracer == nil {
		t.Fatalf("expected a tracer")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestSetupTelemetryExportsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tel, tracer, err := SetupTelemetry(context.Background(), config.TelemetryConfig{}, TelemetryOptions{ServiceName: "mr", Exporter: exp})
	if err != nil {
		t.Fatalf("SetupTelemetry: %v", err)
	}
	_, span := tracer.Start(context.Background(), "workflow.plan")
	span.End()
	if err := tel.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "workflow.plan" {
		t.Fatalf("unexpected spans %+v", spans)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
