package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNewTracerProviderNone(t *testing.T) {
	for _, exporter := range []string{"", ExporterNone} {
		tp, err := NewTracerProvider(context.Background(), Config{Exporter: exporter})
		if err != nil || tp != nil {
			t.Fatalf("exporter %q: expected nil provider, got %v %v", exporter, tp, err)
		}
	}
}

func TestNewTracerProviderStdout(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewTracerProvider(context.Background(), Config{Exporter: ExporterStdout, ServiceName: "cf-test", Writer: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "configforge.recalc")
	span.End()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "configforge.recalc") || !strings.Contains(out, "cf-test") {
		t.Fatalf("span not exported: %s", out)
	}
}

func TestNewTracerProviderOTLPIsLazy(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), Config{Exporter: ExporterOTLP, OTLPEndpoint: "127.0.0.1:4317", OTLPInsecure: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = tp.Shutdown(ctx)
}

func TestNewTracerProviderUnknown(t *testing.T) {
	_, err := NewTracerProvider(context.Background(), Config{Exporter: "zipkin"})
	if !errors.Is(err, ErrUnknownExporter) {
		t.Fatalf("expected ErrUnknownExporter, got %v", err)
	}
}
