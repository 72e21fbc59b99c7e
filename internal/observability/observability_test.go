package observability

import (
	"context"
	"errors"
	"testing"
)

func TestInit_Disabled(t *testing.T) {
	if err := Init(Config{Enabled: false}); err != nil {
		t.Fatalf("Init with tracing disabled failed: %v", err)
	}

	ctx, span := StartSpan(context.Background(), "message.roundtrip", map[string]any{
		"message_id": "m1",
	})
	if ctx == nil {
		t.Fatal("StartSpan returned nil context")
	}
	if span.Name() != "message.roundtrip" {
		t.Errorf("Name = %q", span.Name())
	}
	span.End()
	if !span.IsEnded() {
		t.Error("span not marked ended")
	}
	span.End() // second End is a no-op
}

func TestInit_UnknownExporter(t *testing.T) {
	err := Init(Config{Enabled: true, ExporterType: "jaeger-agent"})
	if err == nil {
		t.Fatal("expected error for unknown exporter type")
	}
}

func TestSpan_Attributes(t *testing.T) {
	_, span := StartSpan(context.Background(), "test", map[string]any{
		"str":   "value",
		"num":   42,
		"big":   int64(7),
		"ratio": 0.5,
		"flag":  true,
		"other": struct{}{},
	})
	span.SetAttribute("late", "addition")
	span.SetError(errors.New("boom"))
	span.SetError(nil)
	span.End()
}

func TestParseHeaders(t *testing.T) {
	headers := parseHeaders("Authorization=Bearer tok,X-Extra=1")
	if headers["Authorization"] != "Bearer tok" {
		t.Errorf("Authorization = %q", headers["Authorization"])
	}
	if headers["X-Extra"] != "1" {
		t.Errorf("X-Extra = %q", headers["X-Extra"])
	}
	if parseHeaders("") != nil {
		t.Error("empty header string should return nil")
	}
}

func TestShutdown_NoProvider(t *testing.T) {
	tracerProvider = nil
	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown without provider failed: %v", err)
	}
}
