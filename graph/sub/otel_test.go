package sub

import (
	"context"
	"errors"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOTelBusPublishCreatesSpanWithAttributes(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	bus := NewOTelBus(tp.Tracer("nodeflow-test"))
	bus.Publish(Event{Kind: Changed, Addr: Addr{Node: 7, Port: "out", Index: -1}, Hash: [32]byte{1}})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "changed" {
		t.Fatalf("got span name %q, want %q", spans[0].Name, "changed")
	}
}

func TestOTelBusPublishErroredEventSetsSpanError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	bus := NewOTelBus(tp.Tracer("nodeflow-test"))
	bus.Publish(Event{Kind: Invalidated, Addr: Addr{Node: 3, Port: "x", Index: -1}, Err: errors.New("boom")})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Description != "boom" {
		t.Fatalf("got status description %q, want %q", spans[0].Status.Description, "boom")
	}
}

func TestOTelBusPublishBatchEmitsOneSpanPerEvent(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	bus := NewOTelBus(tp.Tracer("nodeflow-test"))
	events := []Event{
		{Kind: Changed, Addr: Addr{Node: 1, Port: "a", Index: -1}},
		{Kind: Resolved, Addr: Addr{Node: 2, Port: "b", Index: -1}},
	}
	if err := bus.PublishBatch(context.Background(), events); err != nil {
		t.Fatalf("PublishBatch: %v", err)
	}

	if len(exporter.GetSpans()) != 2 {
		t.Fatalf("got %d spans, want 2", len(exporter.GetSpans()))
	}

	if err := bus.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
