package sub

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelBus publishes events as OpenTelemetry spans, adapted from the
// teacher's emit.OTelEmitter: every event is an instantaneous span named
// after its Kind, with node/port/index recorded as attributes and the
// span marked errored for any event carrying a non-nil Err.
type OTelBus struct {
	tracer trace.Tracer
}

// NewOTelBus creates an OTelBus backed by tracer, typically obtained via
// otel.Tracer("nodeflow").
func NewOTelBus(tracer trace.Tracer) *OTelBus {
	return &OTelBus{tracer: tracer}
}

// Publish implements Bus.
func (o *OTelBus) Publish(ev Event) {
	_, span := o.tracer.Start(context.Background(), ev.Kind.String())
	defer span.End()
	annotate(span, ev)
}

// PublishBatch implements Bus.
func (o *OTelBus) PublishBatch(ctx context.Context, events []Event) error {
	for _, ev := range events {
		_, span := o.tracer.Start(ctx, ev.Kind.String())
		annotate(span, ev)
		span.End()
	}
	return nil
}

func annotate(span trace.Span, ev Event) {
	span.SetAttributes(
		attribute.Int64("node", int64(ev.Addr.Node)),
		attribute.String("port", ev.Addr.Port),
		attribute.Int("index", ev.Addr.Index),
		attribute.String("hash", strconv.FormatUint(bytesToUint64(ev.Hash), 16)),
	)
	if ev.Err != nil {
		span.SetStatus(codes.Error, ev.Err.Error())
		span.RecordError(fmt.Errorf("%w", ev.Err))
	}
}

func bytesToUint64(h [32]byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(h[i])
	}
	return v
}

// Flush is a no-op: spans are handed to the configured TracerProvider's
// span processor immediately on End(), so there is nothing this Bus
// buffers itself. Callers that need guaranteed export before shutdown
// should call ForceFlush on their TracerProvider directly.
func (o *OTelBus) Flush(context.Context) error { return nil }
