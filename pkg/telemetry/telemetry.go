// Package telemetry emits one trace span per operation of the memory and
// approval subsystems. The Recorder is constructed once at process start and
// injected into each component; there is no ambient global tracer.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/m-mizutani/burrow"

// Recorder starts spans for component operations. Span emission is part of
// the API contract, not best-effort: every operation ends its span exactly
// once with a success flag.
type Recorder struct {
	tracer trace.Tracer
}

// New creates a Recorder backed by the given provider
func New(tp trace.TracerProvider) *Recorder {
	return &Recorder{tracer: tp.Tracer(tracerName)}
}

// NewNoop creates a Recorder that drops all spans. Used when no exporter is
// configured and in tests that do not assert on telemetry.
func NewNoop() *Recorder {
	return New(noop.NewTracerProvider())
}

// StartSpan begins a span for the named operation
func (r *Recorder) StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	ctx, span := r.tracer.Start(ctx, operation)
	span.SetAttributes(attribute.String("operation", operation))
	return ctx, &Span{span: span}
}

// Span wraps an otel span with the attribute conventions of this module
type Span struct {
	span trace.Span
}

// SetAttr records an operation-specific attribute such as a row count,
// risk level or duration.
func (s *Span) SetAttr(key string, value any) {
	s.span.SetAttributes(attr(key, value))
}

// End closes the span, tagging it with a success flag derived from err
func (s *Span) End(err error) {
	s.span.SetAttributes(attribute.Bool("success", err == nil))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

func attr(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
