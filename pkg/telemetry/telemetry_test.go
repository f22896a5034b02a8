package telemetry_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/m-mizutani/burrow/pkg/telemetry"
)

func setupRecorder() (*telemetry.Recorder, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return telemetry.New(tp), sr
}

func findAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestSpanSuccess(t *testing.T) {
	rec, sr := setupRecorder()

	_, span := rec.StartSpan(context.Background(), "memory.store_message")
	span.SetAttr("rows", 1)
	span.End(nil)

	ended := sr.Ended()
	gt.A(t, ended).Length(1)

	got := ended[0]
	gt.Equal(t, got.Name(), "memory.store_message")

	success, ok := findAttr(got.Attributes(), "success")
	gt.True(t, ok)
	gt.True(t, success.AsBool())

	rows, ok := findAttr(got.Attributes(), "rows")
	gt.True(t, ok)
	gt.Equal(t, rows.AsInt64(), int64(1))
}

func TestSpanFailure(t *testing.T) {
	rec, sr := setupRecorder()

	_, span := rec.StartSpan(context.Background(), "memory.semantic_search")
	span.End(goerr.New("storage unreachable"))

	ended := sr.Ended()
	gt.A(t, ended).Length(1)

	success, ok := findAttr(ended[0].Attributes(), "success")
	gt.True(t, ok)
	gt.False(t, success.AsBool())
	gt.A(t, ended[0].Events()).Length(1) // recorded error event
}

func TestNoopRecorder(t *testing.T) {
	rec := telemetry.NewNoop()
	_, span := rec.StartSpan(context.Background(), "memory.health_check")
	span.SetAttr("healthy", true)
	span.End(nil)
}
