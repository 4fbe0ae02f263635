package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	})
	return tp, exporter
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestItemRequestMetricsLogProducesObservabilityEvent(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter := setupTestTracer(t)

	metrics, spanCtx := newItemRequestMetrics(context.Background(), logger)
	if spanCtx == nil {
		t.Fatal("expected span context")
	}
	metrics.start = metrics.start.Add(-50 * time.Millisecond)
	metrics.ObserveAuth(10 * time.Millisecond)
	metrics.ObserveFetch(15 * time.Millisecond)
	metrics.ObserveEncode(5 * time.Millisecond)
	metrics.SetTreeRequested(true)
	metrics.SetItemsReturned(3)

	metrics.Log(http.StatusOK, nil)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "observability.event" {
		t.Fatalf("unexpected log entry: %#v", entry)
	}
	if entry.Data["event.name"] != itemsEventName {
		t.Fatalf("unexpected event name: %v", entry.Data["event.name"])
	}
	if entry.Data["event.domain"] != itemsEventDomain {
		t.Fatalf("unexpected event domain: %v", entry.Data["event.domain"])
	}
	if entry.Data["severity_text"] != "INFO" {
		t.Fatalf("unexpected severity: %v", entry.Data["severity_text"])
	}
	attrs, ok := entry.Data["attributes"].(map[string]any)
	if !ok {
		t.Fatalf("attributes not logged as map: %#v", entry.Data["attributes"])
	}
	if attrs["http.route"] != itemsRoute {
		t.Fatalf("unexpected route attribute: %#v", attrs["http.route"])
	}
	if attrs["orbit.items.tree_requested"] != true {
		t.Fatal("expected tree_requested true")
	}
	if got, ok := attrs["orbit.items.items_returned"].(int64); !ok || got != 3 {
		t.Fatalf("unexpected items_returned: %#v", attrs["orbit.items.items_returned"])
	}
	if total, ok := attrs["orbit.items.total_ms"].(float64); !ok || total == 0 {
		t.Fatalf("expected total_ms attribute, got %#v", attrs["orbit.items.total_ms"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "GET "+itemsRoute {
		t.Fatalf("unexpected span name: %s", span.Name)
	}
	spanAttrs := attributesToMap(span.Attributes)
	if code, ok := spanAttrs["http.status_code"].(int64); !ok || code != int64(http.StatusOK) {
		t.Fatalf("unexpected http.status_code: %#v", spanAttrs["http.status_code"])
	}
	if _, exists := spanAttrs["orbit.items.error_stage"]; exists {
		t.Fatalf("expected no error stage, got %#v", spanAttrs["orbit.items.error_stage"])
	}
}

func TestItemRequestMetricsLogWithErrorMarksSpan(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter := setupTestTracer(t)

	metrics, _ := newItemRequestMetrics(context.Background(), logger)
	metrics.SetErrorStage("storage")
	boom := errors.New("storage failure")

	metrics.Log(http.StatusInternalServerError, boom)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Fatalf("expected span status error, got %v", span.Status.Code)
	}
	spanAttrs := attributesToMap(span.Attributes)
	if spanAttrs["orbit.items.error_stage"] != "storage" {
		t.Fatalf("error stage not propagated: %#v", spanAttrs["orbit.items.error_stage"])
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected log entry")
	}
	if entry.Data["severity_text"] != "ERROR" {
		t.Fatalf("unexpected severity for error: %v", entry.Data["severity_text"])
	}
	if entry.Data["error"] != boom.Error() {
		t.Fatalf("expected error field, got %#v", entry.Data["error"])
	}
}

func TestDurationToMillis(t *testing.T) {
	if got := durationToMillis(0); got != 0 {
		t.Fatalf("durationToMillis(0) = %v", got)
	}
	if got := durationToMillis(-time.Second); got != 0 {
		t.Fatalf("durationToMillis(-1s) = %v", got)
	}
	if got := durationToMillis(1500 * time.Microsecond); got != 1.5 {
		t.Fatalf("durationToMillis(1.5ms) = %v", got)
	}
}
