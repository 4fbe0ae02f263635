package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	itemsEventName   = "workspace.list"
	itemsEventDomain = "orbit"
	itemsRoute       = "/api/workspace"
)

// itemRequestMetrics measures the hot list path stage by stage and
// reports one span plus one structured log event per request.
type itemRequestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	authDuration   time.Duration
	fetchDuration  time.Duration
	encodeDuration time.Duration
	treeRequested  bool
	itemsReturned  int
	errorStage     string
}

func newItemRequestMetrics(ctx context.Context, logger *log.Logger) (*itemRequestMetrics, context.Context) {
	m := &itemRequestMetrics{
		logger: logger,
		start:  time.Now(),
	}
	spanCtx, span := otel.Tracer("orbit-api").Start(ctx, "GET "+itemsRoute)
	m.span = span
	return m, spanCtx
}

func (m *itemRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration > 0 {
		m.authDuration = duration
	}
}

func (m *itemRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration > 0 {
		m.fetchDuration = duration
	}
}

func (m *itemRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration > 0 {
		m.encodeDuration = duration
	}
}

func (m *itemRequestMetrics) SetTreeRequested(tree bool) {
	m.treeRequested = tree
}

func (m *itemRequestMetrics) SetItemsReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.itemsReturned = count
}

func (m *itemRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finishes the span and emits the observability event.
func (m *itemRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("http.route", itemsRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("orbit.items.total_ms", durationToMillis(time.Since(m.start))),
		attribute.Bool("orbit.items.tree_requested", m.treeRequested),
		attribute.Int("orbit.items.items_returned", m.itemsReturned),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("orbit.items.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.fetchDuration > 0 {
		attrs = append(attrs, attribute.Float64("orbit.items.fetch_ms", durationToMillis(m.fetchDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("orbit.items.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("orbit.items.error_stage", m.errorStage))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		if err != nil {
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	attrMap := make(map[string]any, len(attrs))
	for _, a := range attrs {
		attrMap[string(a.Key)] = a.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":    itemsEventName,
		"event.domain":  itemsEventDomain,
		"attributes":    attrMap,
		"severity_text": "INFO",
	}
	if err != nil {
		fields["error"] = err.Error()
		fields["severity_text"] = "ERROR"
	}
	m.logger.WithFields(fields).Info("observability.event")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
