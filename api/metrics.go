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
	tracerName       = "taskboard-api/api"
	boardSpanName    = "board.request"
	boardEventName   = "board.request.metrics"
	boardEventDomain = "taskboard"
)

// boardRequestMetrics correlates per-stage timings for one request with an
// otel span and a structured observability log entry.
type boardRequestMetrics struct {
	logger *log.Logger
	route  string
	span   trace.Span
	start  time.Time

	validateDuration time.Duration
	engineDuration   time.Duration
	encodeDuration   time.Duration
	tasksTouched     int
	errorStage       string
}

func newBoardRequestMetrics(ctx context.Context, logger *log.Logger, route string) (*boardRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, boardSpanName, trace.WithSpanKind(trace.SpanKindServer))
	m := &boardRequestMetrics{
		logger: logger,
		route:  route,
		span:   span,
		start:  time.Now(),
	}
	return m, spanCtx
}

func (m *boardRequestMetrics) ObserveValidate(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.validateDuration = duration
}

func (m *boardRequestMetrics) ObserveEngine(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.engineDuration = duration
}

func (m *boardRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *boardRequestMetrics) SetTasksTouched(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksTouched = count
}

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log closes the span and emits the observability event for the request.
func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.Float64("board.total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int("board.tasks_touched", m.tasksTouched),
	}
	if m.validateDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.validate_ms", durationToMillis(m.validateDuration)))
	}
	if m.engineDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.engine_ms", durationToMillis(m.engineDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("board.error_stage", m.errorStage))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		switch {
		case err != nil:
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		case status >= 500:
			m.span.SetStatus(codes.Error, m.errorStage)
		default:
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.AddEvent("observability.event")
	}

	if m.logger != nil {
		severityText, severityNumber := severityForStatus(status)
		fields := log.Fields{
			"event.name":      boardEventName,
			"event.domain":    boardEventDomain,
			"severity_text":   severityText,
			"severity_number": severityNumber,
			"attributes":      attributesToFields(attrs),
		}
		if m.span != nil {
			if sc := m.span.SpanContext(); sc.HasTraceID() {
				fields["trace_id"] = sc.TraceID().String()
			}
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		entry := m.logger.WithFields(fields)
		switch {
		case status >= 500:
			entry.Error("observability.event")
		case status >= 400:
			entry.Warn("observability.event")
		default:
			entry.Info("observability.event")
		}
	}

	if m.span != nil {
		m.span.End()
	}
}

func severityForStatus(status int) (string, int) {
	switch {
	case status >= 500:
		return "ERROR", 17
	case status >= 400:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func attributesToFields(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
