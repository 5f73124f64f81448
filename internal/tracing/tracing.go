// Package tracing wires OpenTelemetry spans around the agent loop's two
// suspension-heavy operations (provider calls, tool execution) so a
// single turn's timing and outcome are observable without standing up a
// collector. Grounded on the instrumentation shape used for LLM-call and
// tool-execution spans in the wider example pack (a named span per
// provider/tool call, a truncated input preview attribute, status set to
// the call's error) — adapted to a local slog-backed exporter instead of
// an OTLP collector, since this core has no distributed-operation
// Non-goal to justify shipping spans anywhere external.
package tracing

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Span name constants, one per spec.md §5 suspension point this package
// instruments.
const (
	SpanAgentTurn     = "agent.turn"
	SpanProviderCall  = "provider.call"
	SpanToolExecution = "tool.execute"
	SpanRoutineRun    = "routine.run"
)

// slogExporter is a custom sdktrace.SpanExporter that logs each finished
// span as a structured slog line instead of shipping it anywhere.
// Grounded on the wider pack's in-memory DebugExporter (same ExportSpans/
// Shutdown shape capturing name/duration/attributes/status), trading its
// in-memory query API for a direct slog emit since this core has no
// debug UI to serve spans to.
type slogExporter struct{}

func (slogExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		dur := s.EndTime().Sub(s.StartTime())
		attrs := make([]any, 0, len(s.Attributes())*2+6)
		attrs = append(attrs,
			"span", s.Name(),
			"trace_id", s.SpanContext().TraceID().String(),
			"span_id", s.SpanContext().SpanID().String(),
			"duration_ms", dur.Milliseconds(),
			"status", s.Status().Code.String(),
		)
		for _, a := range s.Attributes() {
			attrs = append(attrs, string(a.Key), a.Value.AsInterface())
		}
		if s.Status().Code == codes.Error {
			slog.Warn("span", attrs...)
		} else {
			slog.Debug("span", attrs...)
		}
	}
	return nil
}

func (slogExporter) Shutdown(context.Context) error { return nil }

var (
	initOnce sync.Once
	provider *sdktrace.TracerProvider
)

// Init installs a process-wide TracerProvider backed by slogExporter.
// Safe to call more than once; only the first call takes effect.
func Init() {
	initOnce.Do(func() {
		provider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(slogExporter{}),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTracerProvider(provider)
	})
}

// Shutdown flushes and stops the installed TracerProvider. A no-op if
// Init was never called.
func Shutdown(ctx context.Context) {
	if provider != nil {
		_ = provider.Shutdown(ctx)
	}
}

// Tracer returns the named tracer off the process-wide provider (a noop
// tracer if Init has not run).
func Tracer(name string) trace.Tracer { return otel.Tracer(name) }

// StartProviderSpan starts a span around one provider.Chat/ChatStream
// call, tagged with the run ID correlating it to the rest of its turn.
func StartProviderSpan(ctx context.Context, runID, provider, model string, iteration int) (context.Context, trace.Span) {
	return Tracer("claw.agent").Start(ctx, SpanProviderCall, trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.Int("iteration", iteration),
	))
}

// StartToolSpan starts a span around one tool execution.
func StartToolSpan(ctx context.Context, runID, toolName string) (context.Context, trace.Span) {
	return Tracer("claw.agent").Start(ctx, SpanToolExecution, trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("tool", toolName),
	))
}

// StartRoutineSpan starts a span around one scheduler routine firing.
func StartRoutineSpan(ctx context.Context, routineName string, attempt int) (context.Context, trace.Span) {
	return Tracer("claw.scheduler").Start(ctx, SpanRoutineRun, trace.WithAttributes(
		attribute.String("routine", routineName),
		attribute.Int("attempt", attempt),
	))
}

// EndWithError records err on span (if non-nil) and ends it.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
