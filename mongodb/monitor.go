package mongodb

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/v2/event"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// commandMonitor opens one client span per driver command, correlated through
// the command's request id. The official instrumentation for the v2 driver
// has no tagged release; this follows its span-per-command shape on the plain
// OpenTelemetry API.
// TODO: switch to otelmongo once the mongo-driver/v2 instrumentation is tagged.
type commandMonitor struct {
	tracer trace.Tracer
	spans  sync.Map // request id -> trace.Span
}

func newCommandMonitor() *event.CommandMonitor {
	m := &commandMonitor{
		tracer: otel.Tracer("github.com/Hwndy/PR-BOOK/mongodb"),
	}
	return &event.CommandMonitor{
		Started:   m.started,
		Succeeded: m.succeeded,
		Failed:    m.failed,
	}
}

func (m *commandMonitor) started(ctx context.Context, evt *event.CommandStartedEvent) {
	_, span := m.tracer.Start(ctx, evt.CommandName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "mongodb"),
			attribute.String("db.name", evt.DatabaseName),
			attribute.String("db.operation", evt.CommandName),
		),
	)
	m.spans.Store(evt.RequestID, span)
}

func (m *commandMonitor) succeeded(_ context.Context, evt *event.CommandSucceededEvent) {
	if span, ok := m.spans.LoadAndDelete(evt.RequestID); ok {
		span.(trace.Span).End()
	}
}

func (m *commandMonitor) failed(_ context.Context, evt *event.CommandFailedEvent) {
	if span, ok := m.spans.LoadAndDelete(evt.RequestID); ok {
		s := span.(trace.Span)
		s.SetStatus(codes.Error, fmt.Sprintf("%v", evt.Failure))
		s.End()
	}
}
