package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TaskTracer wraps background task attempts in spans.
type TaskTracer struct {
	tracer trace.Tracer
}

// NewTaskTracer returns a TaskTracer. A nil tracer yields a no-op tracer.
func NewTaskTracer(tracer trace.Tracer) *TaskTracer {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("chat-api")
	}
	return &TaskTracer{tracer: tracer}
}

// Trace runs fn inside a span named after the task kind.
func (t *TaskTracer) Trace(ctx context.Context, kind, id string, attempt int, fn func(context.Context) error) error {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("worker.%s", kind),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("task.kind", kind),
			attribute.String("task.id", id),
			attribute.Int("task.attempt", attempt),
		),
	)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
