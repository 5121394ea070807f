package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanName is the name of the span started for every item
const SpanName = "threadpool.item"

// TraceHandler wraps handler so each item runs inside its own span.
// The span context is passed to handler. A panic is recorded on the span and
// then re-raised, so the pool's panic policy still applies.
func TraceHandler[T any](tracer trace.Tracer, pool string, handler func(ctx context.Context, item T)) func(item T) {
	return func(item T) {
		ctx, span := tracer.Start(context.Background(), SpanName,
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attribute.String("threadpool.pool", pool)),
		)

		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic: %v", r)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				span.End()
				panic(r)
			}
			span.SetStatus(codes.Ok, "OK")
			span.End()
		}()

		handler(ctx, item)
	}
}
