package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrTarget       = attribute.Key("workload.target")
	AttrBatchID      = attribute.Key("workload.batch_id")
	AttrTransactions = attribute.Key("workload.transactions")
	AttrStatusCode   = attribute.Key("http.response.status_code")
	AttrAttempt      = attribute.Key("workload.attempt")
)

// StartSubmitSpan starts a client span covering one batch submission,
// including any connect retries.
func StartSubmitSpan(ctx context.Context, tracer trace.Tracer, scheme, target, batchID string, txns int) (context.Context, trace.Span) {
	return tracer.Start(ctx, scheme+" submit batch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrTarget.String(target),
			AttrBatchID.String(batchID),
			AttrTransactions.Int(txns),
		),
	)
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders writes the W3C trace context of ctx into headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
