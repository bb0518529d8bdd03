package tracing_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/splintercommunity/transact/internal/config"
	"github.com/splintercommunity/transact/internal/tracing"
)

func setupTestTracer(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter, tp.Tracer("test")
}

func TestInitDisabledByDefault(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	p, err := tracing.Init(context.Background(), config.TracingConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	assert.False(t, p.ShouldPropagate())
	_, span := p.Tracer().Start(context.Background(), "noop")
	span.End()
	assert.False(t, span.SpanContext().IsValid())
}

func TestInitProtocols(t *testing.T) {
	for _, protocol := range []string{"grpc", "http", ""} {
		t.Run(protocol, func(t *testing.T) {
			p, err := tracing.Init(context.Background(), config.TracingConfig{
				Endpoint:   "localhost:4317",
				Protocol:   protocol,
				SampleRate: 1.0,
				Insecure:   true,
			}, attribute.String("workload.kind", "command"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
			assert.True(t, p.ShouldPropagate())
		})
	}
}

func TestInitRejectsBadConfig(t *testing.T) {
	_, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint: "localhost:4317",
		Protocol: "thrift",
	})
	assert.Error(t, err)

	for _, rate := range []float64{-0.5, 1.5} {
		_, err := tracing.Init(context.Background(), config.TracingConfig{
			Endpoint:   "localhost:4317",
			SampleRate: rate,
		})
		assert.Error(t, err, "sample rate %g", rate)
	}
}

func TestShouldPropagateOverride(t *testing.T) {
	off := false
	p, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint:  "localhost:4317",
		Insecure:  true,
		Propagate: &off,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	assert.False(t, p.ShouldPropagate())
}

func TestNilProviderSafety(t *testing.T) {
	var p *tracing.Provider
	assert.False(t, p.ShouldPropagate())
	assert.NoError(t, p.Shutdown(context.Background()))
	_, span := p.Tracer().Start(context.Background(), "test")
	span.End()
}

func TestStartSubmitSpan(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	_, span := tracing.StartSubmitSpan(context.Background(), tracer, "http", "http://validator-0:8008", "abc123", 2)
	tracing.EndSpan(span, nil, tracing.AttrStatusCode.Int(202))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "http submit batch", spans[0].Name)
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "http://validator-0:8008", attrs[tracing.AttrTarget].AsString())
	assert.Equal(t, "abc123", attrs[tracing.AttrBatchID].AsString())
	assert.Equal(t, int64(2), attrs[tracing.AttrTransactions].AsInt64())
	assert.Equal(t, int64(202), attrs[tracing.AttrStatusCode].AsInt64())
}

func TestEndSpanRecordsError(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	_, span := tracer.Start(context.Background(), "submit")
	tracing.EndSpan(span, errors.New("connection refused"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "connection refused", spans[0].Status.Description)
}

func TestInjectHTTPHeaders(t *testing.T) {
	_, tracer := setupTestTracer(t)

	ctx, span := tracer.Start(context.Background(), "inject")
	defer span.End()

	headers := make(http.Header)
	tracing.InjectHTTPHeaders(ctx, headers)
	// version-traceid-spanid-flags
	assert.Len(t, headers.Get("Traceparent"), 55)

	empty := make(http.Header)
	tracing.InjectHTTPHeaders(context.Background(), empty)
	assert.Empty(t, empty.Get("Traceparent"))
}
