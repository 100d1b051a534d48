package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestInitStdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := Init(ctx, Config{ServiceName: "flowgraph-test", Exporter: ExporterStdout, Output: &buf})
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry_test").Start(ctx, "unit-span")
	span.End()

	require.NoError(t, shutdown(ctx))
	assert.Contains(t, buf.String(), "unit-span")
	assert.Contains(t, buf.String(), "flowgraph-test")
}

func TestInitWithoutExporter(t *testing.T) {
	ctx := context.Background()
	shutdown, err := Init(ctx, Config{})
	require.NoError(t, err)
	defer shutdown(ctx)

	_, span := otel.Tracer("telemetry_test").Start(ctx, "quiet")
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.SpanContext().IsSampled())
	span.End()

	carrier := propagation.MapCarrier{}
	ctx, span = otel.Tracer("telemetry_test").Start(ctx, "outbound")
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	span.End()
	assert.NotEmpty(t, carrier.Get("traceparent"))
}

func TestUnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{Exporter: "zipkin"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
