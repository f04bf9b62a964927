package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracer_UnsupportedExporter(t *testing.T) {
	_, err := InitTracer(Config{Enabled: true, Exporter: "zipkin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zipkin")
}

func TestInitTracer_Stdout(t *testing.T) {
	original := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(original) })

	var buf bytes.Buffer
	shutdown, err := InitTracer(Config{
		ServiceName:    "gridplan-test",
		ServiceVersion: "test",
		Environment:    "test",
		Exporter:       ExporterStdout,
		Enabled:        true,
		Writer:         &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("tracing_test").Start(context.Background(), "planner.Optimize")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "planner.Optimize")
	assert.Contains(t, buf.String(), "gridplan-test")
}
