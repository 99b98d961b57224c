package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"slackagent/pkg/config"
)

func TestSetupNoneIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{Exporter: "none"}, "test", nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupUnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.TracingConfig{Exporter: "zipkin"}, "test", nil)
	require.ErrorIs(t, err, ErrUnknownExporter)
}

func TestSetupStdoutWritesSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), config.TracingConfig{Exporter: "stdout", ServiceName: "slackagent"}, "test", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "workflow.run")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "workflow.run")
}
