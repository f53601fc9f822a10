package tracing

import (
	"context"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber/jaeger-client-go"
)

func TestInitTracerDisabled(t *testing.T) {
	tracer, closer, err := InitTracer(Config{})
	require.NoError(t, err)
	defer closer()

	assert.IsType(t, opentracing.NoopTracer{}, tracer)
	span, ctx := opentracing.StartSpanFromContext(context.Background(), "noop")
	defer span.Finish()
	assert.Empty(t, LogFields(ctx))
}

func TestLogFieldsFromJaegerSpan(t *testing.T) {
	tracer, closer := jaeger.NewTracer("test", jaeger.NewConstSampler(true), jaeger.NewNullReporter())
	defer closer.Close()

	span := tracer.StartSpan("cycle")
	defer span.Finish()
	ctx := opentracing.ContextWithSpan(context.Background(), span)

	fields := LogFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "trace_id", fields[0].Key)
	assert.Equal(t, span.Context().(jaeger.SpanContext).TraceID().String(), fields[0].String)
	assert.Empty(t, LogFields(context.Background()))
}

func TestSetServiceName(t *testing.T) {
	old := SetServiceName("futures-bot")
	defer SetServiceName(old)
	assert.Equal(t, "futures-bot", serviceName)
}
