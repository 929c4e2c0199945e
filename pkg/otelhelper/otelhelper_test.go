package otelhelper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpanHelpers(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, span := StartSpan(context.Background(), tracer, "GET /api/bots", attribute.String(RequestIDKey, "req-1"))
	SetHTTPStatus(span, 502)
	SetError(span, errors.New("bad gateway"))
	span.End()

	_, okSpan := StartSpan(context.Background(), tracer, "GET /api/stats")
	SetHTTPStatus(okSpan, 200)
	SetError(okSpan, nil)
	okSpan.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Len(t, spans[0].Events(), 2)
	assert.Contains(t, spans[0].Attributes(), attribute.String(RequestIDKey, "req-1"))

	assert.Equal(t, codes.Unset, spans[1].Status().Code)
	assert.Empty(t, spans[1].Events())
}
