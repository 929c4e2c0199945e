package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks the span failed and records err on it.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}

// SetHTTPStatus records the response status and marks 5xx responses failed.
func SetHTTPStatus(span trace.Span, status int) {
	span.SetAttributes(attribute.Int(HTTPStatusKey, status))

	if status >= 500 {
		span.SetStatus(codes.Error, "server error")
	}
}
