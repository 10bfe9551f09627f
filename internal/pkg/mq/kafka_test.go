package mq

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestKafkaHeaderCarrier_SetOverwrites(t *testing.T) {
	c := KafkaHeaderCarrier{}
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	c.Set("baggage", "k=v")

	assert.Equal(t, "b", c.Get("traceparent"))
	assert.Equal(t, "k=v", c.Get("baggage"))
	assert.ElementsMatch(t, []string{"traceparent", "baggage"}, c.Keys())
	assert.Equal(t, "", c.Get("missing"))
}

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	var headers []kafka.Header
	InjectTraceContext(ctx, &headers)
	require.NotEmpty(t, headers)

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), headers))
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
}
