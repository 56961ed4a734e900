package messaging

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	TopicOrderPlaced    = "order.placed"
	TopicSessionChanged = "session.changed"
)

// Publisher sends one JSON-encoded event under key.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// HandlerFunc processes one message payload.
type HandlerFunc func(ctx context.Context, payload []byte) error

var tracer = otel.Tracer("storefront/messaging")

// startSpan opens a "<operation> <topic>" span carrying the Kafka messaging
// attributes shared by producers and consumers.
func startSpan(ctx context.Context, operation, topic string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		semconv.MessagingSystemKafka,
		semconv.MessagingOperationName(operation),
		semconv.MessagingDestinationName(topic),
	)
	return tracer.Start(ctx, operation+" "+topic, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

func recordFailure(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
