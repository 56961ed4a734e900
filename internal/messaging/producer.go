package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Producer publishes events to one topic. Messages are hashed by key, so
// events for one user or order keep their relative order.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	topic := p.writer.Topic

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	ctx, span := startSpan(ctx, "send", topic, trace.SpanKindProducer,
		semconv.MessagingOperationTypePublish,
		semconv.MessagingKafkaMessageKey(key),
	)
	defer span.End()

	msg := kafka.Message{Key: []byte(key), Value: value}
	otel.GetTextMapPropagator().Inject(ctx, carrierFor(&msg))

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return recordFailure(span, fmt.Errorf("write %s message: %w", topic, err))
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
