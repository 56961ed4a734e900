package messaging

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Consumer reads one topic as a member of a consumer group.
type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

type ConsumerOption func(*kafka.ReaderConfig)

// WithStartOffset picks where a group without committed offsets begins:
// kafka.FirstOffset or kafka.LastOffset.
func WithStartOffset(offset int64) ConsumerOption {
	return func(cfg *kafka.ReaderConfig) {
		cfg.StartOffset = offset
	}
}

func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Consumer{
		reader: kafka.NewReader(cfg),
		logger: logger.With("topic", topic, "group", groupID),
	}
}

// Consume feeds messages to handle until ctx is cancelled or the reader fails.
// A message whose handler fails is logged and still committed, so one bad
// event cannot stall its partition.
func (c *Consumer) Consume(ctx context.Context, handle HandlerFunc) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		if err := c.deliver(ctx, msg, handle); err != nil {
			c.logger.Error("failed to process message", "error", err,
				"partition", msg.Partition, "offset", msg.Offset)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, msg kafka.Message, handle HandlerFunc) error {
	cfg := c.reader.Config()
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrierFor(&msg))

	ctx, span := startSpan(ctx, "process", msg.Topic, trace.SpanKindConsumer,
		semconv.MessagingOperationTypeDeliver,
		semconv.MessagingKafkaConsumerGroup(cfg.GroupID),
		semconv.MessagingDestinationPartitionID(strconv.Itoa(msg.Partition)),
		semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
		semconv.MessagingKafkaMessageKey(string(msg.Key)),
	)
	defer span.End()

	if err := handle(ctx, msg.Value); err != nil {
		return recordFailure(span, err)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
