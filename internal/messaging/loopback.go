package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Loopback delivers published events to handlers in the same process. It
// stands in for Kafka when no brokers are configured.
type Loopback struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]HandlerFunc
}

func NewLoopback(logger *slog.Logger) *Loopback {
	return &Loopback{
		logger:   logger,
		handlers: make(map[string][]HandlerFunc),
	}
}

func (l *Loopback) Subscribe(topic string, handler HandlerFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[topic] = append(l.handlers[topic], handler)
}

// Publisher returns a Publisher bound to topic.
func (l *Loopback) Publisher(topic string) Publisher {
	return loopbackPublisher{loopback: l, topic: topic}
}

func (l *Loopback) deliver(ctx context.Context, topic string, payload []byte) {
	l.mu.RLock()
	handlers := append([]HandlerFunc(nil), l.handlers[topic]...)
	l.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, payload); err != nil {
			l.logger.Error("failed to process message", "error", err, "topic", topic)
		}
	}
}

type loopbackPublisher struct {
	loopback *Loopback
	topic    string
}

func (p loopbackPublisher) Publish(ctx context.Context, _ string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", p.topic, err)
	}

	p.loopback.deliver(context.WithoutCancel(ctx), p.topic, data)
	return nil
}
