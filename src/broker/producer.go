package broker

import (
	"context"
	"fmt"

	"taskrelay/src/errtrack"
	"taskrelay/src/ids"
	"taskrelay/src/jsoncodec"
	"taskrelay/src/logger"
	"taskrelay/src/metrics"
)

// Message is anything that knows where it goes and what it carries.
type Message interface {
	Topic() string
	Payload() any
	Key() string
}

// NewKey returns a fresh random message key.
func NewKey() string {
	return ids.MessageKey()
}

// Producer publishes single messages, best effort. Every call opens its own
// connection and closes it before returning.
type Producer struct {
	dialer   Dialer
	reporter errtrack.Reporter
	logger   logger.Logger
}

// NewProducer creates a producer.
func NewProducer(dialer Dialer, reporter errtrack.Reporter, log logger.Logger) *Producer {
	return &Producer{
		dialer:   dialer,
		reporter: reporter,
		logger:   log.With("component", "producer"),
	}
}

// Publish sends payload as JSON to topic under key. Failures, including
// panics in the client, are reported and never returned: a message can be
// lost.
func (p *Producer) Publish(ctx context.Context, topic string, payload any, key string) {
	defer func() {
		if r := recover(); r != nil {
			p.fail(ctx, topic, fmt.Errorf("publish panicked: %v", r))
		}
	}()

	value, err := jsoncodec.Marshal(payload)
	if err != nil {
		p.fail(ctx, topic, fmt.Errorf("failed to encode payload: %w", err))
		return
	}

	sender, err := p.dialer.DialProducer(ctx)
	if err != nil {
		p.fail(ctx, topic, fmt.Errorf("failed to connect producer: %w", err))
		return
	}
	defer func() {
		if err := sender.Close(); err != nil {
			p.reporter.Capture(ctx, fmt.Errorf("failed to close producer: %w", err), map[string]string{
				errtrack.ComponentTag: "producer",
				"topic":               topic,
			})
		}
	}()

	if err := sender.Send(ctx, topic, []byte(key), value); err != nil {
		p.fail(ctx, topic, err)
		return
	}

	metrics.MessagesPublished.WithLabelValues(topic, "ok").Inc()
	p.logger.Debug("Published message", "topic", topic, "key", key, "bytes", len(value))
}

// PublishMessage publishes m.
func (p *Producer) PublishMessage(ctx context.Context, m Message) {
	p.Publish(ctx, m.Topic(), m.Payload(), m.Key())
}

func (p *Producer) fail(ctx context.Context, topic string, err error) {
	metrics.MessagesPublished.WithLabelValues(topic, "error").Inc()
	p.reporter.Capture(ctx, err, map[string]string{
		errtrack.ComponentTag: "producer",
		"topic":               topic,
	})
}
