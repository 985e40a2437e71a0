// Package handlers maps broker topics to the code that processes them.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrHandlerNotFound means a record arrived on a topic nothing is registered
// for. It is a configuration error, never a transient one.
var ErrHandlerNotFound = errors.New("no handler registered for topic")

// MessageHandler processes the raw value of one record.
type MessageHandler interface {
	Handle(ctx context.Context, payload []byte) error
}

// HandlerFunc adapts a function to MessageHandler.
type HandlerFunc func(ctx context.Context, payload []byte) error

func (f HandlerFunc) Handle(ctx context.Context, payload []byte) error {
	return f(ctx, payload)
}

// Registry is an immutable topic to handler mapping. Its topic set is the
// consumer's subscription.
type Registry struct {
	handlers map[string]MessageHandler
	topics   []string
}

// NewRegistry validates and copies handlers. Every topic must be non-empty
// and have a non-nil handler.
func NewRegistry(handlers map[string]MessageHandler) (*Registry, error) {
	if len(handlers) == 0 {
		return nil, errors.New("handler registry needs at least one topic")
	}

	r := &Registry{handlers: make(map[string]MessageHandler, len(handlers))}
	for topic, h := range handlers {
		if topic == "" {
			return nil, errors.New("handler registry: empty topic name")
		}
		if h == nil {
			return nil, fmt.Errorf("handler registry: nil handler for topic %s", topic)
		}
		r.handlers[topic] = h
		r.topics = append(r.topics, topic)
	}
	sort.Strings(r.topics)
	return r, nil
}

// Topics returns the registered topics in sorted order.
func (r *Registry) Topics() []string {
	return append([]string(nil), r.topics...)
}

// Lookup returns the handler for topic.
func (r *Registry) Lookup(topic string) (MessageHandler, bool) {
	h, ok := r.handlers[topic]
	return h, ok
}

// Resolve is Lookup that fails with ErrHandlerNotFound.
func (r *Registry) Resolve(topic string) (MessageHandler, error) {
	h, ok := r.handlers[topic]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, topic)
	}
	return h, nil
}
