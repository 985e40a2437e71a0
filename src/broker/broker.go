// Package broker consumes and produces records on a Kafka-compatible broker.
package broker

import (
	"context"
	"errors"
)

// ErrClientClosed is returned by Fetch once the underlying client is closed.
var ErrClientClosed = errors.New("broker client closed")

// Record is a record read from the broker.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	// Key is nil when the record has no key.
	Key   []byte
	Value []byte
	// Timestamp is in Unix milliseconds.
	Timestamp int64
}

// Dialer opens broker connections. Each connection is owned by the caller
// and must be closed exactly once.
type Dialer interface {
	// DialConsumer subscribes to every topic in topics at once.
	DialConsumer(ctx context.Context, topics []string) (Fetcher, error)
	DialProducer(ctx context.Context) (Sender, error)
}

// Fetcher is a consuming connection.
type Fetcher interface {
	// Fetch blocks until one record is available or ctx is done.
	Fetch(ctx context.Context) (Record, error)
	Close() error
}

// Sender is a producing connection.
type Sender interface {
	Send(ctx context.Context, topic string, key, value []byte) error
	Close() error
}
