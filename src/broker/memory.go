package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// MemoryBroker is an in-process broker implementing Dialer. Records sent to
// a topic are delivered to every open consumer subscribed to it. It backs
// local mode and tests.
type MemoryBroker struct {
	mu        sync.Mutex
	closed    bool
	fetchers  map[*memoryFetcher]struct{}
	log       map[string][]Record
	sendErr   error
	opened    int
	released  int
	bufferLen int
}

// NewMemoryBroker creates an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		fetchers:  make(map[*memoryFetcher]struct{}),
		log:       make(map[string][]Record),
		bufferLen: 256,
	}
}

// FailSends makes every subsequent Send fail with err; nil restores normal
// delivery.
func (b *MemoryBroker) FailSends(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendErr = err
}

// Connections reports how many connections were opened and how many of
// them were closed.
func (b *MemoryBroker) Connections() (opened, closed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened, b.released
}

// Records returns every record sent to topic.
func (b *MemoryBroker) Records(topic string) []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Record(nil), b.log[topic]...)
}

// Publish appends a record to topic and delivers it.
func (b *MemoryBroker) Publish(topic string, key, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New("broker is closed")
	}
	rec := Record{
		Topic:     topic,
		Offset:    int64(len(b.log[topic])),
		Key:       key,
		Value:     value,
		Timestamp: time.Now().UnixMilli(),
	}
	b.log[topic] = append(b.log[topic], rec)
	return b.deliver(rec, false)
}

// Inject delivers rec to every open consumer regardless of subscription,
// the way a misconfigured broker or pattern subscription would.
func (b *MemoryBroker) Inject(rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deliver(rec, true)
}

// deliver offers rec to every matching consumer. A consumer whose buffer is
// full misses the record; the others still receive it.
func (b *MemoryBroker) deliver(rec Record, all bool) error {
	var errs []error
	for f := range b.fetchers {
		if !all {
			if _, ok := f.topics[rec.Topic]; !ok {
				continue
			}
		}
		select {
		case f.records <- rec:
		default:
			errs = append(errs, fmt.Errorf("consumer buffer full on topic %s", rec.Topic))
		}
	}
	return errors.Join(errs...)
}

// DialConsumer implements Dialer.
func (b *MemoryBroker) DialConsumer(ctx context.Context, topics []string) (Fetcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("broker is closed")
	}
	f := &memoryFetcher{
		broker:  b,
		topics:  make(map[string]struct{}, len(topics)),
		records: make(chan Record, b.bufferLen),
		done:    make(chan struct{}),
	}
	for _, t := range topics {
		f.topics[t] = struct{}{}
	}
	b.fetchers[f] = struct{}{}
	b.opened++
	return f, nil
}

// DialProducer implements Dialer.
func (b *MemoryBroker) DialProducer(ctx context.Context) (Sender, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("broker is closed")
	}
	b.opened++
	return &memorySender{broker: b}, nil
}

// Subscriptions returns the topic set of every open consumer.
func (b *MemoryBroker) Subscriptions() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out [][]string
	for f := range b.fetchers {
		topics := make([]string, 0, len(f.topics))
		for t := range f.topics {
			topics = append(topics, t)
		}
		out = append(out, topics)
	}
	return out
}

// Close shuts the broker down. Open consumers see ErrClientClosed.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for f := range b.fetchers {
		f.shutdown()
	}
	return nil
}

type memoryFetcher struct {
	broker    *MemoryBroker
	topics    map[string]struct{}
	records   chan Record
	done      chan struct{}
	closeOnce sync.Once
	stopOnce  sync.Once
}

func (f *memoryFetcher) Fetch(ctx context.Context) (Record, error) {
	select {
	case <-f.done:
		return Record{}, ErrClientClosed
	default:
	}
	select {
	case rec := <-f.records:
		return rec, nil
	case <-f.done:
		return Record{}, ErrClientClosed
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
}

func (f *memoryFetcher) shutdown() {
	f.stopOnce.Do(func() { close(f.done) })
}

func (f *memoryFetcher) Close() error {
	f.closeOnce.Do(func() {
		f.shutdown()
		b := f.broker
		b.mu.Lock()
		delete(b.fetchers, f)
		b.released++
		b.mu.Unlock()
	})
	return nil
}

type memorySender struct {
	broker    *MemoryBroker
	closeOnce sync.Once
}

func (s *memorySender) Send(ctx context.Context, topic string, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.broker.mu.Lock()
	sendErr := s.broker.sendErr
	s.broker.mu.Unlock()
	if sendErr != nil {
		return sendErr
	}
	return s.broker.Publish(topic, key, value)
}

func (s *memorySender) Close() error {
	s.closeOnce.Do(func() {
		b := s.broker
		b.mu.Lock()
		b.released++
		b.mu.Unlock()
	})
	return nil
}
