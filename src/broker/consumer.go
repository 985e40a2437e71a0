package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"taskrelay/src/errtrack"
	"taskrelay/src/handlers"
	"taskrelay/src/logger"
	"taskrelay/src/metrics"
)

// State is a consumer lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConsuming
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConsuming:
		return "consuming"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// ErrAlreadyStarted is returned by Run on a consumer that already ran.
var ErrAlreadyStarted = errors.New("consumer already started")

// Consumer pulls records one at a time and dispatches each to the handler
// registered for its topic.
type Consumer struct {
	dialer         Dialer
	registry       *handlers.Registry
	reporter       errtrack.Reporter
	logger         logger.Logger
	handlerTimeout time.Duration
	retryDelay     time.Duration
	state          atomic.Int32
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithHandlerTimeout bounds every handler call. Zero disables the bound;
// handlers are still abandoned when the consumer is cancelled.
//
// An abandoned handler is not stopped: its goroutine keeps running while
// the consumer moves on to the next record. Handlers must return promptly
// once their context is done.
func WithHandlerTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.handlerTimeout = d }
}

// WithRetryDelay sets the pause after a failed fetch.
func WithRetryDelay(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.retryDelay = d }
}

// NewConsumer creates a consumer subscribed to the registry's topics.
func NewConsumer(dialer Dialer, registry *handlers.Registry, reporter errtrack.Reporter, log logger.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		dialer:         dialer,
		registry:       registry,
		reporter:       reporter,
		logger:         log.With("component", "consumer"),
		handlerTimeout: 30 * time.Second,
		retryDelay:     time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Topics returns the subscription, which is exactly the registry's topic set.
func (c *Consumer) Topics() []string {
	return c.registry.Topics()
}

// State returns the current lifecycle state.
func (c *Consumer) State() State {
	return State(c.state.Load())
}

func (c *Consumer) setState(s State) {
	c.state.Store(int32(s))
	metrics.ConsumerState.Set(float64(s))
	c.logger.Debug("Consumer state changed", "state", s.String())
}

// Run consumes until ctx is cancelled. Processing errors are reported and
// consumption continues. Run returns an error only when the connection
// cannot be opened or a record arrives on a topic with no handler. The
// connection is closed exactly once on every exit path.
func (c *Consumer) Run(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return ErrAlreadyStarted
	}
	metrics.ConsumerState.Set(float64(StateConnecting))

	topics := c.Topics()
	fetcher, err := c.dialer.DialConsumer(ctx, topics)
	if err != nil {
		c.setState(StateStopped)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to connect consumer: %w", err)
	}
	defer c.drain(fetcher)

	c.setState(StateConsuming)
	c.logger.Info("Consuming", "topics", topics)

	for {
		if ctx.Err() != nil {
			return nil
		}

		rec, err := fetcher.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, ErrClientClosed) {
				c.logger.Warn("Consumer connection closed")
				return nil
			}
			c.capture(ctx, err, "")
			if !c.pause(ctx) {
				return nil
			}
			continue
		}

		if err := c.process(ctx, rec); err != nil {
			if errors.Is(err, handlers.ErrHandlerNotFound) {
				c.capture(ctx, err, rec.Topic)
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			c.capture(ctx, err, rec.Topic)
		}
	}
}

// drain closes the connection and marks the consumer stopped.
func (c *Consumer) drain(fetcher Fetcher) {
	c.setState(StateDraining)
	if err := fetcher.Close(); err != nil {
		c.capture(context.Background(), fmt.Errorf("failed to close consumer: %w", err), "")
	}
	c.setState(StateStopped)
	c.logger.Info("Consumer stopped")
}

func (c *Consumer) pause(ctx context.Context) bool {
	if c.retryDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) process(ctx context.Context, rec Record) error {
	handler, err := c.registry.Resolve(rec.Topic)
	if err != nil {
		return err
	}

	metrics.RecordsConsumed.WithLabelValues(rec.Topic).Inc()
	c.logger.Debug("Consumed record",
		"topic", rec.Topic,
		"partition", rec.Partition,
		"offset", rec.Offset,
		"key", string(rec.Key),
		"timestamp", rec.Timestamp)

	hctx, cancel := ctx, context.CancelFunc(func() {})
	if c.handlerTimeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, c.handlerTimeout)
	}
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- invoke(hctx, handler, rec.Value) }()

	select {
	case err = <-done:
	case <-hctx.Done():
		err = fmt.Errorf("handler abandoned: %w", hctx.Err())
	}
	metrics.HandlerDuration.WithLabelValues(rec.Topic).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RecordsFailed.WithLabelValues(rec.Topic).Inc()
		return fmt.Errorf("topic %s partition %d offset %d: %w", rec.Topic, rec.Partition, rec.Offset, err)
	}
	return nil
}

func invoke(ctx context.Context, h handlers.MessageHandler, payload []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()
	return h.Handle(ctx, payload)
}

func (c *Consumer) capture(ctx context.Context, err error, topic string) {
	tags := map[string]string{errtrack.ComponentTag: "consumer"}
	if topic != "" {
		tags["topic"] = topic
	}
	c.reporter.Capture(ctx, err, tags)
}
