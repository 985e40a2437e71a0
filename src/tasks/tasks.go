// Package tasks hands work to the background task queue and runs it on the
// worker side. The queue is a Redis list of JSON envelopes.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"taskrelay/src/config"
	"taskrelay/src/ids"
	"taskrelay/src/jsoncodec"
	"taskrelay/src/logger"
	"taskrelay/src/metrics"
)

// Dispatcher enqueues a named task with an opaque payload.
type Dispatcher interface {
	Dispatch(ctx context.Context, task string, payload []byte) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, task string, payload []byte) error

func (f DispatcherFunc) Dispatch(ctx context.Context, task string, payload []byte) error {
	return f(ctx, task, payload)
}

// Envelope is the unit stored on the queue.
type Envelope struct {
	ID         string    `json:"id"`
	Task       string    `json:"task"`
	Payload    []byte    `json:"payload"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// QueueClient is the subset of the Redis client the queue needs.
type QueueClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// NewRedisClient connects to the task queue and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.TaskQueue) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to task queue at %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// RedisDispatcher pushes envelopes onto a Redis list.
type RedisDispatcher struct {
	client QueueClient
	queue  string
	logger logger.Logger
}

// NewRedisDispatcher creates a dispatcher writing to queue.
func NewRedisDispatcher(client QueueClient, queue string, log logger.Logger) *RedisDispatcher {
	return &RedisDispatcher{
		client: client,
		queue:  queue,
		logger: log.With("component", "dispatcher", "queue", queue),
	}
}

// Dispatch implements Dispatcher.
func (d *RedisDispatcher) Dispatch(ctx context.Context, task string, payload []byte) error {
	env := Envelope{
		ID:         ids.MessageKey(),
		Task:       task,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
	data, err := jsoncodec.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", task, err)
	}
	if err := d.client.LPush(ctx, d.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", task, err)
	}

	metrics.TasksDispatched.WithLabelValues(task).Inc()
	d.logger.Debug("Dispatched task", "task", task, "task_id", env.ID)
	return nil
}
