package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"taskrelay/src/errtrack"
	"taskrelay/src/jsoncodec"
	"taskrelay/src/logger"
	"taskrelay/src/metrics"
)

// TaskFunc executes one task payload.
type TaskFunc func(ctx context.Context, payload []byte) error

// Worker pops envelopes off the queue and runs the registered task for each.
type Worker struct {
	client      QueueClient
	queue       string
	tasks       map[string]TaskFunc
	reporter    errtrack.Reporter
	logger      logger.Logger
	pollTimeout time.Duration
	retryDelay  time.Duration
}

// NewWorker creates a worker for queue. tasks must not be modified afterwards.
func NewWorker(client QueueClient, queue string, tasks map[string]TaskFunc, reporter errtrack.Reporter, log logger.Logger) *Worker {
	return &Worker{
		client:      client,
		queue:       queue,
		tasks:       tasks,
		reporter:    reporter,
		logger:      log.With("component", "worker", "queue", queue),
		pollTimeout: 5 * time.Second,
		retryDelay:  time.Second,
	}
}

// Run processes tasks until ctx is cancelled. Task failures are reported
// and never stop the worker.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Worker started", "tasks", len(w.tasks))
	defer w.logger.Info("Worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := w.client.BRPop(ctx, w.pollTimeout, w.queue).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.reporter.Capture(ctx, fmt.Errorf("failed to pop task: %w", err), map[string]string{
				errtrack.ComponentTag: "worker",
			})
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.retryDelay):
			}
			continue
		}
		// BRPOP replies with [key, value]
		if len(res) != 2 {
			continue
		}
		w.execute(ctx, []byte(res[1]))
	}
}

func (w *Worker) execute(ctx context.Context, raw []byte) {
	var env Envelope
	if err := jsoncodec.Unmarshal(raw, &env); err != nil {
		w.reporter.Capture(ctx, fmt.Errorf("failed to decode task envelope: %w", err), map[string]string{
			errtrack.ComponentTag: "worker",
		})
		return
	}

	tags := map[string]string{errtrack.ComponentTag: "worker", "task": env.Task, "task_id": env.ID}
	fn, ok := w.tasks[env.Task]
	if !ok {
		metrics.TasksExecuted.WithLabelValues(env.Task, "unknown").Inc()
		w.reporter.Capture(ctx, fmt.Errorf("no task registered as %q", env.Task), tags)
		return
	}

	if err := runTask(ctx, fn, env.Payload); err != nil {
		metrics.TasksExecuted.WithLabelValues(env.Task, "error").Inc()
		w.reporter.Capture(ctx, fmt.Errorf("task %s failed: %w", env.Task, err), tags)
		return
	}
	metrics.TasksExecuted.WithLabelValues(env.Task, "ok").Inc()
}

func runTask(ctx context.Context, fn TaskFunc, payload []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return fn(ctx, payload)
}

// SimpleTask logs whatever it receives.
func SimpleTask(log logger.Logger) TaskFunc {
	return func(ctx context.Context, payload []byte) error {
		log.Info("Receiving data", "data", string(payload))
		return nil
	}
}
