package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskrelay/src/errtrack"
	"taskrelay/src/jsoncodec"
	"taskrelay/src/logger"
)

// memoryQueue is a QueueClient backed by a slice.
type memoryQueue struct {
	mu      sync.Mutex
	lists   map[string][]string
	pushErr error
	popErr  error
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{lists: make(map[string][]string)}
}

func (q *memoryQueue) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pushErr != nil {
		return redis.NewIntResult(0, q.pushErr)
	}
	for _, v := range values {
		var s string
		switch v := v.(type) {
		case []byte:
			s = string(v)
		case string:
			s = v
		}
		q.lists[key] = append([]string{s}, q.lists[key]...)
	}
	return redis.NewIntResult(int64(len(q.lists[key])), nil)
}

func (q *memoryQueue) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		if q.popErr != nil {
			err := q.popErr
			q.mu.Unlock()
			return redis.NewStringSliceResult(nil, err)
		}
		for _, key := range keys {
			if l := q.lists[key]; len(l) > 0 {
				v := l[len(l)-1]
				q.lists[key] = l[:len(l)-1]
				q.mu.Unlock()
				return redis.NewStringSliceResult([]string{key, v}, nil)
			}
		}
		q.mu.Unlock()

		if time.Now().After(deadline) {
			return redis.NewStringSliceResult(nil, redis.Nil)
		}
		select {
		case <-ctx.Done():
			return redis.NewStringSliceResult(nil, ctx.Err())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (q *memoryQueue) items(key string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.lists[key]...)
}

func TestRedisDispatcher_Dispatch(t *testing.T) {
	q := newMemoryQueue()
	d := NewRedisDispatcher(q, "sample_queue", logger.NewSilentLogger())

	require.NoError(t, d.Dispatch(context.Background(), "simple_task", []byte(`{"a":1}`)))

	items := q.items("sample_queue")
	require.Len(t, items, 1)

	var env Envelope
	require.NoError(t, jsoncodec.Unmarshal([]byte(items[0]), &env))
	assert.Equal(t, "simple_task", env.Task)
	assert.JSONEq(t, `{"a":1}`, string(env.Payload))
	assert.NotEmpty(t, env.ID)
	assert.False(t, env.EnqueuedAt.IsZero())
}

func TestRedisDispatcher_PushError(t *testing.T) {
	q := newMemoryQueue()
	q.pushErr = errors.New("connection refused")
	d := NewRedisDispatcher(q, "sample_queue", logger.NewSilentLogger())

	err := d.Dispatch(context.Background(), "simple_task", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWorker_RunsRegisteredTasks(t *testing.T) {
	q := newMemoryQueue()
	d := NewRedisDispatcher(q, "q", logger.NewSilentLogger())
	rec := errtrack.NewRecorder(10)

	got := make(chan string, 1)
	w := NewWorker(q, "q", map[string]TaskFunc{
		"echo": func(ctx context.Context, payload []byte) error {
			got <- string(payload)
			return nil
		},
	}, rec, logger.NewSilentLogger())
	w.pollTimeout = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, d.Dispatch(ctx, "echo", []byte(`"hello"`)))

	select {
	case payload := <-got:
		assert.Equal(t, `"hello"`, payload)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not executed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Empty(t, rec.Reports())
}

func TestWorker_ReportsFailures(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"bad envelope", `not json`, "decode task envelope"},
		{"unknown task", `{"id":"1","task":"missing","payload":null}`, `no task registered as "missing"`},
		{"task error", `{"id":"2","task":"fail","payload":null}`, "task fail failed: boom"},
		{"task panic", `{"id":"3","task":"panic","payload":null}`, "task panicked: kaboom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := errtrack.NewRecorder(1)
			w := NewWorker(newMemoryQueue(), "q", map[string]TaskFunc{
				"fail":  func(context.Context, []byte) error { return errors.New("boom") },
				"panic": func(context.Context, []byte) error { panic("kaboom") },
			}, rec, logger.NewSilentLogger())

			w.execute(context.Background(), []byte(tt.raw))

			reports := rec.Reports()
			require.Len(t, reports, 1)
			assert.Contains(t, reports[0].Err.Error(), tt.wantErr)
			assert.Equal(t, "worker", reports[0].Tags[errtrack.ComponentTag])
		})
	}
}

func TestWorker_PopErrorIsReportedAndRetried(t *testing.T) {
	q := newMemoryQueue()
	q.popErr = errors.New("i/o timeout")
	rec := errtrack.NewRecorder(100)
	w := NewWorker(q, "q", nil, rec, logger.NewSilentLogger())
	w.retryDelay = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.NoError(t, w.Run(ctx))
	reports := rec.Reports()
	require.NotEmpty(t, reports)
	assert.Contains(t, reports[0].Err.Error(), "i/o timeout")
}
