// Package shutdown turns OS termination signals into a one-shot cancellation.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Coordinator delivers a single terminal event when the process is asked to
// stop. It cannot be reset; create one per run.
type Coordinator struct {
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
	stopOnce sync.Once
	stop     func()
	received os.Signal
}

// New starts listening for the given signals, SIGINT and SIGTERM by default.
func New(signals ...os.Signal) *Coordinator {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	return newCoordinator(ch, func() { signal.Stop(ch) })
}

func newCoordinator(ch <-chan os.Signal, stop func()) *Coordinator {
	c := &Coordinator{
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		stop:    stop,
	}
	go c.watch(ch)
	return c
}

func (c *Coordinator) watch(ch <-chan os.Signal) {
	select {
	case sig := <-ch:
		c.fire(sig)
	case <-c.stopped:
	}
}

func (c *Coordinator) fire(sig os.Signal) {
	c.once.Do(func() {
		c.received = sig
		close(c.done)
	})
}

// Done is closed once a shutdown signal has been received.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until a shutdown signal arrives or ctx ends, whichever is
// first. It returns ctx.Err() in the latter case.
func (c *Coordinator) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Signal returns the signal that fired the coordinator, or nil.
func (c *Coordinator) Signal() os.Signal {
	select {
	case <-c.done:
		return c.received
	default:
		return nil
	}
}

// Stop releases the OS signal subscription. Done is not closed by Stop.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		if c.stop != nil {
			c.stop()
		}
		close(c.stopped)
	})
}

// Run executes task with a context that is cancelled when the coordinator
// fires. Whichever finishes first ends the other: a signal cancels the task,
// and a task that returns on its own stops the coordinator.
func Run(ctx context.Context, c *Coordinator, task func(ctx context.Context) error) error {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.Stop()

	go func() {
		select {
		case <-c.Done():
			cancel()
		case <-taskCtx.Done():
		}
	}()

	return task(taskCtx)
}
