package shutdown

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator() (*Coordinator, chan os.Signal, *int) {
	ch := make(chan os.Signal, 2)
	stops := 0
	return newCoordinator(ch, func() { stops++ }), ch, &stops
}

func TestCoordinator_FiresOnce(t *testing.T) {
	c, ch, _ := newTestCoordinator()
	assert.Nil(t, c.Signal())

	ch <- syscall.SIGTERM
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("coordinator did not fire")
	}
	assert.Equal(t, syscall.SIGTERM, c.Signal())

	// a second signal neither panics nor changes the recorded one
	ch <- os.Interrupt
	assert.Equal(t, syscall.SIGTERM, c.Signal())
	require.NoError(t, c.Wait(context.Background()))
}

func TestCoordinator_WaitRespectsContext(t *testing.T) {
	c, _, _ := newTestCoordinator()
	defer c.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCoordinator_StopIsIdempotent(t *testing.T) {
	c, _, stops := newTestCoordinator()
	c.Stop()
	c.Stop()
	assert.Equal(t, 1, *stops)

	select {
	case <-c.Done():
		t.Fatal("Stop must not fire the coordinator")
	default:
	}
}

func TestRun_SignalCancelsTask(t *testing.T) {
	c, ch, stops := newTestCoordinator()

	started := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(context.Background(), c, func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	<-started
	ch <- os.Interrupt

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("task was not cancelled by the signal")
	}
	assert.Equal(t, 1, *stops)
}

func TestRun_TaskFinishingFirstStopsCoordinator(t *testing.T) {
	c, _, stops := newTestCoordinator()
	boom := errors.New("loop exited")

	err := Run(context.Background(), c, func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, *stops)
	select {
	case <-c.Done():
		t.Fatal("coordinator must not fire when the task ends on its own")
	default:
	}
}

func TestNew_RealSignal(t *testing.T) {
	c := New(syscall.SIGUSR1)
	defer c.Stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
	assert.Equal(t, syscall.SIGUSR1, c.Signal())
}
