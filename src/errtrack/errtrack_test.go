package errtrack

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"taskrelay/src/logger"
	"taskrelay/src/metrics"
)

func TestLogReporter_Capture(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := NewLogReporter(logger.FromZap(zap.New(core)))

	before := testutil.ToFloat64(metrics.ErrorsReported.WithLabelValues("producer"))
	r.Capture(context.Background(), errors.New("broker unreachable"), map[string]string{
		ComponentTag: "producer",
		"topic":      "Sample.Topic",
	})

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "broker unreachable", fields["error"])
	assert.Equal(t, "Sample.Topic", fields["topic"])
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ErrorsReported.WithLabelValues("producer")))
}

func TestLogReporter_IgnoresNil(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := NewLogReporter(logger.FromZap(zap.New(core)))

	r.Capture(context.Background(), nil, nil)
	assert.Equal(t, 0, logs.Len())
}

func TestLogReporter_UnknownComponent(t *testing.T) {
	r := NewLogReporter(logger.NewSilentLogger())

	before := testutil.ToFloat64(metrics.ErrorsReported.WithLabelValues("unknown"))
	r.Capture(context.Background(), errors.New("boom"), nil)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ErrorsReported.WithLabelValues("unknown")))
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(1)
	r.Capture(context.Background(), errors.New("first"), map[string]string{"k": "v"})
	r.Capture(context.Background(), errors.New("dropped"), nil)

	reports := r.Reports()
	require.Len(t, reports, 1)
	assert.EqualError(t, reports[0].Err, "first")
	assert.Empty(t, r.Reports())
}
