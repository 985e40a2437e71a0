// Package errtrack is the error-tracking boundary. Components hand failures
// they decided not to propagate to a Reporter so they still surface somewhere.
package errtrack

import (
	"context"
	"sort"

	"taskrelay/src/logger"
	"taskrelay/src/metrics"
)

// ComponentTag is the tag key used to label reports by their origin.
const ComponentTag = "component"

// Reporter captures errors that were handled locally.
// Implementations must not panic and must be safe for concurrent use.
type Reporter interface {
	Capture(ctx context.Context, err error, tags map[string]string)
}

// LogReporter writes each report to the logger and counts it.
type LogReporter struct {
	logger logger.Logger
}

// NewLogReporter creates a reporter writing to log.
func NewLogReporter(log logger.Logger) *LogReporter {
	return &LogReporter{logger: log.With("reporter", "errtrack")}
}

// Capture implements Reporter.
func (r *LogReporter) Capture(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}

	component := tags[ComponentTag]
	if component == "" {
		component = "unknown"
	}
	metrics.ErrorsReported.WithLabelValues(component).Inc()

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := make([]interface{}, 0, 2*len(keys)+2)
	kv = append(kv, "error", err.Error())
	for _, k := range keys {
		kv = append(kv, k, tags[k])
	}
	r.logger.Error("Captured error", kv...)
}

// Nop discards every report.
type Nop struct{}

func (Nop) Capture(context.Context, error, map[string]string) {}

// Recorder keeps every report in memory. Tests use it to assert on what a
// component decided to swallow.
type Recorder struct {
	reports chan Report
}

// Report is a single captured error.
type Report struct {
	Err  error
	Tags map[string]string
}

// NewRecorder creates a Recorder that holds up to capacity reports.
func NewRecorder(capacity int) *Recorder {
	return &Recorder{reports: make(chan Report, capacity)}
}

// Capture implements Reporter. Reports beyond capacity are dropped.
func (r *Recorder) Capture(_ context.Context, err error, tags map[string]string) {
	select {
	case r.reports <- Report{Err: err, Tags: tags}:
	default:
	}
}

// Reports drains and returns everything captured so far.
func (r *Recorder) Reports() []Report {
	var out []Report
	for {
		select {
		case rep := <-r.reports:
			out = append(out, rep)
		default:
			return out
		}
	}
}
