// Package metrics holds the Prometheus collectors shared by the services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "taskrelay"

var (
	RecordsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "records_consumed_total",
		Help:      "Records fetched from the broker, by topic.",
	}, []string{"topic"})

	RecordsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "records_failed_total",
		Help:      "Records whose handler returned an error, by topic.",
	}, []string{"topic"})

	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "handler_duration_seconds",
		Help:      "Time spent in a topic handler.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 30},
	}, []string{"topic"})

	ConsumerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "state",
		Help:      "Current consumer loop state (0 idle, 1 connecting, 2 consuming, 3 draining, 4 stopped).",
	})

	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "producer",
		Name:      "messages_total",
		Help:      "Publish attempts, by topic and outcome.",
	}, []string{"topic", "status"})

	TasksDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "dispatched_total",
		Help:      "Tasks pushed onto the task queue, by task name.",
	}, []string{"task"})

	TasksExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "executed_total",
		Help:      "Tasks executed by the worker, by task name and outcome.",
	}, []string{"task", "status"})

	ErrorsReported = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_reported_total",
		Help:      "Errors handed to the error tracker, by component.",
	}, []string{"component"})
)
