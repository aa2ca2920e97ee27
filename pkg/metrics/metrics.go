package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ugcPipeline = "ugc_pipeline"

	// Job metrics
	jobsStartedTotal  = "jobs_started_total"
	jobsFinishedTotal = "jobs_finished_total"
	jobsInFlight      = "jobs_in_flight"

	// Stage metrics
	stageAttemptsTotal     = "stage_attempts_total"
	stageDurationSeconds   = "stage_duration_seconds"
	promptSourceTotal      = "prompt_source_total"
	eventsDroppedTotal     = "events_dropped_total"
	archiveOperationsTotal = "archive_operations_total"

	// Labels
	statusLabel  = "status"
	stepLabel    = "step"
	outcomeLabel = "outcome"
	sourceLabel  = "source"
)

const (
	OutcomeSuccess   = "success"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomePermanent = "permanent"
)

/**
* Metrics definition
**/
var jobsStartedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: ugcPipeline,
		Name:      jobsStartedTotal,
		Help:      "number of pipeline jobs started",
	},
)

var jobsFinishedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: ugcPipeline,
		Name:      jobsFinishedTotal,
		Help:      "number of pipeline jobs that reached a terminal status",
	},
	[]string{statusLabel},
)

var jobsInFlightMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: ugcPipeline,
		Name:      jobsInFlight,
		Help:      "number of pipeline jobs executing in this process",
	},
)

var stageAttemptsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: ugcPipeline,
		Name:      stageAttemptsTotal,
		Help:      "number of stage invocations partitioned by step and outcome",
	},
	[]string{stepLabel, outcomeLabel},
)

var stageDurationSecondsMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: ugcPipeline,
		Name:      stageDurationSeconds,
		Help:      "time spent in a stage including retries",
		Buckets:   []float64{0.1, 1, 5, 15, 60, 180, 600},
	},
	[]string{stepLabel},
)

var promptSourceTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: ugcPipeline,
		Name:      promptSourceTotal,
		Help:      "number of resolved prompts partitioned by the tier they came from",
	},
	[]string{sourceLabel},
)

var eventsDroppedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: ugcPipeline,
		Name:      eventsDroppedTotal,
		Help:      "number of lifecycle events that could not be written",
	},
)

var archiveOperationsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: ugcPipeline,
		Name:      archiveOperationsTotal,
		Help:      "number of terminal job records archived partitioned by outcome",
	},
	[]string{outcomeLabel},
)

func IncreaseJobsStarted() {
	jobsStartedTotalMetric.Inc()
	jobsInFlightMetric.Inc()
}

func IncreaseJobsFinished(status string) {
	jobsFinishedTotalMetric.With(prometheus.Labels{statusLabel: status}).Inc()
	jobsInFlightMetric.Dec()
}

func IncreaseStageAttempts(step, outcome string) {
	stageAttemptsTotalMetric.With(prometheus.Labels{
		stepLabel:    step,
		outcomeLabel: outcome,
	}).Inc()
}

func ObserveStageDuration(step string, seconds float64) {
	stageDurationSecondsMetric.With(prometheus.Labels{stepLabel: step}).Observe(seconds)
}

func IncreasePromptSource(source string) {
	promptSourceTotalMetric.With(prometheus.Labels{sourceLabel: source}).Inc()
}

func IncreaseEventsDropped() {
	eventsDroppedTotalMetric.Inc()
}

func IncreaseArchiveOperations(outcome string) {
	archiveOperationsTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsStartedTotalMetric)
	prometheus.MustRegister(jobsFinishedTotalMetric)
	prometheus.MustRegister(jobsInFlightMetric)
	prometheus.MustRegister(stageAttemptsTotalMetric)
	prometheus.MustRegister(stageDurationSecondsMetric)
	prometheus.MustRegister(promptSourceTotalMetric)
	prometheus.MustRegister(eventsDroppedTotalMetric)
	prometheus.MustRegister(archiveOperationsTotalMetric)
}
