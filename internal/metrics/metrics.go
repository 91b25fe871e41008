package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "artwork"

// Message outcomes recorded by the feedback worker.
const (
	OutcomeAcked                = "acked"
	OutcomeRejectedMalformed    = "rejected_malformed"
	OutcomeRejectedNotFound     = "rejected_not_found"
	OutcomeRejectedNonRetryable = "rejected_non_retryable"
	OutcomeRequeued             = "requeued"
	OutcomeDeadLettered         = "dead_lettered"
	OutcomeSkippedTerminal      = "skipped_terminal"
)

var (
	messagesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "messages_total",
			Help:      "Count of result messages by terminal outcome.",
		},
		[]string{"outcome"},
	)
	notificationsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "notifications_total",
			Help:      "Count of student notification attempts by result.",
		},
		[]string{"result"},
	)
	submissionsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "submissions_total",
			Help:      "Count of artwork submissions by result.",
		},
		[]string{"result"},
	)
	retryBackoff = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "retry_backoff_seconds",
			Help:      "Backoff waited before requeueing a failed result message.",
			Buckets:   []float64{1, 5, 15, 45, 60},
		},
	)
)

var registerMetrics sync.Once

// Register all metrics with the default registry.
func Register() {
	registerMetrics.Do(func() {
		prometheus.MustRegister(messagesCounter)
		prometheus.MustRegister(notificationsCounter)
		prometheus.MustRegister(submissionsCounter)
		prometheus.MustRegister(retryBackoff)
	})
}

// RecordMessage records the terminal outcome of one delivery.
func RecordMessage(outcome string) {
	messagesCounter.WithLabelValues(outcome).Inc()
}

func RecordNotification(success bool) {
	notificationsCounter.WithLabelValues(resultLabel(success)).Inc()
}

// RecordSubmission records an intake result, e.g. "accepted" or "asset_fetch_failed".
func RecordSubmission(result string) {
	submissionsCounter.WithLabelValues(result).Inc()
}

func RecordRetryBackoff(d time.Duration) {
	retryBackoff.Observe(d.Seconds())
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
