package browse

import (
	"time"

	"github.com/Sternrassler/catalog-browser/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for fetch orchestration.
var (
	fetchOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_fetch_outcomes_total",
		Help: "Settled fetches by lineage and outcome",
	}, []string{"lineage", "outcome"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_fetch_duration_seconds",
		Help:    "Fetch latency by lineage",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"lineage"})

	fetchesInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalog_fetches_in_flight",
		Help: "Outstanding fetches by lineage",
	}, []string{"lineage"})
)

// FailureKind splits fetch failures the way they are reported.
type FailureKind string

const (
	// FailureNetwork means the request could not complete.
	FailureNetwork FailureKind = "network"

	// FailureDecode means a response arrived in an unexpected shape.
	FailureDecode FailureKind = "decode"
)

// Report describes one settled fetch.
type Report struct {
	Lineage  Lineage
	Outcome  Outcome
	Err      error
	Duration time.Duration
	Count    int
	Limit    int
	Category string
}

// Failure classifies Err. It returns "" when the fetch did not fail.
func (r Report) Failure() FailureKind {
	if r.Err == nil {
		return ""
	}
	if client.IsDecodeFailure(r.Err) {
		return FailureDecode
	}
	return FailureNetwork
}

// Reporter receives a Report for every settled fetch, including superseded
// ones. Report is called from the orchestrator goroutine and must not block.
type Reporter interface {
	Report(Report)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Report)

// Report calls f(r).
func (f ReporterFunc) Report(r Report) { f(r) }

// LogReporter logs reports with zerolog and records them in Prometheus.
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter creates a LogReporter writing to logger.
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report implements Reporter.
func (r *LogReporter) Report(rep Report) {
	fetchOutcomesTotal.WithLabelValues(string(rep.Lineage), string(rep.Outcome)).Inc()
	fetchDuration.WithLabelValues(string(rep.Lineage)).Observe(rep.Duration.Seconds())

	var event *zerolog.Event
	if rep.Outcome == OutcomeFailed {
		event = r.logger.Warn().
			Err(rep.Err).
			Str("failure", string(rep.Failure())).
			Str("error_class", string(client.ClassOf(rep.Err)))
	} else {
		event = r.logger.Debug().Int("count", rep.Count)
	}

	event = event.
		Str("lineage", string(rep.Lineage)).
		Str("outcome", string(rep.Outcome)).
		Dur("duration", rep.Duration)
	if rep.Lineage == LineageLimit {
		event = event.Int("limit", rep.Limit)
	}
	if rep.Category != "" {
		event = event.Str("category", rep.Category)
	}
	event.Msg("Fetch settled")
}
