// Package metrics exposes the trigger engine counters to prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trezcool/feedback/core/feedback"
)

const namespace = "feedback"

// Recorder is a feedback.Recorder backed by prometheus collectors.
type Recorder struct {
	Triggers        *prometheus.CounterVec
	TriggerDuration *prometheus.HistogramVec
}

var _ feedback.Recorder = (*Recorder)(nil) // interface compliance check

// NewRecorder registers its collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		Triggers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "trigger",
				Name:      "total",
				Help:      "Number of evaluated triggers by trigger type and outcome",
			},
			[]string{"trigger_type", "outcome"},
		),
		TriggerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "trigger",
				Name:      "duration_seconds",
				Help:      "Trigger evaluation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"trigger_type"},
		),
	}
}

func (r *Recorder) ObserveTrigger(trigger feedback.TriggerType, outcome string, elapsed time.Duration) {
	label := string(trigger)
	if !trigger.IsValid() {
		label = "unknown" // keep label cardinality bounded
	}
	r.Triggers.WithLabelValues(label, outcome).Inc()
	r.TriggerDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}
