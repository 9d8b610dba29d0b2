// Package metrics exposes Prometheus instruments for navigation commands.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the navigation instruments. A nil *Recorder records
// nothing.
type Recorder struct {
	commands    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	stageStatus *prometheus.CounterVec
	planFill    *prometheus.HistogramVec
}

// New creates the instruments and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dicomhang",
				Subsystem: "navigation",
				Name:      "commands_total",
				Help:      "Navigation commands by outcome.",
			},
			[]string{"command", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dicomhang",
				Subsystem: "navigation",
				Name:      "command_duration_seconds",
				Help:      "Navigation command duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		stageStatus: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dicomhang",
				Subsystem: "hanging",
				Name:      "stage_status_total",
				Help:      "Computed stage statuses.",
			},
			[]string{"protocol", "status"},
		),
		planFill: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dicomhang",
				Subsystem: "hanging",
				Name:      "plan_filled_ratio",
				Help:      "Share of grid positions filled by a plan.",
				Buckets:   []float64{0, 0.25, 0.5, 0.75, 1},
			},
			[]string{"protocol"},
		),
	}
	if reg != nil {
		reg.MustRegister(r.commands, r.duration, r.stageStatus, r.planFill)
	}
	return r
}

// Command records one command outcome.
func (r *Recorder) Command(command, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.commands.WithLabelValues(command, outcome).Inc()
	r.duration.WithLabelValues(command).Observe(d.Seconds())
}

// StageStatus records one computed stage status.
func (r *Recorder) StageStatus(protocolID, status string) {
	if r == nil {
		return
	}
	r.stageStatus.WithLabelValues(protocolID, status).Inc()
}

// PlanFill records how many of the planned positions show something.
func (r *Recorder) PlanFill(protocolID string, filled, total int) {
	if r == nil || total == 0 {
		return
	}
	r.planFill.WithLabelValues(protocolID).Observe(float64(filled) / float64(total))
}
