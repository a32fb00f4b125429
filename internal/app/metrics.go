package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"inclusion-quiz-service/internal/domain"
)

// Metrics groups the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	AttemptsStarted prometheus.Counter
	Submissions     *prometheus.CounterVec
	GradingFailures prometheus.Counter
	ActiveAttempts  prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AttemptsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_attempts_started_total",
			Help: "Total number of quiz attempts started",
		}),
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_submissions_total",
				Help: "Graded quiz submissions by trigger and verdict",
			},
			[]string{"trigger", "verdict"},
		),
		GradingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_grading_failures_total",
			Help: "Grading attempts that failed and left an attempt submitting",
		}),
		ActiveAttempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_active_attempts",
			Help: "Attempts currently held in memory",
		}),
	}
	reg.MustRegister(m.AttemptsStarted, m.Submissions, m.GradingFailures, m.ActiveAttempts)
	return m
}

func (m *Metrics) attemptStarted() {
	if m == nil {
		return
	}
	m.AttemptsStarted.Inc()
	m.ActiveAttempts.Inc()
}

func (m *Metrics) attemptReleased() {
	if m == nil {
		return
	}
	m.ActiveAttempts.Dec()
}

func (m *Metrics) graded(res domain.Result) {
	if m == nil {
		return
	}
	trigger := "learner"
	if res.Forced {
		trigger = "timer"
	}
	m.Submissions.WithLabelValues(trigger, string(res.Verdict)).Inc()
}

func (m *Metrics) gradingFailed() {
	if m == nil {
		return
	}
	m.GradingFailures.Inc()
}
