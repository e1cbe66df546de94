package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wake_gate_active_sessions",
		Help: "Number of open gate sessions",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wake_gate_session_duration_seconds",
		Help:    "Duration of gate sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	// Gate metrics
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wake_gate_transitions_total",
		Help: "Total number of participant state transitions",
	}, []string{"from", "to", "cause"}) // cause: "phrase" or "timeout"

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wake_gate_events_total",
		Help: "Total number of transcription events by outcome",
	}, []string{"outcome"})

	participants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wake_gate_participants",
		Help: "Number of participants tracked across all gates",
	})

	// Cue playback metrics
	playbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wake_gate_playbacks_total",
		Help: "Total number of cue playbacks by result",
	}, []string{"cue", "result"})

	// Interruption metrics
	interruptionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wake_gate_interruption_decisions_total",
		Help: "Total number of interruption decisions taken while the bot was speaking",
	}, []string{"result"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wake_gate_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wake_gate_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wake_gate_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Event outcomes
const (
	OutcomeForwarded  = "forwarded"
	OutcomeRewritten  = "rewritten"
	OutcomeDropped    = "dropped"
	OutcomeSuppressed = "suppressed"
	OutcomeError      = "error"
)

// Metrics records metrics for one session. All methods are no-ops on a nil *Metrics so
// components can be used without instrumentation.
type Metrics struct {
	sessionID string
	startTime time.Time
}

// NewSessionMetrics creates a metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// SessionID returns the session the metrics belong to
func (m *Metrics) SessionID() string {
	if m == nil {
		return ""
	}
	return m.sessionID
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	activeSessions.Inc()
}

// RecordSessionEnd records the end of a session
func (m *Metrics) RecordSessionEnd() {
	if m == nil {
		return
	}
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordTransition records a participant state change
func (m *Metrics) RecordTransition(from, to, cause string) {
	if m == nil {
		return
	}
	transitionsTotal.WithLabelValues(from, to, cause).Inc()
}

// RecordEvent records what happened to one transcription event
func (m *Metrics) RecordEvent(outcome string) {
	if m == nil {
		return
	}
	eventsTotal.WithLabelValues(outcome).Inc()
}

// AddParticipants adjusts the tracked participant gauge by delta
func (m *Metrics) AddParticipants(delta int) {
	if m == nil {
		return
	}
	participants.Add(float64(delta))
}

// RecordPlayback records the result of one cue playback
func (m *Metrics) RecordPlayback(cue, result string) {
	if m == nil {
		return
	}
	playbacksTotal.WithLabelValues(cue, result).Inc()
}

// RecordInterruptionDecision records an interruption decision
func (m *Metrics) RecordInterruptionDecision(interrupt bool) {
	if m == nil {
		return
	}
	result := "continue"
	if interrupt {
		result = "interrupt"
	}
	interruptionDecisions.WithLabelValues(result).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	if m == nil {
		return
	}
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
