package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var durationBuckets = []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800}

// Metrics holds the rollback collectors. A nil *Metrics records nothing.
type Metrics struct {
	rollbacks  *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	polls      *prometheus.CounterVec
	pollErrors *prometheus.CounterVec
}

// New registers the rollback collectors with reg. Collectors that are
// already registered are reused.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rewind",
			Name:      "rollbacks_total",
			Help:      "Rollbacks by outcome",
		}, []string{"service", "stage", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rewind",
			Name:      "rollback_duration_seconds",
			Help:      "Time from request to terminal outcome",
			Buckets:   durationBuckets,
		}, []string{"result"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rewind",
			Subsystem: "monitor",
			Name:      "polls_total",
			Help:      "Stack status polls by classified state",
		}, []string{"state"}),
		pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rewind",
			Subsystem: "monitor",
			Name:      "poll_errors_total",
			Help:      "Failed stack status reads, counted before retry",
		}, []string{"stack"}),
	}

	m.rollbacks = register(reg, m.rollbacks).(*prometheus.CounterVec)
	m.duration = register(reg, m.duration).(*prometheus.HistogramVec)
	m.polls = register(reg, m.polls).(*prometheus.CounterVec)
	m.pollErrors = register(reg, m.pollErrors).(*prometheus.CounterVec)
	return m
}

func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}

// Rollback records one finished rollback. result is "success" or an
// error kind.
func (m *Metrics) Rollback(service, stage, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.rollbacks.With(prometheus.Labels{"service": service, "stage": stage, "result": result}).Inc()
	m.duration.With(prometheus.Labels{"result": result}).Observe(elapsed.Seconds())
}

func (m *Metrics) Poll(state string) {
	if m == nil {
		return
	}
	m.polls.With(prometheus.Labels{"state": state}).Inc()
}

func (m *Metrics) PollError(stack string) {
	if m == nil {
		return
	}
	m.pollErrors.With(prometheus.Labels{"stack": stack}).Inc()
}
