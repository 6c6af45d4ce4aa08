package ludus

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Invocation outcomes used as the "outcome" label.
const (
	OutcomeOK        = "ok"
	OutcomeExists    = "exists"
	OutcomeNotFound  = "not_found"
	OutcomeConfigKey = "config_key"
	OutcomeExecution = "execution"
	OutcomeTimeout   = "timeout"
	OutcomeCanceled  = "canceled"
	OutcomeMalformed = "malformed"
	OutcomeError     = "error"
)

// Metrics holds the Prometheus collectors for tool invocations.
type Metrics struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ludus",
				Subsystem: "tool",
				Name:      "invocations_total",
				Help:      "Tool invocations by verb and outcome.",
			},
			[]string{"verb", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ludus",
				Subsystem: "tool",
				Name:      "invocation_duration_seconds",
				Help:      "Tool invocation duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"verb"},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.invocations, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(verb string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(verb, outcomeOf(err)).Inc()
	m.duration.WithLabelValues(verb).Observe(d.Seconds())
}

// outcomeOf maps a controller error to its outcome label.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrInstanceExists):
		return OutcomeExists
	case errors.Is(err, ErrInstanceNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrConfigKey):
		return OutcomeConfigKey
	case errors.Is(err, ErrInstanceExecution):
		return OutcomeExecution
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.Is(err, ErrMalformedOutput):
		return OutcomeMalformed
	default:
		return OutcomeError
	}
}
