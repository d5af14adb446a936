package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the collectors exported by the service.
type Metrics struct {
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	LoginStepsTotal            *prometheus.CounterVec
	CodeDispatchesTotal        *prometheus.CounterVec
	SessionsIssuedTotal        prometheus.Counter
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		LoginStepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otpgate_login_steps_total",
				Help: "Login steps by step and result (ok or rejection reason).",
			},
			[]string{"step", "result"},
		),
		CodeDispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otpgate_code_dispatches_total",
				Help: "One-time code send requests by result.",
			},
			[]string{"result"},
		),
		SessionsIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "otpgate_sessions_issued_total",
				Help: "Sessions issued after a completed login.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.LoginStepsTotal,
		m.CodeDispatchesTotal,
		m.SessionsIssuedTotal,
	)
	return m
}

// ObserveStep records the outcome of a login step.
func (m *Metrics) ObserveStep(step, result string) {
	if m == nil {
		return
	}
	m.LoginStepsTotal.WithLabelValues(step, result).Inc()
}

// ObserveDispatch records the outcome of a code send.
func (m *Metrics) ObserveDispatch(result string) {
	if m == nil {
		return
	}
	m.CodeDispatchesTotal.WithLabelValues(result).Inc()
}

// ObserveSession counts an issued session.
func (m *Metrics) ObserveSession() {
	if m == nil {
		return
	}
	m.SessionsIssuedTotal.Inc()
}
