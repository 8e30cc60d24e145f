package oauth2

import "github.com/prometheus/client_golang/prometheus"

// Stats is the counter sink the decision machine reports to. Access to
// the underlying storage is the host's responsibility; this package only
// ever calls Inc.
type Stats interface {
	PassThrough()
	Success()
	UnauthorizedRequest()
	Failure()
	RefreshTokenSuccess()
	RefreshTokenFailure()
}

// PrometheusStats is the default Stats implementation, registering one
// counter per stat name under the given namespace/subsystem.
type PrometheusStats struct {
	passThrough          prometheus.Counter
	success              prometheus.Counter
	unauthorizedRequest  prometheus.Counter
	failure              prometheus.Counter
	refreshTokenSuccess  prometheus.Counter
	refreshTokenFailure  prometheus.Counter
}

// NewPrometheusStats registers the oauth2gate counters with reg.
func NewPrometheusStats(reg prometheus.Registerer, namespace string) *PrometheusStats {
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oauth2",
			Name:      name,
			Help:      help,
		})
		reg.MustRegister(c)
		return c
	}

	return &PrometheusStats{
		passThrough:         counter("passthrough_total", "Requests that matched a pass-through header matcher."),
		success:             counter("success_total", "Requests that carried or obtained a valid session."),
		unauthorizedRequest: counter("unauthorized_rq_total", "Requests redirected to the identity provider."),
		failure:             counter("failure_total", "Requests rejected with 401."),
		refreshTokenSuccess: counter("refreshtoken_success_total", "Successful refresh-token exchanges."),
		refreshTokenFailure: counter("refreshtoken_failure_total", "Failed refresh-token exchanges."),
	}
}

func (s *PrometheusStats) PassThrough()         { s.passThrough.Inc() }
func (s *PrometheusStats) Success()             { s.success.Inc() }
func (s *PrometheusStats) UnauthorizedRequest() { s.unauthorizedRequest.Inc() }
func (s *PrometheusStats) Failure()             { s.failure.Inc() }
func (s *PrometheusStats) RefreshTokenSuccess() { s.refreshTokenSuccess.Inc() }
func (s *PrometheusStats) RefreshTokenFailure() { s.refreshTokenFailure.Inc() }

// NopStats discards all counts; useful in tests that don't care about
// stats assertions.
type NopStats struct{}

func (NopStats) PassThrough()         {}
func (NopStats) Success()             {}
func (NopStats) UnauthorizedRequest() {}
func (NopStats) Failure()             {}
func (NopStats) RefreshTokenSuccess() {}
func (NopStats) RefreshTokenFailure() {}
