// metrics — счётчики Prometheus HTTP-слоя.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics агрегирует счётчики сервиса. Регистрируется в переданном
// Registerer один раз на старте.
type Metrics struct {
	Requests    *prometheus.CounterVec
	Errors      *prometheus.CounterVec
	RateLimited prometheus.Counter
}

// New создаёт и регистрирует счётчики.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchard_http_requests_total",
			Help: "HTTP requests by endpoint and method.",
		}, []string{"endpoint", "method"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchard_http_errors_total",
			Help: "HTTP responses with status >= 400 by endpoint.",
		}, []string{"endpoint"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchard_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
	}

	reg.MustRegister(m.Requests, m.Errors, m.RateLimited)

	return m
}
