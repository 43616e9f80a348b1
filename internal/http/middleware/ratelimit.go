package middleware

import (
	"net/http"
	"strconv"

	apierrors "github.com/pribylovaa/orchard-analysis/internal/errors"
	"github.com/pribylovaa/orchard-analysis/internal/metrics"
	"github.com/pribylovaa/orchard-analysis/internal/ratelimit"
)

// RateLimit — admission control для класса эндпоинтов class.
// Навешивается на маршрут (или группу): класс задаёт свой лимит,
// блокировка при превышении действует на IP целиком.
//
// Успешный допуск сопровождается заголовками X-RateLimit-Limit /
// X-RateLimit-Remaining / X-RateLimit-Reset; отказ — 429 с Retry-After.
func RateLimit(l *ratelimit.Limiter, class string, m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ratelimit.ClientIP(r)

			if err := l.Check(ip, class); err != nil {
				if m != nil {
					m.RateLimited.Inc()
				}
				apierrors.WriteError(w, r, err)
				return
			}

			info := l.Info(ip, class)
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(info.Reset, 10))

			next.ServeHTTP(w, r)
		})
	}
}
