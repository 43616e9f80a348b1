package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/orchard-analysis/internal/metrics"
	"github.com/pribylovaa/orchard-analysis/internal/models"
	"github.com/pribylovaa/orchard-analysis/internal/ratelimit"
	"github.com/pribylovaa/orchard-analysis/internal/service"
)

// Audit пишет строку аудита на каждый запрос и обновляет счётчики
// Prometheus. Ставится после ResolveUser, чтобы знать пользователя.
//
// Заголовок X-Process-Time выставляется в момент записи статуса:
// позже менять заголовки уже нельзя.
func Audit(svc *service.Service, m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			sw := newStatusWriter(w)
			sw.beforeHeader = func(w http.ResponseWriter) {
				w.Header().Set("X-Process-Time", fmt.Sprintf("%.4f", time.Since(start).Seconds()))
			}

			next.ServeHTTP(sw, r)

			dur := time.Since(start)
			endpoint := routePattern(r)

			if m != nil {
				m.Requests.WithLabelValues(endpoint, r.Method).Inc()
				if sw.status >= http.StatusBadRequest {
					m.Errors.WithLabelValues(endpoint).Inc()
				}
			}

			entry := &models.UsageLog{
				IP:           ratelimit.ClientIP(r),
				Endpoint:     endpoint,
				Method:       r.Method,
				StatusCode:   sw.status,
				Duration:     dur,
				UserAgent:    r.UserAgent(),
				RequestSize:  max64(r.ContentLength, 0),
				ResponseSize: int64(sw.count),
			}
			if user := UserFrom(r.Context()); user != nil {
				id := user.ID
				entry.UserID = &id
			}

			svc.LogAPIRequest(r.Context(), entry)
		})
	}
}

// routePattern — шаблон маршрута chi ("/analyses/{id}"), а не сырой путь:
// метрики не должны взрываться по кардинальности на каждом UUID.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}

	return r.URL.Path
}

func max64(v, floor int64) int64 {
	if v < floor {
		return floor
	}

	return v
}
