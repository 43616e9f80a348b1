package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pribylovaa/orchard-analysis/internal/models"
	"github.com/pribylovaa/orchard-analysis/internal/service"
)

// AuthBearer извлекает Bearer-токен из Authorization и кладёт «сырой» токен
// в контекст. Валидацией занимается ResolveUser/сервисный слой.
func AuthBearer() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")

			if auth != "" {
				const prefix = "Bearer "
				if strings.HasPrefix(auth, prefix) && len(auth) > len(prefix) {
					token := strings.TrimSpace(auth[len(prefix):])

					if token != "" {
						ctx := context.WithValue(r.Context(), ctxKeyToken, token)
						r = r.WithContext(ctx)
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ResolveUser разрешает пользователя по предъявленным учётным данным:
// сначала Bearer-токен, затем X-API-Key. Невалидные данные дают анонимный
// запрос, а не отказ — обязательность auth решают сами эндпоинты.
func ResolveUser(svc *service.Service) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var user *models.User

			if token := TokenFrom(r.Context()); token != "" {
				user = svc.OptionalUser(r.Context(), token)
			}

			if user == nil {
				if key := r.Header.Get("X-API-Key"); key != "" {
					if u, err := svc.VerifyAPIKey(r.Context(), key); err == nil {
						user = u
					}
				}
			}

			if user != nil {
				ctx := context.WithValue(r.Context(), ctxKeyUser, user)
				r = r.WithContext(ctx)
			}

			next.ServeHTTP(w, r)
		})
	}
}
