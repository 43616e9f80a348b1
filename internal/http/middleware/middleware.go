package middleware

import (
	"context"
	"net/http"

	"github.com/pribylovaa/orchard-analysis/internal/models"
)

// Middleware — стандартный net/http мидлвар.
type Middleware func(http.Handler) http.Handler

// Chain применяет мидлвары к обработчику в порядке их перечисления.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyToken
	ctxKeyUser
)

// RequestIDFrom возвращает request id из контекста или "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// TokenFrom возвращает «сырой» Bearer-токен из контекста или "".
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(ctxKeyToken).(string)
	return token
}

// UserFrom возвращает аутентифицированного пользователя из контекста
// или nil для анонимного запроса.
func UserFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(ctxKeyUser).(*models.User)
	return user
}

// statusWriter оборачивает ResponseWriter, чтобы перехватить статус и размер.
type statusWriter struct {
	http.ResponseWriter
	status int
	count  int

	// beforeHeader вызывается один раз перед записью статуса: последняя
	// возможность выставить заголовки ответа.
	beforeHeader func(w http.ResponseWriter)
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 && w.beforeHeader != nil {
		w.beforeHeader(w.ResponseWriter)
	}
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}

	count, err := w.ResponseWriter.Write(p)
	w.count += count
	return count, err
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w}
}
