// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход он принимает доменную ошибку сервисного слоя, а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
//
// Источник истинности по маппингу: sentinel-ошибки пакетов
// service, analysis, validation, ratelimit и storage.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/pribylovaa/orchard-analysis/internal/analysis"
	"github.com/pribylovaa/orchard-analysis/internal/ratelimit"
	"github.com/pribylovaa/orchard-analysis/internal/service"
	"github.com/pribylovaa/orchard-analysis/internal/storage"
	"github.com/pribylovaa/orchard-analysis/internal/validation"
)

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует доменную ошибку в HTTP-статус и унифицированный
// ответ для фронта.
//
// Поведение:
//   - err == nil — это программная ошибка вызова: возвращаем 500/internal,
//     чтобы не послать "200 OK" с телом ошибки и не маскировать баг;
//   - неизвестная ошибка — 500/internal (без утечки деталей).
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := mapError(err)

	return status, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
// Для отказа лимитера дополнительно выставляет Retry-After.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	// Прокидываем request_id для фронта, чтобы он мог репортить баги с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	var limited *ratelimit.LimitedError
	if errors.As(err, &limited) {
		secs := int(limited.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// mapError — базовый маппинг доменных ошибок -> HTTP/FE-код/сообщение:
//   - invalid credentials / invalid token / unauthenticated -> 401
//     (единое сообщение: ответ не должен подсказывать, что именно не так);
//   - forbidden / not owner -> 403
//   - user exists -> 409
//   - wrong state / not ready -> 409
//   - invalid input / ошибки валидации файлов -> 400
//   - not found -> 404
//   - rate limited -> 429
//   - прочее -> 500/internal.
func mapError(err error) (int, string, string) {
	var limited *ratelimit.LimitedError

	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal", "internal error"
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated", "authentication required"
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, analysis.ErrNotOwner):
		return http.StatusForbidden, "permission_denied", "permission denied"
	case errors.Is(err, service.ErrUserExists):
		return http.StatusConflict, "already_exists", "already exists"
	case errors.Is(err, analysis.ErrWrongState),
		errors.Is(err, analysis.ErrNotReady):
		return http.StatusConflict, "wrong_state", "operation not applicable in the current state"
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, analysis.ErrNoFiles),
		errors.Is(err, validation.ErrExtensionNotAllowed),
		errors.Is(err, validation.ErrFileTooLarge),
		errors.Is(err, validation.ErrEmptyFile),
		errors.Is(err, validation.ErrSignatureMismatch):
		return http.StatusBadRequest, "invalid_argument", "invalid argument"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.As(err, &limited):
		return http.StatusTooManyRequests, "rate_limited", "too many requests"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
