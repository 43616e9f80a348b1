package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/analysis"
	"github.com/pribylovaa/orchard-analysis/internal/backup"
	"github.com/pribylovaa/orchard-analysis/internal/http/middleware"
	"github.com/pribylovaa/orchard-analysis/internal/models"
	"github.com/pribylovaa/orchard-analysis/internal/service"
)

// Handlers агрегирует зависимости HTTP-слоя.
type Handlers struct {
	Auth     *service.Service
	Analysis *analysis.Service
	Backup   *backup.Manager

	started time.Time
}

func New(auth *service.Service, an *analysis.Service, bk *backup.Manager) *Handlers {
	return &Handlers{
		Auth:     auth,
		Analysis: an,
		Backup:   bk,
		started:  time.Now(),
	}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

// errInvalidArgument — локальная ошибка парсинга -> 400.
func errInvalidArgument() error {
	return fmt.Errorf("%w: malformed request body", service.ErrInvalidInput)
}

// requireUser возвращает пользователя запроса или ErrUnauthenticated.
// Пользователь разрешается мидлваром ResolveUser (Bearer или X-API-Key).
func requireUser(r *http.Request) (*models.User, error) {
	user := middleware.UserFrom(r.Context())
	if user == nil {
		return nil, service.ErrUnauthenticated
	}

	return user, nil
}

// userView — публичное представление пользователя (без хэша пароля).
type userView struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func toUserView(u *models.User) userView {
	return userView{
		ID:          u.ID.String(),
		Username:    u.Username,
		Email:       u.Email,
		Role:        string(u.Role),
		Active:      u.Active,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}
