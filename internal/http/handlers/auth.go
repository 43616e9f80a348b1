package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/pribylovaa/orchard-analysis/internal/errors"
	"github.com/pribylovaa/orchard-analysis/internal/http/middleware"
	"github.com/pribylovaa/orchard-analysis/internal/models"

	"github.com/go-chi/chi/v5"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         userView  `json:"user"`
}

// Login — вход по username-или-email + паролю, выпускает пару токенов.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, errInvalidArgument())
		return
	}

	user, err := h.Auth.Authenticate(r.Context(), in.Username, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, err := h.Auth.IssueTokenPair(r.Context(), user)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
		ExpiresAt:    pair.AccessExpiresAt,
		User:         toUserView(user),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Refresh — новый access-токен по refresh-токену. Refresh не ротируется.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, errInvalidArgument())
		return
	}

	access, expires, err := h.Auth.RefreshAccessToken(r.Context(), in.RefreshToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresAt:   expires,
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Logout отзывает предъявленный access-токен и, если передан,
// refresh-токен вместе с его сессией. Идемпотентен.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.TokenFrom(r.Context()); token != "" {
		h.Auth.RevokeToken(r.Context(), token)
	}

	var in logoutRequest
	// Тело опционально: logout без тела отзывает только access-токен.
	if err := decodeStrict(r, &in); err == nil && in.RefreshToken != "" {
		h.Auth.RevokeToken(r.Context(), in.RefreshToken)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

// Me возвращает профиль владельца предъявленных учётных данных.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserView(user))
}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// CreateUser — создание пользователя администратором.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Auth.RequireRole(r.Context(), middleware.TokenFrom(r.Context()), models.RoleAdmin); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	var in createUserRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, errInvalidArgument())
		return
	}

	user, err := h.Auth.CreateUser(r.Context(), in.Username, in.Email, in.Password, models.ParseRole(in.Role))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserView(user))
}

// DeactivateUser — мягкое удаление пользователя администратором.
func (h *Handlers) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Auth.RequireRole(r.Context(), middleware.TokenFrom(r.Context()), models.RoleAdmin); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, errInvalidArgument())
		return
	}

	if err := h.Auth.DeactivateUser(r.Context(), id); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GenerateAPIKey выпускает API-ключ для владельца токена.
// Открытое значение возвращается единственный раз.
func (h *Handlers) GenerateAPIKey(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	key, err := h.Auth.GenerateAPIKey(r.Context(), user.ID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"api_key": key})
}
