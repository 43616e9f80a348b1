package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/analysis"
	"github.com/pribylovaa/orchard-analysis/internal/ratelimit"
	"github.com/pribylovaa/orchard-analysis/internal/service"
	"github.com/pribylovaa/orchard-analysis/internal/storage"
	"github.com/pribylovaa/orchard-analysis/internal/validation"

	"github.com/stretchr/testify/require"
)

func TestToHTTP_Mapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"nil", nil, http.StatusInternalServerError, "internal"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
		{"invalid_credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, "unauthenticated"},
		{"invalid_token", service.ErrInvalidToken, http.StatusUnauthorized, "unauthenticated"},
		{"unauthenticated", service.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, "permission_denied"},
		{"not_owner", analysis.ErrNotOwner, http.StatusForbidden, "permission_denied"},
		{"user_exists", service.ErrUserExists, http.StatusConflict, "already_exists"},
		{"wrong_state", analysis.ErrWrongState, http.StatusConflict, "wrong_state"},
		{"not_ready", analysis.ErrNotReady, http.StatusConflict, "wrong_state"},
		{"invalid_input", service.ErrInvalidInput, http.StatusBadRequest, "invalid_argument"},
		{"no_files", analysis.ErrNoFiles, http.StatusBadRequest, "invalid_argument"},
		{"bad_extension", validation.ErrExtensionNotAllowed, http.StatusBadRequest, "invalid_argument"},
		{"signature", validation.ErrSignatureMismatch, http.StatusBadRequest, "invalid_argument"},
		{"not_found", storage.ErrNotFound, http.StatusNotFound, "not_found"},
		{"rate_limited", &ratelimit.LimitedError{RetryAfter: time.Minute}, http.StatusTooManyRequests, "rate_limited"},
		{"wrapped", fmt.Errorf("op: %w", service.ErrForbidden), http.StatusForbidden, "permission_denied"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			status, resp := ToHTTP(tc.err)
			require.Equal(t, tc.status, status)
			require.Equal(t, tc.code, resp.Error.Code)
			require.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestToHTTP_CredentialErrorsShareMessage(t *testing.T) {
	t.Parallel()

	// Ответ не различает «нет пользователя», «плохой пароль» и «битый токен».
	_, a := ToHTTP(service.ErrInvalidCredentials)
	_, b := ToHTTP(service.ErrInvalidToken)
	_, c := ToHTTP(service.ErrUnauthenticated)

	require.Equal(t, a.Error.Message, b.Error.Message)
	require.Equal(t, b.Error.Message, c.Error.Message)
}

func TestWriteError_Body(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/analyses", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()

	WriteError(rec, req, service.ErrForbidden)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "permission_denied", resp.Error.Code)
	require.Equal(t, "req-42", resp.Error.RequestID)
}

func TestWriteError_RateLimitedSetsRetryAfter(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	rec := httptest.NewRecorder()

	WriteError(rec, req, fmt.Errorf("check: %w", &ratelimit.LimitedError{RetryAfter: 90 * time.Second}))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "90", rec.Header().Get("Retry-After"))
}
