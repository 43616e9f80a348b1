package handlers

import (
	"net/http"
	"path/filepath"
	"time"

	apierrors "github.com/pribylovaa/orchard-analysis/internal/errors"
	"github.com/pribylovaa/orchard-analysis/internal/http/middleware"
	"github.com/pribylovaa/orchard-analysis/internal/models"
)

// requireAdmin — общая проверка админских эндпоинтов.
func (h *Handlers) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if _, err := h.Auth.RequireRole(r.Context(), middleware.TokenFrom(r.Context()), models.RoleAdmin); err != nil {
		apierrors.WriteError(w, r, err)
		return false
	}

	return true
}

// CreateBackup собирает tar.gz-бандл каталогов данных.
func (h *Handlers) CreateBackup(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	path, err := h.Backup.Create(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"name": filepath.Base(path)})
}

// ListBackups перечисляет бандлы от новых к старым.
func (h *Handlers) ListBackups(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	entries, err := h.Backup.List()
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"backups": entries})
}

// CleanupBackups удаляет бандлы старше срока хранения.
func (h *Handlers) CleanupBackups(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	removed, err := h.Backup.Cleanup(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// SystemStatus — сводка для админ-панели.
func (h *Handlers) SystemStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
		"uptime": time.Since(h.started).String(),
	})
}
