package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound — запись не найдена (пользователь/сессия/ключ/анализ).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (username/email/хэш токена).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создает нового пользователя.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByUsername находит активного пользователя по username.
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	// UserByEmail находит активного пользователя по email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// UpdateLastLogin обновляет отметку последнего входа.
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	// DeactivateUser сбрасывает флаг active (мягкое удаление).
	DeactivateUser(ctx context.Context, id uuid.UUID) error
}

// SessionStorage выполняет операции над refresh-сессиями.
type SessionStorage interface {
	// SaveSession сохраняет новую сессию refresh-токена.
	SaveSession(ctx context.Context, s *models.Session) error
	// SessionByID находит сессию по её идентификатору.
	SessionByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	// TouchSession обновляет отметку последнего использования.
	TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error
	// RevokeSession деактивирует сессию. Возвращает ErrNotFound,
	// если сессии не существует.
	RevokeSession(ctx context.Context, id uuid.UUID) error
	// DeleteExpiredSessions удаляет все просроченные сессии.
	DeleteExpiredSessions(ctx context.Context, now time.Time) error
}

// APIKeyStorage выполняет операции над API-ключами.
type APIKeyStorage interface {
	// UpsertAPIKey сохраняет ключ пользователя, перезаписывая предыдущий.
	UpsertAPIKey(ctx context.Context, key *models.APIKey) error
	// APIKeyByHash находит активный ключ по хэшу.
	APIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error)
}

// UsageLogStorage пишет append-only аудит API-запросов.
type UsageLogStorage interface {
	// SaveUsageLog добавляет строку аудита.
	SaveUsageLog(ctx context.Context, entry *models.UsageLog) error
}

// AnalysisStorage выполняет операции над заданиями анализа.
type AnalysisStorage interface {
	// SaveAnalysis создает новое задание.
	SaveAnalysis(ctx context.Context, a *models.Analysis) error
	// AnalysisByID находит задание по идентификатору.
	AnalysisByID(ctx context.Context, id uuid.UUID) (*models.Analysis, error)
	// UpdateAnalysisStatus переводит задание в новый статус.
	UpdateAnalysisStatus(ctx context.Context, id uuid.UUID, status models.AnalysisStatus, errMsg string) error
	// UpdateAnalysisResult записывает результаты и пути отчётов.
	UpdateAnalysisResult(ctx context.Context, a *models.Analysis) error
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	SessionStorage
	APIKeyStorage
	UsageLogStorage
	AnalysisStorage
	Close()
}
