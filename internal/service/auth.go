package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/models"
	"github.com/pribylovaa/orchard-analysis/internal/pkg/log"
	"github.com/pribylovaa/orchard-analysis/internal/pkg/redact"
	"github.com/pribylovaa/orchard-analysis/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Минимальные требования к входным данным при создании пользователя.
const (
	minUsernameLen = 3
	minPasswordLen = 8
)

// Параметры бутстрапа: первый запуск создаёт administrator'а с паролем
// по умолчанию, который оператор обязан сменить.
const (
	defaultAdminUsername = "admin"
	defaultAdminEmail    = "admin@orchard-analysis.local"
	defaultAdminPassword = "admin123"
)

// Authenticate выполняет вход по username-или-email + паролю.
//
// «Нет такого пользователя» и «неверный пароль» неразличимы для вызывающего:
// оба случая возвращают ErrInvalidCredentials. Успешный вход обновляет
// отметку последнего входа; неудачные попытки логируются на Warn.
func (s *Service) Authenticate(ctx context.Context, usernameOrEmail, password string) (*models.User, error) {
	const op = "service.auth.Authenticate"

	lg := log.From(ctx)

	login := strings.TrimSpace(usernameOrEmail)
	if login == "" || password == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.lookupActiveUser(ctx, login)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("login_failed",
				slog.String("op", op),
				slog.String("login", redact.Username(login)),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		lg.Warn("login_failed",
			slog.String("op", op),
			slog.String("login", redact.Username(login)),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	now := time.Now().UTC()
	// Best-effort: неудача обновления не должна срывать вход.
	if err := s.storage.UpdateLastLogin(ctx, user.ID, now); err != nil {
		lg.Warn("update_last_login_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}
	user.LastLoginAt = &now

	return user, nil
}

// lookupActiveUser ищет активного пользователя сначала по username,
// затем по email.
func (s *Service) lookupActiveUser(ctx context.Context, login string) (*models.User, error) {
	user, err := s.storage.UserByUsername(ctx, login)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	return s.storage.UserByEmail(ctx, login)
}

// CreateUser создает нового пользователя.
//
// Валидация: username >= 3 символов, пароль >= 8 символов, email непустой.
// Неизвестная роль сводится к standard. Дубликат username/email — ErrUserExists.
func (s *Service) CreateUser(ctx context.Context, username, email, password string, role models.Role) (*models.User, error) {
	const op = "service.auth.CreateUser"

	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if len([]rune(username)) < minUsernameLen || len([]rune(password)) < minPasswordLen || email == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidInput)
	}

	if !role.Valid() {
		role = models.RoleStandard
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserExists)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByID возвращает пользователя по идентификатору.
func (s *Service) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "service.auth.UserByID"

	user, err := s.storage.UserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// DeactivateUser мягко удаляет пользователя.
func (s *Service) DeactivateUser(ctx context.Context, id uuid.UUID) error {
	const op = "service.auth.DeactivateUser"

	if err := s.storage.DeactivateUser(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// EnsureDefaultAdmin — идемпотентный бутстрап пользователя admin.
// Повторные запуски никогда не создают дубликатов: существующий admin
// (и гонка двух одновременных стартов) завершает операцию без ошибки.
func (s *Service) EnsureDefaultAdmin(ctx context.Context) error {
	const op = "service.auth.EnsureDefaultAdmin"

	lg := log.From(ctx)

	_, err := s.storage.UserByUsername(ctx, defaultAdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.CreateUser(ctx, defaultAdminUsername, defaultAdminEmail, defaultAdminPassword, models.RoleAdmin)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("default_admin_created", slog.String("op", op))

	return nil
}

// RequireAuthenticated проверяет access-токен и возвращает его владельца.
// Любой дефект учётных данных — ErrUnauthenticated.
func (s *Service) RequireAuthenticated(ctx context.Context, token string) (*models.User, error) {
	const op = "service.auth.RequireAuthenticated"

	if token == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	claims, err := s.VerifyAccessToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	user, err := s.storage.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.Active {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	return user, nil
}

// RequireRole — как RequireAuthenticated, но дополнительно требует роль.
// Валидный токен с недостаточной ролью — ErrForbidden, не ErrUnauthenticated.
func (s *Service) RequireRole(ctx context.Context, token string, role models.Role) (*models.User, error) {
	const op = "service.auth.RequireRole"

	user, err := s.RequireAuthenticated(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch user.Role {
	case models.RoleAdmin:
		// Admin проходит любую проверку роли.
		return user, nil
	case models.RolePremium, models.RoleStandard:
		if user.Role == role {
			return user, nil
		}

		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	default:
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}
}

// OptionalUser возвращает владельца токена или nil, если токен не предъявлен
// или не прошёл проверку. Никогда не возвращает ошибку — используется
// эндпоинтами, различающими анонимных и аутентифицированных клиентов.
func (s *Service) OptionalUser(ctx context.Context, token string) *models.User {
	if token == "" {
		return nil
	}

	user, err := s.RequireAuthenticated(ctx, token)
	if err != nil {
		return nil
	}

	return user
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем. Любая внутренняя ошибка
// (включая битый хэш) — false, без паники и без логирования пароля.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
