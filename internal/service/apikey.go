package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/models"
	"github.com/pribylovaa/orchard-analysis/internal/storage"

	"github.com/google/uuid"
)

// apiKeyPrefix идентифицирует ключи сервиса в логах и конфигурациях
// клиентов, не раскрывая сам секрет.
const apiKeyPrefix = "oa_"

// GenerateAPIKey выпускает API-ключ для пользователя.
//
// Доступно только ролям admin и premium. У пользователя не более одного
// активного ключа: повторная генерация перезаписывает предыдущий.
// Открытое значение возвращается один раз; в БД хранится только хэш.
func (s *Service) GenerateAPIKey(ctx context.Context, userID uuid.UUID) (string, error) {
	const op = "service.apikey.GenerateAPIKey"

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%s: %w", op, ErrForbidden)
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	switch user.Role {
	case models.RoleAdmin, models.RolePremium:
		// allowed
	case models.RoleStandard:
		return "", fmt.Errorf("%s: %w", op, ErrForbidden)
	default:
		return "", fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	if !user.Active {
		return "", fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	plain := apiKeyPrefix + base64.RawURLEncoding.EncodeToString(b)

	key := &models.APIKey{
		UserID:    userID,
		KeyHash:   hashToken(plain),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.storage.UpsertAPIKey(ctx, key); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return plain, nil
}

// VerifyAPIKey находит владельца ключа.
// Требует активный ключ И активного владельца; иначе ErrUnauthenticated.
func (s *Service) VerifyAPIKey(ctx context.Context, key string) (*models.User, error) {
	const op = "service.apikey.VerifyAPIKey"

	if key == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	record, err := s.storage.APIKeyByHash(ctx, hashToken(key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.UserByID(ctx, record.UserID)
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
