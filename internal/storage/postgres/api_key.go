package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/pribylovaa/orchard-analysis/internal/models"
	"github.com/pribylovaa/orchard-analysis/internal/storage"

	"github.com/jackc/pgx/v5"
)

// UpsertAPIKey сохраняет ключ пользователя, перезаписывая предыдущий.
// Уникальность по user_id гарантирует «не более одного активного ключа».
func (s *Storage) UpsertAPIKey(ctx context.Context, key *models.APIKey) error {
	const op = "storage.postgres.UpsertAPIKey"

	query := `
        INSERT INTO api_keys(user_id, key_hash, active, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id) DO UPDATE
        SET key_hash = EXCLUDED.key_hash,
            active = EXCLUDED.active,
            created_at = EXCLUDED.created_at
    `

	_, err := s.db.Exec(ctx, query,
		key.UserID,
		key.KeyHash,
		key.Active,
		key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// APIKeyByHash находит активный ключ по хэшу.
func (s *Storage) APIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	const op = "storage.postgres.APIKeyByHash"

	query := `
        SELECT user_id, key_hash, active, created_at
        FROM api_keys
        WHERE key_hash = $1 AND active = TRUE
    `

	var key models.APIKey
	err := s.db.QueryRow(ctx, query, hash).Scan(
		&key.UserID,
		&key.KeyHash,
		&key.Active,
		&key.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &key, nil
}
