package postgres

import (
	"context"
	"fmt"

	"github.com/pribylovaa/orchard-analysis/internal/models"
)

// SaveUsageLog добавляет строку аудита API-запроса.
func (s *Storage) SaveUsageLog(ctx context.Context, entry *models.UsageLog) error {
	const op = "storage.postgres.SaveUsageLog"

	query := `
        INSERT INTO api_usage_logs
            (user_id, ip, endpoint, method, status_code, duration_ms,
             user_agent, request_size, response_size, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `

	_, err := s.db.Exec(ctx, query,
		entry.UserID,
		entry.IP,
		entry.Endpoint,
		entry.Method,
		entry.StatusCode,
		entry.Duration.Milliseconds(),
		entry.UserAgent,
		entry.RequestSize,
		entry.ResponseSize,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
