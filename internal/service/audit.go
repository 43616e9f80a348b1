package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/models"
	"github.com/pribylovaa/orchard-analysis/internal/pkg/log"
)

// LogAPIRequest пишет append-only строку аудита.
//
// Единственная категория ошибок, которая глотается целиком: сбой аудита
// логируется и никогда не доезжает до вызывающего запроса.
func (s *Service) LogAPIRequest(ctx context.Context, entry *models.UsageLog) {
	const op = "service.audit.LogAPIRequest"

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if err := s.storage.SaveUsageLog(ctx, entry); err != nil {
		log.From(ctx).Error("usage_log_failed",
			slog.String("op", op),
			slog.String("endpoint", entry.Endpoint),
			slog.String("err", err.Error()),
		)
	}
}
