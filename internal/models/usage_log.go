package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageLog — append-only строка аудита API-запроса.
// Пишется best-effort: сбой записи не должен валить основной запрос.
type UsageLog struct {
	UserID       *uuid.UUID
	IP           string
	Endpoint     string
	Method       string
	StatusCode   int
	Duration     time.Duration
	UserAgent    string
	RequestSize  int64
	ResponseSize int64
	CreatedAt    time.Time
}
