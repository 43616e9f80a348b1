package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey — запись API-ключа пользователя.
//
// Инвариант: у пользователя не более одного активного ключа —
// повторная генерация перезаписывает предыдущий. Открытое значение
// ключа показывается только в момент генерации, в БД лежит хэш.
type APIKey struct {
	UserID    uuid.UUID
	KeyHash   string
	Active    bool
	CreatedAt time.Time
}
