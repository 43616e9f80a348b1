package models

import (
	"time"

	"github.com/google/uuid"
)

// Session — серверная запись refresh-токена.
//
// Сам refresh-токен (JWT) клиенту возвращается в открытом виде;
// в БД хранится только SHA-256 хэш подписанной строки. Отзыв сессии
// делает токен недействительным независимо от его встроенного exp.
type Session struct {
	// ID — случайный идентификатор сессии, дублируется в claim `sid` токена.
	ID uuid.UUID
	// UserID — владелец сессии.
	UserID uuid.UUID
	// TokenHash — base64url(SHA-256(signed token)).
	TokenHash string
	// CreatedAt — момент выпуска (UTC).
	CreatedAt time.Time
	// ExpiresAt — момент истечения refresh-токена (UTC).
	ExpiresAt time.Time
	// LastUsedAt — последний успешный refresh по этой сессии (UTC).
	LastUsedAt time.Time
	// Active — false после отзыва.
	Active bool
}
