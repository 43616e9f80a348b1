package models

import "time"

// TokenPair — пара токенов, выдаваемая при успешной аутентификации.
//
// Описание:
//   - AccessToken — короткоживущий JWT для доступа к API;
//   - RefreshToken — долгоживущий JWT, по которому выпускается новый access;
//     на сервере хранится только хэш (см. Session);
//   - AccessExpiresAt — момент истечения access-токена (UTC).
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}
