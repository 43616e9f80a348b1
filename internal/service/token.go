package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/models"
	"github.com/pribylovaa/orchard-analysis/internal/pkg/log"
	"github.com/pribylovaa/orchard-analysis/internal/storage"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Дискриминатор типа токена (claim `typ`). Access-токен никогда не
// принимается на месте refresh-токена и наоборот.
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type accessClaims struct {
	UserID    string `json:"uid"`
	Username  string `json:"username,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Claims — проверенное содержимое access-токена.
type Claims struct {
	UserID   uuid.UUID
	Username string
	Role     models.Role
	Expires  time.Time
}

// GenerateAccessToken выпускает access-токен для пользователя.
func (s *Service) GenerateAccessToken(user *models.User) (string, time.Time, error) {
	const op = "service.token.GenerateAccessToken"

	now := time.Now().UTC()
	expires := now.Add(s.cfg.AccessTokenTTL)

	claims := accessClaims{
		UserID:    user.ID.String(),
		Username:  user.Username,
		Role:      string(user.Role),
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, expires, nil
}

// VerifyAccessToken проверяет access-токен и возвращает его claims.
//
// Любая причина отказа (подпись, срок, тип, отзыв, мусор на входе)
// сводится к ErrInvalidToken.
func (s *Service) VerifyAccessToken(ctx context.Context, tokenStr string) (*Claims, error) {
	const op = "service.token.VerifyAccessToken"

	if s.isRevoked(ctx, tokenStr) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5*time.Second),
		jwt.WithIssuer(s.cfg.Issuer),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if claims.TokenType != tokenTypeAccess {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return &Claims{
		UserID:   uid,
		Username: claims.Username,
		Role:     models.ParseRole(claims.Role),
		Expires:  claims.ExpiresAt.Time,
	}, nil
}

// GenerateRefreshToken выпускает refresh-токен и сохраняет сессию.
// Клиенту уходит подписанный JWT; в БД остаётся только SHA-256 хэш,
// поэтому сессию можно отозвать независимо от встроенного exp.
func (s *Service) GenerateRefreshToken(ctx context.Context, userID uuid.UUID) (string, error) {
	const op = "service.token.GenerateRefreshToken"

	lg := log.From(ctx)

	now := time.Now().UTC()
	sessionID := uuid.New()
	expires := now.Add(s.cfg.RefreshTokenTTL)

	claims := refreshClaims{
		UserID:    userID.String(),
		SessionID: sessionID.String(),
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		lg.Error("refresh_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	session := &models.Session{
		ID:         sessionID,
		UserID:     userID,
		TokenHash:  hashToken(signed),
		CreatedAt:  now,
		ExpiresAt:  expires,
		LastUsedAt: now,
		Active:     true,
	}

	if err := s.storage.SaveSession(ctx, session); err != nil {
		lg.Error("save_session_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// IssueTokenPair выпускает пару access+refresh для пользователя.
func (s *Service) IssueTokenPair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	const op = "service.token.IssueTokenPair"

	access, expires, err := s.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh, err := s.GenerateRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     access,
		RefreshToken:    refresh,
		AccessExpiresAt: expires,
	}, nil
}

// RefreshAccessToken выпускает новый access-токен по refresh-токену.
//
// Refresh-токен должен быть корректно подписан, типа refresh, не просрочен
// и числиться активной сессией в хранилище. Сам refresh-токен не ротируется.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (string, time.Time, error) {
	const op = "service.token.RefreshAccessToken"

	lg := log.From(ctx)

	claims := &refreshClaims{}
	token, err := jwt.ParseWithClaims(refreshToken, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5*time.Second),
		jwt.WithIssuer(s.cfg.Issuer),
	)
	if err != nil || !token.Valid || claims.TokenType != tokenTypeRefresh {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	session, err := s.storage.SessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		lg.Error("session_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	if !session.Active || now.After(session.ExpiresAt) || session.TokenHash != hashToken(refreshToken) {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	user, err := s.storage.UserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	if !user.Active {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	// Best-effort: сбой отметки использования не срывает выпуск токена.
	if err := s.storage.TouchSession(ctx, sessionID, now); err != nil {
		lg.Warn("touch_session_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}

	access, expires, err := s.GenerateAccessToken(user)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return access, expires, nil
}

// RevokeToken отзывает токен: немедленно для этого процесса (blacklist),
// для refresh-токенов — дополнительно деактивирует сессию в хранилище.
//
// Запись blacklist'а держится до exp токена; для токена, который не удалось
// разобрать, берётся консервативный дедлайн now+AccessTokenTTL.
func (s *Service) RevokeToken(ctx context.Context, tokenStr string) {
	const op = "service.token.RevokeToken"

	lg := log.From(ctx)

	now := time.Now().UTC()
	until := now.Add(s.cfg.AccessTokenTTL)

	claims := &refreshClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err == nil && token.Valid {
		if claims.ExpiresAt != nil {
			until = claims.ExpiresAt.Time
		}

		if claims.TokenType == tokenTypeRefresh {
			if sid, perr := uuid.Parse(claims.SessionID); perr == nil {
				if rerr := s.storage.RevokeSession(ctx, sid); rerr != nil && !errors.Is(rerr, storage.ErrNotFound) {
					lg.Warn("revoke_session_failed",
						slog.String("op", op),
						slog.String("err", rerr.Error()),
					)
				}
			}
		}
	}

	s.revoked.add(tokenStr, until)

	if s.rstore != nil {
		if err := s.rstore.Add(ctx, tokenStr, time.Until(until)); err != nil {
			lg.Warn("revocation_store_add_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}
	}
}

// isRevoked проверяет токен по процессному blacklist'у и, если
// сконфигурирован, по разделяемому стору. Ошибка стора не блокирует
// проверку — решает локальный список.
func (s *Service) isRevoked(ctx context.Context, token string) bool {
	if s.revoked.contains(token) {
		return true
	}

	if s.rstore != nil {
		revoked, err := s.rstore.Contains(ctx, token)
		if err != nil {
			log.From(ctx).Warn("revocation_store_lookup_failed",
				slog.String("err", err.Error()),
			)
			return false
		}

		return revoked
	}

	return false
}

func (s *Service) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, ErrInvalidToken
	}

	return []byte(s.cfg.JWTSecret), nil
}

// hashToken — base64url(SHA-256(token)); в БД не попадает сам токен.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
