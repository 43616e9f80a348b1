// service содержит бизнес-логику backend'а анализа садов:
// аутентификацию пользователей, выпуск/проверку/отзыв токенов,
// API-ключи и аудит запросов поверх интерфейсов пакета storage.
//
// Основные аспекты:
//   - Экземпляр Service безопасен для конкурентного использования из разных
//     горутин при условии, что переданное хранилище (storage.Storage)
//     потокобезопасно; список отозванных токенов защищён собственным мьютексом.
//   - Ошибки возвращаются как sentinel-значения и далее маппятся HTTP-слоем
//     на коды ответов (см. комментарии к переменным ниже).
package service

import (
	"errors"
	"sync"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/cache"
	"github.com/pribylovaa/orchard-analysis/internal/config"
	"github.com/pribylovaa/orchard-analysis/internal/storage"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь
	// не найден/неактивен. Не различает причину. HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken — токен некорректен: подпись, срок, тип или отзыв.
	// Причина намеренно не различается, чтобы не давать оракул. HTTP 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnauthenticated — учётные данные не предъявлены или не прошли
	// проверку там, где они обязательны. HTTP 401.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden — пользователь аутентифицирован, но роль не даёт
	// доступа к операции. HTTP 403.
	ErrForbidden = errors.New("forbidden")

	// ErrUserExists — username или email уже заняты. HTTP 409.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidInput — входные данные не проходят базовую валидацию
	// (короткий username/пароль, пустые поля). HTTP 400.
	ErrInvalidInput = errors.New("invalid input")
)

// Service описывает бизнес-логику аутентификации и авторизации.
type Service struct {
	storage storage.Storage
	cfg     config.AuthConfig

	revoked revocationList
	rstore  cache.RevocationStore // может быть nil, если Redis не сконфигурирован
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, cfg config.AuthConfig) *Service {
	return &Service{
		storage: storage,
		cfg:     cfg,
		revoked: revocationList{entries: make(map[string]time.Time)},
	}
}

// SetRevocationStore устанавливает разделяемый стор отозванных токенов
// (опционально; нужен только multi-instance развёртыванию).
func (s *Service) SetRevocationStore(r cache.RevocationStore) {
	s.rstore = r
}

// revocationList — процессный blacklist токенов.
// Каждая запись держится до дедлайна, зеркалирующего exp токена,
// и выметается фоновой уборкой — рост памяти ограничен TTL-окном.
type revocationList struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func (r *revocationList) add(token string, until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[token] = until
}

func (r *revocationList) contains(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[token]
	return ok
}

func (r *revocationList) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, until := range r.entries {
		if now.After(until) {
			delete(r.entries, token)
		}
	}
}

// SweepRevokedTokens выметает записи blacklist'а, чей дедлайн прошёл.
// Вызывается фоновым janitor'ом вместе с очисткой просроченных сессий.
func (s *Service) SweepRevokedTokens(now time.Time) {
	s.revoked.sweep(now)
}
