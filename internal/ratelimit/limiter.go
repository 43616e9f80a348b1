// ratelimit — admission control по скользящему окну с карательной
// блокировкой IP.
//
// Limiter конструируется один раз на старте и передаётся в HTTP-слой
// явно — никакого package-level состояния. Все мутации счётчиков одного
// IP проходят под общим мьютексом: последовательность «проверить счётчик,
// затем записать метку» атомарна, две одновременных заявки не проскочат
// под лимитом вдвоём.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/config"
)

// unknownClient — общий bucket для запросов, чей IP определить не удалось.
// Неопознанный клиент деградирует в общий лимит, а не роняет проверку.
const unknownClient = "unknown"

// Limit — лимит одного класса эндпоинтов.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Info — снимок состояния лимита для заголовков X-RateLimit-*.
type Info struct {
	Limit     int
	Remaining int
	Reset     int64
	Window    time.Duration
}

// LimitedError — отказ в допуске с подсказкой, когда можно повторить.
type LimitedError struct {
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Limiter — скользящее окно по (IP, класс эндпоинта) + блокировки по IP.
type Limiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	blocks   map[string]time.Time

	limits    map[string]Limit
	def       Limit
	blockFor  time.Duration
	retention time.Duration
	interval  time.Duration

	// now подменяется в тестах.
	now func() time.Time
}

// New создает Limiter из конфигурации.
func New(cfg config.RateLimitConfig) *Limiter {
	limits := make(map[string]Limit, len(cfg.Classes))
	for _, c := range cfg.Classes {
		if c.Class == "" || c.Requests <= 0 || c.Window <= 0 {
			continue
		}
		limits[c.Class] = Limit{Requests: c.Requests, Window: c.Window}
	}

	return &Limiter{
		requests:  make(map[string][]time.Time),
		blocks:    make(map[string]time.Time),
		limits:    limits,
		def:       Limit{Requests: cfg.DefaultRequests, Window: cfg.DefaultWindow},
		blockFor:  cfg.BlockDuration,
		retention: cfg.Retention,
		interval:  cfg.CleanupInterval,
		now:       time.Now,
	}
}

// ClientIP определяет IP клиента: первая запись X-Forwarded-For,
// затем X-Real-IP, затем адрес транспортного уровня.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}

	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}

		return unknownClient
	}

	return host
}

// classKey нормализует ключи внутренних map: пустой IP/класс не должен
// плодить отдельные bucket'ы.
func classKey(ip, class string) (string, string) {
	if ip == "" {
		ip = unknownClient
	}
	if class == "" {
		class = "default"
	}

	return ip, class
}

// Check решает, допускать ли запрос с ip на класс эндпоинтов class.
//
// Порядок шагов фиксирован:
//  1. активная блокировка IP — немедленный отказ, счётчики не трогаются;
//  2. ленивое выселение меток старше окна;
//  3. счётчик >= лимита — отказ плюс карательная блокировка IP на
//     фиксированный срок (не зависящий от окна);
//  4. иначе метка записывается, запрос допущен.
func (l *Limiter) Check(ip, class string) error {
	ip, class = classKey(ip, class)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if until, ok := l.blocks[ip]; ok {
		if now.Before(until) {
			return &LimitedError{RetryAfter: until.Sub(now)}
		}

		delete(l.blocks, ip)
	}

	limit := l.limitFor(class)
	key := ip + "|" + class

	kept := l.evictLocked(key, now, limit.Window)
	if len(kept) >= limit.Requests {
		l.blocks[ip] = now.Add(l.blockFor)
		return &LimitedError{RetryAfter: l.blockFor}
	}

	l.requests[key] = append(kept, now)

	return nil
}

// Info возвращает снимок лимита без записи новых меток.
func (l *Limiter) Info(ip, class string) Info {
	ip, class = classKey(ip, class)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	limit := l.limitFor(class)
	key := ip + "|" + class

	kept := l.evictLocked(key, now, limit.Window)

	remaining := limit.Requests - len(kept)
	if remaining < 0 {
		remaining = 0
	}

	reset := now.Unix()
	if len(kept) > 0 {
		reset = kept[0].Add(limit.Window).Unix()
	}

	return Info{
		Limit:     limit.Requests,
		Remaining: remaining,
		Reset:     reset,
		Window:    limit.Window,
	}
}

func (l *Limiter) limitFor(class string) Limit {
	if limit, ok := l.limits[class]; ok {
		return limit
	}

	return l.def
}

// evictLocked выселяет метки старше окна и возвращает остаток.
// Вызывается только под l.mu.
func (l *Limiter) evictLocked(key string, now time.Time, window time.Duration) []time.Time {
	stamps := l.requests[key]

	cut := 0
	for cut < len(stamps) && now.Sub(stamps[cut]) > window {
		cut++
	}

	if cut > 0 {
		stamps = stamps[cut:]
		if len(stamps) == 0 {
			delete(l.requests, key)
		} else {
			l.requests[key] = stamps
		}
	}

	return stamps
}

// StartJanitor запускает фоновую уборку: метки старше retention и
// истёкшие блокировки удаляются раз в interval. Останавливается по ctx.
func (l *Limiter) StartJanitor(ctx context.Context) {
	if l.interval <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(l.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.sweep()
			}
		}
	}()
}

// sweep — один проход уборки. Ключи снимаются под мьютексом копией,
// чтобы не держать лок на весь проход при большом числе клиентов.
func (l *Limiter) sweep() {
	now := l.now()

	l.mu.Lock()
	keys := make([]string, 0, len(l.requests))
	for key := range l.requests {
		keys = append(keys, key)
	}
	for ip, until := range l.blocks {
		if now.After(until) {
			delete(l.blocks, ip)
		}
	}
	l.mu.Unlock()

	for _, key := range keys {
		l.mu.Lock()
		l.evictLocked(key, now, l.retention)
		l.mu.Unlock()
	}
}
