package ratelimit

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/config"

	"github.com/stretchr/testify/require"
)

// fakeClock — управляемое время для детерминированных тестов лимитера.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLimiter(t *testing.T, cfg config.RateLimitConfig) (*Limiter, *fakeClock) {
	t.Helper()

	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(cfg)
	l.now = clk.Now
	return l, clk
}

func defaultCfg() config.RateLimitConfig {
	return config.RateLimitConfig{
		DefaultRequests: 100,
		DefaultWindow:   time.Hour,
		Classes: []config.ClassLimit{
			{Class: "login", Requests: 5, Window: 5 * time.Minute},
			{Class: "upload", Requests: 5, Window: 5 * time.Minute},
			{Class: "start", Requests: 10, Window: 10 * time.Minute},
		},
		BlockDuration:   5 * time.Minute,
		CleanupInterval: time.Minute,
		Retention:       time.Hour,
	}
}

func TestCheck_AllowsExactlyN(t *testing.T) {
	t.Parallel()

	l, _ := testLimiter(t, defaultCfg())

	// Ровно N запросов проходят, N+1-й получает отказ.
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("203.0.113.7", "login"))
	}

	err := l.Check("203.0.113.7", "login")
	var limited *LimitedError
	require.ErrorAs(t, err, &limited)
	require.Equal(t, 5*time.Minute, limited.RetryAfter)
}

func TestCheck_BlockAppliesAcrossClasses(t *testing.T) {
	t.Parallel()

	l, _ := testLimiter(t, defaultCfg())

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("203.0.113.7", "login"))
	}
	require.Error(t, l.Check("203.0.113.7", "login"))

	// Блокировка действует на IP целиком, не только на превышенный класс.
	require.Error(t, l.Check("203.0.113.7", "upload"))
	require.Error(t, l.Check("203.0.113.7", "default"))

	// Другой IP не затронут.
	require.NoError(t, l.Check("198.51.100.1", "login"))
}

func TestCheck_BlockedRequestsDoNotTouchCounters(t *testing.T) {
	t.Parallel()

	l, clk := testLimiter(t, defaultCfg())

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("203.0.113.7", "login"))
	}
	require.Error(t, l.Check("203.0.113.7", "login"))

	// Попытки во время блокировки не продлевают её и не пишут метки.
	for i := 0; i < 20; i++ {
		require.Error(t, l.Check("203.0.113.7", "login"))
	}

	// После окончания блокировки и сдвига окна допуск восстанавливается.
	clk.Advance(5*time.Minute + time.Second)
	require.NoError(t, l.Check("203.0.113.7", "login"))
}

func TestCheck_WindowSlides(t *testing.T) {
	t.Parallel()

	l, clk := testLimiter(t, defaultCfg())

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("203.0.113.7", "login"))
	}

	// Метки старше окна выселяются: допуск возвращается без блокировки.
	clk.Advance(5*time.Minute + time.Second)
	require.NoError(t, l.Check("203.0.113.7", "login"))
}

func TestCheck_UnknownClassFallsBackToDefault(t *testing.T) {
	t.Parallel()

	cfg := defaultCfg()
	cfg.DefaultRequests = 2
	l, _ := testLimiter(t, cfg)

	require.NoError(t, l.Check("203.0.113.7", "unmapped"))
	require.NoError(t, l.Check("203.0.113.7", "unmapped"))
	require.Error(t, l.Check("203.0.113.7", "unmapped"))
}

func TestCheck_ConcurrentAdmitsExactlyN(t *testing.T) {
	t.Parallel()

	l, _ := testLimiter(t, defaultCfg())

	const attempts = 10 // лимит login = 5

	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = l.Check("203.0.113.7", "login")
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range results {
		if err == nil {
			admitted++
		}
	}
	require.Equal(t, 5, admitted)
}

func TestInfo_DoesNotConsume(t *testing.T) {
	t.Parallel()

	l, _ := testLimiter(t, defaultCfg())

	require.NoError(t, l.Check("203.0.113.7", "login"))

	// Info только читает: Remaining не меняется от повторных вызовов.
	info := l.Info("203.0.113.7", "login")
	require.Equal(t, 5, info.Limit)
	require.Equal(t, 4, info.Remaining)

	info = l.Info("203.0.113.7", "login")
	require.Equal(t, 4, info.Remaining)
}

func TestSweep_EvictsStaleEntries(t *testing.T) {
	t.Parallel()

	l, clk := testLimiter(t, defaultCfg())

	require.NoError(t, l.Check("203.0.113.7", "login"))
	require.NoError(t, l.Check("198.51.100.1", "upload"))

	clk.Advance(2 * time.Hour) // больше retention

	l.sweep()

	l.mu.Lock()
	defer l.mu.Unlock()
	require.Empty(t, l.requests)
}

func TestSweep_DropsExpiredBlocks(t *testing.T) {
	t.Parallel()

	l, clk := testLimiter(t, defaultCfg())

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("203.0.113.7", "login"))
	}
	require.Error(t, l.Check("203.0.113.7", "login"))

	clk.Advance(6 * time.Minute)
	l.sweep()

	l.mu.Lock()
	defer l.mu.Unlock()
	require.Empty(t, l.blocks)
}

func TestClientIP_Resolution(t *testing.T) {
	t.Parallel()

	// X-Forwarded-For берётся первым и только первая запись.
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	r.Header.Set("X-Real-IP", "198.51.100.1")
	require.Equal(t, "203.0.113.7", ClientIP(r))

	// Затем X-Real-IP.
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Real-IP", "198.51.100.1")
	require.Equal(t, "198.51.100.1", ClientIP(r))

	// Затем адрес транспортного уровня.
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.9:4242"
	require.Equal(t, "192.0.2.9", ClientIP(r))

	// Совсем без адреса — общий bucket.
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = ""
	require.Equal(t, "unknown", ClientIP(r))
}

func TestLimitedError_Message(t *testing.T) {
	t.Parallel()

	err := &LimitedError{RetryAfter: 30 * time.Second}
	require.Contains(t, err.Error(), "rate limited")

	var limited *LimitedError
	require.True(t, errors.As(err, &limited))
}
