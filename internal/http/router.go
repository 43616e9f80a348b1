// http собирает роутер сервиса: REST-маршруты, middleware-цепочку
// и служебные эндпоинты (liveness/readiness/metrics).
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/orchard-analysis/internal/analysis"
	"github.com/pribylovaa/orchard-analysis/internal/backup"
	"github.com/pribylovaa/orchard-analysis/internal/http/handlers"
	"github.com/pribylovaa/orchard-analysis/internal/http/middleware"
	"github.com/pribylovaa/orchard-analysis/internal/metrics"
	"github.com/pribylovaa/orchard-analysis/internal/ratelimit"
	"github.com/pribylovaa/orchard-analysis/internal/service"
)

// Классы эндпоинтов для лимитера. Ключи совпадают с классами
// в конфигурации rate_limit.classes.
const (
	classLogin   = "login"
	classUpload  = "upload"
	classStart   = "start"
	classDefault = "default"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger       *slog.Logger
	Timeout      time.Duration
	BasePath     string // например, "/api"; если пустой — роуты регистрируются на корне.
	CORSOrigin   string
	Ready        func() bool
	PromGather   prometheus.Gatherer
	PromRegister prometheus.Registerer
}

// Deps — зависимости хендлеров.
type Deps struct {
	Auth     *service.Service
	Analysis *analysis.Service
	Backup   *backup.Manager
	Limiter  *ratelimit.Limiter
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(deps Deps, opts Options) http.Handler {
	root := chi.NewRouter()

	reg := opts.PromRegister
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := metrics.New(reg)

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),              // безопасно ловим паники
		middleware.RequestID(),            // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger),   // кладём request-scoped логгер в контекст и логируем
		middleware.Security(),             // защитные заголовки на каждый ответ
		middleware.CORS(opts.CORSOrigin),  // preflight для фронта
		middleware.AuthBearer(),           // вынимаем Bearer токен в контекст
		middleware.ResolveUser(deps.Auth), // разрешаем пользователя (Bearer / X-API-Key)
		middleware.Audit(deps.Auth, m),    // аудит + метрики + X-Process-Time
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	h := handlers.New(deps.Auth, deps.Analysis, deps.Backup)

	// Служебные эндпоинты вне BasePath и вне лимитера.
	root.Get("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	root.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil && !opts.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	gatherer := opts.PromGather
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	root.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Регистрация маршрутов.
	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, deps.Limiter, m)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, deps.Limiter, m)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
// Дорогие и чувствительные операции идут под собственными классами
// лимитера, остальное — под классом default.
func registerRoutes(r chi.Router, h *handlers.Handlers, l *ratelimit.Limiter, m *metrics.Metrics) {
	limited := func(class string) func(http.Handler) http.Handler {
		return middleware.RateLimit(l, class, m)
	}

	// auth
	r.With(limited(classLogin)).Post("/auth/login", h.Login)
	r.With(limited(classDefault)).Post("/auth/refresh", h.Refresh)
	r.With(limited(classDefault)).Post("/auth/logout", h.Logout)
	r.With(limited(classDefault)).Get("/auth/me", h.Me)
	r.With(limited(classDefault)).Post("/auth/users", h.CreateUser)
	r.With(limited(classDefault)).Delete("/auth/users/{id}", h.DeactivateUser)
	r.With(limited(classDefault)).Post("/auth/api-key", h.GenerateAPIKey)

	// analyses
	r.With(limited(classUpload)).Post("/analyses", h.UploadAnalysis)
	r.With(limited(classStart)).Post("/analyses/{id}/start", h.StartAnalysis)
	r.With(limited(classDefault)).Get("/analyses/{id}", h.AnalysisStatus)
	r.With(limited(classDefault)).Get("/analyses/{id}/report", h.AnalysisReport)
	r.With(limited(classDefault)).Get("/analyses/{id}/map", h.AnalysisMap)

	// admin
	r.With(limited(classDefault)).Post("/admin/backups", h.CreateBackup)
	r.With(limited(classDefault)).Get("/admin/backups", h.ListBackups)
	r.With(limited(classDefault)).Post("/admin/backups/cleanup", h.CleanupBackups)
	r.With(limited(classDefault)).Get("/admin/status", h.SystemStatus)
}
