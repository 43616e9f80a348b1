package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/analysis"
	"github.com/pribylovaa/orchard-analysis/internal/backup"
	"github.com/pribylovaa/orchard-analysis/internal/cache"
	"github.com/pribylovaa/orchard-analysis/internal/config"
	httpapi "github.com/pribylovaa/orchard-analysis/internal/http"
	"github.com/pribylovaa/orchard-analysis/internal/ratelimit"
	"github.com/pribylovaa/orchard-analysis/internal/service"
	"github.com/pribylovaa/orchard-analysis/internal/storage"
	"github.com/pribylovaa/orchard-analysis/internal/storage/postgres"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// Подключение к БД c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := postgres.New(dbCtx, cfg.DB.DatabaseURL)
	dbCancel()
	if err != nil {
		log.Error("postgres_connect_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}
	log.Info("postgres_connected")

	// Сервис аутентификации.
	authSrvc := service.New(str, cfg.Auth)

	// Опциональный разделяемый стор отозванных токенов.
	if cfg.Redis.RedisURL != "" {
		rstore, err := cache.NewRedisStore(cfg.Redis.RedisURL, "")
		if err != nil {
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			rootCancel()
			str.Close()
			os.Exit(1)
		}
		defer rstore.Close()

		authSrvc.SetRevocationStore(rstore)
		log.Info("redis_connected")
	}

	// Бутстрап администратора по умолчанию. Идемпотентен.
	bootCtx, bootCancel := context.WithTimeout(rootCtx, 10*time.Second)
	err = authSrvc.EnsureDefaultAdmin(bootCtx)
	bootCancel()
	if err != nil {
		log.Error("admin_bootstrap_failed", slog.String("err", err.Error()))
		rootCancel()
		str.Close()
		os.Exit(1)
	}

	// Конвейер анализа.
	engine := analysis.NewRemoteEngine(cfg.Analysis.EngineURL)
	analysisSrvc := analysis.New(str, engine, engine, cfg.Analysis, log)

	// Бэкапы: каталог загрузок попадает в бандл.
	backups := backup.New(cfg.Backup, cfg.Analysis.UploadDir)

	// Лимитер + его фоновая уборка.
	limiter := ratelimit.New(cfg.RateLimit)
	limiter.StartJanitor(rootCtx)

	// Фоновая уборка просроченных сессий и blacklist'а токенов.
	startAuthJanitor(rootCtx, str, authSrvc, log, 30*time.Minute)

	log.Info("service_initialized")

	var ready int32 // 0 — not ready; 1 — ready

	router := httpapi.NewRouter(httpapi.Deps{
		Auth:     authSrvc,
		Analysis: analysisSrvc,
		Backup:   backups,
		Limiter:  limiter,
	}, httpapi.Options{
		Logger:     log,
		Timeout:    cfg.Timeouts.Service,
		BasePath:   cfg.HTTP.BasePath,
		CORSOrigin: cfg.HTTP.CORSOrigin,
		Ready:      func() bool { return atomic.LoadInt32(&ready) == 1 },
	})

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
		_ = httpSrv.Close()
	} else {
		log.Info("http_stopped")
	}

	// Явная очистка перед выходом.
	shutdownCancel()
	rootCancel()
	str.Close()

	log.Info("service_stopped")
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// startAuthJanitor запускает фоновую задачу, которая периодически удаляет
// просроченные сессии из хранилища и выметает blacklist отозванных токенов.
func startAuthJanitor(ctx context.Context, str storage.Storage, srvc *service.Service, log *slog.Logger, period time.Duration) {
	if period <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				now := time.Now().UTC()
				if err := str.DeleteExpiredSessions(ctx, now); err != nil {
					log.Error("session_janitor_failed", slog.String("err", err.Error()))
				}
				srvc.SweepRevokedTokens(now)
			}
		}
	}()
}
