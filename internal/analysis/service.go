package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/config"
	"github.com/pribylovaa/orchard-analysis/internal/models"
	"github.com/pribylovaa/orchard-analysis/internal/pkg/log"
	"github.com/pribylovaa/orchard-analysis/internal/storage"
	"github.com/pribylovaa/orchard-analysis/internal/validation"

	"github.com/google/uuid"
)

// Service управляет заданиями анализа: приём файлов, асинхронный запуск
// движка, выдача статуса и отчётов.
type Service struct {
	storage   storage.AnalysisStorage
	engine    Engine
	reporter  Reporter
	validator *validation.Validator

	uploadDir     string
	engineTimeout time.Duration

	// lg — базовый логгер фоновых горутин: контекст HTTP-запроса к моменту
	// завершения движка уже закрыт.
	lg *slog.Logger

	now clock
}

// New создает Service поверх хранилища и внешних коллабораторов.
func New(st storage.AnalysisStorage, engine Engine, reporter Reporter, cfg config.AnalysisConfig, lg *slog.Logger) *Service {
	return &Service{
		storage:       st,
		engine:        engine,
		reporter:      reporter,
		validator:     validation.New(cfg.AllowedExtensions, cfg.MaxFileSize),
		uploadDir:     cfg.UploadDir,
		engineTimeout: cfg.EngineTimeout,
		lg:            lg,
		now:           time.Now,
	}
}

// Upload валидирует файлы, раскладывает их в каталог задания и создаёт
// запись в статусе uploaded. Владелец опционален: анонимная загрузка
// создаёт ничейное задание.
//
// Валидация каждого файла проходит до записи чего-либо на диск: один
// битый файл отклоняет всю загрузку целиком.
func (s *Service) Upload(ctx context.Context, owner *models.User, files []UploadFile) (*models.Analysis, error) {
	const op = "analysis.Upload"

	lg := log.From(ctx)

	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNoFiles)
	}

	for _, f := range files {
		if err := s.validator.CheckFile(f.Name, f.Data); err != nil {
			lg.Warn("upload_rejected",
				slog.String("op", op),
				slog.String("file", f.Name),
				slog.String("err", err.Error()),
			)

			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	a := &models.Analysis{
		ID:        uuid.New(),
		Status:    models.AnalysisUploaded,
		FileCount: len(files),
		CreatedAt: s.now().UTC(),
	}
	if owner != nil {
		id := owner.ID
		a.OwnerID = &id
	}

	dir := s.analysisDir(a.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, f := range files {
		// Имя файла сбрасывается до базового: загрузка не должна уметь
		// писать за пределы каталога задания.
		dst := filepath.Join(dir, filepath.Base(f.Name))
		if err := os.WriteFile(dst, f.Data, 0o644); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := s.storage.SaveAnalysis(ctx, a); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("analysis_uploaded",
		slog.String("analysis_id", a.ID.String()),
		slog.Int("files", a.FileCount),
	)

	return a, nil
}

// Start переводит задание в processing и запускает движок в фоне.
// Допустимые исходные статусы — uploaded и failed (повторный запуск
// после ошибки).
func (s *Service) Start(ctx context.Context, user *models.User, id uuid.UUID) (*models.Analysis, error) {
	const op = "analysis.Start"

	a, err := s.storage.AnalysisByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !viewAllowed(a, user) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotOwner)
	}

	if a.Status != models.AnalysisUploaded && a.Status != models.AnalysisFailed {
		return nil, fmt.Errorf("%s: %w", op, ErrWrongState)
	}

	if err := s.storage.UpdateAnalysisStatus(ctx, id, models.AnalysisProcessing, ""); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.Status = models.AnalysisProcessing
	a.Error = ""

	go s.run(id)

	log.From(ctx).Info("analysis_started",
		slog.String("analysis_id", id.String()),
	)

	return a, nil
}

// run — фоновый прогон движка и рендер отчётов. Живёт дольше
// HTTP-запроса, поэтому работает на собственном контексте с таймаутом
// движка.
func (s *Service) run(id uuid.UUID) {
	const op = "analysis.run"

	lg := s.lg.With(slog.String("analysis_id", id.String()))

	ctx, cancel := context.WithTimeout(context.Background(), s.engineTimeout)
	defer cancel()

	started := s.now()

	res, err := s.engine.Analyze(ctx, s.analysisDir(id))
	if err != nil {
		lg.Error("engine_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		s.fail(ctx, id, err)

		return
	}

	paths, err := s.reporter.Render(ctx, id.String(), res)
	if err != nil {
		lg.Error("report_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		s.fail(ctx, id, err)

		return
	}

	a := &models.Analysis{
		ID:           id,
		Status:       models.AnalysisCompleted,
		TreeCount:    res.TreeCount,
		FruitCount:   res.FruitCount,
		YieldKg:      res.YieldKg,
		NDVIMean:     res.NDVIMean,
		GNDVIMean:    res.GNDVIMean,
		NDREMean:     res.NDREMean,
		HealthLabel:  res.HealthLabel,
		MeanCrownDia: res.MeanCrownDia,
		PDFPath:      paths.PDFPath,
		ExcelPath:    paths.ExcelPath,
		GeoJSONPath:  paths.GeoJSONPath,
		NDVIPath:     res.NDVIPath,
		Device:       res.Device,
		Duration:     s.now().Sub(started),
	}

	if err := s.storage.UpdateAnalysisResult(ctx, a); err != nil {
		lg.Error("result_save_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		s.fail(ctx, id, err)

		return
	}

	lg.Info("analysis_completed",
		slog.Int("trees", res.TreeCount),
		slog.Duration("took", a.Duration),
	)
}

// fail фиксирует ошибку в статусе задания. Контекст прогона к этому
// моменту может быть уже отменён, поэтому запись идёт на свежем контексте.
func (s *Service) fail(ctx context.Context, id uuid.UUID, cause error) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	if err := s.storage.UpdateAnalysisStatus(ctx, id, models.AnalysisFailed, cause.Error()); err != nil {
		s.lg.Error("fail_status_save_failed",
			slog.String("analysis_id", id.String()),
			slog.String("err", err.Error()),
		)
	}
}

// Status возвращает задание с проверкой владения.
func (s *Service) Status(ctx context.Context, user *models.User, id uuid.UUID) (*models.Analysis, error) {
	const op = "analysis.Status"

	a, err := s.storage.AnalysisByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !viewAllowed(a, user) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotOwner)
	}

	return a, nil
}

// Report возвращает пути готовых отчётов завершённого задания.
func (s *Service) Report(ctx context.Context, user *models.User, id uuid.UUID) (*ReportPaths, error) {
	const op = "analysis.Report"

	a, err := s.Status(ctx, user, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if a.Status != models.AnalysisCompleted {
		return nil, fmt.Errorf("%s: %w", op, ErrNotReady)
	}

	return &ReportPaths{
		PDFPath:     a.PDFPath,
		ExcelPath:   a.ExcelPath,
		GeoJSONPath: a.GeoJSONPath,
	}, nil
}

// Map возвращает путь NDVI-оверлея завершённого задания.
// Если движок оверлей не сгенерировал — storage.ErrNotFound.
func (s *Service) Map(ctx context.Context, user *models.User, id uuid.UUID) (string, error) {
	const op = "analysis.Map"

	a, err := s.Status(ctx, user, id)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if a.Status != models.AnalysisCompleted {
		return "", fmt.Errorf("%s: %w", op, ErrNotReady)
	}

	if a.NDVIPath == "" {
		return "", fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return a.NDVIPath, nil
}

func (s *Service) analysisDir(id uuid.UUID) string {
	return filepath.Join(s.uploadDir, id.String())
}

// viewAllowed решает, видно ли задание пользователю: админ видит всё,
// владелец — своё, ничейное задание видно любому.
func viewAllowed(a *models.Analysis, user *models.User) bool {
	if a.OwnerID == nil {
		return true
	}
	if user == nil {
		return false
	}
	if user.Role == models.RoleAdmin {
		return true
	}

	return *a.OwnerID == user.ID
}
