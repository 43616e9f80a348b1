package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/models"
	"github.com/pribylovaa/orchard-analysis/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SaveAnalysis создает новое задание анализа.
func (s *Storage) SaveAnalysis(ctx context.Context, a *models.Analysis) error {
	const op = "storage.postgres.SaveAnalysis"

	query := `
        INSERT INTO analyses(id, owner_id, status, file_count, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `

	_, err := s.db.Exec(ctx, query,
		a.ID,
		a.OwnerID,
		string(a.Status),
		a.FileCount,
		a.CreatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AnalysisByID находит задание по идентификатору.
func (s *Storage) AnalysisByID(ctx context.Context, id uuid.UUID) (*models.Analysis, error) {
	const op = "storage.postgres.AnalysisByID"

	query := `
        SELECT id, owner_id, status, file_count, created_at,
               tree_count, fruit_count, yield_kg,
               ndvi_mean, gndvi_mean, ndre_mean, health_label, mean_crown_dia,
               pdf_path, excel_path, geojson_path, ndvi_path,
               device, duration_ms, error
        FROM analyses
        WHERE id = $1
    `

	var (
		a          models.Analysis
		status     string
		durationMS int64
	)

	err := s.db.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.OwnerID,
		&status,
		&a.FileCount,
		&a.CreatedAt,
		&a.TreeCount,
		&a.FruitCount,
		&a.YieldKg,
		&a.NDVIMean,
		&a.GNDVIMean,
		&a.NDREMean,
		&a.HealthLabel,
		&a.MeanCrownDia,
		&a.PDFPath,
		&a.ExcelPath,
		&a.GeoJSONPath,
		&a.NDVIPath,
		&a.Device,
		&durationMS,
		&a.Error,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a.Status = models.AnalysisStatus(status)
	a.Duration = time.Duration(durationMS) * time.Millisecond

	return &a, nil
}

// UpdateAnalysisStatus переводит задание в новый статус.
func (s *Storage) UpdateAnalysisStatus(ctx context.Context, id uuid.UUID, status models.AnalysisStatus, errMsg string) error {
	const op = "storage.postgres.UpdateAnalysisStatus"

	query := `
        UPDATE analyses
        SET status = $2, error = $3
        WHERE id = $1
    `

	cmdTag, err := s.db.Exec(ctx, query, id, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// UpdateAnalysisResult записывает результаты движка и пути отчётов.
func (s *Storage) UpdateAnalysisResult(ctx context.Context, a *models.Analysis) error {
	const op = "storage.postgres.UpdateAnalysisResult"

	query := `
        UPDATE analyses
        SET status = $2,
            tree_count = $3, fruit_count = $4, yield_kg = $5,
            ndvi_mean = $6, gndvi_mean = $7, ndre_mean = $8,
            health_label = $9, mean_crown_dia = $10,
            pdf_path = $11, excel_path = $12, geojson_path = $13, ndvi_path = $14,
            device = $15, duration_ms = $16, error = $17
        WHERE id = $1
    `

	cmdTag, err := s.db.Exec(ctx, query,
		a.ID,
		string(a.Status),
		a.TreeCount, a.FruitCount, a.YieldKg,
		a.NDVIMean, a.GNDVIMean, a.NDREMean,
		a.HealthLabel, a.MeanCrownDia,
		a.PDFPath, a.ExcelPath, a.GeoJSONPath, a.NDVIPath,
		a.Device, a.Duration.Milliseconds(), a.Error,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}
