package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisStatus — статус задания анализа.
type AnalysisStatus string

const (
	AnalysisUploaded   AnalysisStatus = "uploaded"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "failed"
)

// Analysis — задание анализа снимков сада.
//
// Создаётся на загрузке файлов (статус uploaded), заполняется результатами
// движка детекции и путями отчётов по завершении. Числовая часть (детекции,
// вегетационные индексы) считается внешним коллаборатором.
type Analysis struct {
	ID        uuid.UUID
	OwnerID   *uuid.UUID
	Status    AnalysisStatus
	FileCount int
	CreatedAt time.Time

	// Результаты движка.
	TreeCount    int
	FruitCount   int
	YieldKg      float64
	NDVIMean     float64
	GNDVIMean    float64
	NDREMean     float64
	HealthLabel  string
	MeanCrownDia float64

	// Артефакты отчётов.
	PDFPath     string
	ExcelPath   string
	GeoJSONPath string
	NDVIPath    string

	// Исполнение.
	Device   string
	Duration time.Duration
	Error    string
}
