// analysis — жизненный цикл задания анализа снимков:
// upload -> processing -> completed | failed.
//
// Сам подсчёт (детекция деревьев/плодов, вегетационные индексы) и рендер
// отчётов — внешние коллабораторы за интерфейсами Engine и Reporter;
// пакет отвечает за валидацию загрузки, владение заданиями и
// персистентность статусов/результатов.
package analysis

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotOwner — задание принадлежит другому пользователю. HTTP 403.
	ErrNotOwner = errors.New("not the analysis owner")
	// ErrWrongState — операция не применима в текущем статусе задания. HTTP 409.
	ErrWrongState = errors.New("analysis is in the wrong state")
	// ErrNoFiles — загрузка без единого файла. HTTP 400.
	ErrNoFiles = errors.New("no files uploaded")
	// ErrNotReady — отчёт ещё не готов. HTTP 409.
	ErrNotReady = errors.New("analysis is not completed")
)

// Result — выход движка детекции и вегетационных индексов.
type Result struct {
	TreeCount    int     `json:"tree_count"`
	FruitCount   int     `json:"fruit_count"`
	YieldKg      float64 `json:"yield_kg"`
	NDVIMean     float64 `json:"ndvi_mean"`
	GNDVIMean    float64 `json:"gndvi_mean"`
	NDREMean     float64 `json:"ndre_mean"`
	HealthLabel  string  `json:"health_label"`
	MeanCrownDia float64 `json:"mean_crown_dia"`
	NDVIPath     string  `json:"ndvi_path"`
	Device       string  `json:"device"`
}

// ReportPaths — артефакты рендера отчётов.
type ReportPaths struct {
	PDFPath     string `json:"pdf_path"`
	ExcelPath   string `json:"excel_path"`
	GeoJSONPath string `json:"geojson_path"`
}

// Engine — внешний движок детекции. Потребляет каталог со снимками.
type Engine interface {
	Analyze(ctx context.Context, dir string) (*Result, error)
}

// Reporter — внешний рендерер отчётов.
type Reporter interface {
	Render(ctx context.Context, id string, res *Result) (*ReportPaths, error)
}

// UploadFile — один загружаемый файл.
type UploadFile struct {
	Name string
	Data []byte
}

// clock подменяется в тестах.
type clock func() time.Time
