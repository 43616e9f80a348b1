package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/orchard-analysis/internal/analysis"
	apierrors "github.com/pribylovaa/orchard-analysis/internal/errors"
	"github.com/pribylovaa/orchard-analysis/internal/http/middleware"
	"github.com/pribylovaa/orchard-analysis/internal/models"

	"github.com/go-chi/chi/v5"
)

// multipartMemoryLimit — порог, после которого multipart-части
// сбрасываются на диск при разборе формы.
const multipartMemoryLimit = 32 << 20

// analysisView — публичное представление задания анализа.
type analysisView struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	FileCount int       `json:"file_count"`
	CreatedAt time.Time `json:"created_at"`

	TreeCount    int     `json:"tree_count,omitempty"`
	FruitCount   int     `json:"fruit_count,omitempty"`
	YieldKg      float64 `json:"yield_kg,omitempty"`
	NDVIMean     float64 `json:"ndvi_mean,omitempty"`
	GNDVIMean    float64 `json:"gndvi_mean,omitempty"`
	NDREMean     float64 `json:"ndre_mean,omitempty"`
	HealthLabel  string  `json:"health_label,omitempty"`
	MeanCrownDia float64 `json:"mean_crown_dia,omitempty"`

	Device     string `json:"device,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

func toAnalysisView(a *models.Analysis) analysisView {
	return analysisView{
		ID:           a.ID.String(),
		Status:       string(a.Status),
		FileCount:    a.FileCount,
		CreatedAt:    a.CreatedAt,
		TreeCount:    a.TreeCount,
		FruitCount:   a.FruitCount,
		YieldKg:      a.YieldKg,
		NDVIMean:     a.NDVIMean,
		GNDVIMean:    a.GNDVIMean,
		NDREMean:     a.NDREMean,
		HealthLabel:  a.HealthLabel,
		MeanCrownDia: a.MeanCrownDia,
		Device:       a.Device,
		DurationMS:   a.Duration.Milliseconds(),
		Error:        a.Error,
	}
}

// UploadAnalysis принимает multipart-форму со снимками (поле "files")
// и создаёт задание в статусе uploaded. Аутентификация опциональна:
// анонимная загрузка даёт ничейное задание.
func (h *Handlers) UploadAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		apierrors.WriteError(w, r, errInvalidArgument())
		return
	}

	var files []analysis.UploadFile
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			if err != nil {
				apierrors.WriteError(w, r, errInvalidArgument())
				return
			}

			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				apierrors.WriteError(w, r, errInvalidArgument())
				return
			}

			files = append(files, analysis.UploadFile{Name: fh.Filename, Data: data})
		}
	}

	a, err := h.Analysis.Upload(r.Context(), middleware.UserFrom(r.Context()), files)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAnalysisView(a))
}

// StartAnalysis запускает обработку задания в фоне.
func (h *Handlers) StartAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, errInvalidArgument())
		return
	}

	a, err := h.Analysis.Start(r.Context(), middleware.UserFrom(r.Context()), id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, toAnalysisView(a))
}

// AnalysisStatus возвращает текущее состояние задания.
func (h *Handlers) AnalysisStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, errInvalidArgument())
		return
	}

	a, err := h.Analysis.Status(r.Context(), middleware.UserFrom(r.Context()), id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAnalysisView(a))
}

// AnalysisReport возвращает пути готовых отчётов завершённого задания.
func (h *Handlers) AnalysisReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, errInvalidArgument())
		return
	}

	paths, err := h.Analysis.Report(r.Context(), middleware.UserFrom(r.Context()), id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, paths)
}

// AnalysisMap отдаёт файл NDVI-оверлея завершённого задания.
func (h *Handlers) AnalysisMap(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, errInvalidArgument())
		return
	}

	path, err := h.Analysis.Map(r.Context(), middleware.UserFrom(r.Context()), id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	http.ServeFile(w, r, path)
}
