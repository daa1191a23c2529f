package api

import (
	"errors"
	"net/http"
	"strconv"

	respond "github.com/picc-digital/storyline/internal/api/respond"
	"github.com/picc-digital/storyline/internal/model"
	"github.com/picc-digital/storyline/internal/reports"
	"github.com/picc-digital/storyline/internal/session"
)

type ReportHandler struct {
	composer *reports.Composer
	resolver *session.Resolver
}

func NewReportHandler(composer *reports.Composer, resolver *session.Resolver) *ReportHandler {
	return &ReportHandler{composer: composer, resolver: resolver}
}

// ContentStats GET /api/content/stats
// Always returns 200; degraded backends surface as success=false with
// fallback counters so the homepage never breaks.
func (h *ReportHandler) ContentStats(w http.ResponseWriter, r *http.Request) {
	stats := h.composer.ContentStats(r.Context())
	respond.WriteJSON(w, http.StatusOK, stats)
}

// parseYear reads and validates the ?year query parameter shared by the
// annual-report endpoints.
func parseYear(w http.ResponseWriter, r *http.Request) (int, bool) {
	yearStr := r.URL.Query().Get("year")
	if yearStr == "" {
		respond.WriteBadRequest(w, "year query parameter is required")
		return 0, false
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		respond.WriteBadRequest(w, "year must be an integer")
		return 0, false
	}
	return year, true
}

// AnnualReport GET /api/annual-report?year=YYYY
func (h *ReportHandler) AnnualReport(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYear(w, r)
	if !ok {
		return
	}

	data, err := h.composer.AnnualReport(r.Context(), year)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			respond.WriteBadRequest(w, err.Error())
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, data)
}

// PublishReport POST /api/annual-report?year=YYYY
// Records the publication row for a year so it appears on the public
// annual-reports page. Admin-only.
func (h *ReportHandler) PublishReport(w http.ResponseWriter, r *http.Request) {
	if res := h.resolver.Resolve(r.Context(), r); res.Principal == nil {
		respond.WriteUnauthorized(w, "sign-in required")
		return
	}
	year, ok := parseYear(w, r)
	if !ok {
		return
	}

	row, err := h.composer.PublishReport(r.Context(), year)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			respond.WriteBadRequest(w, err.Error())
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusCreated, row)
}

// ListReports GET /api/annual-reports
func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	rows, err := h.composer.StoredReports(r.Context())
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	if rows == nil {
		rows = []*model.AnnualReport{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"reports": rows, "count": len(rows)})
}
