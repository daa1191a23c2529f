package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	respond "github.com/picc-digital/storyline/internal/api/respond"
	"github.com/picc-digital/storyline/internal/model"
	"github.com/picc-digital/storyline/internal/scraper"
	"github.com/picc-digital/storyline/internal/session"
)

type ScraperHandler struct {
	orch       *scraper.Orchestrator
	resolver   *session.Resolver
	cronSecret string
}

func NewScraperHandler(orch *scraper.Orchestrator, resolver *session.Resolver, cronSecret string) *ScraperHandler {
	return &ScraperHandler{orch: orch, resolver: resolver, cronSecret: cronSecret}
}

func (h *ScraperHandler) requireSession(w http.ResponseWriter, r *http.Request) bool {
	if res := h.resolver.Resolve(r.Context(), r); res.Principal != nil {
		return true
	}
	respond.WriteUnauthorized(w, "sign-in required")
	return false
}

// cronAuthorized checks the bearer token against the configured cron secret.
// An unset secret disables the cron surface entirely.
func (h *ScraperHandler) cronAuthorized(r *http.Request) bool {
	if h.cronSecret == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) == 1
}

// ListSources GET /api/scraper/sources
func (h *ScraperHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w, r) {
		return
	}
	q := r.URL.Query()
	out, err := h.orch.Sources(r.Context(), q.Get("active") == "true", q.Get("type"))
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	if out == nil {
		out = []*model.ScrapeSource{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"sources": out, "count": len(out)})
}

// CreateSource POST /api/scraper/sources
func (h *ScraperHandler) CreateSource(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w, r) {
		return
	}
	var req struct {
		Name            string `json:"name"`
		URL             string `json:"url"`
		SourceType      string `json:"sourceType"`
		ScrapeFrequency string `json:"scrapeFrequency"`
		IsActive        *bool  `json:"isActive,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	src := &model.ScrapeSource{
		Name:            req.Name,
		URL:             req.URL,
		SourceType:      req.SourceType,
		ScrapeFrequency: req.ScrapeFrequency,
		IsActive:        req.IsActive == nil || *req.IsActive,
	}
	out, err := h.orch.CreateSource(r.Context(), src)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			respond.WriteBadRequest(w, err.Error())
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusCreated, out)
}

// TriggerJobs POST /api/scraper/jobs
func (h *ScraperHandler) TriggerJobs(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w, r) {
		return
	}
	var req struct {
		SourceIDs []string `json:"sourceIds"`
		Force     bool     `json:"force,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if len(req.SourceIDs) == 0 {
		respond.WriteBadRequest(w, "sourceIds is required")
		return
	}
	summary, err := h.orch.Trigger(r.Context(), req.SourceIDs, req.Force)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, err.Error())
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, summary)
}

// GetJob GET /api/scraper/jobs/{jobId}
func (h *ScraperHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w, r) {
		return
	}
	out, err := h.orch.Job(r.Context(), mux.Vars(r)["jobId"])
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "job not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// ListJobs GET /api/scraper/jobs
func (h *ScraperHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w, r) {
		return
	}
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respond.WriteBadRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	out, err := h.orch.Jobs(r.Context(), q.Get("sourceId"), limit)
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	if out == nil {
		out = []*model.ScrapeJob{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"jobs": out, "count": len(out)})
}

// CronScrape GET/POST /api/cron/scrape
// Called by the platform scheduler with a bearer secret; runs every due
// source and reports the pass.
func (h *ScraperHandler) CronScrape(w http.ResponseWriter, r *http.Request) {
	if !h.cronAuthorized(r) {
		respond.WriteUnauthorized(w, "invalid cron credentials")
		return
	}
	summary, err := h.orch.TriggerDue(r.Context())
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, summary)
}
