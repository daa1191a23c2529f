package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	respond "github.com/picc-digital/storyline/internal/api/respond"
	"github.com/picc-digital/storyline/internal/content"
	"github.com/picc-digital/storyline/internal/model"
	"github.com/picc-digital/storyline/internal/searchindex"
	"github.com/picc-digital/storyline/internal/session"
)

type StoryHandler struct {
	agg      *content.Aggregator
	resolver *session.Resolver
	indexer  *searchindex.DocIndexer // nil disables index maintenance
}

func NewStoryHandler(agg *content.Aggregator, resolver *session.Resolver, indexer *searchindex.DocIndexer) *StoryHandler {
	return &StoryHandler{agg: agg, resolver: resolver, indexer: indexer}
}

// principal resolves the session inline; API routes are not wrapped by the
// page gate.
func (h *StoryHandler) principal(r *http.Request) *model.Principal {
	if p := session.PrincipalFrom(r.Context()); p != nil {
		return p
	}
	res := h.resolver.Resolve(r.Context(), r)
	return res.Principal
}

// ListStories GET /api/stories
func (h *StoryHandler) ListStories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := model.StoryFilters{
		Category:      q.Get("category"),
		StorytellerID: q.Get("storytellerId"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respond.WriteBadRequest(w, "invalid limit")
			return
		}
		filters.Limit = n
	}
	if filters.Limit == 0 || filters.Limit > 100 {
		filters.Limit = 20
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respond.WriteBadRequest(w, "invalid offset")
			return
		}
		filters.Offset = n
	}
	if v := q.Get("startDate"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			respond.WriteBadRequest(w, "invalid startDate, expected YYYY-MM-DD")
			return
		}
		filters.StartDate = &t
	}
	if v := q.Get("endDate"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			respond.WriteBadRequest(w, "invalid endDate, expected YYYY-MM-DD")
			return
		}
		filters.EndDate = &t
	}
	// Only signed-in callers may see unpublished stories.
	if q.Get("includeUnpublished") == "true" && h.principal(r) != nil {
		filters.IncludeUnpublished = true
		filters.Status = q.Get("status")
	}

	out, err := h.agg.ListStories(r.Context(), filters)
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	if out == nil {
		out = []*model.StoryWithRelations{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"stories": out, "count": len(out)})
}

// GetStory GET /api/stories/{storyId}
func (h *StoryHandler) GetStory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["storyId"]
	includeUnpublished := h.principal(r) != nil

	detail, err := h.agg.StoryDetail(r.Context(), id, includeUnpublished)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "story not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	h.agg.RecordView(r.Context(), id)
	respond.WriteJSON(w, http.StatusOK, detail)
}

// ListFeatured GET /api/stories/featured
func (h *StoryHandler) ListFeatured(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respond.WriteBadRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	out, err := h.agg.FeaturedStories(r.Context(), limit)
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	if out == nil {
		out = []*model.StoryWithRelations{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"stories": out, "count": len(out)})
}

type storyRequest struct {
	Title                 string   `json:"title"`
	Summary               *string  `json:"summary,omitempty"`
	Content               string   `json:"content"`
	Category              string   `json:"category"`
	StoryType             string   `json:"storyType"`
	Location              string   `json:"location"`
	Status                string   `json:"status"`
	CulturalSensitivity   string   `json:"culturalSensitivity"`
	RequiresElderApproval bool     `json:"requiresElderApproval"`
	StorytellerID         *string  `json:"storytellerId,omitempty"`
	OrganizationID        *string  `json:"organizationId,omitempty"`
	ServiceID             *string  `json:"serviceId,omitempty"`
	Tags                  []string `json:"tags,omitempty"`
}

// CreateStory POST /api/stories
func (h *StoryHandler) CreateStory(w http.ResponseWriter, r *http.Request) {
	if h.principal(r) == nil {
		respond.WriteUnauthorized(w, "sign-in required")
		return
	}
	var req storyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	s := &model.Story{
		Title:                 req.Title,
		Summary:               req.Summary,
		Content:               req.Content,
		Category:              req.Category,
		StoryType:             req.StoryType,
		Location:              req.Location,
		Status:                req.Status,
		CulturalSensitivity:   req.CulturalSensitivity,
		RequiresElderApproval: req.RequiresElderApproval,
		StorytellerID:         req.StorytellerID,
		OrganizationID:        req.OrganizationID,
		ServiceID:             req.ServiceID,
		Tags:                  req.Tags,
	}
	if s.Category == "" {
		s.Category = "community"
	}
	if s.StoryType == "" {
		s.StoryType = "written"
	}
	out, err := h.agg.CreateStory(r.Context(), s)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			respond.WriteBadRequest(w, err.Error())
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	h.indexer.IndexStory(r.Context(), out)
	respond.WriteJSON(w, http.StatusCreated, out)
}

// UpdateStory PATCH /api/stories/{storyId}
func (h *StoryHandler) UpdateStory(w http.ResponseWriter, r *http.Request) {
	if h.principal(r) == nil {
		respond.WriteUnauthorized(w, "sign-in required")
		return
	}
	var fields map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	out, err := h.agg.UpdateStory(r.Context(), mux.Vars(r)["storyId"], fields)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			respond.WriteNotFound(w, "story not found")
		case errors.Is(err, model.ErrValidation):
			respond.WriteBadRequest(w, err.Error())
		default:
			respond.WriteInternalError(w, err.Error())
		}
		return
	}
	h.indexer.IndexStory(r.Context(), out)
	respond.WriteJSON(w, http.StatusOK, out)
}

// DeleteStory DELETE /api/stories/{storyId}
func (h *StoryHandler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	if h.principal(r) == nil {
		respond.WriteUnauthorized(w, "sign-in required")
		return
	}
	id := mux.Vars(r)["storyId"]
	if err := h.agg.DeleteStory(r.Context(), id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "story not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	h.indexer.RemoveStory(r.Context(), id)
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"deleted": true})
}

// SetFeatured PUT /api/stories/{storyId}/featured
func (h *StoryHandler) SetFeatured(w http.ResponseWriter, r *http.Request) {
	if h.principal(r) == nil {
		respond.WriteUnauthorized(w, "sign-in required")
		return
	}
	var req struct {
		Featured bool `json:"featured"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	id := mux.Vars(r)["storyId"]
	if err := h.agg.SetFeatured(r.Context(), id, req.Featured); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "story not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"storyId": id, "featured": req.Featured})
}

// ListStorytellers GET /api/storytellers
func (h *StoryHandler) ListStorytellers(w http.ResponseWriter, r *http.Request) {
	out, err := h.agg.Storytellers(r.Context())
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	if out == nil {
		out = []*model.Storyteller{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"storytellers": out, "count": len(out)})
}

// GetStoryteller GET /api/storytellers/{storytellerId}
func (h *StoryHandler) GetStoryteller(w http.ResponseWriter, r *http.Request) {
	out, err := h.agg.Storyteller(r.Context(), mux.Vars(r)["storytellerId"])
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "storyteller not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}
