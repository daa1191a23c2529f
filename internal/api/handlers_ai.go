package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/picc-digital/storyline/internal/aiproxy"
	respond "github.com/picc-digital/storyline/internal/api/respond"
	"github.com/picc-digital/storyline/internal/model"
	"github.com/picc-digital/storyline/internal/searchindex"
)

type AIHandler struct {
	ai    *aiproxy.Client
	index searchindex.Index
	alpha float32
}

func NewAIHandler(ai *aiproxy.Client, index searchindex.Index, alpha float32) *AIHandler {
	return &AIHandler{ai: ai, index: index, alpha: alpha}
}

// aiTimestamp stamps every successful AI response so callers can tell cached
// results from fresh ones.
func aiTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func writeAIError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		respond.WriteBadRequest(w, err.Error())
	case errors.Is(err, model.ErrUpstream):
		respond.WriteInternalError(w, err.Error())
	default:
		respond.WriteInternalError(w, err.Error())
	}
}

// Summarize POST /api/ai/summarize
func (h *AIHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content  string `json:"content"`
		MaxWords int    `json:"maxWords,omitempty"`
		Tone     string `json:"tone,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	summary, err := h.ai.Summarize(r.Context(), req.Content, aiproxy.SummarizeOptions{
		MaxWords: req.MaxWords,
		Tone:     req.Tone,
	})
	if err != nil {
		writeAIError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"summary":   summary,
		"timestamp": aiTimestamp(),
	})
}

// Embeddings POST /api/ai/embeddings
func (h *AIHandler) Embeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	vec, err := h.ai.Embed(r.Context(), req.Text)
	if err != nil {
		writeAIError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"embedding":  vec,
		"dimensions": len(vec),
		"timestamp":  aiTimestamp(),
	})
}

// SemanticSearch POST /api/ai/semantic-search
// The query is embedded via the AI backend, then hybrid-searched in the
// document index.
func (h *AIHandler) SemanticSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"topK,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if req.Query == "" {
		respond.WriteBadRequest(w, "query is required")
		return
	}
	if req.TopK <= 0 || req.TopK > 50 {
		req.TopK = 10
	}

	vec, err := h.ai.Embed(r.Context(), req.Query)
	if err != nil {
		writeAIError(w, err)
		return
	}
	hits, err := h.index.Search(r.Context(), req.Query, vec, req.TopK, h.alpha)
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	if hits == nil {
		hits = []model.SearchHit{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"hits":      hits,
		"count":     len(hits),
		"timestamp": aiTimestamp(),
	})
}

// StoryPrompts GET /api/ai/story-prompts
func (h *AIHandler) StoryPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.ai.StoryPrompts(r.Context(), r.URL.Query().Get("topic"))
	if err != nil {
		writeAIError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"prompts":   prompts,
		"timestamp": aiTimestamp(),
	})
}
