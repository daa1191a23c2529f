package aiproxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picc-digital/storyline/internal/config"
	"github.com/picc-digital/storyline/internal/model"
)

func newTestClient(t *testing.T, backend http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	cfg := config.NewForTesting()
	cfg.AIBaseURL = srv.URL
	cfg.AIAPIKey = "test-key"
	return NewClient(cfg, zerolog.Nop())
}

func chatBackend(t *testing.T, reply string, capture *chatRequest) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		var resp chatResponse
		resp.Choices = append(resp.Choices, struct {
			Message chatMessage `json:"message"`
		}{Message: chatMessage{Role: "assistant", Content: reply}})
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestSummarize(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, chatBackend(t, "A short summary.", &got))

	out, err := c.Summarize(context.Background(), "Long story content here.", SummarizeOptions{MaxWords: 50, Tone: "warm"})
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", out)

	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[0].Content, "under 50 words")
	assert.Contains(t, got.Messages[0].Content, "warm tone")
	assert.Equal(t, "Long story content here.", got.Messages[1].Content)
	assert.Equal(t, "gpt-4o-mini", got.Model)
}

func TestSummarizeRejectsEmptyContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("backend should not be called")
	})
	_, err := c.Summarize(context.Background(), "   ", SummarizeOptions{})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestSummarizeUpstreamFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.Summarize(context.Background(), "content", SummarizeOptions{})
	assert.ErrorIs(t, err, model.ErrUpstream)
}

func TestStoryPromptsSplitsLines(t *testing.T) {
	reply := "Prompt one\nPrompt two\n\nPrompt three\n"
	c := newTestClient(t, chatBackend(t, reply, nil))

	prompts, err := c.StoryPrompts(context.Background(), "rivers")
	require.NoError(t, err)
	assert.Equal(t, []string{"Prompt one", "Prompt two", "Prompt three"}, prompts)
}

func TestEmbed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	})

	vec, err := c.Embed(context.Background(), "river stories")
	require.NoError(t, err)
	require.Len(t, vec, 3)
	assert.InDelta(t, 0.2, vec[1], 0.0001)
}

func TestEmbedEmptyResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	_, err := c.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, model.ErrUpstream)
}

func TestHealthPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	assert.NoError(t, c.HealthPing(context.Background()))
}

func TestHealthPingUnhealthy(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	assert.Error(t, c.HealthPing(context.Background()))
}
