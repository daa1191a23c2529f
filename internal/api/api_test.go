package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picc-digital/storyline/internal/aiproxy"
	"github.com/picc-digital/storyline/internal/config"
	"github.com/picc-digital/storyline/internal/content"
	"github.com/picc-digital/storyline/internal/gate"
	"github.com/picc-digital/storyline/internal/model"
	"github.com/picc-digital/storyline/internal/ratelimit"
	"github.com/picc-digital/storyline/internal/reports"
	"github.com/picc-digital/storyline/internal/scraper"
	"github.com/picc-digital/storyline/internal/searchindex"
	"github.com/picc-digital/storyline/internal/session"
	"github.com/picc-digital/storyline/internal/store/storetest"
)

const (
	testSecret     = "api-test-secret"
	testCronSecret = "cron-test-secret"
)

type fakeIndex struct {
	hits     []model.SearchHit
	upserted []string
	deleted  []string
}

func (f *fakeIndex) Search(_ context.Context, _ string, _ []float32, _ int, _ float32) ([]model.SearchHit, error) {
	return f.hits, nil
}
func (f *fakeIndex) UpsertDocument(_ context.Context, docID string, _ []float32, _ map[string]interface{}) error {
	f.upserted = append(f.upserted, docID)
	return nil
}
func (f *fakeIndex) DeleteDocument(_ context.Context, docID string) error {
	f.deleted = append(f.deleted, docID)
	return nil
}

type fakeScrapeRunner struct{ pages int }

func (r *fakeScrapeRunner) Run(context.Context, *model.ScrapeSource) (int, error) {
	return r.pages, nil
}

type testEnv struct {
	router *mux.Router
	store  *storetest.Fake
	index  *fakeIndex
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	// AI backend stub: echoes a fixed summary and embedding.
	aiBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/chat/completions":
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"stub summary"}}]}`))
		case "/v1/embeddings":
			_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2]}]}`))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(aiBackend.Close)

	cfg := config.NewForTesting()
	cfg.SessionSecret = testSecret
	cfg.AIBaseURL = aiBackend.URL
	cfg.CronSecret = testCronSecret

	logger := zerolog.Nop()
	f := storetest.New()
	resolver := session.NewResolver(cfg, logger)
	guard := gate.NewGuard(gate.NewClassifier(gate.DefaultRoutes()), resolver, logger)

	ai := aiproxy.NewClient(cfg, logger)
	idx := &fakeIndex{hits: []model.SearchHit{{DocID: "s1", DocType: "story", Title: "Hit", Score: 0.9}}}

	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	deps := Deps{
		Aggregator:  content.NewAggregator(f, logger),
		Composer:    reports.NewComposer(f, cfg.PlatformStartYear, logger),
		AI:          ai,
		Index:       idx,
		Indexer:     searchindex.NewDocIndexer(ai, idx, logger),
		SearchAlpha: cfg.SearchAlpha,
		Orch:        scraper.NewOrchestrator(f, &fakeScrapeRunner{pages: 4}, logger),
		Resolver:    resolver,
		Guard:       guard,
		Limiter:     ratelimit.NewForTesting(func() time.Time { return clock }),
		CronSecret:  cfg.CronSecret,
		Logger:      logger,
	}
	return &testEnv{router: NewRouter(deps), store: f, index: idx}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T) *http.Cookie {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "admin-1",
		"email": "admin@example.org",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return &http.Cookie{Name: "sl-access-token", Value: signed}
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestContentStatsAlways200(t *testing.T) {
	e := newTestEnv(t)
	e.store.Err = fmt.Errorf("database offline")

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/content/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, float64(264), body["images"])
	assert.Equal(t, "Failed to fetch stats", body["error"])
}

func TestAnnualReportValidation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/annual-report", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/annual-report?year=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/annual-report?year=1999", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/annual-report?year=2023", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(2023), body["year"])
}

func TestPublishReportRequiresSession(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodPost, "/api/annual-report?year=2023", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPublishReportAndList(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/annual-report?year=2023", nil)
	req.AddCookie(sessionCookie(t))
	rec := e.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	row := decode(t, rec)
	assert.Equal(t, float64(2023), row["reportYear"])

	// Published row shows up on the public listing and in the computed report.
	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/annual-reports", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/annual-report?year=2023", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode(t, rec)
	require.Contains(t, report, "publication")
}

func TestCreateStoryRequiresSession(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/stories", jsonBody(t, map[string]string{"title": "T"}))
	rec := e.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndFetchStory(t *testing.T) {
	e := newTestEnv(t)
	teller := e.store.AddStoryteller(&model.Storyteller{FullName: "Aunty May"})

	req := httptest.NewRequest(http.MethodPost, "/api/stories", jsonBody(t, map[string]interface{}{
		"title":         "River day",
		"status":        "published",
		"storytellerId": teller.ID,
	}))
	req.AddCookie(sessionCookie(t))
	rec := e.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode(t, rec)
	id := created["id"].(string)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/stories/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "River day", body["title"])

	// The detail read recorded a view.
	assert.Equal(t, 1, e.store.StoriesByID[id].Views)
	// The storyteller's contribution counter moved.
	assert.Equal(t, 1, e.store.StorytellersByID[teller.ID].StoriesContributed)
	// The published story was pushed to the search index.
	assert.Equal(t, []string{id}, e.index.upserted)
}

func TestGetUnpublishedStoryAnonymous404(t *testing.T) {
	e := newTestEnv(t)
	story := e.store.AddStory(&model.Story{Title: "Draft", Status: model.StatusDraft})

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/stories/"+story.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/stories/"+story.ID, nil)
	req.AddCookie(sessionCookie(t))
	rec = e.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListStoriesHidesDraftsFromAnonymous(t *testing.T) {
	e := newTestEnv(t)
	e.store.AddStory(&model.Story{Title: "Live", Status: model.StatusPublished})
	e.store.AddStory(&model.Story{Title: "Draft", Status: model.StatusDraft})

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/stories?includeUnpublished=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"], "anonymous callers cannot lift the visibility predicate")

	req := httptest.NewRequest(http.MethodGet, "/api/stories?includeUnpublished=true", nil)
	req.AddCookie(sessionCookie(t))
	rec = e.do(req)
	body = decode(t, rec)
	assert.Equal(t, float64(2), body["count"])
}

func TestSetFeaturedRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	story := e.store.AddStory(&model.Story{Title: "Rail", Status: model.StatusPublished})

	req := httptest.NewRequest(http.MethodPut, "/api/stories/"+story.ID+"/featured",
		jsonBody(t, map[string]bool{"featured": true}))
	req.AddCookie(sessionCookie(t))
	rec := e.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/stories/featured", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
}

func TestDeleteStory(t *testing.T) {
	e := newTestEnv(t)
	story := e.store.AddStory(&model.Story{Title: "Bye", Status: model.StatusPublished})

	req := httptest.NewRequest(http.MethodDelete, "/api/stories/"+story.ID, nil)
	req.AddCookie(sessionCookie(t))
	rec := e.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/stories/"+story.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, []string{story.ID}, e.index.deleted)
}

func TestAISummarize(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodPost, "/api/ai/summarize",
		jsonBody(t, map[string]string{"content": "a long story"})))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "stub summary", body["summary"])
	assert.NotEmpty(t, body["timestamp"])
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
}

func TestSemanticSearch(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodPost, "/api/ai/semantic-search",
		jsonBody(t, map[string]string{"query": "river"})))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestAIRateLimitReturns429(t *testing.T) {
	e := newTestEnv(t)

	var rec *httptest.ResponseRecorder
	for i := 0; i < 25; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/ai/summarize",
			jsonBody(t, map[string]string{"content": "x"}))
		req.RemoteAddr = "1.2.3.4:999"
		rec = e.do(req)
	}
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestCronScrapeAuth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/cron/scrape", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/cron/scrape", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = e.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/cron/scrape", nil)
	req.Header.Set("Authorization", "Bearer "+testCronSecret)
	rec = e.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Contains(t, body, "sourcesChecked")
	assert.Contains(t, body, "sourcesDue")
}

func TestCronScrapeRunsDueSources(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.store.Scrape().CreateSource(context.Background(), &model.ScrapeSource{
		Name: "News", URL: "https://example.org", SourceType: "news",
		ScrapeFrequency: "daily", IsActive: true,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/cron/scrape", nil)
	req.Header.Set("Authorization", "Bearer "+testCronSecret)
	rec := e.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, float64(1), body["sourcesDue"])
	require.Len(t, body["jobIds"], 1)
}

func TestScraperSourcesRequireSession(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/scraper/sources", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/scraper/sources", jsonBody(t, map[string]string{
		"name": "News", "url": "https://example.org", "sourceType": "news",
	}))
	req.AddCookie(sessionCookie(t))
	rec = e.do(req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestAuthCallbackErrorRedirect(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/auth/callback?error_description=link+expired", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?error=link+expired", rec.Header().Get("Location"))
}

func TestAuthCallbackMissingCode(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/auth/callback", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/login?error=")
}

func TestPageGateRedirectsThroughRouter(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/picc/dashboard", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/login?redirect=")
}

func TestHealthEndpoint(t *testing.T) {
	e := newTestEnv(t)
	BindServiceHealth(func() bool { return true })
	t.Cleanup(func() { BindServiceHealth(func() bool { return false }) })

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
}
