package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/picc-digital/storyline/internal/aiproxy"
	"github.com/picc-digital/storyline/internal/api/recovery"
	"github.com/picc-digital/storyline/internal/content"
	"github.com/picc-digital/storyline/internal/gate"
	"github.com/picc-digital/storyline/internal/obs"
	"github.com/picc-digital/storyline/internal/ratelimit"
	"github.com/picc-digital/storyline/internal/reports"
	"github.com/picc-digital/storyline/internal/scraper"
	"github.com/picc-digital/storyline/internal/searchindex"
	"github.com/picc-digital/storyline/internal/session"
)

// Deps carries everything the router needs; run.go builds them.
type Deps struct {
	Aggregator  *content.Aggregator
	Composer    *reports.Composer
	AI          *aiproxy.Client
	Index       searchindex.Index
	Indexer     *searchindex.DocIndexer
	SearchAlpha float32
	Orch        *scraper.Orchestrator
	Resolver    *session.Resolver
	Guard       *gate.Guard
	Limiter     *ratelimit.Limiter
	CronSecret  string
	Logger      zerolog.Logger
	// Pages serves everything outside /api, /auth and /metrics; the gate
	// middleware wraps it. Nil means a plain 404 handler.
	Pages http.Handler
}

// NewRouter creates the HTTP router with all API routes.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()

	// Global middlewares
	router.Use(recovery.Middleware)
	router.Use(func(next http.Handler) http.Handler {
		return obs.Instrument(d.Logger, next)
	})

	storyHandler := NewStoryHandler(d.Aggregator, d.Resolver, d.Indexer)
	reportHandler := NewReportHandler(d.Composer, d.Resolver)
	aiHandler := NewAIHandler(d.AI, d.Index, d.SearchAlpha)
	scraperHandler := NewScraperHandler(d.Orch, d.Resolver, d.CronSecret)
	authHandler := NewAuthHandler(d.Resolver, d.Logger)
	healthHandler := NewHealthHandler()

	// Health and metrics
	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")
	router.Handle("/metrics", obs.Handler()).Methods("GET")

	// Content stats and reports
	router.HandleFunc("/api/content/stats", reportHandler.ContentStats).Methods("GET")
	router.HandleFunc("/api/annual-report", reportHandler.AnnualReport).Methods("GET")
	router.HandleFunc("/api/annual-report", reportHandler.PublishReport).Methods("POST")
	router.HandleFunc("/api/annual-reports", reportHandler.ListReports).Methods("GET")

	// Stories
	router.HandleFunc("/api/stories", storyHandler.ListStories).Methods("GET")
	router.HandleFunc("/api/stories", storyHandler.CreateStory).Methods("POST")
	router.HandleFunc("/api/stories/featured", storyHandler.ListFeatured).Methods("GET")
	router.HandleFunc("/api/stories/{storyId}", storyHandler.GetStory).Methods("GET")
	router.HandleFunc("/api/stories/{storyId}", storyHandler.UpdateStory).Methods("PATCH")
	router.HandleFunc("/api/stories/{storyId}", storyHandler.DeleteStory).Methods("DELETE")
	router.HandleFunc("/api/stories/{storyId}/featured", storyHandler.SetFeatured).Methods("PUT")

	// Storytellers
	router.HandleFunc("/api/storytellers", storyHandler.ListStorytellers).Methods("GET")
	router.HandleFunc("/api/storytellers/{storytellerId}", storyHandler.GetStoryteller).Methods("GET")

	// AI endpoints, rate limited per cost class
	limited := func(class ratelimit.Class, fn http.HandlerFunc) http.Handler {
		return d.Limiter.Middleware(class, fn)
	}
	router.Handle("/api/ai/summarize", limited(ratelimit.ClassAI, aiHandler.Summarize)).Methods("POST")
	router.Handle("/api/ai/embeddings", limited(ratelimit.ClassQuery, aiHandler.Embeddings)).Methods("POST")
	router.Handle("/api/ai/semantic-search", limited(ratelimit.ClassQuery, aiHandler.SemanticSearch)).Methods("POST")
	router.Handle("/api/ai/story-prompts", limited(ratelimit.ClassAI, aiHandler.StoryPrompts)).Methods("GET")

	// Scraper administration and cron
	router.HandleFunc("/api/scraper/sources", scraperHandler.ListSources).Methods("GET")
	router.HandleFunc("/api/scraper/sources", scraperHandler.CreateSource).Methods("POST")
	router.HandleFunc("/api/scraper/jobs", scraperHandler.ListJobs).Methods("GET")
	router.HandleFunc("/api/scraper/jobs", scraperHandler.TriggerJobs).Methods("POST")
	router.HandleFunc("/api/scraper/jobs/{jobId}", scraperHandler.GetJob).Methods("GET")
	router.HandleFunc("/api/cron/scrape", scraperHandler.CronScrape).Methods("GET", "POST")

	// Auth callback
	router.HandleFunc("/auth/callback", authHandler.Callback).Methods("GET")

	// Everything else is a page route behind the gate.
	pages := d.Pages
	if pages == nil {
		pages = http.NotFoundHandler()
	}
	if d.Guard != nil {
		pages = d.Guard.Middleware(pages)
	}
	router.PathPrefix("/").Handler(pages)

	return router
}
