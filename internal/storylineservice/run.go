// Package storylineservice wires configuration, storage, search, AI and HTTP
// routing into the storyline backend process.
package storylineservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/picc-digital/storyline/internal/aiproxy"
	"github.com/picc-digital/storyline/internal/api"
	"github.com/picc-digital/storyline/internal/config"
	"github.com/picc-digital/storyline/internal/content"
	"github.com/picc-digital/storyline/internal/gate"
	"github.com/picc-digital/storyline/internal/health"
	"github.com/picc-digital/storyline/internal/logger"
	"github.com/picc-digital/storyline/internal/obs"
	"github.com/picc-digital/storyline/internal/ratelimit"
	"github.com/picc-digital/storyline/internal/reports"
	"github.com/picc-digital/storyline/internal/scraper"
	"github.com/picc-digital/storyline/internal/searchindex"
	"github.com/picc-digital/storyline/internal/session"
	"github.com/picc-digital/storyline/internal/store"
	"github.com/picc-digital/storyline/internal/store/postgres"
)

// Build metadata, set via -ldflags at release time.
var (
	Version = "dev"
	Commit  = "none"
)

// Run starts the storyline HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("storyline-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	obs.Init()
	obs.InitBuildInfo(Version, Commit)

	// Cancellable root context bound to SIGINT/SIGTERM.
	ctx, stop := newServerContext()
	defer stop()

	deps, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}

	router := buildRouter(cfg, log, deps)

	svcHealth := startHealthCheckers(ctx, cfg, log, deps)
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// dependencies holds every long-lived component the router and health
// checkers share.
type dependencies struct {
	store    store.Store
	index    searchindex.Index
	ai       *aiproxy.Client
	resolver *session.Resolver
	orch     *scraper.Orchestrator
	limiter  *ratelimit.Limiter
	guard    *gate.Guard
}

func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*dependencies, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	db, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Postgres unavailable")
		return nil, err
	}
	st := postgres.NewWithDB(db)

	idx, err := searchindex.NewWeaviateNativeIndex(cfg.SearchIndexURL)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Search index adapter unavailable")
		return nil, err
	}
	if err := searchindex.BootstrapWeaviate(ctx, cfg.SearchIndexURL); err != nil {
		log.Error().Stack().Err(err).Msg("Search index schema bootstrap failed")
		return nil, err
	}

	ai := aiproxy.NewClient(cfg, log)
	resolver := session.NewResolver(cfg, log)
	orch := scraper.NewOrchestrator(st, scraper.NewHTTPRunner(cfg.ScrapeRunnerURL), log)
	guard := gate.NewGuard(gate.NewClassifier(gate.DefaultRoutes()), resolver, log)

	return &dependencies{
		store:    st,
		index:    idx,
		ai:       ai,
		resolver: resolver,
		orch:     orch,
		limiter:  ratelimit.New(),
		guard:    guard,
	}, nil
}

func buildRouter(cfg *config.Config, log zerolog.Logger, d *dependencies) *mux.Router {
	return api.NewRouter(api.Deps{
		Aggregator:  content.NewAggregator(d.store, log),
		Composer:    reports.NewComposer(d.store, cfg.PlatformStartYear, log),
		AI:          d.ai,
		Index:       d.index,
		Indexer:     searchindex.NewDocIndexer(d.ai, d.index, log),
		SearchAlpha: cfg.SearchAlpha,
		Orch:        d.orch,
		Resolver:    d.resolver,
		Guard:       d.guard,
		Limiter:     d.limiter,
		CronSecret:  cfg.CronSecret,
		Logger:      log,
	})
}

// startHealthCheckers starts component checkers and the service-level
// aggregator, then binds the /api/health handler to it.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, d *dependencies) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	var checkers []health.HealthChecker
	add := func(name string, pinger health.HealthPinger) {
		c := health.NewPingChecker(name, pinger, log, probeTimeout)
		go c.Start(ctx, interval)
		checkers = append(checkers, c)
	}

	if pinger, ok := d.store.(health.HealthPinger); ok {
		add("postgres", pinger)
	}
	if pinger, ok := d.index.(health.HealthPinger); ok {
		add("search-index", pinger)
	}
	add("ai-backend", d.ai)

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	api.BindServiceHealth(svcHealth.IsHealthy)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// startupHealthTimeout returns the startup health window in seconds,
// interval*2 with a minimum of 60 seconds.
func startupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup
// window expires. Checkers start unhealthy and need one probe cycle.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := startupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
