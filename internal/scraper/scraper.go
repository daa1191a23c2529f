// Package scraper orchestrates ingestion runs against configured sources.
// Fetching and parsing happen in the hosted scrape runner; this package only
// schedules jobs and records outcomes.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/picc-digital/storyline/internal/model"
	"github.com/picc-digital/storyline/internal/store"
)

// Runner executes one scrape against a source and reports what it found.
type Runner interface {
	Run(ctx context.Context, src *model.ScrapeSource) (pagesFound int, err error)
}

// RunSummary reports a TriggerDue pass.
type RunSummary struct {
	SourcesChecked int      `json:"sourcesChecked"`
	SourcesDue     int      `json:"sourcesDue"`
	JobIDs         []string `json:"jobIds"`
}

// Orchestrator schedules scrape jobs over the store.
type Orchestrator struct {
	store  store.Store
	runner Runner
	logger zerolog.Logger

	now func() time.Time
}

func NewOrchestrator(s store.Store, runner Runner, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:  s,
		runner: runner,
		logger: logger.With().Str("component", "scraper").Logger(),
		now:    time.Now,
	}
}

// TriggerDue runs every active source whose frequency window has elapsed.
// Used by the cron endpoint.
func (o *Orchestrator) TriggerDue(ctx context.Context) (*RunSummary, error) {
	now := o.now()
	all, err := o.store.Scrape().ListSources(ctx, true, "")
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	due, err := o.store.Scrape().SourcesDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("resolve due sources: %w", err)
	}

	summary := &RunSummary{SourcesChecked: len(all), SourcesDue: len(due)}
	for _, src := range due {
		job, err := o.runSource(ctx, src)
		if err != nil {
			o.logger.Error().Err(err).Str("source_id", src.ID).Msg("scrape run failed to start")
			continue
		}
		summary.JobIDs = append(summary.JobIDs, job.ID)
	}
	return summary, nil
}

// Trigger runs the named sources. With force unset, sources that are not yet
// due are skipped.
func (o *Orchestrator) Trigger(ctx context.Context, sourceIDs []string, force bool) (*RunSummary, error) {
	now := o.now()
	due := map[string]bool{}
	if !force {
		dueList, err := o.store.Scrape().SourcesDue(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("resolve due sources: %w", err)
		}
		for _, src := range dueList {
			due[src.ID] = true
		}
	}

	all, err := o.store.Scrape().ListSources(ctx, false, "")
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	byID := make(map[string]*model.ScrapeSource, len(all))
	for _, src := range all {
		byID[src.ID] = src
	}

	summary := &RunSummary{SourcesChecked: len(sourceIDs)}
	for _, id := range sourceIDs {
		src, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: source %s", model.ErrNotFound, id)
		}
		if !force && !due[id] {
			continue
		}
		summary.SourcesDue++
		job, err := o.runSource(ctx, src)
		if err != nil {
			o.logger.Error().Err(err).Str("source_id", src.ID).Msg("scrape run failed to start")
			continue
		}
		summary.JobIDs = append(summary.JobIDs, job.ID)
	}
	return summary, nil
}

// runSource records a job, invokes the runner, and stores the outcome.
func (o *Orchestrator) runSource(ctx context.Context, src *model.ScrapeSource) (*model.ScrapeJob, error) {
	job, err := o.store.Scrape().CreateJob(ctx, &model.ScrapeJob{SourceID: src.ID})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	pages, runErr := o.runner.Run(ctx, src)
	if runErr != nil {
		msg := runErr.Error()
		if err := o.store.Scrape().MarkJobStatus(ctx, job.ID, "failed", pages, &msg); err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to record job failure")
		}
		return job, nil
	}

	if err := o.store.Scrape().MarkJobStatus(ctx, job.ID, "completed", pages, nil); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to record job completion")
	}
	if err := o.store.Scrape().TouchSource(ctx, src.ID, o.now()); err != nil {
		o.logger.Error().Err(err).Str("source_id", src.ID).Msg("failed to touch source")
	}
	o.logger.Info().Str("source_id", src.ID).Str("job_id", job.ID).Int("pages", pages).Msg("scrape completed")
	return job, nil
}

// CreateSource registers a new ingestion source.
func (o *Orchestrator) CreateSource(ctx context.Context, src *model.ScrapeSource) (*model.ScrapeSource, error) {
	if src.Name == "" || src.URL == "" {
		return nil, fmt.Errorf("%w: name and url are required", model.ErrValidation)
	}
	if src.ScrapeFrequency == "" {
		src.ScrapeFrequency = "weekly"
	}
	switch src.ScrapeFrequency {
	case "daily", "weekly", "monthly":
	default:
		return nil, fmt.Errorf("%w: unknown frequency %q", model.ErrValidation, src.ScrapeFrequency)
	}
	return o.store.Scrape().CreateSource(ctx, src)
}

// Sources lists configured sources.
func (o *Orchestrator) Sources(ctx context.Context, activeOnly bool, sourceType string) ([]*model.ScrapeSource, error) {
	return o.store.Scrape().ListSources(ctx, activeOnly, sourceType)
}

// Job fetches a single job.
func (o *Orchestrator) Job(ctx context.Context, id string) (*model.ScrapeJob, error) {
	return o.store.Scrape().GetJob(ctx, id)
}

// Jobs lists recent jobs, optionally narrowed to one source.
func (o *Orchestrator) Jobs(ctx context.Context, sourceID string, limit int) ([]*model.ScrapeJob, error) {
	if limit <= 0 {
		limit = 50
	}
	return o.store.Scrape().ListJobs(ctx, sourceID, limit)
}

// HTTPRunner calls the hosted scrape runner.
type HTTPRunner struct {
	client *resty.Client
}

func NewHTTPRunner(baseURL string) *HTTPRunner {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(2 * time.Minute)
	return &HTTPRunner{client: c}
}

type runRequest struct {
	URL        string `json:"url"`
	SourceType string `json:"sourceType"`
}

type runResponse struct {
	PagesFound int `json:"pagesFound"`
}

func (r *HTTPRunner) Run(ctx context.Context, src *model.ScrapeSource) (int, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(&runRequest{URL: src.URL, SourceType: src.SourceType}).
		Post("/scrape")
	if err != nil {
		return 0, fmt.Errorf("%w: scrape runner: %v", model.ErrUpstream, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("%w: scrape runner returned %d", model.ErrUpstream, resp.StatusCode())
	}
	var rr runResponse
	if err := json.Unmarshal(resp.Body(), &rr); err != nil {
		return 0, fmt.Errorf("%w: decode runner response: %v", model.ErrUpstream, err)
	}
	return rr.PagesFound, nil
}
