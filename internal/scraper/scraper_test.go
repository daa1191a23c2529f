package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picc-digital/storyline/internal/model"
	"github.com/picc-digital/storyline/internal/store/storetest"
)

type fakeRunner struct {
	pages int
	err   error
	calls []string
}

func (r *fakeRunner) Run(_ context.Context, src *model.ScrapeSource) (int, error) {
	r.calls = append(r.calls, src.ID)
	return r.pages, r.err
}

func newOrchestrator(f *storetest.Fake, r Runner) *Orchestrator {
	return NewOrchestrator(f, r, zerolog.Nop())
}

func addSource(t *testing.T, f *storetest.Fake, name, freq string, lastScraped *time.Time) *model.ScrapeSource {
	t.Helper()
	src, err := f.Scrape().CreateSource(context.Background(), &model.ScrapeSource{
		Name:            name,
		URL:             "https://example.org/" + name,
		SourceType:      "news",
		ScrapeFrequency: freq,
		IsActive:        true,
		LastScrapedAt:   lastScraped,
	})
	require.NoError(t, err)
	return src
}

func TestTriggerDueRunsOnlyStaleSources(t *testing.T) {
	f := storetest.New()
	stale := time.Now().Add(-48 * time.Hour)
	fresh := time.Now().Add(-time.Hour)
	staleSrc := addSource(t, f, "stale", "daily", &stale)
	addSource(t, f, "fresh", "daily", &fresh)

	runner := &fakeRunner{pages: 7}
	o := newOrchestrator(f, runner)

	summary, err := o.TriggerDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.SourcesChecked)
	assert.Equal(t, 1, summary.SourcesDue)
	require.Len(t, summary.JobIDs, 1)
	assert.Equal(t, []string{staleSrc.ID}, runner.calls)

	job, err := f.Scrape().GetJob(context.Background(), summary.JobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "completed", job.Status)
	assert.Equal(t, 7, job.PagesFound)
	require.NotNil(t, job.CompletedAt)

	// The source's last-scraped marker moved, so it is no longer due.
	due, err := f.Scrape().SourcesDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestTriggerDueRecordsFailure(t *testing.T) {
	f := storetest.New()
	addSource(t, f, "broken", "daily", nil)

	runner := &fakeRunner{err: errors.New("upstream timed out")}
	o := newOrchestrator(f, runner)

	summary, err := o.TriggerDue(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.JobIDs, 1)

	job, err := f.Scrape().GetJob(context.Background(), summary.JobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "failed", job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "timed out")

	// Failed runs leave the source due for the next pass.
	due, derr := f.Scrape().SourcesDue(context.Background(), time.Now())
	require.NoError(t, derr)
	assert.Len(t, due, 1)
}

func TestTriggerForceIgnoresSchedule(t *testing.T) {
	f := storetest.New()
	fresh := time.Now().Add(-time.Minute)
	src := addSource(t, f, "fresh", "monthly", &fresh)

	runner := &fakeRunner{pages: 3}
	o := newOrchestrator(f, runner)

	// Without force the fresh source is skipped.
	summary, err := o.Trigger(context.Background(), []string{src.ID}, false)
	require.NoError(t, err)
	assert.Empty(t, summary.JobIDs)

	summary, err = o.Trigger(context.Background(), []string{src.ID}, true)
	require.NoError(t, err)
	assert.Len(t, summary.JobIDs, 1)
}

func TestTriggerUnknownSource(t *testing.T) {
	o := newOrchestrator(storetest.New(), &fakeRunner{})
	_, err := o.Trigger(context.Background(), []string{"nope"}, true)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateSourceValidation(t *testing.T) {
	o := newOrchestrator(storetest.New(), &fakeRunner{})

	_, err := o.CreateSource(context.Background(), &model.ScrapeSource{Name: "x"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = o.CreateSource(context.Background(), &model.ScrapeSource{
		Name: "x", URL: "https://example.org", ScrapeFrequency: "hourly",
	})
	assert.ErrorIs(t, err, model.ErrValidation)

	src, err := o.CreateSource(context.Background(), &model.ScrapeSource{
		Name: "x", URL: "https://example.org",
	})
	require.NoError(t, err)
	assert.Equal(t, "weekly", src.ScrapeFrequency, "frequency defaults to weekly")
}

func TestHTTPRunner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/scrape", r.URL.Path)
		_, _ = w.Write([]byte(`{"pagesFound":11}`))
	}))
	defer srv.Close()

	r := NewHTTPRunner(srv.URL)
	pages, err := r.Run(context.Background(), &model.ScrapeSource{URL: "https://example.org", SourceType: "news"})
	require.NoError(t, err)
	assert.Equal(t, 11, pages)
}

func TestHTTPRunnerUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewHTTPRunner(srv.URL)
	_, err := r.Run(context.Background(), &model.ScrapeSource{URL: "https://example.org"})
	assert.ErrorIs(t, err, model.ErrUpstream)
}
