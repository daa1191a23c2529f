package store

import (
	"context"
	"time"

	"github.com/picc-digital/storyline/internal/model"
)

// Store exposes persistence operations required by the aggregation and
// reporting layers. Implementations live under internal/store/<driver>/.
type Store interface {
	Stories() Stories
	Storytellers() Storytellers
	Media() Media
	Knowledge() Knowledge
	Reports() Reports
	Scrape() Scrape
	Relations() Relations
}

type Stories interface {
	Create(ctx context.Context, s *model.Story) (*model.Story, error)
	GetByID(ctx context.Context, id string) (*model.Story, error)
	List(ctx context.Context, f model.StoryFilters) ([]*model.Story, error)
	ListFeatured(ctx context.Context, limit int) ([]*model.Story, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) (*model.Story, error)
	SetFeatured(ctx context.Context, id string, featured bool) error
	IncrementViews(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	CountPublished(ctx context.Context) (int, error)
	ListByYear(ctx context.Context, year int) ([]*model.Story, error)
	CountByYear(ctx context.Context, year int) (int, error)
}

type Storytellers interface {
	Get(ctx context.Context, id string) (*model.Storyteller, error)
	List(ctx context.Context) ([]*model.Storyteller, error)
	AdjustStoryCount(ctx context.Context, id string, delta int) error
}

type Media interface {
	ListByStory(ctx context.Context, storyID string) ([]model.MediaAttachment, error)
	CountWithTag(ctx context.Context, tag string) (int, error)
}

type Knowledge interface {
	Count(ctx context.Context) (int, error)
	CountReportDocuments(ctx context.Context) (int, error)
}

type Reports interface {
	GetByYear(ctx context.Context, year int) (*model.AnnualReport, error)
	List(ctx context.Context) ([]*model.AnnualReport, error)
	// Upsert keys on report_year: one stored publication row per year.
	Upsert(ctx context.Context, r *model.AnnualReport) (*model.AnnualReport, error)
}

type Scrape interface {
	CreateSource(ctx context.Context, s *model.ScrapeSource) (*model.ScrapeSource, error)
	ListSources(ctx context.Context, activeOnly bool, sourceType string) ([]*model.ScrapeSource, error)
	SourcesDue(ctx context.Context, now time.Time) ([]*model.ScrapeSource, error)
	TouchSource(ctx context.Context, id string, at time.Time) error
	CreateJob(ctx context.Context, j *model.ScrapeJob) (*model.ScrapeJob, error)
	GetJob(ctx context.Context, id string) (*model.ScrapeJob, error)
	ListJobs(ctx context.Context, sourceID string, limit int) ([]*model.ScrapeJob, error)
	MarkJobStatus(ctx context.Context, id, status string, pagesFound int, jobErr *string) error
}

// Relations looks up display attribution entities by primary key. The
// aggregator stitches these onto stories locally when the store cannot
// express the join atomically.
type Relations interface {
	Organization(ctx context.Context, id string) (*model.Organization, error)
	Service(ctx context.Context, id string) (*model.Service, error)
}
