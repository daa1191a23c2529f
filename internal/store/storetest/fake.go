// Package storetest provides an in-memory Store for unit tests.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/picc-digital/storyline/internal/model"
	"github.com/picc-digital/storyline/internal/store"
)

// Fake is an in-memory store.Store. Entities are keyed by ID; Err, when set,
// is returned from every call to simulate a backend outage.
type Fake struct {
	mu sync.Mutex

	Err error

	StoriesByID      map[string]*model.Story
	StorytellersByID map[string]*model.Storyteller
	OrgsByID         map[string]*model.Organization
	ServicesByID     map[string]*model.Service
	MediaByStory     map[string][]model.MediaAttachment
	MediaTagCounts   map[string]int
	KnowledgeTotal   int
	ReportDocsTotal  int
	ReportsByYear    map[int]*model.AnnualReport
	Sources          map[string]*model.ScrapeSource
	Jobs             map[string]*model.ScrapeJob
}

func New() *Fake {
	return &Fake{
		StoriesByID:      map[string]*model.Story{},
		StorytellersByID: map[string]*model.Storyteller{},
		OrgsByID:         map[string]*model.Organization{},
		ServicesByID:     map[string]*model.Service{},
		MediaByStory:     map[string][]model.MediaAttachment{},
		MediaTagCounts:   map[string]int{},
		ReportsByYear:    map[int]*model.AnnualReport{},
		Sources:          map[string]*model.ScrapeSource{},
		Jobs:             map[string]*model.ScrapeJob{},
	}
}

var _ store.Store = (*Fake)(nil)

func (f *Fake) Stories() store.Stories           { return (*fakeStories)(f) }
func (f *Fake) Storytellers() store.Storytellers { return (*fakeStorytellers)(f) }
func (f *Fake) Media() store.Media               { return (*fakeMedia)(f) }
func (f *Fake) Knowledge() store.Knowledge       { return (*fakeKnowledge)(f) }
func (f *Fake) Reports() store.Reports           { return (*fakeReports)(f) }
func (f *Fake) Scrape() store.Scrape             { return (*fakeScrape)(f) }
func (f *Fake) Relations() store.Relations       { return (*fakeRelations)(f) }

// AddStory inserts a story directly, filling ID and CreatedAt when absent.
func (f *Fake) AddStory(s *model.Story) *model.Story {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	s.IsPublic = s.Status == model.StatusPublished
	f.StoriesByID[s.ID] = s
	return s
}

// AddStoryteller inserts a storyteller profile directly.
func (f *Fake) AddStoryteller(st *model.Storyteller) *model.Storyteller {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	f.StorytellersByID[st.ID] = st
	return st
}

type fakeStories Fake

func (f *fakeStories) Create(_ context.Context, s *model.Story) (*model.Story, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	cp := *s
	return (*Fake)(f).AddStory(&cp), nil
}

func (f *fakeStories) GetByID(_ context.Context, id string) (*model.Story, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.StoriesByID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStories) List(_ context.Context, filters model.StoryFilters) ([]*model.Story, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Story
	for _, s := range f.StoriesByID {
		if !filters.IncludeUnpublished && s.Status != model.StatusPublished {
			continue
		}
		if filters.IncludeUnpublished && filters.Status != "" && s.Status != filters.Status {
			continue
		}
		if filters.Category != "" && s.Category != filters.Category {
			continue
		}
		if filters.StorytellerID != "" && (s.StorytellerID == nil || *s.StorytellerID != filters.StorytellerID) {
			continue
		}
		if filters.StartDate != nil && s.CreatedAt.Before(*filters.StartDate) {
			continue
		}
		if filters.EndDate != nil && s.CreatedAt.After(*filters.EndDate) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sortStories(out)
	if filters.Offset > 0 {
		if filters.Offset >= len(out) {
			return nil, nil
		}
		out = out[filters.Offset:]
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func sortStories(out []*model.Story) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return strings.Compare(out[i].ID, out[j].ID) > 0
	})
}

func (f *fakeStories) ListFeatured(_ context.Context, limit int) ([]*model.Story, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Story
	for _, s := range f.StoriesByID {
		if s.IsFeatured && s.Status == model.StatusPublished {
			cp := *s
			out = append(out, &cp)
		}
	}
	sortStories(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStories) Update(_ context.Context, id string, fields map[string]interface{}) (*model.Story, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.StoriesByID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if v, ok := fields["title"].(string); ok {
		s.Title = v
	}
	if v, ok := fields["status"].(string); ok {
		s.Status = v
		s.IsPublic = v == model.StatusPublished
		if s.IsPublic && s.PublishedAt == nil {
			now := time.Now().UTC()
			s.PublishedAt = &now
		}
	}
	if v, ok := fields["shares"].(int); ok {
		s.Shares = v
	}
	if v, ok := fields["likes"].(int); ok {
		s.Likes = v
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStories) SetFeatured(_ context.Context, id string, featured bool) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.StoriesByID[id]
	if !ok {
		return model.ErrNotFound
	}
	s.IsFeatured = featured
	return nil
}

func (f *fakeStories) IncrementViews(_ context.Context, id string) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.StoriesByID[id]; ok {
		s.Views++
	}
	return nil
}

func (f *fakeStories) Delete(_ context.Context, id string) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.StoriesByID[id]; !ok {
		return model.ErrNotFound
	}
	delete(f.StoriesByID, id)
	delete(f.MediaByStory, id)
	return nil
}

func (f *fakeStories) CountPublished(_ context.Context) (int, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.StoriesByID {
		if s.Status == model.StatusPublished {
			n++
		}
	}
	return n, nil
}

func (f *fakeStories) ListByYear(_ context.Context, year int) ([]*model.Story, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Story
	for _, s := range f.StoriesByID {
		if s.CreatedAt.Year() == year {
			cp := *s
			out = append(out, &cp)
		}
	}
	sortStories(out)
	return out, nil
}

func (f *fakeStories) CountByYear(ctx context.Context, year int) (int, error) {
	list, err := f.ListByYear(ctx, year)
	return len(list), err
}

type fakeStorytellers Fake

func (f *fakeStorytellers) Get(_ context.Context, id string) (*model.Storyteller, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.StorytellersByID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (f *fakeStorytellers) List(_ context.Context) ([]*model.Storyteller, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Storyteller
	for _, st := range f.StorytellersByID {
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (f *fakeStorytellers) AdjustStoryCount(_ context.Context, id string, delta int) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.StorytellersByID[id]; ok {
		st.StoriesContributed += delta
		if st.StoriesContributed < 0 {
			st.StoriesContributed = 0
		}
	}
	return nil
}

type fakeMedia Fake

func (f *fakeMedia) ListByStory(_ context.Context, storyID string) ([]model.MediaAttachment, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.MediaAttachment(nil), f.MediaByStory[storyID]...), nil
}

func (f *fakeMedia) CountWithTag(_ context.Context, tag string) (int, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.MediaTagCounts[tag], nil
}

type fakeKnowledge Fake

func (f *fakeKnowledge) Count(_ context.Context) (int, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	return f.KnowledgeTotal, nil
}

func (f *fakeKnowledge) CountReportDocuments(_ context.Context) (int, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	return f.ReportDocsTotal, nil
}

type fakeReports Fake

func (f *fakeReports) GetByYear(_ context.Context, year int) (*model.AnnualReport, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.ReportsByYear[year]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReports) List(_ context.Context) ([]*model.AnnualReport, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.AnnualReport
	for _, r := range f.ReportsByYear {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReportYear > out[j].ReportYear })
	return out, nil
}

func (f *fakeReports) Upsert(_ context.Context, r *model.AnnualReport) (*model.AnnualReport, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	if prev, ok := f.ReportsByYear[cp.ReportYear]; ok {
		cp.ID = prev.ID
		cp.CreatedAt = prev.CreatedAt
	} else {
		if cp.ID == "" {
			cp.ID = uuid.New().String()
		}
		cp.CreatedAt = time.Now().UTC()
	}
	f.ReportsByYear[cp.ReportYear] = &cp
	ret := cp
	return &ret, nil
}

type fakeScrape Fake

func (f *fakeScrape) CreateSource(_ context.Context, src *model.ScrapeSource) (*model.ScrapeSource, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *src
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	f.Sources[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeScrape) ListSources(_ context.Context, activeOnly bool, sourceType string) ([]*model.ScrapeSource, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ScrapeSource
	for _, src := range f.Sources {
		if activeOnly && !src.IsActive {
			continue
		}
		if sourceType != "" && src.SourceType != sourceType {
			continue
		}
		cp := *src
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeScrape) SourcesDue(ctx context.Context, now time.Time) ([]*model.ScrapeSource, error) {
	all, err := f.ListSources(ctx, true, "")
	if err != nil {
		return nil, err
	}
	var due []*model.ScrapeSource
	for _, src := range all {
		window := 30 * 24 * time.Hour
		switch src.ScrapeFrequency {
		case "daily":
			window = 24 * time.Hour
		case "weekly":
			window = 7 * 24 * time.Hour
		}
		if src.LastScrapedAt == nil || now.Sub(*src.LastScrapedAt) >= window {
			due = append(due, src)
		}
	}
	return due, nil
}

func (f *fakeScrape) TouchSource(_ context.Context, id string, at time.Time) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if src, ok := f.Sources[id]; ok {
		t := at
		src.LastScrapedAt = &t
	}
	return nil
}

func (f *fakeScrape) CreateJob(_ context.Context, j *model.ScrapeJob) (*model.ScrapeJob, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.Status == "" {
		cp.Status = "pending"
	}
	if cp.StartedAt.IsZero() {
		cp.StartedAt = time.Now().UTC()
	}
	f.Jobs[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeScrape) GetJob(_ context.Context, id string) (*model.ScrapeJob, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.Jobs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeScrape) ListJobs(_ context.Context, sourceID string, limit int) ([]*model.ScrapeJob, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ScrapeJob
	for _, j := range f.Jobs {
		if sourceID != "" && j.SourceID != sourceID {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeScrape) MarkJobStatus(_ context.Context, id, status string, pagesFound int, jobErr *string) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.Jobs[id]
	if !ok {
		return model.ErrNotFound
	}
	j.Status = status
	j.PagesFound = pagesFound
	j.Error = jobErr
	now := time.Now().UTC()
	j.CompletedAt = &now
	return nil
}

type fakeRelations Fake

func (f *fakeRelations) Organization(_ context.Context, id string) (*model.Organization, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.OrgsByID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeRelations) Service(_ context.Context, id string) (*model.Service, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.ServicesByID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *s
	return &cp, nil
}
