// Package reports computes the homepage content stats and the annual impact
// report payloads.
package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/picc-digital/storyline/internal/model"
	"github.com/picc-digital/storyline/internal/store"
)

// Fallback counters shown when a backing count is unavailable. The homepage
// renders these rather than an error state.
const (
	defaultImages           = 264
	defaultKnowledgeEntries = 86
	defaultStories          = 31
	defaultAnnualReports    = 15
)

const statsErrMessage = "Failed to fetch stats"

// galleryTag marks media rows that appear in the public gallery.
const galleryTag = "gallery"

const topListSize = 5

// Composer aggregates store counts into stats and report payloads.
type Composer struct {
	store     store.Store
	startYear int
	logger    zerolog.Logger

	// now is injectable so year-range validation is testable.
	now func() time.Time
}

func NewComposer(s store.Store, startYear int, logger zerolog.Logger) *Composer {
	return &Composer{
		store:     s,
		startYear: startYear,
		logger:    logger.With().Str("component", "reports").Logger(),
		now:       time.Now,
	}
}

// ContentStats gathers the four homepage counters concurrently. Each failed
// count is logged and replaced by its default; Success reports whether every
// counter is live. The caller always serves the result with HTTP 200.
func (c *Composer) ContentStats(ctx context.Context) *model.ContentStats {
	stats := &model.ContentStats{Success: true}

	type count struct {
		name     string
		fallback int
		dest     *int
		fetch    func(context.Context) (int, error)
	}
	counts := []count{
		{"images", defaultImages, &stats.Images, func(ctx context.Context) (int, error) {
			return c.store.Media().CountWithTag(ctx, galleryTag)
		}},
		{"knowledge_entries", defaultKnowledgeEntries, &stats.KnowledgeEntries, c.store.Knowledge().Count},
		{"stories", defaultStories, &stats.Stories, c.store.Stories().CountPublished},
		{"annual_reports", defaultAnnualReports, &stats.AnnualReports, c.store.Knowledge().CountReportDocuments},
	}

	fellBack := make([]bool, len(counts))
	g, gctx := errgroup.WithContext(ctx)
	for i := range counts {
		i := i
		g.Go(func() error {
			n, err := counts[i].fetch(gctx)
			if err != nil {
				c.logger.Error().Err(err).Str("counter", counts[i].name).Msg("count failed, using fallback")
				*counts[i].dest = counts[i].fallback
				fellBack[i] = true
				return nil
			}
			*counts[i].dest = n
			return nil
		})
	}
	_ = g.Wait()

	for _, fb := range fellBack {
		if fb {
			stats.Success = false
			stats.Error = statsErrMessage
			break
		}
	}
	return stats
}

// ValidateYear checks that year falls inside the platform's reporting range.
func (c *Composer) ValidateYear(year int) error {
	current := c.now().Year()
	if year < c.startYear || year > current {
		return fmt.Errorf("%w: year must be between %d and %d", model.ErrValidation, c.startYear, current)
	}
	return nil
}

// AnnualReport computes the impact report payload for a year.
func (c *Composer) AnnualReport(ctx context.Context, year int) (*model.AnnualReportData, error) {
	if err := c.ValidateYear(year); err != nil {
		return nil, err
	}

	var (
		stories     []*model.Story
		tellers     []*model.Storyteller
		prevCount   int
		publication *model.AnnualReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stories, err = c.store.Stories().ListByYear(gctx, year)
		return err
	})
	g.Go(func() error {
		var err error
		tellers, err = c.store.Storytellers().List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		prevCount, err = c.store.Stories().CountByYear(gctx, year-1)
		return err
	})
	g.Go(func() error {
		row, err := c.store.Reports().GetByYear(gctx, year)
		if errors.Is(err, model.ErrNotFound) {
			return nil // nothing published for this year yet
		}
		if err != nil {
			return err
		}
		publication = row
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tellerByID := make(map[string]*model.Storyteller, len(tellers))
	for _, st := range tellers {
		tellerByID[st.ID] = st
	}

	data := &model.AnnualReportData{
		Year:              year,
		PeriodStart:       fmt.Sprintf("%d-01-01", year),
		PeriodEnd:         fmt.Sprintf("%d-12-31", year),
		StoriesByCategory: map[string]int{},
		StoriesByMonth:    emptyMonths(),
	}

	contributors := map[string]int{}
	for _, s := range stories {
		data.Summary.TotalStories++
		data.Summary.TotalViews += s.Views
		data.Summary.TotalShares += s.Shares
		data.StoriesByCategory[s.Category]++
		data.StoriesByMonth[s.CreatedAt.Month()-1].Count++

		if s.TraditionalKnowledge {
			data.Cultural.TraditionalKnowledgeStories++
		}
		if s.StorytellerID != nil {
			contributors[*s.StorytellerID]++
			if st, ok := tellerByID[*s.StorytellerID]; ok && st.IsElder {
				data.Cultural.ElderWisdomStories++
			}
		}
	}

	data.Summary.TotalStorytellers = len(contributors)
	for id := range contributors {
		if st, ok := tellerByID[id]; ok && st.IsElder {
			data.Summary.TotalElders++
		}
	}

	data.TopStorytellers = topStorytellers(contributors, tellerByID)
	data.TopStories = topStories(stories, tellerByID)

	if prevCount > 0 {
		data.GrowthRate = float64(data.Summary.TotalStories-prevCount) / float64(prevCount) * 100
	}
	data.Publication = publication
	return data, nil
}

// PublishReport records (or refreshes) the stored publication row for a
// year. Re-publishing a year updates the existing row in place.
func (c *Composer) PublishReport(ctx context.Context, year int) (*model.AnnualReport, error) {
	if err := c.ValidateYear(year); err != nil {
		return nil, err
	}
	now := c.now().UTC()
	return c.store.Reports().Upsert(ctx, &model.AnnualReport{
		ReportYear:    year,
		Title:         fmt.Sprintf("PICC Annual Report %d", year),
		Status:        model.StatusPublished,
		PublishedDate: &now,
	})
}

// StoredReports lists the published report rows, newest year first.
func (c *Composer) StoredReports(ctx context.Context) ([]*model.AnnualReport, error) {
	return c.store.Reports().List(ctx)
}

func emptyMonths() []model.MonthCount {
	out := make([]model.MonthCount, 12)
	for i := range out {
		out[i].Month = time.Month(i + 1).String()[:3]
	}
	return out
}

func topStorytellers(contributors map[string]int, tellerByID map[string]*model.Storyteller) []model.TopStoryteller {
	type entry struct {
		name  string
		count int
	}
	entries := make([]entry, 0, len(contributors))
	for id, n := range contributors {
		name := "Unknown"
		if st, ok := tellerByID[id]; ok {
			name = st.FullName
			if st.PreferredName != nil && *st.PreferredName != "" {
				name = *st.PreferredName
			}
		}
		entries = append(entries, entry{name: name, count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})
	if len(entries) > topListSize {
		entries = entries[:topListSize]
	}
	out := make([]model.TopStoryteller, len(entries))
	for i, e := range entries {
		out[i] = model.TopStoryteller{Name: e.name, StoryCount: e.count}
	}
	return out
}

// storyScore ranks stories by engagement, weighting shares double since a
// share reaches beyond the platform.
func storyScore(s *model.Story) int {
	return s.Views + 2*s.Shares + s.Likes
}

// relevanceTier breaks score ties: featured stories outrank verified ones,
// which outrank traditional-knowledge ones.
func relevanceTier(s *model.Story) float64 {
	switch {
	case s.IsFeatured:
		return 1.0
	case s.IsVerified:
		return 0.9
	case s.TraditionalKnowledge:
		return 0.8
	default:
		return 0.5
	}
}

func topStories(stories []*model.Story, tellerByID map[string]*model.Storyteller) []model.TopStory {
	ranked := append([]*model.Story(nil), stories...)
	sort.Slice(ranked, func(i, j int) bool {
		si, sj := storyScore(ranked[i]), storyScore(ranked[j])
		if si != sj {
			return si > sj
		}
		ti, tj := relevanceTier(ranked[i]), relevanceTier(ranked[j])
		if ti != tj {
			return ti > tj
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > topListSize {
		ranked = ranked[:topListSize]
	}
	out := make([]model.TopStory, len(ranked))
	for i, s := range ranked {
		name := ""
		if s.StorytellerID != nil {
			if st, ok := tellerByID[*s.StorytellerID]; ok {
				name = st.FullName
			}
		}
		out[i] = model.TopStory{
			ID:              s.ID,
			Title:           s.Title,
			StorytellerName: name,
			Views:           s.Views,
			Category:        s.Category,
		}
	}
	return out
}
