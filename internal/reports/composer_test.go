package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picc-digital/storyline/internal/model"
	"github.com/picc-digital/storyline/internal/store/storetest"
)

func newComposer(f *storetest.Fake) *Composer {
	return NewComposer(f, 2020, zerolog.Nop())
}

func TestContentStatsLiveCounts(t *testing.T) {
	f := storetest.New()
	f.MediaTagCounts["gallery"] = 300
	f.KnowledgeTotal = 90
	f.ReportDocsTotal = 16
	f.AddStory(&model.Story{Title: "One", Status: model.StatusPublished})
	f.AddStory(&model.Story{Title: "Two", Status: model.StatusDraft})

	stats := newComposer(f).ContentStats(context.Background())
	assert.True(t, stats.Success)
	assert.Empty(t, stats.Error)
	assert.Equal(t, 300, stats.Images)
	assert.Equal(t, 90, stats.KnowledgeEntries)
	assert.Equal(t, 1, stats.Stories, "drafts are not counted")
	assert.Equal(t, 16, stats.AnnualReports)
}

func TestContentStatsFallsBackOnFailure(t *testing.T) {
	f := storetest.New()
	f.Err = errors.New("backend down")

	stats := newComposer(f).ContentStats(context.Background())
	assert.False(t, stats.Success)
	assert.Equal(t, "Failed to fetch stats", stats.Error)
	assert.Equal(t, defaultImages, stats.Images)
	assert.Equal(t, defaultKnowledgeEntries, stats.KnowledgeEntries)
	assert.Equal(t, defaultStories, stats.Stories)
	assert.Equal(t, defaultAnnualReports, stats.AnnualReports)
}

func TestValidateYearRange(t *testing.T) {
	c := newComposer(storetest.New())
	c.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	assert.NoError(t, c.ValidateYear(2020))
	assert.NoError(t, c.ValidateYear(2025))
	assert.ErrorIs(t, c.ValidateYear(2019), model.ErrValidation)
	assert.ErrorIs(t, c.ValidateYear(2026), model.ErrValidation)
}

func seedReportYear(f *storetest.Fake) (elder, regular *model.Storyteller) {
	elder = f.AddStoryteller(&model.Storyteller{FullName: "Aunty May", IsElder: true})
	regular = f.AddStoryteller(&model.Storyteller{FullName: "Sam Rivers"})

	at := func(month time.Month) time.Time {
		return time.Date(2024, month, 10, 0, 0, 0, 0, time.UTC)
	}
	f.AddStory(&model.Story{
		Title: "Elder wisdom", Status: model.StatusPublished, Category: "culture",
		StorytellerID: &elder.ID, TraditionalKnowledge: true,
		Views: 100, Shares: 10, Likes: 5, CreatedAt: at(time.February),
	})
	f.AddStory(&model.Story{
		Title: "Community garden", Status: model.StatusPublished, Category: "community",
		StorytellerID: &regular.ID,
		Views: 50, Shares: 40, Likes: 0, IsFeatured: true, CreatedAt: at(time.February),
	})
	f.AddStory(&model.Story{
		Title: "Quiet one", Status: model.StatusPublished, Category: "community",
		StorytellerID: &elder.ID,
		Views: 5, CreatedAt: at(time.July),
	})
	// Prior-year story for growth computation.
	f.AddStory(&model.Story{
		Title: "Last year", Status: model.StatusPublished, Category: "community",
		CreatedAt: time.Date(2023, time.May, 1, 0, 0, 0, 0, time.UTC),
	})
	return elder, regular
}

func TestAnnualReportAggregates(t *testing.T) {
	f := storetest.New()
	seedReportYear(f)

	c := newComposer(f)
	c.now = func() time.Time { return time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC) }

	data, err := c.AnnualReport(context.Background(), 2024)
	require.NoError(t, err)

	assert.Equal(t, 2024, data.Year)
	assert.Equal(t, "2024-01-01", data.PeriodStart)
	assert.Equal(t, "2024-12-31", data.PeriodEnd)

	assert.Equal(t, 3, data.Summary.TotalStories)
	assert.Equal(t, 2, data.Summary.TotalStorytellers)
	assert.Equal(t, 1, data.Summary.TotalElders)
	assert.Equal(t, 155, data.Summary.TotalViews)
	assert.Equal(t, 50, data.Summary.TotalShares)

	assert.Equal(t, map[string]int{"culture": 1, "community": 2}, data.StoriesByCategory)

	require.Len(t, data.StoriesByMonth, 12)
	assert.Equal(t, "Feb", data.StoriesByMonth[1].Month)
	assert.Equal(t, 2, data.StoriesByMonth[1].Count)
	assert.Equal(t, 1, data.StoriesByMonth[6].Count)

	assert.Equal(t, 1, data.Cultural.TraditionalKnowledgeStories)
	assert.Equal(t, 2, data.Cultural.ElderWisdomStories)

	require.NotEmpty(t, data.TopStorytellers)
	assert.Equal(t, "Aunty May", data.TopStorytellers[0].Name)
	assert.Equal(t, 2, data.TopStorytellers[0].StoryCount)

	// 3 stories vs 1 the year before.
	assert.InDelta(t, 200.0, data.GrowthRate, 0.001)
}

func TestAnnualReportTopStoriesScoring(t *testing.T) {
	f := storetest.New()
	seedReportYear(f)

	c := newComposer(f)
	c.now = func() time.Time { return time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC) }

	data, err := c.AnnualReport(context.Background(), 2024)
	require.NoError(t, err)
	require.Len(t, data.TopStories, 3)

	// "Community garden": 50 + 2*40 + 0 = 130 beats "Elder wisdom":
	// 100 + 2*10 + 5 = 125.
	assert.Equal(t, "Community garden", data.TopStories[0].Title)
	assert.Equal(t, "Elder wisdom", data.TopStories[1].Title)
	assert.Equal(t, "Quiet one", data.TopStories[2].Title)
}

func TestAnnualReportTieBreakByRelevanceTier(t *testing.T) {
	f := storetest.New()
	f.AddStory(&model.Story{
		Title: "Verified", Status: model.StatusPublished, IsVerified: true,
		Views: 10, CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	f.AddStory(&model.Story{
		Title: "Featured", Status: model.StatusPublished, IsFeatured: true,
		Views: 10, CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})

	c := newComposer(f)
	c.now = func() time.Time { return time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC) }

	data, err := c.AnnualReport(context.Background(), 2024)
	require.NoError(t, err)
	require.Len(t, data.TopStories, 2)
	assert.Equal(t, "Featured", data.TopStories[0].Title)
}

func TestAnnualReportRejectsOutOfRangeYear(t *testing.T) {
	c := newComposer(storetest.New())
	_, err := c.AnnualReport(context.Background(), 1999)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestAnnualReportZeroGrowthWhenNoPriorYear(t *testing.T) {
	f := storetest.New()
	f.AddStory(&model.Story{
		Title: "Only one", Status: model.StatusPublished,
		CreatedAt: time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC),
	})

	c := newComposer(f)
	data, err := c.AnnualReport(context.Background(), 2020)
	require.NoError(t, err)
	assert.Zero(t, data.GrowthRate)
}

func TestPublishReportUpsertsRow(t *testing.T) {
	f := storetest.New()
	c := newComposer(f)
	c.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }

	row, err := c.PublishReport(context.Background(), 2024)
	require.NoError(t, err)
	assert.Equal(t, 2024, row.ReportYear)
	assert.Equal(t, "PICC Annual Report 2024", row.Title)
	assert.Equal(t, model.StatusPublished, row.Status)
	require.NotNil(t, row.PublishedDate)

	// Re-publishing the same year updates in place rather than duplicating.
	again, err := c.PublishReport(context.Background(), 2024)
	require.NoError(t, err)
	assert.Equal(t, row.ID, again.ID)
	rows, err := c.StoredReports(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestPublishReportRejectsOutOfRangeYear(t *testing.T) {
	c := newComposer(storetest.New())
	c.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }

	_, err := c.PublishReport(context.Background(), 2019)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestAnnualReportAttachesPublication(t *testing.T) {
	f := storetest.New()
	seedReportYear(f)
	c := newComposer(f)
	c.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	// No publication row yet.
	data, err := c.AnnualReport(context.Background(), 2024)
	require.NoError(t, err)
	assert.Nil(t, data.Publication)

	_, err = c.PublishReport(context.Background(), 2024)
	require.NoError(t, err)

	data, err = c.AnnualReport(context.Background(), 2024)
	require.NoError(t, err)
	require.NotNil(t, data.Publication)
	assert.Equal(t, 2024, data.Publication.ReportYear)
	assert.Equal(t, "PICC Annual Report 2024", data.Publication.Title)
}
