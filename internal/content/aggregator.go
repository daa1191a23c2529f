// Package content aggregates stories with their related entities for the
// public API surface.
package content

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/picc-digital/storyline/internal/model"
	"github.com/picc-digital/storyline/internal/store"
)

const defaultFeaturedLimit = 6

// Aggregator composes store reads into the denormalized shapes the handlers
// serve.
type Aggregator struct {
	store  store.Store
	logger zerolog.Logger
}

func NewAggregator(s store.Store, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		store:  s,
		logger: logger.With().Str("component", "content").Logger(),
	}
}

// StoryDetail returns a story with storyteller, organization, service and
// ordered media stitched on. Unless includeUnpublished is set, non-published
// stories are reported as not found rather than hidden behind a 403, so the
// response does not leak their existence.
func (a *Aggregator) StoryDetail(ctx context.Context, id string, includeUnpublished bool) (*model.StoryDetail, error) {
	story, err := a.store.Stories().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !includeUnpublished && story.Status != model.StatusPublished {
		return nil, model.ErrNotFound
	}

	detail := &model.StoryDetail{Story: *story}
	g, gctx := errgroup.WithContext(ctx)

	if story.StorytellerID != nil {
		g.Go(func() error {
			st, err := a.store.Storytellers().Get(gctx, *story.StorytellerID)
			if err != nil {
				return a.tolerateMissing(err, "storyteller", *story.StorytellerID)
			}
			detail.Storyteller = st
			return nil
		})
	}
	if story.OrganizationID != nil {
		g.Go(func() error {
			org, err := a.store.Relations().Organization(gctx, *story.OrganizationID)
			if err != nil {
				return a.tolerateMissing(err, "organization", *story.OrganizationID)
			}
			detail.Organization = org
			return nil
		})
	}
	if story.ServiceID != nil {
		g.Go(func() error {
			svc, err := a.store.Relations().Service(gctx, *story.ServiceID)
			if err != nil {
				return a.tolerateMissing(err, "service", *story.ServiceID)
			}
			detail.Service = svc
			return nil
		})
	}
	g.Go(func() error {
		media, err := a.store.Media().ListByStory(gctx, id)
		if err != nil {
			return fmt.Errorf("list media: %w", err)
		}
		detail.Media = media
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return detail, nil
}

// tolerateMissing downgrades a dangling relation reference to a log line so a
// stale foreign key cannot take down the whole story page.
func (a *Aggregator) tolerateMissing(err error, kind, id string) error {
	if errors.Is(err, model.ErrNotFound) {
		a.logger.Warn().Str("kind", kind).Str("id", id).Msg("story references missing relation")
		return nil
	}
	return fmt.Errorf("fetch %s: %w", kind, err)
}

// ListStories returns stories matching the filters with storyteller display
// attributes stitched on.
func (a *Aggregator) ListStories(ctx context.Context, f model.StoryFilters) ([]*model.StoryWithRelations, error) {
	stories, err := a.store.Stories().List(ctx, f)
	if err != nil {
		return nil, err
	}
	return a.stitchStorytellers(ctx, stories)
}

// FeaturedStories returns published, featured stories, newest first.
func (a *Aggregator) FeaturedStories(ctx context.Context, limit int) ([]*model.StoryWithRelations, error) {
	if limit <= 0 {
		limit = defaultFeaturedLimit
	}
	stories, err := a.store.Stories().ListFeatured(ctx, limit)
	if err != nil {
		return nil, err
	}
	return a.stitchStorytellers(ctx, stories)
}

func (a *Aggregator) stitchStorytellers(ctx context.Context, stories []*model.Story) ([]*model.StoryWithRelations, error) {
	ids := make(map[string]struct{})
	for _, s := range stories {
		if s.StorytellerID != nil {
			ids[*s.StorytellerID] = struct{}{}
		}
	}

	var mu sync.Mutex
	tellers := make(map[string]*model.Storyteller, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for id := range ids {
		id := id
		g.Go(func() error {
			st, err := a.store.Storytellers().Get(gctx, id)
			if err != nil {
				return a.tolerateMissing(err, "storyteller", id)
			}
			mu.Lock()
			tellers[id] = st
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*model.StoryWithRelations, 0, len(stories))
	for _, s := range stories {
		row := &model.StoryWithRelations{Story: *s}
		if s.StorytellerID != nil {
			if st, ok := tellers[*s.StorytellerID]; ok {
				name := st.FullName
				if st.PreferredName != nil && *st.PreferredName != "" {
					name = *st.PreferredName
				}
				row.StorytellerName = &name
				row.StorytellerType = &st.StorytellerType
				row.IsElder = st.IsElder
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// CreateStory stores a new story and bumps the storyteller's contribution
// counter.
func (a *Aggregator) CreateStory(ctx context.Context, s *model.Story) (*model.Story, error) {
	if s.Title == "" {
		return nil, fmt.Errorf("%w: title is required", model.ErrValidation)
	}
	created, err := a.store.Stories().Create(ctx, s)
	if err != nil {
		return nil, err
	}
	if created.StorytellerID != nil {
		if err := a.store.Storytellers().AdjustStoryCount(ctx, *created.StorytellerID, 1); err != nil {
			a.logger.Error().Err(err).Str("storyteller_id", *created.StorytellerID).
				Msg("failed to bump contribution counter")
		}
	}
	return created, nil
}

// UpdateStory applies a partial update.
func (a *Aggregator) UpdateStory(ctx context.Context, id string, fields map[string]interface{}) (*model.Story, error) {
	return a.store.Stories().Update(ctx, id, fields)
}

// DeleteStory removes a story and its media, then decrements the
// storyteller's contribution counter.
func (a *Aggregator) DeleteStory(ctx context.Context, id string) error {
	story, err := a.store.Stories().GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := a.store.Stories().Delete(ctx, id); err != nil {
		return err
	}
	if story.StorytellerID != nil {
		if err := a.store.Storytellers().AdjustStoryCount(ctx, *story.StorytellerID, -1); err != nil {
			a.logger.Error().Err(err).Str("storyteller_id", *story.StorytellerID).
				Msg("failed to decrement contribution counter")
		}
	}
	return nil
}

// SetFeatured flags or unflags a story for the featured rail.
func (a *Aggregator) SetFeatured(ctx context.Context, id string, featured bool) error {
	return a.store.Stories().SetFeatured(ctx, id, featured)
}

// RecordView bumps the view counter. Detail reads call this; failures are
// logged rather than surfaced since losing one count is preferable to
// failing the page.
func (a *Aggregator) RecordView(ctx context.Context, id string) {
	if err := a.store.Stories().IncrementViews(ctx, id); err != nil {
		a.logger.Warn().Err(err).Str("story_id", id).Msg("failed to record view")
	}
}

// Storyteller returns a single storyteller profile.
func (a *Aggregator) Storyteller(ctx context.Context, id string) (*model.Storyteller, error) {
	return a.store.Storytellers().Get(ctx, id)
}

// Storytellers lists all storyteller profiles.
func (a *Aggregator) Storytellers(ctx context.Context) ([]*model.Storyteller, error) {
	return a.store.Storytellers().List(ctx)
}
