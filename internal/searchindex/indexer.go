package searchindex

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/picc-digital/storyline/internal/model"
)

const excerptMaxRunes = 300

// DocIndexer keeps the search index in step with story writes. All operations
// are best-effort: a failed upsert or delete is logged and the write that
// triggered it still succeeds. The nightly rebuild pipeline repairs any drift.
type DocIndexer struct {
	emb Embeddings
	idx Index
	log zerolog.Logger
}

func NewDocIndexer(emb Embeddings, idx Index, logger zerolog.Logger) *DocIndexer {
	return &DocIndexer{emb: emb, idx: idx, log: logger.With().Str("component", "doc-indexer").Logger()}
}

// IndexStory embeds and upserts a published story. Unpublished stories are
// removed instead, so a story retracted to draft stops matching searches.
func (d *DocIndexer) IndexStory(ctx context.Context, s *model.Story) {
	if d == nil || s == nil {
		return
	}
	if s.Status != model.StatusPublished {
		d.RemoveStory(ctx, s.ID)
		return
	}

	summary := ""
	if s.Summary != nil {
		summary = *s.Summary
	}
	text := s.Title
	if summary != "" {
		text += "\n" + summary
	}
	vec, err := d.emb.Embed(ctx, text)
	if err != nil {
		d.log.Warn().Err(err).Str("story_id", s.ID).Msg("embedding failed, story not indexed")
		return
	}

	payload := map[string]interface{}{
		"docId":    s.ID,
		"docType":  "story",
		"title":    s.Title,
		"excerpt":  excerpt(summary, s.Content),
		"category": s.Category,
	}
	if s.PublishedAt != nil {
		payload["publishedAt"] = s.PublishedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	if err := d.idx.UpsertDocument(ctx, s.ID, vec, payload); err != nil {
		d.log.Warn().Err(err).Str("story_id", s.ID).Msg("index upsert failed")
	}
}

// RemoveStory drops a story from the index.
func (d *DocIndexer) RemoveStory(ctx context.Context, id string) {
	if d == nil || id == "" {
		return
	}
	if err := d.idx.DeleteDocument(ctx, id); err != nil {
		d.log.Warn().Err(err).Str("story_id", id).Msg("index delete failed")
	}
}

// excerpt prefers the summary and falls back to a truncated content prefix.
func excerpt(summary, content string) string {
	if summary != "" {
		return summary
	}
	r := []rune(strings.TrimSpace(content))
	if len(r) <= excerptMaxRunes {
		return string(r)
	}
	return string(r[:excerptMaxRunes])
}
