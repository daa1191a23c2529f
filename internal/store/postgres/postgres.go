package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/picc-digital/storyline/internal/model"
	"github.com/picc-digital/storyline/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Stories() store.Stories           { return &stories{db: s.db} }
func (s *pgStore) Storytellers() store.Storytellers { return &storytellers{db: s.db} }
func (s *pgStore) Media() store.Media               { return &media{db: s.db} }
func (s *pgStore) Knowledge() store.Knowledge       { return &knowledge{db: s.db} }
func (s *pgStore) Reports() store.Reports           { return &reports{db: s.db} }
func (s *pgStore) Scrape() store.Scrape             { return &scrape{db: s.db} }
func (s *pgStore) Relations() store.Relations       { return &relations{db: s.db} }

// HealthPing implements health.HealthPinger for the Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

// --- Stories ---

type stories struct{ db *sql.DB }

const storyColumns = `id, title, summary, content, category, story_type, location, status,
       is_public, is_featured, is_verified, requires_elder_approval, elder_approved,
       cultural_sensitivity, traditional_knowledge, views, shares, likes,
       storyteller_id, organization_id, service_id, tags, created_at, published_at`

func scanStory(scanner interface{ Scan(dest ...any) error }) (*model.Story, error) {
	var st model.Story
	var tags pq.StringArray
	if err := scanner.Scan(
		&st.ID, &st.Title, &st.Summary, &st.Content, &st.Category, &st.StoryType, &st.Location, &st.Status,
		&st.IsPublic, &st.IsFeatured, &st.IsVerified, &st.RequiresElderApproval, &st.ElderApproved,
		&st.CulturalSensitivity, &st.TraditionalKnowledge, &st.Views, &st.Shares, &st.Likes,
		&st.StorytellerID, &st.OrganizationID, &st.ServiceID, &tags, &st.CreatedAt, &st.PublishedAt,
	); err != nil {
		return nil, err
	}
	st.Tags = []string(tags)
	return &st, nil
}

func (s *stories) Create(ctx context.Context, m *model.Story) (*model.Story, error) {
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := m.Status
	if status == "" {
		status = model.StatusDraft
	}
	// is_public mirrors the canonical published predicate.
	isPublic := status == model.StatusPublished
	var created time.Time
	var published *time.Time
	if isPublic {
		now := time.Now().UTC()
		published = &now
	}
	row := s.db.QueryRowContext(ctx, `
        INSERT INTO stories (id, title, summary, content, category, story_type, location, status,
                             is_public, requires_elder_approval, cultural_sensitivity,
                             storyteller_id, organization_id, service_id, tags, published_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        RETURNING created_at
    `, id, m.Title, m.Summary, m.Content, m.Category, m.StoryType, m.Location, status,
		isPublic, m.RequiresElderApproval, m.CulturalSensitivity,
		m.StorytellerID, m.OrganizationID, m.ServiceID, pq.StringArray(m.Tags), published)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *m
	out.ID = id
	out.Status = status
	out.IsPublic = isPublic
	out.CreatedAt = created
	out.PublishedAt = published
	return &out, nil
}

func (s *stories) GetByID(ctx context.Context, id string) (*model.Story, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+storyColumns+` FROM stories WHERE id=$1`, id)
	out, err := scanStory(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return out, nil
}

func (s *stories) List(ctx context.Context, f model.StoryFilters) ([]*model.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories`
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !f.IncludeUnpublished {
		conds = append(conds, "status = "+arg(model.StatusPublished))
	} else if f.Status != "" {
		conds = append(conds, "status = "+arg(f.Status))
	}
	if f.Category != "" {
		conds = append(conds, "category = "+arg(f.Category))
	}
	if f.StorytellerID != "" {
		conds = append(conds, "storyteller_id = "+arg(f.StorytellerID))
	}
	if f.StartDate != nil {
		conds = append(conds, "created_at >= "+arg(*f.StartDate))
	}
	if f.EndDate != nil {
		conds = append(conds, "created_at <= "+arg(*f.EndDate))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	// Stable ordering: ties on created_at broken by primary key so that
	// limit/offset pages never duplicate or skip rows.
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *stories) ListFeatured(ctx context.Context, limit int) ([]*model.Story, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+storyColumns+` FROM stories
        WHERE is_featured = TRUE AND status = $1
        ORDER BY created_at DESC, id DESC LIMIT $2
    `, model.StatusPublished, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// updatableFields is the allow-list for Update; anything else is rejected so
// loosely typed request bodies cannot write arbitrary columns.
var updatableFields = map[string]string{
	"title":                "title",
	"summary":              "summary",
	"content":              "content",
	"category":             "category",
	"story_type":           "story_type",
	"location":             "location",
	"status":               "status",
	"cultural_sensitivity": "cultural_sensitivity",
	"elder_approved":       "elder_approved",
	"service_id":           "service_id",
	"shares":               "shares",
	"likes":                "likes",
}

func (s *stories) Update(ctx context.Context, id string, fields map[string]interface{}) (*model.Story, error) {
	if len(fields) == 0 {
		return s.GetByID(ctx, id)
	}
	var sets []string
	var args []interface{}
	for k, v := range fields {
		col, ok := updatableFields[k]
		if !ok {
			return nil, fmt.Errorf("%w: field %q is not updatable", model.ErrValidation, k)
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	// Keep is_public and published_at in sync when status changes.
	if st, ok := fields["status"].(string); ok {
		if st == model.StatusPublished {
			sets = append(sets, "is_public = TRUE", "published_at = COALESCE(published_at, now())")
		} else {
			sets = append(sets, "is_public = FALSE")
		}
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE stories SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *stories) SetFeatured(ctx context.Context, id string, featured bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE stories SET is_featured=$1 WHERE id=$2`, featured, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *stories) IncrementViews(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE stories SET views = views + 1 WHERE id=$1`, id)
	return err
}

func (s *stories) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM media_files WHERE story_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM stories WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return tx.Commit()
}

func (s *stories) CountPublished(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stories WHERE status=$1`, model.StatusPublished).Scan(&n)
	return n, err
}

func (s *stories) ListByYear(ctx context.Context, year int) ([]*model.Story, error) {
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+storyColumns+` FROM stories
        WHERE created_at >= $1 AND created_at < $2
        ORDER BY created_at DESC, id DESC
    `, start, end)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *stories) CountByYear(ctx context.Context, year int) (int, error) {
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stories WHERE created_at >= $1 AND created_at < $2`, start, end).Scan(&n)
	return n, err
}

// --- Storytellers ---

type storytellers struct{ db *sql.DB }

func (t *storytellers) Get(ctx context.Context, id string) (*model.Storyteller, error) {
	var out model.Storyteller
	row := t.db.QueryRowContext(ctx, `
        SELECT id, full_name, preferred_name, storyteller_type, is_elder, is_cultural_advisor,
               profile_image_url, language, location, stories_contributed, created_at
        FROM profiles WHERE id=$1
    `, id)
	if err := row.Scan(&out.ID, &out.FullName, &out.PreferredName, &out.StorytellerType,
		&out.IsElder, &out.IsCulturalAdvisor, &out.ProfileImageURL, &out.Language,
		&out.Location, &out.StoriesContributed, &out.CreatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

func (t *storytellers) List(ctx context.Context) ([]*model.Storyteller, error) {
	rows, err := t.db.QueryContext(ctx, `
        SELECT id, full_name, preferred_name, storyteller_type, is_elder, is_cultural_advisor,
               profile_image_url, language, location, stories_contributed, created_at
        FROM profiles ORDER BY full_name, id
    `)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Storyteller
	for rows.Next() {
		var st model.Storyteller
		if err := rows.Scan(&st.ID, &st.FullName, &st.PreferredName, &st.StorytellerType,
			&st.IsElder, &st.IsCulturalAdvisor, &st.ProfileImageURL, &st.Language,
			&st.Location, &st.StoriesContributed, &st.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}

func (t *storytellers) AdjustStoryCount(ctx context.Context, id string, delta int) error {
	_, err := t.db.ExecContext(ctx, `
        UPDATE profiles SET stories_contributed = GREATEST(stories_contributed + $1, 0) WHERE id=$2
    `, delta, id)
	return err
}

// --- Media ---

type media struct{ db *sql.DB }

func (m *media) ListByStory(ctx context.Context, storyID string) ([]model.MediaAttachment, error) {
	rows, err := m.db.QueryContext(ctx, `
        SELECT id, story_id, file_path, bucket, media_type, caption, display_order, created_at
        FROM media_files WHERE story_id=$1 AND deleted_at IS NULL
        ORDER BY display_order, id
    `, storyID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.MediaAttachment
	for rows.Next() {
		var ma model.MediaAttachment
		if err := rows.Scan(&ma.ID, &ma.StoryID, &ma.FilePath, &ma.Bucket, &ma.MediaType,
			&ma.Caption, &ma.DisplayOrder, &ma.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ma)
	}
	return out, rows.Err()
}

func (m *media) CountWithTag(ctx context.Context, tag string) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM media_files WHERE tags @> ARRAY[$1]::text[] AND deleted_at IS NULL
    `, tag).Scan(&n)
	return n, err
}

// --- Knowledge ---

type knowledge struct{ db *sql.DB }

func (k *knowledge) Count(ctx context.Context) (int, error) {
	var n int
	err := k.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_entries`).Scan(&n)
	return n, err
}

func (k *knowledge) CountReportDocuments(ctx context.Context) (int, error) {
	var n int
	err := k.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM knowledge_entries
        WHERE entry_type='document' AND slug ILIKE 'picc-annual-report-%-full-pdf'
    `).Scan(&n)
	return n, err
}

// --- Reports ---

type reports struct{ db *sql.DB }

func (r *reports) GetByYear(ctx context.Context, year int) (*model.AnnualReport, error) {
	var out model.AnnualReport
	row := r.db.QueryRowContext(ctx, `
        SELECT id, report_year, title, status, published_date, created_at
        FROM annual_reports WHERE report_year=$1
    `, year)
	if err := row.Scan(&out.ID, &out.ReportYear, &out.Title, &out.Status,
		&out.PublishedDate, &out.CreatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

func (r *reports) List(ctx context.Context) ([]*model.AnnualReport, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, report_year, title, status, published_date, created_at
        FROM annual_reports ORDER BY report_year DESC
    `)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.AnnualReport
	for rows.Next() {
		var ar model.AnnualReport
		if err := rows.Scan(&ar.ID, &ar.ReportYear, &ar.Title, &ar.Status,
			&ar.PublishedDate, &ar.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &ar)
	}
	return out, rows.Err()
}

func (r *reports) Upsert(ctx context.Context, ar *model.AnnualReport) (*model.AnnualReport, error) {
	id := ar.ID
	if id == "" {
		id = uuid.New().String()
	}
	var out model.AnnualReport
	row := r.db.QueryRowContext(ctx, `
        INSERT INTO annual_reports (id, report_year, title, status, published_date)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (report_year) DO UPDATE
            SET title = EXCLUDED.title,
                status = EXCLUDED.status,
                published_date = EXCLUDED.published_date
        RETURNING id, report_year, title, status, published_date, created_at
    `, id, ar.ReportYear, ar.Title, ar.Status, ar.PublishedDate)
	if err := row.Scan(&out.ID, &out.ReportYear, &out.Title, &out.Status,
		&out.PublishedDate, &out.CreatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Scrape ---

type scrape struct{ db *sql.DB }

func (s *scrape) CreateSource(ctx context.Context, src *model.ScrapeSource) (*model.ScrapeSource, error) {
	id := src.ID
	if id == "" {
		id = uuid.New().String()
	}
	var created time.Time
	row := s.db.QueryRowContext(ctx, `
        INSERT INTO scrape_sources (id, name, url, source_type, scrape_frequency, is_active)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at
    `, id, src.Name, src.URL, src.SourceType, src.ScrapeFrequency, src.IsActive)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *src
	out.ID = id
	out.CreatedAt = created
	return &out, nil
}

func (s *scrape) ListSources(ctx context.Context, activeOnly bool, sourceType string) ([]*model.ScrapeSource, error) {
	query := `SELECT id, name, url, source_type, scrape_frequency, is_active, last_scraped_at, created_at
              FROM scrape_sources`
	var conds []string
	var args []interface{}
	if activeOnly {
		conds = append(conds, "is_active = TRUE")
	}
	if sourceType != "" {
		args = append(args, sourceType)
		conds = append(conds, fmt.Sprintf("source_type = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name, id"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

// SourcesDue returns active sources whose last scrape is older than their
// configured frequency. The frequency window is resolved in Go so the rule is
// inspectable and testable independent of SQL interval arithmetic.
func (s *scrape) SourcesDue(ctx context.Context, now time.Time) ([]*model.ScrapeSource, error) {
	all, err := s.ListSources(ctx, true, "")
	if err != nil {
		return nil, err
	}
	var due []*model.ScrapeSource
	for _, src := range all {
		if src.LastScrapedAt == nil || now.Sub(*src.LastScrapedAt) >= frequencyWindow(src.ScrapeFrequency) {
			due = append(due, src)
		}
	}
	return due, nil
}

func frequencyWindow(freq string) time.Duration {
	switch freq {
	case "daily":
		return 24 * time.Hour
	case "weekly":
		return 7 * 24 * time.Hour
	default: // monthly
		return 30 * 24 * time.Hour
	}
}

func (s *scrape) TouchSource(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE scrape_sources SET last_scraped_at=$1 WHERE id=$2`, at, id)
	return err
}

func (s *scrape) CreateJob(ctx context.Context, j *model.ScrapeJob) (*model.ScrapeJob, error) {
	id := j.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := j.Status
	if status == "" {
		status = "pending"
	}
	var started time.Time
	row := s.db.QueryRowContext(ctx, `
        INSERT INTO scrape_jobs (id, source_id, status)
        VALUES ($1,$2,$3)
        RETURNING started_at
    `, id, j.SourceID, status)
	if err := row.Scan(&started); err != nil {
		return nil, err
	}
	out := *j
	out.ID = id
	out.Status = status
	out.StartedAt = started
	return &out, nil
}

func (s *scrape) GetJob(ctx context.Context, id string) (*model.ScrapeJob, error) {
	var out model.ScrapeJob
	row := s.db.QueryRowContext(ctx, `
        SELECT id, source_id, status, pages_found, error, started_at, completed_at
        FROM scrape_jobs WHERE id=$1
    `, id)
	if err := row.Scan(&out.ID, &out.SourceID, &out.Status, &out.PagesFound,
		&out.Error, &out.StartedAt, &out.CompletedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

func (s *scrape) ListJobs(ctx context.Context, sourceID string, limit int) ([]*model.ScrapeJob, error) {
	query := `SELECT id, source_id, status, pages_found, error, started_at, completed_at
              FROM scrape_jobs`
	var args []interface{}
	if sourceID != "" {
		args = append(args, sourceID)
		query += " WHERE source_id = $1"
	}
	query += " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.ScrapeJob
	for rows.Next() {
		var j model.ScrapeJob
		if err := rows.Scan(&j.ID, &j.SourceID, &j.Status, &j.PagesFound,
			&j.Error, &j.StartedAt, &j.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}

func (s *scrape) MarkJobStatus(ctx context.Context, id, status string, pagesFound int, jobErr *string) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE scrape_jobs SET status=$1, pages_found=$2, error=$3, completed_at=now() WHERE id=$4
    `, status, pagesFound, jobErr, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func scanSources(rows *sql.Rows) ([]*model.ScrapeSource, error) {
	var out []*model.ScrapeSource
	for rows.Next() {
		var src model.ScrapeSource
		if err := rows.Scan(&src.ID, &src.Name, &src.URL, &src.SourceType,
			&src.ScrapeFrequency, &src.IsActive, &src.LastScrapedAt, &src.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &src)
	}
	return out, rows.Err()
}

// --- Relations ---

type relations struct{ db *sql.DB }

func (r *relations) Organization(ctx context.Context, id string) (*model.Organization, error) {
	var out model.Organization
	row := r.db.QueryRowContext(ctx, `SELECT id, name, logo FROM organizations WHERE id=$1`, id)
	if err := row.Scan(&out.ID, &out.Name, &out.Logo); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

func (r *relations) Service(ctx context.Context, id string) (*model.Service, error) {
	var out model.Service
	row := r.db.QueryRowContext(ctx, `SELECT id, name, description FROM services WHERE id=$1`, id)
	if err := row.Scan(&out.ID, &out.Name, &out.Description); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}
