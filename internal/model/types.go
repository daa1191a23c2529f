package model

import "time"

// Story visibility states. Published is the single canonical public
// predicate; IsPublic is kept in sync on write and never consulted on read.
const (
	StatusDraft     = "draft"
	StatusInReview  = "in_review"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Story is a community story record.
type Story struct {
	ID                    string     `json:"id"`
	Title                 string     `json:"title"`
	Summary               *string    `json:"summary,omitempty"`
	Content               string     `json:"content"`
	Category              string     `json:"category"`
	StoryType             string     `json:"storyType"`
	Location              string     `json:"location"`
	Status                string     `json:"status"`
	IsPublic              bool       `json:"isPublic"`
	IsFeatured            bool       `json:"isFeatured"`
	IsVerified            bool       `json:"isVerified"`
	RequiresElderApproval bool       `json:"requiresElderApproval"`
	ElderApproved         bool       `json:"elderApproved"`
	CulturalSensitivity   string     `json:"culturalSensitivity"`
	TraditionalKnowledge  bool       `json:"traditionalKnowledge"`
	Views                 int        `json:"views"`
	Shares                int        `json:"shares"`
	Likes                 int        `json:"likes"`
	StorytellerID         *string    `json:"storytellerId,omitempty"`
	OrganizationID        *string    `json:"organizationId,omitempty"`
	ServiceID             *string    `json:"serviceId,omitempty"`
	Tags                  []string   `json:"tags,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	PublishedAt           *time.Time `json:"publishedAt,omitempty"`
}

// Storyteller is the public profile of a story author.
type Storyteller struct {
	ID                 string    `json:"id"`
	FullName           string    `json:"fullName"`
	PreferredName      *string   `json:"preferredName,omitempty"`
	StorytellerType    string    `json:"storytellerType"`
	IsElder            bool      `json:"isElder"`
	IsCulturalAdvisor  bool      `json:"isCulturalAdvisor"`
	ProfileImageURL    *string   `json:"profileImageUrl,omitempty"`
	Language           *string   `json:"language,omitempty"`
	Location           *string   `json:"location,omitempty"`
	StoriesContributed int       `json:"storiesContributed"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Organization groups stories for display attribution.
type Organization struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Logo *string `json:"logo,omitempty"`
}

// Service is a program a story may be attributed to.
type Service struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// MediaAttachment is a file owned by exactly one story, ordered for display.
type MediaAttachment struct {
	ID           string    `json:"id"`
	StoryID      string    `json:"storyId"`
	FilePath     string    `json:"filePath"`
	Bucket       string    `json:"bucket"`
	MediaType    string    `json:"mediaType"`
	Caption      *string   `json:"caption,omitempty"`
	DisplayOrder int       `json:"displayOrder"`
	CreatedAt    time.Time `json:"createdAt"`
}

// StoryWithRelations is the denormalized list-view shape.
type StoryWithRelations struct {
	Story
	StorytellerName *string `json:"storytellerName,omitempty"`
	StorytellerType *string `json:"storytellerType,omitempty"`
	IsElder         bool    `json:"isElder"`
}

// StoryDetail is the full view-model for a single story page.
type StoryDetail struct {
	Story
	Storyteller  *Storyteller      `json:"storyteller,omitempty"`
	Organization *Organization     `json:"organization,omitempty"`
	Service      *Service          `json:"service,omitempty"`
	Media        []MediaAttachment `json:"media"`
}

// StoryFilters captures list-endpoint filters and pagination.
type StoryFilters struct {
	Status        string
	Category      string
	StorytellerID string
	StartDate     *time.Time
	EndDate       *time.Time
	// IncludeUnpublished lifts the public-visibility predicate; only
	// administrative callers may set it.
	IncludeUnpublished bool
	Limit              int
	Offset             int
}

// ContentStats holds the homepage aggregate counters. Success is false when
// any counter fell back to its default.
type ContentStats struct {
	Images           int    `json:"images"`
	KnowledgeEntries int    `json:"knowledgeEntries"`
	Stories          int    `json:"stories"`
	AnnualReports    int    `json:"annualReports"`
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
}

// KnowledgeEntry is a wiki/knowledge-base record.
type KnowledgeEntry struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	EntryType string    `json:"entryType"`
	CreatedAt time.Time `json:"createdAt"`
}

// AnnualReport is a stored report row.
type AnnualReport struct {
	ID            string     `json:"id"`
	ReportYear    int        `json:"reportYear"`
	Title         string     `json:"title"`
	Status        string     `json:"status"`
	PublishedDate *time.Time `json:"publishedDate,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// MonthCount is a per-month story tally.
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// TopStoryteller names a storyteller and their story count for a period.
type TopStoryteller struct {
	Name       string `json:"name"`
	StoryCount int    `json:"storyCount"`
}

// TopStory is a scored story reference used in report payloads.
type TopStory struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	StorytellerName string `json:"storytellerName"`
	Views           int    `json:"views"`
	Category        string `json:"category"`
}

// ReportSummary aggregates headline counts for a report year.
type ReportSummary struct {
	TotalStories      int `json:"totalStories"`
	TotalStorytellers int `json:"totalStorytellers"`
	TotalElders       int `json:"totalElders"`
	TotalViews        int `json:"totalViews"`
	TotalShares       int `json:"totalShares"`
}

// CulturalMetrics counts culturally significant stories for a report year.
type CulturalMetrics struct {
	TraditionalKnowledgeStories int `json:"traditionalKnowledgeStories"`
	ElderWisdomStories          int `json:"elderWisdomStories"`
}

// AnnualReportData is the computed report payload for a year.
type AnnualReportData struct {
	Year              int              `json:"year"`
	PeriodStart       string           `json:"periodStart"`
	PeriodEnd         string           `json:"periodEnd"`
	Summary           ReportSummary    `json:"summary"`
	StoriesByCategory map[string]int   `json:"storiesByCategory"`
	StoriesByMonth    []MonthCount     `json:"storiesByMonth"`
	Cultural          CulturalMetrics  `json:"cultural"`
	TopStorytellers   []TopStoryteller `json:"topStorytellers"`
	TopStories        []TopStory       `json:"topStories"`
	GrowthRate        float64          `json:"growthRate"`
	// Publication is the stored annual_reports row for the year, when one
	// has been published.
	Publication *AnnualReport `json:"publication,omitempty"`
}

// ScrapeSource is a configured ingestion source.
type ScrapeSource struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	SourceType      string     `json:"sourceType"`
	ScrapeFrequency string     `json:"scrapeFrequency"`
	IsActive        bool       `json:"isActive"`
	LastScrapedAt   *time.Time `json:"lastScrapedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ScrapeJob tracks one run against a source.
type ScrapeJob struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"sourceId"`
	Status      string     `json:"status"`
	PagesFound  int        `json:"pagesFound"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID string   `json:"userId"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles,omitempty"`
}

// SearchHit is one semantic-search result.
type SearchHit struct {
	DocID   string  `json:"docId"`
	DocType string  `json:"docType"`
	Title   string  `json:"title"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}
