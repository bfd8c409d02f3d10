package ingest

import (
	"context"
	"io"
	"time"

	"github.com/david/scholarship-finder/internal/models"
)

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// Store is the persistence surface the crawl pipeline needs. *db.Store
// satisfies it; tests substitute an in-memory implementation.
type Store interface {
	UpsertBySourceURL(ctx context.Context, sch *models.Scholarship) (inserted bool, err error)
	DeleteAllScholarships(ctx context.Context) (int64, error)
	RecordCrawlSession(ctx context.Context, session *models.CrawlSession) error
}

// FieldClassifier names the study fields a free-text eligibility blob is
// about. Implemented by the local-model client in internal/ai; a nil
// classifier disables the step.
type FieldClassifier interface {
	ClassifyFields(ctx context.Context, text, pageURL string) ([]string, error)
	IsAvailable(ctx context.Context) bool
}

// Progress is a point-in-time snapshot of a running crawl, safe to copy.
type Progress struct {
	IsRunning          bool      `json:"isRunning"`
	Current            int       `json:"current"`
	Total              int       `json:"total"`
	CurrentScholarship string    `json:"currentScholarship"`
	SavedCount         int       `json:"savedCount"`
	UpdatedCount       int       `json:"updatedCount"`
	FailedCount        int       `json:"failedCount"`
	Errors             []string  `json:"errors"`
	StartTime          time.Time `json:"startTime"`
}
