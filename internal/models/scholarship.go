package models

import (
	"time"

	"github.com/google/uuid"
)

// Scholarship statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// OpenToAllFields is the sentinel stored in EligibleFields when a page
// states the award is open to students from any discipline. It is distinct
// from a nil/empty slice, which means eligibility is unknown.
const OpenToAllFields = "All Fields"

type Scholarship struct {
	ID                uuid.UUID  `json:"id"`
	Title             string     `json:"title"`
	SourceURL         string     `json:"source_url"`
	Description       string     `json:"description"`
	Deadline          *time.Time `json:"deadline"`
	ExtractedDeadline string     `json:"extracted_deadline"` // raw DD-MM-YYYY text as found on the page
	MinimumGrade      float64    `json:"minimum_grade"`      // 0 means no minimum stated
	StudyLevel        string     `json:"study_level"`
	StudyLevels       []string   `json:"study_levels"`
	EligibleFields    []string   `json:"eligible_fields"` // nil = unknown; may hold the OpenToAllFields sentinel
	ProviderName      string     `json:"provider_name"`
	ProviderWebsite   string     `json:"provider_website"`
	ContactEmail      string     `json:"contact_email"`
	Status            string     `json:"status"`
	ScrapedAt         *time.Time `json:"scraped_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// StudentProfile is the input to the matching engine.
type StudentProfile struct {
	Grade   float64 `json:"grade"`
	Program string  `json:"program"`
}

// MatchResult explains how one scholarship scored against a profile.
type MatchResult struct {
	Scholarship    Scholarship `json:"scholarship"`
	Eligible       bool        `json:"eligible"`
	Score          int         `json:"score"`
	MatchLevel     string      `json:"match_level"` // full, partial, low
	GradeSatisfied bool        `json:"grade_satisfied"`
	ProgramMatched bool        `json:"program_matched"`
	OpenToAll      bool        `json:"open_to_all"`
	Reasons        []string    `json:"reasons"`
}

// CrawlSession records one completed (or cancelled) crawl run.
type CrawlSession struct {
	ID             uuid.UUID `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	DurationSecs   int       `json:"duration_secs"`
	TotalProcessed int       `json:"total_processed"`
	SuccessCount   int       `json:"success_count"`
	FailedCount    int       `json:"failed_count"`
	Status         string    `json:"status"` // success, partial, failed, cancelled
	Errors         []string  `json:"errors"`
}
