package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/david/scholarship-finder/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type ListParams struct {
	Query      string
	Status     string // "active", "inactive", or "all" (default "all")
	StudyLevel string
	Limit      int
	Offset     int
}

type ListResult struct {
	Scholarships []models.Scholarship `json:"scholarships"`
	Total        int                  `json:"total"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}

// selectCols is the comprehensive column list for all queries.
const selectCols = `id, title, source_url, description, deadline, extracted_deadline,
	minimum_grade, study_level, study_levels, eligible_fields,
	provider_name, provider_website, contact_email, status, scraped_at, created_at, updated_at`

func scanScholarship(scan func(dest ...interface{}) error) (models.Scholarship, error) {
	var s models.Scholarship
	var description, extractedDeadline, studyLevel *string
	var providerName, providerWebsite, contactEmail *string

	err := scan(
		&s.ID, &s.Title, &s.SourceURL, &description, &s.Deadline, &extractedDeadline,
		&s.MinimumGrade, &studyLevel, &s.StudyLevels, &s.EligibleFields,
		&providerName, &providerWebsite, &contactEmail, &s.Status, &s.ScrapedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return s, err
	}

	if description != nil {
		s.Description = *description
	}
	if extractedDeadline != nil {
		s.ExtractedDeadline = *extractedDeadline
	}
	if studyLevel != nil {
		s.StudyLevel = *studyLevel
	}
	if providerName != nil {
		s.ProviderName = *providerName
	}
	if providerWebsite != nil {
		s.ProviderWebsite = *providerWebsite
	}
	if contactEmail != nil {
		s.ContactEmail = *contactEmail
	}

	return s, nil
}

func (s *Store) ListScholarships(ctx context.Context, params ListParams) (*ListResult, error) {
	where := "WHERE 1=1"
	var args []interface{}
	argIdx := 1

	if params.Query != "" {
		where += fmt.Sprintf(" AND (title ILIKE '%%' || $%d || '%%' OR provider_name ILIKE '%%' || $%d || '%%')", argIdx, argIdx)
		args = append(args, params.Query)
		argIdx++
	}

	if params.Status != "" && params.Status != "all" {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, params.Status)
		argIdx++
	}

	if params.StudyLevel != "" {
		where += fmt.Sprintf(" AND (study_level = $%d OR $%d = ANY(study_levels))", argIdx, argIdx)
		args = append(args, strings.ToLower(params.StudyLevel))
		argIdx++
	}

	var total int
	countSQL := "SELECT COUNT(*) FROM scholarships " + where
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	selectSQL := fmt.Sprintf("SELECT %s FROM scholarships %s ORDER BY deadline ASC NULLS LAST, created_at DESC", selectCols, where)
	selectSQL += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.pool.Query(ctx, selectSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var items []models.Scholarship
	for rows.Next() {
		sch, err := scanScholarship(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		items = append(items, sch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	if items == nil {
		items = []models.Scholarship{}
	}

	return &ListResult{
		Scholarships: items,
		Total:        total,
		Limit:        params.Limit,
		Offset:       params.Offset,
	}, nil
}

func (s *Store) GetScholarship(ctx context.Context, id string) (*models.Scholarship, error) {
	sql := fmt.Sprintf("SELECT %s FROM scholarships WHERE id = $1", selectCols)
	row := s.pool.QueryRow(ctx, sql, id)

	sch, err := scanScholarship(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("not found: %w", err)
	}

	return &sch, nil
}

func (s *Store) FindBySourceURL(ctx context.Context, sourceURL string) (*models.Scholarship, error) {
	sql := fmt.Sprintf("SELECT %s FROM scholarships WHERE source_url = $1", selectCols)
	row := s.pool.QueryRow(ctx, sql, sourceURL)

	sch, err := scanScholarship(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("not found: %w", err)
	}

	return &sch, nil
}

// FindActive returns every scholarship currently marked active, the set the
// matching engine evaluates.
func (s *Store) FindActive(ctx context.Context) ([]models.Scholarship, error) {
	sql := fmt.Sprintf("SELECT %s FROM scholarships WHERE status = 'active' ORDER BY deadline ASC NULLS LAST", selectCols)
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var items []models.Scholarship
	for rows.Next() {
		sch, err := scanScholarship(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		items = append(items, sch)
	}
	return items, rows.Err()
}

// UpsertBySourceURL inserts or updates a scholarship keyed on its canonical
// source URL. The returned bool is true when a new row was created. A
// concurrent insert losing the race surfaces as an update, never an error.
func (s *Store) UpsertBySourceURL(ctx context.Context, sch *models.Scholarship) (bool, error) {
	sql := `
		INSERT INTO scholarships (
			title, source_url, description, deadline, extracted_deadline,
			minimum_grade, study_level, study_levels, eligible_fields,
			provider_name, provider_website, contact_email, status, scraped_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (source_url) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			deadline = EXCLUDED.deadline,
			extracted_deadline = EXCLUDED.extracted_deadline,
			minimum_grade = EXCLUDED.minimum_grade,
			study_level = EXCLUDED.study_level,
			study_levels = EXCLUDED.study_levels,
			eligible_fields = EXCLUDED.eligible_fields,
			provider_name = EXCLUDED.provider_name,
			provider_website = EXCLUDED.provider_website,
			contact_email = EXCLUDED.contact_email,
			status = EXCLUDED.status,
			scraped_at = EXCLUDED.scraped_at,
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS inserted
	`

	var inserted bool
	err := s.pool.QueryRow(ctx, sql,
		sch.Title, sch.SourceURL, nilIfEmpty(sch.Description), sch.Deadline, nilIfEmpty(sch.ExtractedDeadline),
		sch.MinimumGrade, nilIfEmpty(sch.StudyLevel), sch.StudyLevels, sch.EligibleFields,
		nilIfEmpty(sch.ProviderName), nilIfEmpty(sch.ProviderWebsite), nilIfEmpty(sch.ContactEmail), sch.Status, sch.ScrapedAt,
	).Scan(&sch.ID, &inserted)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Another worker inserted the same URL between our statement's
			// snapshot and its write. Harmless; our copy of the data is
			// equivalent.
			return false, nil
		}
		return false, fmt.Errorf("upsert failed: %w", err)
	}

	return inserted, nil
}

func (s *Store) UpdateScholarship(ctx context.Context, id string, sch *models.Scholarship) (*models.Scholarship, error) {
	sql := fmt.Sprintf(`
		UPDATE scholarships SET
			title = $2,
			description = $3,
			deadline = $4,
			extracted_deadline = $5,
			minimum_grade = $6,
			study_level = $7,
			study_levels = $8,
			eligible_fields = $9,
			provider_name = $10,
			provider_website = $11,
			contact_email = $12,
			status = $13,
			updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, selectCols)

	row := s.pool.QueryRow(ctx, sql, id,
		sch.Title, nilIfEmpty(sch.Description), sch.Deadline, nilIfEmpty(sch.ExtractedDeadline),
		sch.MinimumGrade, nilIfEmpty(sch.StudyLevel), sch.StudyLevels, sch.EligibleFields,
		nilIfEmpty(sch.ProviderName), nilIfEmpty(sch.ProviderWebsite), nilIfEmpty(sch.ContactEmail), sch.Status,
	)

	updated, err := scanScholarship(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("not found: %w", err)
		}
		return nil, fmt.Errorf("update failed: %w", err)
	}

	return &updated, nil
}

func (s *Store) DeleteScholarship(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM scholarships WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteAllScholarships(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM scholarships")
	if err != nil {
		return 0, fmt.Errorf("delete all failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RecalculateStatuses re-derives every row's status with the supplied rule
// and persists only the rows whose status actually changed. It returns the
// number of rows updated.
func (s *Store) RecalculateStatuses(ctx context.Context, derive func(deadline *time.Time, studyLevels []string, studyLevel string) string) (int, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, deadline, study_levels, study_level, status FROM scholarships")
	if err != nil {
		return 0, fmt.Errorf("query failed: %w", err)
	}

	type pending struct {
		id     string
		status string
	}
	var changes []pending

	for rows.Next() {
		var id, current string
		var deadline *time.Time
		var levels []string
		var level *string
		if err := rows.Scan(&id, &deadline, &levels, &level, &current); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan failed: %w", err)
		}
		single := ""
		if level != nil {
			single = *level
		}
		next := derive(deadline, levels, single)
		if next != current {
			changes = append(changes, pending{id: id, status: next})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rows iteration failed: %w", err)
	}

	for _, c := range changes {
		if _, err := s.pool.Exec(ctx, "UPDATE scholarships SET status = $2, updated_at = NOW() WHERE id = $1", c.id, c.status); err != nil {
			return 0, fmt.Errorf("status update failed for %s: %w", c.id, err)
		}
	}

	return len(changes), nil
}

func (s *Store) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM scholarships").Scan(&total)
	stats["total"] = total

	var active int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM scholarships WHERE status = 'active'").Scan(&active)
	stats["active"] = active

	var inactive int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM scholarships WHERE status = 'inactive'").Scan(&inactive)
	stats["inactive"] = inactive

	var withDeadline int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM scholarships WHERE deadline IS NOT NULL AND deadline >= NOW()").Scan(&withDeadline)
	stats["with_upcoming_deadline"] = withDeadline

	var openToAll int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM scholarships WHERE 'All Fields' = ANY(eligible_fields)").Scan(&openToAll)
	stats["open_to_all_fields"] = openToAll

	return stats, nil
}

func (s *Store) RecordCrawlSession(ctx context.Context, session *models.CrawlSession) error {
	sql := `
		INSERT INTO crawl_sessions (
			started_at, finished_at, duration_secs, total_processed,
			success_count, failed_count, status, errors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := s.pool.QueryRow(ctx, sql,
		session.StartedAt, session.FinishedAt, session.DurationSecs, session.TotalProcessed,
		session.SuccessCount, session.FailedCount, session.Status, session.Errors,
	).Scan(&session.ID)
	if err != nil {
		return fmt.Errorf("record crawl session failed: %w", err)
	}
	return nil
}

func (s *Store) LatestCrawlSession(ctx context.Context) (*models.CrawlSession, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, started_at, finished_at, duration_secs, total_processed,
			success_count, failed_count, status, errors
		FROM crawl_sessions
		ORDER BY started_at DESC
		LIMIT 1
	`)

	var cs models.CrawlSession
	err := row.Scan(&cs.ID, &cs.StartedAt, &cs.FinishedAt, &cs.DurationSecs, &cs.TotalProcessed,
		&cs.SuccessCount, &cs.FailedCount, &cs.Status, &cs.Errors)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest crawl session failed: %w", err)
	}
	return &cs, nil
}

func nilIfEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
