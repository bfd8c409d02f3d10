package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/david/scholarship-finder/internal/models"
)

// Pipeline crawls the scholarship listing, walks every pagination page,
// scrapes each detail page, and upserts the results keyed by canonical
// source URL.
type Pipeline struct {
	Config     CrawlerConfig
	Fetcher    Fetcher
	Store      Store
	Classifier FieldClassifier

	// MinTextForAI is the minimum page-text length before the classifier
	// is consulted; shorter pages rarely contain enough signal.
	MinTextForAI int

	// Now is swappable in tests. Defaults to time.Now.
	Now func() time.Time
}

func NewPipeline(cfg CrawlerConfig, fetcher Fetcher, store Store, classifier FieldClassifier) *Pipeline {
	if fetcher == nil {
		fetcher = NewCollyFetcher()
	}
	return &Pipeline{
		Config:       cfg,
		Fetcher:      fetcher,
		Store:        store,
		Classifier:   classifier,
		MinTextForAI: 500,
		Now:          time.Now,
	}
}

// Run executes a full crawl under the given tracker. The tracker must have
// been claimed with Begin before calling; Run releases it on exit and
// records a crawl session regardless of outcome.
func (p *Pipeline) Run(ctx context.Context, tracker *Tracker, clearFirst bool) error {
	defer tracker.Finish()

	if clearFirst {
		deleted, err := p.Store.DeleteAllScholarships(ctx)
		if err != nil {
			tracker.AddError(fmt.Sprintf("clear database: %v", err))
			p.recordSession(ctx, tracker, "failed")
			return fmt.Errorf("clear database: %w", err)
		}
		log.Printf("Cleared %d existing scholarships", deleted)
	}

	tracker.SetPhase("Fetching scholarships from website...")

	links, err := p.collectListingLinks(ctx, tracker)
	if err != nil {
		tracker.AddError(fmt.Sprintf("listing crawl: %v", err))
		p.recordSession(ctx, tracker, "failed")
		return fmt.Errorf("listing crawl: %w", err)
	}

	if tracker.Cancelled() || ctx.Err() != nil {
		p.recordSession(ctx, tracker, "cancelled")
		return ctx.Err()
	}

	log.Printf("Found %d scholarships", len(links))
	tracker.SetTotal(len(links))
	tracker.SetPhase(fmt.Sprintf("Found %d scholarships, scraping details...", len(links)))

	cancelled := p.processDetails(ctx, tracker, links)

	status := "success"
	snap := tracker.Snapshot()
	success := snap.SavedCount + snap.UpdatedCount
	switch {
	case cancelled:
		status = "cancelled"
	case snap.FailedCount > 0 && success > 0:
		status = "partial"
	case snap.FailedCount > 0 && success == 0:
		status = "failed"
	}

	p.recordSession(ctx, tracker, status)
	log.Printf("Crawl complete: %d saved, %d updated, %d failed", snap.SavedCount, snap.UpdatedCount, snap.FailedCount)
	return nil
}

// collectListingLinks does a breadth-first walk of the listing pages. Each
// page contributes its scholarship links plus any pagination pages it
// advertises; a seen-set keeps the walk finite. Politeness delay between
// page fetches.
func (p *Pipeline) collectListingLinks(ctx context.Context, tracker *Tracker) ([]ListingLink, error) {
	start := CanonicalURL(p.Config.StartURL, p.Config.BaseURL)
	queue := []string{start}
	seen := make(map[string]struct{})
	var all []ListingLink
	pagesCrawled := 0

	for len(queue) > 0 && pagesCrawled < p.Config.MaxPages {
		if tracker.Cancelled() || ctx.Err() != nil {
			break
		}

		pageURL := queue[0]
		queue = queue[1:]
		if pageURL == "" {
			continue
		}
		if _, ok := seen[pageURL]; ok {
			continue
		}
		seen[pageURL] = struct{}{}
		pagesCrawled++

		doc, err := p.fetchDocument(ctx, pageURL)
		if err != nil {
			tracker.AddError(fmt.Sprintf("listing page %s: %v", pageURL, err))
			continue
		}

		all = append(all, ExtractListingLinks(doc, p.Config.BaseURL)...)

		queuedAny := false
		for _, next := range ExpandPaginationURLs(doc, pageURL, p.Config.BaseURL, p.Config.MaxPages) {
			if _, ok := seen[next]; ok {
				continue
			}
			if containsURL(queue, next) {
				continue
			}
			queue = append(queue, next)
			queuedAny = true
		}
		if !queuedAny {
			if next := NextPageURL(doc, pageURL, p.Config.BaseURL); next != "" {
				if _, ok := seen[next]; !ok {
					queue = append(queue, next)
				}
			}
		}

		if err := sleepCtx(ctx, p.Config.ListingDelay()); err != nil {
			break
		}
	}

	// Deduplicate by canonical URL, preserving discovery order.
	seen = make(map[string]struct{}, len(all))
	var unique []ListingLink
	for _, link := range all {
		if _, ok := seen[link.URL]; ok {
			continue
		}
		seen[link.URL] = struct{}{}
		unique = append(unique, link)
	}
	return unique, nil
}

// processDetails fetches each detail page sequentially with a politeness
// delay. Returns true when the run was cancelled before finishing.
func (p *Pipeline) processDetails(ctx context.Context, tracker *Tracker, links []ListingLink) bool {
	for i, link := range links {
		if tracker.Cancelled() || ctx.Err() != nil {
			return true
		}

		tracker.SetCurrent(i+1, link.Title)

		sch, err := p.ScrapeDetail(ctx, link.URL, link.Title)
		if err != nil {
			tracker.AddFailed(fmt.Sprintf("Error scraping %s: %v", link.Title, err))
			log.Printf("Error scraping %q: %v", link.Title, err)
			continue
		}

		inserted, err := p.Store.UpsertBySourceURL(ctx, sch)
		if err != nil {
			tracker.AddFailed(fmt.Sprintf("Error saving %s: %v", link.Title, err))
			log.Printf("Error saving %q: %v", link.Title, err)
			continue
		}
		if inserted {
			tracker.AddSaved()
		} else {
			tracker.AddUpdated()
		}

		if err := sleepCtx(ctx, p.Config.DetailDelay()); err != nil {
			return true
		}
	}
	return false
}

// ScrapeDetail fetches one scholarship page and turns it into a persistable
// record: extraction, field classification, and status derivation.
func (p *Pipeline) ScrapeDetail(ctx context.Context, sourceURL, title string) (*models.Scholarship, error) {
	doc, err := p.fetchDocument(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	now := p.Now().UTC()
	detail := ParseDetail(doc, sourceURL, title, now)

	fields := ExtractEligibleFields(doc, detail.ContentText)
	fields = p.classifyFields(ctx, sourceURL, detail, fields)

	scrapedAt := now
	sch := &models.Scholarship{
		Title:             sanitizeUTF8(detail.Title),
		SourceURL:         CanonicalURL(sourceURL, p.Config.BaseURL),
		Description:       sanitizeUTF8(detail.Description),
		Deadline:          detail.Deadline,
		ExtractedDeadline: detail.DeadlineRaw,
		MinimumGrade:      detail.MinimumGrade,
		StudyLevel:        detail.StudyLevel,
		StudyLevels:       detail.StudyLevels,
		EligibleFields:    fields,
		ProviderName:      detail.ProviderName,
		ProviderWebsite:   detail.ProviderWebsite,
		ContactEmail:      detail.ContactEmail,
		ScrapedAt:         &scrapedAt,
	}
	if sch.SourceURL == "" {
		return nil, fmt.Errorf("missing source url for %q", title)
	}

	sch.Status = ComputeStatus(sch.Deadline, sch.StudyLevels, sch.StudyLevel, now)
	return sch, nil
}

// classifyFields consults the model for eligible fields. The open-to-all
// sentinel short-circuits, short pages are skipped, and a failed or empty
// classification never erases what the heuristics already found.
func (p *Pipeline) classifyFields(ctx context.Context, sourceURL string, detail *Detail, prior []string) []string {
	if p.Classifier == nil {
		return prior
	}
	if len(prior) == 1 && prior[0] == models.OpenToAllFields {
		return prior
	}

	text := detail.BodyText
	if len(detail.ContentText) > len(text) {
		text = detail.ContentText
	}
	if len(text) <= p.MinTextForAI {
		return prior
	}
	if !p.Classifier.IsAvailable(ctx) {
		return prior
	}

	fields, err := p.Classifier.ClassifyFields(ctx, text, sourceURL)
	if err != nil {
		log.Printf("Field classification failed for %s: %v", sourceURL, err)
		return prior
	}

	cleaned := SanitizeFieldList(fields)
	if len(cleaned) == 0 {
		return prior
	}
	return cleaned
}

func (p *Pipeline) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	fetched, err := p.Fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer fetched.Body.Close()

	doc, err := goquery.NewDocumentFromReader(fetched.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return doc, nil
}

func (p *Pipeline) recordSession(ctx context.Context, tracker *Tracker, status string) {
	snap := tracker.Snapshot()
	finished := p.Now()
	started := snap.StartTime
	if started.IsZero() {
		started = finished
	}

	session := &models.CrawlSession{
		StartedAt:      started,
		FinishedAt:     finished,
		DurationSecs:   int(finished.Sub(started).Seconds()),
		TotalProcessed: snap.SavedCount + snap.UpdatedCount + snap.FailedCount,
		SuccessCount:   snap.SavedCount + snap.UpdatedCount,
		FailedCount:    snap.FailedCount,
		Status:         status,
		Errors:         snap.Errors,
	}
	if err := p.Store.RecordCrawlSession(ctx, session); err != nil {
		log.Printf("Failed to record crawl session: %v", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func containsURL(queue []string, u string) bool {
	for _, q := range queue {
		if q == u {
			return true
		}
	}
	return false
}

// sanitizeUTF8 removes invalid UTF-8 byte sequences that cause PostgreSQL errors.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
