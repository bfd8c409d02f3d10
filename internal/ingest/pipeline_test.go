package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/david/scholarship-finder/internal/models"
)

const listingHTML = `<html><body>
<a href="/scholarship/alpha-award"><h3>Alpha Award</h3></a>
<h3><a href="/scholarship/beta-award">Beta Award</a></h3>
</body></html>`

func detailHTML(title, deadline string) string {
	return fmt.Sprintf(`<html><body>
<h5 class="MuiTypography-h5">Degree</h5>
<main>
<h1>%s</h1>
<div class="MuiStack-root"><p>Deadline</p><h5>%s</h5></div>
<p>An award for outstanding students in Malaysia.</p>
<p>Applicants must maintain a minimum CGPA of 3.00.</p>
<p>Submit your application before the closing date.</p>
</main>
</body></html>`, title, deadline)
}

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	fail    map[string]bool
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*FetchedDocument, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()

	if f.fail[url] {
		return nil, errors.New("connection refused")
	}
	html, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return &FetchedDocument{
		URL:        url,
		StatusCode: 200,
		Body:       io.NopCloser(strings.NewReader(html)),
	}, nil
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}

type memStore struct {
	mu       sync.Mutex
	byURL    map[string]*models.Scholarship
	sessions []*models.CrawlSession
}

func newMemStore() *memStore {
	return &memStore{byURL: make(map[string]*models.Scholarship)}
}

func (s *memStore) UpsertBySourceURL(_ context.Context, sch *models.Scholarship) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.byURL[sch.SourceURL]
	cp := *sch
	s.byURL[sch.SourceURL] = &cp
	return !exists, nil
}

func (s *memStore) DeleteAllScholarships(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.byURL))
	s.byURL = make(map[string]*models.Scholarship)
	return n, nil
}

func (s *memStore) RecordCrawlSession(_ context.Context, session *models.CrawlSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, session)
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byURL)
}

func (s *memStore) lastSession(t *testing.T) *models.CrawlSession {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) == 0 {
		t.Fatal("no crawl session recorded")
	}
	return s.sessions[len(s.sessions)-1]
}

func testCrawlerConfig() CrawlerConfig {
	return CrawlerConfig{
		BaseURL:        "https://afterschool.my",
		StartURL:       "https://afterschool.my/scholarship",
		MaxPages:       5,
		ListingDelayMS: 1,
		DetailDelayMS:  1,
	}
}

func sitePages() map[string]string {
	return map[string]string{
		"https://afterschool.my/scholarship":             listingHTML,
		"https://afterschool.my/scholarship?page=1":      listingHTML,
		"https://afterschool.my/scholarship/alpha-award": detailHTML("Alpha Award", "31-12-2030"),
		"https://afterschool.my/scholarship/beta-award":  detailHTML("Beta Award", "30-06-2031"),
	}
}

func TestPipelineRunSavesScholarships(t *testing.T) {
	fetcher := &fakeFetcher{pages: sitePages()}
	store := newMemStore()
	p := NewPipeline(testCrawlerConfig(), fetcher, store, nil)

	tracker := NewTracker()
	if !tracker.Begin() {
		t.Fatal("Begin failed")
	}
	if err := p.Run(context.Background(), tracker, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.count() != 2 {
		t.Fatalf("stored %d scholarships, want 2", store.count())
	}

	alpha, ok := store.byURL["https://afterschool.my/scholarship/alpha-award"]
	if !ok {
		t.Fatal("alpha award not stored under its canonical URL")
	}
	if alpha.Title != "Alpha Award" {
		t.Errorf("Title = %q", alpha.Title)
	}
	if alpha.ExtractedDeadline != "31-12-2030" {
		t.Errorf("ExtractedDeadline = %q", alpha.ExtractedDeadline)
	}
	if alpha.Deadline == nil {
		t.Error("Deadline not parsed")
	}
	if alpha.MinimumGrade != 3.0 {
		t.Errorf("MinimumGrade = %v", alpha.MinimumGrade)
	}
	if alpha.Status != models.StatusActive {
		t.Errorf("Status = %q, want active", alpha.Status)
	}

	snap := tracker.Snapshot()
	if snap.SavedCount != 2 || snap.UpdatedCount != 0 || snap.FailedCount != 0 {
		t.Errorf("counters = %+v", snap)
	}
	if tracker.IsRunning() {
		t.Error("tracker still running after Run")
	}
	if got := store.lastSession(t); got.Status != "success" || got.SuccessCount != 2 {
		t.Errorf("session = %+v", got)
	}
}

func TestPipelineRunIsIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{pages: sitePages()}
	store := newMemStore()
	p := NewPipeline(testCrawlerConfig(), fetcher, store, nil)

	for run := 0; run < 2; run++ {
		tracker := NewTracker()
		tracker.Begin()
		if err := p.Run(context.Background(), tracker, false); err != nil {
			t.Fatalf("run %d: %v", run, err)
		}

		snap := tracker.Snapshot()
		if run == 0 && (snap.SavedCount != 2 || snap.UpdatedCount != 0) {
			t.Errorf("first run counters = %+v", snap)
		}
		if run == 1 && (snap.SavedCount != 0 || snap.UpdatedCount != 2) {
			t.Errorf("second run counters = %+v", snap)
		}
	}

	if store.count() != 2 {
		t.Errorf("stored %d scholarships after rerun, want 2", store.count())
	}
}

func TestPipelineCancelledBeforeListing(t *testing.T) {
	fetcher := &fakeFetcher{pages: sitePages()}
	store := newMemStore()
	p := NewPipeline(testCrawlerConfig(), fetcher, store, nil)

	tracker := NewTracker()
	tracker.Begin()
	tracker.RequestCancel()

	if err := p.Run(context.Background(), tracker, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if fetcher.fetchCount() != 0 {
		t.Errorf("fetched %d pages after cancellation, want 0", fetcher.fetchCount())
	}
	if store.count() != 0 {
		t.Errorf("stored %d scholarships, want 0", store.count())
	}
	if got := store.lastSession(t); got.Status != "cancelled" {
		t.Errorf("session status = %q, want cancelled", got.Status)
	}
}

func TestPipelinePartialFailure(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: sitePages(),
		fail:  map[string]bool{"https://afterschool.my/scholarship/beta-award": true},
	}
	store := newMemStore()
	p := NewPipeline(testCrawlerConfig(), fetcher, store, nil)

	tracker := NewTracker()
	tracker.Begin()
	if err := p.Run(context.Background(), tracker, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.count() != 1 {
		t.Errorf("stored %d scholarships, want 1", store.count())
	}
	snap := tracker.Snapshot()
	if snap.SavedCount != 1 || snap.FailedCount != 1 {
		t.Errorf("counters = %+v", snap)
	}
	if got := store.lastSession(t); got.Status != "partial" || got.FailedCount != 1 {
		t.Errorf("session = %+v", got)
	}
}

func TestPipelineClearFirst(t *testing.T) {
	fetcher := &fakeFetcher{pages: sitePages()}
	store := newMemStore()
	stale := &models.Scholarship{SourceURL: "https://afterschool.my/scholarship/gone-award", Title: "Gone"}
	if _, err := store.UpsertBySourceURL(context.Background(), stale); err != nil {
		t.Fatal(err)
	}

	p := NewPipeline(testCrawlerConfig(), fetcher, store, nil)
	tracker := NewTracker()
	tracker.Begin()
	if err := p.Run(context.Background(), tracker, true); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.count() != 2 {
		t.Errorf("stored %d scholarships, want 2 (stale row cleared)", store.count())
	}
	if _, ok := store.byURL[stale.SourceURL]; ok {
		t.Error("stale scholarship survived clearFirst")
	}
}

type stubClassifier struct {
	available bool
	fields    []string
	err       error
	calls     int
}

func (c *stubClassifier) ClassifyFields(_ context.Context, _, _ string) ([]string, error) {
	c.calls++
	return c.fields, c.err
}

func (c *stubClassifier) IsAvailable(_ context.Context) bool { return c.available }

func TestClassifyFieldsKeepsPriorOnFailure(t *testing.T) {
	longText := strings.Repeat("eligibility details ", 50)
	prior := []string{"Engineering"}

	tests := []struct {
		name       string
		classifier *stubClassifier
		detail     *Detail
		prior      []string
		want       []string
		wantCalls  int
	}{
		{
			"classifier error keeps prior",
			&stubClassifier{available: true, err: errors.New("model timeout")},
			&Detail{BodyText: longText},
			prior, prior, 1,
		},
		{
			"noise-only result keeps prior",
			&stubClassifier{available: true, fields: []string{"Apply", "{}"}},
			&Detail{BodyText: longText},
			prior, prior, 1,
		},
		{
			"unavailable model keeps prior",
			&stubClassifier{available: false, fields: []string{"Medicine"}},
			&Detail{BodyText: longText},
			prior, prior, 0,
		},
		{
			"short page skips the model",
			&stubClassifier{available: true, fields: []string{"Medicine"}},
			&Detail{BodyText: "too short"},
			prior, prior, 0,
		},
		{
			"open-to-all sentinel skips the model",
			&stubClassifier{available: true, fields: []string{"Medicine"}},
			&Detail{BodyText: longText},
			[]string{models.OpenToAllFields}, []string{models.OpenToAllFields}, 0,
		},
		{
			"good result replaces prior",
			&stubClassifier{available: true, fields: []string{"Medicine", "Pharmacy"}},
			&Detail{BodyText: longText},
			prior, []string{"Medicine", "Pharmacy"}, 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(testCrawlerConfig(), &fakeFetcher{}, newMemStore(), tt.classifier)
			got := p.classifyFields(context.Background(), "https://afterschool.my/scholarship/x", tt.detail, tt.prior)
			if len(got) != len(tt.want) {
				t.Fatalf("classifyFields = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("classifyFields = %v, want %v", got, tt.want)
				}
			}
			if tt.classifier.calls != tt.wantCalls {
				t.Errorf("classifier called %d times, want %d", tt.classifier.calls, tt.wantCalls)
			}
		})
	}
}
