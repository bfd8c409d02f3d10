package ingest

import (
	"sync"
	"time"
)

// Tracker holds the state of the single crawl job the service allows at a
// time. All methods are safe for concurrent use; progress consumers poll
// Snapshot.
type Tracker struct {
	mu sync.Mutex

	isRunning    bool
	shouldCancel bool
	current      int
	total        int
	currentItem  string
	savedCount   int
	updatedCount int
	failedCount  int
	errors       []string
	startTime    time.Time
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Begin claims the job slot. It returns false when a crawl is already
// running, in which case state is untouched.
func (t *Tracker) Begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return false
	}

	t.isRunning = true
	t.shouldCancel = false
	t.current = 0
	t.total = 0
	t.currentItem = ""
	t.savedCount = 0
	t.updatedCount = 0
	t.failedCount = 0
	t.errors = nil
	t.startTime = time.Now()
	return true
}

// Finish releases the job slot. Counters stay readable so progress
// consumers can observe the terminal state (not running, current > 0).
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.isRunning = false
	t.shouldCancel = false
	t.currentItem = ""
}

// RequestCancel asks the running crawl to stop at its next checkpoint.
// Returns false when nothing is running.
func (t *Tracker) RequestCancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isRunning {
		return false
	}
	t.shouldCancel = true
	return true
}

// Cancelled is the cooperative cancellation check the pipeline consults
// between fetches.
func (t *Tracker) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shouldCancel
}

func (t *Tracker) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isRunning
}

func (t *Tracker) SetPhase(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentItem = message
}

func (t *Tracker) SetTotal(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = total
	t.current = 0
}

func (t *Tracker) SetCurrent(current int, item string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = current
	t.currentItem = item
}

func (t *Tracker) AddSaved() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.savedCount++
}

func (t *Tracker) AddUpdated() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updatedCount++
}

func (t *Tracker) AddFailed(errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failedCount++
	if errMsg != "" {
		t.errors = append(t.errors, errMsg)
	}
}

func (t *Tracker) AddError(errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if errMsg != "" {
		t.errors = append(t.errors, errMsg)
	}
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	errs := make([]string, len(t.errors))
	copy(errs, t.errors)

	return Progress{
		IsRunning:          t.isRunning,
		Current:            t.current,
		Total:              t.total,
		CurrentScholarship: t.currentItem,
		SavedCount:         t.savedCount,
		UpdatedCount:       t.updatedCount,
		FailedCount:        t.failedCount,
		Errors:             errs,
		StartTime:          t.startTime,
	}
}
