package ingest

import (
	"strings"
	"time"

	"github.com/david/scholarship-finder/internal/models"
)

// ComputeStatus derives a scholarship's status. A scholarship with neither a
// diploma nor a degree study level is inactive regardless of deadline. With
// an acceptable level, the deadline decides: a deadline on or after today
// (compared at UTC midnight, so deadline day itself still counts) is active,
// a past one inactive, and no deadline at all defaults to active.
func ComputeStatus(deadline *time.Time, studyLevels []string, studyLevel string, now time.Time) string {
	if !hasDiplomaOrDegree(studyLevels, studyLevel) {
		return models.StatusInactive
	}

	if deadline == nil {
		return models.StatusActive
	}

	today := utcMidnight(now)
	due := utcMidnight(*deadline)
	if due.Before(today) {
		return models.StatusInactive
	}
	return models.StatusActive
}

func hasDiplomaOrDegree(studyLevels []string, studyLevel string) bool {
	if len(studyLevels) > 0 {
		for _, lvl := range studyLevels {
			switch strings.ToLower(strings.TrimSpace(lvl)) {
			case "diploma", "degree":
				return true
			}
		}
		return false
	}

	switch strings.ToLower(strings.TrimSpace(studyLevel)) {
	case "diploma", "degree":
		return true
	}
	return false
}

func utcMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
