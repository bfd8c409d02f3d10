// Package match implements the eligibility matching engine: a pure,
// stateless evaluation of a student profile against stored active
// scholarships, producing annotated match and non-match lists.
package match

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/david/scholarship-finder/internal/models"
)

// Field strings that are webpage metadata rather than course names. They
// come out of over-eager list extraction and must never drive a rejection.
var invalidFieldTerms = map[string]bool{
	"amount": true, "deadline": true, "overview": true, "where to study": true,
	"study level": true, "study levels": true, "full scholarship": true,
	"public university": true, "private university": true, "pre university": true,
	"course 1": true, "course 2": true, "course 3": true, "course 4": true,
	"course 5": true, "course 6": true, "course 7": true, "course 8": true,
	"courses": true, "malaysia": true, "apply now": true, "requirements": true,
	"benefits": true, "eligibility": true, "deadline full scholarship": true,
}

// Single-word fields that are real academic disciplines. Any other lone
// word is treated as noise.
var singleWordFields = map[string]bool{
	"engineering": true, "accounting": true, "business": true,
	"nursing": true, "law": true, "medicine": true,
}

var openToAllTokens = map[string]bool{
	"all fields": true, "all": true, "any field": true, "any": true,
}

var educationLevelTokens = map[string]bool{
	"diploma": true, "degree": true, "bachelor": true,
	"bachelor degree": true, "diploma programs": true, "degree programs": true,
}

// Qualifier words stripped before comparing field cores, so that
// "Bachelor of Computer Science" and "Computer Science" compare equal.
var qualifierWords = map[string]bool{
	"diploma": true, "degree": true, "bachelor": true,
	"sarjana": true, "muda": true, "in": true, "of": true,
}

type Engine struct {
	Now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{Now: time.Now}
}

// Evaluate partitions scholarships into matches and non-matches for the
// given profile. Expired scholarships are dropped from both lists. Matches
// are ordered by descending score; ties keep their input order.
func (e *Engine) Evaluate(profile models.StudentProfile, scholarships []models.Scholarship) (matches, nonMatches []models.MatchResult) {
	now := e.Now()
	program := normalize(profile.Program)

	for _, s := range scholarships {
		if s.Deadline != nil && !s.Deadline.After(now) {
			continue
		}

		result := e.evaluateOne(profile.Grade, program, s)
		if result.Eligible {
			matches = append(matches, result)
		} else {
			nonMatches = append(nonMatches, result)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches, nonMatches
}

func (e *Engine) evaluateOne(grade float64, program string, s models.Scholarship) models.MatchResult {
	result := models.MatchResult{Scholarship: s}

	hasMin := s.MinimumGrade > 0
	if !hasMin {
		result.GradeSatisfied = true
		result.Reasons = append(result.Reasons, "No minimum GPA required")
	} else if grade >= s.MinimumGrade {
		result.GradeSatisfied = true
		result.Reasons = append(result.Reasons, fmt.Sprintf("Meets minimum GPA (%.2f >= %.2f)", grade, s.MinimumGrade))
	} else {
		result.Reasons = append(result.Reasons, fmt.Sprintf("CGPA too low (requires %.2f, you have %.2f)", s.MinimumGrade, grade))
	}

	programOk, explicit, openToAll, programReason := matchProgram(program, s.EligibleFields)
	result.ProgramMatched = explicit
	result.OpenToAll = openToAll
	result.Reasons = append(result.Reasons, programReason)

	result.Eligible = result.GradeSatisfied && programOk
	result.Score = score(grade, s.MinimumGrade, result.GradeSatisfied, explicit)
	switch {
	case result.Eligible && explicit:
		result.MatchLevel = "full"
	case result.Eligible:
		result.MatchLevel = "partial"
	default:
		result.MatchLevel = "low"
	}
	return result
}

// score starts at a base of 50, adds up to 30 points for grade margin over
// an existing minimum (capped at a 1.0 margin), and 30 points when the
// program matched an explicit field constraint.
func score(grade, minGrade float64, gradeSatisfied, explicitProgramMatch bool) int {
	s := 50.0
	if minGrade > 0 && gradeSatisfied {
		s += 30 * math.Min(1.0, grade-minGrade)
	}
	if explicitProgramMatch {
		s += 30
	}
	return int(math.Round(s))
}

// matchProgram reports whether the student's normalized program satisfies
// the scholarship's field constraint. explicit is true only when a concrete
// field name matched, as opposed to the open/unconstrained paths.
func matchProgram(program string, eligibleFields []string) (ok, explicit, openToAll bool, reason string) {
	valid := FilterValidFields(eligibleFields)
	if len(valid) == 0 {
		return true, false, false, "Open to any program"
	}

	for _, f := range valid {
		if openToAllTokens[normalize(f)] {
			return true, false, true, "Open to any program"
		}
	}

	levelOnly := true
	for _, f := range valid {
		if !educationLevelTokens[normalize(f)] {
			levelOnly = false
			break
		}
	}
	if levelOnly {
		return true, false, false, "Open to any program"
	}

	// A bare level token among concrete fields still satisfies when the
	// student's program names that level.
	for _, f := range valid {
		ff := normalize(f)
		if educationLevelTokens[ff] && program != "" && strings.Contains(program, firstWord(ff)) {
			return true, false, false, fmt.Sprintf("Program level matches (%s)", f)
		}
	}

	var matched []string
	for _, f := range valid {
		ff := normalize(f)
		if educationLevelTokens[ff] {
			continue
		}
		if fieldMatches(program, ff) {
			matched = append(matched, strings.TrimSpace(f))
		}
	}
	if len(matched) > 0 {
		shown := matched
		overflow := ""
		if len(shown) > 3 {
			overflow = fmt.Sprintf(" (+%d more)", len(shown)-3)
			shown = shown[:3]
		}
		return true, true, false, fmt.Sprintf("Program matches: %s%s", strings.Join(shown, ", "), overflow)
	}

	shown := valid
	overflow := ""
	if len(shown) > 3 {
		overflow = "..."
		shown = shown[:3]
	}
	return false, false, false, fmt.Sprintf("Program doesn't match (requires: %s%s)", strings.Join(shown, ", "), overflow)
}

// fieldMatches tests one normalized eligible-field string against the
// normalized student program. Slash-separated alternatives are tried
// independently.
func fieldMatches(program, field string) bool {
	if program == "" || field == "" {
		return false
	}
	for _, part := range strings.Split(field, "/") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == program {
			return true
		}
		// Raw substring containment needs at least two words on the
		// contained side, so "law" never matches inside "lawrence
		// school of business".
		if strings.Contains(program, part) && wordCount(part) >= 2 {
			return true
		}
		if strings.Contains(part, program) && wordCount(program) >= 2 {
			return true
		}
		programCore := stripQualifiers(program)
		fieldCore := stripQualifiers(part)
		if programCore == "" || fieldCore == "" {
			continue
		}
		if programCore == fieldCore {
			return true
		}
		if containsWords(programCore, fieldCore) || containsWords(fieldCore, programCore) {
			return true
		}
	}
	return false
}

// FilterValidFields drops extraction noise: known metadata terms and
// single-word entries that are not recognized disciplines or structural
// tokens (open-to-all, education levels).
func FilterValidFields(fields []string) []string {
	var out []string
	for _, f := range fields {
		ff := normalize(f)
		if ff == "" || invalidFieldTerms[ff] {
			continue
		}
		if wordCount(ff) == 1 && !singleWordFields[ff] && !openToAllTokens[ff] && !educationLevelTokens[ff] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// containsWords reports whether inner appears in outer as a whole-word
// sequence. Unlike plain substring containment, "law" does not appear in
// "lawrence school business".
func containsWords(outer, inner string) bool {
	return strings.Contains(" "+outer+" ", " "+inner+" ")
}

func stripQualifiers(s string) string {
	var kept []string
	for _, w := range strings.Fields(s) {
		if !qualifierWords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func firstWord(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return s
}
