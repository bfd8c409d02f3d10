package match

import (
	"testing"
	"time"

	"github.com/david/scholarship-finder/internal/models"
)

func fixedEngine() *Engine {
	return &Engine{Now: func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}}
}

func TestGradeBoundaryIsInclusive(t *testing.T) {
	e := fixedEngine()
	s := models.Scholarship{Title: "Boundary", MinimumGrade: 3.5, EligibleFields: []string{"All Fields"}}

	matches, nonMatches := e.Evaluate(models.StudentProfile{Grade: 3.5, Program: "Accounting"}, []models.Scholarship{s})
	if len(matches) != 1 || len(nonMatches) != 0 {
		t.Fatalf("grade equal to minimum should match, got %d matches %d non-matches", len(matches), len(nonMatches))
	}
	if !matches[0].GradeSatisfied {
		t.Error("GradeSatisfied = false at exact boundary")
	}
}

func TestProgramMatching(t *testing.T) {
	tests := []struct {
		name    string
		program string
		fields  []string
		want    bool
	}{
		{"qualifier stripped overlap", "Bachelor of Computer Science", []string{"Computer Science"}, true},
		{"short token substring guard", "Law", []string{"Lawrence School of Business"}, false},
		{"exact match", "Software Engineering", []string{"Software Engineering"}, true},
		{"slash separated alternative", "Computer Science", []string{"IT / Computer Science / Software Engineering"}, true},
		{"contained field in program", "Diploma in Mechanical Engineering", []string{"Mechanical Engineering"}, true},
		{"unrelated field", "Nursing", []string{"Civil Engineering"}, false},
		{"single word discipline", "Bachelor of Law", []string{"Law"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, _, _, _ := matchProgram(normalize(tt.program), tt.fields)
			if ok != tt.want {
				t.Errorf("matchProgram(%q, %v) = %v, want %v", tt.program, tt.fields, ok, tt.want)
			}
		})
	}
}

func TestOpenFieldsAlwaysSatisfied(t *testing.T) {
	for _, program := range []string{"", "Astrophysics", "   "} {
		ok, explicit, openToAll, _ := matchProgram(normalize(program), []string{models.OpenToAllFields})
		if !ok || explicit || !openToAll {
			t.Errorf("program %q vs All Fields: ok=%v explicit=%v openToAll=%v", program, ok, explicit, openToAll)
		}
	}
}

func TestUnknownFieldsAreOpen(t *testing.T) {
	ok, explicit, _, reason := matchProgram("software engineering", nil)
	if !ok || explicit {
		t.Fatalf("nil fields should be open, got ok=%v explicit=%v", ok, explicit)
	}
	if reason != "Open to any program" {
		t.Errorf("reason = %q", reason)
	}
}

func TestEducationLevelOnlyFieldsAreOpen(t *testing.T) {
	ok, explicit, _, _ := matchProgram("fine arts", []string{"Diploma", "Degree"})
	if !ok || explicit {
		t.Errorf("level-only fields should satisfy any program, got ok=%v explicit=%v", ok, explicit)
	}
}

func TestFilterValidFields(t *testing.T) {
	in := []string{"Overview", "Apply Now", "Civil Engineering", "Malaysia", "Structure", "Engineering", "Course 3"}
	got := FilterValidFields(in)
	want := []string{"Civil Engineering", "Engineering"}
	if len(got) != len(want) {
		t.Fatalf("FilterValidFields = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FilterValidFields[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExpiredScholarshipsDropped(t *testing.T) {
	e := fixedEngine()
	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := models.Scholarship{Title: "Expired", Deadline: &past, EligibleFields: []string{"All Fields"}}

	matches, nonMatches := e.Evaluate(models.StudentProfile{Grade: 4.0, Program: "Business"}, []models.Scholarship{s})
	if len(matches)+len(nonMatches) != 0 {
		t.Errorf("expired scholarship should appear in neither list, got %d/%d", len(matches), len(nonMatches))
	}
}

func TestEndToEndScenario(t *testing.T) {
	e := fixedEngine()
	scholarships := []models.Scholarship{
		{Title: "Engineering Excellence", MinimumGrade: 3.0, EligibleFields: []string{"Engineering"}},
		{Title: "Merit Award", MinimumGrade: 3.5, EligibleFields: []string{models.OpenToAllFields}},
		{Title: "Medical Fund", MinimumGrade: 0, EligibleFields: []string{"Medicine"}},
	}
	profile := models.StudentProfile{Grade: 3.2, Program: "Software Engineering"}

	matches, nonMatches := e.Evaluate(profile, scholarships)

	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	m := matches[0]
	if m.Scholarship.Title != "Engineering Excellence" {
		t.Errorf("matched %q, want Engineering Excellence", m.Scholarship.Title)
	}
	if m.MatchLevel != "full" {
		t.Errorf("MatchLevel = %q, want full", m.MatchLevel)
	}
	if m.Score != 86 {
		t.Errorf("Score = %d, want 86", m.Score)
	}

	if len(nonMatches) != 2 {
		t.Fatalf("nonMatches = %d, want 2", len(nonMatches))
	}
	if nonMatches[0].Scholarship.Title != "Merit Award" || nonMatches[0].GradeSatisfied {
		t.Errorf("Merit Award should fail on grade: %+v", nonMatches[0])
	}
	if nonMatches[1].Scholarship.Title != "Medical Fund" || !nonMatches[1].GradeSatisfied {
		t.Errorf("Medical Fund should fail on program only: %+v", nonMatches[1])
	}
}

func TestMatchesSortedByScore(t *testing.T) {
	e := fixedEngine()
	scholarships := []models.Scholarship{
		{Title: "Open", EligibleFields: []string{models.OpenToAllFields}},
		{Title: "Targeted", MinimumGrade: 3.0, EligibleFields: []string{"Accounting"}},
	}
	matches, _ := e.Evaluate(models.StudentProfile{Grade: 4.0, Program: "Accounting"}, scholarships)
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].Scholarship.Title != "Targeted" {
		t.Errorf("highest score first, got %q", matches[0].Scholarship.Title)
	}
	if matches[0].Score <= matches[1].Score {
		t.Errorf("scores not descending: %d, %d", matches[0].Score, matches[1].Score)
	}
}
