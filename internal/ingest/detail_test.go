package ingest

import (
	"strings"
	"testing"
	"time"
)

var detailNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

const detailPageHTML = `<html><body>
<script>var junk = {"deadline":"01-01-2020"};</script>
<h5 class="MuiTypography-h5">Diploma / Degree</h5>
<main>
  <h1>Maxis Scholarship 2026</h1>
  <div class="MuiStack-root"><p>Deadline</p><h5>31-12-2026</h5></div>
  <p>The Maxis Scholarship supports outstanding Malaysian students.</p>
  <p>Applicants must hold a minimum CGPA of 3.50 at the point of application.</p>
  <p>Shortlisting begins 15-04-2026 with interviews to follow.</p>
  <div class="MuiCard-root"><a href="https://www.maxis.com.my/scholarship">Visit sponsor</a></div>
  <a href="mailto:scholarships@maxis.com.my?subject=Enquiry">Email us</a>
</main>
</body></html>`

func TestParseDetail(t *testing.T) {
	doc := docFromHTML(t, detailPageHTML)
	d := ParseDetail(doc, "https://afterschool.my/scholarship/maxis-scholarship-2026", "Maxis Scholarship 2026", detailNow)

	// The labelled stack wins over the bare date later in the content.
	if d.DeadlineRaw != "31-12-2026" {
		t.Errorf("DeadlineRaw = %q, want 31-12-2026", d.DeadlineRaw)
	}
	if d.Deadline == nil || !d.Deadline.Equal(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Deadline = %v", d.Deadline)
	}

	if d.MinimumGrade != 3.5 {
		t.Errorf("MinimumGrade = %v, want 3.5", d.MinimumGrade)
	}

	if len(d.StudyLevels) != 2 || d.StudyLevels[0] != "diploma" || d.StudyLevels[1] != "degree" {
		t.Errorf("StudyLevels = %v", d.StudyLevels)
	}
	if d.StudyLevel != "degree" {
		t.Errorf("StudyLevel = %q, want degree (preferred over diploma)", d.StudyLevel)
	}

	if d.ProviderWebsite != "https://www.maxis.com.my/scholarship" {
		t.Errorf("ProviderWebsite = %q", d.ProviderWebsite)
	}
	if d.ProviderName != "Maxis" {
		t.Errorf("ProviderName = %q, want Maxis", d.ProviderName)
	}
	if d.ContactEmail != "scholarships@maxis.com.my" {
		t.Errorf("ContactEmail = %q", d.ContactEmail)
	}

	if strings.Contains(d.Description, "junk") {
		t.Errorf("script content leaked into description: %q", d.Description)
	}
}

func TestExtractDeadlineFallbacks(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			"label pattern in text",
			`<main><h1>T</h1><p>Deadline | 30-06-2026</p><p>a</p><p>b</p></main>`,
			"30-06-2026",
		},
		{
			"corroborated element",
			`<main><h1>T</h1><p>Applications close</p><span>15-08-2026</span><p>a</p><p>b</p></main>`,
			"15-08-2026",
		},
		{
			"future date fallback",
			`<main><h1>T</h1><p>Founded on 01-06-2001. Apply before 01-09-2026 for consideration.</p><p>a</p><p>b</p></main>`,
			"01-09-2026",
		},
		{
			"no date",
			`<main><h1>T</h1><p>Always open, no closing date.</p><p>a</p><p>b</p></main>`,
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := docFromHTML(t, "<html><body>"+tt.html+"</body></html>")
			d := ParseDetail(doc, "https://afterschool.my/scholarship/t", "T", detailNow)
			if d.DeadlineRaw != tt.want {
				t.Errorf("DeadlineRaw = %q, want %q", d.DeadlineRaw, tt.want)
			}
		})
	}
}

func TestDecodeCfEmail(t *testing.T) {
	// Encoded form of "info@maxis.my" with key 0x42.
	plain := "info@maxis.my"
	key := byte(0x42)
	var b strings.Builder
	b.WriteString("42")
	const hexdigits = "0123456789abcdef"
	for i := 0; i < len(plain); i++ {
		c := plain[i] ^ key
		b.WriteByte(hexdigits[c>>4])
		b.WriteByte(hexdigits[c&0xf])
	}

	if got := decodeCfEmail(b.String()); got != plain {
		t.Errorf("decodeCfEmail = %q, want %q", got, plain)
	}

	if got := decodeCfEmail("zz"); got != "" {
		t.Errorf("invalid input decoded to %q", got)
	}
}

func TestDeobfuscateEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"contact us at info [at] maxis [dot] com", "info@maxis.com"},
		{"write to admin (at) msu (dot) edu (dot) my today", "admin@msu.edu.my"},
		{"reach scholarships at yayasan dot org", "scholarships@yayasan.org"},
		{"no address here", ""},
	}
	for _, tt := range tests {
		if got := deobfuscateEmail(tt.in); got != tt.want {
			t.Errorf("deobfuscateEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractMinimumGradeTakesMaximum(t *testing.T) {
	text := "Diploma holders need CGPA 3.00. Degree applicants must maintain a minimum CGPA of 3.75."
	if got := extractMinimumGrade(text, ""); got != 3.75 {
		t.Errorf("extractMinimumGrade = %v, want 3.75", got)
	}
}

func TestExtractMinimumGradeIgnoresOutOfRange(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{"GPA 5.00 is impossible here", 0},
		{"CGPA of 1.50 is below our scale floor", 0},
		{"no grade requirement at all", 0},
		{"maintain a GPA of 2.00", 2.0},
	}
	for _, tt := range tests {
		if got := extractMinimumGrade(tt.text, ""); got != tt.want {
			t.Errorf("extractMinimumGrade(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestPlausibleDate(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"31-12-2026", true},
		{"01-01-2025", true}, // now.Year()-1
		{"15-06-2031", true}, // now.Year()+5
		{"01-01-2020", false},
		{"01-01-2040", false},
		{"32-01-2026", false},
		{"01-13-2026", false},
	}
	for _, tt := range tests {
		if got := plausibleDate(tt.raw, detailNow); got != tt.want {
			t.Errorf("plausibleDate(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestDeriveProviderName(t *testing.T) {
	tests := []struct {
		name       string
		sponsorURL string
		pageURL    string
		title      string
		want       string
	}{
		{"from sponsor host", "https://www.maxis.com.my/apply", "", "", "Maxis"},
		{"from url keyword", "", "https://afterschool.my/scholarship/msu-award", "MSU Award", "MSU"},
		{"from title word", "", "https://afterschool.my/scholarship/x", "Yayasan Excellence Grant", "Yayasan"},
		{"unknown", "", "https://afterschool.my/scholarship/x", "", "Unknown Provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveProviderName(tt.sponsorURL, tt.pageURL, tt.title); got != tt.want {
				t.Errorf("deriveProviderName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateText(t *testing.T) {
	if got := TruncateText("short", 100); got != "short" {
		t.Errorf("TruncateText(short) = %q", got)
	}
	long := strings.Repeat("a", 100)
	got := TruncateText(long, 50)
	if len(got) != 50 || !strings.HasSuffix(got, "...") {
		t.Errorf("TruncateText long = %q (len %d)", got, len(got))
	}
}
