package ingest

import "testing"

func TestCanonicalURL(t *testing.T) {
	base := DefaultBaseURL

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"absolute unchanged", "https://afterschool.my/scholarship/foo", "https://afterschool.my/scholarship/foo"},
		{"relative resolved", "/scholarship/foo", "https://afterschool.my/scholarship/foo"},
		{"fragment dropped", "https://afterschool.my/scholarship/foo#details", "https://afterschool.my/scholarship/foo"},
		{"trailing slash trimmed", "https://afterschool.my/scholarship/foo/", "https://afterschool.my/scholarship/foo"},
		{"host lowercased", "https://AfterSchool.MY/scholarship/foo", "https://afterschool.my/scholarship/foo"},
		{"tracking params dropped", "https://afterschool.my/scholarship/foo?utm_source=fb&ref=x", "https://afterschool.my/scholarship/foo"},
		{"page param kept", "https://afterschool.my/scholarship?page=3&utm_source=fb", "https://afterschool.my/scholarship?page=3"},
		{"empty input", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalURL(tt.raw, base); got != tt.want {
				t.Errorf("CanonicalURL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCanonicalURLEquivalence(t *testing.T) {
	variants := []string{
		"https://afterschool.my/scholarship/foo",
		"https://afterschool.my/scholarship/foo/",
		"https://afterschool.my/scholarship/foo#apply",
		"https://afterschool.my/scholarship/foo?utm_campaign=x",
	}
	want := CanonicalURL(variants[0], DefaultBaseURL)
	for _, v := range variants[1:] {
		if got := CanonicalURL(v, DefaultBaseURL); got != want {
			t.Errorf("CanonicalURL(%q) = %q, want %q", v, got, want)
		}
	}
}

func TestIsDetailURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://afterschool.my/scholarship/maxis-scholarship-2026", true},
		{"https://afterschool.my/scholarship", false},
		{"https://afterschool.my/scholarship?page=2", false},
		{"https://afterschool.my/about", false},
	}
	for _, tt := range tests {
		if got := IsDetailURL(tt.url); got != tt.want {
			t.Errorf("IsDetailURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestAppendUnique(t *testing.T) {
	got := appendUnique([]string{"Engineering"}, "engineering")
	if len(got) != 1 {
		t.Errorf("case-insensitive duplicate appended: %v", got)
	}
	got = appendUnique(got, "Law")
	if len(got) != 2 || got[1] != "Law" {
		t.Errorf("new value not appended: %v", got)
	}
	got = appendUnique(got, "  ")
	if len(got) != 2 {
		t.Errorf("blank value appended: %v", got)
	}
}
