package ingest

import (
	"sort"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func TestExtractListingLinks(t *testing.T) {
	html := `<html><body>
		<a href="/scholarship/maxis-scholarship-2026"><h3>Maxis Scholarship 2026</h3></a>
		<h3><a href="/scholarship/msu-merit-award">MSU Merit Award</a></h3>
		<a href="/scholarship/maxis-scholarship-2026#apply"><h3>Maxis Scholarship 2026</h3></a>
		<a href="/scholarship"><h3>All Scholarships</h3></a>
		<a href="/about"><h3>About Us</h3></a>
		<a href="/scholarship/no-title-link"></a>
	</body></html>`

	links := ExtractListingLinks(docFromHTML(t, html), DefaultBaseURL)
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2: %+v", len(links), links)
	}
	if links[0].URL != "https://afterschool.my/scholarship/maxis-scholarship-2026" || links[0].Title != "Maxis Scholarship 2026" {
		t.Errorf("first link = %+v", links[0])
	}
	if links[1].URL != "https://afterschool.my/scholarship/msu-merit-award" || links[1].Title != "MSU Merit Award" {
		t.Errorf("second link = %+v", links[1])
	}
}

func TestExpandPaginationURLsFromButtons(t *testing.T) {
	html := `<html><body>
		<button aria-label="Go to page 2" class="MuiPaginationItem-page">2</button>
		<button aria-label="Go to page 4" class="MuiPaginationItem-page">4</button>
	</body></html>`

	got := ExpandPaginationURLs(docFromHTML(t, html), "https://afterschool.my/scholarship", DefaultBaseURL, 10)
	sort.Strings(got)

	// Highest page seen is 4, so the contiguous range 1..4 must be present.
	for _, page := range []string{"1", "2", "3", "4"} {
		want := "https://afterschool.my/scholarship?page=" + page
		found := false
		for _, u := range got {
			if u == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing %s in %v", want, got)
		}
	}
}

func TestExpandPaginationURLsRespectsMaxPages(t *testing.T) {
	html := `<html><body>
		<a href="/scholarship?page=9">9</a>
	</body></html>`

	got := ExpandPaginationURLs(docFromHTML(t, html), "https://afterschool.my/scholarship", DefaultBaseURL, 3)
	for _, u := range got {
		if u == "https://afterschool.my/scholarship?page=8" {
			t.Errorf("range expansion ignored maxPages: %v", got)
		}
	}
}

func TestNextPageURL(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			"rel next",
			`<a rel="next" href="/scholarship?page=2">2</a>`,
			"https://afterschool.my/scholarship?page=2",
		},
		{
			"aria label next",
			`<a aria-label="Go to next page" href="/scholarship?page=3">x</a>`,
			"https://afterschool.my/scholarship?page=3",
		},
		{
			"text next",
			`<a href="/scholarship?page=5">Next</a>`,
			"https://afterschool.my/scholarship?page=5",
		},
		{
			"active plus one",
			`<li class="MuiPaginationItem-root Mui-selected"><a href="/scholarship?page=2">2</a></li>`,
			"https://afterschool.my/scholarship?page=3",
		},
		{
			"nothing",
			`<a href="/about">About</a>`,
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := docFromHTML(t, "<html><body>"+tt.html+"</body></html>")
			got := NextPageURL(doc, "https://afterschool.my/scholarship", DefaultBaseURL)
			if got != tt.want {
				t.Errorf("NextPageURL = %q, want %q", got, tt.want)
			}
		})
	}
}
