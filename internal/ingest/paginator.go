package ingest

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ListingLink is one scholarship link discovered on a listing page.
type ListingLink struct {
	URL   string
	Title string
}

var (
	rePageParam  = regexp.MustCompile(`(?i)(?:[?&]page=|/page/)(\d+)`)
	reGoToPage   = regexp.MustCompile(`(?i)Go to page\s+(\d+)`)
	rePageLabel  = regexp.MustCompile(`(?i)page\s+(\d+)`)
	reAllDigits  = regexp.MustCompile(`^\d+$`)
	reNumInQuery = regexp.MustCompile(`page=(\d+)`)
)

// ExtractListingLinks pulls scholarship detail links out of a listing page.
// Cards come in two shapes: an anchor wrapping an h3 title, or an h3
// wrapping the anchor. Only links whose path contains /scholarship/ (and is
// not the bare listing itself) count.
func ExtractListingLinks(doc *goquery.Document, base string) []ListingLink {
	var links []ListingLink
	seen := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		name := strings.TrimSpace(a.Find("h3").First().Text())
		if name == "" && a.Parent().Is("h3") {
			name = strings.TrimSpace(a.Text())
		}
		href, _ := a.Attr("href")
		if name == "" || href == "" {
			return
		}

		canonical := CanonicalURL(href, base)
		if !IsDetailURL(canonical) || isBareListingPath(href) {
			return
		}
		if _, ok := seen[canonical]; ok {
			return
		}
		seen[canonical] = struct{}{}
		links = append(links, ListingLink{URL: canonical, Title: name})
	})

	return links
}

func isBareListingPath(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	p := strings.TrimSuffix(u.Path, "/")
	return strings.HasSuffix(p, "/scholarship") || p == "/scholarship" || p == "scholarship"
}

// NextPageURL finds the next listing page when pagination expansion turned
// up nothing: rel=next first, an anchor labelled Next, an anchor whose text
// says Next or ">", and finally the active page number plus one.
func NextPageURL(doc *goquery.Document, currentURL, base string) string {
	if href, ok := doc.Find(`a[rel="next"]`).Attr("href"); ok && href != "" {
		return CanonicalURL(href, base)
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		label, _ := a.Attr("aria-label")
		if strings.Contains(strings.ToLower(label), "next") {
			found, _ = a.Attr("href")
			return false
		}
		text := strings.TrimSpace(a.Text())
		if strings.Contains(text, "Next") || text == ">" {
			found, _ = a.Attr("href")
			return false
		}
		return true
	})
	if found != "" {
		return CanonicalURL(found, base)
	}

	// Active page number + 1, rebuilt onto the current URL.
	active, ok := doc.Find("li.MuiPaginationItem-root.Mui-selected a[href], li.active a[href]").Attr("href")
	if ok {
		if m := reNumInQuery.FindStringSubmatch(active); m != nil {
			if current, err := strconv.Atoi(m[1]); err == nil && current > 0 {
				if next := withPageParam(currentURL, current+1); next != "" {
					return CanonicalURL(next, base)
				}
			}
		}
	}

	return ""
}

// ExpandPaginationURLs collects every page URL a listing page advertises:
// links carrying a page parameter, MUI pagination buttons (which render
// without hrefs), purely numeric anchors, and finally the contiguous range
// 1..maxPage implied by the highest page number seen.
func ExpandPaginationURLs(doc *goquery.Document, currentURL, base string, maxPages int) []string {
	set := make(map[string]struct{})
	add := func(raw string) {
		if c := CanonicalURL(raw, base); c != "" {
			set[c] = struct{}{}
		}
	}
	addPageNumber := func(numText string) {
		n, err := strconv.Atoi(strings.TrimSpace(numText))
		if err == nil && n > 0 {
			add(base + "/scholarship?page=" + strconv.Itoa(n))
		}
	}

	doc.Find(`a[href*="page="]`).Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok && href != "" {
			add(href)
		}
	})

	doc.Find("button[aria-label]").Each(func(_ int, b *goquery.Selection) {
		label, _ := b.Attr("aria-label")
		label = strings.TrimSpace(label)
		if m := reGoToPage.FindStringSubmatch(label); m != nil {
			addPageNumber(m[1])
			return
		}
		if strings.HasPrefix(strings.ToLower(label), "page ") {
			if m := rePageLabel.FindStringSubmatch(label); m != nil {
				addPageNumber(m[1])
			}
		}
	})

	doc.Find("button.MuiPaginationItem-page").Each(func(_ int, b *goquery.Selection) {
		txt := strings.TrimSpace(b.Text())
		if reAllDigits.MatchString(txt) {
			addPageNumber(txt)
		}
	})

	// Numeric anchor text with or without an explicit href.
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		text := strings.TrimSpace(a.Text())
		if !reAllDigits.MatchString(text) {
			return
		}
		if href, ok := a.Attr("href"); ok && href != "" {
			add(href)
		} else if currentURL != "" {
			if built := withPageParam(currentURL, mustAtoi(text)); built != "" {
				add(built)
			}
		}
	})

	// Expand to the contiguous range 1..maxPage so a collapsed pager
	// ("1 2 ... 9") still yields every page in between.
	maxPage := 1
	for u := range set {
		if m := rePageParam.FindStringSubmatch(u); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > maxPage {
				maxPage = n
			}
		}
	}
	rangeBase := currentURL
	if rangeBase == "" {
		rangeBase = base + "/scholarship"
	}
	limit := maxPage
	if maxPages > 0 && limit > maxPages {
		limit = maxPages
	}
	for i := 1; i <= limit; i++ {
		if built := withPageParam(rangeBase, i); built != "" {
			add(built)
		}
	}

	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	return out
}

func withPageParam(rawURL string, page int) string {
	if page <= 0 {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
