package ingest

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// Detail holds everything extracted from one scholarship page.
type Detail struct {
	Title           string
	Description     string
	DeadlineRaw     string // DD-MM-YYYY as printed on the page, "" if none found
	Deadline        *time.Time
	MinimumGrade    float64 // 0 when no requirement was stated
	StudyLevel      string
	StudyLevels     []string
	ProviderName    string
	ProviderWebsite string
	ContactEmail    string
	BodyText        string // sanitized page text, input to field classification
	ContentText     string // text scoped to the main content region
}

var (
	reDateDDMMYYYY     = regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{4}$`)
	reDateAnywhere     = regexp.MustCompile(`\b(\d{1,2}-\d{1,2}-\d{4})\b`)
	reEmail            = regexp.MustCompile(`[\w._%+-]+@[\w.-]+\.[A-Za-z]{2,}`)
	reStudyLevelSplit  = regexp.MustCompile(`[/|,]+`)
	textPolicy         = bluemonday.StrictPolicy()
)

var deadlineLabelPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d{1,2}-\d{1,2}-\d{4})\s*Deadline`),
	regexp.MustCompile(`(?i)Deadline\s*[|]?\s*(\d{1,2}-\d{1,2}-\d{4})`),
	regexp.MustCompile(`(?i)(\d{1,2}-\d{1,2}-\d{4})\s*\|\s*Up to`),
	regexp.MustCompile(`(?i)\|\s*(\d{1,2}-\d{1,2}-\d{4})\s*\|`),
}

var gpaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(minimum|min)\s*(cgpa|gpa)\s*[:\-]?\s*(\d(?:\.\d{1,2})?)`),
	regexp.MustCompile(`(?i)(cgpa|gpa)[^\d]{0,40}(\d(?:\.\d{1,2})?)`),
	regexp.MustCompile(`(?i)(\d(?:\.\d{1,2})?)\s*(cgpa|gpa)`),
	regexp.MustCompile(`(?i)(at\s+least|of|>=?)\s*(\d(?:\.\d{1,2})?)\s*(cgpa|gpa)`),
}

var gpaProximityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)(\d(?:\.\d{1,2})?).{0,20}\b(CGPA|GPA)\b`),
	regexp.MustCompile(`(?is)\b(CGPA|GPA)\b.{0,20}(\d(?:\.\d{1,2})?)`),
}

// ParseDetail extracts structured scholarship data from a detail page. The
// page title comes from the listing card; it anchors the content-region
// search. now bounds which years count as plausible deadlines.
func ParseDetail(doc *goquery.Document, pageURL, title string, now time.Time) *Detail {
	d := &Detail{Title: normalizeSpace(title)}

	// StudyLevels come from the page header. Only diploma and degree count;
	// bachelor and undergraduate fold into degree.
	extractStudyLevels(doc, d)

	body := sanitizedBody(doc)
	contentRoot := findContentRoot(body, title)

	d.ContentText = contentRoot.Text()
	d.BodyText = body.Text()

	d.DeadlineRaw = extractDeadline(body, contentRoot, d.ContentText, d.BodyText, now)
	if d.DeadlineRaw != "" {
		if t, ok := parseDDMMYYYY(d.DeadlineRaw); ok {
			d.Deadline = &t
		}
	}

	d.ContactEmail = extractEmail(doc, d.ContentText)
	d.ProviderWebsite = extractSponsorWebsite(doc)
	d.MinimumGrade = extractMinimumGrade(d.BodyText, d.ContentText)
	d.ProviderName = deriveProviderName(d.ProviderWebsite, pageURL, title)

	if d.ProviderWebsite == "" {
		d.ProviderWebsite = pageURL
	}

	html, err := contentRoot.Html()
	if err != nil || strings.TrimSpace(html) == "" {
		d.Description = normalizeSpace(d.ContentText)
	} else {
		d.Description = normalizeSpace(textPolicy.Sanitize(html))
	}
	d.Description = TruncateText(d.Description, 5000)

	return d
}

// TruncateText cuts a string to max length, appending ellipsis if truncated.
func TruncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	if maxLen > 3 {
		return text[:maxLen-3] + "..."
	}
	return text[:maxLen]
}

// sanitizedBody clones the body and strips scripts, styles and the Next.js
// data blob so their payloads never pollute text extraction.
func sanitizedBody(doc *goquery.Document) *goquery.Selection {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, #__NEXT_DATA__").Remove()
	return body
}

// findContentRoot scopes extraction to the region around the page's h1 so
// headers, footers and nav don't contribute dates or emails. When the title
// can't be located, the largest block with at least three paragraphs wins.
func findContentRoot(body *goquery.Selection, title string) *goquery.Selection {
	want := strings.ToLower(normalizeSpace(title))
	if want != "" {
		titleNode := body.Find("h1").FilterFunction(func(_ int, h *goquery.Selection) bool {
			return strings.Contains(strings.ToLower(normalizeSpace(h.Text())), want)
		}).First()
		if titleNode.Length() > 0 {
			if closest := titleNode.Closest("main, section, article, div"); closest.Length() > 0 {
				return closest
			}
		}
	}

	candidates := body.Find("main, article, section, div").FilterFunction(func(_ int, el *goquery.Selection) bool {
		if el.Is("header, footer, nav") {
			return false
		}
		return el.Find("p").Length() >= 3
	})
	if candidates.Length() > 0 {
		return candidates.First()
	}
	return body
}

func extractStudyLevels(doc *goquery.Document, d *Detail) {
	h5 := doc.Find("h5.MuiTypography-h5").First()
	if h5.Length() == 0 {
		h5 = doc.Find("h5").First()
	}
	if h5.Length() == 0 {
		return
	}

	raw := strings.ToLower(strings.TrimSpace(h5.Text()))
	found := make(map[string]bool)
	for _, token := range reStudyLevelSplit.Split(raw, -1) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if strings.Contains(token, "diploma") {
			found["diploma"] = true
		}
		if strings.Contains(token, "degree") || strings.Contains(token, "bachelor") || strings.Contains(token, "undergraduate") {
			found["degree"] = true
		}
	}

	if found["diploma"] {
		d.StudyLevels = append(d.StudyLevels, "diploma")
	}
	if found["degree"] {
		d.StudyLevels = append(d.StudyLevels, "degree")
	}

	// Single level prefers degree over diploma.
	switch {
	case found["degree"]:
		d.StudyLevel = "degree"
	case found["diploma"]:
		d.StudyLevel = "diploma"
	}
}

// extractDeadline runs the strategy chain in order and stops at the first
// hit: labelled stack blocks, labelled text patterns, corroborated dates in
// arbitrary elements, bare dates in typography elements, and finally the
// first strictly future date anywhere on the page.
func extractDeadline(body, contentRoot *goquery.Selection, contentText, globalText string, now time.Time) string {
	if d := deadlineFromStacks(contentRoot); d != "" {
		return d
	}
	if d := deadlineFromStacks(body); d != "" {
		return d
	}

	for _, pattern := range deadlineLabelPatterns {
		if m := pattern.FindStringSubmatch(contentText); m != nil {
			return m[1]
		}
		if m := pattern.FindStringSubmatch(globalText); m != nil {
			return m[1]
		}
	}

	if d := deadlineFromCorroboratedElements(body, now); d != "" {
		return d
	}
	if d := deadlineFromTypography(body, now); d != "" {
		return d
	}

	// Last resort: first date on the page that is still in the future.
	for _, raw := range reDateAnywhere.FindAllString(globalText, -1) {
		if t, ok := parseDDMMYYYY(raw); ok && t.After(now) {
			return raw
		}
	}

	return ""
}

// deadlineFromStacks reads MUI label/value stacks, in both orders, then
// checks h5 siblings of any paragraph mentioning a deadline.
func deadlineFromStacks(root *goquery.Selection) string {
	var deadline string

	root.Find("div.MuiStack-root").EachWithBreak(func(_ int, block *goquery.Selection) bool {
		label := strings.ToLower(strings.TrimSpace(block.Find("p").First().Text()))
		value := strings.TrimSpace(block.Find("h5").First().Text())
		if strings.Contains(label, "deadline") && reDateDDMMYYYY.MatchString(value) {
			deadline = value
			return false
		}
		return true
	})
	if deadline != "" {
		return deadline
	}

	root.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(p.Text()), "deadline") {
			return true
		}
		for _, sibling := range []*goquery.Selection{
			p.PrevAllFiltered("h5").First(),
			p.NextAllFiltered("h5").First(),
		} {
			if sibling.Length() == 0 {
				continue
			}
			if value := strings.TrimSpace(sibling.Text()); reDateDDMMYYYY.MatchString(value) {
				deadline = value
				return false
			}
		}
		return true
	})

	return deadline
}

func deadlineFromCorroboratedElements(body *goquery.Selection, now time.Time) string {
	var deadline string

	body.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if el.Is("script, style, noscript") {
			return true
		}
		if id, _ := el.Attr("id"); id == "__NEXT_DATA__" {
			return true
		}

		text := strings.TrimSpace(el.Text())
		m := reDateAnywhere.FindStringSubmatch(text)
		if m == nil {
			return true
		}
		if !plausibleDate(m[1], now) {
			return true
		}

		lower := strings.ToLower(text)
		if strings.Contains(lower, "deadline") || strings.Contains(lower, "due") || strings.Contains(lower, "close") ||
			strings.Contains(strings.ToLower(el.Parent().Text()), "deadline") ||
			strings.Contains(strings.ToLower(el.Prev().Text()), "deadline") ||
			strings.Contains(strings.ToLower(el.Next().Text()), "deadline") {
			deadline = m[1]
			return false
		}
		return true
	})

	return deadline
}

func deadlineFromTypography(body *goquery.Selection, now time.Time) string {
	var deadline string

	body.Find(`[class*="MuiTypography"], h1, h2, h3, h4, h5, h6, p, span, div`).
		Not("script, style, noscript, #__NEXT_DATA__").
		EachWithBreak(func(_ int, el *goquery.Selection) bool {
			text := strings.TrimSpace(el.Text())
			if reDateDDMMYYYY.MatchString(text) && plausibleDate(text, now) {
				deadline = text
				return false
			}
			return true
		})

	return deadline
}

// plausibleDate validates day and month ranges and keeps the year within a
// window around now, rejecting phone numbers and historical dates that
// happen to match the DD-MM-YYYY shape.
func plausibleDate(raw string, now time.Time) bool {
	parts := strings.Split(raw, "-")
	if len(parts) != 3 {
		return false
	}
	day, _ := strconv.Atoi(parts[0])
	month, _ := strconv.Atoi(parts[1])
	year, _ := strconv.Atoi(parts[2])
	return day >= 1 && day <= 31 &&
		month >= 1 && month <= 12 &&
		year >= now.Year()-1 && year <= now.Year()+5
}

func parseDDMMYYYY(raw string) (time.Time, bool) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	day, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// extractEmail tries, in order: Cloudflare-encoded addresses, the contact
// accordion section, mailto links, and finally any address (plain or
// obfuscated) in the page text.
func extractEmail(doc *goquery.Document, pageText string) string {
	if encoded, ok := doc.Find("[data-cfemail]").First().Attr("data-cfemail"); ok {
		if decoded := decodeCfEmail(encoded); decoded != "" && reEmail.MatchString(decoded) {
			return decoded
		}
	}

	var email string
	doc.Find(".MuiAccordionDetails-root").EachWithBreak(func(_ int, section *goquery.Selection) bool {
		heading := section.Prev()
		if heading.Length() == 0 || !strings.Contains(headingClass(heading), "MuiAccordionSummary") {
			heading = section.Parent().Find(`[class*="MuiAccordionSummary"]`).First()
		}
		if heading.Length() == 0 || !strings.Contains(strings.ToLower(heading.Text()), "contact") {
			return true
		}

		sectionText := section.Text()
		if m := reEmail.FindString(sectionText); m != "" {
			email = m
			return false
		}
		if obf := deobfuscateEmail(sectionText); obf != "" {
			email = obf
			return false
		}
		return true
	})
	if email != "" {
		return email
	}

	if mailto, ok := doc.Find(`a[href^="mailto:"]`).Attr("href"); ok {
		addr := strings.TrimSpace(strings.SplitN(strings.TrimPrefix(mailto, "mailto:"), "?", 2)[0])
		if reEmail.MatchString(addr) {
			return addr
		}
	}

	if m := reEmail.FindString(pageText); m != "" {
		return m
	}
	return deobfuscateEmail(pageText)
}

func headingClass(s *goquery.Selection) string {
	class, _ := s.Attr("class")
	return class
}

// decodeCfEmail reverses Cloudflare's email obfuscation: the first hex byte
// is an XOR key applied to every following byte.
func decodeCfEmail(encoded string) string {
	if len(encoded) < 4 || len(encoded)%2 != 0 {
		return ""
	}
	key, err := strconv.ParseUint(encoded[:2], 16, 8)
	if err != nil {
		return ""
	}

	var b strings.Builder
	for i := 2; i < len(encoded); i += 2 {
		c, err := strconv.ParseUint(encoded[i:i+2], 16, 8)
		if err != nil {
			return ""
		}
		b.WriteByte(byte(c) ^ byte(key))
	}
	return b.String()
}

var (
	reObfAt  = regexp.MustCompile(`(?i)\s*\[at\]\s*|\s*\(at\)\s*|\s+at\s+|\s*\{at\}\s*`)
	reObfDot = regexp.MustCompile(`(?i)\s*\[dot\]\s*|\s*\(dot\)\s*|\s+dot\s+|\s*\{dot\}\s*`)
)

// deobfuscateEmail normalizes "name [at] domain [dot] com" spellings and
// returns the first address that results.
func deobfuscateEmail(text string) string {
	if text == "" {
		return ""
	}
	replaced := reObfAt.ReplaceAllString(text, "@")
	replaced = reObfDot.ReplaceAllString(replaced, ".")
	replaced = normalizeSpace(replaced)
	return reEmail.FindString(replaced)
}

// extractSponsorWebsite returns the first absolute link inside a sponsor
// card.
func extractSponsorWebsite(doc *goquery.Document) string {
	var website string
	doc.Find(".MuiCard-root").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		card.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if href, _ := a.Attr("href"); strings.HasPrefix(href, "http") {
				website = href
				return false
			}
			return true
		})
		return website == ""
	})
	return website
}

// extractMinimumGrade scans for CGPA/GPA mentions and returns the highest
// value in the plausible 2.00-4.00 range, or 0 when none is stated. Taking
// the maximum matters because pages often cite several thresholds and the
// strictest one is the binding requirement.
func extractMinimumGrade(globalText, contentText string) float64 {
	text := globalText
	if text == "" {
		text = contentText
	}

	var candidates []float64
	appendCandidate := func(raw string) {
		v, err := strconv.ParseFloat(raw, 64)
		if err == nil && v >= 2.0 && v <= 4.0 {
			candidates = append(candidates, v)
		}
	}

	for _, pattern := range gpaPatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			for _, group := range m[1:] {
				appendCandidate(group)
			}
		}
	}
	for _, pattern := range gpaProximityPatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			appendCandidate(m[1])
			appendCandidate(m[2])
		}
	}

	if len(candidates) == 0 {
		return 0
	}
	max := candidates[0]
	for _, v := range candidates[1:] {
		if v > max {
			max = v
		}
	}
	// Two decimal places, matching how requirements are printed.
	rounded, _ := strconv.ParseFloat(fmt.Sprintf("%.2f", max), 64)
	return rounded
}

// deriveProviderName guesses the provider from the sponsor link's hostname,
// then from keywords in the page URL, then from the first word of the title.
func deriveProviderName(sponsorURL, pageURL, title string) string {
	if sponsorURL != "" {
		if u, err := url.Parse(sponsorURL); err == nil && u.Hostname() != "" {
			host := strings.TrimPrefix(u.Hostname(), "www.")
			name := strings.SplitN(host, ".", 2)[0]
			if name != "" {
				return strings.ToUpper(name[:1]) + name[1:]
			}
		}
	}

	switch {
	case strings.Contains(pageURL, "maxis"):
		return "Maxis"
	case strings.Contains(pageURL, "msu"):
		return "MSU"
	case strings.Contains(pageURL, "taylor"):
		return "Taylor's University"
	}

	if words := strings.Fields(title); len(words) > 0 {
		return words[0]
	}
	return "Unknown Provider"
}
