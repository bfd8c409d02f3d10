package ingest

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/david/scholarship-finder/internal/models"
)

var openToAllPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)open to all (courses|programmes|programs|fields|disciplines)`),
	regexp.MustCompile(`(?i)all (courses|programmes|programs|fields|disciplines) are eligible`),
	regexp.MustCompile(`(?i)available for all (courses|programmes|programs|fields|disciplines)`),
	regexp.MustCompile(`(?i)available for all .{1,100}(programmes|programs|courses)`),
	regexp.MustCompile(`(?i)open for all .{1,100}(degrees|courses|programmes|programs)`),
	regexp.MustCompile(`(?i)any (course|programme|program|field|discipline)`),
	regexp.MustCompile(`(?i)not restricted to any (course|programme|program|field|discipline)`),
	regexp.MustCompile(`(?i)no specific (course|programme|program|field|discipline) requirement`),
}

var sectionHeadings = []string{
	"preferred discipline", "preferred disciplines", "eligible courses", "eligible programmes", "fields",
	"field of study", "fields of study", "courses", "programmes", "programs", "disciplines", "areas of study",
}

// Lists opening with one of these read as admission criteria, not courses.
var criteriaKeywords = []string{"must be", "must have", "applicants", "demonstrate", "possess", "competent", "aged", "citizen"}

var courseKeywords = []string{
	"engineering", "science", "business", "accounting", "medicine", "law", "education",
	"arts", "technology", "management", "surveying", "architecture", "design",
}

var navigationKeywords = []string{
	"about us", "contact", "home", "apply", "courses", "scholarship", "institution", "university", "college",
}

var fieldStopwords = []string{
	"advertise", "private university", "public university", "home", "institutions", "contact us", "apply now",
	"browse by", "filter by", "search by", "view all", "read more", "learn more", "find out more",
	"scholarship", "scholarships", "application", "deadline", "about us", "terms", "privacy",
}

var (
	reFieldSentence  = regexp.MustCompile(`(?i)(fields|disciplines|areas|courses)[^.\n]{0,40}\b(such as|like|include|including|are|eligible|comprise|cover)\b([^.\n]{10,200})`)
	reListSplit      = regexp.MustCompile(`(?i),|\band\b|\bor\b|\x{2022}|\|`)
	reBulletSplit    = regexp.MustCompile(`[\n\x{2022}\x{00b7}\-]`)
	reTooGeneric     = regexp.MustCompile(`(?i)^(fields|disciplines|courses|areas|more|etc)\b`)
	reCssSelector    = regexp.MustCompile(`(?i)\.[a-z0-9_-]{2,}`)
	reCssDisplay     = regexp.MustCompile(`(?i)display\s*:`)
	reGradeSubjects  = regexp.MustCompile(`(?i)\b(STPM|A-Level|UEC|O-Level|SPM|IGCSE|IB)\b`)
	reGradeCount     = regexp.MustCompile(`(?i)\d+\s*A['s]*`)
	reNavExact       = regexp.MustCompile(`(?i)^(home|about|contact|apply|login|register|search|filter|browse)$`)
	reNavPhrases     = regexp.MustCompile(`(?i)click here|view|see|more|less`)
	reLeadingBullets = regexp.MustCompile(`^[-\x{2022}\x{00b7}\s]+`)
	reParens         = regexp.MustCompile(`\(.*?\)`)
	reLetters        = regexp.MustCompile(`[A-Za-z]`)
)

// IsOpenToAllText reports whether the page explicitly states the award is
// open to any field of study.
func IsOpenToAllText(text string) bool {
	for _, pattern := range openToAllPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// ExtractEligibleFields pulls the list of eligible study fields from a
// detail page. The open-to-all check runs first and short-circuits with the
// sentinel; then headed sections, generic lists, and prose sentences are
// tried in that order. Returns nil when nothing credible was found.
func ExtractEligibleFields(doc *goquery.Document, contentText string) []string {
	if IsOpenToAllText(contentText) {
		return []string{models.OpenToAllFields}
	}

	fields := fieldsFromHeadedSections(doc)
	if len(fields) == 0 {
		fields = fieldsFromGenericLists(doc)
	}
	if len(fields) == 0 {
		fields = fieldsFromSentence(contentText)
	}

	return SanitizeFieldList(fields)
}

// fieldsFromHeadedSections finds headings like "Eligible Courses" and
// collects the list items (or bullet-split paragraph lines) that follow,
// rejecting lists that read as admission criteria.
func fieldsFromHeadedSections(doc *goquery.Document) []string {
	var allCandidates [][]string

	doc.Find("h1, h2, h3, h4, h5, h6, strong, b, div, p").Each(func(_ int, el *goquery.Selection) {
		headingText := strings.ToLower(strings.TrimSpace(el.Text()))
		// Anything longer than a heading is page content, not a heading.
		if len(headingText) > 200 {
			return
		}

		matched := false
		for _, k := range sectionHeadings {
			if strings.Contains(headingText, k) {
				matched = true
				break
			}
		}
		if !matched {
			return
		}

		container := el.Closest("section, div, article")
		if container.Length() == 0 {
			container = el.Parent()
		}

		var items []string
		container.Find("li").Each(func(_ int, li *goquery.Selection) {
			if t := normalizeSpace(li.Text()); t != "" && len(t) <= 100 {
				items = append(items, t)
			}
		})

		if len(items) == 0 {
			if para := container.Find("p").First().Text(); para != "" {
				for _, part := range reBulletSplit.Split(para, -1) {
					if t := normalizeSpace(part); t != "" && len(t) <= 100 {
						items = append(items, t)
					}
				}
			}
		}

		if len(items) > 0 {
			allCandidates = append(allCandidates, items)
		}
	})

	for _, candidate := range allCandidates {
		if looksLikeCriteriaList(candidate) {
			continue
		}
		return trimBullets(candidate, 50)
	}
	return nil
}

// fieldsFromGenericLists scans every ul/ol on the page for something that
// looks like a course list: 3-30 items, first item naming a study field and
// not a nav entry.
func fieldsFromGenericLists(doc *goquery.Document) []string {
	var fields []string

	doc.Find("ul, ol").EachWithBreak(func(_ int, list *goquery.Selection) bool {
		var items []string
		list.Find("li").Each(func(_ int, li *goquery.Selection) {
			if t := normalizeSpace(li.Text()); len(t) >= 3 && len(t) <= 100 {
				items = append(items, t)
			}
		})
		if len(items) < 3 || len(items) > 30 {
			return true
		}

		first := strings.ToLower(items[0])
		if containsAny(first, criteriaKeywords) || containsAny(first, navigationKeywords) {
			return true
		}
		if !containsAny(first, courseKeywords) {
			return true
		}

		fields = trimBullets(items, 50)
		return false
	})

	return fields
}

// fieldsFromSentence extracts fields from prose like "fields such as
// Engineering, Law and Medicine".
func fieldsFromSentence(text string) []string {
	m := reFieldSentence.FindStringSubmatch(text)
	if m == nil || m[3] == "" {
		return nil
	}

	segment := reParens.ReplaceAllString(m[3], "")
	var cleaned []string
	for _, part := range reListSplit.Split(segment, -1) {
		s := normalizeSpace(part)
		s = strings.TrimPrefix(s, "and ")
		s = strings.TrimPrefix(s, "or ")
		s = regexp.MustCompile(`(?i)^of\s+`).ReplaceAllString(s, "")
		s = regexp.MustCompile(`(?i)\s*and\s*$`).ReplaceAllString(s, "")
		if s == "" || len(s) > 60 || reTooGeneric.MatchString(s) || looksLikeCSS(s) {
			continue
		}
		cleaned = append(cleaned, s)
	}

	return mergeUniqueFold(nil, cleaned)
}

// SanitizeFieldList removes nav noise, CSS fragments, grade requirements and
// mostly non-alphabetic entries from a candidate field list. The open-to-all
// sentinel passes through untouched.
func SanitizeFieldList(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	if fields[0] == models.OpenToAllFields {
		return fields[:1]
	}

	var out []string
	for _, f := range fields {
		s := normalizeSpace(f)
		s = reLeadingBullets.ReplaceAllString(s, "")
		if len(s) < 2 || len(s) > 80 {
			continue
		}
		if looksLikeCSS(s) || looksLikeGrade(s) || looksLikeNav(s) {
			continue
		}
		if nonLetterRatio(s) >= 0.5 {
			continue
		}
		if containsAny(strings.ToLower(s), fieldStopwords) {
			continue
		}
		out = appendUnique(out, s)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func looksLikeCriteriaList(items []string) bool {
	if len(items) == 0 {
		return false
	}
	return containsAny(strings.ToLower(items[0]), criteriaKeywords)
}

func looksLikeCSS(s string) bool {
	return strings.ContainsAny(s, "{;}") || reCssSelector.MatchString(s) || reCssDisplay.MatchString(s)
}

func looksLikeGrade(s string) bool {
	return reGradeSubjects.MatchString(s) && reGradeCount.MatchString(s)
}

func looksLikeNav(s string) bool {
	return len(s) < 3 || reNavExact.MatchString(s) || reNavPhrases.MatchString(s)
}

func nonLetterRatio(s string) float64 {
	if len(s) == 0 {
		return 1
	}
	letters := len(reLetters.FindAllString(s, -1))
	return 1 - float64(letters)/float64(len(s))
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func trimBullets(items []string, limit int) []string {
	var out []string
	for _, item := range items {
		s := reLeadingBullets.ReplaceAllString(item, "")
		if len(s) > 1 {
			out = append(out, s)
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}
