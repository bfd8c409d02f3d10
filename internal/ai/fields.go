package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// FieldClassifier extracts eligible course/field names from scholarship page
// text with a local Ollama model. It is a refinement layer on top of the
// HTML heuristics, not a replacement: callers keep their heuristic result
// whenever classification fails or returns nothing.
type FieldClassifier struct {
	Client *OllamaClient
}

func NewFieldClassifier(client *OllamaClient) *FieldClassifier {
	return &FieldClassifier{Client: client}
}

func (f *FieldClassifier) IsAvailable(ctx context.Context) bool {
	return f.Client.IsAvailable(ctx)
}

const maxPromptText = 6000

func (f *FieldClassifier) ClassifyFields(ctx context.Context, text, pageURL string) ([]string, error) {
	cleaned := CleanPageText(text)
	if len(cleaned) > maxPromptText {
		cleaned = cleaned[:maxPromptText]
	}

	prompt := fmt.Sprintf(`Task: Extract eligible course names from scholarship text.

PRIORITY: Look for "Preferred Discipline" section first. If found, extract ALL items listed under it.

Steps:
1. Search for "Preferred Discipline" or "Eligible Courses" or "Fields of Study" heading
2. Extract ALL courses/fields listed immediately after that heading
3. Include all engineering specializations and technical fields
4. Stop when you reach "Read more" or "Contact" or next section

Exclude:
- Section headers themselves ("Preferred Discipline", "Courses")
- Grade requirements ("3As", "5A's", "CGPA")
- Qualifications ("STPM", "SPM", "A-Level")
- Generic words ("All", "Any", "Other")

If "Preferred Discipline" section not found AND text says "open to all courses", return: ["All Fields"]

TEXT:
%s

Return JSON array: ["Course 1", "Course 2", ...]`, cleaned)

	resp, err := f.Client.GenerateCompletion(ctx, prompt, 0.3, 0.95, 1500)
	if err != nil {
		return nil, err
	}

	courses, err := ParseCourseList(resp)
	if err != nil {
		return nil, fmt.Errorf("parse course list for %s: %w", pageURL, err)
	}
	return PostProcessCourses(courses), nil
}

var (
	reCSSBlock  = regexp.MustCompile(`(?s)\{[^{}]*(?:display|color|font|margin|padding|width|height|background)\s*:[^{}]*\}`)
	reDataURI   = regexp.MustCompile(`data:[a-zA-Z0-9/+;=,._-]{20,}`)
	reJSONBlob  = regexp.MustCompile(`\{"[^\n]{40,}\}`)
	reHexColor  = regexp.MustCompile(`#[0-9a-fA-F]{3,8}\b`)
	reUnitValue = regexp.MustCompile(`\b\d+(?:\.\d+)?(?:px|rem|em|vh|vw|pt)\b`)
	reSpaceRun  = regexp.MustCompile(`[ \t]{2,}`)
	reBlankRun  = regexp.MustCompile(`\n{3,}`)
)

// CleanPageText strips styling noise that scraped MUI pages leak into their
// text content while preserving line structure, which the extraction prompt
// relies on to tell list items apart.
func CleanPageText(text string) string {
	text = reCSSBlock.ReplaceAllString(text, " ")
	text = reDataURI.ReplaceAllString(text, " ")
	text = reJSONBlob.ReplaceAllString(text, " ")
	text = reHexColor.ReplaceAllString(text, " ")
	text = reUnitValue.ReplaceAllString(text, " ")
	text = reSpaceRun.ReplaceAllString(text, " ")
	text = reBlankRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

var (
	reFence     = regexp.MustCompile("```(?:json)?\n?")
	reJSONArray = regexp.MustCompile(`(?s)\[.*?\]`)
	reJSONObj   = regexp.MustCompile(`(?s)\{.*?\}`)
)

// ParseCourseList recovers a string slice from a model response that may
// wrap its JSON in markdown fences, prose, or an object of arrays.
func ParseCourseList(resp string) ([]string, error) {
	resp = strings.TrimSpace(reFence.ReplaceAllString(resp, ""))

	var courses []string
	if err := json.Unmarshal([]byte(resp), &courses); err == nil {
		return courses, nil
	}

	if m := reJSONObj.FindString(resp); m != "" {
		var grouped map[string]json.RawMessage
		if err := json.Unmarshal([]byte(m), &grouped); err == nil {
			var flat []string
			for _, raw := range grouped {
				var part []string
				if err := json.Unmarshal(raw, &part); err == nil {
					flat = append(flat, part...)
				}
			}
			if len(flat) > 0 {
				return flat, nil
			}
		}
	}

	if m := reJSONArray.FindString(resp); m != "" {
		if err := json.Unmarshal([]byte(m), &courses); err == nil {
			return courses, nil
		}
	}

	return nil, fmt.Errorf("no JSON array found in response")
}

// Standalone terms that describe the shape of a course list rather than any
// actual field of study.
var genericCourseTerms = map[string]bool{
	"courses": true, "course": true, "discipline": true, "disciplines": true,
	"field": true, "fields": true, "program": true, "programs": true,
	"programme": true, "programmes": true, "major": true, "majors": true,
	"study": true, "studies": true, "degree": true, "degrees": true,
	"preferred discipline": true, "eligible courses": true,
	"fields of study": true, "academic programs": true,
	"undergraduate": true, "graduate": true, "postgraduate": true,
	"bachelor": true, "master": true,
	"all": true, "any": true, "other": true, "various": true, "related": true,
}

var allowedCoursePhrases = []string{
	"nursing programme", "nursing programs", "business program", "engineering program",
}

// PostProcessCourses expands slash/comma-joined entries, deduplicates
// case-insensitively, and drops noise and bare generic terms. Returns at
// most 20 entries.
func PostProcessCourses(courses []string) []string {
	var expanded []string
	for _, course := range courses {
		trimmed := strings.TrimSpace(course)
		if trimmed == "" {
			continue
		}
		if strings.ContainsAny(trimmed, ",/") {
			parts := splitCourseParts(trimmed)
			if parts != nil {
				expanded = append(expanded, parts...)
				continue
			}
		}
		expanded = append(expanded, trimmed)
	}

	seen := make(map[string]bool)
	var out []string
	for _, c := range expanded {
		c = strings.TrimSpace(c)
		if len(c) < 3 || len(c) > 80 {
			continue
		}
		if !strings.ContainsFunc(c, isLetter) {
			continue
		}
		lower := strings.ToLower(c)
		if seen[lower] {
			continue
		}
		if genericCourseTerms[lower] && !isAllowedPhrase(lower) {
			continue
		}
		seen[lower] = true
		out = append(out, c)
		if len(out) == 20 {
			break
		}
	}
	return out
}

// splitCourseParts splits "Structure, Hydraulic" style entries, refusing to
// split when the pieces don't look like 2-5 short course names.
func splitCourseParts(s string) []string {
	raw := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '/' })
	var parts []string
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 || len(parts) > 5 {
		return nil
	}
	for _, p := range parts {
		if len(p) < 3 || len(p) > 50 {
			return nil
		}
	}
	return parts
}

func isAllowedPhrase(lower string) bool {
	for _, phrase := range allowedCoursePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
