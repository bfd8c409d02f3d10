package ingest

import (
	"net/url"
	"strings"
)

// DefaultBaseURL is the site the crawler targets. Relative links discovered
// on listing and detail pages are resolved against it.
const DefaultBaseURL = "https://afterschool.my"

// CanonicalURL resolves raw (possibly relative) against base and reduces it
// to a canonical form: lowercase host, fragment removed, every query
// parameter except "page" dropped, and a single trailing slash trimmed.
// Two links that differ only in tracking params or a fragment therefore
// collapse to the same key, which is what deduplication and the upsert key
// both rely on. Unparseable input comes back unchanged.
func CanonicalURL(raw, base string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var u *url.URL
	var err error
	if base != "" {
		var b *url.URL
		b, err = url.Parse(base)
		if err != nil {
			return raw
		}
		u, err = b.Parse(raw)
	} else {
		u, err = url.Parse(raw)
	}
	if err != nil {
		return raw
	}

	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)

	q := u.Query()
	if page := q.Get("page"); page != "" {
		u.RawQuery = url.Values{"page": []string{page}}.Encode()
	} else {
		u.RawQuery = ""
	}

	out := u.String()
	if strings.HasSuffix(out, "/") {
		out = out[:len(out)-1]
	}
	return out
}

// IsDetailURL reports whether a canonical URL points at a scholarship detail
// page rather than a listing or some other part of the site.
func IsDetailURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.Contains(u.Path, "/scholarship/")
}

// normalizeSpace collapses runs of whitespace into single spaces and trims.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// appendUnique appends a string to a slice if it doesn't already exist (case-insensitive).
func appendUnique(list []string, v string) []string {
	vClean := strings.TrimSpace(v)
	if vClean == "" {
		return list
	}

	vLower := strings.ToLower(vClean)
	for _, existing := range list {
		if strings.ToLower(existing) == vLower {
			return list
		}
	}
	return append(list, vClean)
}

func mergeUniqueFold(dst []string, items []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		k := strings.ToLower(strings.TrimSpace(v))
		if k != "" {
			seen[k] = struct{}{}
		}
	}

	for _, v := range items {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		dst = append(dst, v)
		seen[k] = struct{}{}
	}

	return dst
}
