package crawler

import (
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// discovered splits the anchors found on one page by where they lead.
// Malformed entries are raw hrefs that could not be resolved.
type discovered struct {
	internal  []string
	external  []string
	malformed []string
}

// extractLinks resolves every anchor within scope against base and buckets
// the results. Internal links share the base hostname; anything else
// reachable over http(s) is external.
func extractLinks(scope *goquery.Selection, base *url.URL) discovered {
	var out discovered
	seen := make(map[string]struct{})

	scope.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || href == "#" {
			return
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "javascript:") ||
			strings.HasPrefix(lower, "mailto:") ||
			strings.HasPrefix(lower, "tel:") {
			return
		}

		resolved, err := base.Parse(href)
		if err != nil {
			out.malformed = append(out.malformed, href)
			return
		}
		scheme := strings.ToLower(resolved.Scheme)
		if scheme != "http" && scheme != "https" {
			return
		}
		resolved.Fragment = ""

		key := resolved.String()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}

		if strings.EqualFold(resolved.Hostname(), base.Hostname()) {
			out.internal = append(out.internal, key)
		} else {
			out.external = append(out.external, key)
		}
	})
	return out
}

// hasSkippedExtension reports whether the URL path ends in a non-HTML
// resource extension that should be recorded without fetching.
func hasSkippedExtension(rawURL string, extensions []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		return false
	}
	for _, candidate := range extensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// urlBasename is the last path segment of a URL, used as the display title
// for skipped file resources.
func urlBasename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return rawURL
	}
	return base
}
