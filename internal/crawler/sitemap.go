package crawler

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Anchor text or href fragments that identify a site-map page.
var sitemapKeywords = []string{"sitemap", "網站導覽", "網頁導覽", "webmap"}

// Main-content scopes tried in priority order when harvesting links from a
// site-map page: semantic landmarks first, then common content containers,
// then partial-match fallbacks.
var contentSelectors = []string{
	"main",
	"[role=main]",
	"#main",
	"#content",
	"#main-content",
	"#index_main",
	".main",
	".content",
	".main-content",
	".main_content",
	".article",
	"#CCMS_Content",
	".group.page-content",
	"[id*=main]",
	"[id*=content]",
	"[id*=index]",
	"[class*=main]",
	"[class*=content]",
	"[class*=article]",
}

// findSitemapLink scans a page's anchors for a site-map link and returns its
// absolute URL.
func findSitemapLink(doc *goquery.Document, base *url.URL) (string, bool) {
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return true
		}

		text := strings.ToLower(strings.TrimSpace(s.Text()))
		lowerHref := strings.ToLower(href)
		for _, kw := range sitemapKeywords {
			if strings.Contains(text, kw) || strings.Contains(lowerHref, kw) {
				resolved, err := base.Parse(href)
				if err != nil {
					return true
				}
				resolved.Fragment = ""
				found = resolved.String()
				return false
			}
		}
		return true
	})
	return found, found != ""
}

// mainContentScope returns the first matching content region that actually
// contains links, or nil when every selector misses. Anchor-less matches are
// skipped so a decorative wrapper cannot shadow the real link container.
func mainContentScope(doc *goquery.Document) *goquery.Selection {
	for _, sel := range contentSelectors {
		scope := doc.Find(sel).First()
		if scope.Length() > 0 && scope.Find("a[href]").Length() > 0 {
			return scope
		}
	}
	return nil
}
