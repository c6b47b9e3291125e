package dates

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var noiseTags = []string{"header", "nav", "aside", "footer"}

// Class-attribute keywords identifying footer/nav/pagination chrome. Matched
// case-insensitively as substrings of the joined class list.
var noiseClassKeywords = []string{
	"base-footer", "site-footer", "footer-container", "footer-wrapper",
	"footer-bottom", "site-info", "colophon", "copyright", "update-time",
	"visit-count", "nav", "navigation", "navbar", "nav-menu", "main-nav",
	"site-nav", "breadcrumb", "sidebar", "menu", "top-menu",
}

// StripNoise returns a copy of the document with landmark chrome and
// noise-classed elements removed. The input document is left untouched so
// callers can keep using it for link extraction.
func StripNoise(doc *goquery.Document) *goquery.Document {
	cleaned := goquery.CloneDocument(doc)

	for _, tag := range noiseTags {
		cleaned.Find(tag).Remove()
	}

	var drop []*goquery.Selection
	cleaned.Find("[class]").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		class = strings.ToLower(class)
		for _, kw := range noiseClassKeywords {
			if strings.Contains(class, kw) {
				drop = append(drop, s)
				return
			}
		}
	})
	for _, s := range drop {
		s.Remove()
	}
	return cleaned
}
