package classify

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultPreviewChars is the length of the text snippet compared when two
// pages share a title but differ in path depth.
const DefaultPreviewChars = 500

// Preview extracts a whitespace-normalised text snippet from parsed HTML,
// truncated to limit runes. Script and style contents are removed first so
// build hashes and inline CSS cannot separate otherwise identical pages.
// Pages whose leading text matches are considered the same content.
func Preview(doc *goquery.Document, limit int) string {
	if limit <= 0 {
		limit = DefaultPreviewChars
	}
	cleaned := goquery.CloneDocument(doc)
	cleaned.Find("script, style, noscript").Remove()
	scope := cleaned.Find("body")
	if scope.Length() == 0 {
		scope = cleaned.Selection
	}
	text := strings.Join(strings.Fields(scope.Text()), " ")
	runes := []rune(text)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes)
}
