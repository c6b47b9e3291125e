// Package dates infers a page's last-updated date from unstructured HTML.
//
// Institutional pages rarely expose machine-readable freshness metadata, so
// the extractor scans visible prose against two ordered pattern tiers: dates
// adjacent to explicit update vocabulary, then bare numeric dates guarded
// against version numbers and ID runs. Matches are normalised to YYYY-MM-DD
// (with Minguo calendar conversion) and reduced to a single best guess.
package dates

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/jchilling/TCGweb-health-checker/pkg/types"
)

// Options configures an Extractor.
type Options struct {
	Logger *slog.Logger
	// Clock supplies "today" for best-date selection; defaults to time.Now.
	Clock func() time.Time
}

// Extractor scans rendered pages for last-updated dates.
type Extractor struct {
	logger *slog.Logger
	clock  func() time.Time
}

// New constructs an extractor from options.
func New(opts Options) *Extractor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Extractor{logger: logger, clock: clock}
}

// Structured metadata fields consulted when only generic-tier matches were
// found on the page body.
var metaDateFields = []string{
	"og:article:modified_time", "og:modified_time", "article:modified_time",
	"og:article:published_time", "og:published_time", "article:published_time",
	"DC.date.modified", "dcterms.modified", "DC.Date", "dcterms.created",
	"DC.Coverage.t.min", "DC.Coverage.t.max",
}

// ExtractLastUpdated returns the page's best-guess last-updated date as
// YYYY-MM-DD, or the no-date sentinel when nothing usable is found.
func (e *Extractor) ExtractLastUpdated(doc *goquery.Document) string {
	cleaned := StripNoise(doc)

	scope := cleaned.Find("body")
	var root *goquery.Selection
	if scope.Length() > 0 {
		root = scope
	} else {
		root = cleaned.Selection
	}

	found, usedGeneric := e.scanScope(root)

	// Keyword-tier matches anywhere on the page suppress metadata lookups;
	// structured fields only backstop the weaker generic tier.
	if usedGeneric {
		for _, date := range metaDates(doc) {
			if !contains(found, date) {
				e.logger.Debug("date from metadata", "date", date)
				found = append(found, date)
			}
		}
	}

	return SelectBest(found, e.clock())
}

// scanScope collects normalised date candidates from every text node in the
// selection. Keyword-tier matches win outright: generic-tier results are used
// only when no keyword match exists anywhere in the scope.
func (e *Extractor) scanScope(scope *goquery.Selection) (found []string, usedGeneric bool) {
	var keyword, generic []string

	for _, node := range scope.Nodes {
		walkText(node, func(text string) {
			keyword = append(keyword, findDates(keywordPatterns, text)...)
			generic = append(generic, findDates(genericPatterns, text)...)
		})
	}

	source := keyword
	if len(keyword) == 0 {
		source = generic
		usedGeneric = true
	}
	for _, date := range source {
		if !contains(found, date) {
			e.logger.Debug("date candidate", "date", date, "tier", tierName(usedGeneric))
			found = append(found, date)
		}
	}
	return found, usedGeneric
}

func tierName(generic bool) string {
	if generic {
		return "generic"
	}
	return "keyword"
}

func walkText(n *html.Node, fn func(text string)) {
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			fn(text)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, fn)
	}
}

// metaDates reads structured modified/published fields from the document
// head, parsing up to the first three dash-separated numeric segments.
func metaDates(doc *goquery.Document) []string {
	var out []string
	for _, field := range metaDateFields {
		sel := doc.Find(`meta[property="` + field + `"]`)
		if sel.Length() == 0 {
			sel = doc.Find(`meta[name="` + field + `"]`)
		}
		content, ok := sel.First().Attr("content")
		if !ok {
			continue
		}
		content = strings.TrimSpace(content)
		parts := strings.Split(content, "-")
		if len(parts) < 2 {
			continue
		}
		if len(parts[0]) != 4 || !allDigits(parts[0]) || !allDigits(parts[1]) {
			continue
		}
		if len(parts) > 3 {
			parts = parts[:3]
		}
		if date, ok := Normalize(parts); ok && !contains(out, date) {
			out = append(out, date)
		}
	}
	return out
}

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// SelectBest reduces accumulated candidates to one date. Future-or-today
// candidates are discarded; the most recent of the remainder wins. When every
// candidate is in the future the one closest to today is kept rather than
// reporting no date, since a lone scheduled-publish stamp still beats nothing.
func SelectBest(candidates []string, today time.Time) string {
	if len(candidates) == 0 {
		return types.NoDate
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	var valid []string
	var closest string
	closestDiff := -1

	for _, cand := range candidates {
		if !isoDate.MatchString(cand) {
			continue
		}
		parsed, err := time.Parse("2006-01-02", cand)
		if err != nil {
			continue
		}
		diff := int(parsed.Sub(day).Hours() / 24)
		if diff < 0 {
			diff = -diff
		}
		if closestDiff < 0 || diff < closestDiff {
			closestDiff = diff
			closest = cand
		}
		if !parsed.Before(day) {
			continue
		}
		valid = append(valid, cand)
	}

	if len(valid) == 0 {
		if closest != "" {
			return closest
		}
		return types.NoDate
	}

	best := valid[0]
	for _, v := range valid[1:] {
		if v > best {
			best = v
		}
	}
	return best
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
