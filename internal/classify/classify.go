// Package classify decides whether a freshly fetched page is new content or a
// duplicate/pagination variant of something already in the crawl ledger.
//
// Sites expose the same logical page under multiple URLs (trailing slash,
// default index, session tokens) and expose paginated listings whose links
// must still be harvested without re-recording near-identical pages.
package classify

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/jchilling/TCGweb-health-checker/pkg/types"
)

// Outcome is the classification of a candidate page against the ledger.
type Outcome int

const (
	// New: no recorded page shares the candidate's URL or title.
	New Outcome = iota
	// ExactDuplicate: the page must not be recorded or expanded.
	ExactDuplicate
	// PaginationVariant: links are harvested but the page is not recorded.
	PaginationVariant
	// Distinct: a title collision that is nevertheless separate content.
	Distinct
)

func (o Outcome) String() string {
	switch o {
	case New:
		return "new"
	case ExactDuplicate:
		return "exact_duplicate"
	case PaginationVariant:
		return "pagination_variant"
	case Distinct:
		return "distinct"
	default:
		return "unknown"
	}
}

// Query parameter names that signal a paginated listing.
var paginationParams = map[string]struct{}{
	"page": {}, "pagesize": {}, "offset": {}, "limit": {},
	"start": {}, "count": {}, "p": {}, "pn": {},
}

// Ledger is the read view the classifier needs over recorded pages.
// Walk must iterate records in insertion order; the classifier stops scanning
// on the first decisive title match, so order determines tie-breaks.
type Ledger interface {
	Get(url string) (types.PageRecord, bool)
	Walk(fn func(url string, rec types.PageRecord) bool)
}

// PreviewLoader returns the normalised text snippet of a previously recorded
// page, for content comparison. ok is false when no stored content exists.
type PreviewLoader interface {
	Preview(url string, rec types.PageRecord) (snippet string, ok bool)
}

// Options tunes classifier policy.
type Options struct {
	// PaginationEnabled harvests pagination variants; when false they
	// degrade to duplicate-skip.
	PaginationEnabled bool
	// CompareContent enables snippet comparison for same-title pages whose
	// path segment counts differ. Without it the classifier conservatively
	// treats them as duplicates.
	CompareContent bool
	Logger         *slog.Logger
}

// Classifier applies the duplicate/pagination rules.
type Classifier struct {
	opts   Options
	loader PreviewLoader
	logger *slog.Logger
}

// NewClassifier constructs a classifier. loader may be nil when content
// comparison is disabled or unavailable.
func NewClassifier(opts Options, loader PreviewLoader) *Classifier {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{opts: opts, loader: loader, logger: logger}
}

// Result carries the outcome and, for duplicates, the recorded URL that won.
type Result struct {
	Outcome  Outcome
	Existing string
}

// Classify decides how the candidate page relates to the ledger. candidateURL
// must be the post-redirect URL; snippet is the candidate's normalised text
// preview (used only when content comparison applies).
func (c *Classifier) Classify(candidateURL, title, snippet string, ledger Ledger) Result {
	if _, ok := ledger.Get(candidateURL); ok {
		return Result{Outcome: ExactDuplicate, Existing: candidateURL}
	}

	candidateSegments := pathSegmentCount(candidateURL)
	result := Result{Outcome: New}

	ledger.Walk(func(existingURL string, rec types.PageRecord) bool {
		if rec.Title != title {
			return true
		}

		if pathSegmentCount(existingURL) == candidateSegments {
			if hasPaginationParams(candidateURL) {
				if c.opts.PaginationEnabled {
					c.logger.Debug("pagination variant",
						"url", candidateURL, "existing", existingURL, "title", title)
					result = Result{Outcome: PaginationVariant, Existing: existingURL}
				} else {
					c.logger.Debug("pagination detected but disabled, treating as duplicate",
						"url", candidateURL, "existing", existingURL,
						"marker", types.MarkerSkippedPagination)
					result = Result{Outcome: ExactDuplicate, Existing: existingURL}
				}
				return false
			}
			// Same title, same segment depth, no pagination signal:
			// legitimately separate content. Stop scanning.
			c.logger.Debug("same title treated as separate page",
				"url", candidateURL, "existing", existingURL)
			result = Result{Outcome: Distinct}
			return false
		}

		if c.opts.CompareContent && c.loader != nil {
			if existing, ok := c.loader.Preview(existingURL, rec); ok {
				if existing == snippet {
					result = Result{Outcome: ExactDuplicate, Existing: existingURL}
					return false
				}
				c.logger.Debug("same title, different segments, content differs",
					"url", candidateURL, "existing", existingURL)
				result = Result{Outcome: Distinct}
				return false
			}
		}
		// Content comparison unavailable: default conservatively to
		// duplicate. Tunable policy, not a correctness requirement.
		result = Result{Outcome: ExactDuplicate, Existing: existingURL}
		return false
	})

	return result
}

func pathSegmentCount(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	count := 0
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			count++
		}
	}
	return count
}

func hasPaginationParams(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return false
	}
	for key := range u.Query() {
		if _, ok := paginationParams[strings.ToLower(key)]; ok {
			return true
		}
	}
	return false
}
