package types

// Sentinel values recorded in place of a real last-updated date.
const (
	NoDate      = "[no date]"
	CrawlFailed = "[crawl failed]"
)

// Body markers the controller emits for pages that produced no saved content.
// Downstream consumers use them to distinguish "no file exists for this record".
const (
	MarkerSkippedFile       = "[skipped file]"
	MarkerFramesetContainer = "[frameset container]"
	MarkerSkippedDuplicate  = "[skipped duplicate]"
	MarkerSkippedPagination = "[skipped pagination]"
	MarkerListPagination    = "[list pagination]"
	MarkerNotSaved          = "[not saved]"
)

// PageRef identifies the page that first referenced a URL.
type PageRef struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// PageRecord is the per-page ledger entry, keyed by the post-redirect URL.
// Records are immutable once written to the ledger.
type PageRecord struct {
	Title       string   `json:"title"`
	LastUpdated string   `json:"last_updated"`
	SavedPath   string   `json:"filepath"`
	Status      int      `json:"status"`
	Depth       int      `json:"depth"`
	Source      *PageRef `json:"source_page"`
}

// ExternalLink records the reachability status of one off-site URL.
// Source names the first page observed to reference the link.
type ExternalLink struct {
	Status int     `json:"status"`
	Source PageRef `json:"source_page"`
}

// FrontierEntry is a unit of pending crawl work. Entries at the same depth
// are processed in insertion order.
type FrontierEntry struct {
	URL    string
	Parent string
	Depth  int
}

// SiteResult aggregates the outcome of one full site crawl.
type SiteResult struct {
	SiteName      string
	SiteURL       string
	Statuses      []int
	Pages         []PageEntry
	ExternalLinks []ExternalEntry
	Duration      string
}

// PageEntry pairs a ledger key with its record, preserving ledger order.
type PageEntry struct {
	URL    string
	Record PageRecord
}

// ExternalEntry pairs an external URL with its reachability record.
type ExternalEntry struct {
	URL    string
	Record ExternalLink
}
