package crawler

import (
	"github.com/jchilling/TCGweb-health-checker/pkg/types"
)

// pageLedger holds recorded pages in insertion order. Order matters: the
// classifier scans it front to back and the first title match wins, so two
// near-duplicates resolve to whichever page was visited first.
type pageLedger struct {
	order    []string
	records  map[string]types.PageRecord
	previews map[string]string
}

func newPageLedger() *pageLedger {
	return &pageLedger{
		records:  make(map[string]types.PageRecord),
		previews: make(map[string]string),
	}
}

func (l *pageLedger) Get(url string) (types.PageRecord, bool) {
	rec, ok := l.records[url]
	return rec, ok
}

func (l *pageLedger) Walk(fn func(url string, rec types.PageRecord) bool) {
	for _, u := range l.order {
		if !fn(u, l.records[u]) {
			return
		}
	}
}

// Put records a page. Records are written once; a second Put for the same URL
// is ignored so the first visit stays canonical.
func (l *pageLedger) Put(url string, rec types.PageRecord, preview string) {
	if _, ok := l.records[url]; ok {
		return
	}
	l.order = append(l.order, url)
	l.records[url] = rec
	if preview != "" {
		l.previews[url] = preview
	}
}

// Preview returns the stored content snippet for a recorded page.
func (l *pageLedger) Preview(url string, _ types.PageRecord) (string, bool) {
	s, ok := l.previews[url]
	return s, ok
}

func (l *pageLedger) Len() int { return len(l.order) }

// Entries returns the recorded pages in insertion order.
func (l *pageLedger) Entries() []types.PageEntry {
	out := make([]types.PageEntry, 0, len(l.order))
	for _, u := range l.order {
		out = append(out, types.PageEntry{URL: u, Record: l.records[u]})
	}
	return out
}

// externalLedger memoizes external link checks for one site crawl. Each URL
// is checked once; the source is the first page seen referencing it.
type externalLedger struct {
	order   []string
	records map[string]types.ExternalLink
}

func newExternalLedger() *externalLedger {
	return &externalLedger{records: make(map[string]types.ExternalLink)}
}

func (l *externalLedger) Has(url string) bool {
	_, ok := l.records[url]
	return ok
}

func (l *externalLedger) Put(url string, rec types.ExternalLink) {
	if _, ok := l.records[url]; ok {
		return
	}
	l.order = append(l.order, url)
	l.records[url] = rec
}

func (l *externalLedger) Len() int { return len(l.order) }

// Entries returns the checked links in insertion order.
func (l *externalLedger) Entries() []types.ExternalEntry {
	out := make([]types.ExternalEntry, 0, len(l.order))
	for _, u := range l.order {
		out = append(out, types.ExternalEntry{URL: u, Record: l.records[u]})
	}
	return out
}
