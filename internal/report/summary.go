// Package report turns crawl ledgers into the audit deliverables: the
// per-site summary JSON, the cross-site Excel workbook, and the problem-link
// CSV files.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jchilling/TCGweb-health-checker/pkg/types"
)

// Summary is the per-site output document. Entry order is meaningful and
// preserved through marshalling.
type Summary struct {
	Pages         []types.PageEntry
	ExternalLinks []types.ExternalEntry
}

// NewSummary sorts the ledgers into presentation order: pages by date
// descending, then unparsable dates, then no-date, then crawl failures;
// external links by status class, then URL.
func NewSummary(pages []types.PageEntry, externals []types.ExternalEntry) *Summary {
	sortedPages := make([]types.PageEntry, len(pages))
	copy(sortedPages, pages)
	sort.SliceStable(sortedPages, func(i, j int) bool {
		return pageLess(sortedPages[i].Record, sortedPages[j].Record)
	})

	sortedExternals := make([]types.ExternalEntry, len(externals))
	copy(sortedExternals, externals)
	sort.SliceStable(sortedExternals, func(i, j int) bool {
		a, b := sortedExternals[i], sortedExternals[j]
		ca, cb := statusClass(a.Record.Status), statusClass(b.Record.Status)
		if ca != cb {
			return ca < cb
		}
		return a.URL < b.URL
	})

	return &Summary{Pages: sortedPages, ExternalLinks: sortedExternals}
}

// Page ordering buckets. Lower sorts first.
const (
	bucketDated = iota
	bucketUnparsable
	bucketNoDate
	bucketFailed
)

func pageBucket(rec types.PageRecord) (int, time.Time) {
	switch rec.LastUpdated {
	case types.CrawlFailed:
		return bucketFailed, time.Time{}
	case types.NoDate:
		return bucketNoDate, time.Time{}
	}
	parsed, err := time.Parse("2006-01-02", rec.LastUpdated)
	if err != nil {
		return bucketUnparsable, time.Time{}
	}
	return bucketDated, parsed
}

func pageLess(a, b types.PageRecord) bool {
	ba, ta := pageBucket(a)
	bb, tb := pageBucket(b)
	if ba != bb {
		return ba < bb
	}
	if ba == bucketDated {
		return ta.After(tb)
	}
	return false
}

// statusClass ranks statuses for presentation: 2xx, 3xx, 4xx, 5xx, then
// unreachable.
func statusClass(status int) int {
	switch {
	case status >= 200 && status < 300:
		return 0
	case status >= 300 && status < 400:
		return 1
	case status >= 400 && status < 500:
		return 2
	case status >= 500 && status < 600:
		return 3
	default:
		return 4
	}
}

// MarshalJSON emits {"page_summary": {...}, "external_links": {...}} with
// object keys in slice order. encoding/json maps would reorder keys, so the
// objects are assembled by hand.
func (s *Summary) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"page_summary":`)
	if err := writeOrderedObject(&buf, len(s.Pages), func(i int) (string, any) {
		return s.Pages[i].URL, s.Pages[i].Record
	}); err != nil {
		return nil, err
	}
	buf.WriteString(`,"external_links":`)
	if err := writeOrderedObject(&buf, len(s.ExternalLinks), func(i int) (string, any) {
		return s.ExternalLinks[i].URL, s.ExternalLinks[i].Record
	}); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeOrderedObject(buf *bytes.Buffer, n int, at func(int) (string, any)) error {
	buf.WriteByte('{')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, value := at(i)
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valueJSON, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(valueJSON)
	}
	buf.WriteByte('}')
	return nil
}

// WriteFile writes the summary as indented JSON.
func (s *Summary) WriteFile(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create summary directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
