package classify

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/jchilling/TCGweb-health-checker/pkg/types"
)

type memLedger struct {
	order   []string
	records map[string]types.PageRecord
}

func newMemLedger() *memLedger {
	return &memLedger{records: make(map[string]types.PageRecord)}
}

func (l *memLedger) add(url, title string) {
	if _, ok := l.records[url]; !ok {
		l.order = append(l.order, url)
	}
	l.records[url] = types.PageRecord{Title: title}
}

func (l *memLedger) Get(url string) (types.PageRecord, bool) {
	rec, ok := l.records[url]
	return rec, ok
}

func (l *memLedger) Walk(fn func(url string, rec types.PageRecord) bool) {
	for _, u := range l.order {
		if !fn(u, l.records[u]) {
			return
		}
	}
}

type memPreviews map[string]string

func (m memPreviews) Preview(url string, _ types.PageRecord) (string, bool) {
	s, ok := m[url]
	return s, ok
}

func TestClassifyNewPage(t *testing.T) {
	ledger := newMemLedger()
	ledger.add("https://example.org/about", "About")

	c := NewClassifier(Options{PaginationEnabled: true}, nil)
	res := c.Classify("https://example.org/news", "News", "", ledger)
	if res.Outcome != New {
		t.Fatalf("outcome = %v, want new", res.Outcome)
	}
}

func TestClassifyExactURLHit(t *testing.T) {
	ledger := newMemLedger()
	ledger.add("https://example.org/news", "News")

	c := NewClassifier(Options{PaginationEnabled: true}, nil)
	res := c.Classify("https://example.org/news", "Other title", "", ledger)
	if res.Outcome != ExactDuplicate {
		t.Fatalf("outcome = %v, want exact_duplicate", res.Outcome)
	}
	if res.Existing != "https://example.org/news" {
		t.Fatalf("existing = %q", res.Existing)
	}
}

func TestClassifyPaginationVariant(t *testing.T) {
	ledger := newMemLedger()
	ledger.add("https://example.org/news/list", "News list")

	c := NewClassifier(Options{PaginationEnabled: true}, nil)
	res := c.Classify("https://example.org/news/list?page=2", "News list", "", ledger)
	if res.Outcome != PaginationVariant {
		t.Fatalf("outcome = %v, want pagination_variant", res.Outcome)
	}
	if res.Existing != "https://example.org/news/list" {
		t.Fatalf("existing = %q", res.Existing)
	}
}

func TestClassifyPaginationDisabledBecomesDuplicate(t *testing.T) {
	ledger := newMemLedger()
	ledger.add("https://example.org/news/list", "News list")

	c := NewClassifier(Options{PaginationEnabled: false}, nil)
	res := c.Classify("https://example.org/news/list?page=3", "News list", "", ledger)
	if res.Outcome != ExactDuplicate {
		t.Fatalf("outcome = %v, want exact_duplicate", res.Outcome)
	}
}

func TestClassifyPaginationParamNames(t *testing.T) {
	ledger := newMemLedger()
	ledger.add("https://example.org/items", "Items")

	c := NewClassifier(Options{PaginationEnabled: true}, nil)
	for _, q := range []string{"page=1", "pageSize=20", "offset=40", "limit=10", "start=5", "count=10", "p=2", "pn=3"} {
		res := c.Classify("https://example.org/items?"+q, "Items", "", ledger)
		if res.Outcome != PaginationVariant {
			t.Errorf("query %q: outcome = %v, want pagination_variant", q, res.Outcome)
		}
	}
	res := c.Classify("https://example.org/items?lang=en", "Items", "", ledger)
	if res.Outcome != Distinct {
		t.Errorf("non-pagination query: outcome = %v, want distinct", res.Outcome)
	}
}

func TestClassifySameTitleSameSegmentsDistinct(t *testing.T) {
	ledger := newMemLedger()
	ledger.add("https://example.org/a/page1", "Notices")

	c := NewClassifier(Options{PaginationEnabled: true}, nil)
	res := c.Classify("https://example.org/b/page2", "Notices", "", ledger)
	if res.Outcome != Distinct {
		t.Fatalf("outcome = %v, want distinct", res.Outcome)
	}
}

func TestClassifySegmentMismatchContentMatch(t *testing.T) {
	ledger := newMemLedger()
	ledger.add("https://example.org/", "Home")
	previews := memPreviews{"https://example.org/": "welcome to the town office"}

	c := NewClassifier(Options{PaginationEnabled: true, CompareContent: true}, previews)
	res := c.Classify("https://example.org/index.html", "Home", "welcome to the town office", ledger)
	if res.Outcome != ExactDuplicate {
		t.Fatalf("outcome = %v, want exact_duplicate", res.Outcome)
	}

	res = c.Classify("https://example.org/index.html", "Home", "entirely different text", ledger)
	if res.Outcome != Distinct {
		t.Fatalf("outcome = %v, want distinct", res.Outcome)
	}
}

func TestClassifySegmentMismatchNoCompareIsDuplicate(t *testing.T) {
	ledger := newMemLedger()
	ledger.add("https://example.org/", "Home")

	c := NewClassifier(Options{PaginationEnabled: true, CompareContent: false}, nil)
	res := c.Classify("https://example.org/index.html", "Home", "", ledger)
	if res.Outcome != ExactDuplicate {
		t.Fatalf("outcome = %v, want exact_duplicate", res.Outcome)
	}
}

func TestClassifyFirstTitleMatchWins(t *testing.T) {
	ledger := newMemLedger()
	ledger.add("https://example.org/list", "List")
	ledger.add("https://example.org/other/list", "List")

	c := NewClassifier(Options{PaginationEnabled: true}, nil)
	res := c.Classify("https://example.org/list?page=2", "List", "", ledger)
	if res.Outcome != PaginationVariant {
		t.Fatalf("outcome = %v, want pagination_variant", res.Outcome)
	}
	if res.Existing != "https://example.org/list" {
		t.Fatalf("existing = %q, want first recorded match", res.Existing)
	}
}

func TestPreviewNormalisesAndTruncates(t *testing.T) {
	html := `<html><body><p>  Hello   world  </p><p>again</p></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := Preview(doc, 0)
	if got != "Hello world again" {
		t.Fatalf("preview = %q", got)
	}
	if got := Preview(doc, 5); got != "Hello" {
		t.Fatalf("truncated preview = %q", got)
	}
}

func TestPreviewIgnoresScriptAndStyle(t *testing.T) {
	a := `<html><body><script>var build="a1";</script><style>.x{color:red}</style><p>Welcome to the site</p></body></html>`
	b := `<html><body><script>var build="b2";</script><p>Welcome to the site</p></body></html>`
	docA, err := goquery.NewDocumentFromReader(strings.NewReader(a))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	docB, err := goquery.NewDocumentFromReader(strings.NewReader(b))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pa, pb := Preview(docA, 0), Preview(docB, 0)
	if pa != "Welcome to the site" {
		t.Fatalf("preview = %q", pa)
	}
	if pa != pb {
		t.Fatalf("previews differ: %q vs %q", pa, pb)
	}
	if docA.Find("script").Length() != 1 {
		t.Error("original document must not be mutated")
	}
}
