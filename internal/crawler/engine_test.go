package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jchilling/TCGweb-health-checker/internal/config"
	"github.com/jchilling/TCGweb-health-checker/internal/fetcher"
	"github.com/jchilling/TCGweb-health-checker/internal/linkcheck"
	"github.com/jchilling/TCGweb-health-checker/pkg/types"
)

const site = "http://example.test"

type stubPage struct {
	status   int
	finalURL string
	body     string
	err      error
}

type stubFetcher struct {
	pages map[string]stubPage
	calls []string
}

func (f *stubFetcher) Navigate(_ context.Context, rawURL string) (*fetcher.Visit, error) {
	f.calls = append(f.calls, rawURL)
	p, ok := f.pages[rawURL]
	if !ok {
		return nil, errors.New("connection refused")
	}
	if p.err != nil {
		return nil, p.err
	}
	final := p.finalURL
	if final == "" {
		final = rawURL
	}
	status := p.status
	if status == 0 {
		status = http.StatusOK
	}
	return &fetcher.Visit{
		URL:         rawURL,
		FinalURL:    final,
		StatusCode:  status,
		ContentType: "text/html",
		Body:        []byte(p.body),
	}, nil
}

func (f *stubFetcher) called(rawURL string) bool {
	for _, c := range f.calls {
		if c == rawURL {
			return true
		}
	}
	return false
}

func page(title string, body string) string {
	return "<html><head><title>" + title + "</title></head><body>" + body + "</body></html>"
}

func testEngine(t *testing.T, f fetcher.Fetcher, mutate func(*config.Config)) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Output.SaveHTML = false
	if mutate != nil {
		mutate(&cfg)
	}
	return New(Options{
		Config:  cfg,
		Fetcher: f,
		Clock:   func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) },
	})
}

func findPage(t *testing.T, report *Report, url string) types.PageRecord {
	t.Helper()
	for _, entry := range report.Pages {
		if entry.URL == url {
			return entry.Record
		}
	}
	t.Fatalf("page %s not in ledger (have %v)", url, pageURLs(report))
	return types.PageRecord{}
}

func hasPage(report *Report, url string) bool {
	for _, entry := range report.Pages {
		if entry.URL == url {
			return true
		}
	}
	return false
}

func pageURLs(report *Report) []string {
	urls := make([]string, 0, len(report.Pages))
	for _, entry := range report.Pages {
		urls = append(urls, entry.URL)
	}
	return urls
}

func TestCrawlBreadthFirstWithDepthBound(t *testing.T) {
	f := &stubFetcher{pages: map[string]stubPage{
		site + "/":  {body: page("Home", `<a href="/a">A</a><a href="/b">B</a>`)},
		site + "/a": {body: page("Page A", `<a href="/c">C</a>`)},
		site + "/b": {body: page("Page B", ``)},
		site + "/c": {body: page("Page C", ``)},
	}}
	e := testEngine(t, f, nil)

	report, err := e.CrawlSite(context.Background(), site+"/", 1)
	if err != nil {
		t.Fatal(err)
	}

	wantOrder := []string{site + "/", site + "/a", site + "/b"}
	if len(f.calls) != len(wantOrder) {
		t.Fatalf("calls = %v, want %v", f.calls, wantOrder)
	}
	for i, want := range wantOrder {
		if f.calls[i] != want {
			t.Fatalf("call %d = %s, want %s", i, f.calls[i], want)
		}
	}
	// /a sits at depth == maxDepth: visited, but its children never enqueue.
	if f.called(site + "/c") {
		t.Fatal("child beyond max depth was visited")
	}

	if len(report.Pages) != 3 {
		t.Fatalf("recorded %d pages, want 3: %v", len(report.Pages), pageURLs(report))
	}
	if got := findPage(t, report, site+"/a").Depth; got != 1 {
		t.Fatalf("depth of /a = %d, want 1", got)
	}
	if src := findPage(t, report, site+"/a").Source; src == nil || src.URL != site+"/" {
		t.Fatalf("source of /a = %+v, want homepage", src)
	}
	if len(report.Statuses) != 3 {
		t.Fatalf("statuses = %v, want 3 entries", report.Statuses)
	}
}

func TestCrawlRedirectDuplicateNotRecorded(t *testing.T) {
	f := &stubFetcher{pages: map[string]stubPage{
		site + "/":      {body: page("Home", `<a href="/a">A</a><a href="/alias">alias</a>`)},
		site + "/a":     {body: page("Page A", ``)},
		site + "/alias": {finalURL: site + "/a", body: page("Page A", ``)},
	}}
	e := testEngine(t, f, nil)

	report, err := e.CrawlSite(context.Background(), site+"/", 1)
	if err != nil {
		t.Fatal(err)
	}

	if len(report.Pages) != 2 {
		t.Fatalf("recorded %d pages, want 2: %v", len(report.Pages), pageURLs(report))
	}
	// Duplicate statuses stay out of the tally.
	if len(report.Statuses) != 2 {
		t.Fatalf("statuses = %v, want 2 entries", report.Statuses)
	}
}

func TestCrawlPaginationKeepsDepthAndParent(t *testing.T) {
	f := &stubFetcher{pages: map[string]stubPage{
		site + "/":            {body: page("Home", `<a href="/list">list</a>`)},
		site + "/list":        {body: page("News List", `<a href="/list?page=2">next</a><a href="/item1">1</a>`)},
		site + "/list?page=2": {body: page("News List", `<a href="/item2">2</a>`)},
		site + "/item1":       {body: page("Item 1", ``)},
		site + "/item2":       {body: page("Item 2", ``)},
	}}
	e := testEngine(t, f, nil)

	report, err := e.CrawlSite(context.Background(), site+"/", 2)
	if err != nil {
		t.Fatal(err)
	}

	if hasPage(report, site+"/list?page=2") {
		t.Fatal("pagination variant was recorded")
	}
	item2 := findPage(t, report, site+"/item2")
	if item2.Depth != 2 {
		t.Fatalf("item2 depth = %d, want seeding depth 2", item2.Depth)
	}
	if item2.Source == nil || item2.Source.URL != site+"/list" {
		t.Fatalf("item2 source = %+v, want /list", item2.Source)
	}
}

func TestCrawlSkipsNonHTMLResources(t *testing.T) {
	f := &stubFetcher{pages: map[string]stubPage{
		site + "/": {body: page("Home", `<a href="/report.pdf">report</a>`)},
	}}
	e := testEngine(t, f, nil)

	report, err := e.CrawlSite(context.Background(), site+"/", 1)
	if err != nil {
		t.Fatal(err)
	}

	if f.called(site + "/report.pdf") {
		t.Fatal("skipped resource was fetched")
	}
	rec := findPage(t, report, site+"/report.pdf")
	if rec.SavedPath != types.MarkerSkippedFile {
		t.Fatalf("saved path = %q, want skip marker", rec.SavedPath)
	}
	if rec.Status != 200 {
		t.Fatalf("status = %d, want 200", rec.Status)
	}
	if rec.Title != "report.pdf" {
		t.Fatalf("title = %q", rec.Title)
	}
}

func TestCrawlRecordsNavigationFailure(t *testing.T) {
	f := &stubFetcher{pages: map[string]stubPage{
		site + "/": {body: page("Home", `<a href="/broken">broken</a>`)},
	}}
	e := testEngine(t, f, nil)

	report, err := e.CrawlSite(context.Background(), site+"/", 1)
	if err != nil {
		t.Fatal(err)
	}

	rec := findPage(t, report, site+"/broken")
	if rec.LastUpdated != types.CrawlFailed {
		t.Fatalf("date = %q, want failure sentinel", rec.LastUpdated)
	}
	if rec.Title != "" || rec.Status != 0 {
		t.Fatalf("failure record = %+v", rec)
	}
	// The https upgrade was attempted before giving up.
	if !f.called("https://example.test/broken") {
		t.Fatal("no https retry before recording failure")
	}
}

func TestCrawlUpgradesSchemeOnFailure(t *testing.T) {
	f := &stubFetcher{pages: map[string]stubPage{
		site + "/":                {body: page("Home", `<a href="/up">up</a>`)},
		"https://example.test/up": {body: page("Upgraded", ``)},
	}}
	e := testEngine(t, f, nil)

	report, err := e.CrawlSite(context.Background(), site+"/", 1)
	if err != nil {
		t.Fatal(err)
	}

	rec := findPage(t, report, "https://example.test/up")
	if rec.Status != 200 || rec.Title != "Upgraded" {
		t.Fatalf("upgraded record = %+v", rec)
	}
}

func TestCrawlFramesetExpandsFrames(t *testing.T) {
	f := &stubFetcher{pages: map[string]stubPage{
		site + "/":     {body: `<html><head><title>Frames</title></head><frameset><frame src="/menu"><frame src="/body"></frameset></html>`},
		site + "/menu": {body: page("Menu", ``)},
		site + "/body": {body: page("Body", ``)},
	}}
	e := testEngine(t, f, nil)

	report, err := e.CrawlSite(context.Background(), site+"/", 1)
	if err != nil {
		t.Fatal(err)
	}

	container := findPage(t, report, site+"/")
	if container.SavedPath != types.MarkerFramesetContainer {
		t.Fatalf("container saved path = %q", container.SavedPath)
	}
	// Frames are transparent: they inherit the frameset's depth.
	menu := findPage(t, report, site+"/menu")
	if menu.Depth != 0 {
		t.Fatalf("frame depth = %d, want 0", menu.Depth)
	}
	if menu.Source == nil || menu.Source.URL != site+"/" {
		t.Fatalf("frame source = %+v", menu.Source)
	}
}

func TestCrawlSeedsFromSitemapMainContent(t *testing.T) {
	f := &stubFetcher{pages: map[string]stubPage{
		site + "/": {body: page("Home", `<a href="/guide">網站導覽</a><a href="/unrelated">x</a>`)},
		site + "/guide": {body: page("Site Map",
			`<main><a href="/x">X</a><a href="/y">Y</a></main><footer><a href="/footer-link">f</a></footer>`)},
		site + "/x": {body: page("X", ``)},
		site + "/y": {body: page("Y", ``)},
	}}
	e := testEngine(t, f, nil)

	report, err := e.CrawlSite(context.Background(), site+"/", 1)
	if err != nil {
		t.Fatal(err)
	}

	// The site map is recorded as a second top-level page.
	if got := findPage(t, report, site+"/guide").Depth; got != 0 {
		t.Fatalf("site map depth = %d, want 0", got)
	}
	// Frontier comes from the site map's main content, parented to home.
	x := findPage(t, report, site+"/x")
	if x.Depth != 1 || x.Source == nil || x.Source.URL != site+"/" {
		t.Fatalf("seeded record = %+v", x)
	}
	if hasPage(report, site+"/unrelated") || hasPage(report, site+"/footer-link") {
		t.Fatal("links outside the site map main content were seeded")
	}
}

func TestCrawlExternalLinksCheckedOnce(t *testing.T) {
	var headHits int
	ext := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			headHits++
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ext.Close()

	extLink := ext.URL + "/resource"
	f := &stubFetcher{pages: map[string]stubPage{
		site + "/":  {body: page("Home", `<a href="/a">A</a><a href="`+extLink+`">ext</a>`)},
		site + "/a": {body: page("Page A", `<a href="`+extLink+`">ext again</a>`)},
	}}

	checker := linkcheck.New(config.LinkCheckConfig{}, "checker", linkcheck.Options{})
	cfg := config.Default()
	cfg.Output.SaveHTML = false
	e := New(Options{Config: cfg, Fetcher: f, Checker: checker})

	report, err := e.CrawlSite(context.Background(), site+"/", 1)
	if err != nil {
		t.Fatal(err)
	}

	if headHits != 1 {
		t.Fatalf("external link probed %d times, want 1", headHits)
	}
	if len(report.ExternalLinks) != 1 {
		t.Fatalf("external ledger = %+v", report.ExternalLinks)
	}
	entry := report.ExternalLinks[0]
	if entry.URL != extLink || entry.Record.Status != http.StatusOK {
		t.Fatalf("external entry = %+v", entry)
	}
	if entry.Record.Source.URL != site+"/" {
		t.Fatalf("external source = %+v, want first referencing page", entry.Record.Source)
	}
}
