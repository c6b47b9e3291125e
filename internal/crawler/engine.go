// Package crawler implements the breadth-first site traversal: it owns the
// frontier, the visited set, and the page and external-link ledgers for one
// site crawl, and folds per-page results into audit records.
package crawler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jchilling/TCGweb-health-checker/internal/classify"
	"github.com/jchilling/TCGweb-health-checker/internal/config"
	"github.com/jchilling/TCGweb-health-checker/internal/dates"
	"github.com/jchilling/TCGweb-health-checker/internal/fetcher"
	"github.com/jchilling/TCGweb-health-checker/internal/linkcheck"
	"github.com/jchilling/TCGweb-health-checker/internal/pagestore"
	"github.com/jchilling/TCGweb-health-checker/internal/robots"
	"github.com/jchilling/TCGweb-health-checker/pkg/types"
)

// Options wires an engine's collaborators. Fetcher is required; the rest
// default to no-ops or sensible fallbacks.
type Options struct {
	Config  config.Config
	Fetcher fetcher.Fetcher
	Robots  *robots.Agent
	Checker *linkcheck.Checker
	Store   *pagestore.Store
	Limiter *DomainLimiter
	Dates   *dates.Extractor
	Logger  *slog.Logger
	Clock   func() time.Time
}

// Engine drives one site's crawl. A single engine instance crawls
// sequentially; run independent engines for cross-site parallelism.
type Engine struct {
	cfg     config.Config
	fetcher fetcher.Fetcher
	agent   *robots.Agent
	checker *linkcheck.Checker
	store   *pagestore.Store
	limiter *DomainLimiter
	dates   *dates.Extractor
	logger  *slog.Logger
	clock   func() time.Time
}

// New builds a crawl engine from options.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	extractor := opts.Dates
	if extractor == nil {
		extractor = dates.New(dates.Options{Logger: logger, Clock: clock})
	}
	store := opts.Store
	if store == nil {
		store = pagestore.New("", false)
	}
	return &Engine{
		cfg:     opts.Config,
		fetcher: opts.Fetcher,
		agent:   opts.Robots,
		checker: opts.Checker,
		store:   store,
		limiter: opts.Limiter,
		dates:   extractor,
		logger:  logger,
		clock:   clock,
	}
}

// Report is the outcome of one site crawl: the per-page status tally plus
// the ledgers, both in insertion order.
type Report struct {
	Statuses      []int
	Pages         []types.PageEntry
	ExternalLinks []types.ExternalEntry
}

// crawlState is the mutable context of one crawl, owned by a single
// CrawlSite call and never shared.
type crawlState struct {
	visited    map[string]struct{}
	frontier   []types.FrontierEntry
	pages      *pageLedger
	externals  *externalLedger
	statuses   []int
	classifier *classify.Classifier
	maxDepth   int
}

func (st *crawlState) markVisited(urls ...string) {
	for _, u := range urls {
		if u != "" {
			st.visited[u] = struct{}{}
		}
	}
}

func (st *crawlState) isVisited(u string) bool {
	_, ok := st.visited[u]
	return ok
}

// pageVisit is the transient result of one successful HTML page visit.
type pageVisit struct {
	finalURL string
	base     *url.URL
	title    string
	status   int
	doc      *goquery.Document
	links    discovered
}

// CrawlSite traverses one site breadth-first up to maxDepth and returns the
// accumulated ledgers. maxDepth <= 0 falls back to the configured default.
func (e *Engine) CrawlSite(ctx context.Context, entryURL string, maxDepth int) (*Report, error) {
	parsed, err := url.Parse(strings.TrimSpace(entryURL))
	if err != nil {
		return nil, fmt.Errorf("parse entry url %q: %w", entryURL, err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("entry url %q missing host", entryURL)
	}
	if maxDepth <= 0 {
		maxDepth = e.cfg.Crawl.MaxDepth
	}

	st := &crawlState{
		visited:   make(map[string]struct{}),
		pages:     newPageLedger(),
		externals: newExternalLedger(),
		maxDepth:  maxDepth,
	}
	st.classifier = classify.NewClassifier(classify.Options{
		PaginationEnabled: e.cfg.Crawl.EnablePagination,
		CompareContent:    e.cfg.Crawl.CompareContent,
		Logger:            e.logger,
	}, st.pages)

	entry := parsed.String()
	e.logger.Info("crawl started", "entry", entry, "max_depth", maxDepth)

	// The homepage is always recorded, bypassing duplicate checks against
	// an empty ledger.
	home := e.visitPage(ctx, st, types.FrontierEntry{URL: entry, Depth: 0}, true)
	if home != nil {
		e.seedFrontier(ctx, st, home)
	}

	for len(st.frontier) > 0 {
		if ctx.Err() != nil {
			e.logger.Warn("crawl interrupted", "entry", entry, "error", ctx.Err())
			break
		}
		next := st.frontier[0]
		st.frontier = st.frontier[1:]

		if next.Depth > st.maxDepth {
			continue
		}
		if st.isVisited(next.URL) {
			continue
		}
		e.visitPage(ctx, st, next, false)
	}

	e.logger.Info("crawl finished",
		"entry", entry,
		"pages", st.pages.Len(),
		"external_links", st.externals.Len(),
	)
	return &Report{
		Statuses:      st.statuses,
		Pages:         st.pages.Entries(),
		ExternalLinks: st.externals.Entries(),
	}, nil
}

// seedFrontier picks the initial depth-1 links: the site map's main-content
// links when a site map exists, otherwise the homepage's own links. Either
// way the seeded entries' parent is the homepage.
func (e *Engine) seedFrontier(ctx context.Context, st *crawlState, home *pageVisit) {
	seeds := home.links.internal

	if sitemapURL, ok := findSitemapLink(home.doc, home.base); ok && !st.isVisited(sitemapURL) {
		e.logger.Info("site map located", "url", sitemapURL)
		sm := e.visitPage(ctx, st, types.FrontierEntry{URL: sitemapURL, Parent: home.finalURL, Depth: 0}, true)
		if sm != nil {
			if scope := mainContentScope(sm.doc); scope != nil {
				if links := extractLinks(scope, sm.base).internal; len(links) > 0 {
					seeds = links
				}
			}
		}
	}

	for _, link := range seeds {
		st.frontier = append(st.frontier, types.FrontierEntry{
			URL:    link,
			Parent: home.finalURL,
			Depth:  1,
		})
	}
}

// visitPage processes one frontier entry end to end: fetch, render-mode
// detection, classification, date extraction, recording, link discovery, and
// external-link fan-out. unconditional visits (homepage, site map) skip
// duplicate classification and child enqueueing; the caller seeds instead.
// Returns nil for anything that did not produce a recorded HTML page.
func (e *Engine) visitPage(ctx context.Context, st *crawlState, entry types.FrontierEntry, unconditional bool) *pageVisit {
	st.markVisited(entry.URL)
	logger := e.logger.With("url", entry.URL, "depth", entry.Depth)

	if hasSkippedExtension(entry.URL, e.cfg.Crawl.SkipExtensions) {
		logger.Debug("skipping non-HTML resource")
		st.pages.Put(entry.URL, types.PageRecord{
			Title:       urlBasename(entry.URL),
			LastUpdated: types.NoDate,
			SavedPath:   types.MarkerSkippedFile,
			Status:      200,
			Depth:       entry.Depth,
			Source:      st.sourceRef(entry.Parent),
		}, "")
		st.statuses = append(st.statuses, 200)
		return nil
	}

	if e.agent != nil && !e.agent.Allowed(ctx, entry.URL) {
		logger.Debug("blocked by robots")
		return nil
	}

	if e.limiter != nil {
		if host := hostOf(entry.URL); host != "" {
			if err := e.limiter.Wait(ctx, host); err != nil {
				logger.Warn("domain limiter interrupted", "error", err)
				return nil
			}
		}
	}

	visit, status, err := e.navigate(ctx, entry.URL)
	if err != nil {
		logger.Warn("navigation failed", "status", status, "error", err)
		e.recordFailure(st, entry.URL, status, entry)
		return nil
	}
	defer visit.Close()

	finalURL := visit.FinalURL
	if finalURL == "" {
		finalURL = entry.URL
	}
	st.markVisited(finalURL)

	base, err := url.Parse(finalURL)
	if err != nil {
		logger.Warn("unparsable final url", "final_url", finalURL, "error", err)
		e.recordFailure(st, entry.URL, visit.StatusCode, entry)
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(visit.Body))
	if err != nil {
		logger.Warn("html parse failed", "error", err)
		e.recordFailure(st, finalURL, visit.StatusCode, entry)
		return nil
	}

	detection := detectRenderMode(ctx, visit, doc, base)
	switch detection.Mode {
	case ModeFrameset:
		logger.Info("frameset container", "frames", len(detection.FrameLinks))
		st.pages.Put(finalURL, types.PageRecord{
			Title:       pageTitle(doc),
			LastUpdated: types.NoDate,
			SavedPath:   types.MarkerFramesetContainer,
			Status:      visit.StatusCode,
			Depth:       entry.Depth,
			Source:      st.sourceRef(entry.Parent),
		}, "")
		st.statuses = append(st.statuses, visit.StatusCode)
		// Frames are transparent: their documents are the page's real
		// content, so they inherit the frameset's own depth.
		for _, frame := range detection.FrameLinks {
			st.frontier = append(st.frontier, types.FrontierEntry{
				URL:    frame,
				Parent: finalURL,
				Depth:  entry.Depth,
			})
		}
		return nil
	case ModeSPA:
		logger.Debug("single-page application detected", "framework", detection.Framework)
		if err := visit.SettleNetwork(ctx); err != nil {
			logger.Debug("network settle failed", "error", err)
		}
		if err := visit.Refresh(ctx); err == nil {
			if fresh, perr := goquery.NewDocumentFromReader(bytes.NewReader(visit.Body)); perr == nil {
				doc = fresh
			}
		}
	}

	title := pageTitle(doc)
	preview := classify.Preview(doc, e.cfg.Crawl.PreviewChars)

	if !unconditional {
		res := st.classifier.Classify(finalURL, title, preview, st.pages)
		switch res.Outcome {
		case classify.ExactDuplicate:
			logger.Debug("duplicate page skipped",
				"existing", res.Existing, "marker", types.MarkerSkippedDuplicate)
			return nil
		case classify.PaginationVariant:
			e.handlePagination(ctx, st, entry, visit, doc, base, title, logger)
			return nil
		}
	}

	result := &pageVisit{
		finalURL: finalURL,
		base:     base,
		title:    title,
		status:   visit.StatusCode,
		doc:      doc,
	}
	result.links = extractLinks(doc.Selection, base)

	lastUpdated := e.dates.ExtractLastUpdated(doc)

	savedPath, err := e.store.Save(st.parentTitle(entry.Parent), title, visit.Body)
	if err != nil {
		logger.Warn("page snapshot not saved", "error", err)
		savedPath = types.MarkerNotSaved
	}

	st.pages.Put(finalURL, types.PageRecord{
		Title:       title,
		LastUpdated: lastUpdated,
		SavedPath:   savedPath,
		Status:      visit.StatusCode,
		Depth:       entry.Depth,
		Source:      st.sourceRef(entry.Parent),
	}, preview)
	st.statuses = append(st.statuses, visit.StatusCode)
	logger.Info("page recorded",
		"title", title, "last_updated", lastUpdated, "status", visit.StatusCode)

	pageRef := types.PageRef{Title: title, URL: finalURL}
	e.recordMalformedLinks(st, result.links.malformed, entry.Depth, pageRef)
	e.checkExternalLinks(ctx, st, result.links.external, pageRef)

	if !unconditional && entry.Depth < st.maxDepth {
		for _, link := range result.links.internal {
			st.frontier = append(st.frontier, types.FrontierEntry{
				URL:    link,
				Parent: finalURL,
				Depth:  entry.Depth + 1,
			})
		}
	}
	return result
}

// handlePagination harvests a pagination variant's links without recording
// the page. Links keep the seeding entry's depth and parent so pagination
// never inflates depth or rewrites lineage.
func (e *Engine) handlePagination(ctx context.Context, st *crawlState, entry types.FrontierEntry, visit *fetcher.Visit, doc *goquery.Document, base *url.URL, title string, logger *slog.Logger) {
	logger.Debug("pagination variant harvested", "marker", types.MarkerListPagination)
	links := extractLinks(doc.Selection, base)

	pageRef := types.PageRef{Title: title, URL: visit.FinalURL}
	e.checkExternalLinks(ctx, st, links.external, pageRef)

	for _, link := range links.internal {
		st.frontier = append(st.frontier, types.FrontierEntry{
			URL:    link,
			Parent: entry.Parent,
			Depth:  entry.Depth,
		})
	}
}

// navigate loads a URL, upgrading http to https once when navigation fails
// or the final status is an error. Returns the last observed status with the
// error, 0 for connection-level failures.
func (e *Engine) navigate(ctx context.Context, rawURL string) (*fetcher.Visit, int, error) {
	visit, err := e.fetcher.Navigate(ctx, rawURL)
	if err == nil && visit.StatusCode < 400 {
		return visit, visit.StatusCode, nil
	}

	lastStatus := 0
	if err == nil {
		lastStatus = visit.StatusCode
		visit.Close()
	}

	if strings.HasPrefix(strings.ToLower(rawURL), "http://") {
		secure := fetcher.SwapScheme(rawURL)
		if secure != "" {
			retried, rerr := e.fetcher.Navigate(ctx, secure)
			if rerr == nil && retried.StatusCode < 400 {
				return retried, retried.StatusCode, nil
			}
			if rerr == nil {
				lastStatus = retried.StatusCode
				retried.Close()
			}
		}
	}

	if err == nil {
		err = fmt.Errorf("final status %d", lastStatus)
	}
	return nil, lastStatus, err
}

// recordFailure writes the failure record for a page that could not be
// visited: empty title, failure sentinel date, last observed status.
func (e *Engine) recordFailure(st *crawlState, key string, status int, entry types.FrontierEntry) {
	st.pages.Put(key, types.PageRecord{
		Title:       "",
		LastUpdated: types.CrawlFailed,
		Status:      status,
		Depth:       entry.Depth,
		Source:      st.sourceRef(entry.Parent),
	}, "")
	st.statuses = append(st.statuses, status)
}

// recordMalformedLinks writes synthetic failure records keyed by the raw
// unresolvable href.
func (e *Engine) recordMalformedLinks(st *crawlState, raw []string, depth int, source types.PageRef) {
	for _, href := range raw {
		if _, exists := st.pages.Get(href); exists {
			continue
		}
		e.logger.Debug("malformed link recorded", "href", href, "source", source.URL)
		st.pages.Put(href, types.PageRecord{
			Title:       "",
			LastUpdated: types.CrawlFailed,
			Status:      0,
			Depth:       depth + 1,
			Source:      &source,
		}, "")
	}
}

// checkExternalLinks fans out over the page's not-yet-checked external links
// and folds results into the site-wide ledger. The page's processing waits
// for the whole batch before the crawl moves on.
func (e *Engine) checkExternalLinks(ctx context.Context, st *crawlState, links []string, source types.PageRef) {
	if e.checker == nil || len(links) == 0 {
		return
	}
	fresh := make([]string, 0, len(links))
	for _, link := range links {
		if !st.externals.Has(link) {
			fresh = append(fresh, link)
		}
	}
	if len(fresh) == 0 {
		return
	}

	results := e.checker.CheckAll(ctx, fresh)
	for _, link := range fresh {
		st.externals.Put(link, types.ExternalLink{
			Status: results[link],
			Source: source,
		})
	}
}

func (st *crawlState) sourceRef(parentURL string) *types.PageRef {
	if parentURL == "" {
		return nil
	}
	title := ""
	if rec, ok := st.pages.Get(parentURL); ok {
		title = rec.Title
	}
	return &types.PageRef{Title: title, URL: parentURL}
}

func (st *crawlState) parentTitle(parentURL string) string {
	if parentURL == "" {
		return ""
	}
	if rec, ok := st.pages.Get(parentURL); ok {
		return rec.Title
	}
	return ""
}

func pageTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
