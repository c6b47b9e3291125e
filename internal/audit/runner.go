package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jchilling/TCGweb-health-checker/internal/config"
	"github.com/jchilling/TCGweb-health-checker/internal/crawler"
	"github.com/jchilling/TCGweb-health-checker/internal/fetcher"
	"github.com/jchilling/TCGweb-health-checker/internal/linkcheck"
	"github.com/jchilling/TCGweb-health-checker/internal/pagestore"
	"github.com/jchilling/TCGweb-health-checker/internal/report"
	"github.com/jchilling/TCGweb-health-checker/internal/robots"
	"github.com/jchilling/TCGweb-health-checker/internal/storage"
	"github.com/jchilling/TCGweb-health-checker/pkg/types"
)

// Runner crawls a list of sites with bounded concurrency and writes the
// audit deliverables. Each site gets its own engine, ledgers, output
// directory, and log file; failures stay contained to their site.
type Runner struct {
	cfg         config.Config
	logger      *slog.Logger
	httpFetcher *fetcher.HTTPFetcher
	browser     *fetcher.ChromedpBrowser
	agent       *robots.Agent
	checker     *linkcheck.Checker
	limiter     *crawler.DomainLimiter
	writer      *storage.SQLWriter
}

// NewRunner builds the shared collaborators from configuration.
func NewRunner(cfg config.Config, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpFetcher := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent:    cfg.Crawl.UserAgent,
		Headers:      cfg.Crawl.Headers,
		Timeout:      cfg.Crawl.NavigationTimeout.Duration,
		MaxBodyBytes: cfg.Crawl.MaxBodyBytes,
	})

	var browser *fetcher.ChromedpBrowser
	if cfg.Rendering.Enabled {
		switch strings.ToLower(cfg.Rendering.Engine) {
		case "chromedp", "chrome":
			browser = fetcher.NewChromedpBrowser(fetcher.BrowserOptions{
				NavigationTimeout:  cfg.Crawl.NavigationTimeout.Duration,
				SettleTimeout:      cfg.Rendering.SettleTimeout.Duration,
				UserAgent:          cfg.Crawl.UserAgent,
				MaxBodyBytes:       cfg.Crawl.MaxBodyBytes,
				DisableHeadless:    cfg.Rendering.DisableHeadless,
				ConcurrentSessions: cfg.Rendering.ConcurrentSessions,
				Logger:             logger,
			})
		case "none":
			// Explicit opt-out even with the enabled flag set.
		default:
			return nil, fmt.Errorf("unsupported rendering engine %q", cfg.Rendering.Engine)
		}
	}

	agent := robots.NewAgent(cfg.Robots, httpFetcher.Client())

	var checkerRobots *robots.Agent
	if cfg.LinkCheck.RespectRobots {
		checkerRobots = agent
	}
	checker := linkcheck.New(cfg.LinkCheck, cfg.Crawl.UserAgent, linkcheck.Options{
		Robots: checkerRobots,
		Logger: logger,
	})

	var writer *storage.SQLWriter
	if cfg.DB.Driver != "" && cfg.DB.DSN != "" {
		var err error
		writer, err = storage.NewSQLWriter(cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("audit storage: %w", err)
		}
	}

	return &Runner{
		cfg:         cfg,
		logger:      logger,
		httpFetcher: httpFetcher,
		browser:     browser,
		agent:       agent,
		checker:     checker,
		limiter:     crawler.NewDomainLimiter(cfg.Crawl),
		writer:      writer,
	}, nil
}

// Close releases resources owned by the runner.
func (r *Runner) Close() error {
	if r.writer != nil {
		return r.writer.Close()
	}
	return nil
}

// Run crawls every site and writes the summary, workbook, CSV, and database
// outputs. A failed site is logged and skipped; the returned error joins all
// per-site failures but does not cancel sibling crawls.
func (r *Runner) Run(ctx context.Context, sites []Site) ([]types.SiteResult, error) {
	outDir := r.cfg.Output.Directory
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	runAt := time.Now()

	concurrency := r.cfg.Run.ConcurrentSites
	if concurrency <= 0 {
		concurrency = 1
	}
	semaphore := make(chan struct{}, concurrency)

	results := make([]*types.SiteResult, len(sites))
	crawlErrs := make([]error, len(sites))
	var wg sync.WaitGroup

	for i, site := range sites {
		wg.Add(1)
		go func(i int, site Site) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				crawlErrs[i] = ctx.Err()
				return
			}

			result, err := r.safeCrawl(ctx, site)
			if err != nil {
				r.logger.Error("site crawl failed", "site", site.Name, "url", site.URL, "error", err)
				crawlErrs[i] = fmt.Errorf("site %s: %w", site.Name, err)
				return
			}
			results[i] = &result
		}(i, site)
	}
	wg.Wait()

	completed := make([]types.SiteResult, 0, len(sites))
	for _, result := range results {
		if result != nil {
			completed = append(completed, *result)
		}
	}

	if err := r.writeOutputs(ctx, completed, runAt); err != nil {
		crawlErrs = append(crawlErrs, err)
	}
	return completed, errors.Join(crawlErrs...)
}

// safeCrawl contains one site's crawl, converting panics into site-level
// failures so one bad site cannot take down the run.
func (r *Runner) safeCrawl(ctx context.Context, site Site) (result types.SiteResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("crawl panicked: %v", rec)
		}
	}()
	return r.crawlSite(ctx, site)
}

func (r *Runner) crawlSite(ctx context.Context, site Site) (types.SiteResult, error) {
	siteDir := filepath.Join(r.cfg.Output.Directory, pagestore.SanitizeName(site.Name))
	if err := os.MkdirAll(siteDir, 0o755); err != nil {
		return types.SiteResult{}, fmt.Errorf("create site directory: %w", err)
	}

	logger, closeLog, err := siteLogger(r.logger, filepath.Join(siteDir, "crawl.log"), r.cfg.Logging.Level, site.Name)
	if err != nil {
		return types.SiteResult{}, err
	}
	defer closeLog()

	var pageFetcher fetcher.Fetcher = r.httpFetcher
	if r.browser != nil {
		pageFetcher = fetcher.NewComposite(r.httpFetcher, r.browser, logger)
	}

	engine := crawler.New(crawler.Options{
		Config:  r.cfg,
		Fetcher: pageFetcher,
		Robots:  r.agent,
		Checker: r.checker,
		Store:   pagestore.New(siteDir, r.cfg.Output.SaveHTML),
		Limiter: r.limiter,
		Logger:  logger,
	})

	start := time.Now()
	crawlReport, err := engine.CrawlSite(ctx, site.URL, site.Depth)
	if err != nil {
		return types.SiteResult{}, err
	}
	duration := time.Since(start).Truncate(time.Second)

	result := types.SiteResult{
		SiteName:      site.Name,
		SiteURL:       site.URL,
		Statuses:      crawlReport.Statuses,
		Pages:         crawlReport.Pages,
		ExternalLinks: crawlReport.ExternalLinks,
		Duration:      duration.String(),
	}

	summary := report.NewSummary(result.Pages, result.ExternalLinks)
	summaryPath := filepath.Join(siteDir, r.cfg.Output.SummaryFilename)
	if err := summary.WriteFile(summaryPath); err != nil {
		return types.SiteResult{}, err
	}

	logger.Info("site audit complete",
		"pages", len(result.Pages),
		"external_links", len(result.ExternalLinks),
		"duration", result.Duration,
	)
	return result, nil
}

// writeOutputs emits the cross-site deliverables.
func (r *Runner) writeOutputs(ctx context.Context, results []types.SiteResult, runAt time.Time) error {
	if len(results) == 0 {
		return nil
	}
	var errs []error

	if name := r.cfg.Output.ExcelReport; name != "" {
		path := filepath.Join(r.cfg.Output.Directory, name)
		if err := report.WriteWorkbook(path, results, runAt); err != nil {
			errs = append(errs, fmt.Errorf("excel report: %w", err))
		}
	}

	if r.cfg.Output.ProblemCSV {
		pagesCSV := filepath.Join(r.cfg.Output.Directory, "error_pages.csv")
		if err := report.WriteProblemPages(pagesCSV, results); err != nil {
			errs = append(errs, fmt.Errorf("problem pages csv: %w", err))
		}
		linksCSV := filepath.Join(r.cfg.Output.Directory, "error_external_links.csv")
		if err := report.WriteProblemExternalLinks(linksCSV, results); err != nil {
			errs = append(errs, fmt.Errorf("problem links csv: %w", err))
		}
	}

	if r.writer != nil {
		for _, result := range results {
			if err := r.writer.SaveSiteResult(ctx, result, runAt); err != nil {
				errs = append(errs, fmt.Errorf("save %s: %w", result.SiteName, err))
			}
		}
	}
	return errors.Join(errs...)
}
