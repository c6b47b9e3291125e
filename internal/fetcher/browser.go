package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserOptions configures headless browser sessions.
type BrowserOptions struct {
	NavigationTimeout  time.Duration
	SettleTimeout      time.Duration
	UserAgent          string
	MaxBodyBytes       int64
	DisableHeadless    bool
	ConcurrentSessions int
	Logger             *slog.Logger
}

// ChromedpBrowser runs pages in headless Chrome with bounded concurrency.
// Each Navigate holds a session slot until the returned visit is closed.
type ChromedpBrowser struct {
	opts      BrowserOptions
	semaphore chan struct{}
	logger    *slog.Logger
}

// NewChromedpBrowser constructs a browser fetcher.
func NewChromedpBrowser(opts BrowserOptions) *ChromedpBrowser {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 60 * time.Second
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = 10 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 * 1024 * 1024
	}
	if opts.ConcurrentSessions <= 0 {
		opts.ConcurrentSessions = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromedpBrowser{
		opts:      opts,
		semaphore: make(chan struct{}, opts.ConcurrentSessions),
		logger:    logger,
	}
}

// Navigate loads the URL in a fresh tab and keeps the session open so the
// caller can evaluate scripts, wait for network settle, and re-capture the
// DOM. The caller must Close the visit.
func (b *ChromedpBrowser) Navigate(parentCtx context.Context, rawURL string) (*Visit, error) {
	select {
	case b.semaphore <- struct{}{}:
	case <-parentCtx.Done():
		return nil, parentCtx.Err()
	}
	release := func() { <-b.semaphore }

	headless := !b.opts.DisableHeadless
	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	}
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, execOpts...)
	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)

	cleanup := func() {
		chromeCancel()
		allocCancel()
		release()
	}

	logger := b.logger.With("url", rawURL)

	navCtx, navCancel := context.WithTimeout(chromeCtx, b.opts.NavigationTimeout)
	defer navCancel()

	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(rawURL))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("chromedp navigate: %w", err)
	}
	status := http.StatusOK
	if resp != nil {
		status = int(resp.Status)
	}

	visit := &Visit{
		URL:         rawURL,
		StatusCode:  status,
		ContentType: "text/html; charset=utf-8",
		closeFn:     cleanup,
	}

	visit.evaluate = func(ctx context.Context, expr string, out any) error {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		runCtx, cancel := context.WithTimeout(chromeCtx, b.opts.NavigationTimeout)
		defer cancel()
		return chromedp.Run(runCtx, chromedp.Evaluate(expr, out))
	}

	visit.settle = func(ctx context.Context) error {
		return b.waitNetworkSettle(chromeCtx, logger)
	}

	visit.refresh = func(ctx context.Context) error {
		runCtx, cancel := context.WithTimeout(chromeCtx, b.opts.NavigationTimeout)
		defer cancel()
		var html, location string
		if err := chromedp.Run(runCtx,
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
			chromedp.Location(&location),
		); err != nil {
			return fmt.Errorf("chromedp capture: %w", err)
		}
		if int64(len(html)) > b.opts.MaxBodyBytes {
			html = html[:b.opts.MaxBodyBytes]
		}
		visit.Body = []byte(html)
		if location != "" {
			visit.FinalURL = location
		}
		return nil
	}

	if err := visit.refresh(chromeCtx); err != nil {
		cleanup()
		return nil, err
	}
	if visit.FinalURL == "" {
		visit.FinalURL = rawURL
	}

	logger.Debug("browser navigation complete",
		"status", status, "final_url", visit.FinalURL, "html_bytes", len(visit.Body))
	return visit, nil
}

// waitNetworkSettle polls the page's resource entry count until it stops
// growing for two consecutive samples, bounded by the settle timeout.
func (b *ChromedpBrowser) waitNetworkSettle(chromeCtx context.Context, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(chromeCtx, b.opts.SettleTimeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	last := -1
	stable := 0
	for {
		var count int
		err := chromedp.Run(ctx,
			chromedp.Evaluate(`window.performance.getEntriesByType('resource').length`, &count))
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("network settle timed out", "last_resource_count", last)
				return nil
			}
			return fmt.Errorf("settle probe: %w", err)
		}
		if count == last {
			stable++
			if stable >= 2 {
				return nil
			}
		} else {
			stable = 0
			last = count
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			logger.Debug("network settle timed out", "last_resource_count", last)
			return nil
		}
	}
}

// Composite prefers the browser when rendering is enabled and falls back to
// plain HTTP when the browser session fails.
type Composite struct {
	httpFetcher Fetcher
	browser     Fetcher
	logger      *slog.Logger
}

// NewComposite builds a composite fetcher. browser may be nil.
func NewComposite(httpFetcher, browser Fetcher, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{httpFetcher: httpFetcher, browser: browser, logger: logger}
}

// Navigate delegates to the browser when available, falling back to HTTP.
func (c *Composite) Navigate(ctx context.Context, rawURL string) (*Visit, error) {
	if c.browser != nil {
		visit, err := c.browser.Navigate(ctx, rawURL)
		if err == nil {
			return visit, nil
		}
		c.logger.Warn("browser navigation failed, falling back to HTTP", "url", rawURL, "error", err)
	}
	return c.httpFetcher.Navigate(ctx, rawURL)
}
