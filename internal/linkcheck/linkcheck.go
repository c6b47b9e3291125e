// Package linkcheck verifies external links with a HEAD-first probe and a
// ladder of fallbacks for servers that mishandle HEAD, redirect loops, and
// sites that only answer on the other scheme.
package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jchilling/TCGweb-health-checker/internal/config"
	"github.com/jchilling/TCGweb-health-checker/internal/fetcher"
	"github.com/jchilling/TCGweb-health-checker/internal/robots"
)

// StatusUnreachable marks links that failed every probe in the ladder.
const StatusUnreachable = 0

var errTooManyRedirects = errors.New("stopped after too many redirects")

// Checker probes external links concurrently.
type Checker struct {
	client      *http.Client
	userAgent   string
	concurrency int
	agent       *robots.Agent
	logger      *slog.Logger
}

// Options wires collaborators into the checker.
type Options struct {
	Robots *robots.Agent
	Logger *slog.Logger
	// Transport overrides the HTTP transport, for tests.
	Transport http.RoundTripper
}

// New constructs a checker from configuration.
func New(cfg config.LinkCheckConfig, userAgent string, opts Options) *Checker {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: opts.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}

	return &Checker{
		client:      client,
		userAgent:   userAgent,
		concurrency: concurrency,
		agent:       opts.Robots,
		logger:      logger,
	}
}

// CheckAll probes every URL with a bounded worker pool and returns the status
// per URL. Results are always keyed by the URL as given, even when the probe
// succeeded on the alternate scheme.
func (c *Checker) CheckAll(ctx context.Context, urls []string) map[string]int {
	results := make(map[string]int, len(urls))
	if len(urls) == 0 {
		return results
	}

	jobs := make(chan string)
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := c.concurrency
	if workers > len(urls) {
		workers = len(urls)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				status := c.Check(ctx, u)
				mu.Lock()
				results[u] = status
				mu.Unlock()
			}
		}()
	}

	for _, u := range urls {
		select {
		case jobs <- u:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return results
		}
	}
	close(jobs)
	wg.Wait()
	return results
}

// Check probes a single URL. The ladder: HEAD, then GET when the server
// rejects HEAD or loops redirects, then both again over https for insecure
// links that fail at the connection level. Links failing everything report
// StatusUnreachable. An https link never downgrades to http.
func (c *Checker) Check(ctx context.Context, rawURL string) int {
	if c.agent != nil && !c.agent.Allowed(ctx, rawURL) {
		c.logger.Debug("link check skipped by robots", "url", rawURL)
		return StatusUnreachable
	}

	status, connErr := c.probe(ctx, rawURL)
	if connErr && ctx.Err() == nil {
		if alt := fetcher.SwapScheme(rawURL); alt != "" && strings.HasPrefix(rawURL, "http://") {
			c.logger.Debug("retrying link over https", "url", rawURL, "alt", alt)
			if altStatus, altConnErr := c.probe(ctx, alt); !altConnErr {
				return altStatus
			}
		}
		return StatusUnreachable
	}
	return status
}

// probe runs the HEAD/GET sequence against one concrete URL. connErr reports
// a transport-level failure that may succeed on the other scheme.
func (c *Checker) probe(ctx context.Context, rawURL string) (status int, connErr bool) {
	status, err := c.request(ctx, http.MethodHead, rawURL)
	switch {
	case err == nil:
		switch status {
		case http.StatusForbidden, http.StatusNotFound, http.StatusMethodNotAllowed:
			// Some servers reject or misreport HEAD; confirm with GET.
		default:
			return status, false
		}
	case errors.Is(err, errTooManyRedirects):
		// Redirect loops on HEAD sometimes resolve under GET.
	default:
		return StatusUnreachable, true
	}

	getStatus, err := c.request(ctx, http.MethodGet, rawURL)
	if err != nil {
		if errors.Is(err, errTooManyRedirects) {
			return StatusUnreachable, false
		}
		return StatusUnreachable, true
	}
	return getStatus, false
}

func (c *Checker) request(ctx context.Context, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build %s request: %w", method, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
