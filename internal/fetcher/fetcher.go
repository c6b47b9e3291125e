// Package fetcher retrieves pages over plain HTTP or through a headless
// browser session, presenting both behind the same Visit abstraction.
package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// Visit is the result of navigating to a URL. For HTTP visits the script
// hooks are nil; browser visits keep the tab alive until Close.
type Visit struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte

	evaluate func(ctx context.Context, expr string, out any) error
	settle   func(ctx context.Context) error
	refresh  func(ctx context.Context) error
	closeFn  func()
}

// Scripted reports whether the visit runs in a JavaScript-capable session.
func (v *Visit) Scripted() bool { return v.evaluate != nil }

// Evaluate runs a JavaScript expression in the page and decodes the result
// into out. Fails on non-scripted visits.
func (v *Visit) Evaluate(ctx context.Context, expr string, out any) error {
	if v.evaluate == nil {
		return errors.New("visit has no script environment")
	}
	return v.evaluate(ctx, expr, out)
}

// SettleNetwork waits until the page's resource activity goes quiet, bounded
// by the session timeout. No-op on non-scripted visits.
func (v *Visit) SettleNetwork(ctx context.Context) error {
	if v.settle == nil {
		return nil
	}
	return v.settle(ctx)
}

// Refresh re-captures Body and FinalURL from the live session, picking up DOM
// mutations made after the initial load. No-op on non-scripted visits.
func (v *Visit) Refresh(ctx context.Context) error {
	if v.refresh == nil {
		return nil
	}
	return v.refresh(ctx)
}

// Close releases any live session resources. Safe to call on any visit.
func (v *Visit) Close() {
	if v.closeFn != nil {
		v.closeFn()
	}
}

// Fetcher navigates to a URL and returns the resulting visit.
type Fetcher interface {
	Navigate(ctx context.Context, rawURL string) (*Visit, error)
}

// Options controls HTTP fetching behaviour.
type Options struct {
	UserAgent    string
	Headers      map[string]string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// HTTPFetcher implements Fetcher via the Go http.Client. Bodies are
// decompressed and transcoded to UTF-8 before they reach callers.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	extraHeaders map[string]string
	maxBodyBytes int64
}

// NewHTTPFetcher constructs an HTTP fetcher using the provided options.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 * 1024 * 1024
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &HTTPFetcher{
		client:       client,
		userAgent:    opts.UserAgent,
		extraHeaders: headers,
		maxBodyBytes: opts.MaxBodyBytes,
	}
}

// Navigate downloads a single URL. Non-2xx responses are not errors; the
// caller inspects StatusCode.
func (f *HTTPFetcher) Navigate(ctx context.Context, rawURL string) (*Visit, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if f.userAgent != "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")

	for k, v := range f.extraHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http fetch failed: %w", err)
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if isHTMLContent(contentType) {
		if converted, err := toUTF8(body, contentType); err == nil {
			body = converted
		}
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Visit{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
	}, nil
}

func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	limited := io.LimitReader(reader, f.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", f.maxBodyBytes)
	}
	return body, nil
}

// Client exposes the underlying HTTP client for reuse (eg. robots.txt fetches).
func (f *HTTPFetcher) Client() *http.Client {
	if f == nil {
		return nil
	}
	return f.client
}

func isHTMLContent(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" || strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// SwapScheme returns the URL with http swapped for https (or vice versa), or
// "" when the URL has a different scheme.
func SwapScheme(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "https"
	case "https":
		u.Scheme = "http"
	default:
		return ""
	}
	return u.String()
}
