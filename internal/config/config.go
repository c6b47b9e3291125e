package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the full configuration required to run a site audit.
type Config struct {
	Crawl     CrawlConfig     `yaml:"crawl"`
	Rendering RenderingConfig `yaml:"rendering"`
	LinkCheck LinkCheckConfig `yaml:"link_check"`
	Robots    RobotsConfig    `yaml:"robots"`
	Output    OutputConfig    `yaml:"output"`
	DB        SQLConfig       `yaml:"db"`
	Run       RunConfig       `yaml:"run"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CrawlConfig controls traversal depth, timeouts, and duplicate handling.
type CrawlConfig struct {
	MaxDepth          int               `yaml:"max_depth"`
	UserAgent         string            `yaml:"user_agent"`
	Headers           map[string]string `yaml:"headers"`
	NavigationTimeout Duration          `yaml:"navigation_timeout"`
	PerDomainDelay    Duration          `yaml:"per_domain_delay"`
	RateLimit         RateLimitConfig   `yaml:"rate_limit_per_domain"`
	MaxBodyBytes      int64             `yaml:"max_body_bytes"`
	EnablePagination  bool              `yaml:"enable_pagination"`
	CompareContent    bool              `yaml:"compare_content"`
	PreviewChars      int               `yaml:"preview_chars"`
	SkipExtensions    []string          `yaml:"skip_extensions"`
}

// RateLimitConfig applies a token bucket per domain.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// RenderingConfig controls the headless browser used to load pages.
type RenderingConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Engine             string   `yaml:"engine"`
	SettleTimeout      Duration `yaml:"settle_timeout"`
	ConcurrentSessions int      `yaml:"concurrent_sessions"`
	DisableHeadless    bool     `yaml:"disable_headless"`
}

// LinkCheckConfig tunes external link verification.
type LinkCheckConfig struct {
	Concurrency   int      `yaml:"concurrency"`
	Timeout       Duration `yaml:"timeout"`
	MaxRedirects  int      `yaml:"max_redirects"`
	RespectRobots bool     `yaml:"respect_robots"`
}

// RobotsConfig configures robots.txt handling for page navigation.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	Overrides []string `yaml:"overrides"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// OutputConfig controls where crawl artifacts land on disk.
type OutputConfig struct {
	Directory       string `yaml:"directory"`
	SaveHTML        bool   `yaml:"save_html"`
	SummaryFilename string `yaml:"summary_filename"`
	ExcelReport     string `yaml:"excel_report"`
	ProblemCSV      bool   `yaml:"problem_csv"`
}

// SQLConfig describes an optional relational store for crawl records.
type SQLConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// RunConfig bounds cross-site parallelism.
type RunConfig struct {
	ConcurrentSites int `yaml:"concurrent_sites"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Crawl: CrawlConfig{
			MaxDepth:          1,
			UserAgent:         "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Headers:           map[string]string{},
			NavigationTimeout: DurationFrom(15 * time.Second),
			PerDomainDelay:    DurationFrom(0),
			MaxBodyBytes:      6 * 1024 * 1024,
			EnablePagination:  true,
			CompareContent:    true,
			PreviewChars:      500,
			SkipExtensions: []string{
				".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ods", ".odt", ".ppt", ".pptx",
				".zip", ".rar", ".7z", ".tar", ".gz",
				".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp", ".ico",
				".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm", ".mkv",
				".mp3", ".wav", ".flac", ".aac", ".ogg",
				".txt", ".csv", ".json", ".xml",
			},
		},
		Rendering: RenderingConfig{
			Enabled:            true,
			Engine:             "chromedp",
			SettleTimeout:      DurationFrom(5 * time.Second),
			ConcurrentSessions: 2,
		},
		LinkCheck: LinkCheckConfig{
			Concurrency:  12,
			Timeout:      DurationFrom(15 * time.Second),
			MaxRedirects: 10,
		},
		Robots: RobotsConfig{
			Respect:   false,
			Overrides: []string{},
			UserAgent: "tcgweb-health-checker/1.0",
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		Output: OutputConfig{
			Directory:       "assets",
			SaveHTML:        true,
			SummaryFilename: "page_summary.json",
			ExcelReport:     "website_audit_report.xlsx",
			ProblemCSV:      true,
		},
		Run: RunConfig{
			ConcurrentSites: 3,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: false,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces required invariants for the audit configuration.
func (c Config) Validate() error {
	if c.Crawl.MaxDepth < 0 {
		return fmt.Errorf("crawl.max_depth must be >= 0 (got %d)", c.Crawl.MaxDepth)
	}
	if strings.TrimSpace(c.Crawl.UserAgent) == "" {
		return errors.New("crawl.user_agent must be set")
	}
	if c.Crawl.NavigationTimeout.Duration <= 0 {
		return errors.New("crawl.navigation_timeout must be > 0")
	}
	if c.Crawl.MaxBodyBytes <= 0 {
		return fmt.Errorf("crawl.max_body_bytes must be > 0 (got %d)", c.Crawl.MaxBodyBytes)
	}
	if c.Crawl.PreviewChars <= 0 {
		return fmt.Errorf("crawl.preview_chars must be > 0 (got %d)", c.Crawl.PreviewChars)
	}
	if c.Rendering.Enabled {
		switch strings.ToLower(c.Rendering.Engine) {
		case "chromedp", "chrome", "none":
		default:
			return fmt.Errorf("unsupported rendering engine %q", c.Rendering.Engine)
		}
	}
	if c.LinkCheck.Concurrency <= 0 {
		return fmt.Errorf("link_check.concurrency must be > 0 (got %d)", c.LinkCheck.Concurrency)
	}
	if c.LinkCheck.Timeout.Duration <= 0 {
		return errors.New("link_check.timeout must be > 0")
	}
	if c.LinkCheck.MaxRedirects <= 0 {
		return fmt.Errorf("link_check.max_redirects must be > 0 (got %d)", c.LinkCheck.MaxRedirects)
	}
	if c.Robots.Respect && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set when robots.respect is true")
	}
	if strings.TrimSpace(c.Output.Directory) == "" {
		return errors.New("output.directory must be set")
	}
	if c.Run.ConcurrentSites <= 0 {
		return fmt.Errorf("run.concurrent_sites must be > 0 (got %d)", c.Run.ConcurrentSites)
	}
	if rl := c.Crawl.RateLimit; rl.Requests < 0 {
		return fmt.Errorf("crawl.rate_limit_per_domain.requests must be >= 0 (got %d)", rl.Requests)
	}
	return nil
}

func (c *Config) normalise() {
	c.Crawl.UserAgent = strings.TrimSpace(c.Crawl.UserAgent)
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)
	c.Output.Directory = strings.TrimSpace(c.Output.Directory)
	c.Output.SummaryFilename = strings.TrimSpace(c.Output.SummaryFilename)
	if c.Output.SummaryFilename == "" {
		c.Output.SummaryFilename = "page_summary.json"
	}

	if len(c.Crawl.SkipExtensions) > 0 {
		c.Crawl.SkipExtensions = dedupeLower(c.Crawl.SkipExtensions)
	}
	if len(c.Robots.Overrides) > 0 {
		c.Robots.Overrides = dedupeLower(c.Robots.Overrides)
	}
}

func dedupeLower(values []string) []string {
	unique := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := unique[v]; ok {
			continue
		}
		unique[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	sort.Strings(cleaned)
	return cleaned
}

// Enabled reports whether per-domain rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}
