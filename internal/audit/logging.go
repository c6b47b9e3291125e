package audit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger from configuration.
func NewLogger(level string, structured bool) (*slog.Logger, error) {
	parsed, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: parsed}
	var handler slog.Handler
	if structured {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler), nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", level)
	}
}

// siteLogger writes a site's crawl log both to the shared process logger and
// to a per-site file. The returned closer flushes the file.
func siteLogger(base *slog.Logger, path string, level string, siteName string) (*slog.Logger, func(), error) {
	parsed, err := parseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	fh, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create site log: %w", err)
	}
	fileHandler := slog.NewTextHandler(fh, &slog.HandlerOptions{Level: parsed})
	combined := slog.New(teeHandler{
		primary:   base.With("site", siteName).Handler(),
		secondary: fileHandler,
	})
	return combined, func() { _ = fh.Close() }, nil
}

// teeHandler fans log records out to two handlers.
type teeHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.primary.Enabled(ctx, level) || t.secondary.Enabled(ctx, level)
}

func (t teeHandler) Handle(ctx context.Context, rec slog.Record) error {
	var firstErr error
	if t.primary.Enabled(ctx, rec.Level) {
		firstErr = t.primary.Handle(ctx, rec.Clone())
	}
	if t.secondary.Enabled(ctx, rec.Level) {
		if err := t.secondary.Handle(ctx, rec.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{
		primary:   t.primary.WithAttrs(attrs),
		secondary: t.secondary.WithAttrs(attrs),
	}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{
		primary:   t.primary.WithGroup(name),
		secondary: t.secondary.WithGroup(name),
	}
}
