// Package storage persists audit results into a SQL database for trend
// queries across runs. It is optional; the file outputs remain the primary
// deliverable.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	pq "github.com/lib/pq"

	"github.com/jchilling/TCGweb-health-checker/internal/config"
	"github.com/jchilling/TCGweb-health-checker/pkg/types"
)

// SQLWriter records audit results through database/sql.
type SQLWriter struct {
	db          *sql.DB
	autoMigrate bool
}

// NewSQLWriter initialises a writer from configuration.
func NewSQLWriter(cfg config.SQLConfig) (*SQLWriter, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, errors.New("sql config missing driver or dsn")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sql connection: %w", err)
	}

	writer := &SQLWriter{db: db, autoMigrate: cfg.AutoMigrate}
	if cfg.AutoMigrate {
		if err := writer.ensureSchema(context.Background()); err != nil {
			return nil, err
		}
	}
	return writer, nil
}

// SaveSiteResult writes one site's audit outcome: every page record and
// every external link, stamped with the run time.
func (s *SQLWriter) SaveSiteResult(ctx context.Context, result types.SiteResult, runAt time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.insertResult(ctx, result, runAt); err != nil {
		if s.autoMigrate && isUndefinedTableErr(err) {
			if schemaErr := s.ensureSchema(ctx); schemaErr != nil {
				return fmt.Errorf("ensure schema: %w", schemaErr)
			}
			if retryErr := s.insertResult(ctx, result, runAt); retryErr != nil {
				return fmt.Errorf("insert audit result: %w", retryErr)
			}
			return nil
		}
		return fmt.Errorf("insert audit result: %w", err)
	}
	return nil
}

func (s *SQLWriter) insertResult(ctx context.Context, result types.SiteResult, runAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pageQuery := `
        INSERT INTO audit_pages (run_at, site_name, url, title, last_updated, saved_path, status, depth, source_url)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (run_at, site_name, url) DO UPDATE SET
            title = EXCLUDED.title,
            last_updated = EXCLUDED.last_updated,
            saved_path = EXCLUDED.saved_path,
            status = EXCLUDED.status,
            depth = EXCLUDED.depth,
            source_url = EXCLUDED.source_url
    `
	for _, entry := range result.Pages {
		sourceURL := ""
		if entry.Record.Source != nil {
			sourceURL = entry.Record.Source.URL
		}
		if _, err := tx.ExecContext(ctx, pageQuery,
			runAt,
			result.SiteName,
			entry.URL,
			entry.Record.Title,
			entry.Record.LastUpdated,
			entry.Record.SavedPath,
			entry.Record.Status,
			entry.Record.Depth,
			sourceURL,
		); err != nil {
			return err
		}
	}

	linkQuery := `
        INSERT INTO audit_external_links (run_at, site_name, url, status, source_url)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (run_at, site_name, url) DO UPDATE SET
            status = EXCLUDED.status,
            source_url = EXCLUDED.source_url
    `
	for _, entry := range result.ExternalLinks {
		if _, err := tx.ExecContext(ctx, linkQuery,
			runAt,
			result.SiteName,
			entry.URL,
			entry.Record.Status,
			entry.Record.Source.URL,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Close closes the underlying DB connection.
func (s *SQLWriter) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLWriter) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil || !s.autoMigrate {
		return nil
	}
	schemaCtx := ctx
	if schemaCtx == nil || schemaCtx.Err() != nil {
		schemaCtx = context.Background()
	}
	schemaCtx, cancel := context.WithTimeout(schemaCtx, 10*time.Second)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_pages (
		    run_at TIMESTAMPTZ NOT NULL,
		    site_name TEXT NOT NULL,
		    url TEXT NOT NULL,
		    title TEXT,
		    last_updated TEXT,
		    saved_path TEXT,
		    status INT,
		    depth INT,
		    source_url TEXT,
		    PRIMARY KEY (run_at, site_name, url)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_external_links (
		    run_at TIMESTAMPTZ NOT NULL,
		    site_name TEXT NOT NULL,
		    url TEXT NOT NULL,
		    status INT,
		    source_url TEXT,
		    PRIMARY KEY (run_at, site_name, url)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_pages_site ON audit_pages (site_name, run_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(schemaCtx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func isUndefinedTableErr(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist")
}
