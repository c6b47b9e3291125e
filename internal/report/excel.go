package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jchilling/TCGweb-health-checker/pkg/types"
)

var excelHeaders = []string{
	"Site",
	"URL",
	"Total pages",
	"Pages with date",
	"Pages without date",
	"Latest update",
	"Pages older than 1 year",
	"Stale ratio (%)",
	"Failed pages",
	"Failed external links",
	"Total external links",
	"Crawl duration",
}

// siteStats are the per-site aggregates shown in the workbook.
type siteStats struct {
	totalPages     int
	datedPages     int
	undatedPages   int
	latestUpdate   string
	stalePages     int
	staleRatio     float64
	failedPages    int
	failedExternal int
	totalExternal  int
}

func computeStats(result types.SiteResult, now time.Time) siteStats {
	var stats siteStats
	cutoff := now.AddDate(-1, 0, 0)
	var latest time.Time

	for _, entry := range result.Pages {
		stats.totalPages++
		switch entry.Record.LastUpdated {
		case types.CrawlFailed:
			stats.failedPages++
			stats.undatedPages++
			continue
		case types.NoDate:
			stats.undatedPages++
			continue
		}
		parsed, err := time.Parse("2006-01-02", entry.Record.LastUpdated)
		if err != nil {
			stats.undatedPages++
			continue
		}
		stats.datedPages++
		if parsed.After(latest) {
			latest = parsed
		}
		if parsed.Before(cutoff) {
			stats.stalePages++
		}
	}
	if !latest.IsZero() {
		stats.latestUpdate = latest.Format("2006-01-02")
	}
	if stats.datedPages > 0 {
		stats.staleRatio = float64(stats.stalePages) / float64(stats.datedPages) * 100
	}

	for _, entry := range result.ExternalLinks {
		stats.totalExternal++
		if statusClass(entry.Record.Status) >= 2 {
			stats.failedExternal++
		}
	}
	return stats
}

// WriteWorkbook writes the cross-site audit workbook, one row per site.
func WriteWorkbook(path string, results []types.SiteResult, now time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Audit"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for col, header := range excelHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(excelHeaders), 1)
		_ = f.SetCellStyle(sheet, "A1", last, headerStyle)
	}

	for row, result := range results {
		stats := computeStats(result, now)
		values := []any{
			result.SiteName,
			result.SiteURL,
			stats.totalPages,
			stats.datedPages,
			stats.undatedPages,
			stats.latestUpdate,
			stats.stalePages,
			fmt.Sprintf("%.1f", stats.staleRatio),
			stats.failedPages,
			stats.failedExternal,
			stats.totalExternal,
			result.Duration,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("write row %d: %w", row+2, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
