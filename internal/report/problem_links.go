package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/jchilling/TCGweb-health-checker/pkg/types"
)

var problemHeader = []string{"problematic_url", "status", "parent_url"}

// WriteProblemPages writes error_pages.csv rows for every recorded page
// whose status is not 200.
func WriteProblemPages(path string, results []types.SiteResult) error {
	rows := [][]string{}
	for _, result := range results {
		for _, entry := range result.Pages {
			if entry.Record.Status == 200 {
				continue
			}
			parent := ""
			if entry.Record.Source != nil {
				parent = entry.Record.Source.URL
			}
			rows = append(rows, []string{entry.URL, strconv.Itoa(entry.Record.Status), parent})
		}
	}
	return writeCSV(path, rows)
}

// WriteProblemExternalLinks writes error_external_links.csv rows for every
// external link whose status is not 200.
func WriteProblemExternalLinks(path string, results []types.SiteResult) error {
	rows := [][]string{}
	for _, result := range results {
		for _, entry := range result.ExternalLinks {
			if entry.Record.Status == 200 {
				continue
			}
			rows = append(rows, []string{entry.URL, strconv.Itoa(entry.Record.Status), entry.Record.Source.URL})
		}
	}
	return writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer fh.Close()

	w := csv.NewWriter(fh)
	if err := w.Write(problemHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
