package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jchilling/TCGweb-health-checker/pkg/types"
)

func TestWriteWorkbook(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "audit.xlsx")

	results := []types.SiteResult{{
		SiteName: "Town Office",
		SiteURL:  "https://example.org",
		Pages: []types.PageEntry{
			pageEntry("a", "2025-05-01"),
			pageEntry("b", types.NoDate),
		},
		ExternalLinks: []types.ExternalEntry{
			{URL: "x", Record: types.ExternalLink{Status: 404}},
		},
		Duration: "1m02s",
	}}

	if err := WriteWorkbook(path, results, now); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	name, err := f.GetCellValue("Audit", "A2")
	if err != nil {
		t.Fatal(err)
	}
	if name != "Town Office" {
		t.Fatalf("A2 = %q", name)
	}
	total, _ := f.GetCellValue("Audit", "C2")
	if total != "2" {
		t.Fatalf("total pages cell = %q", total)
	}
	latest, _ := f.GetCellValue("Audit", "F2")
	if latest != "2025-05-01" {
		t.Fatalf("latest update cell = %q", latest)
	}
	duration, _ := f.GetCellValue("Audit", "L2")
	if duration != "1m02s" {
		t.Fatalf("duration cell = %q", duration)
	}
}
