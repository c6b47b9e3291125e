// Package audit coordinates multi-site runs: it loads the site list, crawls
// sites concurrently with isolated engines, and hands the results to the
// reporting and storage layers.
package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Site is one row of the site list.
type Site struct {
	URL   string
	Name  string
	Depth int
}

// LoadSites reads the site list CSV. Expected columns: url (required), name,
// depth. The header row is matched case-insensitively and a UTF-8 BOM on the
// first cell is tolerated, since the lists tend to come out of spreadsheets.
func LoadSites(path string) ([]Site, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open site list: %w", err)
	}
	defer fh.Close()
	return ParseSites(fh)
}

// ParseSites parses the site list from a reader.
func ParseSites(r io.Reader) ([]Site, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read site list header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	urlCol, ok := cols["url"]
	if !ok {
		return nil, fmt.Errorf("site list missing %q column", "url")
	}
	nameCol, hasName := cols["name"]
	depthCol, hasDepth := cols["depth"]

	var sites []Site
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read site list line %d: %w", line, err)
		}

		rawURL := strings.TrimSpace(record[urlCol])
		if rawURL == "" {
			continue
		}

		site := Site{URL: rawURL}
		if hasName && nameCol < len(record) {
			site.Name = strings.TrimSpace(record[nameCol])
		}
		if site.Name == "" {
			site.Name = hostLabel(rawURL)
		}
		if hasDepth && depthCol < len(record) {
			raw := strings.TrimSpace(record[depthCol])
			if raw != "" {
				depth, err := strconv.Atoi(raw)
				if err != nil {
					return nil, fmt.Errorf("site list line %d: bad depth %q", line, raw)
				}
				site.Depth = depth
			}
		}
		sites = append(sites, site)
	}

	if len(sites) == 0 {
		return nil, fmt.Errorf("site list contains no sites")
	}
	return sites, nil
}

func hostLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}
