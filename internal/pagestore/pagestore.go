// Package pagestore persists crawled page snapshots in a directory tree that
// mirrors the site structure: child pages live under a folder named after the
// parent page's title.
package pagestore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/jchilling/TCGweb-health-checker/pkg/types"
)

const (
	maxNameLength = 150
	linksSuffix   = "_links"
)

var (
	unsafeChars  = regexp.MustCompile(`[<>:"/\\|?*]`)
	runSeparator = regexp.MustCompile(`[_\-\s]+`)
)

// SanitizeName converts a page title into a filesystem-safe name. Characters
// that are unsafe on common filesystems become underscores, runs of
// separators collapse, and the result is capped in length.
func SanitizeName(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	name = runSeparator.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "untitled"
	}
	runes := []rune(name)
	if len(runes) > maxNameLength {
		runes = runes[:maxNameLength]
	}
	return string(runes)
}

// Store writes page snapshots under a per-site root directory.
type Store struct {
	root    string
	enabled bool

	mu   sync.Mutex
	used map[string]int
}

// New constructs a store rooted at dir. When enabled is false Save records
// nothing and returns the not-saved marker.
func New(dir string, enabled bool) *Store {
	return &Store{root: dir, enabled: enabled, used: make(map[string]int)}
}

// Save writes the HTML snapshot for a page. Pages reached from a parent are
// grouped in a "<parent title>_links" folder; top-level pages sit in the
// root. Name collisions get a numeric suffix. The returned path is relative
// to the store root.
func (s *Store) Save(parentTitle, title string, body []byte) (string, error) {
	if !s.enabled {
		return types.MarkerNotSaved, nil
	}

	dir := s.root
	rel := ""
	if strings.TrimSpace(parentTitle) != "" {
		folder := SanitizeName(parentTitle) + linksSuffix
		dir = filepath.Join(s.root, folder)
		rel = folder
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create page directory: %w", err)
	}

	base := SanitizeName(title)
	filename := s.reserve(dir, base)

	if err := os.WriteFile(filepath.Join(dir, filename), body, 0o644); err != nil {
		return "", fmt.Errorf("write page snapshot: %w", err)
	}
	return filepath.Join(rel, filename), nil
}

// reserve picks a unique "<base>.html" within dir, appending a counter on
// repeat titles.
func (s *Store) reserve(dir, base string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := filepath.Join(dir, base)
	n := s.used[key]
	s.used[key] = n + 1
	if n == 0 {
		return base + ".html"
	}
	return fmt.Sprintf("%s_%d.html", base, n+1)
}
