package audit

import (
	"strings"
	"testing"
)

func TestParseSites(t *testing.T) {
	in := "url,name,depth\n" +
		"https://example.gov.tw,Town Office,3\n" +
		"https://other.example.org,,2\n" +
		"\n" +
		",,\n"
	sites, err := ParseSites(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseSites: %v", err)
	}
	if len(sites) != 2 {
		t.Fatalf("got %d sites, want 2", len(sites))
	}
	if sites[0].Name != "Town Office" || sites[0].Depth != 3 {
		t.Errorf("first site = %+v", sites[0])
	}
	if sites[1].Name != "other.example.org" {
		t.Errorf("name should default to the hostname, got %q", sites[1].Name)
	}
	if sites[1].Depth != 2 {
		t.Errorf("depth = %d, want 2", sites[1].Depth)
	}
}

func TestParseSitesHandlesBOMAndHeaderCase(t *testing.T) {
	in := "\uFEFFURL,Name\nhttps://example.gov.tw,Office\n"
	sites, err := ParseSites(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseSites: %v", err)
	}
	if sites[0].URL != "https://example.gov.tw" {
		t.Errorf("url = %q", sites[0].URL)
	}
}

func TestParseSitesMissingURLColumn(t *testing.T) {
	if _, err := ParseSites(strings.NewReader("name,depth\nOffice,2\n")); err == nil {
		t.Fatal("expected error for missing url column")
	}
}

func TestParseSitesBadDepth(t *testing.T) {
	in := "url,depth\nhttps://example.gov.tw,deep\n"
	if _, err := ParseSites(strings.NewReader(in)); err == nil {
		t.Fatal("expected error for non-numeric depth")
	}
	if _, err := ParseSites(strings.NewReader(in)); err != nil && !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error should name the offending line, got %v", err)
	}
}

func TestParseSitesEmptyList(t *testing.T) {
	if _, err := ParseSites(strings.NewReader("url,name\n")); err == nil {
		t.Fatal("expected error for empty site list")
	}
}
