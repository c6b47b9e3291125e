package crawler

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestDetectFrameset(t *testing.T) {
	doc := parseDoc(t, `<html><frameset><frame src="menu.html"><frame src="/pages/body.html"><frame src="menu.html"></frameset></html>`)
	base := mustURL(t, "http://example.test/app/")

	d := detectRenderMode(context.Background(), nil, doc, base)
	if d.Mode != ModeFrameset {
		t.Fatalf("mode = %v, want frameset", d.Mode)
	}
	want := []string{
		"http://example.test/app/menu.html",
		"http://example.test/pages/body.html",
	}
	if len(d.FrameLinks) != len(want) {
		t.Fatalf("frame links = %v, want %v", d.FrameLinks, want)
	}
	for i := range want {
		if d.FrameLinks[i] != want[i] {
			t.Fatalf("frame link %d = %s, want %s", i, d.FrameLinks[i], want[i])
		}
	}
}

func TestDetectSPAByDOMMarkers(t *testing.T) {
	cases := []struct {
		html      string
		framework string
	}{
		{`<html><body><div id="__next"></div></body></html>`, "react"},
		{`<html><body><div data-reactroot=""></div></body></html>`, "react"},
		{`<html><body><div id="__nuxt"></div></body></html>`, "vue"},
		{`<html><body><app-root></app-root></body></html>`, "angular"},
		{`<html><body><div ng-version="17.0.1"></div></body></html>`, "angular"},
	}
	base := mustURL(t, "http://example.test/")
	for _, tc := range cases {
		d := detectRenderMode(context.Background(), nil, parseDoc(t, tc.html), base)
		if d.Mode != ModeSPA || d.Framework != tc.framework {
			t.Errorf("detect(%q) = %v/%s, want spa/%s", tc.html, d.Mode, d.Framework, tc.framework)
		}
	}
}

func TestDetectStatic(t *testing.T) {
	doc := parseDoc(t, `<html><body><h1>Plain page</h1><iframe src="embed.html"></iframe></body></html>`)
	d := detectRenderMode(context.Background(), nil, doc, mustURL(t, "http://example.test/"))
	if d.Mode != ModeStatic {
		t.Fatalf("mode = %v, want static", d.Mode)
	}
}

func TestFramesetBeatsSPAMarkers(t *testing.T) {
	doc := parseDoc(t, `<html><frameset><frame src="a.html"></frameset><div id="__next"></div></html>`)
	d := detectRenderMode(context.Background(), nil, doc, mustURL(t, "http://example.test/"))
	if d.Mode != ModeFrameset {
		t.Fatalf("mode = %v, want frameset", d.Mode)
	}
}

func TestFindSitemapLink(t *testing.T) {
	base := mustURL(t, "http://example.test/")

	doc := parseDoc(t, `<html><body><a href="/about">About</a><a href="/guide">網站導覽</a></body></html>`)
	link, ok := findSitemapLink(doc, base)
	if !ok || link != "http://example.test/guide" {
		t.Fatalf("sitemap link = %q, %v", link, ok)
	}

	doc = parseDoc(t, `<html><body><a href="/sitemap.aspx">overview</a></body></html>`)
	link, ok = findSitemapLink(doc, base)
	if !ok || link != "http://example.test/sitemap.aspx" {
		t.Fatalf("href-matched sitemap link = %q, %v", link, ok)
	}

	doc = parseDoc(t, `<html><body><a href="/about">About</a></body></html>`)
	if _, ok = findSitemapLink(doc, base); ok {
		t.Fatal("found sitemap link where none exists")
	}
}

func TestMainContentScopePriority(t *testing.T) {
	doc := parseDoc(t, `<html><body><div class="content"><a href="/c">c</a></div><main><a href="/m">m</a></main></body></html>`)
	scope := mainContentScope(doc)
	if scope == nil {
		t.Fatal("no scope found")
	}
	if scope.Find("a").Length() != 1 {
		t.Fatalf("scope anchors = %d, want 1", scope.Find("a").Length())
	}
	href, _ := scope.Find("a").Attr("href")
	if href != "/m" {
		t.Fatalf("scope picked %q, want the semantic landmark", href)
	}

	doc = parseDoc(t, `<html><body><div id="ccm_content_wrap"><a href="/f">f</a></div></body></html>`)
	if scope = mainContentScope(doc); scope == nil {
		t.Fatal("partial-match fallback did not fire")
	}

	doc = parseDoc(t, `<html><body><p>nothing</p></body></html>`)
	if scope = mainContentScope(doc); scope != nil {
		t.Fatal("scope found on page without content containers")
	}
}

func TestMainContentScopeSkipsAnchorlessCandidates(t *testing.T) {
	doc := parseDoc(t, `<html><body>
		<main><h1>Banner only</h1></main>
		<div id="content"><a href="/x">x</a></div>
	</body></html>`)
	scope := mainContentScope(doc)
	if scope == nil {
		t.Fatal("no scope found")
	}
	href, _ := scope.Find("a").Attr("href")
	if href != "/x" {
		t.Fatalf("scope picked %q, want the container with links", href)
	}

	doc = parseDoc(t, `<html><body><main><h1>Banner only</h1></main></body></html>`)
	if scope = mainContentScope(doc); scope != nil {
		t.Fatal("anchor-less regions must not become the scope")
	}
}
