package crawler

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jchilling/TCGweb-health-checker/internal/fetcher"
)

// RenderMode classifies how a page delivers its content.
type RenderMode int

const (
	// ModeStatic pages carry their content in the initial HTML.
	ModeStatic RenderMode = iota
	// ModeSPA pages render client-side and need a network-settle wait.
	ModeSPA
	// ModeFrameset pages are legacy containers whose content lives in frames.
	ModeFrameset
)

func (m RenderMode) String() string {
	switch m {
	case ModeSPA:
		return "spa"
	case ModeFrameset:
		return "frameset"
	default:
		return "static"
	}
}

// Detection is the result of inspecting a navigated page.
type Detection struct {
	Mode       RenderMode
	Framework  string
	FrameLinks []string
}

// spaProbe checks for client framework globals inside the page. Returns the
// framework name or an empty string.
const spaProbe = `(function(){
	if (window.React || window.__REACT_DEVTOOLS_GLOBAL_HOOK__ || document.querySelector('[data-reactroot],#__next')) return 'react';
	if (window.Vue || window.__VUE__ || document.querySelector('[data-v-app],#__nuxt')) return 'vue';
	if (window.ng || window.getAllAngularRootElements || document.querySelector('[ng-version],app-root')) return 'angular';
	return '';
})()`

// DOM-attribute fallbacks for plain HTTP visits, where no script environment
// is available.
var spaMarkers = []struct {
	framework string
	selector  string
}{
	{"react", "[data-reactroot]"},
	{"react", "#__next"},
	{"vue", "[data-v-app]"},
	{"vue", "#__nuxt"},
	{"angular", "[ng-version]"},
	{"angular", "app-root"},
}

// detectRenderMode classifies a navigated page. Frameset wins over SPA: a
// frameset's own DOM never holds real content, so framework markers inside it
// are irrelevant.
func detectRenderMode(ctx context.Context, visit *fetcher.Visit, doc *goquery.Document, base *url.URL) Detection {
	if links := frameLinks(doc, base); len(links) > 0 {
		return Detection{Mode: ModeFrameset, FrameLinks: links}
	}

	if visit != nil && visit.Scripted() {
		var framework string
		if err := visit.Evaluate(ctx, spaProbe, &framework); err == nil && framework != "" {
			return Detection{Mode: ModeSPA, Framework: framework}
		}
		return Detection{Mode: ModeStatic}
	}

	for _, marker := range spaMarkers {
		if doc.Find(marker.selector).Length() > 0 {
			return Detection{Mode: ModeSPA, Framework: marker.framework}
		}
	}
	return Detection{Mode: ModeStatic}
}

// frameLinks resolves the source URLs of legacy frame elements.
func frameLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	seen := make(map[string]struct{})
	doc.Find("frameset frame[src], frame[src]").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok {
			return
		}
		src = strings.TrimSpace(src)
		if src == "" {
			return
		}
		resolved, err := base.Parse(src)
		if err != nil {
			return
		}
		resolved.Fragment = ""
		key := resolved.String()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		links = append(links, key)
	})
	return links
}
