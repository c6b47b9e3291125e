package fetcher

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding/htmlindex"
)

// toUTF8 transcodes an HTML body to UTF-8 based on the declared charset.
// Bodies with no usable declaration pass through untouched.
func toUTF8(body []byte, contentType string) ([]byte, error) {
	name := detectCharset(contentType, body)
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "utf-8" || name == "utf8" {
		return body, nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("charset %q: %w", name, err)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", name, err)
	}
	return decoded, nil
}

// detectCharset reads the charset from the Content-Type header, falling back
// to meta tags in the document head.
func detectCharset(contentType string, body []byte) string {
	if contentType != "" {
		for _, part := range strings.Split(contentType, ";") {
			part = strings.TrimSpace(strings.ToLower(part))
			if strings.HasPrefix(part, "charset=") {
				return strings.Trim(strings.TrimPrefix(part, "charset="), `"'`)
			}
		}
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return findMetaCharset(doc)
}

func findMetaCharset(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "meta" {
		var httpEquiv, content, charsetAttr string
		for _, attr := range n.Attr {
			switch strings.ToLower(attr.Key) {
			case "http-equiv":
				httpEquiv = strings.ToLower(attr.Val)
			case "content":
				content = attr.Val
			case "charset":
				charsetAttr = attr.Val
			}
		}
		if charsetAttr != "" {
			return charsetAttr
		}
		if httpEquiv == "content-type" && content != "" {
			for _, part := range strings.Split(content, ";") {
				part = strings.TrimSpace(strings.ToLower(part))
				if strings.HasPrefix(part, "charset=") {
					return strings.TrimPrefix(part, "charset=")
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findMetaCharset(c); found != "" {
			return found
		}
	}
	return ""
}
