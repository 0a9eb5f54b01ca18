package crawler

import (
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/lukemcguire/linkwalk/urlutil"
)

// LinkExtractor returns the anchors of an HTML body resolved against base.
// Implementations must not touch the network.
type LinkExtractor interface {
	Extract(body string, base urlutil.URL) []urlutil.Link
}

// HTMLExtractor extracts the href of every <a> tag.
type HTMLExtractor struct{}

// Extract implements LinkExtractor.
func (HTMLExtractor) Extract(body string, base urlutil.URL) []urlutil.Link {
	return ExtractLinks(strings.NewReader(body), base)
}

// ExtractLinks tokenizes HTML from body and returns one Link per anchor, in
// document order. Hrefs with a non-HTTP scheme or that fail to resolve are
// dropped. Duplicates are kept: two anchors to the same target are two links.
// The returned slice is never nil.
func ExtractLinks(body io.Reader, base urlutil.URL) []urlutil.Link {
	tokenizer := html.NewTokenizer(body)
	links := []urlutil.Link{}

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			// io.EOF or a read error; a truncated body still yields its anchors.
			return links
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "a" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = tokenizer.TagAttr()
				if string(key) != "href" {
					continue
				}
				href := string(val)
				if target, ok := urlutil.ResolveHref(href, base); ok {
					links = append(links, urlutil.Link{Href: href, Target: target})
				}
				break
			}
		}
	}
}
