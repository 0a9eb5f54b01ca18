// Package result turns a completed crawl store into a per-page report and
// renders it as text, JSON, CSV or SQLite.
package result

import (
	"strings"

	"github.com/lukemcguire/linkwalk/outcome"
	"github.com/lukemcguire/linkwalk/store"
	"github.com/lukemcguire/linkwalk/urlutil"
)

// LinkResult is one anchor of a traversed page with the chain of outcomes
// its target leads to.
type LinkResult struct {
	Href   string        // Raw href attribute
	Target urlutil.URL   // Resolved target
	Chain  outcome.Chain // Outcomes from Target to the final resolution
}

// OK reports whether the last outcome of the chain is ok.
func (l LinkResult) OK() bool { return l.Chain.OK() }

// Describe joins the outcomes of the chain with arrows: "302 → 404".
func (l LinkResult) Describe() string {
	parts := make([]string, 0, len(l.Chain))
	for _, o := range l.Chain {
		parts = append(parts, outcome.Describe(o))
	}
	return strings.Join(parts, " → ")
}

// Page holds the link results of one traversed page.
type Page struct {
	URL   urlutil.URL
	Links []LinkResult
}

// FailedLinks returns the links of p that are not ok, in page order.
func (p Page) FailedLinks() []LinkResult {
	var failed []LinkResult
	for _, link := range p.Links {
		if !link.OK() {
			failed = append(failed, link)
		}
	}
	return failed
}

// Stats counts link results, not URLs: a target linked twice counts twice.
type Stats struct {
	OK     int
	Failed int
}

// Total returns the number of link results.
func (s Stats) Total() int { return s.OK + s.Failed }

// Analysis is the immutable report built from a completed store.
type Analysis struct {
	Stats Stats
	Pages []Page // Sorted by URL
}

// OK reports whether no link failed.
func (a *Analysis) OK() bool { return a.Stats.Failed == 0 }

// Analyze builds an Analysis from every traversed record of st.
func Analyze(st *store.Store) *Analysis {
	analysis := &Analysis{Pages: []Page{}}

	for _, rec := range st.Records() {
		if !rec.Traversed() {
			continue
		}

		page := Page{URL: rec.URL, Links: make([]LinkResult, 0, len(rec.Links))}
		for _, link := range rec.Links {
			res := LinkResult{
				Href:   link.Href,
				Target: link.Target,
				Chain:  st.ResolveChain(link.Target),
			}
			if res.OK() {
				analysis.Stats.OK++
			} else {
				analysis.Stats.Failed++
			}
			page.Links = append(page.Links, res)
		}
		analysis.Pages = append(analysis.Pages, page)
	}

	return analysis
}
