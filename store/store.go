// Package store holds the crawl's single source of truth: one immutable record
// per fetched URL and the set of every URL ever discovered.
package store

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/lukemcguire/linkwalk/outcome"
	"github.com/lukemcguire/linkwalk/urlutil"
)

var (
	// ErrAlreadyStored is returned when a record is added twice for the same URL.
	ErrAlreadyStored = errors.New("url already stored")
	// ErrFrozen is returned when a record is added after the crawl completed.
	ErrFrozen = errors.New("store is frozen")
)

// Record is the outcome of fetching one URL and, for traversed pages, the
// anchors found in its body.
//
// Links is nil when the URL was not traversed: it was only probed with HEAD,
// the fetch failed or was excluded, or it redirected. A traversed page with no
// anchors has a non-nil empty Links.
type Record struct {
	URL     urlutil.URL
	Outcome outcome.Outcome
	Links   []urlutil.Link
}

// Traversed reports whether the record's page was fetched and parsed for links.
func (r Record) Traversed() bool {
	return r.Links != nil
}

// targets lists the URLs the record points to: the redirect target for a
// redirect, else the targets of its links.
func (r Record) targets() []urlutil.URL {
	if target, ok := r.Outcome.RedirectTarget(); ok {
		return []urlutil.URL{target}
	}
	targets := make([]urlutil.URL, 0, len(r.Links))
	for _, link := range r.Links {
		targets = append(targets, link.Target)
	}
	return targets
}

// Store maps URLs to records. Every method is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	records map[urlutil.URL]Record
	seen    *seenSet
	frozen  bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records: make(map[urlutil.URL]Record),
		seen:    newSeenSet(),
	}
}

// AddPage stores rec and returns the URLs it points to that were never seen
// before, in the order they appear in the record. Each returned URL is marked
// seen, so it is handed to exactly one caller; that caller must schedule it.
//
// A URL can be stored only once. A second call for the same URL returns
// ErrAlreadyStored and leaves the store untouched.
func (s *Store) AddPage(rec Record) ([]urlutil.URL, error) {
	if rec.URL.IsZero() {
		return nil, fmt.Errorf("add page: %w", urlutil.ErrInvalidURL)
	}
	if rec.Outcome == nil {
		return nil, fmt.Errorf("add page %s: nil outcome", rec.URL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return nil, fmt.Errorf("add page %s: %w", rec.URL, ErrFrozen)
	}
	if _, exists := s.records[rec.URL]; exists {
		return nil, fmt.Errorf("add page %s: %w", rec.URL, ErrAlreadyStored)
	}

	s.records[rec.URL] = rec
	s.seen.add(rec.URL.String())

	var fresh []urlutil.URL
	for _, target := range rec.targets() {
		if s.seen.add(target.String()) {
			fresh = append(fresh, target)
		}
	}
	return fresh, nil
}

// Lookup returns the record stored for u.
func (s *Store) Lookup(u urlutil.URL) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[u]
	return rec, ok
}

// ResolveChain follows redirects from start through the stored records.
// A URL without a record ends the chain with Unknown. A URL met twice ends it
// with a redirect loop error.
func (s *Store) ResolveChain(start urlutil.URL) outcome.Chain {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chain outcome.Chain
	visited := make(map[urlutil.URL]bool)

	current := start
	for {
		if visited[current] {
			chain = append(chain, outcome.RequestError{
				Message:  fmt.Sprintf("redirect loop at %s", current),
				Category: outcome.CategoryRedirectLoop,
			})
			return chain
		}
		visited[current] = true

		rec, ok := s.records[current]
		if !ok {
			return append(chain, outcome.Unknown{})
		}
		chain = append(chain, rec.Outcome)

		next, isRedirect := rec.Outcome.RedirectTarget()
		if !isRedirect {
			return chain
		}
		current = next
	}
}

// Records returns every record ordered by URL.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b Record) int {
		return strings.Compare(a.URL.String(), b.URL.String())
	})
	return records
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// SeenCount returns the number of URLs ever discovered.
func (s *Store) SeenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen.len()
}

// Freeze rejects any further AddPage call.
func (s *Store) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
}
