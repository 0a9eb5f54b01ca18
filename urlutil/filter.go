package urlutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// IsHTTPScheme returns true if the URL has an http or https scheme.
// Returns false for empty strings, non-HTTP schemes, or unparseable URLs.
func IsHTTPScheme(rawURL string) bool {
	if rawURL == "" {
		return false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	scheme := strings.ToLower(parsed.Scheme)
	return scheme == "http" || scheme == "https"
}

// ExcluderRegexError reports an exclusion pattern that failed to compile.
type ExcluderRegexError struct {
	Regex string
	Err   error
}

func (e *ExcluderRegexError) Error() string {
	return fmt.Sprintf("invalid exclude pattern %q: %v", e.Regex, e.Err)
}

func (e *ExcluderRegexError) Unwrap() error { return e.Err }

// Excluder matches URLs against a set of unanchored regular expressions.
// A URL is excluded when any pattern matches anywhere in its full form.
type Excluder struct {
	patterns []*regexp.Regexp
}

// NewExcluder compiles regexes. The first pattern that fails to compile is
// reported as an *ExcluderRegexError.
func NewExcluder(regexes []string) (*Excluder, error) {
	patterns := make([]*regexp.Regexp, 0, len(regexes))
	for _, expr := range regexes {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, &ExcluderRegexError{Regex: expr, Err: err}
		}
		patterns = append(patterns, re)
	}
	return &Excluder{patterns: patterns}, nil
}

// Excluded reports whether u matches any pattern. A nil Excluder excludes nothing.
func (e *Excluder) Excluded(u URL) bool {
	if e == nil {
		return false
	}
	for _, re := range e.patterns {
		if re.MatchString(u.full) {
			return true
		}
	}
	return false
}

// Len returns the number of patterns.
func (e *Excluder) Len() int {
	if e == nil {
		return 0
	}
	return len(e.patterns)
}
