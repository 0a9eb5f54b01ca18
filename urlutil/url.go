// Package urlutil provides the URL value type used as the crawl's identity key,
// href resolution for extracted links, and URL exclusion rules.
package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidURL is returned when a string cannot be turned into an absolute URL
// with both a scheme and a network location.
var ErrInvalidURL = errors.New("invalid URL")

// URL is an immutable absolute URL with its fragment removed.
// Two URLs are equal iff their full string forms are equal, so URL values can
// be compared with == and used as map keys.
type URL struct {
	full   string
	scheme string
	host   string
}

// Parse parses raw into a URL, dropping any fragment.
// The result must have a non-empty scheme and host.
func Parse(raw string) (URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return URL{}, fmt.Errorf("%w %q: %v", ErrInvalidURL, raw, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return URL{}, fmt.Errorf("%w %q: missing scheme or host", ErrInvalidURL, raw)
	}

	parsed.Fragment = ""
	parsed.RawFragment = ""

	return URL{
		full:   parsed.String(),
		scheme: parsed.Scheme,
		host:   parsed.Host,
	}, nil
}

// explicitScheme matches input that names its own scheme ("ftp://...").
var explicitScheme = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)

// ParseStart parses a user supplied start URL. Input without a scheme is
// assumed to be a plain http address ("localhost:5000"); any scheme other
// than http or https is rejected with ErrInvalidURL.
func ParseStart(raw string) (URL, error) {
	if !explicitScheme.MatchString(raw) {
		return Parse("http://" + raw)
	}
	if !IsHTTPScheme(raw) {
		return URL{}, fmt.Errorf("%w %q: only http and https are supported", ErrInvalidURL, raw)
	}
	return Parse(raw)
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(raw string) URL {
	u, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// String returns the full URL.
func (u URL) String() string { return u.full }

// Scheme returns the URL scheme.
func (u URL) Scheme() string { return u.scheme }

// Host returns the network location (host and optional port).
func (u URL) Host() string { return u.host }

// IsZero reports whether u is the zero URL.
func (u URL) IsZero() bool { return u.full == "" }

// SameHost reports whether u and other share a network location.
func (u URL) SameHost(other URL) bool { return u.host == other.host }

// MarshalText implements encoding.TextMarshaler.
func (u URL) MarshalText() ([]byte, error) { return []byte(u.full), nil }

// Link is an anchor found in a page: the raw href as written in the HTML and
// the absolute URL it resolves to.
type Link struct {
	Href   string
	Target URL
}

// ResolveHref resolves href against base. It returns false when the href uses a
// scheme other than http or https (mailto:, tel:, javascript:...) or cannot be
// parsed into an absolute URL.
func ResolveHref(href string, base URL) (URL, bool) {
	if idx := strings.IndexByte(href, '#'); idx >= 0 {
		href = href[:idx]
	}

	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return URL{}, false
	}
	baseURL, err := url.Parse(base.full)
	if err != nil {
		return URL{}, false
	}

	abs := baseURL.ResolveReference(ref).String()
	if !IsHTTPScheme(abs) {
		return URL{}, false
	}
	resolved, err := Parse(abs)
	if err != nil {
		return URL{}, false
	}
	return resolved, true
}
