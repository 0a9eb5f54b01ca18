// Package outcome models the classified result of fetching one URL.
//
// Outcome is a closed sum type: the only implementations are Page, Redirect,
// RequestError, Excluded and Unknown. Consumers switch on the concrete type and
// must handle every variant.
package outcome

import (
	"fmt"

	"github.com/lukemcguire/linkwalk/urlutil"
)

// Outcome is the result of attempting to fetch a URL.
type Outcome interface {
	// OK reports whether the outcome counts as a working link.
	OK() bool
	// StatusCode returns the HTTP status code, if a response was received.
	StatusCode() (int, bool)
	// RedirectTarget returns the next hop of a redirect.
	RedirectTarget() (urlutil.URL, bool)
	// ErrorMessage returns the failure description of a request error.
	ErrorMessage() (string, bool)

	sealed()
}

// StatusOK reports whether an HTTP status code is not a client or server error.
func StatusOK(code int) bool {
	return code < 400 || code >= 600
}

// Page is a final (non redirect) HTTP response.
type Page struct {
	Code        int
	Body        string
	ContentType string
}

// OK reports whether the status code is below 400, or is non-standard (600 and above).
func (p Page) OK() bool {
	return StatusOK(p.Code)
}

// StatusCode returns the response status code.
func (p Page) StatusCode() (int, bool) {
	return p.Code, true
}

// RedirectTarget always reports false: a page ends its chain.
func (p Page) RedirectTarget() (urlutil.URL, bool) {
	return urlutil.URL{}, false
}

// ErrorMessage always reports false.
func (p Page) ErrorMessage() (string, bool) {
	return "", false
}

func (Page) sealed() {}

// Redirect is a single redirect hop. It is always locally ok; whether the link
// works depends on where the chain ends.
type Redirect struct {
	Code     int
	Location string // Raw Location header
	Target   urlutil.URL
}

// OK always reports true.
func (r Redirect) OK() bool {
	return true
}

// StatusCode returns the 3xx status code of the hop.
func (r Redirect) StatusCode() (int, bool) {
	return r.Code, true
}

// RedirectTarget returns the resolved Location of the hop.
func (r Redirect) RedirectTarget() (urlutil.URL, bool) {
	return r.Target, true
}

// ErrorMessage always reports false.
func (r Redirect) ErrorMessage() (string, bool) {
	return "", false
}

func (Redirect) sealed() {}

// RequestError is a failure to obtain any response: connection, TLS, timeout.
type RequestError struct {
	Message  string
	Category Category
}

// NewRequestError builds a RequestError from a transport error.
func NewRequestError(err error) RequestError {
	return RequestError{Message: err.Error(), Category: ClassifyError(err)}
}

// OK always reports false.
func (e RequestError) OK() bool {
	return false
}

// StatusCode always reports false: no response was received.
func (e RequestError) StatusCode() (int, bool) {
	return 0, false
}

// RedirectTarget always reports false.
func (e RequestError) RedirectTarget() (urlutil.URL, bool) {
	return urlutil.URL{}, false
}

// ErrorMessage returns the failure description.
func (e RequestError) ErrorMessage() (string, bool) {
	return e.Message, true
}

func (RequestError) sealed() {}

// Excluded marks a URL that was intentionally never fetched. It counts as ok.
type Excluded struct{}

func (Excluded) OK() bool {
	return true
}

func (Excluded) StatusCode() (int, bool) {
	return 0, false
}

func (Excluded) RedirectTarget() (urlutil.URL, bool) {
	return urlutil.URL{}, false
}

func (Excluded) ErrorMessage() (string, bool) {
	return "", false
}

func (Excluded) sealed() {}

// Unknown stands in for a URL that a chain references but that was never
// resolved on its own. It counts as ok: its real status is reported where the
// URL itself is linked.
type Unknown struct{}

func (Unknown) OK() bool {
	return true
}

func (Unknown) StatusCode() (int, bool) {
	return 0, false
}

func (Unknown) RedirectTarget() (urlutil.URL, bool) {
	return urlutil.URL{}, false
}

func (Unknown) ErrorMessage() (string, bool) {
	return "", false
}

func (Unknown) sealed() {}

// Chain is the sequence of outcomes met while following redirects from a
// link's target to its final resolution.
type Chain []Outcome

// OK reports whether the last outcome of the chain is ok. An empty chain is not ok.
func (c Chain) OK() bool {
	if len(c) == 0 {
		return false
	}
	return c[len(c)-1].OK()
}

// Final returns the last outcome of the chain, or nil for an empty chain.
func (c Chain) Final() Outcome {
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// Describe renders a short human readable label: the status code for
// responses and redirects, the message for request errors.
func Describe(o Outcome) string {
	switch v := o.(type) {
	case Page:
		return fmt.Sprint(v.Code)
	case Redirect:
		return fmt.Sprint(v.Code)
	case RequestError:
		return v.Message
	case Excluded:
		return "excluded"
	case Unknown:
		return "unknown"
	default:
		panic(fmt.Sprintf("outcome: unhandled variant %T", o))
	}
}
