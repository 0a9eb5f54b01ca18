package outcome

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
)

// Category classifies why a request failed without producing a response.
type Category string

const (
	CategoryTimeout           Category = "timeout"
	CategoryDNSFailure        Category = "dns_failure"
	CategoryConnectionRefused Category = "connection_refused"
	CategoryConnectionReset   Category = "connection_reset"
	CategoryTLS               Category = "tls"
	Category4xx               Category = "4xx"
	Category5xx               Category = "5xx"
	CategoryRedirectLoop      Category = "redirect_loop"
	CategoryInvalidRedirect   Category = "invalid_redirect"
	CategoryCanceled          Category = "canceled"
	CategoryUnknown           Category = "unknown"
)

// ClassifyError determines the category of a transport level error.
func ClassifyError(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	if errors.Is(err, context.Canceled) {
		return CategoryCanceled
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return CategoryTimeout
		}
		return CategoryDNSFailure
	}

	var certErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) {
		return CategoryTLS
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return CategoryTimeout
		}
		msg := opErr.Error()
		switch {
		case opErr.Op == "dial" && strings.Contains(msg, "connection refused"):
			return CategoryConnectionRefused
		case strings.Contains(msg, "connection reset"):
			return CategoryConnectionReset
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	return CategoryUnknown
}

// Transient reports whether a failure of this category may succeed when retried.
func (c Category) Transient() bool {
	switch c {
	case CategoryTimeout, CategoryDNSFailure, CategoryConnectionRefused, CategoryConnectionReset:
		return true
	default:
		return false
	}
}

// Failure returns the category of a failed outcome and false for an ok one.
func Failure(o Outcome) (Category, bool) {
	if o == nil {
		return CategoryUnknown, true
	}
	if o.OK() {
		return "", false
	}
	if failure, ok := o.(RequestError); ok {
		return failure.Category, true
	}
	if code, ok := o.StatusCode(); ok && code < 500 {
		return Category4xx, true
	}
	return Category5xx, true
}

// Label returns a human-readable label for a category.
func (c Category) Label() string {
	switch c {
	case CategoryTimeout:
		return "Timeouts"
	case CategoryDNSFailure:
		return "DNS Failures"
	case CategoryConnectionRefused:
		return "Connection Refused"
	case CategoryConnectionReset:
		return "Connection Reset"
	case CategoryTLS:
		return "TLS Errors"
	case Category4xx:
		return "Client Errors (4xx)"
	case Category5xx:
		return "Server Errors (5xx)"
	case CategoryRedirectLoop:
		return "Redirect Loops"
	case CategoryInvalidRedirect:
		return "Invalid Redirects"
	default:
		return "Other Errors"
	}
}
