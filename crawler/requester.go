package crawler

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/sirupsen/logrus"

	"github.com/lukemcguire/linkwalk/outcome"
	"github.com/lukemcguire/linkwalk/urlutil"
)

// Requester performs one HTTP request for a URL and classifies the result.
// Ordinary HTTP failures are returned as outcomes, never as errors; a single
// redirect hop is returned as outcome.Redirect without being followed.
type Requester interface {
	Fetch(ctx context.Context, u urlutil.URL, useHead bool) outcome.Outcome
}

// HTTPRequester implements Requester over net/http.
type HTTPRequester struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	excluder     *urlutil.Excluder
	retryPolicy  RetryPolicy
	log          logrus.FieldLogger
}

// NewHTTPRequester creates a requester that skips every URL matched by excluder.
// A nil excluder excludes nothing.
func NewHTTPRequester(cfg Config, excluder *urlutil.Excluder, log logrus.FieldLogger) *HTTPRequester {
	cfg = cfg.withDefaults()

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.Concurrency,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.Insecure}, //nolint:gosec // opt-in flag
	}

	return &HTTPRequester{
		client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
			// Redirects are reported one hop at a time.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent:    cfg.UserAgent,
		maxBodyBytes: cfg.MaxBodyBytes,
		excluder:     excluder,
		retryPolicy:  cfg.RetryPolicy,
		log:          log,
	}
}

// Fetch issues a GET, or a HEAD when useHead is set, for u.
func (r *HTTPRequester) Fetch(ctx context.Context, u urlutil.URL, useHead bool) outcome.Outcome {
	if r.excluder.Excluded(u) {
		r.log.WithField("url", u.String()).Debug("excluded")
		return outcome.Excluded{}
	}

	method := http.MethodGet
	if useHead {
		method = http.MethodHead
	}
	return r.fetchWithRetry(ctx, u, method)
}

func (r *HTTPRequester) fetch(ctx context.Context, u urlutil.URL, method string) outcome.Outcome {
	r.log.WithFields(logrus.Fields{"method": method, "url": u.String()}).Debug("request")

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return outcome.NewRequestError(err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := r.client.Do(req)
	if err != nil {
		failure := outcome.NewRequestError(err)
		r.log.WithFields(logrus.Fields{
			"url":      u.String(),
			"category": failure.Category,
		}).Debug("request failed")
		return failure
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		_ = resp.Body.Close()
	}()

	if location := resp.Header.Get("Location"); isRedirect(resp.StatusCode) && location != "" {
		target, ok := urlutil.ResolveHref(location, u)
		if !ok {
			return outcome.RequestError{
				Message:  fmt.Sprintf("invalid redirect location %q", location),
				Category: outcome.CategoryInvalidRedirect,
			}
		}
		return outcome.Redirect{Code: resp.StatusCode, Location: location, Target: target}
	}

	page := outcome.Page{
		Code:        resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if method == http.MethodHead || isBinaryContentType(page.ContentType) {
		return page
	}

	body, err := r.readBody(resp)
	if err != nil {
		return outcome.NewRequestError(fmt.Errorf("read body of %s: %w", u, err))
	}
	page.Body = body
	return page
}

// readBody decodes the response body, keeping at most maxBodyBytes of it.
func (r *HTTPRequester) readBody(resp *http.Response) (string, error) {
	reader := io.Reader(resp.Body)

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("gzip decode: %w", err)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer func() { _ = fl.Close() }()
		reader = fl
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	body, err := io.ReadAll(io.LimitReader(reader, r.maxBodyBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// isBinaryContentType reports whether a response cannot contain HTML anchors,
// in which case its body is not downloaded.
func isBinaryContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}

	switch {
	case strings.HasPrefix(mediaType, "image/"),
		strings.HasPrefix(mediaType, "video/"),
		strings.HasPrefix(mediaType, "audio/"),
		strings.HasPrefix(mediaType, "font/"):
		return true
	}

	switch mediaType {
	case "application/pdf",
		"application/zip",
		"application/x-zip-compressed",
		"application/gzip",
		"application/vnd.rar",
		"application/x-7z-compressed",
		"application/octet-stream":
		return true
	default:
		return false
	}
}
