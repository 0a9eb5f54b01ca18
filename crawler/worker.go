package crawler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lukemcguire/linkwalk/outcome"
	"github.com/lukemcguire/linkwalk/store"
	"github.com/lukemcguire/linkwalk/urlutil"
)

// Config holds crawler configuration.
type Config struct {
	StartURL       string        // The starting URL for the crawl
	Concurrency    int           // Number of concurrent workers (default 4)
	RequestTimeout time.Duration // Per-request timeout (default 10s)
	UserAgent      string        // User-Agent header sent with every request
	Exclude        []string      // Regexes of URLs that are never fetched
	MaxBodyBytes   int64         // Response bodies are truncated to this size (default 5 MiB)
	Insecure       bool          // Skip TLS certificate verification
	RetryPolicy    RetryPolicy   // Zero value disables retries
}

const (
	defaultConcurrency    = 4
	defaultRequestTimeout = 10 * time.Second
	defaultMaxBodyBytes   = 5 << 20
	defaultUserAgent      = "linkwalk/1.0 (+https://github.com/lukemcguire/linkwalk)"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(startURL string) Config {
	return Config{
		StartURL:       startURL,
		Concurrency:    defaultConcurrency,
		RequestTimeout: defaultRequestTimeout,
		UserAgent:      defaultUserAgent,
		MaxBodyBytes:   defaultMaxBodyBytes,
	}
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	return c
}

// work drains the queue until it is closed. Each dequeued URL is fetched,
// stored, and its newly discovered targets are pushed back onto the queue.
func (c *Crawler) work(ctx context.Context, id int) error {
	log := c.log.WithField("worker", id)
	for {
		u, ok := c.queue.pop()
		if !ok {
			return nil
		}

		c.monitor.taskStarted(u, c.queue.len())
		rec, fresh, err := c.investigate(ctx, u)
		if err != nil {
			c.monitor.taskAbandoned(c.queue.len())
			c.queue.done()
			return err
		}
		if ctx.Err() != nil {
			// Cancelled mid-fetch: the outcome is an artifact of the abort.
			c.monitor.taskAbandoned(c.queue.len())
			c.queue.done()
			continue
		}

		for _, target := range fresh {
			c.queue.push(target)
		}
		log.WithFields(logrus.Fields{
			"url": u.String(),
			"ok":  rec.Outcome.OK(),
			"new": len(fresh),
		}).Debug("stored")
		c.monitor.taskDone(u, rec.Outcome, c.queue.len())
		c.queue.done()
	}
}

// investigate fetches u according to the origin policy and stores the record.
// A panic or a store invariant violation is returned as ErrWorkerFault.
func (c *Crawler) investigate(ctx context.Context, u urlutil.URL) (rec store.Record, fresh []urlutil.URL, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic while processing %s: %v", ErrWorkerFault, u, r)
		}
	}()

	rec = store.Record{URL: u}
	if u.SameHost(c.landing) {
		rec.Outcome = c.requester.Fetch(ctx, u, false)
		if page, isPage := rec.Outcome.(outcome.Page); isPage && page.OK() {
			rec.Links = c.extractor.Extract(page.Body, u)
		}
	} else {
		rec.Outcome = c.requester.Fetch(ctx, u, true)
		if code, _ := rec.Outcome.StatusCode(); code == http.StatusMethodNotAllowed {
			rec.Outcome = c.requester.Fetch(ctx, u, false)
		}
	}

	if ctx.Err() != nil {
		return rec, nil, nil
	}

	fresh, err = c.store.AddPage(rec)
	if err != nil {
		return rec, nil, fmt.Errorf("%w: %w", ErrWorkerFault, err)
	}
	return rec, fresh, nil
}
