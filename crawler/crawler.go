// Package crawler implements the link-integrity crawl engine: it resolves the
// start URL, then drains a FIFO of discovered URLs with a fixed-size worker
// pool, storing exactly one outcome per URL.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lukemcguire/linkwalk/outcome"
	"github.com/lukemcguire/linkwalk/store"
	"github.com/lukemcguire/linkwalk/urlutil"
)

// Fatal conditions. Per-link failures are never reported through these.
var (
	ErrRedirectCycle  = errors.New("redirect cycle on start URL")
	ErrStartRequest   = errors.New("start URL request failed")
	ErrBadStartStatus = errors.New("bad response status code")
	ErrStartExcluded  = errors.New("start URL is excluded")
	ErrWorkerFault    = errors.New("worker fault")
)

// maxStartRedirects bounds the sequential redirect prefix of the start URL.
const maxStartRedirects = 30

// Crawler coordinates the crawl of one site.
type Crawler struct {
	cfg       Config
	start     urlutil.URL
	requester Requester
	extractor LinkExtractor
	log       logrus.FieldLogger
	monitor   *monitor

	store   *store.Store
	queue   *workQueue
	landing urlutil.URL
	seeds   []urlutil.URL
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithRequester replaces the HTTP requester. The exclusion patterns in Config
// only apply to the default requester.
func WithRequester(r Requester) Option {
	return func(c *Crawler) { c.requester = r }
}

// WithExtractor replaces the HTML link extractor.
func WithExtractor(e LinkExtractor) Option {
	return func(c *Crawler) { c.extractor = e }
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Crawler) { c.log = log }
}

// New creates a Crawler with the given configuration.
// The progressCh parameter is optional; pass nil to disable progress events.
func New(cfg Config, progressCh chan<- CrawlEvent, opts ...Option) (*Crawler, error) {
	cfg = cfg.withDefaults()

	start, err := urlutil.ParseStart(cfg.StartURL)
	if err != nil {
		return nil, fmt.Errorf("parse start URL: %w", err)
	}

	c := &Crawler{
		cfg:       cfg,
		start:     start,
		extractor: HTMLExtractor{},
		log:       discardLogger(),
		monitor:   newMonitor(progressCh),
		store:     store.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.requester == nil {
		excluder, err := urlutil.NewExcluder(cfg.Exclude)
		if err != nil {
			return nil, err
		}
		if excluder.Len() > 0 {
			c.log.WithField("patterns", excluder.Len()).Debug("exclusion enabled")
		}
		c.requester = NewHTTPRequester(cfg, excluder, c.log)
	}
	return c, nil
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// Start returns the parsed start URL.
func (c *Crawler) Start() urlutil.URL { return c.start }

// Landing returns the page reached after following the start URL's
// redirects. It is zero until ResolveStart succeeds.
func (c *Crawler) Landing() urlutil.URL { return c.landing }

// Store returns the crawl's URL store.
func (c *Crawler) Store() *store.Store { return c.store }

// Progress returns the current progress counters.
func (c *Crawler) Progress() CrawlEvent { return c.monitor.snapshot() }

// ResolveStart fetches the start URL and follows its redirects one hop at a
// time. Every hop and the landing page are stored, and the landing page's
// new link targets become the crawl's seeds.
func (c *Crawler) ResolveStart(ctx context.Context) error {
	if !c.landing.IsZero() {
		return nil
	}

	visited := make(map[urlutil.URL]struct{})
	current := c.start
	for {
		if _, ok := visited[current]; ok {
			return fmt.Errorf("%w: %s visited twice", ErrRedirectCycle, current)
		}
		if len(visited) > maxStartRedirects {
			return fmt.Errorf("%w: more than %d redirects", ErrRedirectCycle, maxStartRedirects)
		}
		visited[current] = struct{}{}

		res := c.requester.Fetch(ctx, current, false)
		if err := ctx.Err(); err != nil {
			return err
		}

		switch v := res.(type) {
		case outcome.Redirect:
			c.log.WithFields(logrus.Fields{
				"code": v.Code,
				"from": current.String(),
				"to":   v.Target.String(),
			}).Info("start URL redirected")
			if _, err := c.store.AddPage(store.Record{URL: current, Outcome: v}); err != nil {
				return fmt.Errorf("%w: %w", ErrWorkerFault, err)
			}
			current = v.Target

		case outcome.Page:
			if !v.OK() {
				return fmt.Errorf("%w: %d", ErrBadStartStatus, v.Code)
			}
			rec := store.Record{
				URL:     current,
				Outcome: v,
				Links:   c.extractor.Extract(v.Body, current),
			}
			seeds, err := c.store.AddPage(rec)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrWorkerFault, err)
			}
			c.landing = current
			c.seeds = seeds
			c.log.WithFields(logrus.Fields{
				"url":   current.String(),
				"links": len(rec.Links),
				"new":   len(seeds),
			}).Debug("landing page")
			return nil

		case outcome.RequestError:
			return fmt.Errorf("%w: %s", ErrStartRequest, v.Message)

		case outcome.Excluded:
			return fmt.Errorf("%w: %s", ErrStartExcluded, current)

		default:
			return fmt.Errorf("%w: unexpected outcome %T for %s", ErrStartRequest, res, current)
		}
	}
}

// Crawl runs the worker pool until every discovered URL is stored, a worker
// faults, or ctx is cancelled. It calls ResolveStart first if needed.
//
// The returned store is frozen and is non-nil whenever the pool ran, so an
// interrupted crawl can still be reported. A worker fault is returned as is;
// an interruption is returned as the wrapped context error.
func (c *Crawler) Crawl(ctx context.Context) (*store.Store, error) {
	if err := c.ResolveStart(ctx); err != nil {
		return nil, err
	}

	c.queue = newWorkQueue(c.seeds)
	group, groupCtx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(groupCtx, c.queue.close)
	defer stop()

	for id := range c.cfg.Concurrency {
		group.Go(func() error {
			return c.work(groupCtx, id)
		})
	}

	err := group.Wait()
	c.store.Freeze()
	if err != nil {
		return c.store, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return c.store, fmt.Errorf("crawl interrupted: %w", ctxErr)
	}

	c.log.WithFields(logrus.Fields{
		"urls": c.store.Len(),
		"seen": c.store.SeenCount(),
	}).Debug("crawl finished")
	return c.store, nil
}

// Run is ResolveStart followed by Crawl.
func (c *Crawler) Run(ctx context.Context) (*store.Store, error) {
	return c.Crawl(ctx)
}
