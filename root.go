package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lukemcguire/linkwalk/config"
	"github.com/lukemcguire/linkwalk/crawler"
	"github.com/lukemcguire/linkwalk/result"
	"github.com/lukemcguire/linkwalk/store"
	"github.com/lukemcguire/linkwalk/tui"
)

// options holds the command-line flags.
type options struct {
	url         string
	json        bool
	csv         bool
	sqlite      string
	exclude     []string
	maxParallel int
	verbose     bool
	configPath  string
	retries     int
	timeout     time.Duration
	userAgent   string
	noProgress  bool
	insecure    bool
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	log := logrus.New()
	log.SetOutput(stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.WarnLevel)

	exitCode := 0
	cmd := newRootCommand(log, stdout, stderr, &exitCode)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error(err)
		return 1
	}
	return exitCode
}

func newRootCommand(log *logrus.Logger, stdout, stderr io.Writer, exitCode *int) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "linkwalk --url URL",
		Short:         "Find broken links on a website",
		Long:          `Crawl a website from a start URL, follow same-origin links, probe external ones, and report every link that does not resolve.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			code, err := run(cmd.Context(), log, opts, cfg, stdout, stderr)
			*exitCode = code
			return err
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetVersionTemplate("linkwalk version {{.Version}}\n")

	flags := cmd.Flags()
	flags.StringVar(&opts.url, "url", "", "URL where crawling will start")
	flags.BoolVar(&opts.json, "json", false, "export results as JSON to the standard output")
	flags.BoolVar(&opts.csv, "csv", false, "export results as CSV to the standard output")
	flags.StringVar(&opts.sqlite, "sqlite", "", "also store results in this SQLite database")
	flags.StringArrayVar(&opts.exclude, "exclude", nil, "regex of URLs not to request (repeatable)")
	flags.IntVar(&opts.maxParallel, "max-parallel-requests", 4, "maximum of requests in flight at any given time")
	flags.BoolVar(&opts.verbose, "verbose", false, "increase verbosity to show debug messages")
	flags.StringVar(&opts.configPath, "config", "", "YAML config file")
	flags.IntVar(&opts.retries, "retries", 0, "retries for transient request failures")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-request timeout")
	flags.StringVar(&opts.userAgent, "user-agent", "", "User-Agent header")
	flags.BoolVar(&opts.noProgress, "no-progress", false, "never show the progress status line")
	flags.BoolVar(&opts.insecure, "insecure", false, "skip TLS certificate verification")
	_ = cmd.MarkFlagRequired("url")
	cmd.MarkFlagsMutuallyExclusive("json", "csv")

	return cmd
}

// loadConfig layers explicitly set flags over the config file and defaults.
func loadConfig(cmd *cobra.Command, opts options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("max-parallel-requests") {
		cfg.MaxParallelRequests = opts.maxParallel
	}
	if flags.Changed("retries") {
		cfg.Retries = opts.retries
	}
	if flags.Changed("timeout") {
		cfg.RequestTimeout = opts.timeout
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent = opts.userAgent
	}
	if flags.Changed("insecure") {
		cfg.Insecure = opts.insecure
	}
	cfg.Exclude = append(cfg.Exclude, opts.exclude...)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// run performs the crawl and writes the report. Fatal conditions are returned
// as errors before anything is written to stdout.
func run(ctx context.Context, log *logrus.Logger, opts options, cfg config.Config, stdout, stderr io.Writer) (int, error) {
	progress := wantProgress(opts, cfg, stderr)

	var progressCh chan crawler.CrawlEvent
	if progress {
		// Never closed: after a second interrupt the workers may still publish.
		progressCh = make(chan crawler.CrawlEvent, 100)
	}

	c, err := crawler.New(cfg.CrawlerConfig(opts.url), progressCh, crawler.WithLogger(log))
	if err != nil {
		return 1, err
	}

	started := time.Now()
	if err := c.ResolveStart(ctx); err != nil {
		return 1, err
	}

	var (
		st          *store.Store
		analysis    *result.Analysis
		crawlErr    error
		interrupted bool
	)
	if progress {
		crawlCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		model := tui.NewModel(crawlCtx, cancel, c, progressCh)
		final, err := tea.NewProgram(model, tea.WithOutput(stderr), tea.WithoutSignalHandler()).Run()
		if err != nil {
			return 1, fmt.Errorf("progress display: %w", err)
		}
		finalModel := final.(tui.Model)
		st, analysis = finalModel.Store(), finalModel.Analysis()
		crawlErr, interrupted = finalModel.Err(), finalModel.Interrupted()
	} else {
		st, crawlErr = c.Crawl(ctx)
	}

	switch {
	case crawlErr == nil:
	case errors.Is(crawlErr, context.Canceled), errors.Is(crawlErr, context.DeadlineExceeded):
		interrupted = true
	default:
		return 1, crawlErr
	}
	if interrupted {
		log.Warn("crawl interrupted, the report is incomplete")
	}
	if st == nil {
		return 1, nil
	}

	if analysis == nil {
		analysis = result.Analyze(st)
	}
	switch {
	case opts.json:
		if err := result.WriteJSON(stdout, analysis); err != nil {
			return 1, err
		}
	case opts.csv:
		if err := result.WriteCSV(stdout, analysis); err != nil {
			return 1, err
		}
	case progress && isTerminal(stdout):
		// The progress display already rendered the summary on this terminal.
	default:
		result.PrintResults(stdout, analysis)
	}

	if opts.sqlite != "" {
		info := result.RunInfo{
			StartURL:    c.Start().String(),
			LandingURL:  c.Landing().String(),
			StartedAt:   started,
			FinishedAt:  time.Now(),
			Interrupted: interrupted,
		}
		// The crawl context may already be cancelled; the export must still complete.
		crawlID, err := result.WriteSQLite(context.WithoutCancel(ctx), opts.sqlite, analysis, info)
		if err != nil {
			return 1, fmt.Errorf("sqlite export: %w", err)
		}
		log.WithFields(logrus.Fields{"crawl_id": crawlID, "path": opts.sqlite}).Info("results stored")
	}

	log.WithFields(logrus.Fields{
		"ok":       analysis.Stats.OK,
		"failed":   analysis.Stats.Failed,
		"duration": time.Since(started).Round(time.Millisecond),
	}).Debug("done")

	if interrupted || !analysis.OK() {
		return 1, nil
	}
	return 0, nil
}

// wantProgress decides whether to show the status line. Debug logging and a
// non-terminal stderr both disable it.
func wantProgress(opts options, cfg config.Config, stderr io.Writer) bool {
	if opts.noProgress || opts.verbose {
		return false
	}
	if cfg.Progress != nil && !*cfg.Progress {
		return false
	}
	return isTerminal(stderr)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
