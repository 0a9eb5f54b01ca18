// Package tui provides the Bubble Tea status line shown while a crawl runs,
// and a styled summary of failing links once it is done.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lukemcguire/linkwalk/crawler"
	"github.com/lukemcguire/linkwalk/result"
	"github.com/lukemcguire/linkwalk/store"
)

// Model is the Bubble Tea model for the crawl TUI.
type Model struct {
	ctx             context.Context
	cancel          context.CancelFunc
	crawlerInstance *crawler.Crawler
	spinner         spinner.Model
	progressCh      <-chan crawler.CrawlEvent
	started         time.Time

	stats       crawler.CrawlEvent
	interrupted bool
	done        bool
	store       *store.Store
	analysis    *result.Analysis
	elapsed     time.Duration
	err         error
	width       int
}

// NewModel creates a TUI model wired to the given crawler and progress channel.
// The crawler must already have resolved its start URL.
func NewModel(ctx context.Context, cancel context.CancelFunc, crawlerInst *crawler.Crawler, progressCh <-chan crawler.CrawlEvent) Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		ctx:             ctx,
		cancel:          cancel,
		crawlerInstance: crawlerInst,
		spinner:         spin,
		progressCh:      progressCh,
		started:         time.Now(),
	}
}

// Init starts the spinner, crawl, and progress listener concurrently.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startCrawl(), waitForProgress(m.progressCh))
}

// startCrawl returns a tea.Cmd that runs the crawler and sends CrawlDoneMsg.
func (m Model) startCrawl() tea.Cmd {
	return func() tea.Msg {
		st, err := m.crawlerInstance.Crawl(m.ctx)
		if err != nil {
			err = fmt.Errorf("crawl: %w", err)
		}
		return CrawlDoneMsg{Store: st, Err: err}
	}
}

// Update handles messages from the Bubble Tea runtime.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.interrupted {
				// Second interrupt: stop waiting for the workers.
				return m, tea.Quit
			}
			m.interrupted = true
			m.cancel()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case CrawlProgressMsg:
		m.stats = msg.Event
		return m, waitForProgress(m.progressCh)

	case progressClosedMsg:
		return m, nil

	case CrawlDoneMsg:
		m.done = true
		m.elapsed = time.Since(m.started)
		m.store = msg.Store
		m.err = msg.Err
		if msg.Store != nil {
			m.analysis = result.Analyze(msg.Store)
		}
		if m.crawlerInstance != nil {
			m.stats = m.crawlerInstance.Progress()
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the current TUI state.
func (m Model) View() string {
	if m.done && m.analysis != nil {
		return RenderSummary(m.analysis, m.elapsed)
	}
	if m.done && m.err != nil {
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"
	}
	status := statusLine(m.stats)
	if m.interrupted {
		status += dimStyle.Render("  (stopping...)")
	}
	return fmt.Sprintf("%s %s\n", m.spinner.View(), status)
}

// statusLine renders "Working: Q queued → P in progress → F finished (O ok, X failed)".
func statusLine(s crawler.CrawlEvent) string {
	return fmt.Sprintf("Working: %s %s → %s %s → %s %s (%s %s, %s %s)",
		queuedStyle.Render(fmt.Sprint(s.Queued)), dimStyle.Render("queued"),
		inProgressStyle.Render(fmt.Sprint(s.InProgress)), dimStyle.Render("in progress"),
		titleStyle.Render(fmt.Sprint(s.Finished)), dimStyle.Render("finished"),
		successStyle.Render(fmt.Sprint(s.OK)), dimStyle.Render("ok"),
		errorStyle.Render(fmt.Sprint(s.Failed)), dimStyle.Render("failed"))
}

// Interrupted reports whether the user stopped the crawl.
func (m Model) Interrupted() bool {
	return m.interrupted
}

// Store returns the crawl store, or nil if the crawl has not finished.
func (m Model) Store() *store.Store {
	return m.store
}

// Analysis returns the analysis of the finished crawl, if any.
func (m Model) Analysis() *result.Analysis {
	return m.analysis
}

// Err returns the error the crawl finished with.
func (m Model) Err() error {
	return m.err
}
