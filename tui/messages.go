package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/linkwalk/crawler"
	"github.com/lukemcguire/linkwalk/store"
)

// CrawlProgressMsg carries the latest progress counters.
type CrawlProgressMsg struct {
	Event crawler.CrawlEvent
}

// CrawlDoneMsg signals the crawl has completed.
type CrawlDoneMsg struct {
	Store *store.Store
	Err   error
}

// progressClosedMsg stops the progress listener.
type progressClosedMsg struct{}

// waitForProgress returns a tea.Cmd that reads one event from the progress
// channel.
func waitForProgress(ch <-chan crawler.CrawlEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return progressClosedMsg{}
		}
		return CrawlProgressMsg{Event: evt}
	}
}
