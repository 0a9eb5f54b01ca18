package crawler

import (
	"sync"

	"github.com/lukemcguire/linkwalk/outcome"
	"github.com/lukemcguire/linkwalk/urlutil"
)

// CrawlEvent is a snapshot of crawl progress, emitted whenever a worker
// starts or finishes a URL. Each event carries the full counters, so a
// reader that misses some of them still shows the correct state.
type CrawlEvent struct {
	URL        string
	Queued     int
	InProgress int
	Finished   int
	OK         int
	Failed     int
}

// monitor keeps the progress counters and publishes them on ch.
type monitor struct {
	mu    sync.Mutex
	ch    chan<- CrawlEvent
	stats CrawlEvent
}

func newMonitor(ch chan<- CrawlEvent) *monitor {
	return &monitor{ch: ch}
}

func (m *monitor) taskStarted(u urlutil.URL, queued int) {
	m.mu.Lock()
	m.stats.URL = u.String()
	m.stats.Queued = queued
	m.stats.InProgress++
	evt := m.stats
	m.mu.Unlock()
	m.publish(evt)
}

func (m *monitor) taskDone(u urlutil.URL, result outcome.Outcome, queued int) {
	m.mu.Lock()
	m.stats.URL = u.String()
	m.stats.Queued = queued
	m.stats.InProgress--
	m.stats.Finished++
	if result.OK() {
		m.stats.OK++
	} else {
		m.stats.Failed++
	}
	evt := m.stats
	m.mu.Unlock()
	m.publish(evt)
}

// taskAbandoned undoes taskStarted for a URL whose result was discarded.
func (m *monitor) taskAbandoned(queued int) {
	m.mu.Lock()
	m.stats.Queued = queued
	m.stats.InProgress--
	evt := m.stats
	m.mu.Unlock()
	m.publish(evt)
}

// snapshot returns the current counters.
func (m *monitor) snapshot() CrawlEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// publish never blocks the workers: if the reader is behind, the event is dropped.
func (m *monitor) publish(evt CrawlEvent) {
	if m.ch == nil {
		return
	}
	select {
	case m.ch <- evt:
	default:
	}
}
