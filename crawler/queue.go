package crawler

import (
	"sync"

	"github.com/lukemcguire/linkwalk/urlutil"
)

// workQueue is an unbounded FIFO of URLs with in-flight accounting.
// It closes itself once nothing is queued and no popped item is pending.
type workQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []urlutil.URL
	pending int // queued + in flight
	closed  bool
}

func newWorkQueue(seeds []urlutil.URL) *workQueue {
	q := &workQueue{items: append([]urlutil.URL(nil), seeds...), pending: len(seeds)}
	q.cond = sync.NewCond(&q.mu)
	if q.pending == 0 {
		q.closed = true
	}
	return q
}

// push enqueues u. Pushing onto a closed queue is a no-op.
func (q *workQueue) push(u urlutil.URL) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, u)
	q.pending++
	q.cond.Signal()
}

// pop blocks until an item is available. It returns false once the queue is
// closed, either because it drained or because close was called.
func (q *workQueue) pop() (urlutil.URL, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return urlutil.URL{}, false
	}
	u := q.items[0]
	q.items[0] = urlutil.URL{}
	q.items = q.items[1:]
	return u, true
}

// done marks one popped item as finished.
func (q *workQueue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending--
	if q.pending <= 0 {
		q.closed = true
		q.cond.Broadcast()
	}
}

// close wakes every waiter and drops anything still queued.
func (q *workQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
	q.cond.Broadcast()
}

func (q *workQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
