package rpc

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var pendingCalls = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "steeze_rpc_pending_calls",
	Help: "Calls waiting for their reply.",
})

func init() {
	prometheus.MustRegister(pendingCalls)
}

// Trap waits for the replies to one call id. It resolves exactly once,
// either with every expected reply or with an error.
type Trap struct {
	id      uint64
	expect  int
	replies []Message
	err     error
	done    chan struct{}
}

func (t *Trap) ID() uint64 { return t.id }

// Wait blocks until the trap resolves or ctx ends. Ending ctx does not
// cancel the trap; callers that give up must Cancel it.
func (t *Trap) Wait(ctx context.Context) ([]Message, error) {
	select {
	case <-t.done:
		return t.replies, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Traps is a table of pending calls keyed by id.
type Traps struct {
	mu   sync.Mutex
	next uint64
	open map[uint64]*Trap
}

func NewTraps() *Traps { return &Traps{open: map[uint64]*Trap{}} }

// Open allocates a fresh id and a trap that resolves after expect replies.
func (ts *Traps) Open(expect int) *Trap {
	if expect < 1 {
		expect = 1
	}
	ts.mu.Lock()
	ts.next++
	t := &Trap{id: ts.next, expect: expect, done: make(chan struct{})}
	ts.open[t.id] = t
	ts.mu.Unlock()
	pendingCalls.Inc()
	return t
}

// Deliver hands a reply to the trap waiting for m.ID. It reports false
// for ids nobody is waiting on, such as replies to cancelled calls.
func (ts *Traps) Deliver(m Message) bool {
	ts.mu.Lock()
	t, ok := ts.open[m.ID]
	if !ok {
		ts.mu.Unlock()
		return false
	}
	t.replies = append(t.replies, m)
	full := len(t.replies) >= t.expect
	if full {
		delete(ts.open, m.ID)
	}
	ts.mu.Unlock()
	if full {
		pendingCalls.Dec()
		close(t.done)
	}
	return true
}

// Cancel resolves the trap for id with err and forgets it.
func (ts *Traps) Cancel(id uint64, err error) {
	ts.mu.Lock()
	t, ok := ts.open[id]
	delete(ts.open, id)
	ts.mu.Unlock()
	if ok {
		t.err = err
		pendingCalls.Dec()
		close(t.done)
	}
}

// CancelAll resolves every pending trap with err.
func (ts *Traps) CancelAll(err error) {
	ts.mu.Lock()
	open := ts.open
	ts.open = map[uint64]*Trap{}
	ts.mu.Unlock()
	for _, t := range open {
		t.err = err
		pendingCalls.Dec()
		close(t.done)
	}
}

func (ts *Traps) Len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.open)
}
