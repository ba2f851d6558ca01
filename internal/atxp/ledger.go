// ABOUTME: Replay ledger remembering spent receipt IDs for a fixed window
// ABOUTME: Size-bounded with oldest-first eviction and periodic expiry sweeps

package atxp

import (
	"container/list"
	"sync"
	"time"
)

type spent struct {
	at      time.Time
	element *list.Element
}

// Ledger records receipt IDs so each can be redeemed only once per window.
type Ledger struct {
	mu      sync.Mutex
	spent   map[string]*spent
	order   *list.List // receipt IDs, oldest at front
	window  time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// NewLedger creates a ledger that forgets receipts after window.
// A background goroutine sweeps expired entries until Close.
func NewLedger(window time.Duration, maxSize int) *Ledger {
	l := &Ledger{
		spent:   make(map[string]*spent),
		order:   list.New(),
		window:  window,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Redeem marks id as spent. It returns false when id was already spent
// within the window.
func (l *Ledger) Redeem(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.spent[id]; ok {
		if now.Sub(e.at) < l.window {
			return false
		}
		e.at = now
		l.order.MoveToBack(e.element)
		return true
	}

	if l.maxSize > 0 && len(l.spent) >= l.maxSize {
		if front := l.order.Front(); front != nil {
			l.order.Remove(front)
			delete(l.spent, front.Value.(string))
		}
	}

	l.spent[id] = &spent{at: now, element: l.order.PushBack(id)}
	return true
}

// Forget releases id so the receipt can be presented again.
func (l *Ledger) Forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.spent[id]; ok {
		l.order.Remove(e.element)
		delete(l.spent, id)
	}
}

// Len returns the number of remembered receipts.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.spent)
}

func (l *Ledger) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.done:
			return
		}
	}
}

// sweep drops entries older than the window. Entries are in time order, so
// it stops at the first live one.
func (l *Ledger) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for front := l.order.Front(); front != nil; front = l.order.Front() {
		id := front.Value.(string)
		if now.Sub(l.spent[id].at) < l.window {
			return
		}
		l.order.Remove(front)
		delete(l.spent, id)
	}
}

// Close stops the sweeper. Safe to call more than once.
func (l *Ledger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		close(l.done)
		l.closed = true
	}
}
