package clock

import (
	"sync"
	"time"
)

// Fake is a manually driven Clock. Ticks are delivered only when Tick is
// called, and only to tickers that have not been stopped.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[*fakeTicker]struct{}
	waiters []fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewFake creates a Fake clock starting at now.
func NewFake(now time.Time) *Fake {
	return &Fake{
		now:     now,
		tickers: make(map[*fakeTicker]struct{}),
	}
}

// Now implements Clock.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTicker implements Clock.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	t := &fakeTicker{
		clock:    f,
		interval: d,
		ch:       make(chan time.Time),
		done:     make(chan struct{}),
	}
	f.mu.Lock()
	f.tickers[t] = struct{}{}
	f.mu.Unlock()
	return t
}

// After implements Clock. The channel fires once Advance or Tick moves the
// clock past the deadline.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, fakeWaiter{deadline: f.now.Add(d), ch: ch})
	return ch
}

// Tickers returns the number of active (not stopped) tickers.
func (f *Fake) Tickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

// Advance moves the clock forward and fires expired After channels.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanceLocked(d)
}

func (f *Fake) advanceLocked(d time.Duration) {
	f.now = f.now.Add(d)
	pending := f.waiters[:0]
	for _, w := range f.waiters {
		if !f.now.Before(w.deadline) {
			w.ch <- f.now
			continue
		}
		pending = append(pending, w)
	}
	f.waiters = pending
}

// Tick advances the clock by one interval and delivers a tick to every
// active ticker, blocking until each one has been received or stopped.
// It returns false when no ticker was active.
func (f *Fake) Tick() bool {
	f.mu.Lock()
	active := make([]*fakeTicker, 0, len(f.tickers))
	interval := time.Second
	for t := range f.tickers {
		active = append(active, t)
		interval = t.interval
	}
	f.advanceLocked(interval)
	now := f.now
	f.mu.Unlock()

	delivered := false
	for _, t := range active {
		select {
		case t.ch <- now:
			delivered = true
		case <-t.done:
		}
	}
	return delivered
}

// TickN calls Tick n times and returns how many ticks were delivered.
func (f *Fake) TickN(n int) int {
	delivered := 0
	for i := 0; i < n; i++ {
		if f.Tick() {
			delivered++
		}
	}
	return delivered
}

type fakeTicker struct {
	clock    *Fake
	interval time.Duration
	ch       chan time.Time
	done     chan struct{}
	once     sync.Once
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.ch
}

func (t *fakeTicker) Stop() {
	t.once.Do(func() {
		t.clock.mu.Lock()
		delete(t.clock.tickers, t)
		t.clock.mu.Unlock()
		close(t.done)
	})
}
