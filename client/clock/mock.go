package clock

import (
	"sync"
	"time"
)

// Mock is a manually advanced Clock. Tickers fire for every period that
// elapses during Add or Set. Each ticker buffers one tick and drops the
// rest, like time.Ticker does for slow receivers.
type Mock struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[*mockTicker]struct{}
}

var _ Clock = &Mock{}

func NewMock() *Mock {
	return &Mock{
		tickers: map[*mockTicker]struct{}{},
	}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.now
}

// Set moves the clock to now. Moving backwards panics.
func (m *Mock) Set(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Before(m.now) {
		panic("clock.Mock: time cannot go backwards")
	}

	m.now = now

	for t := range m.tickers {
		for next := t.last.Add(t.d); !next.After(now); next = next.Add(t.d) {
			t.last = next

			select {
			case t.c <- next:
			default:
			}
		}
	}
}

// Add advances the clock by d and returns the new time.
func (m *Mock) Add(d time.Duration) time.Time {
	now := m.Now().Add(d)
	m.Set(now)

	return now
}

func (m *Mock) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &mockTicker{
		mock: m,
		d:    d,
		last: m.now,
		c:    make(chan time.Time, 1),
	}

	m.tickers[t] = struct{}{}

	return t
}

// Tickers returns the number of tickers that were not stopped.
func (m *Mock) Tickers() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.tickers)
}

type mockTicker struct {
	mock *Mock
	d    time.Duration
	last time.Time
	c    chan time.Time
}

func (t *mockTicker) C() <-chan time.Time {
	return t.c
}

func (t *mockTicker) Stop() {
	t.mock.mu.Lock()
	delete(t.mock.tickers, t)
	t.mock.mu.Unlock()
}
