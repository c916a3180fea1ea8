package clock_test

import (
	"testing"
	"time"

	"github.com/peer-calls/meetings/client/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock(t *testing.T) {
	t.Parallel()

	cl := clock.NewMock()

	start := time.Date(2021, 1, 10, 0, 0, 0, 0, time.UTC)
	cl.Set(start)
	assert.Equal(t, start, cl.Now())

	t1 := cl.NewTicker(5 * time.Second)
	cl.Add(4 * time.Second)
	t2 := cl.NewTicker(3 * time.Second)

	expectTick := func(ch <-chan time.Time, want time.Time, descr string) {
		select {
		case got := <-ch:
			assert.Equal(t, want, got, descr)
		default:
			require.Failf(t, "expectTick", "no tick: %s", descr)
		}
	}

	expectNoTick := func(ch <-chan time.Time, descr string) {
		select {
		case got := <-ch:
			require.Failf(t, "expectNoTick", "got: %s: %s", got, descr)
		default:
		}
	}

	cl.Add(2 * time.Second)
	expectTick(t1.C(), start.Add(5*time.Second), "first tick of t1")
	expectNoTick(t2.C(), "t2 not due")

	cl.Add(time.Second)
	expectNoTick(t1.C(), "t1 not due")
	expectTick(t2.C(), start.Add(7*time.Second), "first tick of t2")

	t1.Stop()
	assert.Equal(t, 1, cl.Tickers())

	cl.Add(10 * time.Second)
	expectNoTick(t1.C(), "t1 stopped")
	expectTick(t2.C(), start.Add(10*time.Second), "buffered tick of t2")
	expectNoTick(t2.C(), "extra ticks dropped")
}

func TestMock_Backwards(t *testing.T) {
	t.Parallel()

	cl := clock.NewMock()
	cl.Set(time.Unix(10, 0))

	assert.Panics(t, func() {
		cl.Set(time.Unix(5, 0))
	})
}
