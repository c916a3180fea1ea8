package subscription_test

import (
	"runtime"
	"sync"
	"testing"

	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/subscription"
	"github.com/stretchr/testify/assert"
)

func TestPending_NothingInFlight(t *testing.T) {
	t.Parallel()

	var calls int

	p := subscription.NewPending(func(subscription.Set) {
		calls++
	})

	assert.False(t, p.CheckAndEnqueue(subscription.NewSet()))

	p.MarkRequesting()
	assert.True(t, p.InFlight())

	p.MarkDone()
	assert.False(t, p.InFlight())
	assert.Equal(t, 0, calls)
}

func TestPending_LastWriteWins(t *testing.T) {
	t.Parallel()

	var calls []subscription.Set

	var p *subscription.Pending

	p = subscription.NewPending(func(desired subscription.Set) {
		calls = append(calls, desired)

		assert.True(t, p.InFlight(), "should stay in flight while sending queued request")
	})

	p.MarkRequesting()

	for _, userID := range []identifiers.UserID{"a", "b", "c"} {
		enqueued := p.CheckAndEnqueue(subscription.NewSet(sub(userID, identifiers.StreamTypeVideo)))
		assert.True(t, enqueued)
	}

	p.MarkDone()

	assert.Len(t, calls, 1)
	assert.Equal(t, subscription.NewSet(sub("c", identifiers.StreamTypeVideo)), calls[0])
}

func TestPending_SingleFollowUp(t *testing.T) {
	t.Parallel()

	var calls []subscription.Set

	p := subscription.NewPending(func(desired subscription.Set) {
		calls = append(calls, desired)
	})

	p.MarkRequesting()

	for i := 0; i < 10; i++ {
		p.CheckAndEnqueue(subscription.NewSet(sub(identifiers.UserID(string(rune('a'+i))), identifiers.StreamTypeVideo)))
	}

	p.MarkDone()

	assert.Len(t, calls, 1)
	assert.Equal(t, subscription.NewSet(sub("j", identifiers.StreamTypeVideo)), calls[0])

	// Follow-up request has not completed yet.
	assert.True(t, p.InFlight())

	p.MarkDone()
	assert.False(t, p.InFlight())
	assert.Len(t, calls, 1)
}

func TestPending_Concurrent(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)

	var p *subscription.Pending

	send := func() {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()

		runtime.Gosched()

		mu.Lock()
		inFlight--
		mu.Unlock()

		p.MarkDone()
	}

	p = subscription.NewPending(func(subscription.Set) {
		send()
	})

	var requestMu sync.Mutex

	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			desired := subscription.NewSet(sub("a", identifiers.StreamTypeVideo))

			requestMu.Lock()
			if p.CheckAndEnqueue(desired) {
				requestMu.Unlock()

				return
			}

			p.MarkRequesting()
			requestMu.Unlock()

			send()
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.False(t, p.InFlight())
}
