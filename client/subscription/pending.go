package subscription

import "sync"

// Pending serializes subscription requests of one meeting: at most one
// request in flight and at most one queued. A newer queued request replaces
// an older one.
type Pending struct {
	update func(desired Set)

	mu       sync.Mutex
	inFlight bool
	queued   Set
	hasQueue bool
}

// NewPending creates a Pending that calls update with the queued set when
// the in-flight request completes.
func NewPending(update func(desired Set)) *Pending {
	return &Pending{
		update: update,
	}
}

// MarkRequesting must be called right before the request is sent.
func (p *Pending) MarkRequesting() {
	p.mu.Lock()
	p.inFlight = true
	p.mu.Unlock()
}

// MarkDone clears the in-flight flag, unless a request was queued, in which
// case the flag stays set and update is called with the queued set. The
// update callback is then responsible for calling MarkDone again.
func (p *Pending) MarkDone() {
	p.mu.Lock()

	if !p.hasQueue {
		p.inFlight = false
		p.mu.Unlock()

		return
	}

	desired := p.queued
	p.queued = nil
	p.hasQueue = false

	p.mu.Unlock()

	p.update(desired)
}

// CheckAndEnqueue returns true and stores desired when a request is in
// flight. When it returns false the caller must send the request itself.
func (p *Pending) CheckAndEnqueue(desired Set) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.inFlight {
		return false
	}

	p.queued = desired.Clone()
	p.hasQueue = true

	return true
}

// InFlight reports whether a request is in flight.
func (p *Pending) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.inFlight
}
