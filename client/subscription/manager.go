package subscription

import (
	"sync"

	"github.com/peer-calls/meetings/client/identifiers"
)

// Manager tracks potential subscriptions, derived from the roster, and real
// subscriptions, confirmed by the backend.
type Manager struct {
	mu        sync.Mutex
	potential Set
	real      Set
}

func NewManager() *Manager {
	return &Manager{
		potential: Set{},
		real:      Set{},
	}
}

// RecomputePotential replaces the whole potential set. Audio is mixed by the
// media server and is never a potential subscription.
func (m *Manager) RecomputePotential(participants []Participant) {
	potential := Set{}

	for _, p := range participants {
		if p.VideoStreamEnabled {
			potential.Add(identifiers.Subscription{UserID: p.UserID, Type: identifiers.StreamTypeVideo})
		}

		if p.ScreenStreamEnabled {
			potential.Add(identifiers.Subscription{UserID: p.UserID, Type: identifiers.StreamTypeScreen})
		}
	}

	m.mu.Lock()
	m.potential = potential
	m.mu.Unlock()
}

func (m *Manager) AddPotential(userID identifiers.UserID, streamType identifiers.StreamType) {
	if streamType == identifiers.StreamTypeAudio {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.potential.Add(identifiers.Subscription{UserID: userID, Type: streamType})
}

func (m *Manager) RemovePotential(userID identifiers.UserID, streamType identifiers.StreamType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.potential.Remove(identifiers.Subscription{UserID: userID, Type: streamType})
}

// RemoveParticipant drops both video and screen potential subscriptions of
// a participant that left the meeting.
func (m *Manager) RemoveParticipant(userID identifiers.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.potential.Remove(identifiers.Subscription{UserID: userID, Type: identifiers.StreamTypeVideo})
	m.potential.Remove(identifiers.Subscription{UserID: userID, Type: identifiers.StreamTypeScreen})
}

// ComputeDelta does not modify the real set. That only happens in Commit.
func (m *Manager) ComputeDelta() Delta {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Delta{
		ToSubscribe:   difference(m.potential, m.real),
		ToUnsubscribe: difference(m.real, m.potential),
	}
}

// DeltaFor computes the delta between desired and the real set.
func (m *Manager) DeltaFor(desired Set) Delta {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Delta{
		ToSubscribe:   difference(desired, m.real),
		ToUnsubscribe: difference(m.real, desired),
	}
}

// Commit replaces the real set with the subscriptions the backend confirmed.
func (m *Manager) Commit(confirmed []identifiers.Subscription) {
	set := NewSet(confirmed...)

	m.mu.Lock()
	m.real = set
	m.mu.Unlock()
}

func (m *Manager) Potential() Set {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.potential.Clone()
}

func (m *Manager) Real() Set {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.real.Clone()
}
