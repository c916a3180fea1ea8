package store

import (
	"context"
	"sort"
	"sync"

	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/meetingsapi"
	"github.com/peer-calls/meetings/client/peer"
	"github.com/peer-calls/meetings/client/subscription"
)

type participant struct {
	meetingsapi.Participant
	// order is the join order within the meeting.
	order   int
	talking bool
}

type meeting struct {
	id      identifiers.MeetingID
	userID  identifiers.UserID
	manager *subscription.Manager
	pending *subscription.Pending

	// ctx is used by queued subscription requests and is cancelled on
	// disconnect.
	ctx    context.Context
	cancel context.CancelFunc

	// subscribeMu makes CheckAndEnqueue and MarkRequesting a single step.
	subscribeMu sync.Mutex

	mu            sync.Mutex
	connecting    bool
	disconnecting bool
	// disconnectRequested is set by Disconnect while connecting.
	disconnectRequested bool
	connections   Connections
	selection     DeviceSelection
	participants  map[identifiers.UserID]*participant
	nextOrder     int
	pinned        identifiers.SubscriptionKey
	streams       peer.StreamsMap
}

func newMeeting(params ConnectParams) *meeting {
	ctx, cancel := context.WithCancel(context.Background())

	return &meeting{
		id:      params.MeetingID,
		userID:  params.UserID,
		manager: subscription.NewManager(),
		ctx:     ctx,
		cancel:  cancel,
		selection: DeviceSelection{
			AudioDeviceID: params.AudioDeviceID,
			VideoDeviceID: params.VideoDeviceID,
			AudioEnabled:  params.AudioEnabled,
			VideoEnabled:  params.VideoEnabled,
		},
		participants: map[identifiers.UserID]*participant{},
		streams:      peer.StreamsMap{},
	}
}

func (m *meeting) ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return !m.connecting && !m.disconnecting
}

func (m *meeting) getConnections() Connections {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.connections
}

func (m *meeting) setStreams(streams peer.StreamsMap) {
	m.mu.Lock()
	m.streams = streams
	m.mu.Unlock()
}

// setParticipants must be called with mu held. Participants that are
// already known keep their join order.
func (m *meeting) setParticipants(list []meetingsapi.Participant) {
	sorted := append([]meetingsapi.Participant(nil), list...)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].JoinedAt.Before(sorted[j].JoinedAt)
	})

	participants := make(map[identifiers.UserID]*participant, len(sorted))

	for _, p := range sorted {
		prev, ok := m.participants[p.UserID]
		if !ok {
			participants[p.UserID] = m.newParticipant(p)

			continue
		}

		prev.Participant = p
		participants[p.UserID] = prev
	}

	m.participants = participants

	if _, ok := m.participants[m.pinnedUser()]; !ok {
		m.pinned = ""
	}
}

// newParticipant must be called with mu held.
func (m *meeting) newParticipant(p meetingsapi.Participant) *participant {
	ret := &participant{
		Participant: p,
		order:       m.nextOrder,
	}

	m.nextOrder++

	return ret
}

// pinnedUser must be called with mu held.
func (m *meeting) pinnedUser() identifiers.UserID {
	if m.pinned == "" {
		return ""
	}

	sub, err := identifiers.ParseSubscriptionKey(string(m.pinned))
	if err != nil {
		return ""
	}

	return sub.UserID
}

// subscriptionParticipants returns the remote participants. It must be
// called with mu held.
func (m *meeting) subscriptionParticipants() []subscription.Participant {
	ret := make([]subscription.Participant, 0, len(m.participants))

	for _, p := range m.participants {
		if p.UserID == m.userID {
			continue
		}

		ret = append(ret, subscription.Participant{
			UserID:              p.UserID,
			AudioStreamEnabled:  p.AudioStreamEnabled,
			VideoStreamEnabled:  p.VideoStreamEnabled,
			ScreenStreamEnabled: p.ScreenStreamEnabled,
		})
	}

	return ret
}
