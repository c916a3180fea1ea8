package peer

import (
	"context"

	"github.com/peer-calls/meetings/client/identifiers"
)

// SignalingBackend is the part of the meetings backend the connections
// exchange session descriptions with.
type SignalingBackend interface {
	CreateAudioOffer(ctx context.Context, meetingID identifiers.MeetingID, sdp string) error
	UpdateMediaOffer(
		ctx context.Context,
		meetingID identifiers.MeetingID,
		streamType identifiers.StreamType,
		enabled bool,
		sdp string,
	) error
	CreateMediaAnswer(ctx context.Context, meetingID identifiers.MeetingID, sdp string) error
}

// RemoteStream is a remote participant's stream with a single track.
type RemoteStream struct {
	UserID   identifiers.UserID
	Type     identifiers.StreamType
	StreamID string
	Track    RemoteTrack
}

func (r RemoteStream) Key() identifiers.SubscriptionKey {
	return identifiers.NewSubscriptionKey(r.UserID, r.Type)
}

// StreamsMap contains complete remote streams only.
type StreamsMap map[identifiers.SubscriptionKey]RemoteStream

func (s StreamsMap) Clone() StreamsMap {
	ret := make(StreamsMap, len(s))

	for k, v := range s {
		ret[k] = v
	}

	return ret
}

// StreamMapping is one row of the backend's table of media line ids.
type StreamMapping struct {
	UserID identifiers.UserID     `json:"userId"`
	Type   identifiers.StreamType `json:"type"`
	Mid    string                 `json:"mid"`
}

type NegotiationState string

const (
	NegotiationStateIdle        NegotiationState = "idle"
	NegotiationStateNegotiating NegotiationState = "negotiating"
	NegotiationStateStable      NegotiationState = "stable"
	NegotiationStateClosed      NegotiationState = "closed"
)

// Correlation decides how inbound tracks are matched to participants.
type Correlation string

const (
	// CorrelationMid matches tracks by media line id against the table sent
	// by the backend.
	CorrelationMid Correlation = "mid"
	// CorrelationStreamID parses "<userId>-<type>" from the track's stream id.
	CorrelationStreamID Correlation = "stream_id"
)
