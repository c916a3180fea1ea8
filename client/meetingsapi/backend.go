// Package meetingsapi talks to the meetings backend: HTTP requests carrying
// session descriptions and subscriptions, and a websocket stream of meeting
// events.
package meetingsapi

import (
	"context"
	"time"

	"github.com/peer-calls/meetings/client/identifiers"
)

// Backend is the signaling backend of a meeting.
type Backend interface {
	JoinMeeting(ctx context.Context, meetingID identifiers.MeetingID, req JoinRequest) (JoinResponse, error)
	LeaveMeeting(ctx context.Context, meetingID identifiers.MeetingID) error
	CreateAudioOffer(ctx context.Context, meetingID identifiers.MeetingID, sdp string) error
	UpdateMediaOffer(
		ctx context.Context,
		meetingID identifiers.MeetingID,
		streamType identifiers.StreamType,
		enabled bool,
		sdp string,
	) error
	CreateMediaAnswer(ctx context.Context, meetingID identifiers.MeetingID, sdp string) error
	// SubscribeToMedia returns the subscriptions confirmed by the backend.
	SubscribeToMedia(
		ctx context.Context,
		meetingID identifiers.MeetingID,
		subscribe []identifiers.Subscription,
		unsubscribe []identifiers.Subscription,
	) ([]identifiers.Subscription, error)
	// UpdateAudioStreamStatus mutes or unmutes the local user, or the
	// userToModerate when it is not empty.
	UpdateAudioStreamStatus(
		ctx context.Context,
		meetingID identifiers.MeetingID,
		enabled bool,
		userToModerate identifiers.UserID,
	) error
}

type Participant struct {
	UserID              identifiers.UserID `json:"userId"`
	AudioStreamEnabled  bool               `json:"audioStreamEnabled"`
	VideoStreamEnabled  bool               `json:"videoStreamEnabled"`
	ScreenStreamEnabled bool               `json:"screenStreamEnabled"`
	JoinedAt            time.Time          `json:"joinedAt"`
}

type JoinRequest struct {
	AudioStreamEnabled bool `json:"audioStreamEnabled"`
	VideoStreamEnabled bool `json:"videoStreamEnabled"`
}

type JoinResponse struct {
	UserID       identifiers.UserID `json:"userId"`
	Participants []Participant      `json:"participants"`
}

type StreamMapping struct {
	UserID identifiers.UserID     `json:"userId"`
	Type   identifiers.StreamType `json:"type"`
	Mid    string                 `json:"mid"`
}

type sdpRequest struct {
	SDP string `json:"sdp"`
}

type mediaRequest struct {
	Type    identifiers.StreamType `json:"type"`
	Enabled bool                   `json:"enabled"`
	SDP     string                 `json:"sdp,omitempty"`
}

type subscribeRequest struct {
	Subscribe   []identifiers.Subscription `json:"subscribe"`
	Unsubscribe []identifiers.Subscription `json:"unsubscribe"`
}

type subscribeResponse struct {
	Subscriptions []identifiers.Subscription `json:"subscriptions"`
}

type audioRequest struct {
	Enabled        bool               `json:"enabled"`
	UserToModerate identifiers.UserID `json:"userToModerate,omitempty"`
}
