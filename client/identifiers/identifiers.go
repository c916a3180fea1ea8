package identifiers

import (
	"strings"

	"github.com/juju/errors"
)

type MeetingID string

// UserID identifies a meeting participant.
type UserID string

func (m MeetingID) String() string {
	return string(m)
}

func (u UserID) String() string {
	return string(u)
}

// StreamType is the kind of media a participant publishes.
type StreamType string

const (
	StreamTypeAudio  StreamType = "audio"
	StreamTypeVideo  StreamType = "video"
	StreamTypeScreen StreamType = "screen"
)

var ErrInvalidStreamType = errors.New("invalid stream type")

// ParseStreamType is case insensitive, so "VIDEO" and "video" are the same.
func ParseStreamType(str string) (StreamType, error) {
	switch t := StreamType(strings.ToLower(str)); t {
	case StreamTypeAudio, StreamTypeVideo, StreamTypeScreen:
		return t, nil
	default:
		return "", errors.Annotatef(ErrInvalidStreamType, "stream type: %q", str)
	}
}

func (s StreamType) String() string {
	return string(s)
}

// Subscription identifies one remote media feed.
type Subscription struct {
	UserID UserID     `json:"userId"`
	Type   StreamType `json:"type"`
}

func (s Subscription) Key() SubscriptionKey {
	return NewSubscriptionKey(s.UserID, s.Type)
}

// SubscriptionKey has the form "<userId>-<type>".
type SubscriptionKey string

func NewSubscriptionKey(userID UserID, streamType StreamType) SubscriptionKey {
	return SubscriptionKey(string(userID) + "-" + string(streamType))
}

var ErrInvalidSubscriptionKey = errors.New("invalid subscription key")

// ParseSubscriptionKey splits on the last dash, so user ids that contain
// dashes (UUIDs) are preserved.
func ParseSubscriptionKey(str string) (Subscription, error) {
	i := strings.LastIndex(str, "-")
	if i <= 0 || i == len(str)-1 {
		return Subscription{}, errors.Annotatef(ErrInvalidSubscriptionKey, "key: %q", str)
	}

	streamType, err := ParseStreamType(str[i+1:])
	if err != nil {
		return Subscription{}, errors.Annotatef(ErrInvalidSubscriptionKey, "key: %q", str)
	}

	return Subscription{
		UserID: UserID(str[:i]),
		Type:   streamType,
	}, nil
}

func (k SubscriptionKey) String() string {
	return string(k)
}
