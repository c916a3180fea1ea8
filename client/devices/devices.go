// Package devices provides local media: tracks captured from configured
// devices, and a silent audio track used before a microphone is ready.
package devices

import (
	"context"

	"github.com/juju/errors"
	"github.com/pion/webrtc/v3"
)

var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrUnsupportedScheme = errors.New("unsupported device url scheme")
)

// Kind follows the browser MediaDeviceInfo kinds, plus screen for display
// capture.
type Kind string

const (
	KindAudioInput Kind = "audioinput"
	KindVideoInput Kind = "videoinput"
	KindScreen     Kind = "screen"
)

type Device struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  Kind   `json:"kind"`
}

// Constraints selects a device. An empty DeviceID selects the first device
// of the kind.
type Constraints struct {
	Kind     Kind
	DeviceID string
}

// LocalTrack is a track produced by a local device. Stop releases the
// device and is safe to call more than once.
type LocalTrack interface {
	webrtc.TrackLocal
	Stop()
}

// KeyFrameRequester is implemented by tracks whose source can be asked for
// a new key frame when a remote peer reports picture loss.
type KeyFrameRequester interface {
	RequestKeyFrame() error
}

// MediaDevices acquires local tracks. Errors are always returned to the
// caller so the user can be told, for example, that access was denied.
type MediaDevices interface {
	EnumerateDevices(ctx context.Context) ([]Device, error)
	GetUserMedia(ctx context.Context, constraints Constraints) (LocalTrack, error)
	GetDisplayMedia(ctx context.Context) (LocalTrack, error)
}
