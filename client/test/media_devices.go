package test

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/devices"
	"github.com/pion/webrtc/v3"
)

// MediaDevices is a fake devices.MediaDevices. Every call returns a new
// LocalTrack, unless an error was set for the kind.
type MediaDevices struct {
	mu      sync.Mutex
	devices []devices.Device
	errs    map[devices.Kind]error
	tracks  []*LocalTrack
	calls   []devices.Constraints
}

var _ devices.MediaDevices = &MediaDevices{}

func NewMediaDevices(list ...devices.Device) *MediaDevices {
	return &MediaDevices{
		devices: list,
		errs:    map[devices.Kind]error{},
	}
}

// SetError makes requests for kind fail with err.
func (m *MediaDevices) SetError(kind devices.Kind, err error) {
	m.mu.Lock()
	m.errs[kind] = err
	m.mu.Unlock()
}

func (m *MediaDevices) EnumerateDevices(ctx context.Context) ([]devices.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]devices.Device(nil), m.devices...), nil
}

func (m *MediaDevices) GetUserMedia(ctx context.Context, constraints devices.Constraints) (devices.LocalTrack, error) {
	return m.get(constraints)
}

func (m *MediaDevices) GetDisplayMedia(ctx context.Context) (devices.LocalTrack, error) {
	return m.get(devices.Constraints{Kind: devices.KindScreen})
}

func (m *MediaDevices) get(constraints devices.Constraints) (devices.LocalTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, constraints)

	if err := m.errs[constraints.Kind]; err != nil {
		return nil, errors.Trace(err)
	}

	kind := webrtc.RTPCodecTypeVideo
	if constraints.Kind == devices.KindAudioInput {
		kind = webrtc.RTPCodecTypeAudio
	}

	track := NewLocalTrack(kind, string(constraints.Kind)+"-"+constraints.DeviceID)
	m.tracks = append(m.tracks, track)

	return track, nil
}

// Tracks returns all tracks handed out, in order.
func (m *MediaDevices) Tracks() []*LocalTrack {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*LocalTrack(nil), m.tracks...)
}

// Calls returns the constraints of every request.
func (m *MediaDevices) Calls() []devices.Constraints {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]devices.Constraints(nil), m.calls...)
}
