package test

import (
	"sync"

	"github.com/peer-calls/meetings/client/devices"
	"github.com/pion/webrtc/v3"
)

// LocalTrack is a devices.LocalTrack that counts Stop calls.
type LocalTrack struct {
	*webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	stopped int
}

var _ devices.LocalTrack = &LocalTrack{}

func NewLocalTrack(kind webrtc.RTPCodecType, id string) *LocalTrack {
	capability := webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeVP8,
		ClockRate: 90000,
	}

	if kind == webrtc.RTPCodecTypeAudio {
		capability = webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		}
	}

	track, err := webrtc.NewTrackLocalStaticSample(capability, id, "local-"+id)
	if err != nil {
		panic(err)
	}

	return &LocalTrack{
		TrackLocalStaticSample: track,
	}
}

func (t *LocalTrack) Stop() {
	t.mu.Lock()
	t.stopped++
	t.mu.Unlock()
}

// Stopped returns the number of Stop calls.
func (t *LocalTrack) Stopped() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stopped
}
