package peer

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/devices"
	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/logger"
	"github.com/pion/webrtc/v3"
)

const kindAudio = "audio"

// AudioConnection sends the local microphone and receives the audio mixed
// by the media server.
//
// The sender always has a track: the silence track is sent until the
// microphone track is set, and while muted.
type AudioConnection struct {
	log        logger.Logger
	meetingID  identifiers.MeetingID
	backend    SignalingBackend
	pc         PeerConnection
	negotiator *negotiator

	mu            sync.Mutex
	sender        Sender
	silence       devices.LocalTrack
	microphone    devices.LocalTrack
	muted         bool
	remote        *RemoteStream
	onRemoteTrack func(RemoteStream)

	closeOnce sync.Once
}

type AudioConnectionParams struct {
	Log            logger.Logger
	MeetingID      identifiers.MeetingID
	Backend        SignalingBackend
	PeerConnection PeerConnection
	// Silence is sent while there is no microphone track. It is stopped only
	// on Close.
	Silence devices.LocalTrack
	// Microphone is optional.
	Microphone devices.LocalTrack
	Muted      bool
}

func NewAudioConnection(params AudioConnectionParams) (*AudioConnection, error) {
	log := params.Log.WithNamespaceAppended("audio").WithCtx(logger.Ctx{
		"meeting_id": params.MeetingID,
	})

	c := &AudioConnection{
		log:        log,
		meetingID:  params.MeetingID,
		backend:    params.Backend,
		pc:         params.PeerConnection,
		silence:    params.Silence,
		microphone: params.Microphone,
		muted:      params.Muted,
	}

	c.negotiator = newNegotiator(negotiatorParams{
		Log:            log,
		PeerConnection: c.pc,
		Kind:           kindAudio,
		SendOffer:      c.sendOffer,
	})

	c.pc.OnTrack(c.handleTrack)

	sender, err := c.pc.AddTrack(c.currentTrack())
	if err != nil {
		c.negotiator.Close()

		return nil, errors.Annotate(err, "add audio track")
	}

	c.sender = sender

	prometheusConnectionsActive.WithLabelValues(kindAudio).Inc()

	return c, nil
}

func (c *AudioConnection) sendOffer(ctx context.Context, sdp string) error {
	return errors.Trace(c.backend.CreateAudioOffer(ctx, c.meetingID, sdp))
}

// currentTrack must be called with mu held, or before the connection is
// shared.
func (c *AudioConnection) currentTrack() webrtc.TrackLocal {
	if c.muted || c.microphone == nil {
		return c.silence
	}

	return c.microphone
}

func (c *AudioConnection) handleTrack(track RemoteTrack, mid string) {
	stream := RemoteStream{
		Type:     identifiers.StreamTypeAudio,
		StreamID: track.StreamID(),
		Track:    track,
	}

	c.log.Info("Remote audio track", logger.Ctx{
		"stream_id": track.StreamID(),
		"mid":       mid,
	})

	c.mu.Lock()
	c.remote = &stream
	onRemoteTrack := c.onRemoteTrack
	c.mu.Unlock()

	if onRemoteTrack != nil {
		onRemoteTrack(stream)
	}
}

// OnRemoteTrack sets the callback for the mixed remote audio.
func (c *AudioConnection) OnRemoteTrack(fn func(RemoteStream)) {
	c.mu.Lock()
	c.onRemoteTrack = fn
	c.mu.Unlock()
}

// RemoteStream returns the mixed remote audio once it arrived.
func (c *AudioConnection) RemoteStream() (RemoteStream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remote == nil {
		return RemoteStream{}, false
	}

	return *c.remote, true
}

// UpdateLocalStreamTrack replaces the microphone track in place and stops
// the previous one. The connection is not renegotiated.
func (c *AudioConnection) UpdateLocalStreamTrack(track devices.LocalTrack) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.negotiator.State() == NegotiationStateClosed {
		return errors.Trace(ErrClosed)
	}

	prev := c.microphone
	c.microphone = track

	if err := c.sender.ReplaceTrack(c.currentTrack()); err != nil {
		c.microphone = prev

		return errors.Annotate(err, "replace audio track")
	}

	if prev != nil && prev != track {
		prev.Stop()
	}

	return nil
}

// SetMuted swaps between the microphone and the silence track.
func (c *AudioConnection) SetMuted(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.muted == muted {
		return nil
	}

	c.muted = muted

	if err := c.sender.ReplaceTrack(c.currentTrack()); err != nil {
		c.muted = !muted

		return errors.Annotate(err, "replace audio track")
	}

	return nil
}

func (c *AudioConnection) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.muted
}

// Microphone returns the microphone track, or nil when none was set.
func (c *AudioConnection) Microphone() devices.LocalTrack {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.microphone
}

func (c *AudioConnection) HandleRemoteAnswer(sdp string) error {
	return errors.Trace(c.negotiator.HandleRemoteAnswer(sdp))
}

func (c *AudioConnection) State() NegotiationState {
	return c.negotiator.State()
}

// Close stops the microphone and silence tracks and closes the peer
// connection. It is safe to call more than once.
func (c *AudioConnection) Close() error {
	var err error

	c.closeOnce.Do(func() {
		c.negotiator.Close()

		c.mu.Lock()
		microphone := c.microphone
		c.mu.Unlock()

		if microphone != nil {
			microphone.Stop()
		}

		c.silence.Stop()

		err = c.pc.Close()

		prometheusConnectionsActive.WithLabelValues(kindAudio).Dec()
	})

	return errors.Trace(err)
}
