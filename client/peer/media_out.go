package peer

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/devices"
	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/logger"
	"github.com/peer-calls/meetings/client/multierr"
)

// mediaOut is the send-only connection shared by the camera and screen
// share connections.
type mediaOut struct {
	log        logger.Logger
	meetingID  identifiers.MeetingID
	streamType identifiers.StreamType
	backend    SignalingBackend
	factory    Factory

	mu         sync.Mutex
	pc         PeerConnection
	negotiator *negotiator
	sender     Sender
	track      devices.LocalTrack
	closed     bool
}

type MediaOutParams struct {
	Log             logger.Logger
	MeetingID       identifiers.MeetingID
	Backend         SignalingBackend
	Devices         devices.MediaDevices
	PeerConnections Factory
}

func newMediaOut(params MediaOutParams, streamType identifiers.StreamType) (*mediaOut, error) {
	m := &mediaOut{
		log: params.Log.WithNamespaceAppended(string(streamType) + "_out").WithCtx(logger.Ctx{
			"meeting_id": params.MeetingID,
		}),
		meetingID:  params.MeetingID,
		streamType: streamType,
		backend:    params.Backend,
		factory:    params.PeerConnections,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.connect(); err != nil {
		return nil, errors.Trace(err)
	}

	return m, nil
}

// connect must be called with mu held.
func (m *mediaOut) connect() error {
	pc, err := m.factory.NewPeerConnection()
	if err != nil {
		return errors.Annotatef(err, "new %s peer connection", m.streamType)
	}

	m.pc = pc
	m.negotiator = newNegotiator(negotiatorParams{
		Log:            m.log,
		PeerConnection: pc,
		Kind:           string(m.streamType),
		SendOffer:      m.sendOffer,
	})

	prometheusConnectionsActive.WithLabelValues(string(m.streamType)).Inc()

	return nil
}

func (m *mediaOut) sendOffer(ctx context.Context, sdp string) error {
	m.mu.Lock()
	enabled := m.track != nil
	m.mu.Unlock()

	return errors.Trace(m.backend.UpdateMediaOffer(ctx, m.meetingID, m.streamType, enabled, sdp))
}

// setTrack replaces the track of an existing sender, or adds a new sender,
// which triggers a negotiation. The previous track is stopped after a
// successful replace.
func (m *mediaOut) setTrack(ctx context.Context, track devices.LocalTrack) error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return errors.Trace(ErrClosed)
	}

	if m.pc == nil {
		if err := m.connect(); err != nil {
			m.mu.Unlock()

			return errors.Trace(err)
		}
	}

	if m.sender == nil {
		sender, err := m.pc.AddTrack(track)
		if err != nil {
			m.mu.Unlock()

			return errors.Annotatef(err, "add %s track", m.streamType)
		}

		m.sender = sender
		m.track = track
		m.mu.Unlock()

		m.log.Info("Added track", nil)

		return nil
	}

	if err := m.sender.ReplaceTrack(track); err != nil {
		m.mu.Unlock()

		return errors.Annotatef(err, "replace %s track", m.streamType)
	}

	prev := m.track
	m.track = track
	m.mu.Unlock()

	if prev != nil && prev != track {
		prev.Stop()
	}

	m.log.Info("Replaced track", nil)

	// A device switch keeps the stream enabled. Only a restart after stop
	// needs to tell the backend.
	if prev != nil {
		return nil
	}

	err := m.backend.UpdateMediaOffer(ctx, m.meetingID, m.streamType, true, "")

	return errors.Annotatef(err, "update %s media offer", m.streamType)
}

// stop stops the current track and tells the backend the stream is
// disabled. When teardown is set the peer connection is closed too and the
// next setTrack creates a new one.
func (m *mediaOut) stop(ctx context.Context, teardown bool) error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return nil
	}

	track := m.track
	m.track = nil

	var (
		pc         PeerConnection
		negotiator *negotiator
		errs       multierr.MultiErr
	)

	if teardown {
		pc, negotiator = m.pc, m.negotiator
		m.pc, m.negotiator, m.sender = nil, nil, nil
	} else if m.sender != nil {
		errs.Add(errors.Annotate(m.sender.ReplaceTrack(nil), "remove track"))
	}

	m.mu.Unlock()

	if track != nil {
		track.Stop()
	}

	if pc != nil {
		errs.Add(m.closePeerConnection(pc, negotiator))
	}

	err := m.backend.UpdateMediaOffer(ctx, m.meetingID, m.streamType, false, "")
	errs.Add(errors.Annotatef(err, "update %s media offer", m.streamType))

	return errors.Trace(errs.Err())
}

func (m *mediaOut) closePeerConnection(pc PeerConnection, negotiator *negotiator) error {
	negotiator.Close()

	prometheusConnectionsActive.WithLabelValues(string(m.streamType)).Dec()

	return errors.Annotatef(pc.Close(), "close %s peer connection", m.streamType)
}

func (m *mediaOut) handleRemoteAnswer(sdp string) error {
	m.mu.Lock()
	negotiator := m.negotiator
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return errors.Trace(ErrClosed)
	}

	if negotiator == nil {
		return errors.Trace(ErrNoPeerConnection)
	}

	return errors.Trace(negotiator.HandleRemoteAnswer(sdp))
}

func (m *mediaOut) currentTrack() devices.LocalTrack {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.track
}

func (m *mediaOut) state() NegotiationState {
	m.mu.Lock()
	negotiator := m.negotiator
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return NegotiationStateClosed
	}

	if negotiator == nil {
		return NegotiationStateIdle
	}

	return negotiator.State()
}

// close stops the track, then closes the peer connection. Safe to call
// more than once.
func (m *mediaOut) close() error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return nil
	}

	m.closed = true

	track, pc, negotiator := m.track, m.pc, m.negotiator
	m.track, m.pc, m.negotiator, m.sender = nil, nil, nil, nil

	m.mu.Unlock()

	if track != nil {
		track.Stop()
	}

	if pc == nil {
		return nil
	}

	return errors.Trace(m.closePeerConnection(pc, negotiator))
}

// VideoOutConnection sends the local camera. Stopping the video keeps the
// peer connection so that the next start only replaces the track.
type VideoOutConnection struct {
	media   *mediaOut
	devices devices.MediaDevices
}

func NewVideoOutConnection(params MediaOutParams) (*VideoOutConnection, error) {
	media, err := newMediaOut(params, identifiers.StreamTypeVideo)
	if err != nil {
		return nil, errors.Trace(err)
	}

	return &VideoOutConnection{
		media:   media,
		devices: params.Devices,
	}, nil
}

// StartVideo acquires the camera and starts sending it. Device errors are
// returned as is.
func (v *VideoOutConnection) StartVideo(ctx context.Context, deviceID string) error {
	track, err := v.devices.GetUserMedia(ctx, devices.Constraints{
		Kind:     devices.KindVideoInput,
		DeviceID: deviceID,
	})
	if err != nil {
		return errors.Trace(err)
	}

	if err := v.media.setTrack(ctx, track); err != nil {
		track.Stop()

		return errors.Trace(err)
	}

	return nil
}

func (v *VideoOutConnection) StopVideo(ctx context.Context) error {
	return errors.Trace(v.media.stop(ctx, false))
}

func (v *VideoOutConnection) UpdateLocalStreamTrack(ctx context.Context, track devices.LocalTrack) error {
	return errors.Trace(v.media.setTrack(ctx, track))
}

func (v *VideoOutConnection) HandleRemoteAnswer(sdp string) error {
	return errors.Trace(v.media.handleRemoteAnswer(sdp))
}

func (v *VideoOutConnection) Track() devices.LocalTrack {
	return v.media.currentTrack()
}

func (v *VideoOutConnection) State() NegotiationState {
	return v.media.state()
}

func (v *VideoOutConnection) Close() error {
	return errors.Trace(v.media.close())
}

// ScreenOutConnection sends the screen share. Stopping the share closes the
// peer connection and the next start negotiates a new one.
type ScreenOutConnection struct {
	media   *mediaOut
	devices devices.MediaDevices
}

func NewScreenOutConnection(params MediaOutParams) (*ScreenOutConnection, error) {
	media, err := newMediaOut(params, identifiers.StreamTypeScreen)
	if err != nil {
		return nil, errors.Trace(err)
	}

	return &ScreenOutConnection{
		media:   media,
		devices: params.Devices,
	}, nil
}

func (s *ScreenOutConnection) StartScreenShare(ctx context.Context) error {
	track, err := s.devices.GetDisplayMedia(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	if err := s.media.setTrack(ctx, track); err != nil {
		track.Stop()

		return errors.Trace(err)
	}

	return nil
}

func (s *ScreenOutConnection) StopScreenShare(ctx context.Context) error {
	return errors.Trace(s.media.stop(ctx, true))
}

func (s *ScreenOutConnection) UpdateLocalStreamTrack(ctx context.Context, track devices.LocalTrack) error {
	return errors.Trace(s.media.setTrack(ctx, track))
}

func (s *ScreenOutConnection) HandleRemoteAnswer(sdp string) error {
	return errors.Trace(s.media.handleRemoteAnswer(sdp))
}

func (s *ScreenOutConnection) Track() devices.LocalTrack {
	return s.media.currentTrack()
}

func (s *ScreenOutConnection) State() NegotiationState {
	return s.media.state()
}

func (s *ScreenOutConnection) Close() error {
	return errors.Trace(s.media.close())
}
