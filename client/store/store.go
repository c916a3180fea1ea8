package store

import (
	"context"
	"sort"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/devices"
	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/logger"
	"github.com/peer-calls/meetings/client/meetingsapi"
	"github.com/peer-calls/meetings/client/multierr"
	"github.com/peer-calls/meetings/client/peer"
	"github.com/peer-calls/meetings/client/subscription"
)

// Store holds the state of all active meetings, keyed by meeting id. It
// owns the four peer connections of every meeting.
type Store struct {
	log             logger.Logger
	backend         meetingsapi.Backend
	devices         devices.MediaDevices
	peerConnections peer.Factory
	correlation     peer.Correlation
	newSilence      func() (devices.LocalTrack, error)

	mu       sync.Mutex
	meetings map[identifiers.MeetingID]*meeting
	onChange func(identifiers.MeetingID)
}

type Params struct {
	Log             logger.Logger
	Backend         meetingsapi.Backend
	Devices         devices.MediaDevices
	PeerConnections peer.Factory
	// Correlation is used by the inbound connections. Defaults to
	// peer.CorrelationMid.
	Correlation peer.Correlation
	// NewSilence creates the placeholder track of the audio connection.
	NewSilence func() (devices.LocalTrack, error)
}

func New(params Params) *Store {
	return &Store{
		log:             params.Log.WithNamespaceAppended("store"),
		backend:         params.Backend,
		devices:         params.Devices,
		peerConnections: params.PeerConnections,
		correlation:     params.Correlation,
		newSilence:      params.NewSilence,
		meetings:        map[identifiers.MeetingID]*meeting{},
	}
}

// Connections are the connection handles of one meeting.
type Connections struct {
	Audio     *peer.AudioConnection
	VideoOut  *peer.VideoOutConnection
	ScreenOut *peer.ScreenOutConnection
	Inbound   *peer.InboundConnection
}

// Close closes all connections that were created.
func (c Connections) Close() error {
	var errs multierr.MultiErr

	if c.Audio != nil {
		errs.Add(errors.Trace(c.Audio.Close()))
	}

	if c.VideoOut != nil {
		errs.Add(errors.Trace(c.VideoOut.Close()))
	}

	if c.ScreenOut != nil {
		errs.Add(errors.Trace(c.ScreenOut.Close()))
	}

	if c.Inbound != nil {
		errs.Add(errors.Trace(c.Inbound.Close()))
	}

	return errors.Trace(errs.Err())
}

// DeviceSelection is the local device state of a meeting.
type DeviceSelection struct {
	AudioDeviceID string
	VideoDeviceID string
	AudioEnabled  bool
	VideoEnabled  bool
	ScreenEnabled bool
}

type ConnectParams struct {
	MeetingID identifiers.MeetingID
	// UserID is the local user. Its own streams are never subscribed.
	UserID        identifiers.UserID
	AudioEnabled  bool
	AudioDeviceID string
	VideoEnabled  bool
	VideoDeviceID string
}

// OnChange sets the callback called after any change of a meeting's state.
func (s *Store) OnChange(fn func(identifiers.MeetingID)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) notify(meetingID identifiers.MeetingID) {
	s.mu.Lock()
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange(meetingID)
	}
}

// Connect creates the connections of a meeting. The microphone and the
// camera are acquired when enabled. Device errors are returned and nothing
// is left open.
func (s *Store) Connect(ctx context.Context, params ConnectParams) error {
	log := s.log.WithCtx(logger.Ctx{
		"meeting_id": params.MeetingID,
	})

	s.mu.Lock()

	if _, ok := s.meetings[params.MeetingID]; ok {
		s.mu.Unlock()

		return errors.Annotatef(ErrAlreadyConnected, "meeting: %s", params.MeetingID)
	}

	m := newMeeting(params)
	m.pending = subscription.NewPending(func(desired subscription.Set) {
		s.sendQueued(m, desired)
	})
	// Reserve the id while the connections are built.
	m.connecting = true
	s.meetings[params.MeetingID] = m

	s.mu.Unlock()

	connections, err := s.connect(ctx, log, m, params)
	if err != nil {
		s.mu.Lock()
		delete(s.meetings, params.MeetingID)
		s.mu.Unlock()

		m.cancel()

		if closeErr := connections.Close(); closeErr != nil {
			log.Error("Close connections", errors.Trace(closeErr), nil)
		}

		return errors.Trace(err)
	}

	m.mu.Lock()
	m.connections = connections
	m.connecting = false
	disconnectRequested := m.disconnectRequested
	m.mu.Unlock()

	prometheusMeetingsActive.Inc()

	if disconnectRequested {
		log.Info("Disconnect requested while connecting", nil)

		if err := s.Disconnect(params.MeetingID); err != nil {
			return errors.Trace(err)
		}

		return errors.Annotatef(ErrNotConnected, "meeting %s disconnected while connecting", params.MeetingID)
	}

	log.Info("Connected", logger.Ctx{
		"audio_enabled": params.AudioEnabled,
		"video_enabled": params.VideoEnabled,
	})

	s.notify(params.MeetingID)

	return nil
}

// connect returns the connections built so far on error, so that the
// caller can close them.
func (s *Store) connect(
	ctx context.Context,
	log logger.Logger,
	m *meeting,
	params ConnectParams,
) (Connections, error) {
	var connections Connections

	audio, err := s.connectAudio(ctx, log, params)
	if err != nil {
		return connections, errors.Trace(err)
	}

	audio.OnRemoteTrack(func(stream peer.RemoteStream) {
		s.notify(params.MeetingID)
	})

	connections.Audio = audio

	mediaOutParams := peer.MediaOutParams{
		Log:             log,
		MeetingID:       params.MeetingID,
		Backend:         s.backend,
		Devices:         s.devices,
		PeerConnections: s.peerConnections,
	}

	if connections.VideoOut, err = peer.NewVideoOutConnection(mediaOutParams); err != nil {
		return connections, errors.Trace(err)
	}

	if connections.ScreenOut, err = peer.NewScreenOutConnection(mediaOutParams); err != nil {
		return connections, errors.Trace(err)
	}

	inboundPC, err := s.peerConnections.NewPeerConnection()
	if err != nil {
		return connections, errors.Annotate(err, "new inbound peer connection")
	}

	connections.Inbound = peer.NewInboundConnection(peer.InboundConnectionParams{
		Log:            log,
		MeetingID:      params.MeetingID,
		Backend:        s.backend,
		PeerConnection: inboundPC,
		Correlation:    s.correlation,
	})

	connections.Inbound.OnStreamsChanged(func(streams peer.StreamsMap) {
		m.setStreams(streams)
		s.notify(params.MeetingID)
	})

	if params.VideoEnabled {
		if err := connections.VideoOut.StartVideo(ctx, params.VideoDeviceID); err != nil {
			return connections, errors.Annotate(err, "start video")
		}
	}

	return connections, nil
}

func (s *Store) connectAudio(
	ctx context.Context,
	log logger.Logger,
	params ConnectParams,
) (*peer.AudioConnection, error) {
	var microphone devices.LocalTrack

	if params.AudioEnabled {
		track, err := s.devices.GetUserMedia(ctx, devices.Constraints{
			Kind:     devices.KindAudioInput,
			DeviceID: params.AudioDeviceID,
		})
		if err != nil {
			return nil, errors.Annotate(err, "get microphone")
		}

		microphone = track
	}

	silence, err := s.newSilence()
	if err != nil {
		if microphone != nil {
			microphone.Stop()
		}

		return nil, errors.Annotate(err, "new silence track")
	}

	pc, err := s.peerConnections.NewPeerConnection()
	if err == nil {
		var audio *peer.AudioConnection

		audio, err = peer.NewAudioConnection(peer.AudioConnectionParams{
			Log:            log,
			MeetingID:      params.MeetingID,
			Backend:        s.backend,
			PeerConnection: pc,
			Silence:        silence,
			Microphone:     microphone,
			Muted:          !params.AudioEnabled,
		})
		if err == nil {
			return audio, nil
		}

		if closeErr := pc.Close(); closeErr != nil {
			log.Error("Close audio peer connection", errors.Trace(closeErr), nil)
		}
	}

	if microphone != nil {
		microphone.Stop()
	}

	silence.Stop()

	return nil, errors.Annotate(err, "new audio connection")
}

// Disconnect closes all connections of the meeting and removes it.
// Disconnecting a meeting that is not connected is a no-op. A meeting that
// is still connecting is disconnected as soon as Connect has built it.
func (s *Store) Disconnect(meetingID identifiers.MeetingID) error {
	s.mu.Lock()

	m, ok := s.meetings[meetingID]
	if !ok {
		s.mu.Unlock()

		return nil
	}

	m.mu.Lock()

	if m.connecting {
		// Connect tears the meeting down once it is built.
		m.disconnectRequested = true
		m.mu.Unlock()
		s.mu.Unlock()

		return nil
	}

	if m.disconnecting {
		m.mu.Unlock()
		s.mu.Unlock()

		return nil
	}

	m.disconnecting = true
	connections := m.connections

	m.mu.Unlock()
	s.mu.Unlock()

	m.cancel()

	err := connections.Close()

	s.mu.Lock()
	delete(s.meetings, meetingID)
	s.mu.Unlock()

	prometheusMeetingsActive.Dec()

	s.log.Info("Disconnected", logger.Ctx{
		"meeting_id": meetingID,
	})

	s.notify(meetingID)

	return errors.Annotatef(err, "disconnect: %s", meetingID)
}

// DisconnectAll disconnects every meeting in parallel.
func (s *Store) DisconnectAll() error {
	var (
		errs multierr.Sync
		wg   sync.WaitGroup
	)

	for _, meetingID := range s.MeetingIDs() {
		meetingID := meetingID

		wg.Add(1)

		go func() {
			defer wg.Done()

			errs.Add(s.Disconnect(meetingID))
		}()
	}

	wg.Wait()

	return errors.Trace(errs.Err())
}

// meeting returns a connected meeting.
func (s *Store) meeting(meetingID identifiers.MeetingID) (*meeting, error) {
	s.mu.Lock()
	m, ok := s.meetings[meetingID]
	s.mu.Unlock()

	if !ok || !m.ready() {
		return nil, errors.Annotatef(ErrNotConnected, "meeting: %s", meetingID)
	}

	return m, nil
}

// MeetingIDs returns the ids of all connected meetings, sorted.
func (s *Store) MeetingIDs() []identifiers.MeetingID {
	s.mu.Lock()

	ret := make([]identifiers.MeetingID, 0, len(s.meetings))

	for meetingID, m := range s.meetings {
		if m.ready() {
			ret = append(ret, meetingID)
		}
	}

	s.mu.Unlock()

	sort.Slice(ret, func(i, j int) bool {
		return ret[i] < ret[j]
	})

	return ret
}

// Connections returns the connection handles of a meeting.
func (s *Store) Connections(meetingID identifiers.MeetingID) (Connections, bool) {
	m, err := s.meeting(meetingID)
	if err != nil {
		return Connections{}, false
	}

	return m.getConnections(), true
}

// Devices returns the local device selection of a meeting.
func (s *Store) Devices(meetingID identifiers.MeetingID) (DeviceSelection, bool) {
	m, err := s.meeting(meetingID)
	if err != nil {
		return DeviceSelection{}, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.selection, true
}

// StreamsSubscriptionMap returns the complete remote streams of a meeting.
func (s *Store) StreamsSubscriptionMap(meetingID identifiers.MeetingID) peer.StreamsMap {
	m, err := s.meeting(meetingID)
	if err != nil {
		return peer.StreamsMap{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.streams.Clone()
}

// Subscriptions returns the potential and the real subscriptions of a
// meeting.
func (s *Store) Subscriptions(meetingID identifiers.MeetingID) (potential, confirmed subscription.Set) {
	m, err := s.meeting(meetingID)
	if err != nil {
		return subscription.Set{}, subscription.Set{}
	}

	return m.manager.Potential(), m.manager.Real()
}
