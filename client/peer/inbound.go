package peer

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/logger"
	"github.com/pion/webrtc/v3"
)

const kindInbound = "inbound"

// InboundConnection receives the video and screen tracks of all remote
// participants on a single peer connection. The backend makes the offers.
//
// A stream is published only when both its (userId, type) and its track are
// known.
type InboundConnection struct {
	log         logger.Logger
	meetingID   identifiers.MeetingID
	backend     SignalingBackend
	pc          PeerConnection
	correlation Correlation

	ctx    context.Context
	cancel context.CancelFunc

	// negotiateMu serializes remote offers.
	negotiateMu sync.Mutex

	mu sync.Mutex
	// tracks are keyed by mid with CorrelationMid, and by subscription key
	// with CorrelationStreamID.
	tracks map[string]RemoteTrack
	// mappings by mid, only used with CorrelationMid.
	mappings  map[string]StreamMapping
	published StreamsMap
	onChange  func(StreamsMap)
	closed    bool
}

type InboundConnectionParams struct {
	Log            logger.Logger
	MeetingID      identifiers.MeetingID
	Backend        SignalingBackend
	PeerConnection PeerConnection
	Correlation    Correlation
}

func NewInboundConnection(params InboundConnectionParams) *InboundConnection {
	ctx, cancel := context.WithCancel(context.Background())

	correlation := params.Correlation
	if correlation == "" {
		correlation = CorrelationMid
	}

	c := &InboundConnection{
		log: params.Log.WithNamespaceAppended("inbound").WithCtx(logger.Ctx{
			"meeting_id": params.MeetingID,
		}),
		meetingID:   params.MeetingID,
		backend:     params.Backend,
		pc:          params.PeerConnection,
		correlation: correlation,
		ctx:         ctx,
		cancel:      cancel,
		tracks:      map[string]RemoteTrack{},
		mappings:    map[string]StreamMapping{},
		published:   StreamsMap{},
	}

	c.pc.OnTrack(c.handleTrack)
	c.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		c.log.Info("ICE connection state changed", logger.Ctx{
			"ice_connection_state": state,
		})
	})

	prometheusConnectionsActive.WithLabelValues(kindInbound).Inc()

	return c
}

func (c *InboundConnection) Correlation() Correlation {
	return c.correlation
}

func (c *InboundConnection) handleTrack(track RemoteTrack, mid string) {
	log := c.log.WithCtx(logger.Ctx{
		"mid":       mid,
		"stream_id": track.StreamID(),
		"track_id":  track.ID(),
	})

	key := mid

	if c.correlation == CorrelationStreamID {
		sub, err := identifiers.ParseSubscriptionKey(track.StreamID())
		if err != nil {
			log.Warn("Ignoring track with unknown stream id", nil)

			return
		}

		key = string(sub.Key())
	}

	log.Info("Remote track", nil)

	c.update(func() {
		c.tracks[key] = track
	})
}

// UpdateStreamsMapping replaces the table of media line ids.
func (c *InboundConnection) UpdateStreamsMapping(mappings []StreamMapping) {
	if c.correlation != CorrelationMid {
		c.log.Debug("Ignoring streams mapping", logger.Ctx{
			"correlation": c.correlation,
		})

		return
	}

	c.update(func() {
		c.mappings = make(map[string]StreamMapping, len(mappings))

		for _, mapping := range mappings {
			c.mappings[mapping.Mid] = mapping
		}
	})
}

// RemoveParticipant removes every stream of the user, regardless of type.
func (c *InboundConnection) RemoveParticipant(userID identifiers.UserID) {
	c.update(func() {
		for mid, mapping := range c.mappings {
			if mapping.UserID == userID {
				delete(c.mappings, mid)
				delete(c.tracks, mid)
			}
		}

		for _, streamType := range []identifiers.StreamType{
			identifiers.StreamTypeAudio,
			identifiers.StreamTypeVideo,
			identifiers.StreamTypeScreen,
		} {
			delete(c.tracks, string(identifiers.NewSubscriptionKey(userID, streamType)))
		}
	})
}

// RemoveStream unpublishes one stream of a user. With CorrelationMid the
// track stays known under its mid, since the backend may map the media line
// to another stream later.
func (c *InboundConnection) RemoveStream(userID identifiers.UserID, streamType identifiers.StreamType) {
	c.update(func() {
		for mid, mapping := range c.mappings {
			if mapping.UserID == userID && mapping.Type == streamType {
				delete(c.mappings, mid)
			}
		}

		delete(c.tracks, string(identifiers.NewSubscriptionKey(userID, streamType)))
	})
}

// update runs fn with mu held, then republishes the complete streams and
// notifies the callback when the published map changed.
func (c *InboundConnection) update(fn func()) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return
	}

	fn()

	published := c.completeStreams()
	changed := !streamsEqual(published, c.published)
	c.published = published
	onChange := c.onChange

	c.mu.Unlock()

	if changed && onChange != nil {
		onChange(published.Clone())
	}
}

// completeStreams must be called with mu held.
func (c *InboundConnection) completeStreams() StreamsMap {
	ret := StreamsMap{}

	switch c.correlation {
	case CorrelationStreamID:
		for key, track := range c.tracks {
			sub, err := identifiers.ParseSubscriptionKey(key)
			if err != nil {
				continue
			}

			ret[sub.Key()] = RemoteStream{
				UserID:   sub.UserID,
				Type:     sub.Type,
				StreamID: track.StreamID(),
				Track:    track,
			}
		}
	default:
		for mid, mapping := range c.mappings {
			track, ok := c.tracks[mid]
			if !ok {
				continue
			}

			stream := RemoteStream{
				UserID:   mapping.UserID,
				Type:     mapping.Type,
				StreamID: track.StreamID(),
				Track:    track,
			}

			ret[stream.Key()] = stream
		}
	}

	return ret
}

func streamsEqual(a, b StreamsMap) bool {
	if len(a) != len(b) {
		return false
	}

	for key, stream := range a {
		other, ok := b[key]
		if !ok || other.Track != stream.Track {
			return false
		}
	}

	return true
}

// OnStreamsChanged sets the callback called after every change of the
// published streams.
func (c *InboundConnection) OnStreamsChanged(fn func(StreamsMap)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Streams returns a snapshot of the complete streams.
func (c *InboundConnection) Streams() StreamsMap {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.published.Clone()
}

// HandleRemoteOffer answers an offer made by the backend. Offers that
// arrive outside of the stable signaling state are ignored.
func (c *InboundConnection) HandleRemoteOffer(ctx context.Context, sdp string) error {
	c.negotiateMu.Lock()
	defer c.negotiateMu.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return errors.Trace(ErrClosed)
	}

	if signalingState := c.pc.SignalingState(); signalingState != webrtc.SignalingStateStable {
		c.log.Warn("Ignoring remote offer", logger.Ctx{
			"signaling_state": signalingState,
		})

		return nil
	}

	if err := c.answer(ctx, sdp); err != nil {
		prometheusNegotiationErrorsTotal.WithLabelValues(kindInbound).Inc()

		return errors.Trace(err)
	}

	prometheusNegotiationsTotal.WithLabelValues(kindInbound).Inc()

	return nil
}

func (c *InboundConnection) answer(ctx context.Context, sdp string) error {
	err := c.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	})
	if err != nil {
		return errors.Annotate(err, "set remote description")
	}

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return errors.Annotate(err, "create answer")
	}

	gatheringComplete := c.pc.GatheringComplete()

	if err := c.pc.SetLocalDescription(answer); err != nil {
		return errors.Annotate(err, "set local description")
	}

	select {
	case <-gatheringComplete:
	case <-ctx.Done():
		return errors.Annotate(ctx.Err(), "wait for ICE gathering")
	case <-c.ctx.Done():
		return errors.Trace(ErrClosed)
	}

	localDescription := c.pc.LocalDescription()
	if localDescription == nil {
		return errors.Errorf("no local description")
	}

	c.log.Info("Send answer", nil)

	err = c.backend.CreateMediaAnswer(ctx, c.meetingID, localDescription.SDP)

	return errors.Annotate(err, "send answer")
}

// Close closes the peer connection. Safe to call more than once.
func (c *InboundConnection) Close() error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return nil
	}

	c.closed = true
	c.tracks = map[string]RemoteTrack{}
	c.mappings = map[string]StreamMapping{}
	c.published = StreamsMap{}

	c.mu.Unlock()

	c.cancel()

	prometheusConnectionsActive.WithLabelValues(kindInbound).Dec()

	return errors.Annotate(c.pc.Close(), "close inbound peer connection")
}
