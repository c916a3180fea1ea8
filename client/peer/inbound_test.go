package peer_test

import (
	"context"
	"sync"
	"testing"

	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/multierr"
	"github.com/peer-calls/meetings/client/peer"
	"github.com/peer-calls/meetings/client/test"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type streamsRecorder struct {
	mu      sync.Mutex
	changes []peer.StreamsMap
}

func (r *streamsRecorder) record(streams peer.StreamsMap) {
	r.mu.Lock()
	r.changes = append(r.changes, streams)
	r.mu.Unlock()
}

func (r *streamsRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.changes)
}

func newInbound(correlation peer.Correlation) (*peer.InboundConnection, *test.PeerConnection, *test.Backend, *streamsRecorder) {
	pc := test.NewPeerConnection()
	backend := test.NewBackend()
	recorder := &streamsRecorder{}

	conn := peer.NewInboundConnection(peer.InboundConnectionParams{
		Log:            test.NewLogger(),
		MeetingID:      "m1",
		Backend:        backend,
		PeerConnection: pc,
		Correlation:    correlation,
	})

	conn.OnStreamsChanged(recorder.record)

	return conn, pc, backend, recorder
}

func TestInbound_MidCorrelation(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn, pc, _, recorder := newInbound("")
	defer conn.Close()

	assert.Equal(t, peer.CorrelationMid, conn.Correlation())

	track := test.NewRemoteTrack("t1", "s1", webrtc.RTPCodecTypeVideo)
	defer track.Close()

	// Track without a mapping is not published.
	pc.EmitTrack(track, "1")
	assert.Empty(t, conn.Streams())
	assert.Equal(t, 0, recorder.count())

	// Mapping for a different mid does not complete it either.
	conn.UpdateStreamsMapping([]peer.StreamMapping{{UserID: "u2", Type: identifiers.StreamTypeVideo, Mid: "2"}})
	assert.Empty(t, conn.Streams())
	assert.Equal(t, 0, recorder.count())

	conn.UpdateStreamsMapping([]peer.StreamMapping{
		{UserID: "u1", Type: identifiers.StreamTypeVideo, Mid: "1"},
		{UserID: "u2", Type: identifiers.StreamTypeVideo, Mid: "2"},
	})

	streams := conn.Streams()
	require.Len(t, streams, 1)

	stream := streams["u1-video"]
	assert.Equal(t, identifiers.UserID("u1"), stream.UserID)
	assert.Equal(t, identifiers.StreamTypeVideo, stream.Type)
	assert.Equal(t, "s1", stream.StreamID)
	assert.Equal(t, peer.RemoteTrack(track), stream.Track)
	assert.Equal(t, 1, recorder.count())

	// The same mapping again does not notify.
	conn.UpdateStreamsMapping([]peer.StreamMapping{
		{UserID: "u1", Type: identifiers.StreamTypeVideo, Mid: "1"},
		{UserID: "u2", Type: identifiers.StreamTypeVideo, Mid: "2"},
	})
	assert.Equal(t, 1, recorder.count())

	conn.RemoveParticipant("u1")
	assert.Empty(t, conn.Streams())
	assert.Equal(t, 2, recorder.count())
}

func TestInbound_StreamIDCorrelation(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn, pc, _, recorder := newInbound(peer.CorrelationStreamID)
	defer conn.Close()

	video := test.NewRemoteTrack("t1", "u1-video", webrtc.RTPCodecTypeVideo)
	screen := test.NewRemoteTrack("t2", "u-with-dash-screen", webrtc.RTPCodecTypeVideo)
	unknown := test.NewRemoteTrack("t3", "garbage", webrtc.RTPCodecTypeVideo)

	pc.EmitTrack(video, "")
	pc.EmitTrack(screen, "")
	pc.EmitTrack(unknown, "")

	streams := conn.Streams()
	require.Len(t, streams, 2)
	assert.Equal(t, identifiers.UserID("u1"), streams["u1-video"].UserID)
	assert.Equal(t, identifiers.UserID("u-with-dash"), streams["u-with-dash-screen"].UserID)
	assert.Equal(t, identifiers.StreamTypeScreen, streams["u-with-dash-screen"].Type)
	assert.Equal(t, 2, recorder.count())

	// Mappings are not used with stream id correlation.
	conn.UpdateStreamsMapping([]peer.StreamMapping{{UserID: "u9", Type: identifiers.StreamTypeVideo, Mid: "0"}})
	assert.Len(t, conn.Streams(), 2)

	conn.RemoveParticipant("u-with-dash")

	streams = conn.Streams()
	require.Len(t, streams, 1)
	assert.Contains(t, streams, identifiers.SubscriptionKey("u1-video"))
}

func TestInbound_RemoveStream(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("stream id", func(t *testing.T) {
		conn, pc, _, _ := newInbound(peer.CorrelationStreamID)
		defer conn.Close()

		pc.EmitTrack(test.NewRemoteTrack("t1", "u1-video", webrtc.RTPCodecTypeVideo), "")
		pc.EmitTrack(test.NewRemoteTrack("t2", "u1-screen", webrtc.RTPCodecTypeVideo), "")
		require.Len(t, conn.Streams(), 2)

		conn.RemoveStream("u1", identifiers.StreamTypeVideo)

		streams := conn.Streams()
		require.Len(t, streams, 1)
		assert.Contains(t, streams, identifiers.SubscriptionKey("u1-screen"))
	})

	t.Run("mid", func(t *testing.T) {
		conn, pc, _, _ := newInbound("")
		defer conn.Close()

		track := test.NewRemoteTrack("t1", "s1", webrtc.RTPCodecTypeVideo)
		defer track.Close()

		pc.EmitTrack(track, "1")
		conn.UpdateStreamsMapping([]peer.StreamMapping{{UserID: "u1", Type: identifiers.StreamTypeVideo, Mid: "1"}})
		require.Len(t, conn.Streams(), 1)

		conn.RemoveStream("u1", identifiers.StreamTypeVideo)
		assert.Empty(t, conn.Streams())

		// The media line can be mapped again without a new track.
		conn.UpdateStreamsMapping([]peer.StreamMapping{{UserID: "u2", Type: identifiers.StreamTypeVideo, Mid: "1"}})

		streams := conn.Streams()
		require.Len(t, streams, 1)
		assert.Equal(t, peer.RemoteTrack(track), streams["u2-video"].Track)
	})
}

func TestInbound_HandleRemoteOffer(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn, pc, backend, _ := newInbound("")
	defer conn.Close()

	ctx := context.Background()

	require.NoError(t, conn.HandleRemoteOffer(ctx, "offer-1"))

	answers := backend.Calls("CreateMediaAnswer")
	require.Len(t, answers, 1)
	assert.Equal(t, "answer-1", answers[0].SDP)
	assert.Equal(t, webrtc.SignalingStateStable, pc.SignalingState())

	// Offers outside of stable are dropped.
	pc.SetSignalingState(webrtc.SignalingStateHaveLocalOffer)
	require.NoError(t, conn.HandleRemoteOffer(ctx, "offer-2"))

	assert.Len(t, backend.Calls("CreateMediaAnswer"), 1)
	assert.Len(t, pc.RemoteDescriptions(), 1)
}

func TestInbound_AnswerError(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn, _, backend, _ := newInbound("")
	defer conn.Close()

	backend.SetError("CreateMediaAnswer", assert.AnError)

	err := conn.HandleRemoteOffer(context.Background(), "offer-1")
	assert.True(t, multierr.Is(err, assert.AnError))
}

func TestInbound_Close(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn, pc, _, recorder := newInbound(peer.CorrelationStreamID)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.Equal(t, 1, pc.Closed())

	pc.EmitTrack(test.NewRemoteTrack("t1", "u1-video", webrtc.RTPCodecTypeVideo), "")
	assert.Empty(t, conn.Streams())
	assert.Equal(t, 0, recorder.count())

	err := conn.HandleRemoteOffer(context.Background(), "offer")
	assert.True(t, multierr.Is(err, peer.ErrClosed))
}
