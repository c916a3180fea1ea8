package peer_test

import (
	"context"
	"testing"
	"time"

	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/peer"
	"github.com/peer-calls/meetings/client/test"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func newVideoOut(t *testing.T) (*peer.VideoOutConnection, *test.PeerConnectionFactory, *test.Backend, *test.MediaDevices) {
	t.Helper()

	factory := test.NewPeerConnectionFactory()
	backend := test.NewBackend()
	mediaDevices := test.NewMediaDevices()

	conn, err := peer.NewVideoOutConnection(peer.MediaOutParams{
		Log:             test.NewLogger(),
		MeetingID:       "m1",
		Backend:         backend,
		Devices:         mediaDevices,
		PeerConnections: factory,
	})
	require.NoError(t, err)

	return conn, factory, backend, mediaDevices
}

func offersSent(backend *test.Backend) func() int {
	return func() int {
		n := 0

		for _, call := range backend.Calls("UpdateMediaOffer") {
			if call.SDP != "" {
				n++
			}
		}

		return n
	}
}

func TestNegotiation_OfferAnswer(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn, factory, backend, _ := newVideoOut(t)
	defer conn.Close()

	assert.Equal(t, peer.NegotiationStateIdle, conn.State())

	require.NoError(t, conn.StartVideo(context.Background(), "cam1"))

	assert.Eventually(t, func() bool { return offersSent(backend)() == 1 }, waitFor, tick)

	call := backend.Calls("UpdateMediaOffer")[0]
	assert.Equal(t, identifiers.MeetingID("m1"), call.MeetingID)
	assert.Equal(t, identifiers.StreamTypeVideo, call.StreamType)
	assert.True(t, call.Enabled)
	assert.Equal(t, "offer-1", call.SDP)
	assert.Equal(t, peer.NegotiationStateNegotiating, conn.State())

	pc := factory.PeerConnections()[0]
	assert.Equal(t, webrtc.SignalingStateHaveLocalOffer, pc.SignalingState())

	require.NoError(t, conn.HandleRemoteAnswer("answer-1"))

	assert.Equal(t, webrtc.SignalingStateStable, pc.SignalingState())
	assert.Equal(t, peer.NegotiationStateStable, conn.State())
}

func TestNegotiation_NotStable(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn, factory, backend, _ := newVideoOut(t)
	defer conn.Close()

	require.NoError(t, conn.StartVideo(context.Background(), ""))
	assert.Eventually(t, func() bool { return offersSent(backend)() == 1 }, waitFor, tick)

	pc := factory.PeerConnections()[0]
	localDescription := pc.LocalDescription()

	// Negotiation needed while the previous offer is unanswered.
	pc.TriggerNegotiationNeeded()

	time.Sleep(50 * time.Millisecond)

	assert.Len(t, pc.Offers(), 1, "no offer should be created outside of stable state")
	assert.Equal(t, localDescription, pc.LocalDescription())

	// The postponed negotiation runs once the answer is applied.
	require.NoError(t, conn.HandleRemoteAnswer("answer-1"))

	assert.Eventually(t, func() bool { return offersSent(backend)() == 2 }, waitFor, tick)
	assert.Len(t, pc.Offers(), 2)
}

func TestNegotiation_AnswerInHaveRemoteOffer(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn, factory, _, _ := newVideoOut(t)
	defer conn.Close()

	pc := factory.PeerConnections()[0]
	pc.SetSignalingState(webrtc.SignalingStateHaveRemoteOffer)

	require.NoError(t, conn.HandleRemoteAnswer("answer-1"))

	assert.Empty(t, pc.RemoteDescriptions())
	assert.Equal(t, webrtc.SignalingStateHaveRemoteOffer, pc.SignalingState())
}

func TestNegotiation_ICERestart(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn, factory, backend, _ := newVideoOut(t)
	defer conn.Close()

	require.NoError(t, conn.StartVideo(context.Background(), ""))
	assert.Eventually(t, func() bool { return offersSent(backend)() == 1 }, waitFor, tick)
	require.NoError(t, conn.HandleRemoteAnswer("answer-1"))

	pc := factory.PeerConnections()[0]

	pc.SetICEConnectionState(webrtc.ICEConnectionStateDisconnected)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, pc.Offers(), 1, "disconnected should not renegotiate")

	pc.SetICEConnectionState(webrtc.ICEConnectionStateFailed)

	assert.Eventually(t, func() bool { return offersSent(backend)() == 2 }, waitFor, tick)

	offers := pc.Offers()
	require.Len(t, offers, 2)
	assert.False(t, offers[0].ICERestart)
	assert.True(t, offers[1].ICERestart)

	require.NoError(t, conn.HandleRemoteAnswer("answer-2"))

	// Every failure is retried.
	pc.SetICEConnectionState(webrtc.ICEConnectionStateFailed)
	assert.Eventually(t, func() bool { return offersSent(backend)() == 3 }, waitFor, tick)
}

func TestNegotiation_OfferError(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn, factory, backend, _ := newVideoOut(t)
	defer conn.Close()

	backend.SetError("UpdateMediaOffer", assert.AnError)

	require.NoError(t, conn.StartVideo(context.Background(), ""))

	assert.Eventually(t, func() bool { return offersSent(backend)() == 1 }, waitFor, tick)

	// The error is logged, the connection keeps the local offer.
	pc := factory.PeerConnections()[0]
	assert.Equal(t, webrtc.SignalingStateHaveLocalOffer, pc.SignalingState())
}
