package store_test

import (
	"context"
	"testing"

	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/meetingsapi"
	"github.com/peer-calls/meetings/client/multierr"
	"github.com/peer-calls/meetings/client/peer"
	"github.com/peer-calls/meetings/client/store"
	"github.com/peer-calls/meetings/client/test"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestStore_HandleEvent_Negotiation(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()

	f := newFixture("")
	defer f.store.DisconnectAll()

	f.connect(t, store.ConnectParams{VideoEnabled: true})

	assert.Eventually(t, func() bool {
		return len(f.backend.Calls("CreateAudioOffer")) == 1 &&
			len(f.backend.Calls("UpdateMediaOffer")) == 1
	}, waitFor, tick)

	pcs := f.factory.PeerConnections()
	audioPC, videoPC, inboundPC := pcs[0], pcs[1], pcs[3]

	require.NoError(t, f.store.HandleEvent(ctx, meetingsapi.Event{
		Type:      meetingsapi.EventTypeAudioAnswered,
		MeetingID: meetingID,
		SDP:       "audio-answer",
	}))
	assert.Equal(t, webrtc.SignalingStateStable, audioPC.SignalingState())
	require.Len(t, audioPC.RemoteDescriptions(), 1)
	assert.Equal(t, "audio-answer", audioPC.RemoteDescriptions()[0].SDP)

	require.NoError(t, f.store.HandleEvent(ctx, meetingsapi.Event{
		Type:       meetingsapi.EventTypeSDPAnswered,
		MeetingID:  meetingID,
		StreamType: identifiers.StreamTypeVideo,
		SDP:        "video-answer",
	}))
	assert.Equal(t, webrtc.SignalingStateStable, videoPC.SignalingState())

	require.NoError(t, f.store.HandleEvent(ctx, meetingsapi.Event{
		Type:      meetingsapi.EventTypeSDPOffered,
		MeetingID: meetingID,
		SDP:       "inbound-offer",
	}))

	answers := f.backend.Calls("CreateMediaAnswer")
	require.Len(t, answers, 1)
	assert.Equal(t, "answer-1", answers[0].SDP)
	assert.Equal(t, webrtc.SignalingStateStable, inboundPC.SignalingState())

	err := f.store.HandleEvent(ctx, meetingsapi.Event{
		Type:       meetingsapi.EventTypeSDPAnswered,
		MeetingID:  meetingID,
		StreamType: "hologram",
	})
	assert.True(t, multierr.Is(err, identifiers.ErrInvalidStreamType))

	err = f.store.HandleEvent(ctx, meetingsapi.Event{
		Type:      meetingsapi.EventTypeAudioAnswered,
		MeetingID: "other",
	})
	assert.True(t, multierr.Is(err, store.ErrNotConnected))

	assert.NoError(t, f.store.HandleEvent(ctx, meetingsapi.Event{
		Type:      "somethingNew",
		MeetingID: meetingID,
	}))
}

func TestStore_HandleEvent_Roster(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()

	f := newFixture("")
	defer f.store.DisconnectAll()

	f.connect(t, store.ConnectParams{})

	a := participant("a", true, false)

	require.NoError(t, f.store.HandleEvent(ctx, meetingsapi.Event{
		Type:        meetingsapi.EventTypeParticipantJoined,
		MeetingID:   meetingID,
		Participant: &a,
	}))

	require.NoError(t, f.store.HandleEvent(ctx, meetingsapi.Event{
		Type:       meetingsapi.EventTypeMediaStreamChanged,
		MeetingID:  meetingID,
		UserID:     "a",
		StreamType: identifiers.StreamTypeScreen,
		Enabled:    true,
	}))

	potential, confirmed := f.store.Subscriptions(meetingID)
	assert.Equal(t, []identifiers.Subscription{
		sub("a", identifiers.StreamTypeScreen),
		sub("a", identifiers.StreamTypeVideo),
	}, potential.Slice())
	assert.Equal(t, potential, confirmed)

	require.NoError(t, f.store.HandleEvent(ctx, meetingsapi.Event{
		Type:      meetingsapi.EventTypeParticipantTalking,
		MeetingID: meetingID,
		UserID:    "a",
		IsTalking: true,
	}))

	tiles := f.store.Tiles(meetingID)
	require.Len(t, tiles, 2)
	assert.True(t, tiles[1].Talking)

	require.NoError(t, f.store.HandleEvent(ctx, meetingsapi.Event{
		Type:      meetingsapi.EventTypeParticipantLeft,
		MeetingID: meetingID,
		UserID:    "a",
	}))

	potential, confirmed = f.store.Subscriptions(meetingID)
	assert.Empty(t, potential)
	assert.Empty(t, confirmed)
	assert.Empty(t, f.store.Tiles(meetingID))

	err := f.store.HandleEvent(ctx, meetingsapi.Event{
		Type:      meetingsapi.EventTypeParticipantJoined,
		MeetingID: meetingID,
	})
	assert.Error(t, err)
}

func TestStore_HandleEvent_StreamsMapped(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()

	f := newFixture("")
	defer f.store.DisconnectAll()

	f.connect(t, store.ConnectParams{})

	inboundPC := f.factory.PeerConnections()[3]

	track := test.NewRemoteTrack("t1", "s1", webrtc.RTPCodecTypeVideo)
	defer track.Close()

	changes := f.changeCount()

	inboundPC.EmitTrack(track, "0")
	assert.Empty(t, f.store.StreamsSubscriptionMap(meetingID))

	require.NoError(t, f.store.HandleEvent(ctx, meetingsapi.Event{
		Type:      meetingsapi.EventTypeStreamsMapped,
		MeetingID: meetingID,
		Streams: []meetingsapi.StreamMapping{{
			UserID: "a",
			Type:   identifiers.StreamTypeVideo,
			Mid:    "0",
		}},
	}))

	streams := f.store.StreamsSubscriptionMap(meetingID)
	require.Len(t, streams, 1)
	assert.Equal(t, peer.RemoteTrack(track), streams["a-video"].Track)
	assert.Greater(t, f.changeCount(), changes)
}

func TestStore_HandleEvent_StreamIDCorrelation(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()

	f := newFixture(peer.CorrelationStreamID)
	defer f.store.DisconnectAll()

	f.connect(t, store.ConnectParams{})

	a := participant("a", true, false)
	require.NoError(t, f.store.AddParticipant(ctx, meetingID, a))

	track := test.NewRemoteTrack("t1", "a-video", webrtc.RTPCodecTypeVideo)
	defer track.Close()

	f.factory.PeerConnections()[3].EmitTrack(track, "")

	tiles := f.store.Tiles(meetingID)
	require.Len(t, tiles, 1)
	require.NotNil(t, tiles[0].Stream)
	assert.Equal(t, "a-video", tiles[0].Stream.StreamID)

	require.NoError(t, f.store.UpdateParticipantStream(ctx, meetingID, "a", identifiers.StreamTypeVideo, false))

	potential, confirmed := f.store.Subscriptions(meetingID)
	assert.Empty(t, potential)
	assert.Empty(t, confirmed)
	assert.Empty(t, f.store.StreamsSubscriptionMap(meetingID))

	// The camera tile stays, without a stream.
	tiles = f.store.Tiles(meetingID)
	require.Len(t, tiles, 1)
	assert.Nil(t, tiles[0].Stream)
}

func TestStore_HandleEvent_AudioModerated(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()

	f := newFixture("")
	defer f.store.DisconnectAll()

	f.connect(t, store.ConnectParams{AudioEnabled: true})

	connections, ok := f.store.Connections(meetingID)
	require.True(t, ok)
	assert.False(t, connections.Audio.Muted())

	require.NoError(t, f.store.HandleEvent(ctx, meetingsapi.Event{
		Type:      meetingsapi.EventTypeAudioStreamChanged,
		MeetingID: meetingID,
		UserID:    localUser,
		Enabled:   false,
	}))

	assert.True(t, connections.Audio.Muted())

	selection, _ := f.store.Devices(meetingID)
	assert.False(t, selection.AudioEnabled)
}
