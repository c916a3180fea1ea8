package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/meetingsapi"
	"github.com/peer-calls/meetings/client/multierr"
	"github.com/peer-calls/meetings/client/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func tileKeys(tiles []store.Tile) []identifiers.SubscriptionKey {
	ret := make([]identifiers.SubscriptionKey, 0, len(tiles))

	for _, tile := range tiles {
		ret = append(ret, tile.Key)
	}

	return ret
}

func TestStore_Tiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()

	f := newFixture("")
	defer f.store.DisconnectAll()

	f.connect(t, store.ConnectParams{})

	start := time.Unix(1600000000, 0)

	joined := func(p meetingsapi.Participant, d time.Duration) meetingsapi.Participant {
		p.JoinedAt = start.Add(d)

		return p
	}

	// Listed out of join order on purpose.
	require.NoError(t, f.store.SetParticipants(ctx, meetingID, []meetingsapi.Participant{
		joined(participant("u4", true, false), 4*time.Second),
		joined(participant("u1", true, false), 1*time.Second),
		joined(participant("u3", true, true), 3*time.Second),
		joined(participant("u2", false, false), 2*time.Second),
	}))

	assert.Equal(t, []identifiers.SubscriptionKey{
		"u3-screen",
		"u1-video",
		"u2-video",
		"u3-video",
		"u4-video",
	}, tileKeys(f.store.Tiles(meetingID)))

	require.NoError(t, f.store.SetTalking(meetingID, "u4", true))
	require.NoError(t, f.store.PinTile(meetingID, "u2-video"))

	tiles := f.store.Tiles(meetingID)
	assert.Equal(t, []identifiers.SubscriptionKey{
		"u2-video",
		"u3-screen",
		"u4-video",
		"u1-video",
		"u3-video",
	}, tileKeys(tiles))
	assert.True(t, tiles[0].Pinned)
	assert.True(t, tiles[2].Talking)
	assert.Nil(t, tiles[0].Stream)

	// A late joiner goes to the end of its group.
	require.NoError(t, f.store.AddParticipant(ctx, meetingID, participant("u0", true, false)))
	require.NoError(t, f.store.SetTalking(meetingID, "u0", true))

	assert.Equal(t, []identifiers.SubscriptionKey{
		"u2-video",
		"u3-screen",
		"u4-video",
		"u0-video",
		"u1-video",
		"u3-video",
	}, tileKeys(f.store.Tiles(meetingID)))

	require.NoError(t, f.store.UnpinTile(meetingID))
	assert.Equal(t, identifiers.SubscriptionKey("u3-screen"), f.store.Tiles(meetingID)[0].Key)

	// Pinning a screen share that stops unpins it.
	require.NoError(t, f.store.PinTile(meetingID, "u3-screen"))
	require.NoError(t, f.store.UpdateParticipantStream(ctx, meetingID, "u3", identifiers.StreamTypeScreen, false))

	for _, tile := range f.store.Tiles(meetingID) {
		assert.False(t, tile.Pinned)
	}

	err := f.store.PinTile(meetingID, "u3-screen")
	assert.True(t, multierr.Is(err, store.ErrUnknownTile))

	err = f.store.PinTile(meetingID, "nobody-video")
	assert.True(t, multierr.Is(err, store.ErrUnknownTile))

	err = f.store.SetTalking(meetingID, "nobody", true)
	assert.True(t, multierr.Is(err, store.ErrUnknownUser))

	// Leaving unpins.
	require.NoError(t, f.store.PinTile(meetingID, "u1-video"))
	require.NoError(t, f.store.RemoveParticipant(ctx, meetingID, "u1"))

	for _, tile := range f.store.Tiles(meetingID) {
		assert.False(t, tile.Pinned)
		assert.NotEqual(t, identifiers.UserID("u1"), tile.UserID)
	}
}
