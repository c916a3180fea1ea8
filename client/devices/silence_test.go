package devices_test

import (
	"testing"
	"time"

	"github.com/peer-calls/meetings/client/clock"
	"github.com/peer-calls/meetings/client/codecs"
	"github.com/peer-calls/meetings/client/devices"
	"github.com/peer-calls/meetings/client/test"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSilenceTrack(t *testing.T) {
	defer goleak.VerifyNone(t)

	mock := clock.NewMock()

	track, err := devices.NewSilenceTrack(devices.SilenceTrackParams{
		Log:      test.NewLogger(),
		Clock:    mock,
		Registry: codecs.NewRegistryDefault(),
		StreamID: "stream1",
	})
	require.NoError(t, err)

	assert.Equal(t, webrtc.RTPCodecTypeAudio, track.Kind())
	assert.Equal(t, "stream1", track.StreamID())
	assert.Equal(t, 1, mock.Tickers())

	// Unbound tracks discard samples.
	mock.Add(100 * time.Millisecond)

	track.Stop()
	track.Stop()

	assert.Equal(t, 0, mock.Tickers())
}
