package devices

import (
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/clock"
	"github.com/peer-calls/meetings/client/codecs"
	"github.com/peer-calls/meetings/client/logger"
	"github.com/peer-calls/meetings/client/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

const silenceFrameDuration = 20 * time.Millisecond

// A 20ms opus frame that decoders play as silence.
var silenceFrame = []byte{0xf8, 0xff, 0xfe}

// SilenceTrack is an opus track that keeps writing silence until stopped,
// so the audio connection always has something to send before the
// microphone is ready, or while it is muted.
type SilenceTrack struct {
	*webrtc.TrackLocalStaticSample

	log    logger.Logger
	ticker clock.Ticker

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

var _ LocalTrack = &SilenceTrack{}

type SilenceTrackParams struct {
	Log      logger.Logger
	Clock    clock.Clock
	Registry *codecs.Registry
	StreamID string
}

func NewSilenceTrack(params SilenceTrackParams) (*SilenceTrack, error) {
	capability, err := params.Registry.Capability(webrtc.MimeTypeOpus, "")
	if err != nil {
		return nil, errors.Trace(err)
	}

	streamID := params.StreamID
	if streamID == "" {
		streamID = uuid.New()
	}

	track, err := webrtc.NewTrackLocalStaticSample(capability, "silence", streamID)
	if err != nil {
		return nil, errors.Annotate(err, "new silence track")
	}

	t := &SilenceTrack{
		TrackLocalStaticSample: track,
		log:                    params.Log.WithNamespaceAppended("silence_track"),
		ticker:                 params.Clock.NewTicker(silenceFrameDuration),
		done:                   make(chan struct{}),
	}

	t.wg.Add(1)

	go func() {
		defer t.wg.Done()

		t.start()
	}()

	return t, nil
}

func (t *SilenceTrack) start() {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C():
			err := t.WriteSample(media.Sample{
				Data:     silenceFrame,
				Duration: silenceFrameDuration,
			})
			if err != nil {
				t.log.Error("Write silence sample", errors.Trace(err), nil)
			}
		}
	}
}

func (t *SilenceTrack) Stop() {
	t.stopOnce.Do(func() {
		t.ticker.Stop()
		close(t.done)
		t.wg.Wait()
	})
}
