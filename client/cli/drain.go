package cli

import (
	"sync"

	"github.com/peer-calls/meetings/client/logger"
	"github.com/peer-calls/meetings/client/peer"
)

// drainer reads every remote track until it ends. Tracks that are not read
// would fill up their buffers and stall the interceptors.
type drainer struct {
	log logger.Logger

	mu   sync.Mutex
	seen map[peer.RemoteTrack]struct{}
	wg   sync.WaitGroup
}

func newDrainer(log logger.Logger) *drainer {
	return &drainer{
		log:  log.WithNamespaceAppended("drainer"),
		seen: map[peer.RemoteTrack]struct{}{},
	}
}

// Add starts reading the stream's track unless it is already being read.
func (d *drainer) Add(stream peer.RemoteStream) {
	if stream.Track == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[stream.Track]; ok {
		return
	}

	d.seen[stream.Track] = struct{}{}

	kind := stream.Track.Kind().String()
	prometheusRemoteTracksTotal.WithLabelValues(kind).Inc()

	log := d.log.WithCtx(logger.Ctx{
		"user_id":     stream.UserID,
		"stream_type": stream.Type,
		"track_id":    stream.Track.ID(),
	})

	log.Info("Reading remote track", nil)

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		packets := prometheusRemotePacketsTotal.WithLabelValues(kind)

		for {
			if _, _, err := stream.Track.ReadRTP(); err != nil {
				log.Info("Remote track ended", logger.Ctx{
					"reason": err.Error(),
				})

				return
			}

			packets.Inc()
		}
	}()
}

// Wait blocks until all tracks have ended.
func (d *drainer) Wait() {
	d.wg.Wait()
}
