package peer

import (
	"io"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/devices"
	"github.com/peer-calls/meetings/client/logger"
	"github.com/peer-calls/meetings/client/multierr"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// PeerConnection is the subset of *webrtc.PeerConnection used by the media
// connections.
type PeerConnection interface {
	SignalingState() webrtc.SignalingState
	LocalDescription() *webrtc.SessionDescription

	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error

	AddTrack(track webrtc.TrackLocal) (Sender, error)
	AddTransceiverFromKind(kind webrtc.RTPCodecType, init ...webrtc.RTPTransceiverInit) error

	OnNegotiationNeeded(fn func())
	OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState))
	// OnTrack is called with the media line id of the transceiver the track
	// arrived on.
	OnTrack(fn func(track RemoteTrack, mid string))

	// GatheringComplete must be called before SetLocalDescription. The
	// returned channel is closed when ICE gathering is complete.
	GatheringComplete() <-chan struct{}

	Close() error
}

// Sender is implemented by *webrtc.RTPSender.
type Sender interface {
	Track() webrtc.TrackLocal
	ReplaceTrack(track webrtc.TrackLocal) error
}

// RemoteTrack is implemented by *webrtc.TrackRemote.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Factory creates peer connections with the shared ICE and codec
// configuration.
type Factory interface {
	NewPeerConnection() (PeerConnection, error)
}

type pionPeerConnection struct {
	*webrtc.PeerConnection

	log logger.Logger
	wg  sync.WaitGroup
}

var _ PeerConnection = &pionPeerConnection{}

// Wrap adapts a pion peer connection.
func Wrap(log logger.Logger, pc *webrtc.PeerConnection) PeerConnection {
	return &pionPeerConnection{
		PeerConnection: pc,
		log:            log.WithNamespaceAppended("peer_connection"),
	}
}

func (p *pionPeerConnection) AddTrack(track webrtc.TrackLocal) (Sender, error) {
	sender, err := p.PeerConnection.AddTrack(track)
	if err != nil {
		return nil, errors.Trace(err)
	}

	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		p.readRTCP(sender)
	}()

	return sender, nil
}

// readRTCP makes interceptors do their job and forwards picture loss
// indications to the source of the current track.
func (p *pionPeerConnection) readRTCP(sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			if !multierr.Is(err, io.EOF) && !multierr.Is(err, io.ErrClosedPipe) {
				p.log.Error("Read RTCP", errors.Trace(err), nil)
			}

			return
		}

		for _, pkt := range packets {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				requester, ok := sender.Track().(devices.KeyFrameRequester)
				if !ok {
					continue
				}

				if err := requester.RequestKeyFrame(); err != nil {
					p.log.Error("Request key frame", errors.Trace(err), nil)
				}
			}
		}
	}
}

func (p *pionPeerConnection) AddTransceiverFromKind(
	kind webrtc.RTPCodecType,
	init ...webrtc.RTPTransceiverInit,
) error {
	_, err := p.PeerConnection.AddTransceiverFromKind(kind, init...)

	return errors.Trace(err)
}

func (p *pionPeerConnection) OnTrack(fn func(track RemoteTrack, mid string)) {
	p.PeerConnection.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		var mid string

		for _, tr := range p.PeerConnection.GetTransceivers() {
			if tr.Receiver() == receiver {
				mid = tr.Mid()

				break
			}
		}

		fn(track, mid)
	})
}

func (p *pionPeerConnection) GatheringComplete() <-chan struct{} {
	return webrtc.GatheringCompletePromise(p.PeerConnection)
}

func (p *pionPeerConnection) Close() error {
	err := p.PeerConnection.Close()

	p.wg.Wait()

	return errors.Trace(err)
}
