package test

import (
	"fmt"
	"io"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/peer"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// PeerConnection is a fake peer.PeerConnection that follows the signaling
// state transitions of a real one, without any networking. Negotiation
// needed fires asynchronously after AddTrack, like it does in pion.
type PeerConnection struct {
	mu sync.Mutex

	signalingState   webrtc.SignalingState
	localDescription *webrtc.SessionDescription

	offers       []webrtc.OfferOptions
	answers      int
	remote       []webrtc.SessionDescription
	senders      []*Sender
	transceivers []webrtc.RTPCodecType
	closed       int

	onNegotiationNeeded func()
	onICEState          func(webrtc.ICEConnectionState)
	onTrack             func(peer.RemoteTrack, string)

	wg sync.WaitGroup
}

var _ peer.PeerConnection = &PeerConnection{}

func NewPeerConnection() *PeerConnection {
	return &PeerConnection{
		signalingState: webrtc.SignalingStateStable,
	}
}

func (p *PeerConnection) SignalingState() webrtc.SignalingState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.signalingState
}

// SetSignalingState forces the signaling state.
func (p *PeerConnection) SetSignalingState(state webrtc.SignalingState) {
	p.mu.Lock()
	p.signalingState = state
	p.mu.Unlock()
}

func (p *PeerConnection) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.localDescription == nil {
		return nil
	}

	desc := *p.localDescription

	return &desc
}

func (p *PeerConnection) CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed > 0 {
		return webrtc.SessionDescription{}, errors.New("closed")
	}

	var opts webrtc.OfferOptions
	if options != nil {
		opts = *options
	}

	p.offers = append(p.offers, opts)

	return webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  fmt.Sprintf("offer-%d", len(p.offers)),
	}, nil
}

// Offers returns the options of every created offer.
func (p *PeerConnection) Offers() []webrtc.OfferOptions {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]webrtc.OfferOptions(nil), p.offers...)
}

func (p *PeerConnection) CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.signalingState != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, errors.Errorf("create answer in state %s", p.signalingState)
	}

	p.answers++

	return webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  fmt.Sprintf("answer-%d", p.answers),
	}, nil
}

func (p *PeerConnection) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case desc.Type == webrtc.SDPTypeOffer && p.signalingState == webrtc.SignalingStateStable:
		p.signalingState = webrtc.SignalingStateHaveLocalOffer
	case desc.Type == webrtc.SDPTypeAnswer && p.signalingState == webrtc.SignalingStateHaveRemoteOffer:
		p.signalingState = webrtc.SignalingStateStable
	default:
		return errors.Errorf("set local %s in state %s", desc.Type, p.signalingState)
	}

	p.localDescription = &desc

	return nil
}

func (p *PeerConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case desc.Type == webrtc.SDPTypeOffer && p.signalingState == webrtc.SignalingStateStable:
		p.signalingState = webrtc.SignalingStateHaveRemoteOffer
	case desc.Type == webrtc.SDPTypeAnswer && p.signalingState == webrtc.SignalingStateHaveLocalOffer:
		p.signalingState = webrtc.SignalingStateStable
	default:
		return errors.Errorf("set remote %s in state %s", desc.Type, p.signalingState)
	}

	p.remote = append(p.remote, desc)

	return nil
}

// RemoteDescriptions returns all applied remote descriptions.
func (p *PeerConnection) RemoteDescriptions() []webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]webrtc.SessionDescription(nil), p.remote...)
}

func (p *PeerConnection) AddTrack(track webrtc.TrackLocal) (peer.Sender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed > 0 {
		return nil, errors.New("closed")
	}

	sender := &Sender{}
	sender.track = track

	p.senders = append(p.senders, sender)

	p.negotiationNeeded()

	return sender, nil
}

// Senders returns all senders created by AddTrack.
func (p *PeerConnection) Senders() []*Sender {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]*Sender(nil), p.senders...)
}

func (p *PeerConnection) AddTransceiverFromKind(kind webrtc.RTPCodecType, init ...webrtc.RTPTransceiverInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.transceivers = append(p.transceivers, kind)

	return nil
}

func (p *PeerConnection) Transceivers() []webrtc.RTPCodecType {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]webrtc.RTPCodecType(nil), p.transceivers...)
}

func (p *PeerConnection) OnNegotiationNeeded(fn func()) {
	p.mu.Lock()
	p.onNegotiationNeeded = fn
	p.mu.Unlock()
}

// negotiationNeeded must be called with mu held.
func (p *PeerConnection) negotiationNeeded() {
	fn := p.onNegotiationNeeded
	if fn == nil || p.closed > 0 {
		return
	}

	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		fn()
	}()
}

// TriggerNegotiationNeeded fires negotiation needed asynchronously.
func (p *PeerConnection) TriggerNegotiationNeeded() {
	p.mu.Lock()
	p.negotiationNeeded()
	p.mu.Unlock()
}

func (p *PeerConnection) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	p.mu.Lock()
	p.onICEState = fn
	p.mu.Unlock()
}

// SetICEConnectionState calls the ICE connection state handler
// synchronously.
func (p *PeerConnection) SetICEConnectionState(state webrtc.ICEConnectionState) {
	p.mu.Lock()
	fn := p.onICEState
	p.mu.Unlock()

	if fn != nil {
		fn(state)
	}
}

func (p *PeerConnection) OnTrack(fn func(peer.RemoteTrack, string)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

// EmitTrack calls the track handler synchronously.
func (p *PeerConnection) EmitTrack(track peer.RemoteTrack, mid string) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()

	if fn != nil {
		fn(track, mid)
	}
}

func (p *PeerConnection) GatheringComplete() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)

	return ch
}

func (p *PeerConnection) Close() error {
	p.mu.Lock()
	p.closed++
	p.signalingState = webrtc.SignalingStateClosed
	p.mu.Unlock()

	p.wg.Wait()

	return nil
}

// Closed returns how many times Close was called.
func (p *PeerConnection) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

// Sender is a fake peer.Sender.
type Sender struct {
	mu           sync.Mutex
	track        webrtc.TrackLocal
	replaceCalls int
	replaceErr   error
}

var _ peer.Sender = &Sender{}

func (s *Sender) Track() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.track
}

func (s *Sender) ReplaceTrack(track webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.replaceCalls++

	if s.replaceErr != nil {
		return s.replaceErr
	}

	s.track = track

	return nil
}

// ReplaceCalls returns the number of ReplaceTrack calls.
func (s *Sender) ReplaceCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replaceCalls
}

// SetReplaceError makes the following ReplaceTrack calls fail.
func (s *Sender) SetReplaceError(err error) {
	s.mu.Lock()
	s.replaceErr = err
	s.mu.Unlock()
}

// RemoteTrack is a fake peer.RemoteTrack. ReadRTP blocks until Close.
type RemoteTrack struct {
	id       string
	streamID string
	kind     webrtc.RTPCodecType

	closeOnce sync.Once
	closed    chan struct{}
}

var _ peer.RemoteTrack = &RemoteTrack{}

func NewRemoteTrack(id, streamID string, kind webrtc.RTPCodecType) *RemoteTrack {
	return &RemoteTrack{
		id:       id,
		streamID: streamID,
		kind:     kind,
		closed:   make(chan struct{}),
	}
}

func (r *RemoteTrack) ID() string                { return r.id }
func (r *RemoteTrack) StreamID() string          { return r.streamID }
func (r *RemoteTrack) Kind() webrtc.RTPCodecType { return r.kind }

func (r *RemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	<-r.closed

	return nil, nil, io.EOF
}

func (r *RemoteTrack) Close() {
	r.closeOnce.Do(func() {
		close(r.closed)
	})
}

// PeerConnectionFactory returns fake peer connections and remembers them.
type PeerConnectionFactory struct {
	mu  sync.Mutex
	pcs []*PeerConnection
	err error
}

var _ peer.Factory = &PeerConnectionFactory{}

func NewPeerConnectionFactory() *PeerConnectionFactory {
	return &PeerConnectionFactory{}
}

func (f *PeerConnectionFactory) NewPeerConnection() (peer.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	pc := NewPeerConnection()
	f.pcs = append(f.pcs, pc)

	return pc, nil
}

// SetError makes the following NewPeerConnection calls fail.
func (f *PeerConnectionFactory) SetError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// PeerConnections returns all created peer connections in order.
func (f *PeerConnectionFactory) PeerConnections() []*PeerConnection {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*PeerConnection(nil), f.pcs...)
}
