package peer

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/logger"
	"github.com/pion/webrtc/v3"
)

// negotiator runs the offer side of a negotiation for outbound connections.
//
// A negotiation is only started from the stable signaling state. When
// negotiation is needed in any other state it is remembered and started once
// the remote answer brings the connection back to stable. An ICE failure
// starts a negotiation with an ICE restart. There is no limit on the number
// of restarts.
type negotiator struct {
	log       logger.Logger
	pc        PeerConnection
	kind      string
	sendOffer func(ctx context.Context, sdp string) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// negotiateMu serializes negotiations.
	negotiateMu sync.Mutex

	mu         sync.Mutex
	state      NegotiationState
	pending    bool
	iceRestart bool
}

type negotiatorParams struct {
	Log            logger.Logger
	PeerConnection PeerConnection
	// Kind is used as the metrics label.
	Kind      string
	SendOffer func(ctx context.Context, sdp string) error
}

func newNegotiator(params negotiatorParams) *negotiator {
	ctx, cancel := context.WithCancel(context.Background())

	n := &negotiator{
		log:       params.Log.WithNamespaceAppended("negotiator"),
		pc:        params.PeerConnection,
		kind:      params.Kind,
		sendOffer: params.SendOffer,
		ctx:       ctx,
		cancel:    cancel,
		state:     NegotiationStateIdle,
	}

	n.pc.OnNegotiationNeeded(n.handleNegotiationNeeded)
	n.pc.OnICEConnectionStateChange(n.handleICEConnectionStateChange)

	return n
}

func (n *negotiator) State() NegotiationState {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.state
}

func (n *negotiator) handleNegotiationNeeded() {
	n.start(false)
}

func (n *negotiator) handleICEConnectionStateChange(state webrtc.ICEConnectionState) {
	n.log.Info("ICE connection state changed", logger.Ctx{
		"ice_connection_state": state,
	})

	// Disconnected is often transient and is not retried.
	if state != webrtc.ICEConnectionStateFailed {
		return
	}

	prometheusICERestartsTotal.WithLabelValues(n.kind).Inc()

	n.start(true)
}

// start runs negotiate in a goroutine so pion callbacks are never blocked
// on a backend request.
func (n *negotiator) start(iceRestart bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == NegotiationStateClosed {
		return
	}

	n.wg.Add(1)

	go func() {
		defer n.wg.Done()

		n.negotiate(iceRestart)
	}()
}

func (n *negotiator) negotiate(iceRestart bool) {
	n.negotiateMu.Lock()
	defer n.negotiateMu.Unlock()

	signalingState := n.pc.SignalingState()

	n.mu.Lock()

	if n.state == NegotiationStateClosed {
		n.mu.Unlock()

		return
	}

	if signalingState != webrtc.SignalingStateStable {
		n.pending = true
		n.iceRestart = n.iceRestart || iceRestart
		n.mu.Unlock()

		n.log.Info("Negotiation needed, but signaling state is not stable", logger.Ctx{
			"signaling_state": signalingState,
		})

		return
	}

	n.state = NegotiationStateNegotiating
	n.mu.Unlock()

	if err := n.createOffer(iceRestart); err != nil {
		prometheusNegotiationErrorsTotal.WithLabelValues(n.kind).Inc()

		n.log.Error("Negotiate", errors.Trace(err), logger.Ctx{
			"ice_restart": iceRestart,
		})

		return
	}

	prometheusNegotiationsTotal.WithLabelValues(n.kind).Inc()
}

func (n *negotiator) createOffer(iceRestart bool) error {
	offer, err := n.pc.CreateOffer(&webrtc.OfferOptions{
		ICERestart: iceRestart,
	})
	if err != nil {
		return errors.Annotate(err, "create offer")
	}

	gatheringComplete := n.pc.GatheringComplete()

	if err := n.pc.SetLocalDescription(offer); err != nil {
		return errors.Annotate(err, "set local description")
	}

	select {
	case <-gatheringComplete:
	case <-n.ctx.Done():
		return errors.Annotate(n.ctx.Err(), "wait for ICE gathering")
	}

	localDescription := n.pc.LocalDescription()
	if localDescription == nil {
		return errors.Errorf("no local description")
	}

	n.log.Info("Send offer", logger.Ctx{
		"ice_restart": iceRestart,
	})

	return errors.Annotate(n.sendOffer(n.ctx, localDescription.SDP), "send offer")
}

// HandleRemoteAnswer applies the answer, unless the connection already has
// a remote offer. A negotiation needed while the previous one was in progress
// is started afterwards.
func (n *negotiator) HandleRemoteAnswer(sdp string) error {
	if n.State() == NegotiationStateClosed {
		return errors.Trace(ErrClosed)
	}

	if signalingState := n.pc.SignalingState(); signalingState == webrtc.SignalingStateHaveRemoteOffer {
		n.log.Warn("Ignoring answer", logger.Ctx{
			"signaling_state": signalingState,
		})

		return nil
	}

	err := n.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
	if err != nil {
		prometheusNegotiationErrorsTotal.WithLabelValues(n.kind).Inc()

		return errors.Annotate(err, "set remote description")
	}

	n.mu.Lock()

	if n.state == NegotiationStateClosed {
		n.mu.Unlock()

		return nil
	}

	n.state = NegotiationStateStable

	pending, iceRestart := n.pending, n.iceRestart
	n.pending = false
	n.iceRestart = false

	n.mu.Unlock()

	if pending {
		n.start(iceRestart)
	}

	return nil
}

// Close stops pending negotiations. It does not close the peer connection.
func (n *negotiator) Close() {
	n.mu.Lock()
	n.state = NegotiationStateClosed
	n.mu.Unlock()

	n.cancel()
	n.wg.Wait()
}
