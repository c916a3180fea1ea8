package client

import (
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/clock"
	"github.com/pion/webrtc/v3"
)

var ErrInvalidBundlePolicy = errors.New("invalid bundle policy")

// PeerConnectionConfig holds the ICE servers and the bundle policy shared by
// all peer connections. Servers added after a connection was built are only
// used by later connections.
type PeerConnectionConfig struct {
	mu           sync.Mutex
	iceServers   []webrtc.ICEServer
	bundlePolicy webrtc.BundlePolicy
}

// NewPeerConnectionConfig builds the ICE servers from cfg. TURN credentials
// are derived from clk's current time.
func NewPeerConnectionConfig(cfg Config, clk clock.Clock) (*PeerConnectionConfig, error) {
	bundlePolicy, err := parseBundlePolicy(cfg.BundlePolicy)
	if err != nil {
		return nil, errors.Trace(err)
	}

	return &PeerConnectionConfig{
		iceServers:   GetICEServers(cfg.ICEServers, clk.Now()),
		bundlePolicy: bundlePolicy,
	}, nil
}

func parseBundlePolicy(value string) (webrtc.BundlePolicy, error) {
	if value == "" {
		return webrtc.BundlePolicyMaxBundle, nil
	}

	for _, policy := range []webrtc.BundlePolicy{
		webrtc.BundlePolicyBalanced,
		webrtc.BundlePolicyMaxCompat,
		webrtc.BundlePolicyMaxBundle,
	} {
		if policy.String() == value {
			return policy, nil
		}
	}

	return webrtc.BundlePolicy(0), errors.Annotatef(ErrInvalidBundlePolicy, "%q", value)
}

func (p *PeerConnectionConfig) AddICEServers(servers ...webrtc.ICEServer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.iceServers = append(p.iceServers, servers...)
}

func (p *PeerConnectionConfig) ICEServers() []webrtc.ICEServer {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]webrtc.ICEServer(nil), p.iceServers...)
}

func (p *PeerConnectionConfig) BundlePolicy() webrtc.BundlePolicy {
	return p.bundlePolicy
}

func (p *PeerConnectionConfig) WebRTCConfiguration() webrtc.Configuration {
	// nolint:exhaustivestruct
	return webrtc.Configuration{
		ICEServers:   p.ICEServers(),
		BundlePolicy: p.bundlePolicy,
	}
}
