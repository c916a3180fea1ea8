package client

import (
	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/codecs"
	"github.com/peer-calls/meetings/client/logger"
	"github.com/peer-calls/meetings/client/peer"
	"github.com/peer-calls/meetings/client/pionlogger"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// PeerConnectionFactory creates pion peer connections that share one
// webrtc.API.
type PeerConnectionFactory struct {
	log       logger.Logger
	config    *PeerConnectionConfig
	webrtcAPI *webrtc.API
}

var _ peer.Factory = &PeerConnectionFactory{}

type PeerConnectionFactoryParams struct {
	Log      logger.Logger
	Config   *PeerConnectionConfig
	Network  NetworkConfig
	Registry *codecs.Registry
}

func NewPeerConnectionFactory(params PeerConnectionFactoryParams) (*PeerConnectionFactory, error) {
	log := params.Log.WithNamespaceAppended("peer_connection_factory")

	settingEngine := webrtc.SettingEngine{
		LoggerFactory: pionlogger.NewFactory(log),
	}

	if networkTypes := NewNetworkTypes(log, params.Network.Protocols); len(networkTypes) > 0 {
		settingEngine.SetNetworkTypes(networkTypes)
	}

	if udp := params.Network.UDP; udp.PortMin > 0 && udp.PortMax > 0 {
		logCtx := logger.Ctx{
			"port_min": udp.PortMin,
			"port_max": udp.PortMax,
		}

		if err := settingEngine.SetEphemeralUDPPortRange(udp.PortMin, udp.PortMax); err != nil {
			return nil, errors.Annotatef(err, "set ephemeral UDP port range")
		}

		log.Info("Set ephemeral UDP port range", logCtx)
	}

	if len(params.Network.Interfaces) > 0 {
		allowedInterfaces := map[string]struct{}{}
		for _, iface := range params.Network.Interfaces {
			allowedInterfaces[iface] = struct{}{}
		}

		settingEngine.SetInterfaceFilter(func(iface string) bool {
			_, ok := allowedInterfaces[iface]

			return ok
		})
	}

	var mediaEngine webrtc.MediaEngine

	if err := params.Registry.RegisterMediaEngine(&mediaEngine); err != nil {
		return nil, errors.Trace(err)
	}

	var interceptorRegistry interceptor.Registry

	if err := webrtc.RegisterDefaultInterceptors(&mediaEngine, &interceptorRegistry); err != nil {
		return nil, errors.Annotate(err, "register default interceptors")
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(&mediaEngine),
		webrtc.WithSettingEngine(settingEngine),
		webrtc.WithInterceptorRegistry(&interceptorRegistry),
	)

	return &PeerConnectionFactory{
		log:       log,
		config:    params.Config,
		webrtcAPI: api,
	}, nil
}

func (f *PeerConnectionFactory) NewPeerConnection() (peer.PeerConnection, error) {
	pc, err := f.webrtcAPI.NewPeerConnection(f.config.WebRTCConfiguration())
	if err != nil {
		return nil, errors.Annotate(err, "new peer connection")
	}

	return peer.Wrap(f.log, pc), nil
}
