package client

import (
	"github.com/peer-calls/meetings/client/logger"
	"github.com/pion/webrtc/v3"
)

// NewNetworkTypes parses the configured ICE protocols, for example udp4 or
// tcp6. Unknown and repeated protocols are skipped.
func NewNetworkTypes(log logger.Logger, protocols []string) []webrtc.NetworkType {
	log = log.WithNamespaceAppended("network_types")

	ret := make([]webrtc.NetworkType, 0, len(protocols))
	seen := make(map[webrtc.NetworkType]struct{}, len(protocols))

	for _, protocol := range protocols {
		networkType, err := webrtc.NewNetworkType(protocol)
		if err != nil {
			log.Warn("Skipping unknown network type", logger.Ctx{
				"protocol": protocol,
			})

			continue
		}

		if _, ok := seen[networkType]; ok {
			continue
		}

		seen[networkType] = struct{}{}

		ret = append(ret, networkType)
	}

	return ret
}
