package client_test

import (
	"testing"

	"github.com/peer-calls/meetings/client"
	"github.com/peer-calls/meetings/client/test"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
)

func TestNewNetworkTypes(t *testing.T) {
	log := test.NewLogger()

	assert.Equal(t, []webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeTCP6,
	}, client.NewNetworkTypes(log, []string{"udp4", "sctp", "tcp6", "udp4"}))

	assert.Empty(t, client.NewNetworkTypes(log, nil))
}
