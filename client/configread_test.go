package client_test

import (
	"os"
	"strings"
	"testing"

	"github.com/peer-calls/meetings/client"
	"github.com/peer-calls/meetings/client/devices"
	"github.com/peer-calls/meetings/client/peer"
	"github.com/peer-calls/meetings/client/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig(t *testing.T) {
	defer test.UnsetEnvPrefix(client.EnvPrefix)
	test.UnsetEnvPrefix(client.EnvPrefix)

	c, err := client.ReadConfig([]string{})
	assert.Nil(t, err, "error reading config")
	assert.Equal(t, 2, len(c.ICEServers))
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, c.ICEServers[0].URLs)
	assert.Equal(t, []string{"stun:global.stun.twilio.com:3478?transport=udp"}, c.ICEServers[1].URLs)
	assert.Equal(t, "max-bundle", c.BundlePolicy)
	assert.Equal(t, peer.CorrelationMid, c.Inbound.Correlation)
}

func TestReadConfigFiles(t *testing.T) {
	var c client.Config
	err := client.ReadConfigFiles([]string{"config_example.yml"}, &c)
	assert.Nil(t, err, "Error should be nil")
	assert.Equal(t, "https://meetings.example.com/api", c.BackendURL)
	assert.Equal(t, "secret-token", c.AuthToken)
	assert.Equal(t, "balanced", c.BundlePolicy)

	require.Equal(t, 1, len(c.ICEServers))
	ice := c.ICEServers[0]
	assert.Equal(t, []string{"turn:turn.example.com:3478"}, ice.URLs)
	assert.Equal(t, client.AuthTypeSecret, ice.AuthType)
	assert.Equal(t, "test_user", ice.AuthSecret.Username)
	assert.Equal(t, "test_secret", ice.AuthSecret.Secret)

	assert.Equal(t, []string{"udp4"}, c.Network.Protocols)
	assert.Equal(t, []string{"eth0"}, c.Network.Interfaces)
	assert.Equal(t, uint16(9000), c.Network.UDP.PortMin)
	assert.Equal(t, uint16(9010), c.Network.UDP.PortMax)
	assert.Equal(t, peer.CorrelationStreamID, c.Inbound.Correlation)

	assert.Equal(t, []devices.Config{{
		ID:       "cam0",
		Label:    "Test Camera",
		Kind:     devices.KindVideoInput,
		URL:      "rtp://127.0.0.1:50000?localrtcpport=50002",
		MimeType: "video/VP8",
	}, {
		ID:       "mic0",
		Label:    "Test Microphone",
		Kind:     devices.KindAudioInput,
		URL:      "rtp://127.0.0.1:50010",
		MimeType: "audio/opus",
	}}, c.Devices)

	assert.Equal(t, "127.0.0.1:9090", c.Metrics.BindAddr)
	assert.Equal(t, "metrics-token", c.Metrics.AccessToken)
}

func TestReadConfigFiles_Error(t *testing.T) {
	var c client.Config
	err := client.ReadConfigFiles([]string{"config_missing.yml"}, &c)
	require.NotNil(t, err, "error should be defined")
	assert.Regexp(t, "no such file", err.Error())
}

func TestReadYAML_error(t *testing.T) {
	yaml := "gfakjhglakjhlakdhgl"
	reader := strings.NewReader(yaml)
	var c client.Config
	err := client.ReadConfigYAML(reader, &c)
	require.NotNil(t, err, "err should be defined")
	assert.Regexp(t, "decode yaml", err.Error())
}

func TestReadFromEnv(t *testing.T) {
	prefix := "MEETINGSTEST_"
	defer test.UnsetEnvPrefix(prefix)
	os.Setenv(prefix+"BACKEND_URL", "http://localhost:3000")
	os.Setenv(prefix+"AUTH_TOKEN", "token")
	os.Setenv(prefix+"BUNDLE_POLICY", "max-compat")
	os.Setenv(prefix+"ICE_SERVER_URLS", "stun:stun.l.google.com:19302,stuns:stun.l.google.com:19302")
	os.Setenv(prefix+"ICE_SERVER_AUTH_TYPE", "secret")
	os.Setenv(prefix+"ICE_SERVER_USERNAME", "test_user")
	os.Setenv(prefix+"ICE_SERVER_SECRET", "test_secret")
	os.Setenv(prefix+"NETWORK_PROTOCOLS", "tcp6,udp4")
	os.Setenv(prefix+"NETWORK_INTERFACES", "a,b")
	os.Setenv(prefix+"NETWORK_UDP_PORT_MIN", "8000")
	os.Setenv(prefix+"NETWORK_UDP_PORT_MAX", "8005")
	os.Setenv(prefix+"INBOUND_CORRELATION", "stream_id")
	os.Setenv(prefix+"METRICS_BIND_ADDR", ":9090")
	os.Setenv(prefix+"METRICS_ACCESS_TOKEN", "mytoken")

	var c client.Config
	client.InitConfig(&c)
	client.ReadConfigFromEnv(prefix, &c)

	assert.Equal(t, "http://localhost:3000", c.BackendURL)
	assert.Equal(t, "token", c.AuthToken)
	assert.Equal(t, "max-compat", c.BundlePolicy)

	require.Equal(t, 1, len(c.ICEServers))
	ice := c.ICEServers[0]
	assert.Equal(t, []string{"stun:stun.l.google.com:19302", "stuns:stun.l.google.com:19302"}, ice.URLs)
	assert.Equal(t, client.AuthTypeSecret, ice.AuthType)
	assert.Equal(t, "test_user", ice.AuthSecret.Username)
	assert.Equal(t, "test_secret", ice.AuthSecret.Secret)

	assert.Equal(t, []string{"tcp6", "udp4"}, c.Network.Protocols)
	assert.Equal(t, []string{"a", "b"}, c.Network.Interfaces)
	assert.Equal(t, uint16(8000), c.Network.UDP.PortMin)
	assert.Equal(t, uint16(8005), c.Network.UDP.PortMax)
	assert.Equal(t, peer.CorrelationStreamID, c.Inbound.Correlation)
	assert.Equal(t, ":9090", c.Metrics.BindAddr)
	assert.Equal(t, "mytoken", c.Metrics.AccessToken)
}

func TestReadFromEnv_EmptyICEServers(t *testing.T) {
	prefix := "MEETINGSTEST_"
	defer test.UnsetEnvPrefix(prefix)
	os.Setenv(prefix+"ICE_SERVER_URLS", "")
	os.Setenv(prefix+"INBOUND_CORRELATION", "unknown")

	var c client.Config
	client.InitConfig(&c)
	client.ReadConfigFromEnv(prefix, &c)

	assert.Empty(t, c.ICEServers)
	assert.Equal(t, peer.CorrelationMid, c.Inbound.Correlation)
}
