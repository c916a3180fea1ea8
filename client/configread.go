package client

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/peer"
	"gopkg.in/yaml.v2"
)

const EnvPrefix = "MEETINGS_"

func ReadConfigFile(filename string, c *Config) (err error) {
	f, err := os.Open(filename)
	if err != nil {
		return errors.Annotatef(err, "read config file: %s", filename)
	}

	defer f.Close()

	err = ReadConfigYAML(f, c)

	return errors.Annotatef(err, "read yaml config: %s", filename)
}

func ReadConfigFiles(filenames []string, c *Config) (err error) {
	for _, filename := range filenames {
		err = ReadConfigFile(filename, c)
		if err != nil {
			return errors.Trace(err)
		}
	}

	return nil
}

func InitConfig(c *Config) {
	c.BundlePolicy = "max-bundle"
	c.Inbound.Correlation = peer.CorrelationMid
	c.ICEServers = []ICEServer{{
		URLs: []string{"stun:stun.l.google.com:19302"},
	}, {
		URLs: []string{"stun:global.stun.twilio.com:3478?transport=udp"},
	}}
}

func ReadConfig(filenames []string) (c Config, err error) {
	InitConfig(&c)
	err = ReadConfigFiles(filenames, &c)
	ReadConfigFromEnv(EnvPrefix, &c)

	return c, errors.Trace(err)
}

func ReadConfigYAML(reader io.Reader, c *Config) error {
	decoder := yaml.NewDecoder(reader)
	if err := decoder.Decode(c); err != nil {
		return errors.Annotatef(err, "decode yaml")
	}

	return nil
}

func ReadConfigFromEnv(prefix string, c *Config) {
	setEnvString(&c.BackendURL, prefix+"BACKEND_URL")
	setEnvString(&c.AuthToken, prefix+"AUTH_TOKEN")
	setEnvString(&c.BundlePolicy, prefix+"BUNDLE_POLICY")

	setEnvStringArray(&c.Network.Protocols, prefix+"NETWORK_PROTOCOLS")
	setEnvStringArray(&c.Network.Interfaces, prefix+"NETWORK_INTERFACES")
	setEnvUint16(&c.Network.UDP.PortMin, prefix+"NETWORK_UDP_PORT_MIN")
	setEnvUint16(&c.Network.UDP.PortMax, prefix+"NETWORK_UDP_PORT_MAX")

	setEnvCorrelation(&c.Inbound.Correlation, prefix+"INBOUND_CORRELATION")

	if value, ok := os.LookupEnv(prefix + "ICE_SERVER_URLS"); ok {
		// Do not use the default servers, even if value is empty.
		c.ICEServers = make([]ICEServer, 0, 1)

		var ice ICEServer

		setSlice(&ice.URLs, value)

		if len(ice.URLs) > 0 {
			setEnvAuthType(&ice.AuthType, prefix+"ICE_SERVER_AUTH_TYPE")
			setEnvString(&ice.AuthSecret.Secret, prefix+"ICE_SERVER_SECRET")
			setEnvString(&ice.AuthSecret.Username, prefix+"ICE_SERVER_USERNAME")
			c.ICEServers = append(c.ICEServers, ice)
		}
	}

	setEnvString(&c.Metrics.BindAddr, prefix+"METRICS_BIND_ADDR")
	setEnvString(&c.Metrics.AccessToken, prefix+"METRICS_ACCESS_TOKEN")
}

func setSlice(dest *[]string, value string) {
	for _, v := range strings.Split(value, ",") {
		if v != "" {
			*dest = append(*dest, v)
		}
	}
}

func setEnvString(dest *string, name string) {
	value := os.Getenv(name)
	if value != "" {
		*dest = value
	}
}

func setEnvUint16(dest *uint16, name string) {
	value, err := strconv.ParseUint(os.Getenv(name), 10, 16)
	if err == nil {
		*dest = uint16(value)
	}
}

func setEnvAuthType(authType *AuthType, name string) {
	value := os.Getenv(name)
	switch AuthType(value) {
	case AuthTypeSecret:
		*authType = AuthTypeSecret
	case AuthTypeNone:
		*authType = AuthTypeNone
	}
}

func setEnvCorrelation(correlation *peer.Correlation, name string) {
	value := os.Getenv(name)
	switch peer.Correlation(value) {
	case peer.CorrelationMid:
		*correlation = peer.CorrelationMid
	case peer.CorrelationStreamID:
		*correlation = peer.CorrelationStreamID
	}
}

func setEnvStringArray(values *[]string, name string) {
	value := os.Getenv(name)
	if value != "" {
		*values = strings.Split(value, ",")
	}
}
