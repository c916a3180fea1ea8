package client

import (
	"github.com/peer-calls/meetings/client/devices"
	"github.com/peer-calls/meetings/client/peer"
)

type AuthType string

const (
	AuthTypeSecret AuthType = "secret"
	AuthTypeNone   AuthType = ""
)

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	AuthType   AuthType `yaml:"auth_type"`
	AuthSecret struct {
		Username string `yaml:"username"`
		Secret   string `yaml:"secret"`
	} `yaml:"auth_secret"`
}

type NetworkConfig struct {
	Protocols  []string `yaml:"protocols"`
	Interfaces []string `yaml:"interfaces"`
	UDP        struct {
		PortMin uint16 `yaml:"port_min"`
		PortMax uint16 `yaml:"port_max"`
	} `yaml:"udp"`
}

type InboundConfig struct {
	Correlation peer.Correlation `yaml:"correlation"`
}

type MetricsConfig struct {
	BindAddr    string `yaml:"bind_addr"`
	AccessToken string `yaml:"access_token"`
}

type Config struct {
	BackendURL   string           `yaml:"backend_url"`
	AuthToken    string           `yaml:"auth_token"`
	ICEServers   []ICEServer      `yaml:"ice_servers"`
	BundlePolicy string           `yaml:"bundle_policy"`
	Network      NetworkConfig    `yaml:"network"`
	Inbound      InboundConfig    `yaml:"inbound"`
	Devices      []devices.Config `yaml:"devices"`
	Metrics      MetricsConfig    `yaml:"metrics"`
}
