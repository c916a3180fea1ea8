package client

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pion/webrtc/v3"
)

// GetICEServers converts the configured servers to pion ICE servers.
// Servers with the secret auth type get time limited TURN REST credentials.
func GetICEServers(servers []ICEServer, now time.Time) []webrtc.ICEServer {
	result := make([]webrtc.ICEServer, 0, len(servers))

	for _, server := range servers {
		result = append(result, getICEServer(server, now))
	}

	return result
}

func getICEServer(server ICEServer, now time.Time) webrtc.ICEServer {
	switch server.AuthType {
	case AuthTypeSecret:
		return getICEStaticAuthSecretCredentials(server, now)
	default:
		return webrtc.ICEServer{URLs: server.URLs}
	}
}

func getICEStaticAuthSecretCredentials(server ICEServer, now time.Time) webrtc.ICEServer {
	timestamp := now.UnixNano() / 1_000_000
	username := fmt.Sprintf("%d:%s", timestamp, server.AuthSecret.Username)
	h := hmac.New(sha1.New, []byte(server.AuthSecret.Secret))
	h.Write([]byte(username))
	credential := base64.StdEncoding.EncodeToString(h.Sum(nil))

	return webrtc.ICEServer{
		URLs:           server.URLs,
		Username:       username,
		Credential:     credential,
		CredentialType: webrtc.ICECredentialTypePassword,
	}
}
