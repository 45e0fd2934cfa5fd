package sfu

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"
)

// ICEServerInfo is the wire shape sent to clients so they can configure
// their RTCPeerConnection's iceServers, matching the teacher's sfu/turn.go
// ICEServerInfo.
type ICEServerInfo struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type TURNConfig struct {
	Host   string
	Port   int
	Secret string
	TTL    time.Duration
}

// GenerateTURNCredentials mints ephemeral TURN REST API (HMAC-SHA1)
// credentials, compatible with coturn's use-auth-secret scheme — kept
// verbatim from the teacher's sfu/turn.go.
func GenerateTURNCredentials(secret, userID string, ttl time.Duration) (username, credential string) {
	expiry := time.Now().Add(ttl).Unix()
	username = fmt.Sprintf("%d:%s", expiry, userID)

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	credential = base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return
}

// BuildICEServers produces the ICE server list sent to clients joining
// voice: a STUN entry plus a TURN entry with per-user ephemeral credentials
// when TURN is configured, nil otherwise.
func BuildICEServers(cfg TURNConfig, userID string) []ICEServerInfo {
	if cfg.Host == "" {
		return nil
	}

	stunURL := fmt.Sprintf("stun:%s:%d", cfg.Host, cfg.Port)
	turnURL := fmt.Sprintf("turn:%s:%d", cfg.Host, cfg.Port)

	username, credential := GenerateTURNCredentials(cfg.Secret, userID, cfg.TTL)

	return []ICEServerInfo{
		{URLs: []string{stunURL}},
		{URLs: []string{turnURL}, Username: username, Credential: credential},
	}
}
