// Package wire defines the JSON text-frame protocol exchanged over the
// WebSocket connection: inbound frame parsing and the fixed set of
// server-to-client frame shapes.
package wire

import "encoding/json"

// Raw is an inbound frame decoded just enough to dispatch it: its declared
// type, and (for control frames) the few fields the router and handshake
// engine need. Unknown/extra fields are preserved in the original raw bytes,
// which is what actually gets forwarded on broadcast/unicast.
type Raw struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId,omitempty"`
	TargetID  string `json:"targetId,omitempty"`
	Signature string `json:"signature,omitempty"`
	Address   string `json:"address,omitempty"`
}

// ParseFrame parses raw bytes as JSON. On failure, the frame is treated as
// an opaque custom payload: Type is set to "custom" and ok is false so
// callers can tell "valid JSON with no type" apart from "not JSON at all"
// if they need to, though both are routed identically.
func ParseFrame(data []byte) (Raw, bool) {
	var r Raw
	if err := json.Unmarshal(data, &r); err != nil {
		return Raw{Type: "custom"}, false
	}
	if r.Type == "" {
		r.Type = "custom"
	}
	return r, true
}

func marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// None of the frame shapes below can fail to marshal (no cyclic
		// structures, no channels/funcs); a failure here would be a bug in
		// this package, not a runtime condition callers can recover from.
		panic("wire: unmarshalable frame: " + err.Error())
	}
	return data
}

// AuthChallenge builds the auth-challenge frame sent immediately after
// upgrade when handshake authentication is required.
func AuthChallenge(token, message string, expiryMs int64) []byte {
	return marshal(struct {
		Type    string `json:"type"`
		Method  string `json:"method"`
		Token   string `json:"token"`
		Message string `json:"message"`
		Expiry  int64  `json:"expiry"`
	}{"auth-challenge", "ethereum-handshake", token, message, expiryMs})
}

// AuthSuccess builds the auth-success frame sent once a handshake verifies.
func AuthSuccess(address, clientID string) []byte {
	return marshal(struct {
		Type     string `json:"type"`
		Address  string `json:"address"`
		ClientID string `json:"clientId"`
	}{"auth-success", address, clientID})
}

// AuthFailed builds the auth-failed frame sent just before the WS close
// frame on handshake failure, so clients can recover the reason even if the
// close frame itself is truncated in transit.
func AuthFailed(reason string) []byte {
	return marshal(struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}{"auth-failed", reason})
}

// Error builds the generic {"type":"error","error":"..."} frame used for
// policy and protocol errors that leave the connection open.
func Error(message string) []byte {
	return marshal(struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}{"error", message})
}
