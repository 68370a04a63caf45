// Package config loads and validates the immutable configuration snapshot
// consumed by every other signalhub component. The admin UI and its
// read/write HTTP API that produce the on-disk document are out of scope
// here; this package only parses what they write.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// FilterType is the kind of an IP filter list entry.
type FilterType string

const (
	FilterWhitelist FilterType = "whitelist"
	FilterBlacklist FilterType = "blacklist"
)

// AuthMethod selects how a freshly upgraded connection is authenticated.
type AuthMethod string

const (
	AuthNone              AuthMethod = "none"
	AuthToken             AuthMethod = "token"
	AuthEthereumHandshake AuthMethod = "ethereum-handshake"
)

// RoutingMode decides how the router fans out a frame within a room.
type RoutingMode string

const (
	RoutingBroadcast RoutingMode = "broadcast"
	RoutingUnicast   RoutingMode = "unicast"
	RoutingMulticast RoutingMode = "multicast" // accepted, falls through to broadcast
)

// RateLimitScope is accepted in configuration but only "per-client" is
// currently enforced by internal/ratelimit. See DESIGN.md.
type RateLimitScope string

const (
	ScopeGlobal    RateLimitScope = "global"
	ScopePerClient RateLimitScope = "per-client"
	ScopePerRoom   RateLimitScope = "per-room"
	ScopePerIP     RateLimitScope = "per-ip"
)

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	WebSocketURL string `mapstructure:"wsPath"`
}

type RoomConfig struct {
	ID                  string      `mapstructure:"id"`
	RoutingMode         RoutingMode `mapstructure:"routingMode"`
	AllowedMessageTypes []string    `mapstructure:"allowedMessageTypes"`
	MaxMembers          int         `mapstructure:"maxMembers"`
}

type IPFilter struct {
	Pattern string     `mapstructure:"pattern"`
	Type    FilterType `mapstructure:"type"`
}

type ConnectionLimits struct {
	MaxConnectionsPerIP   int `mapstructure:"maxConnectionsPerIP"`
	MaxConnectionsPerRoom int `mapstructure:"maxConnectionsPerRoom"`
	MaxTotalConnections   int `mapstructure:"maxTotalConnections"`
	MaxConnectionsPerUser int `mapstructure:"maxConnectionsPerUser"` // unused, see DESIGN.md
}

type RateLimitRule struct {
	Enabled      bool           `mapstructure:"enabled"`
	MaxMessages  int            `mapstructure:"maxMessages"`
	WindowMs     int64          `mapstructure:"windowMs"`
	MessageTypes []string       `mapstructure:"messageTypes"`
	Scope        RateLimitScope `mapstructure:"scope"`
}

type AuthConfig struct {
	Enabled          bool       `mapstructure:"enabled"`
	Method           AuthMethod `mapstructure:"method"`
	AllowAnonymous   bool       `mapstructure:"allowAnonymous"`
	AnonymousPrefix  string     `mapstructure:"anonymousPrefix"`
	HandshakeMessage string     `mapstructure:"handshakeMessage"`
	HandshakeExpiry  int64      `mapstructure:"handshakeExpiry"` // seconds
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Snapshot is the fully validated, immutable configuration consumed by the
// rest of the process. Treat as read-only for the lifetime of a Snapshot
// value; a reloader must build a new Snapshot and swap it at a quiescent
// point rather than mutate one in place.
type Snapshot struct {
	Server           ServerConfig      `mapstructure:"server"`
	Rooms            []RoomConfig      `mapstructure:"rooms"`
	IPFilters        []IPFilter        `mapstructure:"ipFilters"`
	ConnectionLimits ConnectionLimits  `mapstructure:"connectionLimits"`
	RateLimitRules   []RateLimitRule   `mapstructure:"rateLimitRules"`
	Auth             AuthConfig        `mapstructure:"auth"`
	Logging          LoggingConfig     `mapstructure:"logging"`
}

// DefaultRoom returns the configured fallback room (first entry in Rooms),
// or false if no room is configured.
func (s *Snapshot) DefaultRoom() (RoomConfig, bool) {
	if len(s.Rooms) == 0 {
		return RoomConfig{}, false
	}
	return s.Rooms[0], true
}

// Load reads and validates a configuration document from path, applying
// the PORT environment override, plus any SIGNALHUB_-prefixed environment
// override viper picks up for other fields. DISABLE_UI is not part of the
// Snapshot; it is read separately by DisableUI.
func Load(path string) (*Snapshot, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SIGNALHUB")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var snap Snapshot
	if err := v.Unmarshal(&snap); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if port := os.Getenv("PORT"); port != "" {
		if _, err := fmt.Sscanf(port, "%d", &snap.Server.Port); err != nil {
			return nil, fmt.Errorf("config: invalid PORT env var %q: %w", port, err)
		}
	}

	if err := validate(&snap); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return &snap, nil
}

// DisableUI reports whether the HTTP UI collaborator should be disabled in
// favor of the signaling-only JSON response described in the wire contract.
func DisableUI() bool {
	return strings.EqualFold(os.Getenv("DISABLE_UI"), "true")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 6742)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.wsPath", "/ws")
	v.SetDefault("auth.anonymousPrefix", "anon_")
	v.SetDefault("auth.handshakeExpiry", 300)
	v.SetDefault("logging.level", "info")
}

func validate(s *Snapshot) error {
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", s.Server.Port)
	}
	if s.Server.WebSocketURL == "" {
		return fmt.Errorf("server.wsPath must not be empty")
	}
	switch s.Auth.Method {
	case AuthNone, AuthToken, AuthEthereumHandshake, "":
	default:
		return fmt.Errorf("auth.method unrecognized: %q", s.Auth.Method)
	}
	if s.Auth.Method == AuthEthereumHandshake && s.Auth.HandshakeMessage == "" {
		return fmt.Errorf("auth.handshakeMessage required for ethereum-handshake")
	}
	for _, f := range s.IPFilters {
		if f.Type != FilterWhitelist && f.Type != FilterBlacklist {
			return fmt.Errorf("ipFilters: unrecognized type %q for pattern %q", f.Type, f.Pattern)
		}
	}
	return nil
}
