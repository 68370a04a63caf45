package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `{
		"rooms": [{"id": "default", "routingMode": "broadcast"}],
		"auth": {"enabled": false}
	}`)

	snap, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if snap.Server.Port != 6742 {
		t.Errorf("Server.Port = %d, want default 6742", snap.Server.Port)
	}
	if snap.Server.WebSocketURL != "/ws" {
		t.Errorf("Server.WebSocketURL = %q, want /ws", snap.Server.WebSocketURL)
	}
	if snap.Auth.AnonymousPrefix != "anon_" {
		t.Errorf("Auth.AnonymousPrefix = %q, want anon_", snap.Auth.AnonymousPrefix)
	}
	if snap.Auth.HandshakeExpiry != 300 {
		t.Errorf("Auth.HandshakeExpiry = %d, want 300", snap.Auth.HandshakeExpiry)
	}

	if got, ok := snap.DefaultRoom(); !ok || got.ID != "default" {
		t.Errorf("DefaultRoom() = %+v, ok=%v", got, ok)
	}
}

func TestLoad_PortEnvOverride(t *testing.T) {
	path := writeConfig(t, `{"rooms": [{"id": "default"}], "auth": {"enabled": false}}`)

	t.Setenv("PORT", "9999")

	snap, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999 from PORT env var", snap.Server.Port)
	}
}

func TestLoad_HandshakeRequiresMessage(t *testing.T) {
	path := writeConfig(t, `{
		"rooms": [{"id": "default"}],
		"auth": {"enabled": true, "method": "ethereum-handshake"}
	}`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing handshakeMessage")
	}
}

func TestLoad_UnrecognizedAuthMethod(t *testing.T) {
	path := writeConfig(t, `{"rooms": [{"id": "default"}], "auth": {"method": "bogus"}}`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unrecognized auth method")
	}
}

func TestLoad_UnrecognizedIPFilterType(t *testing.T) {
	path := writeConfig(t, `{
		"rooms": [{"id": "default"}],
		"auth": {"enabled": false},
		"ipFilters": [{"pattern": "10.0.0.0/8", "type": "graylist"}]
	}`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unrecognized ipFilters type")
	}
}

func TestDisableUI(t *testing.T) {
	t.Setenv("DISABLE_UI", "true")
	if !DisableUI() {
		t.Error("expected DisableUI() true when DISABLE_UI=true")
	}

	t.Setenv("DISABLE_UI", "false")
	if DisableUI() {
		t.Error("expected DisableUI() false when DISABLE_UI=false")
	}
}
