package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voxlink.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app_name: test\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Wire != "json" || cfg.Relay.Listen != ":7310" {
		t.Fatalf("defaults not applied: wire=%q listen=%q", cfg.Wire, cfg.Relay.Listen)
	}
	if cfg.DeviceID == "" {
		t.Fatalf("missing device_id must be generated")
	}
	if cfg.Device.ConversationWindowS != 300 {
		t.Fatalf("conversation window default = %d", cfg.Device.ConversationWindowS)
	}
}

func TestLoadFriendsTable(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
device_id: dev-me
wire: cbor
device:
  relay_addr: "relay.local:7310"
  friends:
    - alias: anna
      device_id: dev-anna
      light_index: 0
    - alias: ben
      name: Ben
      device_id: dev-ben
      light_index: 1
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Wire != "cbor" {
		t.Fatalf("wire = %q", cfg.Wire)
	}
	if len(cfg.Device.Friends) != 2 || cfg.Device.Friends[0].Alias != "anna" {
		t.Fatalf("friends = %+v", cfg.Device.Friends)
	}
	// name falls back to alias
	if cfg.Device.Friends[0].Name != "anna" || cfg.Device.Friends[1].Name != "Ben" {
		t.Fatalf("friend names = %q %q", cfg.Device.Friends[0].Name, cfg.Device.Friends[1].Name)
	}
	if ids := cfg.FriendIDs(); len(ids) != 2 || ids[0] != "dev-anna" || ids[1] != "dev-ben" {
		t.Fatalf("FriendIDs = %v", ids)
	}
}

func TestLoadRejectsDuplicateAlias(t *testing.T) {
	_, err := Load(writeConfig(t, `
device:
  friends:
    - alias: anna
      device_id: dev-1
    - alias: anna
      device_id: dev-2
`))
	if err == nil {
		t.Fatalf("duplicate alias must be rejected")
	}
}

func TestLoadRejectsBadWire(t *testing.T) {
	if _, err := Load(writeConfig(t, "wire: protobuf\n")); err == nil {
		t.Fatalf("unknown wire must be rejected")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("VOXLINK_LOG_LEVEL", "debug")
	t.Setenv("VOXLINK_RELAY_LISTEN", ":9999")
	cfg, err := Load(writeConfig(t, "app_name: test\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Relay.Listen != ":9999" {
		t.Fatalf("env overrides not applied: %q %q", cfg.Log.Level, cfg.Relay.Listen)
	}
}
