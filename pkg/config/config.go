// Package config provides YAML-based configuration loading for voxlink.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config is the root configuration shared by the relay and device binaries.
type Config struct {
	// AppName optional logical name of the process
	AppName string `mapstructure:"app_name"`

	// DeviceID is the opaque, globally unique identifier of this device.
	// Generated once when missing.
	DeviceID string `mapstructure:"device_id"`

	// DeviceName is the human-readable name announced at registration
	DeviceName string `mapstructure:"device_name"`

	// Wire selects the frame encoding: json or cbor
	Wire string `mapstructure:"wire"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Relay holds relay-server options
	Relay RelayConfig `mapstructure:"relay"`

	// Device holds device-session options
	Device DeviceConfig `mapstructure:"device"`

	// Net holds dial/backoff tuning
	Net NetConfig `mapstructure:"net"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// RelayConfig holds options for the relay process.
type RelayConfig struct {
	// Transport kind for device links: tcp, quic or mem
	Transport string `mapstructure:"transport"`
	// Listen address for device links
	Listen string `mapstructure:"listen"`
	// HTTPListen address for the status surface; empty disables it
	HTTPListen string `mapstructure:"http_listen"`
	// RegistryTTLMin is how long a registry record survives after last contact
	RegistryTTLMin int `mapstructure:"registry_ttl_min"`
}

// DeviceConfig holds options for the device process.
type DeviceConfig struct {
	// Transport kind for the relay link: tcp, quic or mem
	Transport string `mapstructure:"transport"`
	// RelayAddr is the relay address to dial
	RelayAddr string `mapstructure:"relay_addr"`
	// ConversationWindowS is the conversation-mode idle window in seconds
	ConversationWindowS int `mapstructure:"conversation_window_s"`
	// Friends is the local alias table, ordered; the first entry is
	// auto-selected at startup
	Friends []FriendConfig `mapstructure:"friends"`
}

// FriendConfig binds a local alias to a remote device identifier.
type FriendConfig struct {
	Alias      string `mapstructure:"alias"`
	Name       string `mapstructure:"name"`
	DeviceID   string `mapstructure:"device_id"`
	LightIndex int    `mapstructure:"light_index"`
}

// NetConfig contains dial/backoff tuning options for the device link.
type NetConfig struct {
	DialBackoffInitialMS int `mapstructure:"dial_backoff_initial_ms"`
	DialBackoffMaxMS     int `mapstructure:"dial_backoff_max_ms"`
	DialBackoffJitterMS  int `mapstructure:"dial_backoff_jitter_ms"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName:    "voxlink",
		DeviceName: "Voice Messenger",
		Wire:       "json",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/voxlink.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Relay: RelayConfig{
			Transport:      "tcp",
			Listen:         ":7310",
			HTTPListen:     ":8080",
			RegistryTTLMin: 60,
		},
		Device: DeviceConfig{
			Transport:           "tcp",
			RelayAddr:           "127.0.0.1:7310",
			ConversationWindowS: 300,
		},
		Net: NetConfig{DialBackoffInitialMS: 500, DialBackoffMaxMS: 30000, DialBackoffJitterMS: 100},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix VOXLINK and `.`/`-` are replaced with `_`.
// Example: VOXLINK_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VOXLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("device_id", cfg.DeviceID)
	v.SetDefault("device_name", cfg.DeviceName)
	v.SetDefault("wire", cfg.Wire)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("relay.transport", cfg.Relay.Transport)
	v.SetDefault("relay.listen", cfg.Relay.Listen)
	v.SetDefault("relay.http_listen", cfg.Relay.HTTPListen)
	v.SetDefault("relay.registry_ttl_min", cfg.Relay.RegistryTTLMin)
	v.SetDefault("device.transport", cfg.Device.Transport)
	v.SetDefault("device.relay_addr", cfg.Device.RelayAddr)
	v.SetDefault("device.conversation_window_s", cfg.Device.ConversationWindowS)
	v.SetDefault("net.dial_backoff_initial_ms", cfg.Net.DialBackoffInitialMS)
	v.SetDefault("net.dial_backoff_max_ms", cfg.Net.DialBackoffMaxMS)
	v.SetDefault("net.dial_backoff_jitter_ms", cfg.Net.DialBackoffJitterMS)

	// Choose config file
	if path == "" {
		if envPath := os.Getenv("VOXLINK_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search common locations with base name `voxlink`
		v.SetConfigName("voxlink")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".voxlink"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}

	switch strings.ToLower(strings.TrimSpace(c.Wire)) {
	case "", "json":
		c.Wire = "json"
	case "cbor":
		c.Wire = "cbor"
	default:
		return fmt.Errorf("invalid wire: %q", c.Wire)
	}

	if strings.TrimSpace(c.DeviceID) == "" {
		c.DeviceID = uuid.NewString()
	}

	c.Relay.Transport = normalizeTransport(c.Relay.Transport)
	c.Device.Transport = normalizeTransport(c.Device.Transport)
	if c.Relay.Transport == "" || c.Device.Transport == "" {
		return errors.New("invalid transport kind (want tcp, quic or mem)")
	}

	if c.Device.ConversationWindowS <= 0 {
		c.Device.ConversationWindowS = 300
	}
	if c.Relay.RegistryTTLMin <= 0 {
		c.Relay.RegistryTTLMin = 60
	}

	seen := make(map[string]struct{}, len(c.Device.Friends))
	for i := range c.Device.Friends {
		f := &c.Device.Friends[i]
		f.Alias = strings.TrimSpace(f.Alias)
		f.DeviceID = strings.TrimSpace(f.DeviceID)
		if f.Alias == "" || f.DeviceID == "" {
			return fmt.Errorf("friend %d: alias and device_id are required", i)
		}
		if _, dup := seen[f.Alias]; dup {
			return fmt.Errorf("duplicate friend alias %q", f.Alias)
		}
		seen[f.Alias] = struct{}{}
		if f.Name == "" {
			f.Name = f.Alias
		}
	}
	return nil
}

func normalizeTransport(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "tcp":
		return "tcp"
	case "quic":
		return "quic"
	case "mem":
		return "mem"
	default:
		return ""
	}
}

// FriendIDs returns the remote device identifiers declared in the friends table.
func (c *Config) FriendIDs() []string {
	out := make([]string, 0, len(c.Device.Friends))
	for _, f := range c.Device.Friends {
		out = append(out, f.DeviceID)
	}
	return out
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
