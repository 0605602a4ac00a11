package signal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// ServerConfig tunes the relay
type ServerConfig struct {
	Addr           string   `toml:"addr"`
	MaxMessageSize int64    `toml:"max_message_size"` // bytes
	SendBuffer     int      `toml:"send_buffer"`      // per-connection outbound queue
	WriteWait      Duration `toml:"write_wait"`
	PongWait       Duration `toml:"pong_wait"`
	AllowedOrigins []string `toml:"allowed_origins"` // empty allows every origin
}

// Duration lets TOML files use strings like "10s"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultServerConfig returns the relay defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           ":8080",
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
		WriteWait:      Duration{10 * time.Second},
		PongWait:       Duration{60 * time.Second},
	}
}

// PingPeriod must stay below PongWait
func (c ServerConfig) PingPeriod() time.Duration {
	return (c.PongWait.Duration * 9) / 10
}

// LoadServerConfig reads a TOML file over the defaults.
// An empty path or a missing file yields the defaults.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path == "" {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to load relay config %s: %w", path, err)
	}

	return cfg.withDefaults(), nil
}

// withDefaults fills zero values left by a partial file
func (c ServerConfig) withDefaults() ServerConfig {
	def := DefaultServerConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = def.SendBuffer
	}
	if c.WriteWait.Duration <= 0 {
		c.WriteWait = def.WriteWait
	}
	if c.PongWait.Duration <= 0 {
		c.PongWait = def.PongWait
	}
	return c
}

// WithPort listens on port instead of the configured address. An empty port
// leaves the config unchanged.
func (c ServerConfig) WithPort(port string) (ServerConfig, error) {
	if port == "" {
		return c, nil
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return c, fmt.Errorf("invalid port %q", port)
	}
	c.Addr = fmt.Sprintf(":%d", n)
	return c, nil
}
