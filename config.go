package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/tomaslejdung/peepcast/pkg/peer"
	sig "github.com/tomaslejdung/peepcast/pkg/signal"
	"github.com/tomaslejdung/peepcast/pkg/settings"
)

// LocalSignalServer is the URL for a relay started with `peepcast serve`
const LocalSignalServer = "http://localhost:8080"

// Config holds runtime configuration for share and view
type Config struct {
	SignalURL     string
	Codec         sig.Codec
	Screen        string
	FPS           int
	MaxReconnects int
	ICE           peer.ICEConfig
}

// Options carries command-line values. Empty strings and nil pointers mean
// the flag was not given.
type Options struct {
	SignalURL     string
	Local         bool
	Codec         string
	Screen        string
	FPS           string
	MaxReconnects *int
	TURNServer    string
	TURNUser      string
	TURNPass      string
	ForceRelay    bool
}

// LoadConfig resolves configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Saved settings file
// 4. Hardcoded defaults - lowest priority
func LoadConfig(opts Options) (Config, error) {
	saved, err := settings.Load()
	if err != nil {
		return Config{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return resolveConfig(opts, os.Getenv, saved)
}

func resolveConfig(opts Options, getenv func(string) string, saved settings.UserSettings) (Config, error) {
	def := settings.DefaultSettings()
	pick := func(flag, env, stored, fallback string) string {
		for _, v := range []string{flag, getenv(env), stored} {
			if v != "" {
				return v
			}
		}
		return fallback
	}

	cfg := Config{}

	// Signal URL: --local > --signal > env > settings > default
	cfg.SignalURL = pick(opts.SignalURL, "PEEPCAST_SIGNAL", saved.SignalURL, def.SignalURL)
	if opts.Local {
		cfg.SignalURL = LocalSignalServer
	}

	codecName := pick(opts.Codec, "PEEPCAST_CODEC", saved.Codec, def.Codec)
	codec, err := sig.CodecByName(codecName)
	if err != nil {
		return cfg, err
	}
	cfg.Codec = codec

	cfg.Screen = sig.NormalizeRoom(pick(opts.Screen, "PEEPCAST_SCREEN", "", ""))
	if cfg.Screen != "" && !sig.ValidateRoom(cfg.Screen) {
		return cfg, fmt.Errorf("invalid screen name %q", cfg.Screen)
	}

	storedFPS := ""
	if saved.FPS > 0 {
		storedFPS = strconv.Itoa(saved.FPS)
	}
	cfg.FPS = ParseFPSFlag(pick(opts.FPS, "PEEPCAST_FPS", storedFPS, strconv.Itoa(def.FPS)))

	switch {
	case opts.MaxReconnects != nil:
		cfg.MaxReconnects = *opts.MaxReconnects
	case getenv("PEEPCAST_MAX_RECONNECTS") != "":
		n, err := strconv.Atoi(getenv("PEEPCAST_MAX_RECONNECTS"))
		if err != nil {
			return cfg, fmt.Errorf("invalid PEEPCAST_MAX_RECONNECTS: %w", err)
		}
		cfg.MaxReconnects = n
	default:
		cfg.MaxReconnects = saved.MaxReconnects
	}
	if cfg.MaxReconnects < 0 {
		return cfg, fmt.Errorf("max reconnects must not be negative, got %d", cfg.MaxReconnects)
	}

	cfg.ICE = peer.ICEConfig{
		TURNServer: pick(opts.TURNServer, "TURN_SERVER", saved.TURNServer, ""),
		TURNUser:   pick(opts.TURNUser, "TURN_USERNAME", saved.TURNUser, ""),
		TURNPass:   pick(opts.TURNPass, "TURN_PASSWORD", saved.TURNPass, ""),
		ForceRelay: opts.ForceRelay || saved.ForceRelay,
	}
	if cfg.ICE.ForceRelay && cfg.ICE.TURNServer == "" {
		return cfg, fmt.Errorf("--force-relay needs a TURN server")
	}

	return cfg, nil
}

// remember stores the choices worth keeping for the next run
func remember(cfg Config, screen string) {
	saved, err := settings.Load()
	if err != nil {
		slog.Debug("failed to load settings", "err", err)
		return
	}
	saved.SignalURL = cfg.SignalURL
	saved.Codec = cfg.Codec.Name()
	if screen != "" {
		saved.LastScreen = screen
	}
	if err := settings.Save(saved); err != nil {
		slog.Debug("failed to save settings", "err", err)
	}
}
