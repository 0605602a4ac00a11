package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// UserSettings holds persistable user preferences
type UserSettings struct {
	SignalURL     string `json:"signalUrl"`
	LastScreen    string `json:"lastScreen"`
	FPS           int    `json:"fps"`
	TURNServer    string `json:"turnServer,omitempty"`
	TURNUser      string `json:"turnUser,omitempty"`
	TURNPass      string `json:"turnPass,omitempty"`
	ForceRelay    bool   `json:"forceRelay"`
	MaxReconnects int    `json:"maxReconnects"`
	Codec         string `json:"codec"`
}

// DefaultSettings returns the default settings
func DefaultSettings() UserSettings {
	return UserSettings{
		SignalURL:     "http://localhost:8080",
		FPS:           30,
		MaxReconnects: 10,
		Codec:         "json",
	}
}

// Path returns the config file path.
// Uses XDG_CONFIG_HOME if set, otherwise the OS config directory.
func Path() (string, error) {
	var configDir string

	// Check for XDG override (for power users)
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "peepcast")
	} else {
		userConfigDir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(userConfigDir, "peepcast")
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Load reads settings from the config file.
// Returns default settings if file doesn't exist or is invalid.
func Load() (UserSettings, error) {
	settings := DefaultSettings()

	path, err := Path()
	if err != nil {
		return settings, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist - use defaults, not an error
			return settings, nil
		}
		return settings, err
	}

	// Parse JSON, keeping defaults for missing fields
	if err := json.Unmarshal(data, &settings); err != nil {
		return DefaultSettings(), nil
	}

	return settings, nil
}

// Save writes settings to the config file
func Save(settings UserSettings) error {
	path, err := Path()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
