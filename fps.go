package main

import (
	"strconv"
	"strings"
)

// FPSPreset defines a framerate preset
type FPSPreset struct {
	Value       int
	Name        string
	Description string
}

// FPS presets from lowest to highest
var FPSPresets = []FPSPreset{
	{Value: 5, Name: "5", Description: "still image"},
	{Value: 15, Name: "15", Description: "low power"},
	{Value: 24, Name: "24", Description: "cinematic"},
	{Value: 30, Name: "30", Description: "standard"},
	{Value: 60, Name: "60", Description: "smooth"},
}

// DefaultFPSIndex returns the index of the default FPS preset (30)
func DefaultFPSIndex() int {
	return 3
}

// ParseFPSFlag parses the --fps flag value. Anything that is not a positive
// integer falls back to the default.
func ParseFPSFlag(value string) int {
	value = strings.TrimSpace(strings.TrimSuffix(strings.ToLower(value), "fps"))

	if fps, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && fps > 0 {
		return fps
	}

	return FPSPresets[DefaultFPSIndex()].Value
}

// fpsHelp lists the presets for the --fps flag help
func fpsHelp() string {
	names := make([]string, 0, len(FPSPresets))
	for _, preset := range FPSPresets {
		names = append(names, preset.Name+" "+preset.Description)
	}
	return "target framerate (" + strings.Join(names, ", ") + ")"
}
