package signal

import (
	"strings"
)

// Screen is a receiving display that consumers attach to by room name
type Screen struct {
	ID   string
	Name string
}

// screens is the catalog offered by the producer UI. The relay accepts any
// room name; this list only drives selection.
var screens = []Screen{
	{ID: "pid1", Name: "PID 1"},
	{ID: "pid2", Name: "PID 2"},
	{ID: "pid3", Name: "PID 3"},
	{ID: "pid4", Name: "PID 4"},
	{ID: "outbound", Name: "Outbound Dock"},
	{ID: "dockclerk", Name: "Dock Clerk"},
}

// Screens returns a copy of the screen catalog
func Screens() []Screen {
	out := make([]Screen, len(screens))
	copy(out, screens)
	return out
}

// LookupScreen finds a catalog entry by id
func LookupScreen(id string) (Screen, bool) {
	id = NormalizeRoom(id)
	for _, s := range screens {
		if s.ID == id {
			return s, true
		}
	}
	return Screen{}, false
}

// NormalizeRoom ensures consistent room naming (lowercase, trimmed). The
// relay keys rooms by the exact string it is given; this is for user input.
func NormalizeRoom(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateRoom checks that a room name is usable
func ValidateRoom(name string) bool {
	name = NormalizeRoom(name)
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		if r <= ' ' || r == '/' {
			return false
		}
	}
	return true
}
