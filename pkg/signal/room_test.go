package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRoom(t *testing.T) {
	assert.Equal(t, "pid1", NormalizeRoom("  PID1 "))
	assert.Equal(t, "dockclerk", NormalizeRoom("DockClerk"))
}

func TestValidateRoom(t *testing.T) {
	assert.True(t, ValidateRoom("outbound"))
	assert.True(t, ValidateRoom(" Dock-Clerk "))
	assert.False(t, ValidateRoom(""))
	assert.False(t, ValidateRoom("   "))
	assert.False(t, ValidateRoom("a b"))
	assert.False(t, ValidateRoom("a/b"))
}

func TestLookupScreen(t *testing.T) {
	s, ok := LookupScreen("OUTBOUND")
	assert.True(t, ok)
	assert.Equal(t, "Outbound Dock", s.Name)

	_, ok = LookupScreen("lobby")
	assert.False(t, ok)
}

func TestScreensReturnsCopy(t *testing.T) {
	list := Screens()
	list[0].Name = "changed"

	assert.Equal(t, "PID 1", Screens()[0].Name)
	assert.Len(t, Screens(), 6)
}
