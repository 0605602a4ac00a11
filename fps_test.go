package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFPSFlag(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"30", 30},
		{" 15 ", 15},
		{"60fps", 60},
		{"0", 30},
		{"-5", 30},
		{"fast", 30},
		{"", 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseFPSFlag(tt.in), "input %q", tt.in)
	}
}

func TestFPSHelp(t *testing.T) {
	help := fpsHelp()
	assert.Contains(t, help, "5 still image")
	assert.Contains(t, help, "60 smooth")
}
