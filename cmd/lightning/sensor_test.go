package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByte(t *testing.T) {
	tests := []struct {
		in   string
		want byte
	}{
		{"0x3C", 0x3C},
		{"0x96", 0x96},
		{"8", 8},
		{"0b0100", 4},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseByte(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	for _, bad := range []string{"", "0x100", "reg", "-1"} {
		_, err := parseByte(bad)
		assert.Error(t, err, bad)
	}
}
