package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteCountSI(t *testing.T) {
	tests := []struct {
		bytes    int
		expected string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1.0 kB"},
		{1500, "1.5 kB"},
		{999500, "999.5 kB"},
		{1000000, "1.0 MB"},
		{16700000, "16.7 MB"}, // typical webhook media payload
		{1500000000, "1.5 GB"},
		{1500000000000, "1.5 TB"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, ByteCountSI(tc.bytes))
		})
	}
}
