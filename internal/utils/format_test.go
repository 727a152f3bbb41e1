package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatRate(t *testing.T) {
	for _, tc := range []struct {
		rate     float64
		expected string
	}{
		{0, "0 Byte/s"},
		{1023.9, "1023 Byte/s"},
		{1024, "1 KByte/s"},
		{1536, "2 KByte/s"},
		{2560, "2 KByte/s"},
		{131072, "128 KByte/s"},
	} {
		require.Equal(t, tc.expected, FormatRate(tc.rate))
	}
}

func TestFormatBytes(t *testing.T) {
	require.Equal(t, "8 Bytes", FormatBytes(8))
	require.Equal(t, "256 KBytes", FormatBytes(256<<10))
}
