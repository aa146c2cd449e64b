package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		expectStart int64
		expectEnd   int64
		expectTotal int64
		expectErr   bool
	}{
		{"full header", "bytes 0-0/4000000", 0, 0, 4000000, false},
		{"mid range", "bytes 1024-2047/4096", 1024, 2047, 4096, false},
		{"unknown total", "bytes 0-0/*", 0, 0, -1, false},
		{"empty", "", 0, 0, -1, true},
		{"missing total", "bytes 0-0", 0, 0, -1, true},
		{"garbage total", "bytes 0-0/abc", 0, 0, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, total, err := parseContentRange(tt.header)
			if tt.expectErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectStart, start)
			assert.Equal(t, tt.expectEnd, end)
			assert.Equal(t, tt.expectTotal, total)
		})
	}
}
