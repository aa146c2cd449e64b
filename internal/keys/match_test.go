package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		title  string
		expect string
	}{
		{"strips extension", "Example Game.zip", "example game"},
		{"strips txt extension", "Example Game.txt", "example game"},
		{"strips trailing tags", "Example Game (USA) (Rev 1).zip", "example game"},
		{"keeps inner parenthesis", "Game (of) Life (USA).zip", "game (of) life"},
		{"collapses whitespace", "  Example   Game ", "example game"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Normalize(tt.title))
		})
	}
}

func TestBestMatch(t *testing.T) {
	candidates := []string{
		"Another Title (Japan).txt",
		"Example Game (Europe).txt",
		"Example Game (USA).txt",
		"Example Game Special Edition (USA).txt",
	}

	tests := []struct {
		name      string
		query     string
		expectIdx int
		expectOK  bool
	}{
		{"exact normalized match", "Example Game (USA).zip", 1, true},
		{"longer candidate loses to exact length", "Example Game (Rev 2).zip", 1, true},
		{"special edition wins on longer substring", "Example Game Special Edition.zip", 3, true},
		{"no overlap", "Zelda.zip", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, ok := bestMatch(tt.query, candidates)
			assert.Equal(t, tt.expectOK, ok)
			if tt.expectOK {
				assert.Equal(t, tt.expectIdx, idx)
			}
		})
	}
}

func TestBestMatch_TieBreaksOnEarlierCandidate(t *testing.T) {
	// Two candidates normalize identically; the first one wins.
	idx, ok := bestMatch("Example Game.zip", []string{
		"Example Game (USA).txt",
		"Example Game (Europe).txt",
	})
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestLongestCommonSubstring(t *testing.T) {
	assert.Equal(t, 0, longestCommonSubstring("", "abc"))
	assert.Equal(t, 3, longestCommonSubstring("abc", "abc"))
	assert.Equal(t, 2, longestCommonSubstring("xabz", "yabw"))
}
