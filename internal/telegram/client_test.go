package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSplitByBytes(t *testing.T) {
	assert.Equal(t, []string{"short"}, SplitByBytes("short", 10))

	long := strings.Repeat("提示词", 2000) // 3 bytes per rune
	parts := SplitByBytes(long, MaxMessageBytes)
	assert.Greater(t, len(parts), 1)

	joined := strings.Join(parts, "")
	assert.Equal(t, long, joined)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), MaxMessageBytes)
		assert.True(t, utf8.ValidString(p))
	}
}

func TestTruncateByBytes(t *testing.T) {
	assert.Equal(t, "abc", TruncateByBytes("abc", 5))
	assert.Equal(t, "ab", TruncateByBytes("abc", 2))
	// never cut inside a rune
	assert.Equal(t, "你", TruncateByBytes("你好", 4))
}
