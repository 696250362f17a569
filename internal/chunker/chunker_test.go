package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	assert.Equal(t, []string{"hello\nworld"}, Split("hello\nworld", 100))
	assert.Equal(t, []string{""}, Split("", 10))
	assert.Equal(t, []string{strings.Repeat("x", 50)}, Split(strings.Repeat("x", 50), 0))
}

func TestSplitKeepsLinesTogether(t *testing.T) {
	text := "aaaa\nbbbb\ncccc\ndddd"
	got := Split(text, 9)
	assert.Equal(t, []string{"aaaa\nbbbb", "cccc\ndddd"}, got)
	assert.Equal(t, text, strings.Join(got, "\n"))
}

func TestSplitHardSplitsOversizedLine(t *testing.T) {
	got := Split(strings.Repeat("z", 25), 10)
	assert.Equal(t, []string{"zzzzzzzzzz", "zzzzzzzzzz", "zzzzz"}, got)
}

func TestSplitOversizedLineAfterOpenChunk(t *testing.T) {
	text := "ab\n" + strings.Repeat("q", 12) + "\ncd"
	got := Split(text, 5)
	assert.Equal(t, []string{"ab", "qqqqq", "qqqqq", "qq", "cd"}, got)
}

func TestSplitCountsRunes(t *testing.T) {
	text := strings.Repeat("ж", 7)
	got := Split(text, 3)
	require.Len(t, got, 3)
	for _, c := range got {
		assert.True(t, utf8.ValidString(c), "chunk %q is not valid utf-8", c)
	}
	assert.Equal(t, text, strings.Join(got, ""))
}

func TestSplitProperties(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		limit int
	}{
		{"blank lines", "\n\nfirst\n\n\nsecond\n\n" + strings.Repeat("-", 8), 8},
		{"exact fit lines", "12345\n12345\n12345", 5},
		{"long log", strings.Repeat("line of output\n", 300), 100},
		{"trailing newline", strings.Repeat("abc\n", 10), 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := Split(tc.text, tc.limit)
			require.NotEmpty(t, chunks)
			for _, c := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(c), tc.limit)
			}
			// No line in the input exceeds the limit, so chunks rejoin exactly.
			assert.Equal(t, tc.text, strings.Join(chunks, "\n"))
		})
	}
}
