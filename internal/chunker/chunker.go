// Package chunker splits long text into pieces that fit a transport's
// message size limit, keeping lines intact whenever a line fits on its own.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// Split breaks text into chunks of at most limit runes.
//
// Lines are accumulated greedily and joined with "\n". A line that does not
// fit the open chunk starts a new one; a line longer than limit is cut into
// limit-sized pieces. The result always has at least one element. A limit
// <= 0 disables splitting.
func Split(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
		open   bool
	)
	flush := func() {
		chunks = append(chunks, cur.String())
		cur.Reset()
		curLen = 0
		open = false
	}

	for _, line := range strings.Split(text, "\n") {
		n := utf8.RuneCountInString(line)
		if open && curLen+1+n <= limit {
			cur.WriteByte('\n')
			cur.WriteString(line)
			curLen += 1 + n
			continue
		}
		if open {
			flush()
		}
		if n > limit {
			chunks = append(chunks, hardSplit(line, limit)...)
			continue
		}
		cur.WriteString(line)
		curLen = n
		open = true
	}
	if open {
		flush()
	}
	return chunks
}

// hardSplit cuts s into pieces of limit runes; the last piece may be shorter.
func hardSplit(s string, limit int) []string {
	pieces := make([]string, 0, utf8.RuneCountInString(s)/limit+1)
	for s != "" {
		end, count := 0, 0
		for end < len(s) && count < limit {
			_, size := utf8.DecodeRuneInString(s[end:])
			end += size
			count++
		}
		pieces = append(pieces, s[:end])
		s = s[end:]
	}
	return pieces
}
