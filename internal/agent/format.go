package agent

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"adminbot/internal/chunker"
	"adminbot/internal/registry"
)

var (
	preOverhead  = len("<pre></pre>")
	codeOverhead = len("<code></code>")
)

// escapeLines HTML-escapes text line by line. Lines whose escaped form is
// longer than width runes are cut, never inside an entity, so that wrapping
// each piece in tags keeps the markup balanced. width <= 0 disables cutting.
func escapeLines(text string, width int) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if width <= 0 {
			out = append(out, html.EscapeString(line))
			continue
		}
		var (
			b strings.Builder
			n int
		)
		for _, r := range line {
			esc := html.EscapeString(string(r))
			w := utf8.RuneCountInString(esc)
			if n > 0 && n+w > width {
				out = append(out, b.String())
				b.Reset()
				n = 0
			}
			b.WriteString(esc)
			n += w
		}
		out = append(out, b.String())
	}
	return out
}

func budget(limit, overhead int) int {
	if limit <= 0 {
		return 0
	}
	if b := limit - overhead; b > 0 {
		return b
	}
	return 1
}

// preChunks splits raw command output into messages, each one <pre> block.
func preChunks(text string, limit int) []string {
	width := budget(limit, preOverhead)
	chunks := chunker.Split(strings.Join(escapeLines(text, width), "\n"), width)
	for i, c := range chunks {
		chunks[i] = "<pre>" + c + "</pre>"
	}
	return chunks
}

// errorBlock renders a heading plus the error text as one message. Text that
// would not fit is cut and marked with an ellipsis.
func errorBlock(heading, errText string, limit int) string {
	width := budget(limit, utf8.RuneCountInString(heading)+1+preOverhead+1)
	chunks := chunker.Split(strings.Join(escapeLines(errText, width), "\n"), width)
	body := chunks[0]
	if len(chunks) > 1 {
		body += "…"
	}
	return heading + "\n<pre>" + body + "</pre>"
}

// renderReport lays out step results under header and chunks the result.
// Every line is balanced markup on its own, so a chunk boundary between
// lines never splits a tag.
func renderReport(header []string, results []stepResult, limit int) []string {
	var lines []string
	for _, h := range header {
		for _, l := range strings.Split(h, "\n") {
			lines = append(lines, fitLine(l, limit))
		}
	}
	width := budget(limit, codeOverhead)
	labelWidth := budget(limit, utf8.RuneCountInString("<b>• :</b>")+1)
	for _, r := range results {
		lines = append(lines, "", "<b>• "+cutEscaped(strings.ReplaceAll(r.label, "\n", " "), labelWidth)+":</b>")
		body := r.res.Stdout
		if !r.res.OK() {
			lines = append(lines, "❌ Error:")
			body = r.res.ErrorText()
		}
		if body == "" {
			lines = append(lines, "<i>(no output)</i>")
			continue
		}
		for _, l := range escapeLines(body, width) {
			if l == "" {
				lines = append(lines, "")
				continue
			}
			lines = append(lines, "<code>"+l+"</code>")
		}
	}
	return chunker.Split(strings.Join(lines, "\n"), limit)
}

// fitLine returns line unchanged when it fits in limit runes. Longer lines
// lose their markup and are cut, so the chunker never has to split them.
func fitLine(line string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(line) <= limit {
		return line
	}
	return cutEscaped(registry.PlainText(line), budget(limit, 1))
}

// cutEscaped escapes s and keeps at most width runes of the result, marking
// a cut with an ellipsis.
func cutEscaped(s string, width int) string {
	pieces := escapeLines(s, width)
	if len(pieces) > 1 {
		return pieces[0] + "…"
	}
	return pieces[0]
}

func (h *Handler) uptime() time.Duration {
	return h.now().Sub(h.opts.StartedAt)
}

// formatUptime renders d as "H:MM:SS", prefixed with days when needed.
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	days := secs / 86400
	secs %= 86400
	clock := fmt.Sprintf("%d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
	switch days {
	case 0:
		return clock
	case 1:
		return "1 day, " + clock
	default:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
}
