package ingest

import (
	"strings"
	"unicode/utf8"

	"markovchain/pkg/content"
)

// Chunker cuts long text into content.String pieces.
// Size is the maximum piece length in bytes, capped at content.MaxLen;
// Overlap is how many trailing bytes of a piece are repeated at the start of
// the next one.
type Chunker struct {
	Size    int
	Overlap int
}

// DefaultChunker produces the largest pieces the service accepts.
var DefaultChunker = Chunker{Size: content.MaxLen}

func (c Chunker) limits() (size, overlap int) {
	size = c.Size
	if size <= 0 || size > content.MaxLen {
		size = content.MaxLen
	}
	if size < utf8.UTFMax {
		size = utf8.UTFMax
	}
	overlap = c.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return size, overlap
}

// Split cuts text at whitespace where possible and never inside a UTF-8
// sequence. Blank pieces are dropped.
func (c Chunker) Split(text string) []content.String {
	size, overlap := c.limits()
	text = strings.ToValidUTF8(text, "")

	var out []content.String
	start := 0
	for start < len(text) {
		for start < len(text) && isSpace(text[start]) {
			start++
		}
		if start >= len(text) {
			break
		}
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else {
			end = cutPoint(text, start, end)
		}
		if s, err := content.New(strings.TrimSpace(text[start:end])); err == nil {
			out = append(out, s)
		}
		if end == len(text) {
			break
		}
		start = nextStart(text, start, end, overlap)
	}
	return out
}

// cutPoint moves end back to a rune boundary, then to the last whitespace
// in the second half of the window.
func cutPoint(text string, start, end int) int {
	for end > start && !utf8.RuneStart(text[end]) {
		end--
	}
	if i := strings.LastIndexAny(text[start:end], " \t\n\r"); i > (end-start)/2 {
		end = start + i
	}
	return end
}

func nextStart(text string, start, end, overlap int) int {
	if overlap == 0 {
		return end
	}
	next := end - overlap
	for next > start && !utf8.RuneStart(text[next]) {
		next--
	}
	if next <= start {
		return end
	}
	if i := strings.IndexByte(text[next:end], ' '); i >= 0 && next+i+1 < end {
		next += i + 1
	}
	return next
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
