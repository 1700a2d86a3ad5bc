package testutil

import "strings"

// ByteStream reads bytes sequentially from a byte slice.
//
// Fuzz tests use it to derive documents from fuzz input. An exhausted stream
// returns zero values, so the same input always yields the same document.
type ByteStream struct {
	bytes []byte
	pos   int
}

// NewByteStream creates a stream over b.
func NewByteStream(b []byte) *ByteStream {
	return &ByteStream{bytes: b}
}

// HasMore reports whether unread bytes remain.
func (s *ByteStream) HasMore() bool {
	return s.pos < len(s.bytes)
}

// NextByte returns the next byte, or 0 if exhausted.
func (s *ByteStream) NextByte() byte {
	if s.pos >= len(s.bytes) {
		return 0
	}

	v := s.bytes[s.pos]
	s.pos++

	return v
}

// NextInt returns a value in [0, maxVal).
func (s *ByteStream) NextInt(maxVal int) int {
	if maxVal <= 0 {
		return 0
	}

	return int(s.NextByte()) % maxVal
}

// NextWord returns a lowercase word of 1..maxLen letters.
func (s *ByteStream) NextWord(maxLen int) string {
	if maxLen <= 0 {
		return ""
	}

	n := 1 + s.NextInt(maxLen)

	var b strings.Builder

	for range n {
		b.WriteByte('a' + s.NextByte()%26)
	}

	return b.String()
}

// NextMarkdown builds a document of at most maxLines lines mixing headings,
// prose, blank lines, fenced code and section markers, some of them
// unbalanced. Marker ids come from a small pool so duplicates and stray
// closes occur.
func (s *ByteStream) NextMarkdown(maxLines int) string {
	ids := []string{"a", "b", "c", "20250101000000"}

	var lines []string

	for i := 0; i < maxLines && s.HasMore(); i++ {
		switch s.NextInt(8) {
		case 0:
			lines = append(lines, strings.Repeat("#", 1+s.NextInt(3))+" "+s.NextWord(8))
		case 1:
			lines = append(lines, "")
		case 2:
			lines = append(lines, ">>>>>ID#"+ids[s.NextInt(len(ids))])
		case 3:
			lines = append(lines, "<<<<<ID#"+ids[s.NextInt(len(ids))])
		case 4:
			lines = append(lines, "```", "# "+s.NextWord(5), "```")
		default:
			lines = append(lines, s.NextWord(10)+" "+s.NextWord(6))
		}
	}

	return strings.Join(lines, "\n") + "\n"
}
