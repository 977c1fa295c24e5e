package source

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Encoding selects the character unit used in Position.Character.
// Clients negotiate one of the three Unicode encodings; offsets into
// document content are always bytes regardless of encoding.
type Encoding uint8

const (
	EncodingUTF8 Encoding = iota
	EncodingUTF16
	EncodingUTF32
)

// ParseEncoding maps the wire names "utf-8", "utf-16" and "utf-32" to
// an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "utf-8":
		return EncodingUTF8, nil
	case "utf-16":
		return EncodingUTF16, nil
	case "utf-32":
		return EncodingUTF32, nil
	}
	return EncodingUTF8, fmt.Errorf("unknown position encoding %q", s)
}

// String returns the wire name of the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingUTF16:
		return "utf-16"
	case EncodingUTF32:
		return "utf-32"
	}
	return "utf-8"
}

// Position is a zero-based line and character location. The character
// is measured in units of the negotiated encoding.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open [Start, End) position interval.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// OffsetToPosition converts a byte offset into a position in the given
// encoding. Offsets outside the content are clamped.
func (d *Document) OffsetToPosition(offset int, enc Encoding) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(d.Content) {
		offset = len(d.Content)
	}
	line := sort.Search(len(d.lines), func(i int) bool { return d.lines[i] > offset }) - 1
	if line < 0 {
		line = 0
	}
	start := d.lines[line]
	if enc == EncodingUTF8 {
		return Position{Line: line, Character: offset - start}
	}
	units := 0
	for i := start; i < offset; {
		r, size := utf8.DecodeRune(d.Content[i:])
		units += runeUnits(r, size, enc)
		i += size
	}
	return Position{Line: line, Character: units}
}

// PositionToOffset converts a position back to a byte offset. Lines
// past the end of the document map to the content length; characters
// past the end of a line map to the line end; a character landing
// inside a multi-unit code point is clamped to the code point start.
func (d *Document) PositionToOffset(pos Position, enc Encoding) int {
	if pos.Line < 0 {
		return 0
	}
	if pos.Line >= len(d.lines) {
		return len(d.Content)
	}
	offset := d.lines[pos.Line]
	end := len(d.Content)
	if pos.Line+1 < len(d.lines) {
		end = d.lines[pos.Line+1] - 1
	}
	remaining := pos.Character
	for offset < end && remaining > 0 {
		r, size := utf8.DecodeRune(d.Content[offset:])
		w := runeUnits(r, size, enc)
		if remaining < w {
			break
		}
		remaining -= w
		offset += size
	}
	return offset
}

// LineAt returns the zero-based line containing the byte offset.
func (d *Document) LineAt(offset int) int {
	line := sort.Search(len(d.lines), func(i int) bool { return d.lines[i] > offset }) - 1
	if line < 0 {
		return 0
	}
	return line
}

// LineCount returns the number of lines in the document.
func (d *Document) LineCount() int {
	return len(d.lines)
}

func runeUnits(r rune, size int, enc Encoding) int {
	switch enc {
	case EncodingUTF8:
		return size
	case EncodingUTF16:
		if r >= 0x10000 {
			return 2
		}
		return 1
	default:
		return 1
	}
}
