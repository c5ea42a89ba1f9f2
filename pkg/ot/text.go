package ot

import "unicode/utf16"

// Positions count UTF-16 code units so that server and textarea-style
// clients agree on offsets regardless of the characters involved. Go
// strings are UTF-8, so application transcodes at the boundary.

// Width returns the length of s in UTF-16 code units.
func Width(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// Apply materializes op on content. Out-of-range positions are clamped to
// [0, len(content)] and delete ranges are clamped to the content end, both
// in code units. Noop returns content unchanged.
func Apply(content string, op Operation) string {
	switch op.Type {
	case TypeInsert:
		units := utf16.Encode([]rune(content))
		pos := clamp(op.Position, 0, len(units))
		ins := utf16.Encode([]rune(op.Text))
		out := make([]uint16, 0, len(units)+len(ins))
		out = append(out, units[:pos]...)
		out = append(out, ins...)
		out = append(out, units[pos:]...)
		return string(utf16.Decode(out))

	case TypeDelete:
		units := utf16.Encode([]rune(content))
		pos := clamp(op.Position, 0, len(units))
		end := clamp(pos+op.Length, pos, len(units))
		out := make([]uint16, 0, len(units)-(end-pos))
		out = append(out, units[:pos]...)
		out = append(out, units[end:]...)
		return string(utf16.Decode(out))

	default:
		return content
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
