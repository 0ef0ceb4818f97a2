package structural

import "fmt"

// Span identifies where a structural unit originated in the source buffer.
// Offsets are absolute byte positions in the input handed to the parser, so
// they can be pasted straight into an external hex viewer.
type Span struct {
	Offset uint64
	Length uint64
}

// End returns the first byte position past the span.
func (s Span) End() uint64 {
	return s.Offset + s.Length
}

// Contains reports whether other lies entirely within s.
func (s Span) Contains(other Span) bool {
	return other.Offset >= s.Offset && other.End() <= s.End()
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Offset, s.End())
}
