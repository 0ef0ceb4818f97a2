// Package structural defines the shared in-memory model both JPEG 2000
// parsers populate: an ordered tree of typed nodes, each carrying the byte
// span it originated from, plus the bounds-checked cursor the parser layers
// read through and the located error type they fail with.
//
// The tree is built in one forward pass over an immutable input buffer and
// never mutated after construction. Nodes reference the input by span;
// payload bytes are only materialized where a field requires interpreted
// values.
package structural

// TreeKind distinguishes the two input formats.
type TreeKind int

const (
	// TreeJP2 is a parsed JP2 file container.
	TreeJP2 TreeKind = iota + 1
	// TreeJPC is a parsed bare codestream.
	TreeJPC
)

func (k TreeKind) String() string {
	switch k {
	case TreeJP2:
		return "jp2"
	case TreeJPC:
		return "jpc"
	default:
		return "unknown"
	}
}

// Codestream is an ordered marker sequence, either embedded in a jp2c box
// or parsed from a bare JPC input.
type Codestream struct {
	Span    Span
	Markers []*Marker
}

// ParseTree is the root aggregate of one parse invocation. For a JP2 input
// Boxes holds the top-level box sequence; for a bare JPC input Codestream
// holds the marker sequence directly.
type ParseTree struct {
	Kind       TreeKind
	Source     Span
	Boxes      []*Box
	Codestream *Codestream
}

// MainCodestream returns the tree's codestream: the bare one for JPC input,
// or the first contiguous-codestream box payload for JP2 input. Nil when the
// JP2 file carries no jp2c box.
func (t *ParseTree) MainCodestream() *Codestream {
	if t.Kind == TreeJPC {
		return t.Codestream
	}
	for _, b := range t.Boxes {
		if cs, ok := b.Payload.(*EmbeddedCodestream); ok {
			return cs.Codestream
		}
	}
	return nil
}
