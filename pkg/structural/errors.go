package structural

import "fmt"

// ErrorKind classifies structural parse failures.
type ErrorKind int

const (
	// UnexpectedEOF means a read requested more bytes than remain in the
	// active scope.
	UnexpectedEOF ErrorKind = iota + 1

	// StructuralInconsistency means a declared length or count does not
	// match the observed bytes or a dependent field.
	StructuralInconsistency

	// OutOfScopeMarker means a marker legal only in one codestream scope
	// appeared in another.
	OutOfScopeMarker

	// MissingMandatoryElement means a required box or marker is absent.
	MissingMandatoryElement
)

func (k ErrorKind) String() string {
	switch k {
	case UnexpectedEOF:
		return "unexpected EOF"
	case StructuralInconsistency:
		return "structural inconsistency"
	case OutOfScopeMarker:
		return "out-of-scope marker"
	case MissingMandatoryElement:
		return "missing mandatory element"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is the single located error a parse invocation returns. Parsing does
// not attempt partial recovery: the first violated invariant aborts the whole
// parse, because later bytes cannot be reliably interpreted once length
// accounting or scope legality is broken.
type Error struct {
	Kind   ErrorKind
	Offset uint64

	// Box is the offending box type when the error arose in the box layer.
	Box BoxType
	// Marker is the offending marker code when the error arose in the
	// codestream layer.
	Marker uint16

	Detail string
}

func (e *Error) Error() string {
	switch {
	case e.Marker != 0:
		return fmt.Sprintf("j2kxml: %s: %s (marker %s at offset %d)",
			e.Kind, e.Detail, MarkerName(e.Marker), e.Offset)
	case e.Box != (BoxType{}):
		return fmt.Sprintf("j2kxml: %s: %s (box %q at offset %d)",
			e.Kind, e.Detail, e.Box.String(), e.Offset)
	default:
		return fmt.Sprintf("j2kxml: %s: %s (offset %d)", e.Kind, e.Detail, e.Offset)
	}
}

// Errorf builds a located Error with no box or marker context.
func Errorf(kind ErrorKind, offset uint64, format string, args ...any) *Error {
	return &Error{Kind: kind, Offset: offset, Detail: fmt.Sprintf(format, args...)}
}

// BoxErrorf builds a located Error attributed to a box.
func BoxErrorf(kind ErrorKind, boxType BoxType, offset uint64, format string, args ...any) *Error {
	return &Error{Kind: kind, Box: boxType, Offset: offset, Detail: fmt.Sprintf(format, args...)}
}

// MarkerErrorf builds a located Error attributed to a marker.
func MarkerErrorf(kind ErrorKind, code uint16, offset uint64, format string, args ...any) *Error {
	return &Error{Kind: kind, Marker: code, Offset: offset, Detail: fmt.Sprintf(format, args...)}
}
