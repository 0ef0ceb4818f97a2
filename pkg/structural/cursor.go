package structural

import (
	"bytes"
	"io"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// Cursor is a bounds-checked, position-tracking reader over one region of an
// immutable input buffer. All multi-byte reads are big-endian, per the JPEG
// 2000 network byte order. A Cursor never reads past the end of its region:
// recursive descent into a nested structure goes through Sub, which carves a
// child region whose bounds the child cannot escape.
//
// Positions reported by Pos and recorded in spans are absolute offsets into
// the original input buffer, not region-relative ones, so every diagnostic
// points at a real file offset.
type Cursor struct {
	buf  []byte
	base uint64
	pos  uint64
	s    *kaitai.Stream
}

// NewCursor wraps an immutable input buffer. The caller retains ownership of
// buf and must not mutate it for the lifetime of the cursor and any tree
// parsed from it.
func NewCursor(buf []byte) *Cursor {
	return newRegion(buf, 0)
}

func newRegion(buf []byte, base uint64) *Cursor {
	return &Cursor{
		buf:  buf,
		base: base,
		s:    kaitai.NewStream(bytes.NewReader(buf)),
	}
}

// Base returns the absolute offset of the first byte of this region.
func (c *Cursor) Base() uint64 { return c.base }

// Len returns the total length of the region.
func (c *Cursor) Len() uint64 { return uint64(len(c.buf)) }

// Pos returns the absolute offset of the next byte to be read.
func (c *Cursor) Pos() uint64 { return c.base + c.pos }

// Remaining returns the number of unread bytes left in the region.
func (c *Cursor) Remaining() uint64 { return uint64(len(c.buf)) - c.pos }

// Bytes returns the whole region. The slice aliases the input buffer and
// must be treated as read-only.
func (c *Cursor) Bytes() []byte { return c.buf }

// Span returns the span covering the whole region.
func (c *Cursor) Span() Span {
	return Span{Offset: c.base, Length: uint64(len(c.buf))}
}

func (c *Cursor) eof(n uint64) *Error {
	return Errorf(UnexpectedEOF, c.Pos(), "need %d bytes, %d remain in scope", n, c.Remaining())
}

// ReadU8 reads one byte.
func (c *Cursor) ReadU8() (uint8, error) {
	if c.Remaining() < 1 {
		return 0, c.eof(1)
	}
	v, err := c.s.ReadU1()
	if err != nil {
		return 0, c.eof(1)
	}
	c.pos++
	return v, nil
}

// ReadU16 reads a big-endian 16-bit integer.
func (c *Cursor) ReadU16() (uint16, error) {
	if c.Remaining() < 2 {
		return 0, c.eof(2)
	}
	v, err := c.s.ReadU2be()
	if err != nil {
		return 0, c.eof(2)
	}
	c.pos += 2
	return v, nil
}

// ReadU32 reads a big-endian 32-bit integer.
func (c *Cursor) ReadU32() (uint32, error) {
	if c.Remaining() < 4 {
		return 0, c.eof(4)
	}
	v, err := c.s.ReadU4be()
	if err != nil {
		return 0, c.eof(4)
	}
	c.pos += 4
	return v, nil
}

// ReadU64 reads a big-endian 64-bit integer.
func (c *Cursor) ReadU64() (uint64, error) {
	if c.Remaining() < 8 {
		return 0, c.eof(8)
	}
	v, err := c.s.ReadU8be()
	if err != nil {
		return 0, c.eof(8)
	}
	c.pos += 8
	return v, nil
}

// ReadBytes reads exactly n bytes. The returned slice aliases the input
// buffer and must be treated as read-only.
func (c *Cursor) ReadBytes(n uint64) ([]byte, error) {
	if c.Remaining() < n {
		return nil, c.eof(n)
	}
	b, err := c.s.ReadBytes(int(n))
	if err != nil {
		return nil, c.eof(n)
	}
	c.pos += n
	return b, nil
}

// Peek returns the next n bytes without advancing.
func (c *Cursor) Peek(n uint64) ([]byte, error) {
	if c.Remaining() < n {
		return nil, c.eof(n)
	}
	return c.buf[c.pos : c.pos+n], nil
}

// Seek moves to a region-relative offset.
func (c *Cursor) Seek(off uint64) error {
	if off > uint64(len(c.buf)) {
		return Errorf(UnexpectedEOF, c.base+off, "seek to %d past region end %d", off, len(c.buf))
	}
	if _, err := c.s.Seek(int64(off), io.SeekStart); err != nil {
		return Errorf(UnexpectedEOF, c.base+off, "seek failed: %v", err)
	}
	c.pos = off
	return nil
}

// Skip advances past n bytes.
func (c *Cursor) Skip(n uint64) error {
	if c.Remaining() < n {
		return c.eof(n)
	}
	return c.Seek(c.pos + n)
}

// Sub carves a child region of the given length starting at the current
// position and advances past it. The child cannot read outside its bounds,
// which is what enforces declared-length accounting for nested structures.
func (c *Cursor) Sub(length uint64) (*Cursor, error) {
	if c.Remaining() < length {
		return nil, c.eof(length)
	}
	child := newRegion(c.buf[c.pos:c.pos+length], c.base+c.pos)
	if err := c.Seek(c.pos + length); err != nil {
		return nil, err
	}
	return child, nil
}
