package structural

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorReads(t *testing.T) {
	c := NewCursor([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09})

	v8, err := c.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x01), v8)

	v16, err := c.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0203), v16)

	v32, err := c.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x04050607), v32)

	assert.Equal(t, uint64(7), c.Pos())
	assert.Equal(t, uint64(2), c.Remaining())
}

func TestCursorEOF(t *testing.T) {
	c := NewCursor([]byte{0x01})

	_, err := c.ReadU16()
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, UnexpectedEOF, serr.Kind)
	assert.Equal(t, uint64(0), serr.Offset)

	// The failed read must not advance the cursor.
	v, err := c.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x01), v)
}

func TestCursorSubBounds(t *testing.T) {
	c := NewCursor([]byte{0xAA, 0xBB, 0xCC, 0xDD})
	_, err := c.ReadU8()
	require.NoError(t, err)

	sub, err := c.Sub(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sub.Base())
	assert.Equal(t, uint64(2), sub.Len())

	// The child cannot read past its own region even though the parent
	// buffer continues.
	_, err = sub.ReadU32()
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, UnexpectedEOF, serr.Kind)

	// The parent has advanced past the carved region.
	assert.Equal(t, uint64(3), c.Pos())
	v, err := c.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xDD), v)
}

func TestCursorSubReportsAbsoluteOffsets(t *testing.T) {
	c := NewCursor(make([]byte, 16))
	require.NoError(t, c.Skip(10))
	sub, err := c.Sub(4)
	require.NoError(t, err)

	_, err = sub.ReadU64()
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, uint64(10), serr.Offset)
}

func TestCursorSeekPastEnd(t *testing.T) {
	c := NewCursor([]byte{0x01, 0x02})
	err := c.Seek(3)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, UnexpectedEOF, serr.Kind)
}

func TestCursorPeekDoesNotAdvance(t *testing.T) {
	c := NewCursor([]byte{0x01, 0x02, 0x03})
	b, err := c.Peek(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, b)
	assert.Equal(t, uint64(0), c.Pos())
}

func TestErrorFormatting(t *testing.T) {
	err := MarkerErrorf(OutOfScopeMarker, MarkerPLT, 42, "marker not legal in main header")
	assert.EqualError(t, err,
		"j2kxml: out-of-scope marker: marker not legal in main header (marker PLT at offset 42)")

	berr := BoxErrorf(MissingMandatoryElement, TypeFileType, 12, "file-type box absent")
	assert.Contains(t, berr.Error(), `box "ftyp"`)

	var target *Error
	assert.True(t, errors.As(err, &target))
}
