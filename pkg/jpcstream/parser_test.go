package jpcstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j2kxml/j2kxml/pkg/structural"
	"github.com/j2kxml/j2kxml/testutil"
)

func parse(t *testing.T, data []byte) (*structural.Codestream, error) {
	t.Helper()
	return NewParser(nil).Parse(structural.NewCursor(data))
}

func requireStructural(t *testing.T, err error) *structural.Error {
	t.Helper()
	var serr *structural.Error
	require.ErrorAs(t, err, &serr)
	return serr
}

func TestMinimalCodestream(t *testing.T) {
	cs, err := parse(t, testutil.MinimalCodestream())
	require.NoError(t, err)

	codes := make([]uint16, len(cs.Markers))
	for i, m := range cs.Markers {
		codes[i] = m.Code
	}
	assert.Equal(t, []uint16{
		structural.MarkerSOC,
		structural.MarkerSIZ,
		structural.MarkerCOD,
		structural.MarkerSOT,
		structural.MarkerSOD,
		structural.MarkerEOC,
	}, codes)

	siz := cs.Markers[1].Fields.(*structural.SIZ)
	assert.Equal(t, uint32(64), siz.Xsiz)
	require.Len(t, siz.Components, 1)
	assert.Equal(t, 8, siz.Components[0].BitDepth())
	assert.False(t, siz.Components[0].Signed())
	assert.Equal(t, uint32(1), siz.NumTiles())

	sod := cs.Markers[4].Fields.(*structural.SOD)
	assert.Equal(t, uint64(0), sod.Data.Length)
	assert.Empty(t, sod.Packets)
}

func TestMarkerSpansTileScope(t *testing.T) {
	data := testutil.MinimalCodestream()
	cs, err := parse(t, data)
	require.NoError(t, err)

	// Markers tile the input in byte order with no gaps before the
	// tile-part data region.
	assert.Equal(t, uint64(0), cs.Markers[0].Span.Offset)
	for i := 1; i < len(cs.Markers); i++ {
		assert.Equal(t, cs.Markers[i-1].Span.End(), cs.Markers[i].Span.Offset,
			"marker %d does not start where %d ends", i, i-1)
	}
	last := cs.Markers[len(cs.Markers)-1]
	assert.Equal(t, uint64(len(data)), last.Span.End())
}

func TestSOCRequired(t *testing.T) {
	_, err := parse(t, []byte{0xFF, 0x51, 0x00, 0x04})
	serr := requireStructural(t, err)
	assert.Equal(t, structural.MissingMandatoryElement, serr.Kind)
	assert.Equal(t, structural.MarkerSOC, serr.Marker)
}

func TestSIZMustFollowSOC(t *testing.T) {
	b := testutil.Marker(nil, 0xFF4F)
	b = testutil.CODSegment(b, 0, 1, 0)
	_, err := parse(t, b)
	serr := requireStructural(t, err)
	assert.Equal(t, structural.StructuralInconsistency, serr.Kind)
	assert.Equal(t, uint64(2), serr.Offset)
}

func TestMissingEOC(t *testing.T) {
	data := testutil.MinimalCodestream()
	_, err := parse(t, data[:len(data)-2])
	serr := requireStructural(t, err)
	assert.Equal(t, structural.MissingMandatoryElement, serr.Kind)
	assert.Equal(t, structural.MarkerEOC, serr.Marker)
}

func TestMissingCOD(t *testing.T) {
	b := testutil.Marker(nil, 0xFF4F)
	b = testutil.SIZSegment(b, 64, 64, testutil.GreyComponent)
	b = testutil.TilePart(b, 0, 0, 1, nil)
	b = testutil.Marker(b, 0xFFD9)
	_, err := parse(t, b)
	serr := requireStructural(t, err)
	assert.Equal(t, structural.MissingMandatoryElement, serr.Kind)
	assert.Equal(t, structural.MarkerCOD, serr.Marker)
}

func TestQuantStepCountMismatch(t *testing.T) {
	b := testutil.Marker(nil, 0xFF4F)
	b = testutil.SIZSegment(b, 64, 64, testutil.GreyComponent)
	b = testutil.CODSegment(b, 2, 1, 0) // two decomposition levels
	qcdOffset := uint64(len(b))
	b = testutil.QCDSegmentSteps(b, 2, 4) // step count for one level
	b = testutil.TilePart(b, 0, 0, 1, nil)
	b = testutil.Marker(b, 0xFFD9)

	_, err := parse(t, b)
	serr := requireStructural(t, err)
	assert.Equal(t, structural.StructuralInconsistency, serr.Kind)
	assert.Equal(t, structural.MarkerQCD, serr.Marker)
	// The error cites the quantization segment, not the scope close.
	assert.Equal(t, qcdOffset, serr.Offset)
}

func TestQCDBeforeCODIsLegal(t *testing.T) {
	b := testutil.Marker(nil, 0xFF4F)
	b = testutil.SIZSegment(b, 64, 64, testutil.GreyComponent)
	b = testutil.QCDSegment(b, 2, 2)
	b = testutil.CODSegment(b, 2, 1, 0)
	b = testutil.TilePart(b, 0, 0, 1, nil)
	b = testutil.Marker(b, 0xFFD9)

	cs, err := parse(t, b)
	require.NoError(t, err)
	assert.Len(t, cs.Markers, 7)
}

func TestTilePartOnlyMarkerInMainHeader(t *testing.T) {
	b := testutil.Marker(nil, 0xFF4F)
	b = testutil.SIZSegment(b, 64, 64, testutil.GreyComponent)
	b = testutil.CODSegment(b, 0, 1, 0)
	pltOffset := uint64(len(b))
	b = testutil.Segment(b, 0xFF58, []byte{0})
	b = testutil.TilePart(b, 0, 0, 1, nil)
	b = testutil.Marker(b, 0xFFD9)

	_, err := parse(t, b)
	serr := requireStructural(t, err)
	assert.Equal(t, structural.OutOfScopeMarker, serr.Kind)
	assert.Equal(t, uint16(0xFF58), serr.Marker)
	assert.Equal(t, pltOffset, serr.Offset)
}

func TestMainOnlyMarkerInTilePartHeader(t *testing.T) {
	b := testutil.Marker(nil, 0xFF4F)
	b = testutil.SIZSegment(b, 64, 64, testutil.GreyComponent)
	b = testutil.CODSegment(b, 0, 1, 0)
	// Hand-built tile-part with a TLM segment in its header.
	tlm := testutil.Segment(nil, 0xFF55, []byte{0, 0x40, 0x00, 0x10})
	psot := uint32(12 + len(tlm) + 2)
	b = testutil.SOTSegment(b, 0, psot, 0, 1)
	b = append(b, tlm...)
	b = testutil.Marker(b, 0xFF93)
	b = testutil.Marker(b, 0xFFD9)

	_, err := parse(t, b)
	serr := requireStructural(t, err)
	assert.Equal(t, structural.OutOfScopeMarker, serr.Kind)
	assert.Equal(t, structural.MarkerTLM, serr.Marker)
}

func TestUnknownMarkerCapturedOpaque(t *testing.T) {
	b := testutil.Marker(nil, 0xFF4F)
	b = testutil.SIZSegment(b, 64, 64, testutil.GreyComponent)
	b = testutil.CODSegment(b, 0, 1, 0)
	b = testutil.Segment(b, 0xFF70, []byte{0xDE, 0xAD})
	b = testutil.TilePart(b, 0, 0, 1, nil)
	b = testutil.Marker(b, 0xFFD9)

	cs, err := parse(t, b)
	require.NoError(t, err)
	var found *structural.Marker
	for _, m := range cs.Markers {
		if m.Code == 0xFF70 {
			found = m
		}
	}
	require.NotNil(t, found)
	op := found.Fields.(*structural.OpaqueSegment)
	assert.Equal(t, []byte{0xDE, 0xAD}, op.Data)
}

func TestTilePartSequencing(t *testing.T) {
	b := testutil.Marker(nil, 0xFF4F)
	b = testutil.SIZSegment(b, 64, 64, testutil.GreyComponent)
	b = testutil.CODSegment(b, 0, 1, 0)
	b = testutil.TilePart(b, 0, 0, 2, nil)
	secondSOT := uint64(len(b))
	b = testutil.TilePart(b, 0, 0, 2, nil) // repeats TPsot 0, want 1
	b = testutil.Marker(b, 0xFFD9)

	_, err := parse(t, b)
	serr := requireStructural(t, err)
	assert.Equal(t, structural.StructuralInconsistency, serr.Kind)
	assert.Equal(t, structural.MarkerSOT, serr.Marker)
	assert.Equal(t, secondSOT, serr.Offset)
}

func TestMultipleTileParts(t *testing.T) {
	b := testutil.Marker(nil, 0xFF4F)
	b = testutil.SIZSegment(b, 64, 64, testutil.GreyComponent)
	b = testutil.CODSegment(b, 0, 1, 0)
	b = testutil.TilePart(b, 0, 0, 2, []byte{0x00, 0x01})
	b = testutil.TilePart(b, 0, 1, 2, []byte{0x02})
	b = testutil.Marker(b, 0xFFD9)

	cs, err := parse(t, b)
	require.NoError(t, err)

	var sots []*structural.SOT
	for _, m := range cs.Markers {
		if m.Code == structural.MarkerSOT {
			sots = append(sots, m.Fields.(*structural.SOT))
		}
	}
	require.Len(t, sots, 2)
	assert.Equal(t, uint8(0), sots[0].TilePartIndex)
	assert.Equal(t, uint8(1), sots[1].TilePartIndex)
}

func TestTileIndexOutsideGrid(t *testing.T) {
	b := testutil.Marker(nil, 0xFF4F)
	b = testutil.SIZSegment(b, 64, 64, testutil.GreyComponent)
	b = testutil.CODSegment(b, 0, 1, 0)
	b = testutil.TilePart(b, 5, 0, 1, nil) // single-tile grid
	b = testutil.Marker(b, 0xFFD9)

	_, err := parse(t, b)
	serr := requireStructural(t, err)
	assert.Equal(t, structural.StructuralInconsistency, serr.Kind)
	assert.Equal(t, structural.MarkerSOT, serr.Marker)
}

func TestPsotZeroRunsToEOC(t *testing.T) {
	b := testutil.Marker(nil, 0xFF4F)
	b = testutil.SIZSegment(b, 64, 64, testutil.GreyComponent)
	b = testutil.CODSegment(b, 0, 1, 0)
	b = testutil.SOTSegment(b, 0, 0, 0, 1)
	b = testutil.Marker(b, 0xFF93)
	b = append(b, 0x00, 0x01, 0x02)
	b = testutil.Marker(b, 0xFFD9)

	cs, err := parse(t, b)
	require.NoError(t, err)
	sod := cs.Markers[len(cs.Markers)-2].Fields.(*structural.SOD)
	assert.Equal(t, uint64(3), sod.Data.Length)
}

func TestPsotOverrun(t *testing.T) {
	b := testutil.Marker(nil, 0xFF4F)
	b = testutil.SIZSegment(b, 64, 64, testutil.GreyComponent)
	b = testutil.CODSegment(b, 0, 1, 0)
	b = testutil.SOTSegment(b, 0, 10000, 0, 1)
	b = testutil.Marker(b, 0xFF93)
	b = testutil.Marker(b, 0xFFD9)

	_, err := parse(t, b)
	serr := requireStructural(t, err)
	assert.Equal(t, structural.StructuralInconsistency, serr.Kind)
	assert.Equal(t, structural.MarkerSOT, serr.Marker)
}

func TestTrailingBytesAfterEOC(t *testing.T) {
	data := append(testutil.MinimalCodestream(), 0x00)
	_, err := parse(t, data)
	serr := requireStructural(t, err)
	assert.Equal(t, structural.StructuralInconsistency, serr.Kind)
}

func TestEveryTruncationFails(t *testing.T) {
	data := testutil.MinimalCodestream()
	for n := 0; n < len(data); n++ {
		_, err := parse(t, data[:n])
		var serr *structural.Error
		require.ErrorAs(t, err, &serr, "prefix of %d bytes must not parse", n)
	}
}

func TestCOMLatinText(t *testing.T) {
	b := testutil.Marker(nil, 0xFF4F)
	b = testutil.SIZSegment(b, 64, 64, testutil.GreyComponent)
	b = testutil.CODSegment(b, 0, 1, 0)
	b = testutil.COMSegment(b, "Created by test")
	b = testutil.TilePart(b, 0, 0, 1, nil)
	b = testutil.Marker(b, 0xFFD9)

	cs, err := parse(t, b)
	require.NoError(t, err)
	var com *structural.COM
	for _, m := range cs.Markers {
		if m.Code == structural.MarkerCOM {
			com = m.Fields.(*structural.COM)
		}
	}
	require.NotNil(t, com)
	assert.Equal(t, uint16(1), com.Registration)
	assert.Equal(t, "Created by test", com.Text)
}

func TestSegmentLengthDisagreesWithFields(t *testing.T) {
	b := testutil.Marker(nil, 0xFF4F)
	// SIZ declaring one component but sized for two.
	p := testutil.BE16(nil, 0)
	for i := 0; i < 8; i++ {
		p = testutil.BE32(p, 64)
	}
	p = testutil.BE16(p, 1)
	p = append(p, 7, 1, 1)
	p = append(p, 7, 1, 1) // extra component record
	b = testutil.Segment(b, 0xFF51, p)

	_, err := parse(t, b)
	serr := requireStructural(t, err)
	assert.Equal(t, structural.StructuralInconsistency, serr.Kind)
	assert.Equal(t, structural.MarkerSIZ, serr.Marker)
}

func TestDuplicateMainHeaderSegments(t *testing.T) {
	base := func() []byte {
		b := testutil.Marker(nil, 0xFF4F)
		b = testutil.SIZSegment(b, 64, 64, testutil.GreyComponent)
		return b
	}

	t.Run("siz", func(t *testing.T) {
		b := base()
		b = testutil.SIZSegment(b, 64, 64, testutil.GreyComponent)
		_, err := parse(t, b)
		serr := requireStructural(t, err)
		assert.Equal(t, structural.StructuralInconsistency, serr.Kind)
		assert.Equal(t, structural.MarkerSIZ, serr.Marker)
	})

	t.Run("cod", func(t *testing.T) {
		b := base()
		b = testutil.CODSegment(b, 0, 1, 0)
		b = testutil.CODSegment(b, 0, 1, 0)
		_, err := parse(t, b)
		serr := requireStructural(t, err)
		assert.Equal(t, structural.StructuralInconsistency, serr.Kind)
		assert.Equal(t, structural.MarkerCOD, serr.Marker)
	})

	t.Run("qcd", func(t *testing.T) {
		b := base()
		b = testutil.CODSegment(b, 0, 1, 0)
		b = testutil.QCDSegment(b, 2, 0)
		b = testutil.QCDSegment(b, 2, 0)
		_, err := parse(t, b)
		serr := requireStructural(t, err)
		assert.Equal(t, structural.StructuralInconsistency, serr.Kind)
		assert.Equal(t, structural.MarkerQCD, serr.Marker)
	})
}

func TestSOPPacketSpans(t *testing.T) {
	b := testutil.Marker(nil, 0xFF4F)
	b = testutil.SIZSegment(b, 64, 64, testutil.GreyComponent)
	// COD with Scod bit 1 set: SOP markers in use.
	b = testutil.Segment(b, 0xFF52, []byte{0x02, 0, 0x00, 0x01, 0, 0, 4, 4, 0, 1})
	data := []byte{
		0xFF, 0x91, 0x00, 0x04, 0x00, 0x00, 0xAA,
		0xFF, 0x91, 0x00, 0x04, 0x00, 0x01, 0xBB, 0xCC,
	}
	b = testutil.TilePart(b, 0, 0, 1, data)
	b = testutil.Marker(b, 0xFFD9)

	cs, err := parse(t, b)
	require.NoError(t, err)
	var sod *structural.SOD
	for _, m := range cs.Markers {
		if m.Code == structural.MarkerSOD {
			sod = m.Fields.(*structural.SOD)
		}
	}
	require.NotNil(t, sod)
	require.Len(t, sod.Packets, 2)
	assert.Equal(t, uint16(0), sod.Packets[0].Sequence)
	assert.Equal(t, uint16(1), sod.Packets[1].Sequence)
	assert.Equal(t, uint64(7), sod.Packets[0].Span.Length)
	assert.Equal(t, uint64(8), sod.Packets[1].Span.Length)
	assert.Equal(t, sod.Data.Offset, sod.Packets[0].Span.Offset)
	assert.Equal(t, sod.Packets[0].Span.End(), sod.Packets[1].Span.Offset)
}

func TestPLTPacketLengths(t *testing.T) {
	b := testutil.Marker(nil, 0xFF4F)
	b = testutil.SIZSegment(b, 64, 64, testutil.GreyComponent)
	b = testutil.CODSegment(b, 0, 1, 0)
	// Tile-part header carrying a PLT: Zplt 0, lengths 5 and 300
	// (300 = 0x82 0x2C in the 7-bit continuation encoding).
	plt := testutil.Segment(nil, 0xFF58, []byte{0, 0x05, 0x82, 0x2C})
	psot := uint32(12 + len(plt) + 2)
	b = testutil.SOTSegment(b, 0, psot, 0, 1)
	b = append(b, plt...)
	b = testutil.Marker(b, 0xFF93)
	b = testutil.Marker(b, 0xFFD9)

	cs, err := parse(t, b)
	require.NoError(t, err)
	var found *structural.PLT
	for _, m := range cs.Markers {
		if m.Code == structural.MarkerPLT {
			found = m.Fields.(*structural.PLT)
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, []uint32{5, 300}, found.PacketLengths)
}
