// Package testutil builds synthetic JPEG 2000 byte sequences for tests.
// Builders produce structurally valid boxes and marker segments from typed
// arguments so tests state intent instead of raw hex.
package testutil

import "encoding/binary"

// BE16 appends a big-endian uint16.
func BE16(b []byte, v uint16) []byte { return binary.BigEndian.AppendUint16(b, v) }

// BE32 appends a big-endian uint32.
func BE32(b []byte, v uint32) []byte { return binary.BigEndian.AppendUint32(b, v) }

// BE64 appends a big-endian uint64.
func BE64(b []byte, v uint64) []byte { return binary.BigEndian.AppendUint64(b, v) }

// Box builds a box with the standard 8-byte header. typ must be exactly
// four characters.
func Box(typ string, payload []byte) []byte {
	if len(typ) != 4 {
		panic("box type must be four characters")
	}
	b := BE32(nil, uint32(8+len(payload)))
	b = append(b, typ...)
	return append(b, payload...)
}

// BoxToEnd builds a box with lbox == 0, extending to the end of its scope.
func BoxToEnd(typ string, payload []byte) []byte {
	if len(typ) != 4 {
		panic("box type must be four characters")
	}
	b := BE32(nil, 0)
	b = append(b, typ...)
	return append(b, payload...)
}

// BoxExtended builds a box with lbox == 1 and a 64-bit XLBox length.
func BoxExtended(typ string, payload []byte) []byte {
	if len(typ) != 4 {
		panic("box type must be four characters")
	}
	b := BE32(nil, 1)
	b = append(b, typ...)
	b = BE64(b, uint64(16+len(payload)))
	return append(b, payload...)
}

// SignatureBox builds the fixed 12-byte JP2 signature box.
func SignatureBox() []byte {
	return Box("jP\x20\x20", []byte{0x0D, 0x0A, 0x87, 0x0A})
}

// FileTypeBox builds a ftyp box with the given brand and compatibility list.
func FileTypeBox(brand string, compat ...string) []byte {
	p := append([]byte(nil), brand...)
	p = BE32(p, 0)
	for _, c := range compat {
		p = append(p, c...)
	}
	return Box("ftyp", p)
}

// ImageHeaderBox builds an ihdr box. bpc is the raw encoded byte:
// depth-1 in bits 0-6, sign in bit 7, 0xFF for per-component depths.
func ImageHeaderBox(height, width uint32, components uint16, bpc uint8) []byte {
	p := BE32(nil, height)
	p = BE32(p, width)
	p = BE16(p, components)
	p = append(p, bpc, 7, 0, 0)
	return Box("ihdr", p)
}

// ColourSpecificationBox builds an enumerated colr box.
func ColourSpecificationBox(enumCS uint32) []byte {
	p := []byte{1, 0, 0}
	p = BE32(p, enumCS)
	return Box("colr", p)
}

// HeaderBox wraps child boxes in a jp2h superbox.
func HeaderBox(children ...[]byte) []byte {
	var p []byte
	for _, c := range children {
		p = append(p, c...)
	}
	return Box("jp2h", p)
}

// CodestreamBox wraps codestream bytes in a jp2c box.
func CodestreamBox(codestream []byte) []byte {
	return Box("jp2c", codestream)
}

// Marker appends a bare delimiter marker.
func Marker(b []byte, code uint16) []byte { return BE16(b, code) }

// Segment appends a marker with a segment: code, declared length covering
// the two length bytes plus the payload, then the payload.
func Segment(b []byte, code uint16, payload []byte) []byte {
	b = BE16(b, code)
	b = BE16(b, uint16(2+len(payload)))
	return append(b, payload...)
}

// SIZComponent is one component record for SIZSegment.
type SIZComponent struct {
	Ssiz  uint8
	XRsiz uint8
	YRsiz uint8
}

// SIZSegment appends a SIZ marker segment for an untiled image of the
// given size.
func SIZSegment(b []byte, width, height uint32, components ...SIZComponent) []byte {
	p := BE16(nil, 0) // Rsiz
	p = BE32(p, width)
	p = BE32(p, height)
	p = BE32(p, 0)
	p = BE32(p, 0)
	p = BE32(p, width)
	p = BE32(p, height)
	p = BE32(p, 0)
	p = BE32(p, 0)
	p = BE16(p, uint16(len(components)))
	for _, c := range components {
		p = append(p, c.Ssiz, c.XRsiz, c.YRsiz)
	}
	return Segment(b, 0xFF51, p)
}

// GreyComponent is an 8-bit unsigned component at full resolution.
var GreyComponent = SIZComponent{Ssiz: 7, XRsiz: 1, YRsiz: 1}

// CODSegment appends a COD marker segment without precinct sizes.
func CODSegment(b []byte, levels uint8, layers uint16, progression uint8) []byte {
	p := []byte{0} // Scod
	p = append(p, progression)
	p = BE16(p, layers)
	p = append(p, 0)                  // MCT
	p = append(p, levels, 4, 4, 0, 1) // SPcod: levels, 64x64 blocks, 5-3
	return Segment(b, 0xFF52, p)
}

// QCDSegment appends a QCD marker segment with no quantization and one
// reversible step per sub-band for the given decomposition level count.
func QCDSegment(b []byte, guardBits uint8, levels int) []byte {
	p := []byte{guardBits << 5} // Sqcd: style 0
	for i := 0; i < 3*levels+1; i++ {
		p = append(p, 8<<3)
	}
	return Segment(b, 0xFF5C, p)
}

// QCDSegmentSteps appends a no-quantization QCD with an explicit step
// count, for constructing step/level mismatches.
func QCDSegmentSteps(b []byte, guardBits uint8, steps int) []byte {
	p := []byte{guardBits << 5}
	for i := 0; i < steps; i++ {
		p = append(p, 8<<3)
	}
	return Segment(b, 0xFF5C, p)
}

// SOTSegment appends a SOT marker segment. psot covers the whole tile-part
// from the SOT marker's first byte; zero means to end of codestream.
func SOTSegment(b []byte, tile uint16, psot uint32, part, count uint8) []byte {
	p := BE16(nil, tile)
	p = BE32(p, psot)
	p = append(p, part, count)
	return Segment(b, 0xFF90, p)
}

// COMSegment appends a Latin-text COM marker segment.
func COMSegment(b []byte, text string) []byte {
	p := BE16(nil, 1)
	p = append(p, text...)
	return Segment(b, 0xFF64, p)
}

// TilePart appends a complete single tile-part: SOT, SOD, and the data
// bytes, with Psot computed to cover them exactly.
func TilePart(b []byte, tile uint16, part, count uint8, data []byte) []byte {
	psot := uint32(12 + 2 + len(data))
	b = SOTSegment(b, tile, psot, part, count)
	b = Marker(b, 0xFF93)
	return append(b, data...)
}

// MinimalCodestream builds the smallest accepted codestream: SOC, SIZ with
// one greyscale component, COD, one empty tile-part, EOC.
func MinimalCodestream() []byte {
	b := Marker(nil, 0xFF4F)
	b = SIZSegment(b, 64, 64, GreyComponent)
	b = CODSegment(b, 0, 1, 0)
	b = TilePart(b, 0, 0, 1, nil)
	return Marker(b, 0xFFD9)
}

// MinimalJP2 wraps MinimalCodestream in the smallest conforming JP2 file.
func MinimalJP2() []byte {
	var b []byte
	b = append(b, SignatureBox()...)
	b = append(b, FileTypeBox("jp2 ", "jp2 ")...)
	b = append(b, HeaderBox(
		ImageHeaderBox(64, 64, 1, 7),
		ColourSpecificationBox(17),
	)...)
	return append(b, CodestreamBox(MinimalCodestream())...)
}
