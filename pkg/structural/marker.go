package structural

import "fmt"

// JPEG 2000 marker codes, ISO/IEC 15444-1 Table A.1.
const (
	MarkerSOC uint16 = 0xFF4F // Start of codestream
	MarkerSOT uint16 = 0xFF90 // Start of tile-part
	MarkerSOD uint16 = 0xFF93 // Start of data
	MarkerEOC uint16 = 0xFFD9 // End of codestream
	MarkerSIZ uint16 = 0xFF51 // Image and tile size
	MarkerCOD uint16 = 0xFF52 // Coding style default
	MarkerCOC uint16 = 0xFF53 // Coding style component
	MarkerRGN uint16 = 0xFF5E // Region of interest
	MarkerQCD uint16 = 0xFF5C // Quantization default
	MarkerQCC uint16 = 0xFF5D // Quantization component
	MarkerPOC uint16 = 0xFF5F // Progression order change
	MarkerTLM uint16 = 0xFF55 // Tile-part lengths
	MarkerPLM uint16 = 0xFF57 // Packet length, main header
	MarkerPLT uint16 = 0xFF58 // Packet length, tile-part header
	MarkerPPM uint16 = 0xFF60 // Packed packet headers, main header
	MarkerPPT uint16 = 0xFF61 // Packed packet headers, tile-part header
	MarkerSOP uint16 = 0xFF91 // Start of packet
	MarkerEPH uint16 = 0xFF92 // End of packet header
	MarkerCRG uint16 = 0xFF63 // Component registration
	MarkerCOM uint16 = 0xFF64 // Comment
)

var markerNames = map[uint16]string{
	MarkerSOC: "SOC",
	MarkerSOT: "SOT",
	MarkerSOD: "SOD",
	MarkerEOC: "EOC",
	MarkerSIZ: "SIZ",
	MarkerCOD: "COD",
	MarkerCOC: "COC",
	MarkerRGN: "RGN",
	MarkerQCD: "QCD",
	MarkerQCC: "QCC",
	MarkerPOC: "POC",
	MarkerTLM: "TLM",
	MarkerPLM: "PLM",
	MarkerPLT: "PLT",
	MarkerPPM: "PPM",
	MarkerPPT: "PPT",
	MarkerSOP: "SOP",
	MarkerEPH: "EPH",
	MarkerCRG: "CRG",
	MarkerCOM: "COM",
}

// MarkerName returns the standard mnemonic for a marker code, or the hex
// form for codes outside the known set.
func MarkerName(code uint16) string {
	if name, ok := markerNames[code]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", code)
}

// IsDelimiter reports whether a marker code stands alone with no segment
// length: SOC, SOD, EOC, EPH, and the reserved delimiter range 0xFF30-0xFF3F.
func IsDelimiter(code uint16) bool {
	switch code {
	case MarkerSOC, MarkerSOD, MarkerEOC, MarkerEPH:
		return true
	}
	return code >= 0xFF30 && code <= 0xFF3F
}

// Marker is one node of a codestream marker sequence. Markers with a
// declared segment satisfy SegmentLength == 2 + byte count of their decoded
// fields, and markers are totally ordered by byte position within their
// enclosing scope.
type Marker struct {
	Code uint16

	// HasSegment is false for delimiter markers, which carry no length.
	HasSegment bool
	// SegmentLength is the declared segment length including the two
	// length bytes themselves. Zero when HasSegment is false.
	SegmentLength uint16

	// Span covers the marker code and, when present, its whole segment.
	Span Span

	Fields MarkerFields
}

// MarkerFields is the closed union of decoded marker segments. Delimiter
// markers carry nil fields; unknown marker codes with a declared length
// carry OpaqueSegment so vendor extensions round-trip structurally.
type MarkerFields interface {
	markerFields()
}

// OpaqueSegment holds the raw segment bytes of an unrecognized marker.
type OpaqueSegment struct {
	Data []byte
}

// SIZComponent is one component record from the SIZ marker.
type SIZComponent struct {
	// Ssiz holds precision-1 in bits 0-6 and the sign flag in bit 7.
	Ssiz  uint8
	XRsiz uint8
	YRsiz uint8
}

// BitDepth returns the component sample precision.
func (c SIZComponent) BitDepth() int { return int(c.Ssiz&0x7F) + 1 }

// Signed reports whether samples of the component are signed.
func (c SIZComponent) Signed() bool { return c.Ssiz&0x80 != 0 }

// SIZ is the image-and-tile-size segment (A.5.1).
type SIZ struct {
	Rsiz       uint16
	Xsiz       uint32
	Ysiz       uint32
	XOsiz      uint32
	YOsiz      uint32
	XTsiz      uint32
	YTsiz      uint32
	XTOsiz     uint32
	YTOsiz     uint32
	Components []SIZComponent
}

// NumXTiles returns the tile grid width per equation B-5.
func (s *SIZ) NumXTiles() uint32 {
	if s.XTsiz == 0 {
		return 0
	}
	return ceilDiv(s.Xsiz-s.XTOsiz, s.XTsiz)
}

// NumYTiles returns the tile grid height per equation B-5.
func (s *SIZ) NumYTiles() uint32 {
	if s.YTsiz == 0 {
		return 0
	}
	return ceilDiv(s.Ysiz-s.YTOsiz, s.YTsiz)
}

// NumTiles returns the total tile count of the grid.
func (s *SIZ) NumTiles() uint32 { return s.NumXTiles() * s.NumYTiles() }

func ceilDiv(a, b uint32) uint32 { return (a + b - 1) / b }

// Precinct is one precinct size exponent pair from a coding style segment.
type Precinct struct {
	PPx uint8
	PPy uint8
}

// CodingStyle is the SPcod/SPcoc parameter block shared by COD and COC.
type CodingStyle struct {
	DecompositionLevels uint8
	// CodeBlockWidth and CodeBlockHeight are stored as the raw exponent
	// offsets: the real dimension is 2^(value+2).
	CodeBlockWidth  uint8
	CodeBlockHeight uint8
	CodeBlockStyle  uint8
	// Transformation: 0 = 9-7 irreversible, 1 = 5-3 reversible.
	Transformation uint8
	// Precincts has one entry per resolution level when the coding style
	// declares user-defined precincts; nil means the default maximal size.
	Precincts []Precinct
}

// COD is the coding-style-default segment (A.6.1).
type COD struct {
	Scod             uint8
	ProgressionOrder uint8
	NumLayers        uint16
	// MCT: 0 = none, 1 = component transform used.
	MCT   uint8
	Style CodingStyle
}

// UsesSOP reports whether Scod declares SOP markers in the bitstream.
func (c *COD) UsesSOP() bool { return c.Scod&0x02 != 0 }

// UsesEPH reports whether Scod declares EPH markers in the bitstream.
func (c *COD) UsesEPH() bool { return c.Scod&0x04 != 0 }

// HasPrecincts reports whether Scod declares user-defined precinct sizes.
func (c *COD) HasPrecincts() bool { return c.Scod&0x01 != 0 }

// COC is the coding-style-component segment (A.6.2).
type COC struct {
	Component uint16
	Scoc      uint8
	Style     CodingStyle
}

// QuantStep is one step size record from a quantization segment. For
// quantization style 0 only the exponent is meaningful.
type QuantStep struct {
	Exponent uint8
	Mantissa uint16
}

// QCD is the quantization-default segment (A.6.4).
type QCD struct {
	Sqcd  uint8
	Steps []QuantStep
}

// QuantizationType returns the style bits: 0 = none, 1 = scalar derived,
// 2 = scalar expounded.
func (q *QCD) QuantizationType() int { return int(q.Sqcd & 0x1F) }

// GuardBits returns the declared guard-bit count.
func (q *QCD) GuardBits() int { return int(q.Sqcd >> 5) }

// QCC is the quantization-component segment (A.6.5).
type QCC struct {
	Component uint16
	Sqcc      uint8
	Steps     []QuantStep
}

// QuantizationType returns the style bits of Sqcc.
func (q *QCC) QuantizationType() int { return int(q.Sqcc & 0x1F) }

// GuardBits returns the declared guard-bit count.
func (q *QCC) GuardBits() int { return int(q.Sqcc >> 5) }

// RGN is the region-of-interest segment (A.6.3).
type RGN struct {
	Component uint16
	Style     uint8
	Parameter uint8
}

// ProgressionChange is one entry of a POC segment.
type ProgressionChange struct {
	RSpoc  uint8
	CSpoc  uint16
	LYEpoc uint16
	REpoc  uint8
	CEpoc  uint16
	Ppoc   uint8
}

// POC is the progression-order-change segment (A.6.6).
type POC struct {
	Changes []ProgressionChange
}

// TLMEntry is one tile-part length record from a TLM segment.
type TLMEntry struct {
	// TileIndex is -1 when the segment's Stlm declares no tile indices
	// and tile-parts are in codestream order.
	TileIndex int32
	Length    uint32
}

// TLM is the tile-part-lengths segment (A.7.1).
type TLM struct {
	Index   uint8
	Stlm    uint8
	Entries []TLMEntry
}

// PLM is the main-header packet-length segment (A.7.2), kept raw: its
// content is split across tile-parts and only meaningful reassembled.
type PLM struct {
	Index uint8
	Data  []byte
}

// PLT is the tile-part packet-length segment (A.7.3).
type PLT struct {
	Index uint8
	// PacketLengths is decoded from the 7-bit-per-byte variable length
	// encoding of Iplt.
	PacketLengths []uint32
}

// PPM is the main-header packed-packet-headers segment (A.7.4), kept raw.
type PPM struct {
	Index uint8
	Data  []byte
}

// PPT is the tile-part packed-packet-headers segment (A.7.5), kept raw.
type PPT struct {
	Index uint8
	Data  []byte
}

// CRGOffset is one component registration offset pair.
type CRGOffset struct {
	X uint16
	Y uint16
}

// CRG is the component-registration segment (A.9.1).
type CRG struct {
	Offsets []CRGOffset
}

// COM is the comment segment (A.9.2).
type COM struct {
	// Registration: 0 = binary, 1 = ISO/IEC 8859-15 text.
	Registration uint16
	Data         []byte
	// Text is the decoded comment when Registration declares Latin text.
	Text string
}

// SOT is the start-of-tile-part segment (A.4.2).
type SOT struct {
	TileIndex uint16
	// TilePartLength is Psot: the whole tile-part length from the first
	// byte of the SOT marker. Zero means the tile-part runs to EOC and is
	// legal only for the last tile-part.
	TilePartLength uint32
	TilePartIndex  uint8
	TilePartCount  uint8
}

// Packet locates one packet inside tile-part data. Sequence carries the
// Nsop counter when the packet was delimited by an SOP marker.
type Packet struct {
	Span        Span
	Sequence    uint16
	HasSequence bool
}

// SOD carries the tile-part data region that follows the start-of-data
// marker. The bitstream bytes are never decoded; when the governing coding
// style declares SOP delimiters the individual packet spans are reported.
type SOD struct {
	Data    Span
	Packets []Packet
}

func (*OpaqueSegment) markerFields() {}
func (*SIZ) markerFields()           {}
func (*COD) markerFields()           {}
func (*COC) markerFields()           {}
func (*QCD) markerFields()           {}
func (*QCC) markerFields()           {}
func (*RGN) markerFields()           {}
func (*POC) markerFields()           {}
func (*TLM) markerFields()           {}
func (*PLM) markerFields()           {}
func (*PLT) markerFields()           {}
func (*PPM) markerFields()           {}
func (*PPT) markerFields()           {}
func (*CRG) markerFields()           {}
func (*COM) markerFields()           {}
func (*SOT) markerFields()           {}
func (*SOD) markerFields()           {}
