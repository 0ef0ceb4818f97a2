package structural

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BoxType is a 4-character box type code from ISO/IEC 15444-1 Annex I.
type BoxType [4]byte

// MakeBoxType builds a BoxType from a 4-character string.
func MakeBoxType(s string) BoxType {
	var t BoxType
	copy(t[:], s)
	return t
}

// BoxTypeFromU32 builds a BoxType from its big-endian integer form.
func BoxTypeFromU32(v uint32) BoxType {
	var t BoxType
	binary.BigEndian.PutUint32(t[:], v)
	return t
}

// U32 returns the big-endian integer form of the type code.
func (t BoxType) U32() uint32 {
	return binary.BigEndian.Uint32(t[:])
}

// String renders the type code, hex-escaping bytes outside printable ASCII.
func (t BoxType) String() string {
	out := make([]byte, 0, 4)
	for _, b := range t {
		if b >= 0x20 && b < 0x7F {
			out = append(out, b)
		} else {
			out = append(out, fmt.Sprintf("\\x%02X", b)...)
		}
	}
	return string(out)
}

// Box types defined by ISO/IEC 15444-1 Annex I.
var (
	TypeSignature            = MakeBoxType("jP\x20\x20")
	TypeFileType             = MakeBoxType("ftyp")
	TypeJP2Header            = MakeBoxType("jp2h")
	TypeImageHeader          = MakeBoxType("ihdr")
	TypeBitsPerComponent     = MakeBoxType("bpcc")
	TypeColourSpecification  = MakeBoxType("colr")
	TypePalette              = MakeBoxType("pclr")
	TypeComponentMapping     = MakeBoxType("cmap")
	TypeChannelDefinition    = MakeBoxType("cdef")
	TypeResolution           = MakeBoxType("res ")
	TypeCaptureResolution    = MakeBoxType("resc")
	TypeDisplayResolution    = MakeBoxType("resd")
	TypeCodestream           = MakeBoxType("jp2c")
	TypeIntellectualProperty = MakeBoxType("jp2i")
	TypeXML                  = MakeBoxType("xml ")
	TypeUUID                 = MakeBoxType("uuid")
	TypeUUIDInfo             = MakeBoxType("uinf")
	TypeUUIDList             = MakeBoxType("ulst")
	TypeURL                  = MakeBoxType("url ")
)

// Box is one node of the JP2 container tree. Its declared length, when not
// the "extends to end of scope" sentinel, exactly bounds the payload
// including the header; a superbox's children exactly tile its payload
// region with no gaps or overlaps.
type Box struct {
	Type BoxType

	// Length is the resolved total box length including the header.
	Length uint64
	// HeaderLength is 8, or 16 when the XLBox extended length was present.
	HeaderLength uint8
	// ToEnd records that LBox was 0 and the box ran to the end of its
	// enclosing scope.
	ToEnd bool

	Span    Span
	Payload BoxPayload
}

// PayloadSpan returns the span of the box contents after the header.
func (b *Box) PayloadSpan() Span {
	return Span{
		Offset: b.Span.Offset + uint64(b.HeaderLength),
		Length: b.Span.Length - uint64(b.HeaderLength),
	}
}

// BoxPayload is the closed union of decoded box contents. Known superboxes
// carry SuperBox, known leaf layouts carry their typed record, and
// unrecognized type codes carry Opaque so extensions round-trip structurally.
type BoxPayload interface {
	boxPayload()
}

// SuperBox holds the ordered children of a superbox (jp2h, res, uinf).
type SuperBox struct {
	Children []*Box
}

// Opaque holds the raw payload of a box the parser does not decode.
type Opaque struct {
	Data []byte
}

// Signature is the jP\040\040 box contents (I.5.1). The magic is fixed:
// <CR><LF><0x87><LF>.
type Signature struct {
	Magic [4]byte
}

// SignatureMagic is the required signature box content (0x0D0A870A).
var SignatureMagic = [4]byte{0x0D, 0x0A, 0x87, 0x0A}

// FileType is the ftyp box contents (I.5.2).
type FileType struct {
	Brand         string
	MinorVersion  uint32
	Compatibility []string
}

// CompatibleWith reports whether the brand or compatibility list carries the
// given reader requirement, e.g. "jp2 ".
func (f *FileType) CompatibleWith(brand string) bool {
	if f.Brand == brand {
		return true
	}
	for _, c := range f.Compatibility {
		if c == brand {
			return true
		}
	}
	return false
}

// ImageHeader is the ihdr box contents (I.5.3.1).
type ImageHeader struct {
	Height        uint32
	Width         uint32
	NumComponents uint16
	// BPC holds bits-per-component minus one in bits 0-6 and the sign flag
	// in bit 7; 0xFF means depths vary and a bpcc box carries them.
	BPC                  uint8
	Compression          uint8
	ColourspaceUnknown   uint8
	IntellectualProperty uint8
}

// BitDepth returns the component bit depth, or -1 when depths vary per
// component (BPC == 0xFF).
func (h *ImageHeader) BitDepth() int {
	if h.BPC == 0xFF {
		return -1
	}
	return int(h.BPC&0x7F) + 1
}

// Signed reports whether component samples are signed.
func (h *ImageHeader) Signed() bool {
	return h.BPC != 0xFF && h.BPC&0x80 != 0
}

// BitsPerComponent is the bpcc box contents (I.5.3.2): one raw depth byte
// per component, same encoding as ImageHeader.BPC.
type BitsPerComponent struct {
	Depths []uint8
}

// ColourSpecification is the colr box contents (I.5.3.3).
type ColourSpecification struct {
	// Method: 1 = enumerated colourspace, 2 = restricted ICC profile.
	Method        uint8
	Precedence    uint8
	Approximation uint8
	// EnumCS is valid only when Method == 1.
	EnumCS uint32
	// ICCProfile is set only when Method == 2.
	ICCProfile []byte
}

// Palette is the pclr box contents (I.5.3.4).
type Palette struct {
	// Depths holds the raw Bi byte per column: depth-1 in bits 0-6, sign
	// in bit 7.
	Depths []uint8
	// Entries is indexed [entry][column].
	Entries [][]uint64
}

// ComponentMap is one CMP/MTYP/PCOL triple from the cmap box.
type ComponentMap struct {
	Component     uint16
	MappingType   uint8
	PaletteColumn uint8
}

// ComponentMapping is the cmap box contents (I.5.3.5).
type ComponentMapping struct {
	Mappings []ComponentMap
}

// ChannelDef is one Cn/Typ/Asoc triple from the cdef box.
type ChannelDef struct {
	Channel     uint16
	Typ         uint16
	Association uint16
}

// ChannelDefinition is the cdef box contents (I.5.3.6).
type ChannelDefinition struct {
	Channels []ChannelDef
}

// Resolution is the contents of a resc or resd box (I.5.3.7). The box type
// on the containing node distinguishes capture from default display
// resolution.
type Resolution struct {
	VerticalNumerator     uint16
	VerticalDenominator   uint16
	HorizontalNumerator   uint16
	HorizontalDenominator uint16
	VerticalExponent      int8
	HorizontalExponent    int8
}

// VerticalPPM returns the vertical resolution in grid points per meter.
func (r *Resolution) VerticalPPM() float64 {
	return float64(r.VerticalNumerator) / float64(r.VerticalDenominator) *
		math.Pow10(int(r.VerticalExponent))
}

// HorizontalPPM returns the horizontal resolution in grid points per meter.
func (r *Resolution) HorizontalPPM() float64 {
	return float64(r.HorizontalNumerator) / float64(r.HorizontalDenominator) *
		math.Pow10(int(r.HorizontalExponent))
}

// XMLText is the xml\040 box contents: well-formed vendor XML.
type XMLText struct {
	Text string
}

// IntellectualPropertyData is the jp2i box contents, carried raw.
type IntellectualPropertyData struct {
	Data []byte
}

// UUID is the uuid box contents: a 16-byte identifier and vendor data.
type UUID struct {
	ID   [16]byte
	Data []byte
}

// UUIDList is the ulst box contents from a uinf superbox.
type UUIDList struct {
	IDs [][16]byte
}

// DataEntryURL is the url\040 box contents from a uinf superbox.
type DataEntryURL struct {
	Version  uint8
	Flags    [3]byte
	Location string
}

// EmbeddedCodestream is the jp2c box contents: the parsed marker sequence of
// the contiguous codestream.
type EmbeddedCodestream struct {
	Codestream *Codestream
}

func (*SuperBox) boxPayload()                 {}
func (*Opaque) boxPayload()                   {}
func (*Signature) boxPayload()                {}
func (*FileType) boxPayload()                 {}
func (*ImageHeader) boxPayload()              {}
func (*BitsPerComponent) boxPayload()         {}
func (*ColourSpecification) boxPayload()      {}
func (*Palette) boxPayload()                  {}
func (*ComponentMapping) boxPayload()         {}
func (*ChannelDefinition) boxPayload()        {}
func (*Resolution) boxPayload()               {}
func (*XMLText) boxPayload()                  {}
func (*IntellectualPropertyData) boxPayload() {}
func (*UUID) boxPayload()                     {}
func (*UUIDList) boxPayload()                 {}
func (*DataEntryURL) boxPayload()             {}
func (*EmbeddedCodestream) boxPayload()       {}
