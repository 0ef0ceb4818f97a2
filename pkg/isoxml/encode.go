package isoxml

import (
	"encoding/base64"
	"encoding/hex"
	"strconv"

	"github.com/j2kxml/j2kxml/pkg/structural"
)

// OpaqueEncoding selects the text fallback for undecoded payload bytes.
type OpaqueEncoding int

const (
	OpaqueHex OpaqueEncoding = iota
	OpaqueBase64
)

// Encoder renders parse trees. The zero value uses hex fallback with a
// 256-byte cap per opaque payload.
type Encoder struct {
	// Opaque selects hex or base64 for undecoded payload bytes.
	Opaque OpaqueEncoding
	// MaxOpaqueBytes caps how many payload bytes are embedded; 0 keeps
	// the default of 256, negative values lift the cap.
	MaxOpaqueBytes int
}

// Namespace is the document namespace of the rendered tree.
const Namespace = "urn:iso:std:iso-iec:15444:-14"

// Encode maps a parse tree to its XML element tree. Sibling order is
// schema-meaningful and mirrors the parse tree exactly.
func (enc *Encoder) Encode(tree *structural.ParseTree) *Element {
	var root *Element
	switch tree.Kind {
	case structural.TreeJP2:
		root = newElement("jp2File")
		for _, b := range tree.Boxes {
			root.add(enc.box(b))
		}
	default:
		root = newElement("codestreamFile")
		if tree.Codestream != nil {
			root.add(enc.codestream(tree.Codestream))
		}
	}
	root.Attrs = append([]Attr{
		{Name: "xmlns", Value: Namespace},
		{Name: "length", Value: u64(tree.Source.Length)},
	}, root.Attrs...)
	return root
}

var boxNames = map[structural.BoxType]string{
	structural.TypeSignature:            "signatureBox",
	structural.TypeFileType:             "fileTypeBox",
	structural.TypeJP2Header:            "jp2HeaderBox",
	structural.TypeImageHeader:          "imageHeaderBox",
	structural.TypeBitsPerComponent:     "bitsPerComponentBox",
	structural.TypeColourSpecification:  "colourSpecificationBox",
	structural.TypePalette:              "paletteBox",
	structural.TypeComponentMapping:     "componentMappingBox",
	structural.TypeChannelDefinition:    "channelDefinitionBox",
	structural.TypeResolution:           "resolutionBox",
	structural.TypeCaptureResolution:    "captureResolutionBox",
	structural.TypeDisplayResolution:    "displayResolutionBox",
	structural.TypeCodestream:           "contiguousCodestreamBox",
	structural.TypeIntellectualProperty: "intellectualPropertyBox",
	structural.TypeXML:                  "xmlBox",
	structural.TypeUUID:                 "uuidBox",
	structural.TypeUUIDInfo:             "uuidInfoBox",
	structural.TypeUUIDList:             "uuidListBox",
	structural.TypeURL:                  "urlBox",
}

// BoxElementName returns the element name used for a box type;
// unrecognized types render as unknownBox.
func BoxElementName(t structural.BoxType) string {
	if name, ok := boxNames[t]; ok {
		return name
	}
	return "unknownBox"
}

func (enc *Encoder) box(b *structural.Box) *Element {
	e := newElement(BoxElementName(b.Type))
	e.attr("offset", "%d", b.Span.Offset)
	e.attr("length", "%d", b.Span.Length)
	if b.ToEnd {
		e.attr("toEnd", "true")
	}
	switch p := b.Payload.(type) {
	case *structural.SuperBox:
		for _, c := range p.Children {
			e.add(enc.box(c))
		}
	case *structural.Signature:
		// Content is fixed; presence is the information.
	case *structural.FileType:
		e.attr("brand", "%s", p.Brand)
		e.attr("minorVersion", "%d", p.MinorVersion)
		for _, c := range p.Compatibility {
			e.add(newElement("compatibleBrand").attr("brand", "%s", c))
		}
	case *structural.ImageHeader:
		e.attr("height", "%d", p.Height)
		e.attr("width", "%d", p.Width)
		e.attr("components", "%d", p.NumComponents)
		if p.BPC == 0xFF {
			e.attr("bitDepth", "variable")
		} else {
			e.attr("bitDepth", "%d", p.BitDepth())
			e.attr("signed", "%t", p.Signed())
		}
		e.attr("compressionType", "%d", p.Compression)
		e.attr("colourspaceUnknown", "%d", p.ColourspaceUnknown)
		e.attr("intellectualProperty", "%d", p.IntellectualProperty)
	case *structural.BitsPerComponent:
		for i, d := range p.Depths {
			c := newElement("componentDepth").attr("component", "%d", i)
			c.attr("bitDepth", "%d", int(d&0x7F)+1)
			c.attr("signed", "%t", d&0x80 != 0)
			e.add(c)
		}
	case *structural.ColourSpecification:
		e.attr("method", "%d", p.Method)
		e.attr("precedence", "%d", p.Precedence)
		e.attr("approximation", "%d", p.Approximation)
		if p.Method == 1 {
			e.attr("enumCS", "%d", p.EnumCS)
		} else {
			e.attr("profileLength", "%d", len(p.ICCProfile))
			e.add(enc.opaqueText("profileData", p.ICCProfile))
		}
	case *structural.Palette:
		e.attr("entries", "%d", len(p.Entries))
		e.attr("columns", "%d", len(p.Depths))
		for i, d := range p.Depths {
			c := newElement("paletteColumn").attr("column", "%d", i)
			c.attr("bitDepth", "%d", int(d&0x7F)+1)
			c.attr("signed", "%t", d&0x80 != 0)
			e.add(c)
		}
	case *structural.ComponentMapping:
		for _, m := range p.Mappings {
			c := newElement("mapping")
			c.attr("component", "%d", m.Component)
			c.attr("mappingType", "%d", m.MappingType)
			c.attr("paletteColumn", "%d", m.PaletteColumn)
			e.add(c)
		}
	case *structural.ChannelDefinition:
		for _, ch := range p.Channels {
			c := newElement("channel")
			c.attr("number", "%d", ch.Channel)
			c.attr("type", "%d", ch.Typ)
			c.attr("association", "%d", ch.Association)
			e.add(c)
		}
	case *structural.Resolution:
		e.attr("verticalNumerator", "%d", p.VerticalNumerator)
		e.attr("verticalDenominator", "%d", p.VerticalDenominator)
		e.attr("horizontalNumerator", "%d", p.HorizontalNumerator)
		e.attr("horizontalDenominator", "%d", p.HorizontalDenominator)
		e.attr("verticalExponent", "%d", p.VerticalExponent)
		e.attr("horizontalExponent", "%d", p.HorizontalExponent)
		e.attr("verticalPointsPerMeter", "%g", p.VerticalPPM())
		e.attr("horizontalPointsPerMeter", "%g", p.HorizontalPPM())
	case *structural.XMLText:
		e.Text = p.Text
	case *structural.IntellectualPropertyData:
		e.add(enc.opaqueText("data", p.Data))
	case *structural.UUID:
		e.attr("uuid", "%s", hex.EncodeToString(p.ID[:]))
		if len(p.Data) > 0 {
			e.add(enc.opaqueText("data", p.Data))
		}
	case *structural.UUIDList:
		for _, id := range p.IDs {
			e.add(newElement("uuid").attr("value", "%s", hex.EncodeToString(id[:])))
		}
	case *structural.DataEntryURL:
		e.attr("version", "%d", p.Version)
		e.attr("flags", "%06x", p.Flags)
		e.attr("location", "%s", p.Location)
	case *structural.EmbeddedCodestream:
		e.add(enc.codestream(p.Codestream))
	case *structural.Opaque:
		e.attr("type", "%s", b.Type.String())
		e.add(enc.opaqueText("data", p.Data))
	}
	return e
}

// opaqueText renders undecoded payload bytes under the configured fallback
// encoding, truncated at the configured cap.
func (enc *Encoder) opaqueText(name string, data []byte) *Element {
	e := newElement(name)
	e.attr("length", "%d", len(data))
	limit := enc.MaxOpaqueBytes
	if limit == 0 {
		limit = 256
	}
	if limit > 0 && len(data) > limit {
		data = data[:limit]
		e.attr("truncated", "true")
	}
	if enc.Opaque == OpaqueBase64 {
		e.attr("encoding", "base64")
		e.Text = base64.StdEncoding.EncodeToString(data)
	} else {
		e.attr("encoding", "hex")
		e.Text = hex.EncodeToString(data)
	}
	return e
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
