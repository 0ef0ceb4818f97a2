// Package jp2box parses the JP2 box-container format into an ordered tree
// of typed boxes. Known superboxes recurse, known leaf layouts decode into
// typed records, the contiguous-codestream box hands its payload to the
// codestream parser, and unrecognized type codes are kept opaque so vendor
// extensions round-trip structurally.
package jp2box

import (
	"log/slog"

	"github.com/j2kxml/j2kxml/pkg/jpcstream"
	"github.com/j2kxml/j2kxml/pkg/structural"
)

// DefaultMaxDepth bounds superbox nesting. Each level consumes at least
// eight header bytes, so input size already bounds recursion; the explicit
// cap keeps stack use fixed on adversarial input.
const DefaultMaxDepth = 32

// BrandJP2 is the reader requirement every JP2 file must declare in its
// file-type box, either as the brand or in the compatibility list.
const BrandJP2 = "jp2 "

// Parser parses JP2 box sequences. It holds no per-input state, so one
// Parser may serve concurrent parses.
type Parser struct {
	logger     *slog.Logger
	maxDepth   int
	codestream *jpcstream.Parser
}

// NewParser returns a box parser. A nil logger falls back to slog.Default;
// maxDepth <= 0 selects DefaultMaxDepth.
func NewParser(logger *slog.Logger, maxDepth int) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Parser{
		logger:     logger,
		maxDepth:   maxDepth,
		codestream: jpcstream.NewParser(logger),
	}
}

// Parse consumes an entire JP2 file region and returns its top-level box
// sequence. The signature and file-type boxes must be present and first in
// that order; those two boxes are what make a stream identifiable as JP2.
func (p *Parser) Parse(c *structural.Cursor) ([]*structural.Box, error) {
	boxes, err := p.parseSequence(c, 0)
	if err != nil {
		return nil, err
	}
	if len(boxes) == 0 || boxes[0].Type != structural.TypeSignature {
		return nil, structural.BoxErrorf(structural.MissingMandatoryElement,
			structural.TypeSignature, c.Base(), "file must open with the signature box")
	}
	if len(boxes) < 2 || boxes[1].Type != structural.TypeFileType {
		return nil, structural.BoxErrorf(structural.MissingMandatoryElement,
			structural.TypeFileType, boxes[0].Span.End(), "file-type box must immediately follow the signature box")
	}
	ft := boxes[1].Payload.(*structural.FileType)
	if !ft.CompatibleWith(BrandJP2) {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			structural.TypeFileType, boxes[1].Span.Offset,
			"neither brand %q nor the compatibility list %v names %q", ft.Brand, ft.Compatibility, BrandJP2)
	}

	// The JP2 header box is unique and must precede any codestream box.
	var seenHeader bool
	for _, b := range boxes {
		switch b.Type {
		case structural.TypeJP2Header:
			if seenHeader {
				return nil, structural.BoxErrorf(structural.StructuralInconsistency,
					b.Type, b.Span.Offset, "duplicate JP2 header box")
			}
			seenHeader = true
		case structural.TypeCodestream:
			if !seenHeader {
				return nil, structural.BoxErrorf(structural.StructuralInconsistency,
					b.Type, b.Span.Offset, "contiguous codestream box precedes the JP2 header box")
			}
		}
	}
	return boxes, nil
}

// parseSequence parses boxes until the scope is exhausted. Children of a
// superbox exactly tile its payload: a trailing partial header or an
// overlong declared length is a structural error, never silently absorbed.
func (p *Parser) parseSequence(c *structural.Cursor, depth int) ([]*structural.Box, error) {
	var boxes []*structural.Box
	for c.Remaining() > 0 {
		box, err := p.parseBox(c, depth)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, box)
	}
	return boxes, nil
}

func (p *Parser) parseBox(c *structural.Cursor, depth int) (*structural.Box, error) {
	start := c.Pos()
	lbox, err := c.ReadU32()
	if err != nil {
		return nil, err
	}
	rawType, err := c.ReadU32()
	if err != nil {
		return nil, err
	}
	boxType := structural.BoxTypeFromU32(rawType)

	headerLen := uint64(8)
	var length uint64
	toEnd := false
	switch {
	case lbox == 0:
		// Extends to the end of the enclosing scope; necessarily the
		// final box there.
		toEnd = true
		length = headerLen + c.Remaining()
	case lbox == 1:
		xlbox, err := c.ReadU64()
		if err != nil {
			return nil, err
		}
		headerLen = 16
		if xlbox < headerLen {
			return nil, structural.BoxErrorf(structural.StructuralInconsistency,
				boxType, start, "extended length %d is below the 16-byte header", xlbox)
		}
		length = xlbox
	default:
		if uint64(lbox) < headerLen {
			return nil, structural.BoxErrorf(structural.StructuralInconsistency,
				boxType, start, "length %d is below the 8-byte header", lbox)
		}
		length = uint64(lbox)
	}

	payloadLen := length - headerLen
	if payloadLen > c.Remaining() {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			boxType, start, "declared length %d overruns the enclosing scope by %d bytes",
			length, payloadLen-c.Remaining())
	}
	sub, err := c.Sub(payloadLen)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("box", "type", boxType.String(), "offset", start, "length", length)

	payload, err := p.decodePayload(boxType, sub, depth, start)
	if err != nil {
		return nil, err
	}
	return &structural.Box{
		Type:         boxType,
		Length:       length,
		HeaderLength: uint8(headerLen),
		ToEnd:        toEnd,
		Span:         structural.Span{Offset: start, Length: length},
		Payload:      payload,
	}, nil
}

// decodePayload dispatches on the box type code: the closed set of ISO
// 15444-1 codes, plus the opaque catch-all that keeps unknown extensions
// from failing the parse.
func (p *Parser) decodePayload(boxType structural.BoxType, sub *structural.Cursor, depth int, start uint64) (structural.BoxPayload, error) {
	switch boxType {
	case structural.TypeJP2Header, structural.TypeResolution, structural.TypeUUIDInfo:
		return p.decodeSuperBox(boxType, sub, depth, start)
	case structural.TypeSignature:
		return p.decodeSignature(sub, start)
	case structural.TypeFileType:
		return p.decodeFileType(sub, start)
	case structural.TypeImageHeader:
		return p.decodeImageHeader(sub, start)
	case structural.TypeBitsPerComponent:
		return p.decodeBitsPerComponent(sub)
	case structural.TypeColourSpecification:
		return p.decodeColourSpecification(sub, start)
	case structural.TypePalette:
		return p.decodePalette(sub, start)
	case structural.TypeComponentMapping:
		return p.decodeComponentMapping(sub, start)
	case structural.TypeChannelDefinition:
		return p.decodeChannelDefinition(sub, start)
	case structural.TypeCaptureResolution, structural.TypeDisplayResolution:
		return p.decodeResolution(boxType, sub, start)
	case structural.TypeCodestream:
		cs, err := p.codestream.Parse(sub)
		if err != nil {
			return nil, err
		}
		return &structural.EmbeddedCodestream{Codestream: cs}, nil
	case structural.TypeXML:
		text, err := sub.ReadBytes(sub.Remaining())
		if err != nil {
			return nil, err
		}
		return &structural.XMLText{Text: string(text)}, nil
	case structural.TypeIntellectualProperty:
		data, err := sub.ReadBytes(sub.Remaining())
		if err != nil {
			return nil, err
		}
		return &structural.IntellectualPropertyData{Data: data}, nil
	case structural.TypeUUID:
		return p.decodeUUID(sub, start)
	case structural.TypeUUIDList:
		return p.decodeUUIDList(sub, start)
	case structural.TypeURL:
		return p.decodeDataEntryURL(sub)
	default:
		data, err := sub.ReadBytes(sub.Remaining())
		if err != nil {
			return nil, err
		}
		return &structural.Opaque{Data: data}, nil
	}
}

func (p *Parser) decodeSuperBox(boxType structural.BoxType, sub *structural.Cursor, depth int, start uint64) (structural.BoxPayload, error) {
	if depth+1 > p.maxDepth {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			boxType, start, "box nesting exceeds the depth limit of %d", p.maxDepth)
	}
	children, err := p.parseSequence(sub, depth+1)
	if err != nil {
		return nil, err
	}
	if boxType == structural.TypeJP2Header {
		if len(children) == 0 || children[0].Type != structural.TypeImageHeader {
			return nil, structural.BoxErrorf(structural.MissingMandatoryElement,
				structural.TypeImageHeader, start, "JP2 header box must open with the image header box")
		}
	}
	return &structural.SuperBox{Children: children}, nil
}
