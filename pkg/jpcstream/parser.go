// Package jpcstream parses a raw JPEG 2000 codestream into an ordered
// sequence of marker segments, validating marker legality by scope (main
// header, tile-part header, tile-part data) and the cross-marker invariants
// that tie quantization segments to the coding style and tile-part indices
// to the SIZ tile grid. Packet bytes after SOD are never decoded; they are
// reported as a bounded span, split per packet when SOP delimiters make
// that tractable.
package jpcstream

import (
	"encoding/binary"
	"log/slog"

	"github.com/j2kxml/j2kxml/pkg/structural"
)

// Parser parses codestream regions. It holds no per-input state, so one
// Parser may serve concurrent parses.
type Parser struct {
	logger *slog.Logger
}

// NewParser returns a codestream parser. A nil logger falls back to
// slog.Default.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// quantCheck is a deferred step-count validation: a QCD/QCC segment may
// precede the COD/COC that governs it within the same scope, so the check
// runs when the scope closes.
type quantCheck struct {
	offset    uint64
	code      uint16
	comp      uint16
	isQCC     bool
	quantType int
	steps     int
}

// run is the per-invocation state of one Parse call.
type run struct {
	p       *Parser
	c       *structural.Cursor
	cp      *codingParameters
	markers []*structural.Marker
}

// Parse consumes an entire codestream region: SOC, main header, tile-parts,
// EOC. The returned marker sequence preserves byte order exactly.
func (p *Parser) Parse(c *structural.Cursor) (*structural.Codestream, error) {
	r := &run{p: p, c: c, cp: newCodingParameters()}

	pos := c.Pos()
	code, err := c.ReadU16()
	if err != nil {
		return nil, structural.MarkerErrorf(structural.MissingMandatoryElement,
			structural.MarkerSOC, pos, "codestream region is too short for SOC")
	}
	if code != structural.MarkerSOC {
		return nil, structural.MarkerErrorf(structural.MissingMandatoryElement,
			structural.MarkerSOC, pos, "codestream must open with SOC, found 0x%04X", code)
	}
	r.appendDelimiter(structural.MarkerSOC, pos)
	p.logger.Debug("codestream open", "offset", pos, "length", c.Len())

	code, pos, err = r.mainHeader()
	if err != nil {
		return nil, err
	}

	for code == structural.MarkerSOT {
		code, pos, err = r.tilePart(pos)
		if err != nil {
			return nil, err
		}
	}

	if code != structural.MarkerEOC {
		return nil, structural.MarkerErrorf(structural.OutOfScopeMarker, code, pos,
			"only SOT or EOC may appear here")
	}
	r.appendDelimiter(structural.MarkerEOC, pos)
	if c.Remaining() != 0 {
		return nil, structural.Errorf(structural.StructuralInconsistency, c.Pos(),
			"%d trailing bytes after EOC", c.Remaining())
	}
	p.logger.Debug("codestream close", "markers", len(r.markers))

	return &structural.Codestream{Span: c.Span(), Markers: r.markers}, nil
}

func (r *run) appendDelimiter(code uint16, pos uint64) *structural.Marker {
	m := &structural.Marker{
		Code: code,
		Span: structural.Span{Offset: pos, Length: 2},
	}
	r.markers = append(r.markers, m)
	return m
}

// mainHeader consumes marker segments until the first SOT or the EOC,
// returning the delimiter code and its position. SIZ must be the first
// segment after SOC; SIZ and COD must both be present before any tile-part.
func (r *run) mainHeader() (uint16, uint64, error) {
	var pending []quantCheck
	for {
		pos := r.c.Pos()
		code, err := r.c.ReadU16()
		if err != nil {
			return 0, 0, structural.MarkerErrorf(structural.MissingMandatoryElement,
				structural.MarkerEOC, pos, "codestream ends without EOC")
		}
		if code == structural.MarkerSOT || code == structural.MarkerEOC {
			if r.cp.siz == nil {
				return 0, 0, structural.MarkerErrorf(structural.MissingMandatoryElement,
					structural.MarkerSIZ, pos, "main header carries no SIZ")
			}
			if r.cp.cod == nil {
				return 0, 0, structural.MarkerErrorf(structural.MissingMandatoryElement,
					structural.MarkerCOD, pos, "main header carries no COD")
			}
			if err := r.validateQuant(pending, scopeMain); err != nil {
				return 0, 0, err
			}
			return code, pos, nil
		}
		if code&0xFF00 != 0xFF00 {
			return 0, 0, structural.Errorf(structural.StructuralInconsistency, pos,
				"0x%04X is not a marker code", code)
		}
		if r.cp.siz == nil && code != structural.MarkerSIZ {
			return 0, 0, structural.MarkerErrorf(structural.StructuralInconsistency, code, pos,
				"SIZ must immediately follow SOC")
		}
		if err := r.segment(code, pos, scopeMain, &pending); err != nil {
			return 0, 0, err
		}
	}
}

// tilePart consumes one tile-part starting at an already-read SOT code:
// the SOT segment, the tile-part header, SOD, and the bounded data region.
// It returns the code following the tile-part (SOT or EOC, if well formed).
func (r *run) tilePart(sotPos uint64) (uint16, uint64, error) {
	r.cp.enterTilePart()

	lsot, err := r.c.ReadU16()
	if err != nil {
		return 0, 0, err
	}
	if lsot != 10 {
		return 0, 0, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerSOT, sotPos, "Lsot is %d, want 10", lsot)
	}
	sub, err := r.c.Sub(uint64(lsot) - 2)
	if err != nil {
		return 0, 0, err
	}
	sot, err := r.p.decodeSOT(sub, sotPos, r.cp)
	if err != nil {
		return 0, 0, err
	}
	r.markers = append(r.markers, &structural.Marker{
		Code:          structural.MarkerSOT,
		HasSegment:    true,
		SegmentLength: lsot,
		Span:          structural.Span{Offset: sotPos, Length: 2 + uint64(lsot)},
		Fields:        sot,
	})
	r.p.logger.Debug("tile-part", "tile", sot.TileIndex, "part", sot.TilePartIndex, "offset", sotPos)

	// Tile-part header runs to SOD.
	var pending []quantCheck
	var sodPos uint64
	for {
		pos := r.c.Pos()
		code, err := r.c.ReadU16()
		if err != nil {
			return 0, 0, structural.MarkerErrorf(structural.MissingMandatoryElement,
				structural.MarkerSOD, pos, "tile-part header ends without SOD")
		}
		if code == structural.MarkerSOD {
			sodPos = pos
			break
		}
		if code&0xFF00 != 0xFF00 {
			return 0, 0, structural.Errorf(structural.StructuralInconsistency, pos,
				"0x%04X is not a marker code", code)
		}
		if err := r.segment(code, pos, scopeTilePart, &pending); err != nil {
			return 0, 0, err
		}
	}
	if err := r.validateQuant(pending, scopeTilePart); err != nil {
		return 0, 0, err
	}

	// Tile-part data length comes from Psot minus the header bytes
	// consumed since the SOT marker, SOD included. Psot 0 means the data
	// runs to EOC and is legal only for the final tile-part.
	consumed := r.c.Pos() - sotPos
	var dataLen uint64
	toEOC := sot.TilePartLength == 0
	if toEOC {
		if r.c.Remaining() < 2 {
			return 0, 0, structural.MarkerErrorf(structural.MissingMandatoryElement,
				structural.MarkerEOC, r.c.Pos(), "codestream ends without EOC")
		}
		dataLen = r.c.Remaining() - 2
	} else {
		psot := uint64(sot.TilePartLength)
		if psot < consumed {
			return 0, 0, structural.MarkerErrorf(structural.StructuralInconsistency,
				structural.MarkerSOT, sotPos, "Psot %d is smaller than the %d-byte tile-part header", psot, consumed)
		}
		dataLen = psot - consumed
		if dataLen > r.c.Remaining() {
			return 0, 0, structural.MarkerErrorf(structural.StructuralInconsistency,
				structural.MarkerSOT, sotPos, "Psot %d overruns the enclosing scope by %d bytes",
				psot, dataLen-r.c.Remaining())
		}
	}
	dataSub, err := r.c.Sub(dataLen)
	if err != nil {
		return 0, 0, err
	}
	r.markers = append(r.markers, &structural.Marker{
		Code: structural.MarkerSOD,
		Span: structural.Span{Offset: sodPos, Length: 2},
		Fields: &structural.SOD{
			Data:    dataSub.Span(),
			Packets: r.scanPackets(dataSub),
		},
	})

	pos := r.c.Pos()
	code, err := r.c.ReadU16()
	if err != nil {
		return 0, 0, structural.MarkerErrorf(structural.MissingMandatoryElement,
			structural.MarkerEOC, pos, "codestream ends without EOC")
	}
	if toEOC && code != structural.MarkerEOC {
		return 0, 0, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerSOT, sotPos, "Psot 0 is legal only for the final tile-part")
	}
	return code, pos, nil
}

// segment reads one marker segment: the 16-bit length L, then exactly L-2
// bytes of fields through a bounded sub-cursor. Fully-decoded segment types
// must consume the sub-cursor exactly; leftovers mean the declared length
// disagrees with the fields.
func (r *run) segment(code uint16, pos uint64, s scope, pending *[]quantCheck) error {
	if structural.IsDelimiter(code) {
		if !markerAllowed(code, s) {
			return structural.MarkerErrorf(structural.OutOfScopeMarker, code, pos,
				"delimiter not legal in %s", s)
		}
		// Reserved delimiter range 0xFF30-0xFF3F: capture and continue.
		r.appendDelimiter(code, pos)
		return nil
	}
	if !markerAllowed(code, s) {
		return structural.MarkerErrorf(structural.OutOfScopeMarker, code, pos,
			"marker not legal in %s", s)
	}
	l, err := r.c.ReadU16()
	if err != nil {
		return err
	}
	if l < 2 {
		return structural.MarkerErrorf(structural.StructuralInconsistency, code, pos,
			"segment length %d is below the 2-byte minimum", l)
	}
	sub, err := r.c.Sub(uint64(l) - 2)
	if err != nil {
		return err
	}
	fields, err := r.p.decodeSegment(sub, code, pos, r.cp, s)
	if err != nil {
		return err
	}
	if sub.Remaining() != 0 {
		return structural.MarkerErrorf(structural.StructuralInconsistency, code, pos,
			"segment length %d leaves %d bytes after the decoded fields", l, sub.Remaining())
	}
	r.markers = append(r.markers, &structural.Marker{
		Code:          code,
		HasSegment:    true,
		SegmentLength: l,
		Span:          structural.Span{Offset: pos, Length: 2 + uint64(l)},
		Fields:        fields,
	})

	switch f := fields.(type) {
	case *structural.QCD:
		if s == scopeMain {
			if r.cp.qcd != nil {
				return structural.MarkerErrorf(structural.StructuralInconsistency,
					structural.MarkerQCD, pos, "duplicate QCD in main header")
			}
			r.cp.qcd = f
		}
		*pending = append(*pending, quantCheck{
			offset: pos, code: code,
			quantType: f.QuantizationType(), steps: len(f.Steps),
		})
	case *structural.QCC:
		*pending = append(*pending, quantCheck{
			offset: pos, code: code, comp: f.Component, isQCC: true,
			quantType: f.QuantizationType(), steps: len(f.Steps),
		})
	}
	return nil
}

// validateQuant runs the deferred quantization step-count checks for a
// closing scope against the coding style that ended up governing it.
func (r *run) validateQuant(pending []quantCheck, s scope) error {
	for _, q := range pending {
		var levels uint8
		var known bool
		if q.isQCC {
			levels, known = r.cp.decompositionLevels(q.comp, s)
		} else if cod := r.cp.governingCOD(s); cod != nil {
			levels, known = cod.Style.DecompositionLevels, true
		}
		if !known {
			continue
		}
		want := expectedQuantSteps(q.quantType, levels)
		if q.steps != want {
			return structural.MarkerErrorf(structural.StructuralInconsistency, q.code, q.offset,
				"quantization step count %d, want %d for %d decomposition levels",
				q.steps, want, levels)
		}
	}
	return nil
}

// scanPackets splits tile-part data into packet spans when the governing
// coding style declares SOP delimiters. Packet bodies are guaranteed free
// of byte pairs above 0xFF8F, so scanning for the SOP code is sound. Any
// irregularity makes the split intractable and the data stays one opaque
// span; that is not an error.
func (r *run) scanPackets(data *structural.Cursor) []structural.Packet {
	cod := r.cp.governingCOD(scopeTilePart)
	if cod == nil || !cod.UsesSOP() {
		return nil
	}
	buf := data.Bytes()
	if len(buf) < 6 || buf[0] != 0xFF || buf[1] != 0x91 {
		return nil
	}
	var packets []structural.Packet
	i := 0
	for i < len(buf) {
		if i+6 > len(buf) || buf[i] != 0xFF || buf[i+1] != 0x91 {
			return nil
		}
		if binary.BigEndian.Uint16(buf[i+2:]) != 4 {
			return nil
		}
		nsop := binary.BigEndian.Uint16(buf[i+4:])
		end := len(buf)
		for j := i + 6; j+1 < len(buf); j++ {
			if buf[j] == 0xFF && buf[j+1] == 0x91 {
				end = j
				break
			}
		}
		packets = append(packets, structural.Packet{
			Span:        structural.Span{Offset: data.Base() + uint64(i), Length: uint64(end - i)},
			Sequence:    nsop,
			HasSequence: true,
		})
		i = end
	}
	return packets
}
