package jpcstream

import (
	"golang.org/x/text/encoding/charmap"

	"github.com/j2kxml/j2kxml/pkg/structural"
)

// decodeSegment decodes the typed fields of one marker segment from a
// sub-cursor bounded to exactly L-2 bytes. Unknown marker codes fall through
// to an opaque capture so vendor extensions round-trip structurally.
func (p *Parser) decodeSegment(sub *structural.Cursor, code uint16, pos uint64, cp *codingParameters, s scope) (structural.MarkerFields, error) {
	switch code {
	case structural.MarkerSIZ:
		return p.decodeSIZ(sub, pos, cp)
	case structural.MarkerCOD:
		return p.decodeCOD(sub, pos, cp, s)
	case structural.MarkerCOC:
		return p.decodeCOC(sub, pos, cp, s)
	case structural.MarkerQCD:
		return p.decodeQCD(sub, pos)
	case structural.MarkerQCC:
		return p.decodeQCC(sub, pos, cp)
	case structural.MarkerRGN:
		return p.decodeRGN(sub, pos, cp)
	case structural.MarkerPOC:
		return p.decodePOC(sub, cp)
	case structural.MarkerTLM:
		return p.decodeTLM(sub, pos)
	case structural.MarkerPLM:
		return p.decodePLM(sub)
	case structural.MarkerPLT:
		return p.decodePLT(sub, pos)
	case structural.MarkerPPM:
		return p.decodePPM(sub)
	case structural.MarkerPPT:
		return p.decodePPT(sub)
	case structural.MarkerCRG:
		return p.decodeCRG(sub, pos, cp)
	case structural.MarkerCOM:
		return p.decodeCOM(sub)
	default:
		data, err := sub.ReadBytes(sub.Remaining())
		if err != nil {
			return nil, err
		}
		return &structural.OpaqueSegment{Data: data}, nil
	}
}

func (p *Parser) decodeSIZ(sub *structural.Cursor, pos uint64, cp *codingParameters) (structural.MarkerFields, error) {
	if cp.siz != nil {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerSIZ, pos, "duplicate SIZ in main header")
	}
	siz := &structural.SIZ{}
	var err error
	if siz.Rsiz, err = sub.ReadU16(); err != nil {
		return nil, err
	}
	for _, dst := range []*uint32{
		&siz.Xsiz, &siz.Ysiz, &siz.XOsiz, &siz.YOsiz,
		&siz.XTsiz, &siz.YTsiz, &siz.XTOsiz, &siz.YTOsiz,
	} {
		if *dst, err = sub.ReadU32(); err != nil {
			return nil, err
		}
	}
	csiz, err := sub.ReadU16()
	if err != nil {
		return nil, err
	}
	if csiz == 0 {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerSIZ, pos, "Csiz is 0, need at least one component")
	}
	// Lsiz = 38 + 3*Csiz, so the sub-cursor holds 36 + 3*Csiz bytes.
	if sub.Len() != 36+3*uint64(csiz) {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerSIZ, pos, "segment length %d does not match %d components", sub.Len()+2, csiz)
	}
	siz.Components = make([]structural.SIZComponent, csiz)
	for i := range siz.Components {
		c := &siz.Components[i]
		if c.Ssiz, err = sub.ReadU8(); err != nil {
			return nil, err
		}
		if c.XRsiz, err = sub.ReadU8(); err != nil {
			return nil, err
		}
		if c.YRsiz, err = sub.ReadU8(); err != nil {
			return nil, err
		}
		if c.XRsiz == 0 || c.YRsiz == 0 {
			return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
				structural.MarkerSIZ, pos, "component %d declares zero sample separation", i)
		}
	}
	if siz.XTsiz == 0 || siz.YTsiz == 0 {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerSIZ, pos, "tile size %dx%d must be nonzero", siz.XTsiz, siz.YTsiz)
	}
	if siz.Xsiz <= siz.XOsiz || siz.Ysiz <= siz.YOsiz {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerSIZ, pos, "image area %dx%d does not exceed offset %d,%d",
			siz.Xsiz, siz.Ysiz, siz.XOsiz, siz.YOsiz)
	}
	cp.siz = siz
	return siz, nil
}

// decodeCodingStyle reads the SPcod/SPcoc block shared by COD and COC.
// precincts tells whether Scod/Scoc bit 0 declared user-defined precincts.
func (p *Parser) decodeCodingStyle(sub *structural.Cursor, code uint16, pos uint64, precincts bool) (structural.CodingStyle, error) {
	var style structural.CodingStyle
	var err error
	if style.DecompositionLevels, err = sub.ReadU8(); err != nil {
		return style, err
	}
	if style.DecompositionLevels > 32 {
		return style, structural.MarkerErrorf(structural.StructuralInconsistency,
			code, pos, "%d decomposition levels exceeds the limit of 32", style.DecompositionLevels)
	}
	if style.CodeBlockWidth, err = sub.ReadU8(); err != nil {
		return style, err
	}
	if style.CodeBlockHeight, err = sub.ReadU8(); err != nil {
		return style, err
	}
	if style.CodeBlockStyle, err = sub.ReadU8(); err != nil {
		return style, err
	}
	if style.Transformation, err = sub.ReadU8(); err != nil {
		return style, err
	}
	if precincts {
		n := int(style.DecompositionLevels) + 1
		style.Precincts = make([]structural.Precinct, n)
		for i := range style.Precincts {
			b, err := sub.ReadU8()
			if err != nil {
				return style, err
			}
			style.Precincts[i] = structural.Precinct{PPx: b & 0x0F, PPy: b >> 4}
		}
	}
	return style, nil
}

func (p *Parser) decodeCOD(sub *structural.Cursor, pos uint64, cp *codingParameters, s scope) (structural.MarkerFields, error) {
	if s == scopeMain && cp.cod != nil {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerCOD, pos, "duplicate COD in main header")
	}
	cod := &structural.COD{}
	var err error
	if cod.Scod, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if cod.ProgressionOrder, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if cod.ProgressionOrder > 4 {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerCOD, pos, "progression order %d outside LRCP..CPRL", cod.ProgressionOrder)
	}
	if cod.NumLayers, err = sub.ReadU16(); err != nil {
		return nil, err
	}
	if cod.NumLayers == 0 {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerCOD, pos, "layer count must be at least 1")
	}
	if cod.MCT, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if cod.Style, err = p.decodeCodingStyle(sub, structural.MarkerCOD, pos, cod.HasPrecincts()); err != nil {
		return nil, err
	}
	if s == scopeMain {
		cp.cod = cod
	} else {
		cp.tileCOD = cod
	}
	return cod, nil
}

// readComponentIndex reads a COC/QCC/RGN component index, which T.800 sizes
// by Csiz: one byte below 257 components, two bytes from there on.
func (p *Parser) readComponentIndex(sub *structural.Cursor, cp *codingParameters) (uint16, error) {
	if cp.componentIndexWide() {
		return sub.ReadU16()
	}
	v, err := sub.ReadU8()
	return uint16(v), err
}

func (p *Parser) decodeCOC(sub *structural.Cursor, pos uint64, cp *codingParameters, s scope) (structural.MarkerFields, error) {
	coc := &structural.COC{}
	var err error
	if coc.Component, err = p.readComponentIndex(sub, cp); err != nil {
		return nil, err
	}
	if coc.Component >= cp.numComponents() {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerCOC, pos, "component %d outside the %d components declared by SIZ",
			coc.Component, cp.numComponents())
	}
	if coc.Scoc, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if coc.Style, err = p.decodeCodingStyle(sub, structural.MarkerCOC, pos, coc.Scoc&0x01 != 0); err != nil {
		return nil, err
	}
	if s == scopeMain {
		cp.coc[coc.Component] = coc
	} else {
		cp.tileCOC[coc.Component] = coc
	}
	return coc, nil
}

// decodeQuantSteps reads the step-size array of a QCD/QCC segment. The
// entry width depends on the style: one byte per subband for style 0, two
// bytes per entry otherwise.
func decodeQuantSteps(sub *structural.Cursor, quantType int) ([]structural.QuantStep, error) {
	var steps []structural.QuantStep
	if quantType == 0 {
		for sub.Remaining() > 0 {
			b, err := sub.ReadU8()
			if err != nil {
				return nil, err
			}
			steps = append(steps, structural.QuantStep{Exponent: b >> 3})
		}
		return steps, nil
	}
	for sub.Remaining() > 0 {
		v, err := sub.ReadU16()
		if err != nil {
			return nil, err
		}
		steps = append(steps, structural.QuantStep{Exponent: uint8(v >> 11), Mantissa: v & 0x07FF})
	}
	return steps, nil
}

func (p *Parser) decodeQCD(sub *structural.Cursor, pos uint64) (structural.MarkerFields, error) {
	qcd := &structural.QCD{}
	var err error
	if qcd.Sqcd, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if qcd.QuantizationType() > 2 {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerQCD, pos, "quantization style %d is not defined", qcd.QuantizationType())
	}
	if qcd.QuantizationType() != 0 && sub.Remaining()%2 != 0 {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerQCD, pos, "odd step-size byte count %d for 16-bit entries", sub.Remaining())
	}
	if qcd.Steps, err = decodeQuantSteps(sub, qcd.QuantizationType()); err != nil {
		return nil, err
	}
	return qcd, nil
}

func (p *Parser) decodeQCC(sub *structural.Cursor, pos uint64, cp *codingParameters) (structural.MarkerFields, error) {
	qcc := &structural.QCC{}
	var err error
	if qcc.Component, err = p.readComponentIndex(sub, cp); err != nil {
		return nil, err
	}
	if qcc.Component >= cp.numComponents() {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerQCC, pos, "component %d outside the %d components declared by SIZ",
			qcc.Component, cp.numComponents())
	}
	if qcc.Sqcc, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if qcc.QuantizationType() > 2 {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerQCC, pos, "quantization style %d is not defined", qcc.QuantizationType())
	}
	if qcc.QuantizationType() != 0 && sub.Remaining()%2 != 0 {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerQCC, pos, "odd step-size byte count %d for 16-bit entries", sub.Remaining())
	}
	if qcc.Steps, err = decodeQuantSteps(sub, qcc.QuantizationType()); err != nil {
		return nil, err
	}
	return qcc, nil
}

func (p *Parser) decodeRGN(sub *structural.Cursor, pos uint64, cp *codingParameters) (structural.MarkerFields, error) {
	rgn := &structural.RGN{}
	var err error
	if rgn.Component, err = p.readComponentIndex(sub, cp); err != nil {
		return nil, err
	}
	if rgn.Component >= cp.numComponents() {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerRGN, pos, "component %d outside the %d components declared by SIZ",
			rgn.Component, cp.numComponents())
	}
	if rgn.Style, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if rgn.Parameter, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	return rgn, nil
}

func (p *Parser) decodePOC(sub *structural.Cursor, cp *codingParameters) (structural.MarkerFields, error) {
	poc := &structural.POC{}
	for sub.Remaining() > 0 {
		var ch structural.ProgressionChange
		var err error
		if ch.RSpoc, err = sub.ReadU8(); err != nil {
			return nil, err
		}
		if ch.CSpoc, err = p.readComponentIndex(sub, cp); err != nil {
			return nil, err
		}
		if ch.LYEpoc, err = sub.ReadU16(); err != nil {
			return nil, err
		}
		if ch.REpoc, err = sub.ReadU8(); err != nil {
			return nil, err
		}
		if ch.CEpoc, err = p.readComponentIndex(sub, cp); err != nil {
			return nil, err
		}
		if ch.Ppoc, err = sub.ReadU8(); err != nil {
			return nil, err
		}
		poc.Changes = append(poc.Changes, ch)
	}
	return poc, nil
}

func (p *Parser) decodeTLM(sub *structural.Cursor, pos uint64) (structural.MarkerFields, error) {
	tlm := &structural.TLM{}
	var err error
	if tlm.Index, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if tlm.Stlm, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	// ST: width of the tile index field (0, 1 or 2 bytes).
	// SP: 0 means 16-bit lengths, 1 means 32-bit.
	st := int(tlm.Stlm>>4) & 0x03
	sp := int(tlm.Stlm>>6) & 0x01
	if st == 3 {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerTLM, pos, "Stlm tile index width 3 is reserved")
	}
	entrySize := uint64(st + 2 + 2*sp)
	if sub.Remaining()%entrySize != 0 {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerTLM, pos, "%d bytes of entries is not a multiple of the %d-byte record",
			sub.Remaining(), entrySize)
	}
	for sub.Remaining() > 0 {
		entry := structural.TLMEntry{TileIndex: -1}
		switch st {
		case 1:
			v, err := sub.ReadU8()
			if err != nil {
				return nil, err
			}
			entry.TileIndex = int32(v)
		case 2:
			v, err := sub.ReadU16()
			if err != nil {
				return nil, err
			}
			entry.TileIndex = int32(v)
		}
		if sp == 1 {
			if entry.Length, err = sub.ReadU32(); err != nil {
				return nil, err
			}
		} else {
			v, err := sub.ReadU16()
			if err != nil {
				return nil, err
			}
			entry.Length = uint32(v)
		}
		tlm.Entries = append(tlm.Entries, entry)
	}
	return tlm, nil
}

func (p *Parser) decodePLM(sub *structural.Cursor) (structural.MarkerFields, error) {
	plm := &structural.PLM{}
	var err error
	if plm.Index, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if plm.Data, err = sub.ReadBytes(sub.Remaining()); err != nil {
		return nil, err
	}
	return plm, nil
}

func (p *Parser) decodePLT(sub *structural.Cursor, pos uint64) (structural.MarkerFields, error) {
	plt := &structural.PLT{}
	var err error
	if plt.Index, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	// Iplt packet lengths are 7 bits per byte, high bit set on all but the
	// final byte of each value.
	var current uint32
	inValue := false
	for sub.Remaining() > 0 {
		b, err := sub.ReadU8()
		if err != nil {
			return nil, err
		}
		current = current<<7 | uint32(b&0x7F)
		inValue = true
		if b&0x80 == 0 {
			plt.PacketLengths = append(plt.PacketLengths, current)
			current = 0
			inValue = false
		}
	}
	if inValue {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerPLT, pos, "packet length list ends mid-value")
	}
	return plt, nil
}

func (p *Parser) decodePPM(sub *structural.Cursor) (structural.MarkerFields, error) {
	ppm := &structural.PPM{}
	var err error
	if ppm.Index, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if ppm.Data, err = sub.ReadBytes(sub.Remaining()); err != nil {
		return nil, err
	}
	return ppm, nil
}

func (p *Parser) decodePPT(sub *structural.Cursor) (structural.MarkerFields, error) {
	ppt := &structural.PPT{}
	var err error
	if ppt.Index, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if ppt.Data, err = sub.ReadBytes(sub.Remaining()); err != nil {
		return nil, err
	}
	return ppt, nil
}

func (p *Parser) decodeCRG(sub *structural.Cursor, pos uint64, cp *codingParameters) (structural.MarkerFields, error) {
	ncomp := uint64(cp.numComponents())
	if sub.Len() != 4*ncomp {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerCRG, pos, "segment carries %d bytes, want 4 per each of %d components",
			sub.Len(), ncomp)
	}
	crg := &structural.CRG{Offsets: make([]structural.CRGOffset, ncomp)}
	for i := range crg.Offsets {
		var err error
		if crg.Offsets[i].X, err = sub.ReadU16(); err != nil {
			return nil, err
		}
		if crg.Offsets[i].Y, err = sub.ReadU16(); err != nil {
			return nil, err
		}
	}
	return crg, nil
}

func (p *Parser) decodeCOM(sub *structural.Cursor) (structural.MarkerFields, error) {
	com := &structural.COM{}
	var err error
	if com.Registration, err = sub.ReadU16(); err != nil {
		return nil, err
	}
	if com.Data, err = sub.ReadBytes(sub.Remaining()); err != nil {
		return nil, err
	}
	if com.Registration == 1 {
		// Rcom 1 declares ISO/IEC 8859-15 text.
		decoded, err := charmap.ISO8859_15.NewDecoder().Bytes(com.Data)
		if err == nil {
			com.Text = string(decoded)
		}
	}
	return com, nil
}

func (p *Parser) decodeSOT(sub *structural.Cursor, pos uint64, cp *codingParameters) (*structural.SOT, error) {
	sot := &structural.SOT{}
	var err error
	if sot.TileIndex, err = sub.ReadU16(); err != nil {
		return nil, err
	}
	if sot.TilePartLength, err = sub.ReadU32(); err != nil {
		return nil, err
	}
	if sot.TilePartIndex, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if sot.TilePartCount, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if n := cp.siz.NumTiles(); uint32(sot.TileIndex) >= n {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerSOT, pos, "tile index %d outside the %d-tile grid declared by SIZ",
			sot.TileIndex, n)
	}
	expected := cp.nextTilePart[sot.TileIndex]
	if sot.TilePartIndex != expected {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerSOT, pos, "tile %d tile-part index %d, want %d",
			sot.TileIndex, sot.TilePartIndex, expected)
	}
	if sot.TilePartCount != 0 && sot.TilePartIndex >= sot.TilePartCount {
		return nil, structural.MarkerErrorf(structural.StructuralInconsistency,
			structural.MarkerSOT, pos, "tile %d tile-part index %d exceeds declared count %d",
			sot.TileIndex, sot.TilePartIndex, sot.TilePartCount)
	}
	cp.nextTilePart[sot.TileIndex] = expected + 1
	return sot, nil
}
