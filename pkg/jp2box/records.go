package jp2box

import (
	"strings"

	"github.com/j2kxml/j2kxml/pkg/structural"
)

func (p *Parser) decodeSignature(sub *structural.Cursor, start uint64) (structural.BoxPayload, error) {
	if sub.Len() != 4 {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			structural.TypeSignature, start, "signature box payload is %d bytes, want 4", sub.Len())
	}
	magic, err := sub.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	sig := &structural.Signature{}
	copy(sig.Magic[:], magic)
	if sig.Magic != structural.SignatureMagic {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			structural.TypeSignature, start, "signature content % X, want % X",
			sig.Magic, structural.SignatureMagic)
	}
	return sig, nil
}

func (p *Parser) decodeFileType(sub *structural.Cursor, start uint64) (structural.BoxPayload, error) {
	if sub.Len() < 8 || (sub.Len()-8)%4 != 0 {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			structural.TypeFileType, start, "file-type payload of %d bytes is not 8 plus 4 per compatibility entry", sub.Len())
	}
	ft := &structural.FileType{}
	brand, err := sub.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	ft.Brand = string(brand)
	if ft.MinorVersion, err = sub.ReadU32(); err != nil {
		return nil, err
	}
	for sub.Remaining() > 0 {
		entry, err := sub.ReadBytes(4)
		if err != nil {
			return nil, err
		}
		ft.Compatibility = append(ft.Compatibility, string(entry))
	}
	return ft, nil
}

func (p *Parser) decodeImageHeader(sub *structural.Cursor, start uint64) (structural.BoxPayload, error) {
	if sub.Len() != 14 {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			structural.TypeImageHeader, start, "image header payload is %d bytes, want 14", sub.Len())
	}
	h := &structural.ImageHeader{}
	var err error
	if h.Height, err = sub.ReadU32(); err != nil {
		return nil, err
	}
	if h.Width, err = sub.ReadU32(); err != nil {
		return nil, err
	}
	if h.NumComponents, err = sub.ReadU16(); err != nil {
		return nil, err
	}
	if h.BPC, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if h.Compression, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if h.ColourspaceUnknown, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if h.IntellectualProperty, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if h.Width == 0 || h.Height == 0 {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			structural.TypeImageHeader, start, "image size %dx%d must be nonzero", h.Width, h.Height)
	}
	if h.NumComponents == 0 {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			structural.TypeImageHeader, start, "component count must be nonzero")
	}
	// C is always 7 (wavelet) for files the JP2 brand defines.
	if h.Compression != 7 {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			structural.TypeImageHeader, start, "compression type %d, want 7", h.Compression)
	}
	return h, nil
}

func (p *Parser) decodeBitsPerComponent(sub *structural.Cursor) (structural.BoxPayload, error) {
	depths, err := sub.ReadBytes(sub.Remaining())
	if err != nil {
		return nil, err
	}
	return &structural.BitsPerComponent{Depths: depths}, nil
}

func (p *Parser) decodeColourSpecification(sub *structural.Cursor, start uint64) (structural.BoxPayload, error) {
	cs := &structural.ColourSpecification{}
	var err error
	if cs.Method, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if cs.Precedence, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	if cs.Approximation, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	switch cs.Method {
	case 1:
		if sub.Remaining() != 4 {
			return nil, structural.BoxErrorf(structural.StructuralInconsistency,
				structural.TypeColourSpecification, start,
				"enumerated colourspace method leaves %d bytes, want 4", sub.Remaining())
		}
		if cs.EnumCS, err = sub.ReadU32(); err != nil {
			return nil, err
		}
	default:
		// Method 2 carries a restricted ICC profile; reserved methods
		// keep their payload raw the same way.
		if cs.ICCProfile, err = sub.ReadBytes(sub.Remaining()); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

func (p *Parser) decodePalette(sub *structural.Cursor, start uint64) (structural.BoxPayload, error) {
	ne, err := sub.ReadU16()
	if err != nil {
		return nil, err
	}
	npc, err := sub.ReadU8()
	if err != nil {
		return nil, err
	}
	if ne == 0 || npc == 0 {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			structural.TypePalette, start, "palette declares %d entries x %d columns", ne, npc)
	}
	pal := &structural.Palette{Depths: make([]uint8, npc)}
	for i := range pal.Depths {
		if pal.Depths[i], err = sub.ReadU8(); err != nil {
			return nil, err
		}
	}
	pal.Entries = make([][]uint64, ne)
	for i := range pal.Entries {
		row := make([]uint64, npc)
		for j := range row {
			width := (int(pal.Depths[j]&0x7F) + 1 + 7) / 8
			raw, err := sub.ReadBytes(uint64(width))
			if err != nil {
				return nil, err
			}
			var v uint64
			for _, b := range raw {
				v = v<<8 | uint64(b)
			}
			row[j] = v
		}
		pal.Entries[i] = row
	}
	if sub.Remaining() != 0 {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			structural.TypePalette, start, "%d bytes left after %d palette entries", sub.Remaining(), ne)
	}
	return pal, nil
}

func (p *Parser) decodeComponentMapping(sub *structural.Cursor, start uint64) (structural.BoxPayload, error) {
	if sub.Len()%4 != 0 {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			structural.TypeComponentMapping, start, "payload of %d bytes is not a multiple of the 4-byte record", sub.Len())
	}
	cm := &structural.ComponentMapping{}
	for sub.Remaining() > 0 {
		var m structural.ComponentMap
		var err error
		if m.Component, err = sub.ReadU16(); err != nil {
			return nil, err
		}
		if m.MappingType, err = sub.ReadU8(); err != nil {
			return nil, err
		}
		if m.PaletteColumn, err = sub.ReadU8(); err != nil {
			return nil, err
		}
		cm.Mappings = append(cm.Mappings, m)
	}
	return cm, nil
}

func (p *Parser) decodeChannelDefinition(sub *structural.Cursor, start uint64) (structural.BoxPayload, error) {
	n, err := sub.ReadU16()
	if err != nil {
		return nil, err
	}
	if sub.Remaining() != 6*uint64(n) {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			structural.TypeChannelDefinition, start,
			"%d bytes of channel records, want 6 per each of %d channels", sub.Remaining(), n)
	}
	cd := &structural.ChannelDefinition{Channels: make([]structural.ChannelDef, n)}
	for i := range cd.Channels {
		ch := &cd.Channels[i]
		if ch.Channel, err = sub.ReadU16(); err != nil {
			return nil, err
		}
		if ch.Typ, err = sub.ReadU16(); err != nil {
			return nil, err
		}
		if ch.Association, err = sub.ReadU16(); err != nil {
			return nil, err
		}
	}
	return cd, nil
}

func (p *Parser) decodeResolution(boxType structural.BoxType, sub *structural.Cursor, start uint64) (structural.BoxPayload, error) {
	if sub.Len() != 10 {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			boxType, start, "resolution payload is %d bytes, want 10", sub.Len())
	}
	r := &structural.Resolution{}
	var err error
	if r.VerticalNumerator, err = sub.ReadU16(); err != nil {
		return nil, err
	}
	if r.VerticalDenominator, err = sub.ReadU16(); err != nil {
		return nil, err
	}
	if r.HorizontalNumerator, err = sub.ReadU16(); err != nil {
		return nil, err
	}
	if r.HorizontalDenominator, err = sub.ReadU16(); err != nil {
		return nil, err
	}
	ve, err := sub.ReadU8()
	if err != nil {
		return nil, err
	}
	he, err := sub.ReadU8()
	if err != nil {
		return nil, err
	}
	r.VerticalExponent = int8(ve)
	r.HorizontalExponent = int8(he)
	if r.VerticalDenominator == 0 || r.HorizontalDenominator == 0 {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			boxType, start, "resolution denominator must be nonzero")
	}
	return r, nil
}

func (p *Parser) decodeUUID(sub *structural.Cursor, start uint64) (structural.BoxPayload, error) {
	if sub.Len() < 16 {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			structural.TypeUUID, start, "UUID box payload is %d bytes, want at least 16", sub.Len())
	}
	id, err := sub.ReadBytes(16)
	if err != nil {
		return nil, err
	}
	u := &structural.UUID{}
	copy(u.ID[:], id)
	if u.Data, err = sub.ReadBytes(sub.Remaining()); err != nil {
		return nil, err
	}
	return u, nil
}

func (p *Parser) decodeUUIDList(sub *structural.Cursor, start uint64) (structural.BoxPayload, error) {
	n, err := sub.ReadU16()
	if err != nil {
		return nil, err
	}
	if sub.Remaining() != 16*uint64(n) {
		return nil, structural.BoxErrorf(structural.StructuralInconsistency,
			structural.TypeUUIDList, start, "%d bytes of IDs, want 16 per each of %d entries", sub.Remaining(), n)
	}
	ul := &structural.UUIDList{IDs: make([][16]byte, n)}
	for i := range ul.IDs {
		id, err := sub.ReadBytes(16)
		if err != nil {
			return nil, err
		}
		copy(ul.IDs[i][:], id)
	}
	return ul, nil
}

func (p *Parser) decodeDataEntryURL(sub *structural.Cursor) (structural.BoxPayload, error) {
	u := &structural.DataEntryURL{}
	var err error
	if u.Version, err = sub.ReadU8(); err != nil {
		return nil, err
	}
	flags, err := sub.ReadBytes(3)
	if err != nil {
		return nil, err
	}
	copy(u.Flags[:], flags)
	loc, err := sub.ReadBytes(sub.Remaining())
	if err != nil {
		return nil, err
	}
	u.Location = strings.TrimRight(string(loc), "\x00")
	return u, nil
}
