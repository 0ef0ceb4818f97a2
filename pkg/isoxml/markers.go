package isoxml

import (
	"strings"

	"github.com/j2kxml/j2kxml/pkg/structural"
)

var markerElements = map[uint16]string{
	structural.MarkerSOC: "soc",
	structural.MarkerSOT: "sot",
	structural.MarkerSOD: "sod",
	structural.MarkerEOC: "eoc",
	structural.MarkerSIZ: "siz",
	structural.MarkerCOD: "cod",
	structural.MarkerCOC: "coc",
	structural.MarkerTLM: "tlm",
	structural.MarkerPLM: "plm",
	structural.MarkerPLT: "plt",
	structural.MarkerQCD: "qcd",
	structural.MarkerQCC: "qcc",
	structural.MarkerRGN: "rgn",
	structural.MarkerPOC: "poc",
	structural.MarkerPPM: "ppm",
	structural.MarkerPPT: "ppt",
	structural.MarkerSOP: "sop",
	structural.MarkerEPH: "eph",
	structural.MarkerCRG: "crg",
	structural.MarkerCOM: "com",
}

// MarkerElementName returns the element name used for a marker code;
// unrecognized codes render as unknownMarker.
func MarkerElementName(code uint16) string {
	if name, ok := markerElements[code]; ok {
		return name
	}
	return "unknownMarker"
}

var markerElementNames = func() map[string]bool {
	m := map[string]bool{"unknownMarker": true}
	for _, name := range markerElements {
		m[name] = true
	}
	return m
}()

// IsMarkerElement reports whether an element name denotes a marker node.
func IsMarkerElement(name string) bool {
	return markerElementNames[name]
}

var progressionOrders = [...]string{"LRCP", "RLCP", "RPCL", "PCRL", "CPRL"}

func progressionOrderName(v uint8) string {
	if int(v) < len(progressionOrders) {
		return progressionOrders[v]
	}
	return "reserved"
}

func (enc *Encoder) codestream(cs *structural.Codestream) *Element {
	e := newElement("codestream")
	e.attr("offset", "%d", cs.Span.Offset)
	e.attr("length", "%d", cs.Span.Length)
	for _, m := range cs.Markers {
		e.add(enc.marker(m))
	}
	return e
}

func (enc *Encoder) marker(m *structural.Marker) *Element {
	e := newElement(MarkerElementName(m.Code))
	e.attr("offset", "%d", m.Span.Offset)
	e.attr("length", "%d", m.Span.Length)
	if e.Name == "unknownMarker" {
		e.attr("code", "%04x", m.Code)
	}
	switch f := m.Fields.(type) {
	case *structural.SIZ:
		enc.sizFields(e, f)
	case *structural.COD:
		e.attr("layers", "%d", f.NumLayers)
		e.attr("progressionOrder", "%s", progressionOrderName(f.ProgressionOrder))
		e.attr("multipleComponentTransform", "%d", f.MCT)
		e.attr("sopMarkers", "%t", f.UsesSOP())
		e.attr("ephMarkers", "%t", f.UsesEPH())
		enc.codingStyle(e, &f.Style)
	case *structural.COC:
		e.attr("component", "%d", f.Component)
		enc.codingStyle(e, &f.Style)
	case *structural.QCD:
		enc.quantFields(e, f.QuantizationType(), f.GuardBits(), f.Steps)
	case *structural.QCC:
		e.attr("component", "%d", f.Component)
		enc.quantFields(e, f.QuantizationType(), f.GuardBits(), f.Steps)
	case *structural.RGN:
		e.attr("component", "%d", f.Component)
		e.attr("style", "%d", f.Style)
		e.attr("shift", "%d", f.Parameter)
	case *structural.POC:
		for _, c := range f.Changes {
			p := newElement("progressionChange")
			p.attr("resolutionStart", "%d", c.RSpoc)
			p.attr("componentStart", "%d", c.CSpoc)
			p.attr("layerEnd", "%d", c.LYEpoc)
			p.attr("resolutionEnd", "%d", c.REpoc)
			p.attr("componentEnd", "%d", c.CEpoc)
			p.attr("progressionOrder", "%s", progressionOrderName(c.Ppoc))
			e.add(p)
		}
	case *structural.TLM:
		e.attr("index", "%d", f.Index)
		for _, t := range f.Entries {
			c := newElement("tilePartLength")
			if t.TileIndex >= 0 {
				c.attr("tile", "%d", t.TileIndex)
			}
			c.attr("value", "%d", t.Length)
			e.add(c)
		}
	case *structural.PLM:
		e.attr("index", "%d", f.Index)
		e.add(enc.opaqueText("data", f.Data))
	case *structural.PLT:
		e.attr("index", "%d", f.Index)
		for _, l := range f.PacketLengths {
			e.add(newElement("packetLength").attr("value", "%d", l))
		}
	case *structural.PPM:
		e.attr("index", "%d", f.Index)
		e.add(enc.opaqueText("data", f.Data))
	case *structural.PPT:
		e.attr("index", "%d", f.Index)
		e.add(enc.opaqueText("data", f.Data))
	case *structural.CRG:
		for i, o := range f.Offsets {
			c := newElement("componentOffset").attr("component", "%d", i)
			c.attr("x", "%d", o.X)
			c.attr("y", "%d", o.Y)
			e.add(c)
		}
	case *structural.COM:
		e.attr("registration", "%d", f.Registration)
		if f.Registration == 1 {
			e.Text = strings.ToValidUTF8(f.Text, "�")
		} else {
			e.add(enc.opaqueText("data", f.Data))
		}
	case *structural.SOT:
		e.attr("tile", "%d", f.TileIndex)
		e.attr("tilePartLength", "%d", f.TilePartLength)
		e.attr("tilePartIndex", "%d", f.TilePartIndex)
		e.attr("tilePartCount", "%d", f.TilePartCount)
	case *structural.SOD:
		d := newElement("tilePartData")
		d.attr("offset", "%d", f.Data.Offset)
		d.attr("length", "%d", f.Data.Length)
		for _, p := range f.Packets {
			c := newElement("packet")
			c.attr("offset", "%d", p.Span.Offset)
			c.attr("length", "%d", p.Span.Length)
			if p.HasSequence {
				c.attr("sequence", "%d", p.Sequence)
			}
			d.add(c)
		}
		e.add(d)
	case *structural.OpaqueSegment:
		e.add(enc.opaqueText("data", f.Data))
	}
	return e
}

func (enc *Encoder) sizFields(e *Element, f *structural.SIZ) {
	e.attr("capabilities", "%d", f.Rsiz)
	e.attr("width", "%d", f.Xsiz)
	e.attr("height", "%d", f.Ysiz)
	e.attr("horizontalOffset", "%d", f.XOsiz)
	e.attr("verticalOffset", "%d", f.YOsiz)
	e.attr("tileWidth", "%d", f.XTsiz)
	e.attr("tileHeight", "%d", f.YTsiz)
	e.attr("tileHorizontalOffset", "%d", f.XTOsiz)
	e.attr("tileVerticalOffset", "%d", f.YTOsiz)
	e.attr("tiles", "%d", f.NumTiles())
	for i, c := range f.Components {
		ce := newElement("component").attr("index", "%d", i)
		ce.attr("bitDepth", "%d", c.BitDepth())
		ce.attr("signed", "%t", c.Signed())
		ce.attr("horizontalSeparation", "%d", c.XRsiz)
		ce.attr("verticalSeparation", "%d", c.YRsiz)
		e.add(ce)
	}
}

func (enc *Encoder) codingStyle(e *Element, s *structural.CodingStyle) {
	e.attr("decompositionLevels", "%d", s.DecompositionLevels)
	e.attr("codeBlockWidth", "%d", 1<<(s.CodeBlockWidth+2))
	e.attr("codeBlockHeight", "%d", 1<<(s.CodeBlockHeight+2))
	e.attr("codeBlockStyle", "%#02x", s.CodeBlockStyle)
	if s.Transformation == 0 {
		e.attr("transformation", "9-7 irreversible")
	} else {
		e.attr("transformation", "5-3 reversible")
	}
	for i, p := range s.Precincts {
		pe := newElement("precinctSize").attr("resolution", "%d", i)
		pe.attr("width", "%d", 1<<p.PPx)
		pe.attr("height", "%d", 1<<p.PPy)
		e.add(pe)
	}
}

var quantizationTypes = [...]string{"none", "scalarDerived", "scalarExpounded"}

func (enc *Encoder) quantFields(e *Element, typ, guard int, steps []structural.QuantStep) {
	if typ < len(quantizationTypes) {
		e.attr("quantizationType", "%s", quantizationTypes[typ])
	} else {
		e.attr("quantizationType", "%d", typ)
	}
	e.attr("guardBits", "%d", guard)
	for i, s := range steps {
		se := newElement("stepSize").attr("band", "%d", i)
		se.attr("exponent", "%d", s.Exponent)
		if typ != 0 {
			se.attr("mantissa", "%d", s.Mantissa)
		}
		e.add(se)
	}
}
