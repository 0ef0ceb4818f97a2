package jpcstream

import (
	"github.com/j2kxml/j2kxml/pkg/structural"
)

// scope identifies where in the codestream the parser currently is. Marker
// legality depends on it: a marker that is fine in the main header can be a
// structural error inside a tile-part header.
type scope int

const (
	scopeMain scope = iota
	scopeTilePart
)

func (s scope) String() string {
	if s == scopeMain {
		return "main header"
	}
	return "tile-part header"
}

// markerAllowed reports whether a marker segment may occur in the given
// scope, per ISO/IEC 15444-1 Table A.1. Unknown marker codes are always
// allowed; they are captured opaquely.
func markerAllowed(code uint16, s scope) bool {
	switch code {
	case structural.MarkerSIZ, structural.MarkerTLM, structural.MarkerPLM,
		structural.MarkerPPM, structural.MarkerCRG:
		return s == scopeMain
	case structural.MarkerPLT, structural.MarkerPPT:
		return s == scopeTilePart
	case structural.MarkerCOD, structural.MarkerCOC, structural.MarkerQCD,
		structural.MarkerQCC, structural.MarkerRGN, structural.MarkerPOC,
		structural.MarkerCOM:
		return true
	case structural.MarkerSOC, structural.MarkerSOT, structural.MarkerSOD,
		structural.MarkerEOC, structural.MarkerSOP, structural.MarkerEPH:
		// Delimiters are positional: the state machine consumes them
		// itself, so reaching the legality check means one appeared
		// where it cannot.
		return false
	}
	return true
}

// codingParameters is the transient cross-marker accumulator for one parse
// call. It is owned by the parser invocation and never shared, so concurrent
// parses cannot interfere.
type codingParameters struct {
	siz *structural.SIZ
	cod *structural.COD
	qcd *structural.QCD
	coc map[uint16]*structural.COC

	// Tile-part header overrides, reset at each SOT.
	tileCOD *structural.COD
	tileCOC map[uint16]*structural.COC

	// nextTilePart tracks the expected TPsot per tile index.
	nextTilePart map[uint16]uint8
}

func newCodingParameters() *codingParameters {
	return &codingParameters{
		coc:          make(map[uint16]*structural.COC),
		tileCOC:      make(map[uint16]*structural.COC),
		nextTilePart: make(map[uint16]uint8),
	}
}

// enterTilePart clears the per-tile-part overrides.
func (cp *codingParameters) enterTilePart() {
	cp.tileCOD = nil
	cp.tileCOC = make(map[uint16]*structural.COC)
}

// numComponents returns Csiz, or 0 before SIZ has been seen.
func (cp *codingParameters) numComponents() uint16 {
	if cp.siz == nil {
		return 0
	}
	return uint16(len(cp.siz.Components))
}

// componentIndexWide reports whether component indices in COC/QCC/RGN are
// 16-bit, which T.800 ties to Csiz >= 257.
func (cp *codingParameters) componentIndexWide() bool {
	return cp.numComponents() >= 257
}

// governingCOD returns the coding style in effect for the given scope: the
// tile-part override when one was declared, else the main-header default.
func (cp *codingParameters) governingCOD(s scope) *structural.COD {
	if s == scopeTilePart && cp.tileCOD != nil {
		return cp.tileCOD
	}
	return cp.cod
}

// decompositionLevels returns the level count governing a component in the
// given scope, honoring COC overrides (tile-part first, then main header).
func (cp *codingParameters) decompositionLevels(comp uint16, s scope) (uint8, bool) {
	if s == scopeTilePart {
		if coc, ok := cp.tileCOC[comp]; ok {
			return coc.Style.DecompositionLevels, true
		}
	}
	if coc, ok := cp.coc[comp]; ok {
		return coc.Style.DecompositionLevels, true
	}
	if cod := cp.governingCOD(s); cod != nil {
		return cod.Style.DecompositionLevels, true
	}
	return 0, false
}

// expectedQuantSteps returns the step-size entry count a quantization
// segment must declare for the given style and decomposition level count:
// one entry for scalar-derived, 3*levels+1 otherwise.
func expectedQuantSteps(quantType int, levels uint8) int {
	if quantType == 1 {
		return 1
	}
	return 3*int(levels) + 1
}
