// Package j2kxml provides a high-level API for decoding the structure of
// JPEG 2000 files and rendering it as ISO/IEC 15444-14 style XML.
//
// Basic usage:
//
//	// Decode a JP2 file's box and marker structure
//	tree, err := j2kxml.ParseAuto(fileBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Render the structure as XML
//	xmlData, err := j2kxml.ToXML(fileBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
package j2kxml

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/j2kxml/j2kxml/internal/nodefilter"
	"github.com/j2kxml/j2kxml/pkg/isoxml"
	"github.com/j2kxml/j2kxml/pkg/jp2box"
	"github.com/j2kxml/j2kxml/pkg/jpcstream"
	"github.com/j2kxml/j2kxml/pkg/structural"
)

// Decoder wraps box and codestream parsing with shared configuration.
type Decoder struct {
	logger  *slog.Logger
	options options
	filters *nodefilter.Pool
}

// options holds configuration for the decoder
type options struct {
	logger         *slog.Logger
	maxDepth       int
	indent         string
	opaqueEncoding isoxml.OpaqueEncoding
	maxOpaqueBytes int
	filter         string
	debugMode      bool
}

// Option is a function that configures decoder options
type Option func(*options)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMaxDepth caps superbox nesting; deeper trees fail as structurally
// inconsistent rather than recursing without bound.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.maxDepth = depth
	}
}

// WithIndent sets the XML indentation string. Empty produces compact output.
func WithIndent(indent string) Option {
	return func(o *options) {
		o.indent = indent
	}
}

// WithOpaqueBase64 switches undecoded payload rendering from hex to base64.
func WithOpaqueBase64() Option {
	return func(o *options) {
		o.opaqueEncoding = isoxml.OpaqueBase64
	}
}

// WithMaxOpaqueBytes caps how many undecoded payload bytes are embedded per
// node; negative lifts the cap.
func WithMaxOpaqueBytes(n int) Option {
	return func(o *options) {
		o.maxOpaqueBytes = n
	}
}

// WithFilter sets a CEL node filter expression applied to rendered XML.
// Nodes matching the expression are kept along with their ancestors.
func WithFilter(expr string) Option {
	return func(o *options) {
		o.filter = expr
	}
}

// WithDebugMode enables debug logging
func WithDebugMode(enabled bool) Option {
	return func(o *options) {
		o.debugMode = enabled
	}
}

// defaultOptions returns the default configuration
func defaultOptions() options {
	return options{
		logger:   slog.Default(),
		maxDepth: jp2box.DefaultMaxDepth,
		indent:   "  ",
	}
}

// Global decoder instance for convenience functions
var globalDecoder *Decoder
var globalDecoderOnce sync.Once

func getGlobalDecoder() *Decoder {
	globalDecoderOnce.Do(func() {
		globalDecoder = NewDecoder()
	})
	return globalDecoder
}

// NewDecoder creates a new decoder instance with the given options
func NewDecoder(opts ...Option) *Decoder {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if options.debugMode {
		options.logger = options.logger.With("debug", true)
	}

	return &Decoder{
		logger:  options.logger,
		options: options,
		filters: nodefilter.NewPool(),
	}
}

// jp2SignatureBox is the fixed 12-byte signature box that opens every JP2
// file; a bare codestream opens with the SOC marker instead.
var jp2SignatureBox = []byte{
	0x00, 0x00, 0x00, 0x0C, 0x6A, 0x50, 0x20, 0x20, 0x0D, 0x0A, 0x87, 0x0A,
}

// ParseJP2 decodes the box structure of a JP2 file
func ParseJP2(data []byte, opts ...Option) (*structural.ParseTree, error) {
	return getGlobalDecoder().ParseJP2(context.Background(), data, opts...)
}

// ParseJPC decodes the marker structure of a bare codestream
func ParseJPC(data []byte, opts ...Option) (*structural.ParseTree, error) {
	return getGlobalDecoder().ParseJPC(context.Background(), data, opts...)
}

// ParseAuto sniffs the input and decodes it as JP2 or bare codestream
func ParseAuto(data []byte, opts ...Option) (*structural.ParseTree, error) {
	return getGlobalDecoder().ParseAuto(context.Background(), data, opts...)
}

// ToXML decodes the input and renders its structure as an XML document
func ToXML(data []byte, opts ...Option) ([]byte, error) {
	return getGlobalDecoder().ToXML(context.Background(), data, opts...)
}

// ParseJP2 decodes the box structure of a JP2 file
func (d *Decoder) ParseJP2(ctx context.Context, data []byte, opts ...Option) (*structural.ParseTree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	options := d.apply(opts)
	p := jp2box.NewParser(options.logger, options.maxDepth)
	boxes, err := p.Parse(structural.NewCursor(data))
	if err != nil {
		return nil, err
	}
	return &structural.ParseTree{
		Kind:   structural.TreeJP2,
		Source: structural.Span{Offset: 0, Length: uint64(len(data))},
		Boxes:  boxes,
	}, nil
}

// ParseJPC decodes the marker structure of a bare codestream
func (d *Decoder) ParseJPC(ctx context.Context, data []byte, opts ...Option) (*structural.ParseTree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	options := d.apply(opts)
	p := jpcstream.NewParser(options.logger)
	cs, err := p.Parse(structural.NewCursor(data))
	if err != nil {
		return nil, err
	}
	return &structural.ParseTree{
		Kind:       structural.TreeJPC,
		Source:     structural.Span{Offset: 0, Length: uint64(len(data))},
		Codestream: cs,
	}, nil
}

// ParseAuto sniffs the input and decodes it as JP2 or bare codestream.
// A JP2 file opens with the fixed signature box; a codestream opens with
// the SOC marker.
func (d *Decoder) ParseAuto(ctx context.Context, data []byte, opts ...Option) (*structural.ParseTree, error) {
	if bytes.HasPrefix(data, jp2SignatureBox) {
		return d.ParseJP2(ctx, data, opts...)
	}
	if len(data) >= 2 && data[0] == 0xFF && data[1] == 0x4F {
		return d.ParseJPC(ctx, data, opts...)
	}
	if len(data) < 2 {
		return nil, structural.Errorf(structural.UnexpectedEOF, 0,
			"input shorter than any recognizable structure")
	}
	return nil, structural.Errorf(structural.StructuralInconsistency, 0,
		"input opens with neither a JP2 signature box nor an SOC marker")
}

// ToXML decodes the input and renders its structure as an XML document
func (d *Decoder) ToXML(ctx context.Context, data []byte, opts ...Option) ([]byte, error) {
	tree, err := d.ParseAuto(ctx, data, opts...)
	if err != nil {
		return nil, err
	}
	return d.Render(tree, opts...)
}

// Render maps an already decoded parse tree to an XML document, applying
// the configured node filter when one is set.
func (d *Decoder) Render(tree *structural.ParseTree, opts ...Option) ([]byte, error) {
	options := d.apply(opts)
	enc := &isoxml.Encoder{
		Opaque:         options.opaqueEncoding,
		MaxOpaqueBytes: options.maxOpaqueBytes,
	}
	root := enc.Encode(tree)
	if options.filter != "" {
		prog, err := d.filters.Compile(options.filter)
		if err != nil {
			return nil, err
		}
		root, err = nodefilter.Apply(prog, root)
		if err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if err := root.Write(&buf, options.indent); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Decoder) apply(opts []Option) options {
	options := d.options
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
