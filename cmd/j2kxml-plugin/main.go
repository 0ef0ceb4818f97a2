package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/j2kxml/j2kxml/pkg/j2kxml"
	"github.com/j2kxml/j2kxml/pkg/structural"
)

// StructureProcessor is a Benthos processor that decodes the box and
// marker structure of JPEG 2000 payloads and emits it as XML.
type StructureProcessor struct {
	config  StructureConfig
	decoder *j2kxml.Decoder
	logger  *service.Logger
	mParsed *service.MetricCounter
	mErrors *service.MetricCounter
}

// StructureConfig contains configuration parameters for the processor.
type StructureConfig struct {
	Filter         string `json:"filter" yaml:"filter"`
	Indent         string `json:"indent" yaml:"indent"`
	OpaqueBase64   bool   `json:"opaque_base64" yaml:"opaque_base64"`
	MaxOpaqueBytes int    `json:"max_opaque_bytes" yaml:"max_opaque_bytes"`
}

func init() {
	err := service.RegisterProcessor(
		"jpeg2000_structure",
		structureProcessorConfig(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
			return newStructureProcessorFromConfig(conf, mgr)
		},
	)
	if err != nil {
		panic(err)
	}
}

// structureProcessorConfig returns a config spec for the processor.
func structureProcessorConfig() *service.ConfigSpec {
	return service.NewConfigSpec().
		Summary("Decodes the structure of JPEG 2000 payloads into ISO/IEC 15444-14 style XML.").
		Description("This processor parses JP2 box containers and bare codestreams without decoding image data, emitting one XML document per message describing every box and marker with its byte position.").
		Field(service.NewStringField("filter").
			Description("Optional CEL expression selecting which structure nodes to keep. Matched nodes are kept with their ancestors.").
			Example(`kind == "marker" && name == "siz"`).
			Default("")).
		Field(service.NewStringField("indent").
			Description("XML indentation string. Empty produces compact output.").
			Default("")).
		Field(service.NewBoolField("opaque_base64").
			Description("Render undecoded payload bytes as base64 instead of hex.").
			Default(false)).
		Field(service.NewIntField("max_opaque_bytes").
			Description("Cap on embedded undecoded payload bytes per node. Negative lifts the cap.").
			Default(256)).
		Version("0.1.0")
}

// newStructureProcessorFromConfig creates a new StructureProcessor from a parsed config.
func newStructureProcessorFromConfig(conf *service.ParsedConfig, mgr *service.Resources) (*StructureProcessor, error) {
	filter, err := conf.FieldString("filter")
	if err != nil {
		return nil, err
	}
	indent, err := conf.FieldString("indent")
	if err != nil {
		return nil, err
	}
	opaqueBase64, err := conf.FieldBool("opaque_base64")
	if err != nil {
		return nil, err
	}
	maxOpaque, err := conf.FieldInt("max_opaque_bytes")
	if err != nil {
		return nil, err
	}

	config := StructureConfig{
		Filter:         filter,
		Indent:         indent,
		OpaqueBase64:   opaqueBase64,
		MaxOpaqueBytes: maxOpaque,
	}

	opts := []j2kxml.Option{
		j2kxml.WithIndent(config.Indent),
		j2kxml.WithMaxOpaqueBytes(config.MaxOpaqueBytes),
	}
	if config.OpaqueBase64 {
		opts = append(opts, j2kxml.WithOpaqueBase64())
	}
	if config.Filter != "" {
		opts = append(opts, j2kxml.WithFilter(config.Filter))
	}

	metrics := mgr.Metrics()
	return &StructureProcessor{
		config:  config,
		decoder: j2kxml.NewDecoder(opts...),
		logger:  mgr.Logger(),
		mParsed: metrics.NewCounter("jpeg2000_parsed_messages"),
		mErrors: metrics.NewCounter("jpeg2000_structure_errors"),
	}, nil
}

// Process decodes one message's payload structure to XML.
func (p *StructureProcessor) Process(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	data, err := msg.AsBytes()
	if err != nil {
		p.logger.Errorf("Failed to get binary data from message: %v", err)
		p.mErrors.Incr(1)
		msg.SetError(fmt.Errorf("failed to get binary data from message: %w", err))
		return service.MessageBatch{msg}, nil
	}

	if len(data) == 0 {
		p.logger.Warn("Empty binary data provided")
		p.mErrors.Incr(1)
		msg.SetError(errors.New("empty binary data provided"))
		return service.MessageBatch{msg}, nil
	}

	xmlData, err := p.decoder.ToXML(ctx, data)
	if err != nil {
		var serr *structural.Error
		if errors.As(err, &serr) {
			p.logger.Errorf("Structural error at offset %d: %v", serr.Offset, err)
		} else {
			p.logger.Errorf("Failed to decode structure: %v", err)
		}
		p.mErrors.Incr(1)
		msg.SetError(fmt.Errorf("decoding JPEG 2000 structure: %w", err))
		return service.MessageBatch{msg}, nil
	}

	p.logger.Debugf("Decoded structure of %d byte payload", len(data))
	p.mParsed.Incr(1)

	newMsg := service.NewMessage(xmlData)
	newMsg.MetaSet("content_type", "application/xml")
	msg.MetaWalk(func(key, value string) error {
		newMsg.MetaSet(key, value)
		return nil
	})

	return service.MessageBatch{newMsg}, nil
}

// Close releases processor resources.
func (p *StructureProcessor) Close(ctx context.Context) error {
	return nil
}

func main() {
	service.RunCLI(context.Background())
}
