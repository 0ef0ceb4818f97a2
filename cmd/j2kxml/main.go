// Command j2kxml decodes the structure of a JPEG 2000 file (JP2 container
// or bare codestream) and writes it as ISO/IEC 15444-14 style XML on stdout.
//
// Exit status: 0 on success, 2 when the input is structurally invalid,
// 3 when the input cannot be read at all.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/j2kxml/j2kxml/pkg/j2kxml"
	"github.com/j2kxml/j2kxml/pkg/structural"
)

const (
	exitOK         = 0
	exitStructural = 2
	exitUnreadable = 3
)

// Profile is a reusable rendering configuration loaded from a YAML file.
type Profile struct {
	Indent         string `yaml:"indent"`
	OpaqueEncoding string `yaml:"opaque_encoding"`
	MaxOpaqueBytes *int   `yaml:"max_opaque_bytes"`
	Filter         string `yaml:"filter"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("j2kxml", flag.ExitOnError)
	filter := fs.String("filter", "", "CEL node filter expression, e.g. 'kind == \"marker\"'")
	profilePath := fs.String("profile", "", "path to a YAML rendering profile")
	indent := fs.String("indent", "  ", "XML indentation string")
	output := fs.String("o", "", "write output to file instead of stdout")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: j2kxml [flags] <file.jp2|file.j2c>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() != 1 {
		fs.Usage()
		return exitUnreadable
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []j2kxml.Option{
		j2kxml.WithLogger(logger),
		j2kxml.WithIndent(*indent),
	}
	if *profilePath != "" {
		profileOpts, err := loadProfile(*profilePath)
		if err != nil {
			logger.Error("loading profile", "path", *profilePath, "error", err)
			return exitUnreadable
		}
		opts = append(opts, profileOpts...)
	}
	// A filter flag overrides the profile's filter.
	if *filter != "" {
		opts = append(opts, j2kxml.WithFilter(*filter))
	}

	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("reading input", "path", path, "error", err)
		return exitUnreadable
	}

	xmlData, err := j2kxml.ToXML(data, opts...)
	if err != nil {
		var serr *structural.Error
		if errors.As(err, &serr) {
			logger.Error("decoding structure", "path", path,
				"kind", serr.Kind.String(), "offset", serr.Offset, "error", err)
			return exitStructural
		}
		logger.Error("rendering", "path", path, "error", err)
		return exitUnreadable
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			logger.Error("creating output", "path", *output, "error", err)
			return exitUnreadable
		}
		defer f.Close()
		out = f
	}
	if _, err := out.Write(xmlData); err != nil {
		logger.Error("writing output", "error", err)
		return exitUnreadable
	}
	return exitOK
}

func loadProfile(path string) ([]j2kxml.Option, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile YAML: %w", err)
	}
	var opts []j2kxml.Option
	if p.Indent != "" {
		opts = append(opts, j2kxml.WithIndent(p.Indent))
	}
	switch p.OpaqueEncoding {
	case "", "hex":
	case "base64":
		opts = append(opts, j2kxml.WithOpaqueBase64())
	default:
		return nil, fmt.Errorf("unknown opaque_encoding %q", p.OpaqueEncoding)
	}
	if p.MaxOpaqueBytes != nil {
		opts = append(opts, j2kxml.WithMaxOpaqueBytes(*p.MaxOpaqueBytes))
	}
	if p.Filter != "" {
		opts = append(opts, j2kxml.WithFilter(p.Filter))
	}
	return opts, nil
}
