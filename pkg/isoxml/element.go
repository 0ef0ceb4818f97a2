// Package isoxml maps the structural parse tree to an XML element tree in
// the ISO/IEC 15444-14 structural style: one element per box or marker,
// decoded fields as attributes, nesting and sibling order mirroring the
// parse tree exactly. Opaque payloads fall back to a hex or base64 text
// encoding so unknown extensions stay visible.
package isoxml

import (
	"encoding/xml"
	"fmt"
	"io"
)

// Attr is one rendered attribute. Order is preserved as built.
type Attr struct {
	Name  string
	Value string
}

// Element is one node of the rendered tree. An element carries either
// children or text, never both.
type Element struct {
	Name     string
	Attrs    []Attr
	Children []*Element
	Text     string
}

func newElement(name string) *Element {
	return &Element{Name: name}
}

func (e *Element) attr(name string, format string, args ...any) *Element {
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: fmt.Sprintf(format, args...)})
	return e
}

func (e *Element) add(child *Element) *Element {
	e.Children = append(e.Children, child)
	return e
}

// Attr returns the value of a named attribute.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Find returns the first child with the given element name, depth-first.
func (e *Element) Find(name string) *Element {
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
		if sub := c.Find(name); sub != nil {
			return sub
		}
	}
	return nil
}

// Write renders the element tree as an XML document. An empty indent
// produces compact output.
func (e *Element) Write(w io.Writer, indent string) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", indent)
	if err := e.encodeTokens(enc); err != nil {
		return fmt.Errorf("rendering %s: %w", e.Name, err)
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func (e *Element) encodeTokens(enc *xml.Encoder) error {
	start := xml.StartElement{Name: xml.Name{Local: e.Name}}
	for _, a := range e.Attrs {
		start.Attr = append(start.Attr, xml.Attr{
			Name:  xml.Name{Local: a.Name},
			Value: a.Value,
		})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if e.Text != "" {
		if err := enc.EncodeToken(xml.CharData(e.Text)); err != nil {
			return err
		}
	}
	for _, c := range e.Children {
		if err := c.encodeTokens(enc); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}
