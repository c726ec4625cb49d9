package plist

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

type generator interface {
	generateDocument(Value) error
	Indent(string)
}

// An Encoder writes a property list to an output stream.
type Encoder struct {
	writer io.Writer
	format int

	indent string
}

// Encode writes the property list encoding of v to the stream. v may be a
// Value or any Go value accepted by ValueOf.
func (p *Encoder) Encode(v interface{}) error {
	pval, err := ValueOf(v)
	if err != nil {
		return err
	}
	if err := checkStrings(pval); err != nil {
		return err
	}

	var g generator
	switch p.format {
	case XMLFormat, AutomaticFormat:
		g = newXMLPlistGenerator(p.writer)
	case BinaryFormat:
		g = newBplistGenerator(p.writer)
	case OpenStepFormat, GNUStepFormat:
		g = newTextPlistGenerator(p.writer, p.format)
	default:
		return errors.New("plist: unknown output format")
	}
	g.Indent(p.indent)
	return g.generateDocument(pval)
}

// checkStrings rejects strings and dictionary keys that are not valid UTF-8.
// Every format stores text as Unicode, so such bytes could not be written
// back unchanged.
func checkStrings(pval Value) error {
	switch v := pval.(type) {
	case String:
		if !utf8.ValidString(string(v)) {
			return &UnsupportedValueError{Str: fmt.Sprintf("string %q is not valid UTF-8", string(v))}
		}
	case *Dict:
		for _, k := range v.keys {
			if err := checkStrings(String(k)); err != nil {
				return err
			}
			if err := checkStrings(v.values[k]); err != nil {
				return err
			}
		}
	case *Array:
		for _, e := range v.values {
			if err := checkStrings(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// Indent turns on pretty-printing for the XML and text property list formats.
// Each element begins on a new line and is preceded by one or more copies of
// indent according to its nesting depth.
func (p *Encoder) Indent(indent string) {
	p.indent = indent
}

// NewEncoder returns an Encoder that writes an XML property list to w.
func NewEncoder(w io.Writer) *Encoder {
	return NewEncoderForFormat(w, XMLFormat)
}

// NewEncoderForFormat returns an Encoder that writes a property list to w
// in the specified format. AutomaticFormat selects the XML format.
func NewEncoderForFormat(w io.Writer, format int) *Encoder {
	return &Encoder{
		writer: w,
		format: format,
	}
}

// NewBinaryEncoder returns an Encoder that writes a binary property list to w.
func NewBinaryEncoder(w io.Writer) *Encoder {
	return NewEncoderForFormat(w, BinaryFormat)
}

// Marshal returns the property list encoding of v in the specified format.
func Marshal(v interface{}, format int) ([]byte, error) {
	return MarshalIndent(v, format, "")
}

// MarshalIndent works like Marshal, but each property list element
// begins on a new line and is preceded by one or more copies of indent according to its nesting depth.
func MarshalIndent(v interface{}, format int, indent string) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := NewEncoderForFormat(buf, format)
	enc.Indent(indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
