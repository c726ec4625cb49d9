package plist

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
)

// A Decoder reads a property list from an input stream.
type Decoder struct {
	// the format of the most-recently-decoded property list
	Format int

	reader io.ReadSeeker
}

// Decode works like Unmarshal, except it reads the decoder stream to find
// property list elements. The format is detected from the content and stored
// in Format.
func (p *Decoder) Decode(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return &TypeMismatchError{Want: "non-nil pointer", Got: fmt.Sprintf("%T", v)}
	}

	pval, err := p.DecodeValue()
	if err != nil {
		return err
	}
	return unmarshalValue(pval, rv)
}

// DecodeValue reads the next property list and returns its root.
func (p *Decoder) DecodeValue() (Value, error) {
	header := make([]byte, len(bplistHeader))
	n, err := io.ReadFull(p.reader, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, &IOError{Op: "read", Err: err}
	}
	if _, err := p.reader.Seek(-int64(n), io.SeekCurrent); err != nil {
		return nil, &IOError{Op: "seek", Err: err}
	}

	if bytes.HasPrefix(header[:n], []byte(bplistMagic)) {
		p.Format = BinaryFormat
		return newBplistParser(p.reader).parseDocument()
	}

	start, err := p.reader.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, &IOError{Op: "seek", Err: err}
	}
	pval, err := newXMLPlistParser(p.reader).parseDocument()
	if _, invalid := err.(invalidPlistError); !invalid {
		if err == nil {
			p.Format = XMLFormat
		}
		return pval, err
	}

	if _, err := p.reader.Seek(start, io.SeekStart); err != nil {
		return nil, &IOError{Op: "seek", Err: err}
	}
	tp := newTextPlistParser(p.reader)
	pval, err = tp.parseDocument()
	if err != nil {
		return nil, err
	}
	p.Format = tp.format
	return pval, nil
}

// NewDecoder returns a Decoder that reads property list elements from a stream reader, r.
// NewDecoder requires a Seekable stream for the purposes of property list format detection.
func NewDecoder(r io.ReadSeeker) *Decoder {
	return &Decoder{Format: InvalidFormat, reader: r}
}

// Unmarshal parses a property list document and stores the result in the
// value pointed to by v. It returns the detected format.
//
// A *Value target receives the tree itself. Other targets are filled as
// follows: dictionaries into structs (by "plist" field tag) and string-keyed
// maps, arrays into slices and arrays, and scalars into the matching Go kinds.
func Unmarshal(data []byte, v interface{}) (format int, err error) {
	r := bytes.NewReader(data)
	dec := NewDecoder(r)
	err = dec.Decode(v)
	format = dec.Format
	return
}
