package plist

import "fmt"

// FormatError is returned when a document is malformed. Offset is the byte
// offset of the offending record for binary documents and -1 otherwise.
type FormatError struct {
	Format string
	Offset int64
	Err    error
}

func (e *FormatError) Error() string {
	s := "plist: invalid " + e.Format + " property list"
	if e.Offset >= 0 {
		s += fmt.Sprintf(" at offset %#x", e.Offset)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *FormatError) Unwrap() error { return e.Err }

// TypeMismatchError is returned when a value is requested as a kind it is not.
type TypeMismatchError struct {
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return "plist: value is " + e.Got + ", not " + e.Want
}

// UnsupportedValueError is returned by encoders for a value no property list
// format can represent.
type UnsupportedValueError struct {
	Str string
}

func (e *UnsupportedValueError) Error() string {
	return "plist: unsupported value: " + e.Str
}

// IOError wraps a failure of the underlying byte source or sink.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return "plist: " + e.Op + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error { return e.Err }

// invalidPlistError means the input is not a document of the given format at
// all, as opposed to a damaged one. The decoder uses it to try the next format.
type invalidPlistError struct {
	format string
	err    error
}

func (e invalidPlistError) Error() string {
	s := "plist: invalid " + e.format + " property list"
	if e.err != nil {
		s += ": " + e.err.Error()
	}
	return s
}

func formatErrorf(format string, offset int64, msg string, args ...interface{}) *FormatError {
	return &FormatError{Format: format, Offset: offset, Err: fmt.Errorf(msg, args...)}
}
