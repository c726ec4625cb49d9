package plist

import (
	"os"
)

// ReadFile decodes the property list stored at path and reports its format.
func ReadFile(path string) (Value, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, InvalidFormat, &IOError{Op: "open", Err: err}
	}
	defer f.Close()

	dec := NewDecoder(f)
	pval, err := dec.DecodeValue()
	if err != nil {
		return nil, InvalidFormat, err
	}
	return pval, dec.Format, nil
}

// WriteFile encodes v in the given format and replaces the file at path.
func WriteFile(path string, v interface{}, format int, indent string) (err error) {
	data, err := MarshalIndent(v, format, indent)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return &IOError{Op: "create", Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &IOError{Op: "close", Err: cerr}
		}
	}()
	if _, err := f.Write(data); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}
