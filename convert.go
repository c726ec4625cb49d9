package plist

import (
	"bytes"
	"encoding/json"
)

// ConvertToJSON decodes a property list in any format and re-encodes it as
// JSON. Dates become RFC 3339 strings and data becomes base64.
func ConvertToJSON(data []byte) ([]byte, error) {
	pval, err := NewDecoder(bytes.NewReader(data)).DecodeValue()
	if err != nil {
		return nil, err
	}
	return json.Marshal(pval.Interface())
}
