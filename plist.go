package plist

// Property list formats.
const (
	InvalidFormat int = iota
	XMLFormat
	BinaryFormat
	OpenStepFormat
	GNUStepFormat
	// AutomaticFormat lets the decoder pick; the encoder treats it as XMLFormat.
	AutomaticFormat = 0
)

// maxNestingDepth bounds how deeply a parser follows nested containers.
const maxNestingDepth = 10000

// FormatNames maps each format to a human-readable name.
var FormatNames = map[int]string{
	InvalidFormat:  "unknown/invalid",
	XMLFormat:      "XML",
	BinaryFormat:   "Binary",
	OpenStepFormat: "OpenStep",
	GNUStepFormat:  "GNUStep",
}
