package plist

const (
	bplistMagic   = "bplist"
	bplistVersion = "00"
	bplistHeader  = bplistMagic + bplistVersion

	bplistTrailerSize = 32
)

// bplistTrailer is the fixed footer of a binary plist. It is read first and
// describes where everything else lives.
type bplistTrailer struct {
	Unused            [5]uint8
	SortVersion       uint8
	OffsetIntSize     uint8
	ObjectRefSize     uint8
	NumObjects        uint64
	TopObject         uint64
	OffsetTableOffset uint64
}

// Marker bytes. The high nibble is the record type; for most types the low
// nibble is a count, with 0xF meaning an integer record holding the count
// follows.
const (
	bpTagNull        uint8 = 0x00
	bpTagBoolFalse   uint8 = 0x08
	bpTagBoolTrue    uint8 = 0x09
	bpTagFill        uint8 = 0x0F
	bpTagInteger     uint8 = 0x10
	bpTagReal        uint8 = 0x20
	bpTagDate        uint8 = 0x30
	bpTagData        uint8 = 0x40
	bpTagASCIIString uint8 = 0x50
	bpTagUTF16String uint8 = 0x60
	bpTagUID         uint8 = 0x80
	bpTagArray       uint8 = 0xA0
	bpTagSet         uint8 = 0xC0
	bpTagDictionary  uint8 = 0xD0

	bpCountFollows uint8 = 0x0F
	bpMaxInlineCnt       = 14
)

// Dates count seconds from 2001-01-01T00:00:00Z.
const (
	secondsPerMinute       = 60
	secondsPerHour         = 60 * secondsPerMinute
	secondsPerDay          = 24 * secondsPerHour
	unixToCocoa      int64 = (31*365 + 31/4 + 1) * secondsPerDay

	// Dates further out than this do not fit time.Unix.
	maxCocoaSeconds = 1 << 62
)
