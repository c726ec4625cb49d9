package plist

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// handcraft assembles a binary plist from raw object records using one-byte
// offset table entries.
func handcraft(refSize uint8, top uint64, records ...[]byte) []byte {
	return handcraftSized(refSize, 1, top, records...)
}

func handcraftSized(refSize, offSize uint8, top uint64, records ...[]byte) []byte {
	buf := []byte(bplistHeader)
	offsets := make([]byte, 0, len(records)*int(offSize))
	var scratch [8]byte
	for _, r := range records {
		binary.BigEndian.PutUint64(scratch[:], uint64(len(buf)))
		offsets = append(offsets, scratch[8-offSize:]...)
		buf = append(buf, r...)
	}
	tableOffset := uint64(len(buf))
	buf = append(buf, offsets...)

	trailer := make([]byte, bplistTrailerSize)
	trailer[6] = offSize
	trailer[7] = refSize
	binary.BigEndian.PutUint64(trailer[8:], uint64(len(records)))
	binary.BigEndian.PutUint64(trailer[16:], top)
	binary.BigEndian.PutUint64(trailer[24:], tableOffset)
	return append(buf, trailer...)
}

func readTrailer(t *testing.T, doc []byte) bplistTrailer {
	t.Helper()
	require.True(t, len(doc) >= len(bplistHeader)+bplistTrailerSize)
	var tr bplistTrailer
	require.NoError(t, binary.Read(bytes.NewReader(doc[len(doc)-bplistTrailerSize:]), binary.BigEndian, &tr))
	return tr
}

func decodeBinary(doc []byte) (Value, error) {
	return newBplistParser(bytes.NewReader(doc)).parseDocument()
}

func requireFormatError(t *testing.T, err error) *FormatError {
	t.Helper()
	require.Error(t, err)
	var ferr *FormatError
	require.True(t, errors.As(err, &ferr), "got %T: %v", err, err)
	return ferr
}

func sampleTree() *Dict {
	inner := NewDict()
	inner.Set("when", Date(time.Date(2020, 1, 2, 3, 4, 5, 123456000, time.UTC)))
	inner.Set("blob", Data{0x00, 0xff, 0x10})
	inner.Set("ref", UID(300))
	inner.Set("empty", NewArray())

	root := NewDict()
	root.Set("name", String("plain"))
	root.Set("unicode", String("héllo ✓ 🎉"))
	root.Set("numbers", NewArray(
		NewInteger(0),
		NewInteger(255),
		NewInteger(256),
		NewInteger(math.MaxInt32+1),
		NewInteger(-1),
		NewInteger(math.MaxInt64),
		NewInteger(math.MinInt64),
		NewReal(3.25),
		NewReal(math.Inf(-1)),
		NewBool(true),
		NewBool(false),
	))
	root.Set("nested", NewArray(inner, NewArray(inner, UID(0))))
	root.Set("nodict", NewDict())
	return root
}

func TestBplistRoundTrip(t *testing.T) {
	root := sampleTree()
	doc, err := Marshal(root, BinaryFormat)
	require.NoError(t, err)

	var got Value
	format, err := Unmarshal(doc, &got)
	require.NoError(t, err)
	assert.Equal(t, BinaryFormat, format)
	assert.True(t, root.Equal(got), "decoded tree differs:\n%v", got.Interface())

	d, err := AsDict(got)
	require.NoError(t, err)
	assert.Equal(t, root.Keys(), d.Keys())
}

func TestBplistRoundTripScalarsAsRoot(t *testing.T) {
	roots := []Value{
		String("x"),
		NewInteger(-42),
		NewReal(0.5),
		NewBool(false),
		Date(time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC)),
		Data{},
		UID(math.MaxUint32 + 1),
		NewArray(),
	}
	for _, root := range roots {
		t.Run(root.Kind().String(), func(t *testing.T) {
			doc, err := Marshal(root, BinaryFormat)
			require.NoError(t, err)
			got, err := decodeBinary(doc)
			require.NoError(t, err)
			assert.True(t, root.Equal(got), "got %#v", got)
		})
	}
}

func TestBplistDeterministic(t *testing.T) {
	first, err := Marshal(sampleTree(), BinaryFormat)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Marshal(sampleTree(), BinaryFormat)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestBplistIgnoresIndent(t *testing.T) {
	plain, err := Marshal(sampleTree(), BinaryFormat)
	require.NoError(t, err)
	indented, err := MarshalIndent(sampleTree(), BinaryFormat, "\t")
	require.NoError(t, err)
	assert.Equal(t, plain, indented)
}

func TestBplistSmallDocumentBytes(t *testing.T) {
	doc, err := Marshal(String("a"), BinaryFormat)
	require.NoError(t, err)

	want := []byte("bplist00")
	want = append(want, 0x51, 'a')
	want = append(want, 0x08)
	want = append(want, 0, 0, 0, 0, 0, 0, 1, 1)
	want = append(want, 0, 0, 0, 0, 0, 0, 0, 1)
	want = append(want, 0, 0, 0, 0, 0, 0, 0, 0)
	want = append(want, 0, 0, 0, 0, 0, 0, 0, 10)
	assert.Equal(t, want, doc)
}

func TestBplistDedup(t *testing.T) {
	root := NewDict()
	root.Set("a", String("same"))
	root.Set("b", String("same"))

	doc, err := Marshal(root, BinaryFormat)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), readTrailer(t, doc).NumObjects)
	// dict marker, key refs 1 and 2, both value refs pointing at object 3
	assert.Equal(t, []byte{0xD2, 1, 2, 3, 3}, doc[8:13])

	// A key string that also appears as a value is stored once.
	root = NewDict()
	root.Set("k", String("k"))
	doc, err = Marshal(root, BinaryFormat)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), readTrailer(t, doc).NumObjects)
}

func TestBplistDedupStructural(t *testing.T) {
	a := NewDict()
	a.Set("x", NewInteger(1))
	a.Set("y", NewInteger(2))
	b := NewDict()
	b.Set("y", NewInteger(2))
	b.Set("x", NewInteger(1))

	doc, err := Marshal(NewArray(a, b, a), BinaryFormat)
	require.NoError(t, err)
	// root, dict, "x", "y", 1, 2
	assert.Equal(t, uint64(6), readTrailer(t, doc).NumObjects)
	assert.Equal(t, []byte{0xA3, 1, 1, 1}, doc[8:12])
}

func distinctIntegers(n int) *Array {
	arr := NewArray()
	for i := 0; i < n; i++ {
		arr.Append(NewInteger(int64(i)))
	}
	return arr
}

func TestBplistReferenceWidth(t *testing.T) {
	tests := []struct {
		elements int
		refSize  uint8
	}{
		{0, 1},
		{100, 1},   // max ID 100
		{126, 1},   // max ID 126
		{127, 1},   // max ID 127
		{128, 2},   // max ID 128
		{200, 2},   // max ID 200
		{40000, 4}, // max ID 40000
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.elements), func(t *testing.T) {
			root := distinctIntegers(tt.elements)
			doc, err := Marshal(root, BinaryFormat)
			require.NoError(t, err)

			tr := readTrailer(t, doc)
			assert.Equal(t, uint64(tt.elements+1), tr.NumObjects)
			assert.Equal(t, tt.refSize, tr.ObjectRefSize)

			got, err := decodeBinary(doc)
			require.NoError(t, err)
			assert.True(t, root.Equal(got))
		})
	}
}

func TestBplistOffsetWidth(t *testing.T) {
	doc, err := Marshal(String("a"), BinaryFormat)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), readTrailer(t, doc).OffsetIntSize)

	// The last integer record sits past offset 127.
	doc, err = Marshal(distinctIntegers(100), BinaryFormat)
	require.NoError(t, err)
	tr := readTrailer(t, doc)
	assert.Equal(t, uint8(2), tr.OffsetIntSize)
	assert.Equal(t, uint64(len(doc)-bplistTrailerSize)-tr.OffsetTableOffset, 2*tr.NumObjects)
}

func TestBplistCountBoundary(t *testing.T) {
	strs := func(n int) []Value {
		values := make([]Value, n)
		for i := range values {
			values[i] = String(fmt.Sprintf("s%02d", i))
		}
		return values
	}
	dict := func(n int) *Dict {
		d := NewDict()
		for i, s := range strs(n) {
			d.Set(string(s.(String)), NewInteger(int64(i)))
		}
		return d
	}

	tests := []struct {
		name   string
		root   Value
		n      int
		marker []byte
	}{
		{"array 14", NewArray(strs(14)...), 14, []byte{0xAE}},
		{"array 15", NewArray(strs(15)...), 15, []byte{0xAF, 0x10, 0x0F}},
		{"dict 14", dict(14), 14, []byte{0xDE}},
		{"dict 15", dict(15), 15, []byte{0xDF, 0x10, 0x0F}},
		{"string 14", String("abcdefghijklmn"), 14, []byte{0x5E, 'a'}},
		{"string 15", String("abcdefghijklmno"), 15, []byte{0x5F, 0x10, 0x0F, 'a'}},
		{"data 15", Data("abcdefghijklmno"), 15, []byte{0x4F, 0x10, 0x0F, 'a'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Marshal(tt.root, BinaryFormat)
			require.NoError(t, err)
			assert.Equal(t, tt.marker, doc[8:8+len(tt.marker)])

			got, err := decodeBinary(doc)
			require.NoError(t, err)
			assert.True(t, tt.root.Equal(got))
			switch got := got.(type) {
			case *Array:
				assert.Equal(t, tt.n, got.Len())
			case *Dict:
				assert.Equal(t, tt.n, got.Len())
			case String:
				assert.Len(t, string(got), tt.n)
			case Data:
				assert.Len(t, got, tt.n)
			}
		})
	}
}

func TestBplistDateNanoseconds(t *testing.T) {
	times := []time.Time{
		time.Date(2020, 1, 2, 3, 4, 5, 123456789, time.UTC),
		time.Date(2020, 1, 2, 3, 4, 5, 1, time.UTC),
		time.Date(1969, 7, 20, 20, 17, 40, 999999999, time.FixedZone("EST", -5*3600)),
		time.Date(9000, 1, 2, 3, 4, 5, 500000, time.UTC),
		time.Now(),
	}
	for _, in := range times {
		doc, err := Marshal(Date(in), BinaryFormat)
		require.NoError(t, err)
		got, err := decodeBinary(doc)
		require.NoError(t, err)
		assert.True(t, Date(in).Equal(got), "in=%v out=%v", in, got.Interface())
		assert.Equal(t, Date(in).Hash(), got.Hash())

		again, err := Marshal(got, BinaryFormat)
		require.NoError(t, err)
		assert.Equal(t, doc, again)

		if in.Year() < 3000 {
			diff := got.(Date).Time().Sub(in)
			assert.True(t, diff > -time.Microsecond && diff < time.Microsecond, "drift %v", diff)
		}

		var tm time.Time
		_, err = Unmarshal(doc, &tm)
		require.NoError(t, err)
		assert.True(t, Date(in).Equal(Date(tm)))
	}
}

func TestBplistRecordEncodings(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want []byte
	}{
		{"true", NewBool(true), []byte{0x09}},
		{"false", NewBool(false), []byte{0x08}},
		{"int8", NewInteger(200), []byte{0x10, 0xC8}},
		{"int16", NewInteger(0x1234), []byte{0x11, 0x12, 0x34}},
		{"int32", NewInteger(0x10000), []byte{0x12, 0, 1, 0, 0}},
		{"negative", NewInteger(-1), []byte{0x13, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{"real", NewReal(1), []byte{0x23, 0x3f, 0xf0, 0, 0, 0, 0, 0, 0}},
		{"epoch", Date(time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)), []byte{0x33, 0, 0, 0, 0, 0, 0, 0, 0}},
		{"data", Data{7, 8}, []byte{0x42, 7, 8}},
		{"utf16", String("é"), []byte{0x61, 0x00, 0xE9}},
		{"uid", UID(0x0102), []byte{0x81, 0x01, 0x02}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Marshal(tt.v, BinaryFormat)
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc[8:8+len(tt.want)])
		})
	}
}

func TestBplistTypeDiscrimination(t *testing.T) {
	root := NewArray(NewBool(true), NewInteger(1), NewReal(1), String("1"), UID(1))
	doc, err := Marshal(root, BinaryFormat)
	require.NoError(t, err)
	got, err := decodeBinary(doc)
	require.NoError(t, err)
	arr, err := AsArray(got)
	require.NoError(t, err)

	b, err := AsNumber(arr.At(0))
	require.NoError(t, err)
	assert.True(t, b.IsBoolean())
	_, err = b.Int()
	assert.Error(t, err)

	i, err := AsNumber(arr.At(1))
	require.NoError(t, err)
	assert.True(t, i.IsInteger())

	r, err := AsNumber(arr.At(2))
	require.NoError(t, err)
	assert.True(t, r.IsReal())

	assert.Equal(t, StringKind, arr.At(3).Kind())
	assert.Equal(t, UIDKind, arr.At(4).Kind())
}

func TestBplistHandcrafted(t *testing.T) {
	doc := handcraft(1, 0,
		[]byte{0xA2, 1, 2},
		[]byte{0x10, 0x05},
		[]byte{0x52, 'h', 'i'},
	)
	got, err := decodeBinary(doc)
	require.NoError(t, err)
	assert.True(t, NewArray(NewInteger(5), String("hi")).Equal(got))
}

func TestBplistLatin1String(t *testing.T) {
	doc := handcraft(1, 0, []byte{0x52, 'a', 0xE9})
	got, err := decodeBinary(doc)
	require.NoError(t, err)
	assert.Equal(t, String("aé"), got)
}

func TestBplistWideIntegers(t *testing.T) {
	wide := append([]byte{0x14}, make([]byte, 16)...)
	wide[16] = 9
	doc := handcraft(1, 0, []byte{0xA2, 1, 2}, wide, []byte{0x22, 0x3f, 0xc0, 0, 0})
	got, err := decodeBinary(doc)
	require.NoError(t, err)
	assert.True(t, NewArray(NewInteger(9), NewReal(1.5)).Equal(got))
}

func TestBplistSharedSubtree(t *testing.T) {
	doc := handcraft(1, 0,
		[]byte{0xA2, 1, 1},
		[]byte{0xA1, 2},
		[]byte{0x09},
	)
	got, err := decodeBinary(doc)
	require.NoError(t, err)
	arr := got.(*Array)
	require.Equal(t, 2, arr.Len())
	assert.True(t, arr.At(0).Equal(arr.At(1)))
}

func TestBplistDuplicateKeys(t *testing.T) {
	doc := handcraft(1, 0,
		[]byte{0xD2, 1, 1, 2, 3},
		[]byte{0x51, 'k'},
		[]byte{0x10, 1},
		[]byte{0x10, 2},
	)
	got, err := decodeBinary(doc)
	require.NoError(t, err)
	d := got.(*Dict)
	assert.Equal(t, []string{"k"}, d.Keys())
	v, _ := d.Get("k")
	assert.True(t, NewInteger(2).Equal(v))
}

func TestBplistCycleRejected(t *testing.T) {
	doc := handcraft(1, 0,
		[]byte{0xA3, 1, 2, 3},
		[]byte{0x10, 0x01},
		[]byte{0x51, 'a'},
		[]byte{0xA1, 3},
	)
	ferr := requireFormatError(t, func() error { _, err := decodeBinary(doc); return err }())
	assert.Contains(t, ferr.Error(), "references itself")

	// The cycle may run through several containers.
	doc = handcraft(1, 0,
		[]byte{0xA1, 1},
		[]byte{0xD1, 2, 0},
		[]byte{0x51, 'k'},
	)
	_, err := decodeBinary(doc)
	requireFormatError(t, err)
}

func TestBplistMalformed(t *testing.T) {
	valid, err := Marshal(NewArray(String("a"), NewInteger(1)), BinaryFormat)
	require.NoError(t, err)

	corrupt := func(fn func(doc []byte) []byte) []byte {
		doc := append([]byte{}, valid...)
		return fn(doc)
	}
	trailer := len(valid) - bplistTrailerSize

	tests := []struct {
		name string
		doc  []byte
	}{
		{"empty", nil},
		{"short", []byte("bplist00")},
		{"magic", corrupt(func(d []byte) []byte { copy(d, "notplist"); return d })},
		{"version", corrupt(func(d []byte) []byte { copy(d[6:], "01"); return d })},
		{"truncated", valid[:len(valid)-1]},
		{"offset width", corrupt(func(d []byte) []byte { d[trailer+6] = 0; return d })},
		{"ref width", corrupt(func(d []byte) []byte { d[trailer+7] = 9; return d })},
		{"no objects", corrupt(func(d []byte) []byte {
			binary.BigEndian.PutUint64(d[trailer+8:], 0)
			return d
		})},
		{"too many objects", corrupt(func(d []byte) []byte {
			binary.BigEndian.PutUint64(d[trailer+8:], 1000)
			return d
		})},
		{"top object", corrupt(func(d []byte) []byte {
			binary.BigEndian.PutUint64(d[trailer+16:], 3)
			return d
		})},
		{"table offset", corrupt(func(d []byte) []byte {
			binary.BigEndian.PutUint64(d[trailer+24:], uint64(len(d)))
			return d
		})},
		{"object offset", corrupt(func(d []byte) []byte {
			d[trailer-1] = 0xff
			return d
		})},
		{"object ref", corrupt(func(d []byte) []byte { d[9] = 0x7f; return d })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeBinary(tt.doc)
			requireFormatError(t, err)
		})
	}
}

func TestBplistRejectedRecords(t *testing.T) {
	tests := []struct {
		name    string
		records [][]byte
	}{
		{"null", [][]byte{{0x00}}},
		{"fill", [][]byte{{0x0F}}},
		{"set", [][]byte{{0xC1, 0}}},
		{"unknown", [][]byte{{0x70}}},
		{"non-string key", [][]byte{{0xD1, 1, 2}, {0x10, 1}, {0x10, 2}}},
		{"string runs past table", [][]byte{{0x5A, 'a'}}},
		{"count not an integer", [][]byte{{0x5F, 0x51, 'a'}}},
		{"bad real width", [][]byte{{0x21, 0, 0}}},
		{"bad date width", [][]byte{{0x32, 0, 0, 0, 0}}},
		{"nan date", [][]byte{{0x33, 0x7f, 0xf8, 0, 0, 0, 0, 0, 1}}},
		{"integer width", [][]byte{{0x15, 0, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeBinary(handcraft(1, 0, tt.records...))
			requireFormatError(t, err)
		})
	}
}

// chain builds n one-element arrays, each holding the next, ending in true.
func chain(n int) []byte {
	records := make([][]byte, n+1)
	for i := 0; i < n; i++ {
		rec := []byte{0xA1, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(rec[1:], uint32(i+1))
		records[i] = rec
	}
	records[n] = []byte{0x09}
	return handcraftSized(4, 4, 0, records...)
}

func TestBplistNestingLimit(t *testing.T) {
	got, err := decodeBinary(chain(maxNestingDepth - 1))
	require.NoError(t, err)
	for i := 0; i < maxNestingDepth-1; i++ {
		got = got.(*Array).At(0)
	}
	assert.True(t, NewBool(true).Equal(got))

	_, err = decodeBinary(chain(maxNestingDepth + 5))
	ferr := requireFormatError(t, err)
	assert.Contains(t, ferr.Error(), "nested deeper")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestBplistWriteError(t *testing.T) {
	err := NewBinaryEncoder(failingWriter{}).Encode(sampleTree())
	var ioerr *IOError
	require.True(t, errors.As(err, &ioerr), "got %T: %v", err, err)
	assert.Contains(t, ioerr.Error(), "disk full")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("device gone") }

func TestBplistReadError(t *testing.T) {
	_, err := newBplistParser(failingReader{}).parseDocument()
	var ioerr *IOError
	require.True(t, errors.As(err, &ioerr), "got %T: %v", err, err)
}
