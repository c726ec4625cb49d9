package plist

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"time"
	"unicode/utf16"
)

// countedWriter tracks the stream position and keeps the first write error.
type countedWriter struct {
	w   *bufio.Writer
	n   uint64
	err error
}

func (w *countedWriter) Write(b []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	n, err := w.w.Write(b)
	w.n += uint64(n)
	if err != nil {
		w.err = err
	}
	return n, err
}

func (w *countedWriter) WriteByte(c byte) error {
	_, err := w.Write([]byte{c})
	return err
}

func (w *countedWriter) flush() error {
	if w.err == nil {
		w.err = w.w.Flush()
	}
	return w.err
}

type bplistGenerator struct {
	writer   *countedWriter
	objtable *objectTable
	offsets  []uint64
	trailer  bplistTrailer
	scratch  [8]byte
}

// minimumSizeForInt is the payload width of an integer record. Widths below
// eight bytes are read back as unsigned.
func minimumSizeForInt(n uint64) int {
	switch {
	case n <= math.MaxUint8:
		return 1
	case n <= math.MaxUint16:
		return 2
	case n <= math.MaxUint32:
		return 4
	default:
		return 8
	}
}

// minimumRefSize is the width used for object references and offset table
// entries: the smallest width whose signed positive range holds n.
func minimumRefSize(n uint64) int {
	switch {
	case n <= math.MaxInt8:
		return 1
	case n <= math.MaxInt16:
		return 2
	case n <= math.MaxInt32:
		return 4
	default:
		return 8
	}
}

// Indent is a no-op: binary property lists have no layout.
func (p *bplistGenerator) Indent(string) {}

func (p *bplistGenerator) generateDocument(root Value) error {
	p.objtable = buildObjectTable(root)
	numObjects := uint64(len(p.objtable.objects))

	p.trailer.NumObjects = numObjects
	p.trailer.ObjectRefSize = uint8(minimumRefSize(numObjects - 1))
	p.trailer.TopObject = p.objtable.idFor(root)

	p.writer.Write([]byte(bplistHeader))

	p.offsets = make([]uint64, numObjects)
	for i, obj := range p.objtable.objects {
		p.offsets[i] = p.writer.n
		p.writeObject(obj)
	}

	p.trailer.OffsetTableOffset = p.writer.n
	p.trailer.OffsetIntSize = uint8(minimumRefSize(p.offsets[numObjects-1]))
	for _, off := range p.offsets {
		p.writeSizedInt(off, int(p.trailer.OffsetIntSize))
	}

	binary.Write(p.writer, binary.BigEndian, p.trailer)
	if err := p.writer.flush(); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

func (p *bplistGenerator) writeSizedInt(n uint64, nbytes int) {
	binary.BigEndian.PutUint64(p.scratch[:], n)
	p.writer.Write(p.scratch[8-nbytes:])
}

func (p *bplistGenerator) writeIntTag(n int64) {
	if n < 0 {
		p.writer.WriteByte(bpTagInteger | 0x3)
		p.writeSizedInt(uint64(n), 8)
		return
	}
	nbytes := minimumSizeForInt(uint64(n))
	var lg uint8
	switch nbytes {
	case 2:
		lg = 1
	case 4:
		lg = 2
	case 8:
		lg = 3
	}
	p.writer.WriteByte(bpTagInteger | lg)
	p.writeSizedInt(uint64(n), nbytes)
}

// writeCountedTag writes a marker with an inline count, or 0xF followed by an
// integer record when the count does not fit in the low nibble.
func (p *bplistGenerator) writeCountedTag(tag uint8, count uint64) {
	if count <= bpMaxInlineCnt {
		p.writer.WriteByte(tag | uint8(count))
		return
	}
	p.writer.WriteByte(tag | bpCountFollows)
	p.writeIntTag(int64(count))
}

func (p *bplistGenerator) writeRef(v Value) {
	p.writeSizedInt(p.objtable.idFor(v), int(p.trailer.ObjectRefSize))
}

func (p *bplistGenerator) writeObject(v Value) {
	switch v := v.(type) {
	case String:
		p.writeStringTag(string(v))
	case Number:
		switch v.kind {
		case integerNumber:
			p.writeIntTag(int64(v.bits))
		case realNumber:
			p.writer.WriteByte(bpTagReal | 0x3)
			p.writeSizedInt(v.bits, 8)
		case booleanNumber:
			if v.bits != 0 {
				p.writer.WriteByte(bpTagBoolTrue)
			} else {
				p.writer.WriteByte(bpTagBoolFalse)
			}
		}
	case Date:
		p.writer.WriteByte(bpTagDate | 0x3)
		p.writeSizedInt(math.Float64bits(cocoaSeconds(time.Time(v))), 8)
	case Data:
		p.writeCountedTag(bpTagData, uint64(len(v)))
		p.writer.Write(v)
	case UID:
		nbytes := minimumSizeForInt(uint64(v))
		p.writer.WriteByte(bpTagUID | uint8(nbytes-1))
		p.writeSizedInt(uint64(v), nbytes)
	case *Array:
		p.writeCountedTag(bpTagArray, uint64(len(v.values)))
		for _, e := range v.values {
			p.writeRef(e)
		}
	case *Dict:
		p.writeCountedTag(bpTagDictionary, uint64(len(v.keys)))
		for _, k := range v.keys {
			p.writeRef(String(k))
		}
		for _, k := range v.keys {
			p.writeRef(v.values[k])
		}
	}
}

func (p *bplistGenerator) writeStringTag(s string) {
	if String(s).isASCII() {
		p.writeCountedTag(bpTagASCIIString, uint64(len(s)))
		p.writer.Write([]byte(s))
		return
	}
	units := utf16.Encode([]rune(s))
	p.writeCountedTag(bpTagUTF16String, uint64(len(units)))
	buf := make([]byte, 2*len(units))
	for i, u := range units {
		binary.BigEndian.PutUint16(buf[2*i:], u)
	}
	p.writer.Write(buf)
}

func cocoaSeconds(t time.Time) float64 {
	return float64(t.Unix()-unixToCocoa) + float64(t.Nanosecond())/1e9
}

func newBplistGenerator(w io.Writer) *bplistGenerator {
	return &bplistGenerator{
		writer: &countedWriter{w: bufio.NewWriter(w)},
	}
}
