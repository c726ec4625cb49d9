package plist

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"io/ioutil"
	"math"
	"runtime"
	"time"
	"unicode/utf16"
)

const (
	objectUnresolved uint8 = iota
	objectResolving
	objectResolved
)

type bplistParser struct {
	reader  io.Reader
	buffer  []byte
	trailer bplistTrailer
	offsets []uint64
	objects []Value
	state   []uint8
	depth   int
}

func (p *bplistParser) panicf(offset uint64, msg string, args ...interface{}) {
	panic(formatErrorf("binary", int64(offset), msg, args...))
}

func (p *bplistParser) parseDocument() (pval Value, parseError error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(runtime.Error); ok {
				panic(r)
			}
			pval = nil
			switch err := r.(type) {
			case *FormatError:
				parseError = err
			case error:
				parseError = &FormatError{Format: "binary", Offset: -1, Err: err}
			default:
				panic(r)
			}
		}
	}()

	buffer, err := ioutil.ReadAll(p.reader)
	if err != nil {
		return nil, &IOError{Op: "read", Err: err}
	}
	p.buffer = buffer

	if len(p.buffer) < len(bplistHeader)+bplistTrailerSize {
		panic(&FormatError{Format: "binary", Offset: -1, Err: errors.New("document too short")})
	}
	if string(p.buffer[:len(bplistMagic)]) != bplistMagic {
		p.panicf(0, "missing bplist magic")
	}
	if v := string(p.buffer[len(bplistMagic):len(bplistHeader)]); v != bplistVersion {
		p.panicf(uint64(len(bplistMagic)), "unsupported version %q", v)
	}

	p.parseTrailer()
	p.parseOffsetTable()

	p.objects = make([]Value, p.trailer.NumObjects)
	p.state = make([]uint8, p.trailer.NumObjects)
	return p.objectAtIndex(p.trailer.TopObject), nil
}

func (p *bplistParser) parseTrailer() {
	trailerOffset := uint64(len(p.buffer) - bplistTrailerSize)
	binary.Read(bytes.NewReader(p.buffer[trailerOffset:]), binary.BigEndian, &p.trailer)
	t := &p.trailer

	if t.OffsetIntSize < 1 || t.OffsetIntSize > 8 {
		p.panicf(trailerOffset, "invalid offset table entry width %d", t.OffsetIntSize)
	}
	if t.ObjectRefSize < 1 || t.ObjectRefSize > 8 {
		p.panicf(trailerOffset, "invalid object reference width %d", t.ObjectRefSize)
	}
	if t.NumObjects == 0 {
		p.panicf(trailerOffset, "no objects")
	}
	if t.TopObject >= t.NumObjects {
		p.panicf(trailerOffset, "top object #%d out of range (%d objects)", t.TopObject, t.NumObjects)
	}
	if t.OffsetTableOffset < uint64(len(bplistHeader)) || t.OffsetTableOffset > trailerOffset {
		p.panicf(trailerOffset, "offset table start %#x out of range", t.OffsetTableOffset)
	}
	if t.NumObjects > (trailerOffset-t.OffsetTableOffset)/uint64(t.OffsetIntSize) {
		p.panicf(t.OffsetTableOffset, "offset table too small for %d objects", t.NumObjects)
	}
	// Each object takes at least one byte of the object area.
	if t.NumObjects > t.OffsetTableOffset-uint64(len(bplistHeader)) {
		p.panicf(trailerOffset, "%d objects do not fit before the offset table", t.NumObjects)
	}
}

func (p *bplistParser) parseOffsetTable() {
	width := int(p.trailer.OffsetIntSize)
	p.offsets = make([]uint64, p.trailer.NumObjects)
	for i := range p.offsets {
		at := p.trailer.OffsetTableOffset + uint64(i*width)
		off := p.readSizedUint(at, width)
		if off < uint64(len(bplistHeader)) || off >= p.trailer.OffsetTableOffset {
			p.panicf(at, "object #%d offset %#x outside the object area", i, off)
		}
		p.offsets[i] = off
	}
}

// need panics unless n bytes starting at off lie inside the object area.
func (p *bplistParser) need(off, n uint64) {
	limit := p.trailer.OffsetTableOffset
	if off > limit || n > limit-off {
		p.panicf(off, "record truncated: need %d bytes", n)
	}
}

func (p *bplistParser) readSizedUint(off uint64, nbytes int) uint64 {
	var n uint64
	for _, b := range p.buffer[off : off+uint64(nbytes)] {
		n = n<<8 | uint64(b)
	}
	return n
}

func (p *bplistParser) objectAtIndex(id uint64) Value {
	if id >= p.trailer.NumObjects {
		p.panicf(p.trailer.OffsetTableOffset, "object reference #%d out of range", id)
	}
	switch p.state[id] {
	case objectResolved:
		return p.objects[id]
	case objectResolving:
		p.panicf(p.offsets[id], "object #%d references itself", id)
	}
	p.state[id] = objectResolving
	p.depth++
	if p.depth > maxNestingDepth {
		p.panicf(p.offsets[id], "objects nested deeper than %d", maxNestingDepth)
	}
	v := p.parseObjectAt(p.offsets[id])
	p.depth--
	p.objects[id] = v
	p.state[id] = objectResolved
	return v
}

// parseIntegerAt reads an integer record and returns its value and the offset
// just past it.
func (p *bplistParser) parseIntegerAt(off uint64) (int64, uint64) {
	p.need(off, 1)
	marker := p.buffer[off]
	if marker&0xF0 != bpTagInteger {
		p.panicf(off, "expected integer, found marker %#02x", marker)
	}
	lg := marker & 0x0F
	if lg > 4 {
		p.panicf(off, "invalid integer width 2^%d", lg)
	}
	nbytes := uint64(1) << lg
	p.need(off+1, nbytes)
	start := off + 1
	if nbytes == 16 {
		// The high half only carries the sign extension of values past int64.
		start += 8
		nbytes = 8
	}
	return int64(p.readSizedUint(start, int(nbytes))), start + nbytes
}

// countForTag decodes the element count of a record and returns it with the
// offset of the record's payload.
func (p *bplistParser) countForTag(off uint64) (uint64, uint64) {
	marker := p.buffer[off]
	if cnt := marker & 0x0F; cnt != bpCountFollows {
		return uint64(cnt), off + 1
	}
	n, next := p.parseIntegerAt(off + 1)
	if n < 0 {
		p.panicf(off, "negative count %d", n)
	}
	return uint64(n), next
}

// countedPayload checks that cnt units of unit bytes follow at start.
func (p *bplistParser) countedPayload(off, cnt, unit, start uint64) {
	if cnt > (math.MaxUint64 / unit) {
		p.panicf(off, "count %d overflows", cnt)
	}
	p.need(start, cnt*unit)
}

func (p *bplistParser) parseObjectAt(off uint64) Value {
	p.need(off, 1)
	marker := p.buffer[off]
	switch marker & 0xF0 {
	case 0x00:
		switch marker {
		case bpTagBoolFalse:
			return NewBool(false)
		case bpTagBoolTrue:
			return NewBool(true)
		case bpTagNull:
			p.panicf(off, "null objects are not supported")
		case bpTagFill:
			p.panicf(off, "unexpected fill byte")
		}
		p.panicf(off, "unknown marker %#02x", marker)
	case bpTagInteger:
		n, _ := p.parseIntegerAt(off)
		return NewInteger(n)
	case bpTagReal:
		switch marker & 0x0F {
		case 0x2:
			p.need(off+1, 4)
			return NewReal(float64(math.Float32frombits(uint32(p.readSizedUint(off+1, 4)))))
		case 0x3:
			p.need(off+1, 8)
			return NewReal(math.Float64frombits(p.readSizedUint(off+1, 8)))
		}
		p.panicf(off, "invalid real width marker %#02x", marker)
	case bpTagDate:
		if marker != bpTagDate|0x3 {
			p.panicf(off, "invalid date marker %#02x", marker)
		}
		p.need(off+1, 8)
		secs := math.Float64frombits(p.readSizedUint(off+1, 8))
		if math.IsNaN(secs) || math.Abs(secs) > maxCocoaSeconds {
			p.panicf(off, "invalid date %v", secs)
		}
		return Date(timeFromCocoa(secs))
	case bpTagData:
		cnt, start := p.countForTag(off)
		p.countedPayload(off, cnt, 1, start)
		return NewData(p.buffer[start : start+cnt])
	case bpTagASCIIString:
		cnt, start := p.countForTag(off)
		p.countedPayload(off, cnt, 1, start)
		raw := p.buffer[start : start+cnt]
		runes := make([]rune, len(raw))
		for i, b := range raw {
			runes[i] = rune(b)
		}
		return String(runes)
	case bpTagUTF16String:
		cnt, start := p.countForTag(off)
		p.countedPayload(off, cnt, 2, start)
		units := make([]uint16, cnt)
		for i := range units {
			units[i] = binary.BigEndian.Uint16(p.buffer[start+uint64(2*i):])
		}
		return String(utf16.Decode(units))
	case bpTagUID:
		nbytes := uint64(marker&0x0F) + 1
		if nbytes > 8 {
			p.panicf(off, "invalid uid width %d", nbytes)
		}
		p.need(off+1, nbytes)
		return UID(p.readSizedUint(off+1, int(nbytes)))
	case bpTagArray:
		cnt, start := p.countForTag(off)
		refs := p.readRefs(off, cnt, start)
		values := make([]Value, len(refs))
		for i, ref := range refs {
			values[i] = p.objectAtIndex(ref)
		}
		return &Array{values: values}
	case bpTagDictionary:
		cnt, start := p.countForTag(off)
		if cnt > math.MaxUint64/2 {
			p.panicf(off, "count %d overflows", cnt)
		}
		refs := p.readRefs(off, 2*cnt, start)
		dict := &Dict{keys: make([]string, 0, cnt), values: make(map[string]Value, cnt)}
		for i := uint64(0); i < cnt; i++ {
			key, ok := p.objectAtIndex(refs[i]).(String)
			if !ok {
				p.panicf(off, "dictionary key #%d is not a string", i)
			}
			dict.Set(string(key), p.objectAtIndex(refs[cnt+i]))
		}
		return dict
	case bpTagSet:
		p.panicf(off, "sets are not supported")
	}
	p.panicf(off, "unknown marker %#02x", marker)
	return nil
}

func (p *bplistParser) readRefs(off, cnt, start uint64) []uint64 {
	width := uint64(p.trailer.ObjectRefSize)
	p.countedPayload(off, cnt, width, start)
	refs := make([]uint64, cnt)
	for i := range refs {
		refs[i] = p.readSizedUint(start+uint64(i)*width, int(width))
	}
	return refs
}

// timeFromCocoa is the inverse of cocoaSeconds: for any t,
// cocoaSeconds(timeFromCocoa(cocoaSeconds(t))) == cocoaSeconds(t).
func timeFromCocoa(secs float64) time.Time {
	whole := math.Floor(secs)
	nsec := math.Round((secs - whole) * 1e9)
	if nsec >= 1e9 {
		whole++
		nsec -= 1e9
	}
	return time.Unix(int64(whole)+unixToCocoa, int64(nsec)).In(time.UTC)
}

func newBplistParser(r io.Reader) *bplistParser {
	return &bplistParser{reader: r}
}
