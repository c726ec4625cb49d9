package plist

import (
	"bytes"
	"math"
	"time"
)

// Kind identifies the variant of a Value.
type Kind uint8

const (
	InvalidKind Kind = iota
	DictKind
	ArrayKind
	StringKind
	NumberKind
	DateKind
	DataKind
	UIDKind
)

var kindNames = [...]string{
	InvalidKind: "invalid",
	DictKind:    "dict",
	ArrayKind:   "array",
	StringKind:  "string",
	NumberKind:  "number",
	DateKind:    "date",
	DataKind:    "data",
	UIDKind:     "uid",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Value is one node of a property list tree. The set of implementations is
// closed: *Dict, *Array, String, Number, Date, Data and UID.
type Value interface {
	Kind() Kind
	// Equal reports structural equality. Dictionary order is ignored.
	Equal(Value) bool
	// Hash is consistent with Equal and stable across runs.
	Hash() uint64
	// Interface returns the value as plain Go data: map[string]interface{},
	// []interface{}, string, int64, float64, bool, time.Time, []byte or UID.
	Interface() interface{}

	plistValue()
}

// String is a text value. It must hold valid UTF-8; encoders reject
// anything else with an UnsupportedValueError.
type String string

func (String) Kind() Kind { return StringKind }
func (String) plistValue() {}

func (s String) Equal(o Value) bool {
	t, ok := o.(String)
	return ok && s == t
}

func (s String) Hash() uint64           { return hashValue(s, nil) }
func (s String) Interface() interface{} { return string(s) }

// isASCII reports whether s can be stored as a single-byte string.
func (s String) isASCII() bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

type numberKind uint8

const (
	integerNumber numberKind = iota + 1
	realNumber
	booleanNumber
)

var numberKindNames = map[numberKind]string{
	integerNumber: "integer",
	realNumber:    "real",
	booleanNumber: "boolean",
}

// Number is an integer, a real or a boolean. The three are distinct: an
// integer 1 is not equal to the boolean true or the real 1.0.
type Number struct {
	kind numberKind
	bits uint64
}

// NewInteger returns an integer Number.
func NewInteger(i int64) Number { return Number{kind: integerNumber, bits: uint64(i)} }

// NewReal returns a real Number.
func NewReal(f float64) Number { return Number{kind: realNumber, bits: math.Float64bits(f)} }

// NewBool returns a boolean Number.
func NewBool(b bool) Number {
	n := Number{kind: booleanNumber}
	if b {
		n.bits = 1
	}
	return n
}

func (Number) Kind() Kind  { return NumberKind }
func (Number) plistValue() {}

func (n Number) IsInteger() bool { return n.kind == integerNumber }
func (n Number) IsReal() bool    { return n.kind == realNumber }
func (n Number) IsBoolean() bool { return n.kind == booleanNumber }

func (n Number) mismatch(want numberKind) error {
	got := numberKindNames[n.kind]
	if got == "" {
		got = "invalid number"
	}
	return &TypeMismatchError{Want: numberKindNames[want], Got: got}
}

// Int returns the value of an integer Number.
func (n Number) Int() (int64, error) {
	if n.kind != integerNumber {
		return 0, n.mismatch(integerNumber)
	}
	return int64(n.bits), nil
}

// Float returns the value of a real Number.
func (n Number) Float() (float64, error) {
	if n.kind != realNumber {
		return 0, n.mismatch(realNumber)
	}
	return math.Float64frombits(n.bits), nil
}

// Bool returns the value of a boolean Number.
func (n Number) Bool() (bool, error) {
	if n.kind != booleanNumber {
		return false, n.mismatch(booleanNumber)
	}
	return n.bits != 0, nil
}

// Equal compares reals by bit pattern, so NaN equals itself and -0 does
// not equal +0.
func (n Number) Equal(o Value) bool {
	m, ok := o.(Number)
	return ok && n == m
}

func (n Number) Hash() uint64 { return hashValue(n, nil) }

func (n Number) Interface() interface{} {
	switch n.kind {
	case integerNumber:
		return int64(n.bits)
	case realNumber:
		return math.Float64frombits(n.bits)
	case booleanNumber:
		return n.bits != 0
	}
	return nil
}

// Date is an absolute point in time.
type Date time.Time

func (Date) Kind() Kind  { return DateKind }
func (Date) plistValue() {}

func (d Date) Time() time.Time { return time.Time(d) }

// Equal compares dates at the precision a binary property list stores them,
// a double of seconds since 2001-01-01. Dates that encode to the same double
// are equal, so a decoded date always equals the date it was encoded from.
func (d Date) Equal(o Value) bool {
	e, ok := o.(Date)
	return ok && d.bits() == e.bits()
}

func (d Date) bits() uint64 { return math.Float64bits(cocoaSeconds(time.Time(d))) }

func (d Date) Hash() uint64           { return hashValue(d, nil) }
func (d Date) Interface() interface{} { return time.Time(d) }

// Data is a raw byte blob. It must not be modified once part of a tree.
type Data []byte

// NewData copies b into a Data value.
func NewData(b []byte) Data {
	return Data(append([]byte{}, b...))
}

func (Data) Kind() Kind  { return DataKind }
func (Data) plistValue() {}

func (d Data) Equal(o Value) bool {
	e, ok := o.(Data)
	return ok && bytes.Equal(d, e)
}

func (d Data) Hash() uint64           { return hashValue(d, nil) }
func (d Data) Interface() interface{} { return []byte(d) }

// UID is an opaque reference used by keyed archives. It is unrelated to the
// object references of the binary format.
type UID uint64

func (UID) Kind() Kind  { return UIDKind }
func (UID) plistValue() {}

func (u UID) Equal(o Value) bool {
	v, ok := o.(UID)
	return ok && u == v
}

func (u UID) Hash() uint64           { return hashValue(u, nil) }
func (u UID) Interface() interface{} { return u }

// Array is an ordered sequence of values.
type Array struct {
	values []Value
}

// NewArray returns an Array holding values.
func NewArray(values ...Value) *Array {
	return &Array{values: append([]Value(nil), values...)}
}

func (*Array) Kind() Kind  { return ArrayKind }
func (*Array) plistValue() {}

func (a *Array) Len() int { return len(a.values) }

// At returns the i'th element.
func (a *Array) At(i int) Value { return a.values[i] }

// Append adds values to the end of the array.
func (a *Array) Append(values ...Value) { a.values = append(a.values, values...) }

// Values returns the elements. The slice is shared with the array.
func (a *Array) Values() []Value { return a.values }

func (a *Array) Equal(o Value) bool {
	b, ok := o.(*Array)
	if !ok || len(a.values) != len(b.values) {
		return false
	}
	if a == b {
		return true
	}
	for i, v := range a.values {
		if !v.Equal(b.values[i]) {
			return false
		}
	}
	return true
}

func (a *Array) Hash() uint64 { return hashValue(a, nil) }

func (a *Array) Interface() interface{} {
	out := make([]interface{}, len(a.values))
	for i, v := range a.values {
		out[i] = v.Interface()
	}
	return out
}

// AsDict returns v as a dictionary.
func AsDict(v Value) (*Dict, error) {
	d, ok := v.(*Dict)
	if !ok {
		return nil, kindMismatch(DictKind, v)
	}
	return d, nil
}

// AsArray returns v as an array.
func AsArray(v Value) (*Array, error) {
	a, ok := v.(*Array)
	if !ok {
		return nil, kindMismatch(ArrayKind, v)
	}
	return a, nil
}

// AsString returns the text of a String value.
func AsString(v Value) (string, error) {
	s, ok := v.(String)
	if !ok {
		return "", kindMismatch(StringKind, v)
	}
	return string(s), nil
}

// AsNumber returns v as a Number.
func AsNumber(v Value) (Number, error) {
	n, ok := v.(Number)
	if !ok {
		return Number{}, kindMismatch(NumberKind, v)
	}
	return n, nil
}

// AsDate returns the time of a Date value.
func AsDate(v Value) (time.Time, error) {
	d, ok := v.(Date)
	if !ok {
		return time.Time{}, kindMismatch(DateKind, v)
	}
	return time.Time(d), nil
}

// AsData returns the bytes of a Data value.
func AsData(v Value) ([]byte, error) {
	d, ok := v.(Data)
	if !ok {
		return nil, kindMismatch(DataKind, v)
	}
	return []byte(d), nil
}

// AsUID returns v as a UID.
func AsUID(v Value) (UID, error) {
	u, ok := v.(UID)
	if !ok {
		return 0, kindMismatch(UIDKind, v)
	}
	return u, nil
}

func kindMismatch(want Kind, v Value) error {
	got := InvalidKind
	if v != nil {
		got = v.Kind()
	}
	return &TypeMismatchError{Want: want.String(), Got: got.String()}
}
