package plist

// Dict maps unique string keys to values and remembers insertion order.
// Order is kept for serialization; it does not take part in equality.
type Dict struct {
	keys   []string
	values map[string]Value
}

// NewDict returns an empty dictionary.
func NewDict() *Dict {
	return &Dict{values: make(map[string]Value)}
}

func (*Dict) Kind() Kind  { return DictKind }
func (*Dict) plistValue() {}

func (d *Dict) Len() int { return len(d.keys) }

// Set stores v under key. Replacing an existing key keeps its position.
func (d *Dict) Set(key string, v Value) {
	if d.values == nil {
		d.values = make(map[string]Value)
	}
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

// Get returns the value stored under key.
func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Delete removes key, if present.
func (d *Dict) Delete(key string) {
	if _, ok := d.values[key]; !ok {
		return
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order. The slice is shared with the dict.
func (d *Dict) Keys() []string { return d.keys }

// Range calls fn for each entry in insertion order until fn returns false.
func (d *Dict) Range(fn func(key string, v Value) bool) {
	for _, k := range d.keys {
		if !fn(k, d.values[k]) {
			return
		}
	}
}

func (d *Dict) Equal(o Value) bool {
	e, ok := o.(*Dict)
	if !ok || len(d.keys) != len(e.keys) {
		return false
	}
	if d == e {
		return true
	}
	for k, v := range d.values {
		w, ok := e.values[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}

func (d *Dict) Hash() uint64 { return hashValue(d, nil) }

func (d *Dict) Interface() interface{} {
	out := make(map[string]interface{}, len(d.keys))
	for _, k := range d.keys {
		out[k] = d.values[k].Interface()
	}
	return out
}

// maybeUID turns a {"CF$UID": <integer>} dictionary into a UID, which is how
// the text formats spell UIDs.
func (d *Dict) maybeUID() Value {
	if len(d.keys) != 1 {
		return d
	}
	n, ok := d.values["CF$UID"].(Number)
	if !ok || !n.IsInteger() {
		return d
	}
	i, _ := n.Int()
	return UID(uint64(i))
}

func (u UID) toDict() *Dict {
	d := NewDict()
	d.Set("CF$UID", NewInteger(int64(u)))
	return d
}
