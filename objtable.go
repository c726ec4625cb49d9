package plist

// objectTable assigns dense IDs to the distinct values of a tree. Values are
// distinct by structural equality, not identity: two equal strings anywhere
// in the document share one ID.
type objectTable struct {
	objects []Value
	buckets map[uint64][]uint64
	memo    *hashMemo

	// IDs of the containers seen by assign, by pointer, so that writing a
	// reference never needs a deep comparison.
	dictIDs  map[*Dict]uint64
	arrayIDs map[*Array]uint64
}

func newObjectTable() *objectTable {
	return &objectTable{
		buckets:  make(map[uint64][]uint64),
		memo:     newHashMemo(),
		dictIDs:  make(map[*Dict]uint64),
		arrayIDs: make(map[*Array]uint64),
	}
}

// buildObjectTable walks root depth first, parent before children. A
// dictionary's keys are visited as strings before any of its values, which
// mirrors the keys-then-values layout of a binary dictionary record.
func buildObjectTable(root Value) *objectTable {
	t := newObjectTable()
	t.assign(root)
	return t
}

func (t *objectTable) lookup(v Value, h uint64) (uint64, bool) {
	for _, id := range t.buckets[h] {
		if t.objects[id].Equal(v) {
			return id, true
		}
	}
	return 0, false
}

// idFor returns the ID of a value already in the table.
func (t *objectTable) idFor(v Value) uint64 {
	switch v := v.(type) {
	case *Dict:
		if id, ok := t.dictIDs[v]; ok {
			return id
		}
	case *Array:
		if id, ok := t.arrayIDs[v]; ok {
			return id
		}
	}
	id, ok := t.lookup(v, hashValue(v, t.memo))
	if !ok {
		panic("plist: value missing from object table")
	}
	return id
}

// add puts v in the table unless an equal value is already there. It reports
// whether v was new.
func (t *objectTable) add(v Value) (uint64, bool) {
	h := hashValue(v, t.memo)
	if id, ok := t.lookup(v, h); ok {
		return id, false
	}
	id := uint64(len(t.objects))
	t.objects = append(t.objects, v)
	t.buckets[h] = append(t.buckets[h], id)
	return id, true
}

func (t *objectTable) assign(v Value) {
	id, fresh := t.add(v)
	switch v := v.(type) {
	case *Dict:
		t.dictIDs[v] = id
	case *Array:
		t.arrayIDs[v] = id
	}
	if !fresh {
		// Every child of an equal value is already in the table.
		return
	}
	switch v := v.(type) {
	case *Dict:
		for _, k := range v.keys {
			t.assign(String(k))
		}
		for _, k := range v.keys {
			t.assign(v.values[k])
		}
	case *Array:
		for _, e := range v.values {
			t.assign(e)
		}
	}
}
