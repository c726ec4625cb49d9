package plist

import (
	"encoding/binary"

	farm "github.com/dgryski/go-farm"
)

// hashMemo caches container hashes for the duration of one traversal.
// A nil memo disables caching.
type hashMemo struct {
	dicts  map[*Dict]uint64
	arrays map[*Array]uint64
}

func newHashMemo() *hashMemo {
	return &hashMemo{
		dicts:  make(map[*Dict]uint64),
		arrays: make(map[*Array]uint64),
	}
}

// hashSeed mixes the variant tag, and for numbers the sub-kind, into the
// seed so that values of different kinds with the same payload bytes do not
// collide by construction.
func hashSeed(v Value) uint64 {
	seed := uint64(v.Kind()) << 56
	if n, ok := v.(Number); ok {
		seed |= uint64(n.kind) << 48
	}
	return seed
}

func hashValue(v Value, memo *hashMemo) uint64 {
	var scratch [16]byte
	seed := hashSeed(v)
	switch v := v.(type) {
	case String:
		return farm.Hash64WithSeed([]byte(v), seed)
	case Number:
		binary.BigEndian.PutUint64(scratch[:8], v.bits)
		return farm.Hash64WithSeed(scratch[:8], seed)
	case Date:
		binary.BigEndian.PutUint64(scratch[:8], v.bits())
		return farm.Hash64WithSeed(scratch[:8], seed)
	case Data:
		return farm.Hash64WithSeed(v, seed)
	case UID:
		binary.BigEndian.PutUint64(scratch[:8], uint64(v))
		return farm.Hash64WithSeed(scratch[:8], seed)
	case *Array:
		if memo != nil {
			if h, ok := memo.arrays[v]; ok {
				return h
			}
		}
		buf := make([]byte, 8*len(v.values))
		for i, e := range v.values {
			binary.BigEndian.PutUint64(buf[8*i:], hashValue(e, memo))
		}
		h := farm.Hash64WithSeed(buf, seed)
		if memo != nil {
			memo.arrays[v] = h
		}
		return h
	case *Dict:
		if memo != nil {
			if h, ok := memo.dicts[v]; ok {
				return h
			}
		}
		// Entries are summed so the result does not depend on key order.
		var sum uint64
		for _, k := range v.keys {
			sum += farm.Hash64WithSeed([]byte(k), hashValue(v.values[k], memo))
		}
		binary.BigEndian.PutUint64(scratch[:8], sum)
		binary.BigEndian.PutUint64(scratch[8:], uint64(len(v.keys)))
		h := farm.Hash64WithSeed(scratch[:], seed)
		if memo != nil {
			memo.dicts[v] = h
		}
		return h
	}
	return 0
}

