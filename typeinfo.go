package plist

import (
	"reflect"
	"strings"
	"sync"
)

// typeInfo lists the dictionary entries a struct type maps to, in field order.
type typeInfo struct {
	fields []fieldInfo
}

// fieldInfo describes one struct field stored as a dictionary entry.
type fieldInfo struct {
	idx       []int
	name      string
	omitEmpty bool
}

var tinfoMap sync.Map // map[reflect.Type]*typeInfo

// getTypeInfo returns the cached field layout of typ.
func getTypeInfo(typ reflect.Type) *typeInfo {
	if ti, ok := tinfoMap.Load(typ); ok {
		return ti.(*typeInfo)
	}
	tinfo := &typeInfo{}
	if typ.Kind() == reflect.Struct {
		for i := 0; i < typ.NumField(); i++ {
			f := typ.Field(i)
			if f.Tag.Get("plist") == "-" || (!f.Anonymous && f.PkgPath != "") {
				continue // Private field
			}

			// Untagged embedded structs contribute their own fields.
			if f.Anonymous && f.Tag.Get("plist") == "" {
				t := f.Type
				if t.Kind() == reflect.Ptr {
					t = t.Elem()
				}
				if t.Kind() == reflect.Struct {
					for _, inner := range getTypeInfo(t).fields {
						inner.idx = append([]int{i}, inner.idx...)
						tinfo.add(inner)
					}
					continue
				}
				if f.PkgPath != "" {
					continue
				}
			}

			tinfo.add(structFieldInfo(&f))
		}
	}
	ti, _ := tinfoMap.LoadOrStore(typ, tinfo)
	return ti.(*typeInfo)
}

func structFieldInfo(f *reflect.StructField) fieldInfo {
	finfo := fieldInfo{idx: f.Index, name: f.Name}
	tokens := strings.Split(f.Tag.Get("plist"), ",")
	if tokens[0] != "" {
		finfo.name = tokens[0]
	}
	for _, flag := range tokens[1:] {
		if flag == "omitempty" {
			finfo.omitEmpty = true
		}
	}
	return finfo
}

// add appends newf unless a field of the same name sits at a shallower
// embedding depth. A shallower newf replaces deeper fields of its name,
// matching Go's own selector rules.
func (tinfo *typeInfo) add(newf fieldInfo) {
	var conflicts []int
	for i := range tinfo.fields {
		if tinfo.fields[i].name == newf.name {
			conflicts = append(conflicts, i)
		}
	}
	for _, i := range conflicts {
		if len(tinfo.fields[i].idx) <= len(newf.idx) {
			return
		}
	}
	for c := len(conflicts) - 1; c >= 0; c-- {
		i := conflicts[c]
		tinfo.fields = append(tinfo.fields[:i], tinfo.fields[i+1:]...)
	}
	tinfo.fields = append(tinfo.fields, newf)
}

// value returns v's field described by finfo, allocating nil embedded
// pointers on the way when alloc is set. It reports false when a nil
// embedded pointer stops the walk.
func (finfo *fieldInfo) value(v reflect.Value, alloc bool) (reflect.Value, bool) {
	for i, x := range finfo.idx {
		if i > 0 && v.Kind() == reflect.Ptr {
			if v.IsNil() {
				if !alloc {
					return reflect.Value{}, false
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	case reflect.Struct:
		if t, ok := v.Interface().(interface{ IsZero() bool }); ok {
			return t.IsZero()
		}
	}
	return false
}
