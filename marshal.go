package plist

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

var (
	timeType  = reflect.TypeOf((*time.Time)(nil)).Elem()
	valueType = reflect.TypeOf((*Value)(nil)).Elem()
	uidType   = reflect.TypeOf(UID(0))
)

// ValueOf converts a Go value to a property list Value. Values are returned
// unchanged. Maps must have string keys and are emitted in sorted key order.
// Struct fields are named by their "plist" tag; nil pointers and interfaces
// inside structs are skipped, elsewhere they are an error.
func ValueOf(v interface{}) (Value, error) {
	if pval, ok := v.(Value); ok {
		if pval == nil || isNilValue(pval) {
			return nil, fmt.Errorf("plist: nil %T", v)
		}
		return pval, nil
	}
	if v == nil {
		return nil, fmt.Errorf("plist: cannot marshal nil")
	}
	return marshalValue(reflect.ValueOf(v))
}

func isNilValue(v Value) bool {
	switch v := v.(type) {
	case *Dict:
		return v == nil
	case *Array:
		return v == nil
	}
	return false
}

func marshalValue(val reflect.Value) (Value, error) {
	for val.Kind() == reflect.Ptr || val.Kind() == reflect.Interface {
		if val.IsNil() {
			return nil, fmt.Errorf("plist: cannot marshal nil %v", val.Type())
		}
		if val.Type().Implements(valueType) {
			return val.Interface().(Value), nil
		}
		val = val.Elem()
	}
	if val.Type().Implements(valueType) {
		return val.Interface().(Value), nil
	}

	typ := val.Type()
	switch {
	case typ == timeType:
		return Date(val.Interface().(time.Time)), nil
	case typ == uidType:
		return UID(val.Uint()), nil
	}

	switch val.Kind() {
	case reflect.Bool:
		return NewBool(val.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return NewInteger(val.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return NewInteger(int64(val.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return NewReal(val.Float()), nil
	case reflect.String:
		return String(val.String()), nil
	case reflect.Slice, reflect.Array:
		if typ.Elem().Kind() == reflect.Uint8 {
			b := make([]byte, val.Len())
			reflect.Copy(reflect.ValueOf(b), val)
			return Data(b), nil
		}
		arr := &Array{values: make([]Value, 0, val.Len())}
		for i := 0; i < val.Len(); i++ {
			e, err := marshalValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			arr.values = append(arr.values, e)
		}
		return arr, nil
	case reflect.Map:
		if typ.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("plist: map key type %v is not a string", typ.Key())
		}
		keys := val.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		dict := NewDict()
		for _, k := range keys {
			e, err := marshalValue(val.MapIndex(k))
			if err != nil {
				return nil, err
			}
			dict.Set(k.String(), e)
		}
		return dict, nil
	case reflect.Struct:
		return marshalStruct(val)
	}
	return nil, fmt.Errorf("plist: cannot marshal %v", typ)
}

func marshalStruct(val reflect.Value) (Value, error) {
	dict := NewDict()
	for _, finfo := range getTypeInfo(val.Type()).fields {
		field, ok := finfo.value(val, false)
		if !ok {
			continue
		}
		if finfo.omitEmpty && isEmptyValue(field) {
			continue
		}
		if (field.Kind() == reflect.Ptr || field.Kind() == reflect.Interface) && field.IsNil() {
			continue
		}
		e, err := marshalValue(field)
		if err != nil {
			return nil, err
		}
		dict.Set(finfo.name, e)
	}
	return dict, nil
}
