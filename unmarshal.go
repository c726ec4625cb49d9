package plist

import (
	"reflect"
)

func mismatch(pval Value, val reflect.Value) error {
	got := pval.Kind().String()
	if n, ok := pval.(Number); ok {
		got = numberKindNames[n.kind]
	}
	return &TypeMismatchError{Want: val.Type().String(), Got: got}
}

// unmarshalValue stores pval in the value rv points to.
func unmarshalValue(pval Value, rv reflect.Value) error {
	return unmarshal(pval, rv.Elem())
}

func unmarshal(pval Value, val reflect.Value) error {
	for {
		if val.Kind() == reflect.Interface && val.NumMethod() == 0 {
			val.Set(reflect.ValueOf(pval.Interface()))
			return nil
		}
		if reflect.TypeOf(pval).AssignableTo(val.Type()) {
			val.Set(reflect.ValueOf(pval))
			return nil
		}
		if val.Kind() != reflect.Ptr {
			break
		}
		if val.IsNil() {
			val.Set(reflect.New(val.Type().Elem()))
		}
		val = val.Elem()
	}

	switch pval := pval.(type) {
	case String:
		if val.Kind() != reflect.String {
			return mismatch(pval, val)
		}
		val.SetString(string(pval))
	case Number:
		return unmarshalNumber(pval, val)
	case Date:
		if val.Type() != timeType {
			return mismatch(pval, val)
		}
		val.Set(reflect.ValueOf(pval.Time()))
	case Data:
		switch {
		case val.Kind() == reflect.Slice && val.Type().Elem().Kind() == reflect.Uint8:
			val.SetBytes(append([]byte{}, pval...))
		case val.Kind() == reflect.Array && val.Type().Elem().Kind() == reflect.Uint8 && val.Len() == len(pval):
			reflect.Copy(val, reflect.ValueOf([]byte(pval)))
		default:
			return mismatch(pval, val)
		}
	case UID:
		switch val.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if val.OverflowInt(int64(pval)) || int64(pval) < 0 {
				return mismatch(pval, val)
			}
			val.SetInt(int64(pval))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			if val.OverflowUint(uint64(pval)) {
				return mismatch(pval, val)
			}
			val.SetUint(uint64(pval))
		default:
			return mismatch(pval, val)
		}
	case *Array:
		return unmarshalArray(pval, val)
	case *Dict:
		switch val.Kind() {
		case reflect.Map:
			return unmarshalMap(pval, val)
		case reflect.Struct:
			return unmarshalStruct(pval, val)
		}
		return mismatch(pval, val)
	default:
		return mismatch(pval, val)
	}
	return nil
}

func unmarshalNumber(n Number, val reflect.Value) error {
	switch n.kind {
	case integerNumber:
		i := int64(n.bits)
		switch val.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if val.OverflowInt(i) {
				return mismatch(n, val)
			}
			val.SetInt(i)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			// Negative integers past MaxInt64 come back as their bit pattern.
			if val.OverflowUint(n.bits) {
				return mismatch(n, val)
			}
			val.SetUint(n.bits)
		case reflect.Float32, reflect.Float64:
			val.SetFloat(float64(i))
		default:
			return mismatch(n, val)
		}
	case realNumber:
		if val.Kind() != reflect.Float32 && val.Kind() != reflect.Float64 {
			return mismatch(n, val)
		}
		f, _ := n.Float()
		val.SetFloat(f)
	case booleanNumber:
		if val.Kind() != reflect.Bool {
			return mismatch(n, val)
		}
		val.SetBool(n.bits != 0)
	}
	return nil
}

func unmarshalArray(a *Array, val reflect.Value) error {
	switch val.Kind() {
	case reflect.Slice:
		val.Set(reflect.MakeSlice(val.Type(), len(a.values), len(a.values)))
	case reflect.Array:
		if val.Len() != len(a.values) {
			return &TypeMismatchError{Want: val.Type().String(), Got: "array of different length"}
		}
	default:
		return mismatch(a, val)
	}
	for i, v := range a.values {
		if err := unmarshal(v, val.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalMap(d *Dict, val reflect.Value) error {
	typ := val.Type()
	if typ.Key().Kind() != reflect.String {
		return mismatch(d, val)
	}
	if val.IsNil() {
		val.Set(reflect.MakeMapWithSize(typ, d.Len()))
	}
	for _, k := range d.keys {
		elem := reflect.New(typ.Elem()).Elem()
		if err := unmarshal(d.values[k], elem); err != nil {
			return err
		}
		val.SetMapIndex(reflect.ValueOf(k).Convert(typ.Key()), elem)
	}
	return nil
}

func unmarshalStruct(d *Dict, val reflect.Value) error {
	for _, finfo := range getTypeInfo(val.Type()).fields {
		dval, ok := d.values[finfo.name]
		if !ok {
			continue
		}
		field, _ := finfo.value(val, true)
		if err := unmarshal(dval, field); err != nil {
			return err
		}
	}
	return nil
}
