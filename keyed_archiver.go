package plist

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	uuid "github.com/satori/go.uuid"
)

const (
	archiverVersion = 100000
	archiverName    = "NSKeyedArchiver"
	archiverNull    = "$null"
)

type archiverClass struct {
	ClassName string
	Classes   []string
}

func (c *archiverClass) value() Value {
	classes := &Array{}
	for _, name := range c.Classes {
		classes.Append(String(name))
	}
	d := NewDict()
	d.Set("$classname", String(c.ClassName))
	d.Set("$classes", classes)
	return d
}

var (
	archiverMutableDictionaryClass = &archiverClass{ClassName: "NSMutableDictionary", Classes: []string{"NSMutableDictionary", "NSDictionary", "NSObject"}}
	archiverMutableArrayClass      = &archiverClass{ClassName: "NSMutableArray", Classes: []string{"NSMutableArray", "NSArray", "NSObject"}}
	archiverMutableDataClass       = &archiverClass{ClassName: "NSMutableData", Classes: []string{"NSMutableData", "NSData", "NSObject"}}
	archiverDateClass              = &archiverClass{ClassName: "NSDate", Classes: []string{"NSDate", "NSObject"}}
	archiverUUIDClass              = &archiverClass{ClassName: "NSUUID", Classes: []string{"NSUUID", "NSObject"}}

	archiverUUIDType = reflect.TypeOf((*uuid.UUID)(nil)).Elem()

	archiverClasses = make(map[reflect.Type]*archiverClass)
)

// ArchiverAddFoundation registers a struct type to be archived as an object
// of the named class, with one archive key per field, instead of as a
// dictionary. It is meant to be called from init functions.
func ArchiverAddFoundation(typ reflect.Type, name string, classes ...string) {
	archiverClasses[typ] = &archiverClass{ClassName: name, Classes: classes}
}

// Archiver reads and writes NSKeyedArchiver documents: a flat "$objects"
// table whose entries refer to each other by UID, with the root named in
// "$top".
type Archiver struct {
	objects *objectTable
	root    UID

	// decode state
	resolving map[UID]bool
}

// ReadFromZipData reads a gzip compressed archive.
func (a *Archiver) ReadFromZipData(data []byte) error {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return &IOError{Op: "gunzip", Err: err}
	}
	mcaData, err := ioutil.ReadAll(reader)
	if err != nil {
		return &IOError{Op: "gunzip", Err: err}
	}
	return a.ReadFromData(mcaData)
}

// ReadFromData reads an archive stored in any property list format.
func (a *Archiver) ReadFromData(data []byte) error {
	return a.ReadFromReader(bytes.NewReader(data))
}

// ReadFromReader reads an archive stored in any property list format.
func (a *Archiver) ReadFromReader(reader io.ReadSeeker) error {
	pval, err := NewDecoder(reader).DecodeValue()
	if err != nil {
		return err
	}
	return a.ReadFromValue(pval)
}

func archiveError(msg string, args ...interface{}) error {
	return &FormatError{Format: archiverName, Offset: -1, Err: fmt.Errorf(msg, args...)}
}

// ReadFromValue loads an archive from a decoded property list.
func (a *Archiver) ReadFromValue(pval Value) error {
	doc, ok := pval.(*Dict)
	if !ok {
		return archiveError("root is a %v, not a dict", pval.Kind())
	}
	if name, _ := doc.Get("$archiver"); name == nil || !name.Equal(String(archiverName)) {
		return archiveError("not a keyed archive")
	}
	objs, _ := doc.Get("$objects")
	objects, ok := objs.(*Array)
	if !ok || objects.Len() == 0 {
		return archiveError("missing $objects")
	}
	top, _ := doc.Get("$top")
	topDict, ok := top.(*Dict)
	if !ok {
		return archiveError("missing $top")
	}
	root, _ := topDict.Get("root")
	rootUID, ok := root.(UID)
	if !ok {
		return archiveError("missing $top root")
	}
	if uint64(rootUID) >= uint64(objects.Len()) {
		return archiveError("root UID %d out of range", rootUID)
	}

	// Archived objects are kept positionally; equal entries must keep
	// their own UIDs, so the table is filled without deduplication.
	a.objects = newObjectTable()
	a.objects.objects = append(a.objects.objects, objects.values...)
	a.root = rootUID
	return nil
}

func (a *Archiver) object(uid UID) (Value, error) {
	if a.objects == nil {
		return nil, errors.New("plist: archiver is empty")
	}
	if uint64(uid) >= uint64(len(a.objects.objects)) {
		return nil, archiveError("UID %d out of range", uid)
	}
	return a.objects.objects[uid], nil
}

func (a *Archiver) addObject(v Value) UID {
	id, _ := a.objects.add(v)
	return UID(id)
}

// Archive builds the keyed archive of v as a property list.
func (a *Archiver) Archive(v interface{}) (*Dict, error) {
	a.objects = newObjectTable()
	a.addObject(String(archiverNull))
	root, err := a.marshal(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	a.root = root

	top := NewDict()
	top.Set("root", root)
	doc := NewDict()
	doc.Set("$version", NewInteger(archiverVersion))
	doc.Set("$archiver", String(archiverName))
	doc.Set("$top", top)
	doc.Set("$objects", NewArray(a.objects.objects...))
	return doc, nil
}

// Marshal archives v and encodes the archive as a binary property list.
func (a *Archiver) Marshal(v interface{}) ([]byte, error) {
	doc, err := a.Archive(v)
	if err != nil {
		return nil, err
	}
	return Marshal(doc, BinaryFormat)
}

func (a *Archiver) marshal(val reflect.Value) (UID, error) {
	for val.Kind() == reflect.Ptr || val.Kind() == reflect.Interface {
		if val.IsNil() {
			return 0, nil
		}
		val = val.Elem()
	}
	if !val.IsValid() {
		return 0, nil
	}
	switch val.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.addObject(NewInteger(val.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return a.addObject(NewInteger(int64(val.Uint()))), nil
	case reflect.Float32, reflect.Float64:
		return a.addObject(NewReal(val.Float())), nil
	case reflect.Bool:
		return a.addObject(NewBool(val.Bool())), nil
	case reflect.String:
		if val.String() == archiverNull {
			return 0, nil
		}
		return a.addObject(String(val.String())), nil
	case reflect.Slice:
		return a.marshalSlice(val)
	case reflect.Array:
		if val.Type() == archiverUUIDType {
			u := val.Interface().(uuid.UUID)
			return a.addClassObject(archiverUUIDClass, "NS.uuidbytes", Data(u.Bytes())), nil
		}
		return a.marshalSlice(val)
	case reflect.Map:
		return a.marshalMap(val)
	case reflect.Struct:
		if val.Type() == timeType {
			t := val.Interface().(time.Time)
			return a.addClassObject(archiverDateClass, "NS.time", NewReal(cocoaSeconds(t))), nil
		}
		return a.marshalStruct(val)
	}
	return 0, fmt.Errorf("plist: cannot archive %v", val.Type())
}

// addClassObject stores a one-field object of the given class.
func (a *Archiver) addClassObject(class *archiverClass, key string, v Value) UID {
	obj := NewDict()
	obj.Set(key, v)
	obj.Set("$class", a.addObject(class.value()))
	return a.addObject(obj)
}

func (a *Archiver) marshalSlice(val reflect.Value) (UID, error) {
	if val.Type().Elem().Kind() == reflect.Uint8 {
		b := make([]byte, val.Len())
		reflect.Copy(reflect.ValueOf(b), val)
		return a.addClassObject(archiverMutableDataClass, "NS.data", Data(b)), nil
	}
	refs := &Array{}
	for i := 0; i < val.Len(); i++ {
		ref, err := a.marshal(val.Index(i))
		if err != nil {
			return 0, err
		}
		refs.Append(ref)
	}
	return a.addClassObject(archiverMutableArrayClass, "NS.objects", refs), nil
}

func (a *Archiver) marshalTable(keys []string, values []reflect.Value) (UID, error) {
	keyRefs, objRefs := &Array{}, &Array{}
	for i, k := range keys {
		ref, err := a.marshal(values[i])
		if err != nil {
			return 0, err
		}
		keyRefs.Append(a.addObject(String(k)))
		objRefs.Append(ref)
	}
	table := NewDict()
	table.Set("NS.keys", keyRefs)
	table.Set("NS.objects", objRefs)
	table.Set("$class", a.addObject(archiverMutableDictionaryClass.value()))
	return a.addObject(table), nil
}

func (a *Archiver) marshalMap(val reflect.Value) (UID, error) {
	if val.Type().Key().Kind() != reflect.String {
		return 0, fmt.Errorf("plist: cannot archive map key type %v", val.Type().Key())
	}
	mapKeys := val.MapKeys()
	sort.Slice(mapKeys, func(i, j int) bool { return mapKeys[i].String() < mapKeys[j].String() })
	keys := make([]string, len(mapKeys))
	values := make([]reflect.Value, len(mapKeys))
	for i, k := range mapKeys {
		keys[i] = k.String()
		values[i] = val.MapIndex(k)
	}
	return a.marshalTable(keys, values)
}

func (a *Archiver) marshalStruct(val reflect.Value) (UID, error) {
	var keys []string
	var values []reflect.Value
	for _, finfo := range getTypeInfo(val.Type()).fields {
		field, ok := finfo.value(val, false)
		if !ok || (finfo.omitEmpty && isEmptyValue(field)) {
			continue
		}
		keys = append(keys, finfo.name)
		values = append(values, field)
	}
	class, ok := archiverClasses[val.Type()]
	if !ok {
		return a.marshalTable(keys, values)
	}
	nsobj := NewDict()
	for i, k := range keys {
		ref, err := a.marshal(values[i])
		if err != nil {
			return 0, err
		}
		nsobj.Set(k, ref)
	}
	nsobj.Set("$class", a.addObject(class.value()))
	return a.addObject(nsobj), nil
}

// Unmarshal decodes the archive root into v, which must be a non-nil pointer.
func (a *Archiver) Unmarshal(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return &TypeMismatchError{Want: "non-nil pointer", Got: fmt.Sprintf("%T", v)}
	}
	a.resolving = make(map[UID]bool)
	return a.unmarshalRef(a.root, rv.Elem())
}

// unmarshalRef decodes the object uid names. Objects being decoded are
// tracked so a reference cycle fails instead of recursing forever.
func (a *Archiver) unmarshalRef(uid UID, val reflect.Value) error {
	if a.resolving[uid] {
		return archiveError("object %d references itself", uid)
	}
	obj, err := a.object(uid)
	if err != nil {
		return err
	}
	a.resolving[uid] = true
	defer delete(a.resolving, uid)
	return a.unmarshal(obj, val)
}

// unmarshalMember decodes a value stored inside an archived object, which is
// either a UID reference or an inline value.
func (a *Archiver) unmarshalMember(v Value, val reflect.Value) error {
	if uid, ok := v.(UID); ok && val.Type() != uidType {
		return a.unmarshalRef(uid, val)
	}
	return a.unmarshal(v, val)
}

func (a *Archiver) className(obj *Dict) (string, error) {
	ref, ok := obj.values["$class"].(UID)
	if !ok {
		return "", nil
	}
	cval, err := a.object(ref)
	if err != nil {
		return "", err
	}
	cdict, ok := cval.(*Dict)
	if !ok {
		return "", archiveError("class %d is not a dict", ref)
	}
	name, _ := cdict.values["$classname"].(String)
	return string(name), nil
}

func (a *Archiver) unmarshal(obj Value, val reflect.Value) error {
	if s, ok := obj.(String); ok && s == archiverNull {
		return nil
	}
	for val.Kind() == reflect.Ptr {
		if val.IsNil() {
			val.Set(reflect.New(val.Type().Elem()))
		}
		val = val.Elem()
	}
	if val.Kind() == reflect.Interface && val.NumMethod() == 0 {
		native, err := a.resolveInterface(obj)
		if err != nil {
			return err
		}
		if native != nil {
			val.Set(reflect.ValueOf(native))
		}
		return nil
	}

	dict, ok := obj.(*Dict)
	if !ok {
		return unmarshal(obj, val)
	}
	class, err := a.className(dict)
	if err != nil {
		return err
	}
	switch class {
	case "":
		return unmarshal(obj, val)
	case "NSDictionary", "NSMutableDictionary":
		return a.unmarshalTable(dict, val)
	case "NSArray", "NSMutableArray", "NSSet", "NSMutableSet":
		return a.unmarshalArray(dict, val)
	case "NSData", "NSMutableData":
		return a.unmarshalField(dict, "NS.data", val)
	case "NSString", "NSMutableString":
		return a.unmarshalField(dict, "NS.string", val)
	case "NSDate":
		t, err := archivedDate(dict)
		if err != nil {
			return err
		}
		if val.Type() != timeType {
			return &TypeMismatchError{Want: val.Type().String(), Got: class}
		}
		val.Set(reflect.ValueOf(t))
		return nil
	case "NSUUID":
		u, err := archivedUUID(dict)
		if err != nil {
			return err
		}
		if val.Type() != archiverUUIDType {
			return &TypeMismatchError{Want: val.Type().String(), Got: class}
		}
		val.Set(reflect.ValueOf(u))
		return nil
	}
	return a.unmarshalNSType(dict, val)
}

func (a *Archiver) unmarshalField(obj *Dict, key string, val reflect.Value) error {
	v, ok := obj.values[key]
	if !ok {
		return archiveError("object without %s", key)
	}
	return a.unmarshalMember(v, val)
}

func archivedDate(obj *Dict) (time.Time, error) {
	n, ok := obj.values["NS.time"].(Number)
	if !ok {
		return time.Time{}, archiveError("NSDate without NS.time")
	}
	f, err := n.Float()
	if err != nil {
		i, ierr := n.Int()
		if ierr != nil {
			return time.Time{}, err
		}
		f = float64(i)
	}
	if math.IsNaN(f) || math.Abs(f) > maxCocoaSeconds {
		return time.Time{}, archiveError("invalid NS.time %v", f)
	}
	return timeFromCocoa(f), nil
}

func archivedUUID(obj *Dict) (uuid.UUID, error) {
	b, ok := obj.values["NS.uuidbytes"].(Data)
	if !ok {
		return uuid.UUID{}, archiveError("NSUUID without NS.uuidbytes")
	}
	u, err := uuid.FromBytes(b)
	if err != nil {
		return uuid.UUID{}, archiveError("NSUUID: %v", err)
	}
	return u, nil
}

func (a *Archiver) tableEntries(obj *Dict) ([]string, []Value, error) {
	keys, _ := obj.values["NS.keys"].(*Array)
	objects, _ := obj.values["NS.objects"].(*Array)
	if keys == nil || objects == nil || keys.Len() != objects.Len() {
		return nil, nil, archiveError("malformed dictionary")
	}
	names := make([]string, keys.Len())
	for i, k := range keys.values {
		kv := k
		if uid, ok := k.(UID); ok {
			var err error
			if kv, err = a.object(uid); err != nil {
				return nil, nil, err
			}
		}
		s, ok := kv.(String)
		if !ok {
			return nil, nil, archiveError("dictionary key %d is not a string", i)
		}
		names[i] = string(s)
	}
	return names, objects.values, nil
}

func (a *Archiver) unmarshalTable(obj *Dict, val reflect.Value) error {
	keys, values, err := a.tableEntries(obj)
	if err != nil {
		return err
	}
	switch val.Kind() {
	case reflect.Map:
		typ := val.Type()
		if typ.Key().Kind() != reflect.String {
			return &TypeMismatchError{Want: typ.String(), Got: "NSDictionary"}
		}
		if val.IsNil() {
			val.Set(reflect.MakeMapWithSize(typ, len(keys)))
		}
		for i, k := range keys {
			elem := reflect.New(typ.Elem()).Elem()
			if err := a.unmarshalMember(values[i], elem); err != nil {
				return err
			}
			val.SetMapIndex(reflect.ValueOf(k).Convert(typ.Key()), elem)
		}
		return nil
	case reflect.Struct:
		entries := make(map[string]Value, len(keys))
		for i, k := range keys {
			entries[k] = values[i]
		}
		return a.unmarshalFields(entries, val)
	}
	return &TypeMismatchError{Want: val.Type().String(), Got: "NSDictionary"}
}

func (a *Archiver) unmarshalFields(entries map[string]Value, val reflect.Value) error {
	for _, finfo := range getTypeInfo(val.Type()).fields {
		v, ok := entries[finfo.name]
		if !ok {
			continue
		}
		field, _ := finfo.value(val, true)
		if err := a.unmarshalMember(v, field); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archiver) unmarshalArray(obj *Dict, val reflect.Value) error {
	objects, ok := obj.values["NS.objects"].(*Array)
	if !ok {
		return archiveError("malformed array")
	}
	if val.Kind() != reflect.Slice {
		return &TypeMismatchError{Want: val.Type().String(), Got: "NSArray"}
	}
	val.Set(reflect.MakeSlice(val.Type(), objects.Len(), objects.Len()))
	for i, v := range objects.values {
		if err := a.unmarshalMember(v, val.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archiver) unmarshalNSType(obj *Dict, val reflect.Value) error {
	if val.Kind() != reflect.Struct {
		return &TypeMismatchError{Want: val.Type().String(), Got: "archived object"}
	}
	return a.unmarshalFields(obj.values, val)
}

// resolveInterface turns an archived object into plain Go data for
// interface{} targets.
func (a *Archiver) resolveInterface(obj Value) (interface{}, error) {
	var out interface{}
	if err := a.unmarshalGeneric(obj, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Archiver) unmarshalGeneric(obj Value, out *interface{}) error {
	dict, ok := obj.(*Dict)
	if !ok {
		if s, ok := obj.(String); ok && s == archiverNull {
			return nil
		}
		*out = obj.Interface()
		return nil
	}
	class, err := a.className(dict)
	if err != nil {
		return err
	}
	var target reflect.Value
	switch class {
	case "NSDictionary", "NSMutableDictionary":
		m := map[string]interface{}{}
		target = reflect.ValueOf(&m).Elem()
	case "NSArray", "NSMutableArray", "NSSet", "NSMutableSet":
		var s []interface{}
		target = reflect.ValueOf(&s).Elem()
	case "NSData", "NSMutableData":
		var b []byte
		target = reflect.ValueOf(&b).Elem()
	case "NSString", "NSMutableString":
		var s string
		target = reflect.ValueOf(&s).Elem()
	case "NSDate":
		var t time.Time
		target = reflect.ValueOf(&t).Elem()
	case "NSUUID":
		var u uuid.UUID
		target = reflect.ValueOf(&u).Elem()
	default:
		fields := map[string]interface{}{}
		for _, k := range dict.keys {
			if k == "$class" {
				continue
			}
			var v interface{}
			if err := a.unmarshalMember(dict.values[k], reflect.ValueOf(&v).Elem()); err != nil {
				return err
			}
			fields[k] = v
		}
		if class != "" {
			fields["$classname"] = class
		}
		*out = fields
		return nil
	}
	if err := a.unmarshal(dict, target); err != nil {
		return err
	}
	*out = target.Interface()
	return nil
}

// Print renders the archive root for debugging.
func (a *Archiver) Print() string {
	a.resolving = make(map[UID]bool)
	builder := &strings.Builder{}
	var root interface{}
	if err := a.unmarshalRef(a.root, reflect.ValueOf(&root).Elem()); err != nil {
		return "error: " + err.Error()
	}
	printObject(builder, root, 0)
	return builder.String()
}

func printObject(b *strings.Builder, v interface{}, depth int) {
	indent := strings.Repeat("\t", depth)
	switch pval := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(pval))
		for k := range pval {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("{\n")
		for _, k := range keys {
			fmt.Fprintf(b, "%s\t[%s]: ", indent, k)
			printObject(b, pval[k], depth+1)
			b.WriteString("\n")
		}
		b.WriteString(indent + "}")
	case []interface{}:
		b.WriteString("[\n")
		for i, e := range pval {
			fmt.Fprintf(b, "%s\t[%d]: ", indent, i)
			printObject(b, e, depth+1)
			b.WriteString("\n")
		}
		b.WriteString(indent + "]")
	case []byte:
		fmt.Fprintf(b, "[]byte(%x)", pval)
	case nil:
		b.WriteString(archiverNull)
	default:
		fmt.Fprintf(b, "%T(%v)", pval, pval)
	}
}
