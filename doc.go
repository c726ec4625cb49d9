// Package plist reads and writes Apple and GnuStep property lists.
//
// A property list is a tree of Values rooted at one top-level value. The
// tree can be stored as a binary plist ("bplist00"), an XML plist, or an
// old-style OpenStep/GnuStep ASCII plist; all three share the same in-memory
// model.
//
//	doc := plist.NewDict()
//	doc.Set("Name", plist.String("example"))
//	doc.Set("Count", plist.NewInteger(3))
//	data, err := plist.Marshal(doc, plist.BinaryFormat)
//
// Go values can be converted to and from Values with ValueOf and Unmarshal;
// struct fields are named by their "plist" tag.
package plist
