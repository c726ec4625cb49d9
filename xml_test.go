package plist

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const xmlPreamble = xmlHEADER + xmlDOCTYPE

func TestXMLGenerator(t *testing.T) {
	root := NewDict()
	root.Set("name", String("x<y"))
	root.Set("n", NewInteger(1))

	out, err := Marshal(root, XMLFormat)
	require.NoError(t, err)
	assert.Equal(t, xmlPreamble+
		`<plist version="1.0"><dict><key>name</key><string>x&lt;y</string><key>n</key><integer>1</integer></dict></plist>`+"\n",
		string(out))

	out, err = MarshalIndent(root, XMLFormat, "\t")
	require.NoError(t, err)
	assert.Equal(t, xmlPreamble+`<plist version="1.0">
<dict>
	<key>name</key>
	<string>x&lt;y</string>
	<key>n</key>
	<integer>1</integer>
</dict>
</plist>
`, string(out))
}

func TestXMLGeneratorScalars(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{NewBool(true), "<true/>"},
		{NewBool(false), "<false/>"},
		{NewReal(1.5), "<real>1.5</real>"},
		{NewReal(math.Inf(1)), "<real>inf</real>"},
		{String(""), "<string/>"},
		{Data{1, 2, 3}, "<data>AQID</data>"},
		{Date(time.Date(2011, 2, 3, 4, 5, 6, 0, time.UTC)), "<date>2011-02-03T04:05:06Z</date>"},
		{UID(7), "<dict><key>CF$UID</key><integer>7</integer></dict>"},
		{NewArray(), "<array/>"},
	}
	for _, tt := range tests {
		out, err := Marshal(tt.v, XMLFormat)
		require.NoError(t, err)
		assert.Equal(t, xmlPreamble+`<plist version="1.0">`+tt.want+"</plist>\n", string(out))
	}
}

func xmlSampleTree() *Dict {
	inner := NewDict()
	inner.Set("when", Date(time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)))
	inner.Set("blob", Data(strings.Repeat("0123456789", 10)))
	inner.Set("ref", UID(300))
	inner.Set("empty", NewArray())
	inner.Set("none", NewDict())

	root := NewDict()
	root.Set("name", String("plain & <escaped>"))
	root.Set("unicode", String("héllo ✓ 🎉"))
	root.Set("empty", String(""))
	root.Set("numbers", NewArray(
		NewInteger(0),
		NewInteger(-1),
		NewInteger(math.MaxInt64),
		NewInteger(math.MinInt64),
		NewReal(3.25),
		NewReal(math.Inf(-1)),
		NewBool(true),
		NewBool(false),
	))
	root.Set("nested", NewArray(inner, NewArray(inner)))
	return root
}

func TestXMLRoundTrip(t *testing.T) {
	for _, indent := range []string{"", "\t", "  "} {
		root := xmlSampleTree()
		out, err := MarshalIndent(root, XMLFormat, indent)
		require.NoError(t, err)

		var got Value
		format, err := Unmarshal(out, &got)
		require.NoError(t, err)
		assert.Equal(t, XMLFormat, format)
		assert.True(t, root.Equal(got), "indent %q:\n%s", indent, out)
	}
}

func TestXMLParser(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
	<key>hex</key><integer>0x10</integer>
	<key>real</key><real> 2.5 </real>
	<key>nan</key><real>nan</real>
	<key>data</key><data>
		AQID
		BA==
	</data>
	<key>shared</key><string ID="s1">once</string>
	<key>again</key><string IDREF="s1"/>
	<key>uid</key><dict><key>CF$UID</key><integer>3</integer></dict>
</dict>
</plist>`
	var got Value
	_, err := Unmarshal([]byte(doc), &got)
	require.NoError(t, err)
	d, err := AsDict(got)
	require.NoError(t, err)

	get := func(k string) Value {
		v, ok := d.Get(k)
		require.True(t, ok, k)
		return v
	}
	assert.True(t, NewInteger(16).Equal(get("hex")))
	assert.True(t, NewReal(2.5).Equal(get("real")))
	n, _ := AsNumber(get("nan"))
	f, _ := n.Float()
	assert.True(t, math.IsNaN(f))
	assert.Equal(t, Data{1, 2, 3, 4}, get("data"))
	assert.Equal(t, String("once"), get("again"))
	assert.Equal(t, UID(3), get("uid"))
}

func TestXMLParserErrors(t *testing.T) {
	docs := map[string]string{
		"bad integer":   `<plist><integer>abc</integer></plist>`,
		"empty integer": `<plist><integer></integer></plist>`,
		"empty real":    `<plist><real/></plist>`,
		"bad date":      `<plist><date>yesterday</date></plist>`,
		"bad data":      `<plist><data>!!!</data></plist>`,
		"missing value": `<plist><dict><key>a</key></dict></plist>`,
		"missing key":   `<plist><dict><string>a</string></dict></plist>`,
		"nested plist":  `<plist><array><plist/></array></plist>`,
		"unknown ref":   `<plist><string IDREF="nope"/></plist>`,
		"unknown tag":   `<plist><array><bogus/></array></plist>`,
		"truncated":     `<plist><array><string>a</string>`,
		"empty plist":   `<plist></plist>`,
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			var got Value
			_, err := Unmarshal([]byte(doc), &got)
			var ferr *FormatError
			require.True(t, errors.As(err, &ferr), "got %T: %v", err, err)
			assert.Equal(t, "XML", ferr.Format)
		})
	}
}

func TestXMLWriteError(t *testing.T) {
	err := NewEncoder(failingWriter{}).Encode(xmlSampleTree())
	var ioerr *IOError
	assert.True(t, errors.As(err, &ioerr), "got %T: %v", err, err)
}

func TestXMLNestingLimit(t *testing.T) {
	doc := "<plist>" + strings.Repeat("<array>", maxNestingDepth+1)
	var got Value
	_, err := Unmarshal([]byte(doc), &got)
	var ferr *FormatError
	require.True(t, errors.As(err, &ferr), "got %T: %v", err, err)
	assert.Contains(t, ferr.Error(), "nested deeper")
}
