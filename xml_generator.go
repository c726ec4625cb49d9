package plist

import (
	"bufio"
	"encoding/base64"
	"encoding/xml"
	"io"
	"math"
	"strconv"
	"time"
)

const (
	xmlHEADER     string = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"
	xmlDOCTYPE           = `<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">` + "\n"
	xmlArrayTag          = "array"
	xmlDataTag           = "data"
	xmlDateTag           = "date"
	xmlDictTag           = "dict"
	xmlFalseTag          = "false"
	xmlIntegerTag        = "integer"
	xmlKeyTag            = "key"
	xmlPlistTag          = "plist"
	xmlRealTag           = "real"
	xmlStringTag         = "string"
	xmlTrueTag           = "true"

	xmlDataLineLength = 68
)

func formatXMLFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

type xmlPlistGenerator struct {
	*bufio.Writer

	indent string
	depth  int
}

func (p *xmlPlistGenerator) Indent(i string) {
	p.indent = i
}

func (p *xmlPlistGenerator) writeIndent() {
	if p.indent == "" {
		return
	}
	p.WriteByte('\n')
	for i := 0; i < p.depth; i++ {
		p.WriteString(p.indent)
	}
}

func (p *xmlPlistGenerator) openTag(tag string) {
	p.writeIndent()
	p.WriteString("<" + tag + ">")
}

func (p *xmlPlistGenerator) closeTag(tag string) {
	p.writeIndent()
	p.WriteString("</" + tag + ">")
}

func (p *xmlPlistGenerator) generateDocument(root Value) error {
	p.WriteString(xmlHEADER)
	p.WriteString(xmlDOCTYPE)

	p.WriteString(`<` + xmlPlistTag + ` version="1.0">`)
	p.writePlistValue(root)
	if p.indent != "" {
		p.WriteByte('\n')
	}
	p.WriteString(`</` + xmlPlistTag + `>` + "\n")
	if err := p.Flush(); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

func (p *xmlPlistGenerator) element(tag string, value string) {
	p.writeIndent()
	if len(value) == 0 {
		p.WriteString("<" + tag + "/>")
		return
	}
	p.WriteString("<" + tag + ">")
	xml.EscapeText(p.Writer, []byte(value))
	p.WriteString("</" + tag + ">")
}

func (p *xmlPlistGenerator) writeDictionary(dict *Dict) {
	if dict.Len() == 0 {
		p.writeIndent()
		p.WriteString("<" + xmlDictTag + "/>")
		return
	}
	p.openTag(xmlDictTag)
	p.depth++
	for _, k := range dict.keys {
		p.writeIndent()
		p.WriteString("<" + xmlKeyTag + ">")
		xml.EscapeText(p.Writer, []byte(k))
		p.WriteString("</" + xmlKeyTag + ">")
		p.writePlistValue(dict.values[k])
	}
	p.depth--
	p.closeTag(xmlDictTag)
}

func (p *xmlPlistGenerator) writeArray(a *Array) {
	if a.Len() == 0 {
		p.writeIndent()
		p.WriteString("<" + xmlArrayTag + "/>")
		return
	}
	p.openTag(xmlArrayTag)
	p.depth++
	for _, v := range a.values {
		p.writePlistValue(v)
	}
	p.depth--
	p.closeTag(xmlArrayTag)
}

func (p *xmlPlistGenerator) writeData(d Data) {
	dataBase64 := base64.StdEncoding.EncodeToString(d)
	if p.indent == "" || len(dataBase64) <= xmlDataLineLength {
		p.element(xmlDataTag, dataBase64)
		return
	}
	p.openTag(xmlDataTag)
	for i := 0; i < len(dataBase64); i += xmlDataLineLength {
		endoff := i + xmlDataLineLength
		if endoff > len(dataBase64) {
			endoff = len(dataBase64)
		}
		p.writeIndent()
		p.WriteString(dataBase64[i:endoff])
	}
	p.closeTag(xmlDataTag)
}

func (p *xmlPlistGenerator) writePlistValue(pval Value) {
	switch pval := pval.(type) {
	case String:
		p.element(xmlStringTag, string(pval))
	case Number:
		switch pval.kind {
		case integerNumber:
			p.element(xmlIntegerTag, strconv.FormatInt(int64(pval.bits), 10))
		case realNumber:
			p.element(xmlRealTag, formatXMLFloat(math.Float64frombits(pval.bits)))
		case booleanNumber:
			if pval.bits != 0 {
				p.element(xmlTrueTag, "")
			} else {
				p.element(xmlFalseTag, "")
			}
		}
	case Data:
		p.writeData(pval)
	case Date:
		p.element(xmlDateTag, time.Time(pval).In(time.UTC).Format(time.RFC3339))
	case *Dict:
		p.writeDictionary(pval)
	case *Array:
		p.writeArray(pval)
	case UID:
		p.writeDictionary(pval.toDict())
	}
}

func newXMLPlistGenerator(w io.Writer) *xmlPlistGenerator {
	return &xmlPlistGenerator{Writer: bufio.NewWriter(w)}
}
