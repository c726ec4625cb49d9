package plist

import (
	"bufio"
	"encoding/hex"
	"io"
	"math"
	"strconv"
	"time"
	"unicode/utf16"
)

const textDateLayout = "2006-01-02 15:04:05 -0700"

type textPlistGenerator struct {
	*bufio.Writer
	format int

	indent string
	depth  int

	dictKvDelimiter, dictEntryDelimiter, arrayDelimiter string
}

var textEscapes = map[rune]string{
	'\a': `\a`,
	'\b': `\b`,
	'\f': `\f`,
	'\n': `\n`,
	'\r': `\r`,
	'\t': `\t`,
	'\v': `\v`,
	'"':  `\"`,
	'\\': `\\`,
}

// isUnquotedRune reports whether r may appear in a bare (unquoted) string.
func isUnquotedRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	switch r {
	case '_', '$', '+', '/', ':', '.', '-':
		return true
	}
	return false
}

func (p *textPlistGenerator) Indent(i string) {
	p.indent = i
	if i == "" {
		p.dictKvDelimiter = "="
	} else {
		// For pretty-printing
		p.dictKvDelimiter = " = "
	}
}

func (p *textPlistGenerator) writeIndent() {
	if p.indent == "" {
		return
	}
	p.WriteByte('\n')
	for i := 0; i < p.depth; i++ {
		p.WriteString(p.indent)
	}
}

func (p *textPlistGenerator) generateDocument(root Value) error {
	p.writePlistValue(root)
	p.WriteByte('\n')
	if err := p.Flush(); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

func (p *textPlistGenerator) writeQuotedString(s string) {
	p.WriteByte('"')
	for _, r := range s {
		if esc, ok := textEscapes[r]; ok {
			p.WriteString(esc)
			continue
		}
		switch {
		case r < 0x20:
			p.WriteString(`\` + strconv.FormatInt(int64(r)|0x200, 8)[1:])
		case r < 0x80:
			p.WriteRune(r)
		default:
			for _, u := range utf16.Encode([]rune{r}) {
				p.WriteString(`\U`)
				p.WriteString(strconv.FormatUint(uint64(u)|0x10000, 16)[1:])
			}
		}
	}
	p.WriteByte('"')
}

func (p *textPlistGenerator) writeString(s string) {
	if s == "" {
		p.WriteString(`""`)
		return
	}
	for _, r := range s {
		if !isUnquotedRune(r) {
			p.writeQuotedString(s)
			return
		}
	}
	p.WriteString(s)
}

func (p *textPlistGenerator) writeDictionary(dict *Dict) {
	p.WriteByte('{')
	p.depth++
	for _, k := range dict.keys {
		p.writeIndent()
		p.writeString(k)
		p.WriteString(p.dictKvDelimiter)
		p.writePlistValue(dict.values[k])
		p.WriteString(p.dictEntryDelimiter)
	}
	p.depth--
	if dict.Len() > 0 {
		p.writeIndent()
	}
	p.WriteByte('}')
}

func (p *textPlistGenerator) writeArray(a *Array) {
	p.WriteByte('(')
	p.depth++
	for i, v := range a.values {
		p.writeIndent()
		p.writePlistValue(v)
		if i < len(a.values)-1 || p.indent != "" {
			p.WriteString(p.arrayDelimiter)
		}
	}
	p.depth--
	if a.Len() > 0 {
		p.writeIndent()
	}
	p.WriteByte(')')
}

func (p *textPlistGenerator) writePlistValue(pval Value) {
	gnu := p.format == GNUStepFormat
	switch pval := pval.(type) {
	case String:
		p.writeString(string(pval))
	case Number:
		switch pval.kind {
		case integerNumber:
			s := strconv.FormatInt(int64(pval.bits), 10)
			if gnu {
				p.WriteString("<*I" + s + ">")
			} else {
				p.WriteString(s)
			}
		case realNumber:
			s := formatTextFloat(math.Float64frombits(pval.bits))
			if gnu {
				p.WriteString("<*R" + s + ">")
			} else {
				p.writeString(s)
			}
		case booleanNumber:
			switch {
			case gnu && pval.bits != 0:
				p.WriteString("<*BY>")
			case gnu:
				p.WriteString("<*BN>")
			case pval.bits != 0:
				p.WriteString("YES")
			default:
				p.WriteString("NO")
			}
		}
	case Data:
		p.WriteByte('<')
		p.WriteString(hex.EncodeToString(pval))
		p.WriteByte('>')
	case Date:
		s := time.Time(pval).In(time.UTC).Format(textDateLayout)
		if gnu {
			p.WriteString("<*D" + s + ">")
		} else {
			p.writeQuotedString(s)
		}
	case *Dict:
		p.writeDictionary(pval)
	case *Array:
		p.writeArray(pval)
	case UID:
		p.writeDictionary(pval.toDict())
	}
}

func formatTextFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return formatXMLFloat(f)
}

func newTextPlistGenerator(w io.Writer, format int) *textPlistGenerator {
	p := &textPlistGenerator{
		Writer:             bufio.NewWriter(w),
		format:             format,
		dictEntryDelimiter: ";",
		arrayDelimiter:     ",",
	}
	p.Indent("")
	return p
}
