package plist

import (
	"encoding/hex"
	"io"
	"io/ioutil"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"
)

type textPlistParser struct {
	reader io.Reader
	input  string
	pos    int
	format int
	depth  int
}

func (p *textPlistParser) error(msg string, args ...interface{}) {
	panic(formatErrorf("text", int64(p.pos), msg, args...))
}

func (p *textPlistParser) parseDocument() (pval Value, parseError error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(runtime.Error); ok {
				panic(r)
			}
			pval = nil
			switch err := r.(type) {
			case *FormatError:
				parseError = err
			case error:
				parseError = &FormatError{Format: "text", Offset: int64(p.pos), Err: err}
			default:
				panic(r)
			}
		}
	}()

	buffer, err := ioutil.ReadAll(p.reader)
	if err != nil {
		return nil, &IOError{Op: "read", Err: err}
	}
	if !utf8.Valid(buffer) {
		p.error("input is not valid UTF-8")
	}
	p.input = strings.TrimPrefix(string(buffer), "\ufeff")
	p.format = OpenStepFormat

	p.skipWhitespaceAndComments()
	if p.pos >= len(p.input) {
		p.error("empty document")
	}
	pval = p.parsePlistValue()
	p.skipWhitespaceAndComments()
	if p.pos < len(p.input) {
		p.error("garbage after end of document")
	}
	return pval, nil
}

func (p *textPlistParser) peek() byte {
	if p.pos >= len(p.input) {
		p.error("unexpected end of document")
	}
	return p.input[p.pos]
}

func (p *textPlistParser) expect(c byte) {
	if p.peek() != c {
		p.error("expected %q, found %q", c, p.input[p.pos])
	}
	p.pos++
}

func (p *textPlistParser) skipWhitespaceAndComments() {
	for p.pos < len(p.input) {
		switch c := p.input[p.pos]; {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			p.pos++
		case strings.HasPrefix(p.input[p.pos:], "//"):
			end := strings.IndexByte(p.input[p.pos:], '\n')
			if end < 0 {
				p.pos = len(p.input)
			} else {
				p.pos += end + 1
			}
		case strings.HasPrefix(p.input[p.pos:], "/*"):
			end := strings.Index(p.input[p.pos+2:], "*/")
			if end < 0 {
				p.error("unterminated comment")
			}
			p.pos += end + 4
		default:
			return
		}
	}
}

func (p *textPlistParser) parsePlistValue() Value {
	p.skipWhitespaceAndComments()
	switch c := p.peek(); {
	case c == '{':
		return p.parseDictionary()
	case c == '(':
		return p.parseArray()
	case c == '<':
		if strings.HasPrefix(p.input[p.pos:], "<*") {
			return p.parseGNUStepValue()
		}
		return p.parseData()
	case c == '"' || c == '\'':
		return String(p.parseQuotedString())
	case isUnquotedRune(rune(c)):
		return String(p.parseUnquotedString())
	default:
		p.error("unexpected character %q", c)
	}
	return nil
}

func (p *textPlistParser) enter() {
	p.depth++
	if p.depth > maxNestingDepth {
		p.error("containers nested deeper than %d", maxNestingDepth)
	}
}

func (p *textPlistParser) parseKey() string {
	p.skipWhitespaceAndComments()
	switch c := p.peek(); {
	case c == '"' || c == '\'':
		return p.parseQuotedString()
	case isUnquotedRune(rune(c)):
		return p.parseUnquotedString()
	}
	p.error("dictionary key is not a string")
	return ""
}

func (p *textPlistParser) parseDictionary() Value {
	p.expect('{')
	p.enter()
	dict := NewDict()
	for {
		p.skipWhitespaceAndComments()
		if p.peek() == '}' {
			p.pos++
			break
		}
		key := p.parseKey()
		p.skipWhitespaceAndComments()
		p.expect('=')
		dict.Set(key, p.parsePlistValue())
		p.skipWhitespaceAndComments()
		if p.peek() == '}' {
			// The final ';' is optional.
			continue
		}
		p.expect(';')
	}
	p.depth--
	return dict.maybeUID()
}

func (p *textPlistParser) parseArray() Value {
	p.expect('(')
	p.enter()
	arr := &Array{}
	for {
		p.skipWhitespaceAndComments()
		if p.peek() == ')' {
			p.pos++
			break
		}
		arr.Append(p.parsePlistValue())
		p.skipWhitespaceAndComments()
		if p.peek() == ')' {
			continue
		}
		p.expect(',')
	}
	p.depth--
	return arr
}

func (p *textPlistParser) parseData() Value {
	p.expect('<')
	end := strings.IndexByte(p.input[p.pos:], '>')
	if end < 0 {
		p.error("unterminated data")
	}
	digits := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, p.input[p.pos:p.pos+end])
	b, err := hex.DecodeString(digits)
	if err != nil {
		p.error("invalid data: %v", err)
	}
	p.pos += end + 1
	return Data(b)
}

func (p *textPlistParser) parseGNUStepValue() Value {
	start := p.pos
	p.pos += 2
	end := strings.IndexByte(p.input[p.pos:], '>')
	if end < 0 || end == 0 {
		p.error("unterminated typed value")
	}
	body := p.input[p.pos : p.pos+end]
	p.pos += end + 1
	p.format = GNUStepFormat

	typ, s := body[0], strings.TrimSpace(body[1:])
	switch typ {
	case 'I':
		n, err := parseInteger(s)
		if err != nil {
			p.pos = start
			p.error("invalid integer %q", s)
		}
		return NewInteger(n)
	case 'R':
		f, err := parseReal(s)
		if err != nil {
			p.pos = start
			p.error("invalid real %q", s)
		}
		return NewReal(f)
	case 'B':
		switch s {
		case "Y":
			return NewBool(true)
		case "N":
			return NewBool(false)
		}
		p.pos = start
		p.error("invalid boolean %q", s)
	case 'D':
		t, err := time.Parse(textDateLayout, s)
		if err != nil {
			p.pos = start
			p.error("invalid date %q", s)
		}
		return Date(t.In(time.UTC))
	}
	p.pos = start
	p.error("unknown typed value <*%c>", typ)
	return nil
}

func (p *textPlistParser) parseUnquotedString() string {
	start := p.pos
	for p.pos < len(p.input) && isUnquotedRune(rune(p.input[p.pos])) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *textPlistParser) parseQuotedString() string {
	quote := p.input[p.pos]
	p.pos++
	var runes []rune
	for {
		if p.pos >= len(p.input) {
			p.error("unterminated quoted string")
		}
		c := p.input[p.pos]
		if c == quote {
			p.pos++
			return string(runes)
		}
		if c != '\\' {
			r, size := utf8.DecodeRuneInString(p.input[p.pos:])
			runes = append(runes, r)
			p.pos += size
			continue
		}
		p.pos++
		runes = append(runes, p.parseEscape())
	}
}

func (p *textPlistParser) parseEscape() rune {
	c := p.peek()
	p.pos++
	switch c {
	case 'a':
		return '\a'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'v':
		return '\v'
	case 'U', 'u':
		r := p.parseHexUnit()
		if utf16.IsSurrogate(r) && strings.HasPrefix(p.input[p.pos:], `\U`) {
			save := p.pos
			p.pos += 2
			if pair := utf16.DecodeRune(r, p.parseHexUnit()); pair != utf8.RuneError {
				return pair
			}
			p.pos = save
		}
		return r
	}
	if c >= '0' && c <= '7' {
		n := int(c - '0')
		for i := 0; i < 2 && p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '7'; i++ {
			n = n*8 + int(p.input[p.pos]-'0')
			p.pos++
		}
		return rune(n)
	}
	// \" \' \\ and any other escaped character stand for themselves.
	p.pos--
	r, size := utf8.DecodeRuneInString(p.input[p.pos:])
	p.pos += size
	return r
}

func (p *textPlistParser) parseHexUnit() rune {
	start := p.pos
	for p.pos < len(p.input) && p.pos-start < 4 && isHexDigit(p.input[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		p.error("invalid unicode escape")
	}
	n, _ := strconv.ParseUint(p.input[start:p.pos], 16, 16)
	return rune(n)
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func newTextPlistParser(r io.Reader) *textPlistParser {
	return &textPlistParser{reader: r}
}
