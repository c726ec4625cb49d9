package plist

import (
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type xmlPlistParser struct {
	reader             io.Reader
	xmlDecoder         *xml.Decoder
	whitespaceReplacer *strings.Replacer
	ntags              int
	depth              int
	idrefs             map[string]Value
}

func (p *xmlPlistParser) parseDocument() (pval Value, parseError error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(runtime.Error); ok {
				panic(r)
			}
			pval = nil
			switch err := r.(type) {
			case invalidPlistError:
				parseError = err
			case error:
				// Wrap all non-invalid-plist errors.
				parseError = &FormatError{Format: "XML", Offset: -1, Err: err}
			default:
				panic(r)
			}
		}
	}()
	for {
		token, err := p.xmlDecoder.Token()
		if err != nil {
			// The first XML parse turned out to be invalid:
			// we do not have an XML property list.
			panic(invalidPlistError{"XML", err})
		}
		if element, ok := token.(xml.StartElement); ok {
			pval = p.parseXMLElement(element)
			if p.ntags == 0 {
				panic(invalidPlistError{"XML", errors.New("no elements encountered")})
			}
			if pval == nil {
				panic(errors.New("empty plist element"))
			}
			return
		}
	}
}

func (p *xmlPlistParser) storeOrFindXMLElementValue(element xml.StartElement, value Value) Value {
	for _, attr := range element.Attr {
		switch attr.Name.Local {
		case "ID":
			p.idrefs[attr.Value] = value
		case "IDREF":
			ref, ok := p.idrefs[attr.Value]
			if !ok {
				panic(fmt.Errorf("unknown IDREF %q", attr.Value))
			}
			return ref
		}
	}
	return value
}

func (p *xmlPlistParser) enter() {
	p.depth++
	if p.depth > maxNestingDepth {
		panic(fmt.Errorf("elements nested deeper than %d", maxNestingDepth))
	}
}

func (p *xmlPlistParser) charData(element *xml.StartElement) string {
	var charData xml.CharData
	if err := p.xmlDecoder.DecodeElement(&charData, element); err != nil {
		panic(err)
	}
	return string(charData)
}

func (p *xmlPlistParser) parseXMLElement(element xml.StartElement) Value {
	switch element.Name.Local {
	case xmlPlistTag:
		p.ntags++
		for {
			token, err := p.xmlDecoder.Token()
			if err != nil {
				panic(err)
			}
			if el, ok := token.(xml.EndElement); ok && el.Name.Local == xmlPlistTag {
				return nil
			}
			if el, ok := token.(xml.StartElement); ok {
				return p.parseXMLElement(el)
			}
		}
	case xmlStringTag:
		p.ntags++
		return p.storeOrFindXMLElementValue(element, String(p.charData(&element)))
	case xmlIntegerTag:
		p.ntags++
		s := strings.TrimSpace(p.charData(&element))
		if len(s) == 0 {
			panic(errors.New("invalid empty <integer/>"))
		}
		return p.storeOrFindXMLElementValue(element, NewInteger(mustParseInteger(s)))
	case xmlRealTag:
		p.ntags++
		s := strings.TrimSpace(p.charData(&element))
		if len(s) == 0 {
			panic(errors.New("invalid empty <real/>"))
		}
		return p.storeOrFindXMLElementValue(element, NewReal(mustParseReal(s)))
	case xmlTrueTag, xmlFalseTag:
		p.ntags++
		p.xmlDecoder.Skip()

		b := element.Name.Local == xmlTrueTag
		return p.storeOrFindXMLElementValue(element, NewBool(b))
	case xmlDateTag:
		p.ntags++
		s := strings.TrimSpace(p.charData(&element))
		t, err := time.ParseInLocation(time.RFC3339, s, time.UTC)
		if err != nil {
			panic(err)
		}
		return p.storeOrFindXMLElementValue(element, Date(t))
	case xmlDataTag:
		p.ntags++
		str := p.whitespaceReplacer.Replace(p.charData(&element))
		b, err := base64.StdEncoding.DecodeString(str)
		if err != nil {
			panic(err)
		}
		return p.storeOrFindXMLElementValue(element, Data(b))
	case xmlDictTag:
		p.ntags++
		p.enter()
		var key *string
		dict := NewDict()
		for {
			token, err := p.xmlDecoder.Token()
			if err != nil {
				panic(err)
			}
			if el, ok := token.(xml.EndElement); ok && el.Name.Local == xmlDictTag {
				if key != nil {
					panic(errors.New("missing value in dictionary"))
				}
				p.depth--
				break
			}
			if el, ok := token.(xml.StartElement); ok {
				if el.Name.Local == xmlKeyTag {
					k := p.charData(&el)
					key = &k
				} else {
					if key == nil {
						panic(errors.New("missing key in dictionary"))
					}
					dict.Set(*key, p.mustParseChild(el))
					key = nil
				}
			}
		}
		return p.storeOrFindXMLElementValue(element, dict.maybeUID())
	case xmlArrayTag:
		p.ntags++
		p.enter()
		arr := &Array{}
		for {
			token, err := p.xmlDecoder.Token()
			if err != nil {
				panic(err)
			}
			if el, ok := token.(xml.EndElement); ok && el.Name.Local == xmlArrayTag {
				p.depth--
				break
			}
			if el, ok := token.(xml.StartElement); ok {
				arr.Append(p.mustParseChild(el))
			}
		}
		return p.storeOrFindXMLElementValue(element, arr)
	}
	err := fmt.Errorf("encountered unknown element %s", element.Name.Local)
	if p.ntags == 0 {
		// If out first XML tag is invalid, it might be an openstep data element, ala <abab> or <0101>
		panic(invalidPlistError{"XML", err})
	}
	panic(err)
}

func (p *xmlPlistParser) mustParseChild(el xml.StartElement) Value {
	if el.Name.Local == xmlPlistTag {
		panic(errors.New("nested plist element"))
	}
	return p.parseXMLElement(el)
}

// parseInteger accepts decimal and 0x-prefixed hexadecimal integers.
// Values past MaxInt64 keep their 64-bit pattern.
func parseInteger(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty integer")
	}
	neg := false
	digits := s
	switch {
	case strings.HasPrefix(digits, "-"):
		neg = true
		digits = digits[1:]
	case strings.HasPrefix(digits, "+"):
		digits = digits[1:]
	}
	base := 10
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		base = 16
		digits = digits[2:]
	}
	if neg {
		return strconv.ParseInt("-"+digits, base, 64)
	}
	n, err := strconv.ParseUint(digits, base, 64)
	return int64(n), err
}

func mustParseInteger(s string) int64 {
	n, err := parseInteger(s)
	if err != nil {
		panic(err)
	}
	return n
}

func parseReal(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "inf", "+inf", "infinity", "+infinity":
		return math.Inf(1), nil
	case "-inf", "-infinity":
		return math.Inf(-1), nil
	case "nan":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func mustParseReal(s string) float64 {
	f, err := parseReal(s)
	if err != nil {
		panic(err)
	}
	return f
}

func newXMLPlistParser(r io.Reader) *xmlPlistParser {
	return &xmlPlistParser{
		reader:             r,
		xmlDecoder:         xml.NewDecoder(r),
		whitespaceReplacer: strings.NewReplacer("\t", "", "\n", "", " ", "", "\r", ""),
		ntags:              0,
		idrefs:             make(map[string]Value),
	}
}
