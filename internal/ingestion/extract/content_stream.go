package extract

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// ContentStreamText pulls the text shown by Tj, TJ, ' and " out of a decoded page
// content stream. Line-moving operators become newlines; wide negative kerning inside
// TJ arrays becomes a space. Glyphs from CID fonts without a ToUnicode map come out
// as their raw byte values.
func ContentStreamText(stream []byte) string {
	p := &csParser{src: stream}
	var out strings.Builder
	var operands []csToken

	newline := func() {
		s := out.String()
		if s != "" && !strings.HasSuffix(s, "\n") {
			out.WriteByte('\n')
		}
	}

	for {
		tok, ok := p.next()
		if !ok {
			break
		}
		if tok.kind != tokOperator {
			operands = append(operands, tok)
			continue
		}
		switch tok.text {
		case "Tj":
			writeLastString(&out, operands)
		case "'", "\"":
			newline()
			writeLastString(&out, operands)
		case "TJ":
			if n := len(operands); n > 0 && operands[n-1].kind == tokArray {
				for _, el := range operands[n-1].items {
					switch el.kind {
					case tokString:
						out.WriteString(el.text)
					case tokNumber:
						if v, err := strconv.ParseFloat(el.text, 64); err == nil && v < -200 {
							out.WriteByte(' ')
						}
					}
				}
			}
		case "T*", "Td", "TD", "ET":
			newline()
		case "BI":
			p.skipInlineImage()
		}
		operands = operands[:0]
	}
	return strings.TrimSpace(out.String())
}

func writeLastString(out *strings.Builder, operands []csToken) {
	for i := len(operands) - 1; i >= 0; i-- {
		if operands[i].kind == tokString {
			out.WriteString(operands[i].text)
			return
		}
	}
}

type tokKind int

const (
	tokOperator tokKind = iota
	tokString
	tokNumber
	tokName
	tokArray
	tokOther
)

type csToken struct {
	kind  tokKind
	text  string
	items []csToken
}

type csParser struct {
	src []byte
	pos int
}

func isWhite(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func (p *csParser) next() (csToken, bool) {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case isWhite(c):
			p.pos++
		case c == '%':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' && p.src[p.pos] != '\r' {
				p.pos++
			}
		case c == '(':
			p.pos++
			return csToken{kind: tokString, text: decodePDFString(p.literal())}, true
		case c == '<' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '<':
			p.pos += 2
			return csToken{kind: tokOther, text: "<<"}, true
		case c == '>' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '>':
			p.pos += 2
			return csToken{kind: tokOther, text: ">>"}, true
		case c == '<':
			p.pos++
			return csToken{kind: tokString, text: decodePDFString(p.hex())}, true
		case c == '[':
			p.pos++
			arr := csToken{kind: tokArray}
			for {
				el, ok := p.next()
				if !ok || (el.kind == tokOther && el.text == "]") {
					break
				}
				arr.items = append(arr.items, el)
			}
			return arr, true
		case c == ']':
			p.pos++
			return csToken{kind: tokOther, text: "]"}, true
		case c == '/':
			start := p.pos
			p.pos++
			for p.pos < len(p.src) && !isWhite(p.src[p.pos]) && !isDelim(p.src[p.pos]) {
				p.pos++
			}
			return csToken{kind: tokName, text: string(p.src[start:p.pos])}, true
		default:
			start := p.pos
			for p.pos < len(p.src) && !isWhite(p.src[p.pos]) && !isDelim(p.src[p.pos]) {
				p.pos++
			}
			if p.pos == start {
				p.pos++
				continue
			}
			word := string(p.src[start:p.pos])
			if _, err := strconv.ParseFloat(word, 64); err == nil {
				return csToken{kind: tokNumber, text: word}, true
			}
			return csToken{kind: tokOperator, text: word}, true
		}
	}
	return csToken{}, false
}

func (p *csParser) literal() []byte {
	var buf []byte
	depth := 1
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case '(':
			depth++
			buf = append(buf, c)
		case ')':
			depth--
			if depth == 0 {
				return buf
			}
			buf = append(buf, c)
		case '\\':
			if p.pos >= len(p.src) {
				return buf
			}
			e := p.src[p.pos]
			p.pos++
			switch e {
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'b':
				buf = append(buf, '\b')
			case 'f':
				buf = append(buf, '\f')
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '7'; k++ {
						v = v*8 + int(p.src[p.pos]-'0')
						p.pos++
					}
					buf = append(buf, byte(v))
				} else {
					buf = append(buf, e)
				}
			}
		default:
			buf = append(buf, c)
		}
	}
	return buf
}

func (p *csParser) hex() []byte {
	var digits []byte
	for p.pos < len(p.src) && p.src[p.pos] != '>' {
		if !isWhite(p.src[p.pos]) {
			digits = append(digits, p.src[p.pos])
		}
		p.pos++
	}
	p.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

// skipInlineImage jumps past "ID <binary> EI".
func (p *csParser) skipInlineImage() {
	idx := strings.Index(string(p.src[p.pos:]), " ID")
	if idx < 0 {
		p.pos = len(p.src)
		return
	}
	p.pos += idx + 3
	end := strings.Index(string(p.src[p.pos:]), "EI")
	if end < 0 {
		p.pos = len(p.src)
		return
	}
	p.pos += end + 2
}

func decodePDFString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		units := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(units))
	}
	runes := make([]rune, 0, len(b))
	for _, c := range b {
		runes = append(runes, rune(c))
	}
	return string(runes)
}
