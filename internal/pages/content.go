package pages

import (
	"bytes"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"
)

// operand is one value on the content-stream operand stack.
type operand struct {
	str   *string
	num   *float64
	array []operand
}

// contentText walks a decoded page content stream and returns the text shown
// by its text operators, one output line per text line.
func contentText(data []byte) string {
	p := &contentParser{data: data}
	p.run()
	return p.text()
}

type contentParser struct {
	data   []byte
	pos    int
	stack  []operand
	arrays [][]operand
	lines  []string
	cur    strings.Builder
}

func (p *contentParser) run() {
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		switch {
		case isPDFSpace(c):
			p.pos++
		case c == '%':
			p.skipComment()
		case c == '(':
			s := p.readLiteral()
			p.push(operand{str: &s})
		case c == '<' && p.peek(1) == '<':
			p.pos += 2
		case c == '>' && p.peek(1) == '>':
			p.pos += 2
		case c == '<':
			s := p.readHex()
			p.push(operand{str: &s})
		case c == '[':
			p.pos++
			p.arrays = append(p.arrays, []operand{})
		case c == ']':
			p.pos++
			p.closeArray()
		case c == '/':
			p.readName()
		case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
			if n, ok := p.readNumber(); ok {
				p.push(operand{num: &n})
			}
		case c == '{' || c == '}' || c == ')' || c == '>':
			p.pos++
		default:
			p.apply(p.readOperator())
		}
	}
	p.newline()
}

// push adds to the innermost open array, or to the operand stack.
func (p *contentParser) push(o operand) {
	if n := len(p.arrays); n > 0 {
		p.arrays[n-1] = append(p.arrays[n-1], o)
		return
	}
	p.stack = append(p.stack, o)
}

func (p *contentParser) closeArray() {
	n := len(p.arrays)
	if n == 0 {
		return
	}
	arr := p.arrays[n-1]
	p.arrays = p.arrays[:n-1]
	p.push(operand{array: arr})
}

func (p *contentParser) apply(op string) {
	defer func() {
		p.stack = p.stack[:0]
		p.arrays = p.arrays[:0]
	}()

	switch op {
	case "Tj":
		p.show(p.lastString())
	case "TJ":
		if arr := p.lastArray(); arr != nil {
			for _, o := range arr {
				switch {
				case o.str != nil:
					p.show(*o.str)
				case o.num != nil && *o.num <= -200:
					p.cur.WriteByte(' ')
				}
			}
		}
	case "'", "\"":
		p.newline()
		p.show(p.lastString())
	case "T*":
		p.newline()
	case "Td", "TD":
		if len(p.stack) >= 2 {
			tx, ty := p.stack[len(p.stack)-2].num, p.stack[len(p.stack)-1].num
			switch {
			case ty != nil && *ty != 0:
				p.newline()
			case tx != nil && *tx != 0:
				p.cur.WriteByte(' ')
			}
		}
	case "Tm", "BT":
		p.newline()
	case "ID":
		p.skipInlineImage()
	}
}

func (p *contentParser) show(s string) {
	for _, r := range s {
		if r == '\n' || r == '\r' {
			p.newline()
			continue
		}
		if unicode.IsPrint(r) || r == '\t' {
			p.cur.WriteRune(r)
		}
	}
}

func (p *contentParser) newline() {
	line := strings.Join(strings.Fields(p.cur.String()), " ")
	p.cur.Reset()
	if line != "" {
		p.lines = append(p.lines, line)
	}
}

func (p *contentParser) text() string {
	return strings.Join(p.lines, "\n")
}

func (p *contentParser) lastString() string {
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].str != nil {
			return *p.stack[i].str
		}
	}
	return ""
}

func (p *contentParser) lastArray() []operand {
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].array != nil {
			return p.stack[i].array
		}
	}
	return nil
}

func (p *contentParser) peek(off int) byte {
	if p.pos+off < len(p.data) {
		return p.data[p.pos+off]
	}
	return 0
}

func (p *contentParser) skipComment() {
	for p.pos < len(p.data) && p.data[p.pos] != '\n' && p.data[p.pos] != '\r' {
		p.pos++
	}
}

// readLiteral reads a (string) with nesting and escapes. Bytes are decoded
// as Latin-1, which matches the standard single-byte text encodings.
func (p *contentParser) readLiteral() string {
	p.pos++ // (
	var b []byte
	depth := 1
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		p.pos++
		switch c {
		case '\\':
			if p.pos >= len(p.data) {
				break
			}
			e := p.data[p.pos]
			p.pos++
			switch e {
			case 'n':
				b = append(b, '\n')
			case 'r':
				b = append(b, '\r')
			case 't':
				b = append(b, '\t')
			case 'b', 'f':
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for i := 0; i < 2 && p.pos < len(p.data) && p.data[p.pos] >= '0' && p.data[p.pos] <= '7'; i++ {
						val = val*8 + int(p.data[p.pos]-'0')
						p.pos++
					}
					b = append(b, byte(val))
				} else {
					b = append(b, e)
				}
			}
		case '(':
			depth++
			b = append(b, c)
		case ')':
			depth--
			if depth == 0 {
				return latin1(b)
			}
			b = append(b, c)
		default:
			b = append(b, c)
		}
	}
	return latin1(b)
}

func (p *contentParser) readHex() string {
	p.pos++ // <
	start := p.pos
	for p.pos < len(p.data) && p.data[p.pos] != '>' {
		p.pos++
	}
	raw := bytes.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, p.data[start:p.pos])
	p.pos++ // >
	if len(raw)%2 == 1 {
		raw = append(raw, '0')
	}
	decoded, err := hex.DecodeString(string(raw))
	if err != nil {
		return ""
	}
	return latin1(decoded)
}

func (p *contentParser) readName() {
	p.pos++
	for p.pos < len(p.data) && !isPDFSpace(p.data[p.pos]) && !isPDFDelim(p.data[p.pos]) {
		p.pos++
	}
	// Names only matter to operators we ignore.
	p.push(operand{})
}

func (p *contentParser) readNumber() (float64, bool) {
	start := p.pos
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			p.pos++
			continue
		}
		break
	}
	n, err := strconv.ParseFloat(string(p.data[start:p.pos]), 64)
	return n, err == nil
}

func (p *contentParser) readOperator() string {
	start := p.pos
	for p.pos < len(p.data) && !isPDFSpace(p.data[p.pos]) && !isPDFDelim(p.data[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		p.pos++
	}
	return string(p.data[start:p.pos])
}

// skipInlineImage jumps past binary inline image data up to "EI".
func (p *contentParser) skipInlineImage() {
	for p.pos+2 < len(p.data) {
		if isPDFSpace(p.data[p.pos]) && p.data[p.pos+1] == 'E' && p.data[p.pos+2] == 'I' &&
			(p.pos+3 >= len(p.data) || isPDFSpace(p.data[p.pos+3])) {
			p.pos += 3
			return
		}
		p.pos++
	}
	p.pos = len(p.data)
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func latin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}
