package vm

// lexer is the character-level scanner underlying the assembler
// (spec.md §4.4). It hands out tokens on demand; whitespace and
// "//...\n"-style comments are skipped between tokens. The one
// deliberately non-standard bit, preserved per spec.md §9, is that the
// comment trigger is a single '/': a '/' not immediately followed by a
// second one still opens a comment running to end of line. There is no
// division opcode that would collide with it, so the ambiguity is
// benign.
type lexer struct {
	src  []byte
	pos  int
	line int
	col  int
}

type lexState struct {
	pos, line, col int
}

func newLexer(src []byte) *lexer {
	return &lexer{src: src}
}

func (l *lexer) position() Position {
	return Position{Line: l.line, Col: l.col, Offset: l.pos}
}

func (l *lexer) save() lexState {
	return lexState{pos: l.pos, line: l.line, col: l.col}
}

func (l *lexer) restore(s lexState) {
	l.pos, l.line, l.col = s.pos, s.line, s.col
}

func (l *lexer) peekByte() (byte, bool) {
	if l.pos >= len(l.src) {
		return 0, false
	}
	return l.src[l.pos], true
}

func (l *lexer) advance() byte {
	b := l.src[l.pos]
	l.pos++
	if b == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
	return b
}

func (l *lexer) atEOF() bool {
	return l.pos >= len(l.src)
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentCont(b byte) bool {
	return isIdentStart(b) || isDigit(b)
}

func (l *lexer) skipWhitespaceAndComments() {
	for {
		b, ok := l.peekByte()
		if !ok {
			return
		}
		if isSpace(b) {
			l.advance()
			continue
		}
		if b == '/' {
			for {
				b2, ok2 := l.peekByte()
				if !ok2 || b2 == '\n' {
					break
				}
				l.advance()
			}
			continue
		}
		return
	}
}

// tryIdentifier consumes [A-Za-z_][A-Za-z0-9_]* if present at the
// current position.
func (l *lexer) tryIdentifier() (string, bool) {
	start := l.save()
	b, ok := l.peekByte()
	if !ok || !isIdentStart(b) {
		return "", false
	}
	for {
		b, ok := l.peekByte()
		if !ok || !isIdentCont(b) {
			break
		}
		l.advance()
	}
	return string(l.src[start.pos:l.pos]), true
}

// tryNumber consumes an optional sign, digits, and an optional single
// '.' followed by digits. A '.' with no digits after it is not
// consumed, so "3." parses as the integer "3" with the dot left for the
// next token.
func (l *lexer) tryNumber() (text string, isFloat bool, ok bool) {
	start := l.save()
	if b, o := l.peekByte(); o && (b == '+' || b == '-') {
		l.advance()
	}
	digitsStart := l.pos
	for {
		b, o := l.peekByte()
		if !o || !isDigit(b) {
			break
		}
		l.advance()
	}
	if l.pos == digitsStart {
		l.restore(start)
		return "", false, false
	}

	if b, o := l.peekByte(); o && b == '.' {
		beforeDot := l.save()
		l.advance()
		fracStart := l.pos
		for {
			b, o := l.peekByte()
			if !o || !isDigit(b) {
				break
			}
			l.advance()
		}
		if l.pos == fracStart {
			l.restore(beforeDot)
		} else {
			isFloat = true
		}
	}

	return string(l.src[start.pos:l.pos]), isFloat, true
}

// tryString consumes a '"'- or '\''-quoted string, decoding \n, \t, \r
// and \<any> escapes. Returns ok=false if no quote starts here, and an
// error if the quote is never closed.
func (l *lexer) tryString() ([]byte, bool, error) {
	b, o := l.peekByte()
	if !o || (b != '"' && b != '\'') {
		return nil, false, nil
	}
	quote := b
	l.advance()

	var out []byte
	for {
		b, o := l.peekByte()
		if !o {
			return nil, true, wrapf(ErrNoMatch, "unterminated string starting with %c", quote)
		}
		if b == quote {
			l.advance()
			break
		}
		if b == '\\' {
			l.advance()
			esc, o2 := l.peekByte()
			if !o2 {
				return nil, true, wrapf(ErrInvalidEscape, "dangling escape at end of input")
			}
			l.advance()
			switch esc {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			default:
				out = append(out, esc)
			}
			continue
		}
		out = append(out, b)
		l.advance()
	}
	return out, true, nil
}
