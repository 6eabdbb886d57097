package schema

import (
	"github.com/iarc-il/holyrig/rigerr"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokSymbol
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	span rigerr.Span
}

// lexer scans schema source into tokens, tracking offset/line/column for
// error spans. Identifiers are ASCII alphanumeric-with-underscores;
// whitespace (including newlines) and "//" line comments are insignificant.
type lexer struct {
	src    string
	pos    int
	line   int
	column int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, pos: 0, line: 1, column: 1}
}

func (l *lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) advance() byte {
	b := l.src[l.pos]
	l.pos++
	if b == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return b
}

func (l *lexer) spanHere() rigerr.Span {
	return rigerr.Span{Offset: l.pos, Line: l.line, Column: l.column}
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

// next returns the next token, or a tokEOF token at end of input. Lexical
// errors (an unrecognized byte) are returned as *rigerr.RigError.
func (l *lexer) next() (token, error) {
	l.skipInsignificant()

	if l.pos >= len(l.src) {
		return token{kind: tokEOF, span: l.spanHere()}, nil
	}

	start := l.spanHere()
	b := l.peekByte()

	switch {
	case isIdentStart(b):
		begin := l.pos
		for l.pos < len(l.src) && isIdentPart(l.peekByte()) {
			l.advance()
		}
		return token{kind: tokIdent, text: l.src[begin:l.pos], span: start}, nil

	case b >= '0' && b <= '9':
		begin := l.pos
		for l.pos < len(l.src) && l.peekByte() >= '0' && l.peekByte() <= '9' {
			l.advance()
		}
		return token{kind: tokNumber, text: l.src[begin:l.pos], span: start}, nil

	case isSymbolByte(b):
		l.advance()
		return token{kind: tokSymbol, text: string(b), span: start}, nil

	default:
		l.advance()
		return token{}, rigerr.NewAt(rigerr.ErrConfig, start, "unexpected character %q", b)
	}
}

func isSymbolByte(b byte) bool {
	switch b {
	case '{', '}', '(', ')', ';', ',', '=':
		return true
	default:
		return false
	}
}

func (l *lexer) skipInsignificant() {
	for l.pos < len(l.src) {
		b := l.peekByte()
		if b == ' ' || b == '\t' || b == '\r' || b == '\n' {
			l.advance()
			continue
		}
		if b == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/' {
			for l.pos < len(l.src) && l.peekByte() != '\n' {
				l.advance()
			}
			continue
		}
		break
	}
}
