package ownscript

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes ownscript source.
type Lexer struct {
	input    string
	file     string
	pos      int // current byte offset in input
	line     int // current line number (1-based)
	col      int // current column number (1-based)
	lastLine int // line at start of current token
	lastCol  int // column at start of current token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input, file string) *Lexer {
	return &Lexer{
		input: input,
		file:  file,
		line:  1,
		col:   1,
	}
}

// Tokenize converts the input into a slice of tokens ending in TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

var punctuation = map[byte]TokenType{
	'(': TokenLParen,
	')': TokenRParen,
	'{': TokenLBrace,
	'}': TokenRBrace,
	'[': TokenLBracket,
	']': TokenRBracket,
	',': TokenComma,
	'.': TokenDot,
	';': TokenSemicolon,
	'=': TokenAssign,
	'!': TokenBang,
	'&': TokenAmp,
	'+': TokenPlus,
	'*': TokenStar,
	'%': TokenPercent,
}

func (l *Lexer) nextToken() (Token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return Token{}, err
	}
	l.markStart()

	if l.pos >= len(l.input) {
		return l.token(TokenEOF, ""), nil
	}

	ch := l.input[l.pos]
	switch {
	case ch == '\n':
		l.advance()
		return l.token(TokenNewline, "\n"), nil
	case ch == '"':
		return l.scanString()
	case ch == '\'':
		return l.scanChar()
	case isDigit(ch):
		return l.scanNumber(), nil
	case ch == '_' || ch >= utf8.RuneSelf || isLetter(ch):
		return l.scanIdent()
	case l.matchString("::"):
		l.advanceN(2)
		return l.token(TokenPathSep, "::"), nil
	case l.matchString("->"):
		l.advanceN(2)
		return l.token(TokenArrow, "->"), nil
	case ch == ':':
		l.advance()
		return l.token(TokenColon, ":"), nil
	case ch == '-':
		l.advance()
		return l.token(TokenMinus, "-"), nil
	case ch == '/':
		l.advance()
		return l.token(TokenSlash, "/"), nil
	}

	if typ, ok := punctuation[ch]; ok {
		l.advance()
		return l.token(typ, string(ch)), nil
	}
	return Token{}, NewParseErrorf(l.position(), "unexpected character %q", ch)
}

// skipSpaceAndComments skips blanks and comments, stopping at newlines.
func (l *Lexer) skipSpaceAndComments() error {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r':
			l.advance()
		case ch == '#' || l.matchString("//"):
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.advance()
			}
		case l.matchString("/*"):
			l.markStart()
			start := l.position()
			l.advanceN(2)
			for !l.matchString("*/") {
				if l.pos >= len(l.input) {
					return NewParseError(start, "unterminated block comment")
				}
				l.advance()
			}
			l.advanceN(2)
		default:
			return nil
		}
	}
	return nil
}

func (l *Lexer) scanIdent() (Token, error) {
	start := l.pos
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		l.pos += size
		l.col++
	}
	if start == l.pos {
		return Token{}, NewParseErrorf(l.position(), "unexpected character %q", l.input[l.pos])
	}
	return l.token(TokenIdent, l.input[start:l.pos]), nil
}

// scanNumber scans integers (decimal, 0x, 0o, 0b, with underscores) and
// decimal floats. A '.' followed by a non-digit ends the number so that
// tuple fields like t.0.1 and method calls like 5.max stay separate.
func (l *Lexer) scanNumber() Token {
	start := l.pos
	if l.matchString("0x") || l.matchString("0o") || l.matchString("0b") {
		l.advanceN(2)
		for l.pos < len(l.input) && (isHexDigit(l.input[l.pos]) || l.input[l.pos] == '_') {
			l.advance()
		}
		return l.token(TokenInt, l.input[start:l.pos])
	}

	l.scanDigits()
	typ := TokenInt
	if l.pos+1 < len(l.input) && l.input[l.pos] == '.' && isDigit(l.input[l.pos+1]) {
		typ = TokenFloat
		l.advance()
		l.scanDigits()
	}
	return l.token(typ, l.input[start:l.pos])
}

func (l *Lexer) scanDigits() {
	for l.pos < len(l.input) && (isDigit(l.input[l.pos]) || l.input[l.pos] == '_') {
		l.advance()
	}
}

func (l *Lexer) scanString() (Token, error) {
	start := l.pos
	l.advance() // opening quote
	for {
		if l.pos >= len(l.input) || l.input[l.pos] == '\n' {
			return Token{}, NewParseError(l.startPosition(), "unterminated string literal")
		}
		ch := l.input[l.pos]
		if ch == '\\' {
			l.advanceN(2)
			continue
		}
		l.advance()
		if ch == '"' {
			break
		}
	}

	text, err := strconv.Unquote(l.input[start:l.pos])
	if err != nil {
		return Token{}, NewParseErrorf(l.startPosition(), "invalid string literal %s", l.input[start:l.pos])
	}
	return l.token(TokenString, text), nil
}

func (l *Lexer) scanChar() (Token, error) {
	l.advance() // opening quote
	rest := l.input[l.pos:]
	r, _, tail, err := strconv.UnquoteChar(rest, '\'')
	if err != nil || !strings.HasPrefix(tail, "'") {
		return Token{}, NewParseError(l.startPosition(), "invalid character literal")
	}
	consumed := len(rest) - len(tail)
	l.pos += consumed
	l.col += utf8.RuneCountInString(rest[:consumed])
	l.advance() // closing quote
	return l.token(TokenChar, string(r)), nil
}

func (l *Lexer) token(typ TokenType, value string) Token {
	return Token{Type: typ, Value: value, Pos: l.startPosition()}
}

func (l *Lexer) markStart() {
	l.lastLine = l.line
	l.lastCol = l.col
}

func (l *Lexer) startPosition() Position {
	return Position{File: l.file, Line: l.lastLine, Column: l.lastCol}
}

func (l *Lexer) position() Position {
	return Position{File: l.file, Line: l.line, Column: l.col}
}

func (l *Lexer) matchString(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	if l.input[l.pos] == '\n' {
		l.line++
		l.col = 1
		l.pos++
		return
	}
	_, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	l.col++
}

func (l *Lexer) advanceN(n int) {
	for i := 0; i < n; i++ {
		l.advance()
	}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}
