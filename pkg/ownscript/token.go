package ownscript

import "fmt"

// TokenType identifies the type of token.
type TokenType int

// TokenType constants.
const (
	TokenEOF       TokenType = iota
	TokenNewline             // statement separator
	TokenIdent               // names and keywords
	TokenInt                 // 42, 0xff, 1_000
	TokenFloat               // 6.4
	TokenString              // "text"
	TokenChar                // 'z'
	TokenLParen              // (
	TokenRParen              // )
	TokenLBrace              // {
	TokenRBrace              // }
	TokenLBracket            // [
	TokenRBracket            // ]
	TokenComma               // ,
	TokenDot                 // .
	TokenColon               // :
	TokenPathSep             // ::
	TokenSemicolon           // ;
	TokenAssign              // =
	TokenArrow               // ->
	TokenBang                // !
	TokenAmp                 // &
	TokenPlus                // +
	TokenMinus               // -
	TokenStar                // *
	TokenSlash               // /
	TokenPercent             // %
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "end of input",
	TokenNewline:   "newline",
	TokenIdent:     "identifier",
	TokenInt:       "integer",
	TokenFloat:     "float",
	TokenString:    "string",
	TokenChar:      "char",
	TokenLParen:    "'('",
	TokenRParen:    "')'",
	TokenLBrace:    "'{'",
	TokenRBrace:    "'}'",
	TokenLBracket:  "'['",
	TokenRBracket:  "']'",
	TokenComma:     "','",
	TokenDot:       "'.'",
	TokenColon:     "':'",
	TokenPathSep:   "'::'",
	TokenSemicolon: "';'",
	TokenAssign:    "'='",
	TokenArrow:     "'->'",
	TokenBang:      "'!'",
	TokenAmp:       "'&'",
	TokenPlus:      "'+'",
	TokenMinus:     "'-'",
	TokenStar:      "'*'",
	TokenSlash:     "'/'",
	TokenPercent:   "'%'",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Position is a location in a source file. Line and Column are 1-based.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	if p.File != "" {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token represents a lexical token. Value holds the raw source text, or
// the decoded contents for strings and chars.
type Token struct {
	Type  TokenType
	Value string
	Pos   Position
}

func (t Token) String() string {
	switch t.Type {
	case TokenIdent, TokenInt, TokenFloat:
		return fmt.Sprintf("%s %q", t.Type, t.Value)
	default:
		return t.Type.String()
	}
}
