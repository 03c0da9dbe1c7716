package ownscript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexer_LetStatement(t *testing.T) {
	tokens, err := NewLexer(`let s = String::from("hello");`, "test.own").Tokenize()
	require.NoError(t, err, "unexpected error")

	expected := []struct {
		typ TokenType
		val string
	}{
		{TokenIdent, "let"},
		{TokenIdent, "s"},
		{TokenAssign, "="},
		{TokenIdent, "String"},
		{TokenPathSep, "::"},
		{TokenIdent, "from"},
		{TokenLParen, "("},
		{TokenString, "hello"},
		{TokenRParen, ")"},
		{TokenSemicolon, ";"},
		{TokenEOF, ""},
	}

	require.Len(t, tokens, len(expected), "wrong number of tokens")
	for i, exp := range expected {
		assert.Equal(t, exp.typ, tokens[i].Type, "token[%d] type", i)
		assert.Equal(t, exp.val, tokens[i].Value, "token[%d] value", i)
	}
}

func TestLexer_Numbers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		val   string
	}{
		{"42", TokenInt, "42"},
		{"1_000", TokenInt, "1_000"},
		{"0xff", TokenInt, "0xff"},
		{"0b1010", TokenInt, "0b1010"},
		{"6.4", TokenFloat, "6.4"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, err := NewLexer(tt.input, "").Tokenize()
			require.NoError(t, err)
			require.Len(t, tokens, 2)
			assert.Equal(t, tt.typ, tokens[0].Type)
			assert.Equal(t, tt.val, tokens[0].Value)
		})
	}
}

func TestLexer_TupleFieldIsNotFloat(t *testing.T) {
	tokens, err := NewLexer("t.0", "").Tokenize()
	require.NoError(t, err)
	require.Len(t, tokens, 4)
	assert.Equal(t, TokenIdent, tokens[0].Type)
	assert.Equal(t, TokenDot, tokens[1].Type)
	assert.Equal(t, TokenInt, tokens[2].Type)
}

func TestLexer_CharsAndEscapes(t *testing.T) {
	tokens, err := NewLexer(`'z' '\n' "a\tb" 'ℤ'`, "").Tokenize()
	require.NoError(t, err)
	require.Len(t, tokens, 5)
	assert.Equal(t, "z", tokens[0].Value)
	assert.Equal(t, "\n", tokens[1].Value)
	assert.Equal(t, "a\tb", tokens[2].Value)
	assert.Equal(t, TokenChar, tokens[3].Type)
	assert.Equal(t, "ℤ", tokens[3].Value)
}

func TestLexer_CommentsAndNewlines(t *testing.T) {
	input := "let x = 5 // five\n# hash comment\n/* block\ncomment */ x"
	tokens, err := NewLexer(input, "").Tokenize()
	require.NoError(t, err)

	var types []TokenType
	for _, tok := range tokens {
		types = append(types, tok.Type)
	}
	assert.Equal(t, []TokenType{
		TokenIdent, TokenIdent, TokenAssign, TokenInt, TokenNewline,
		TokenNewline,
		TokenIdent, TokenEOF,
	}, types)

	last := tokens[len(tokens)-2]
	assert.Equal(t, 4, last.Pos.Line)
	assert.Equal(t, 12, last.Pos.Column)
}

func TestLexer_Positions(t *testing.T) {
	tokens, err := NewLexer("let a\n  fn", "f.own").Tokenize()
	require.NoError(t, err)

	assert.Equal(t, Position{File: "f.own", Line: 1, Column: 5}, tokens[1].Pos)
	assert.Equal(t, Position{File: "f.own", Line: 2, Column: 3}, tokens[3].Pos)
	assert.Equal(t, "f.own:2:3", tokens[3].Pos.String())
}

func TestLexer_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unterminated string", `"abc`, "unterminated string"},
		{"unterminated comment", "/* open", "unterminated block comment"},
		{"bad char", "'ab'", "invalid character literal"},
		{"unexpected", "let x = @", "unexpected character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLexer(tt.input, "").Tokenize()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			var pe *ParseError
			assert.ErrorAs(t, err, &pe)
		})
	}
}
