package ownscript

import (
	"strconv"
	"strings"
)

// Parser builds an AST from a token stream.
type Parser struct {
	tokens []Token
	pos    int
	file   string
}

// Parse parses a complete program.
func Parse(src, file string) (*Program, error) {
	p, err := newParser(src, file)
	if err != nil {
		return nil, err
	}
	stmts, err := p.parseStmtList(TokenEOF)
	if err != nil {
		return nil, err
	}
	return &Program{File: file, Stmts: stmts}, nil
}

// ParseExpr parses a single expression, such as a scenario value.
func ParseExpr(src, file string) (Expr, error) {
	p, err := newParser(src, file)
	if err != nil {
		return nil, err
	}
	p.skipSeparators()
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSeparators()
	if !p.at(TokenEOF) {
		return nil, p.unexpected("end of expression")
	}
	return x, nil
}

// NeedsMore reports whether src stops inside an open bracket, brace,
// parenthesis or block comment, so an interactive reader should keep
// collecting lines.
func NeedsMore(src string) bool {
	tokens, err := NewLexer(src, "").Tokenize()
	if err != nil {
		return strings.Contains(err.Error(), "unterminated block comment")
	}
	depth := 0
	for _, tok := range tokens {
		switch tok.Type {
		case TokenLParen, TokenLBrace, TokenLBracket:
			depth++
		case TokenRParen, TokenRBrace, TokenRBracket:
			depth--
		}
	}
	return depth > 0
}

func newParser(src, file string) (*Parser, error) {
	tokens, err := NewLexer(src, file).Tokenize()
	if err != nil {
		return nil, err
	}
	return &Parser{tokens: tokens, file: file}, nil
}

// parseStmtList parses statements up to (not including) the end token.
func (p *Parser) parseStmtList(end TokenType) ([]Stmt, error) {
	var stmts []Stmt
	for {
		p.skipSeparators()
		if p.at(end) {
			return stmts, nil
		}
		if p.at(TokenEOF) {
			return nil, p.unexpected(end.String())
		}

		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)

		switch {
		case p.at(TokenSemicolon):
			if es, ok := stmt.(*ExprStmt); ok {
				es.Semi = true
			}
			p.next()
		case p.at(TokenNewline), p.at(end):
		case endsWithBlock(stmt):
		case p.at(TokenEOF):
			return nil, p.unexpected(end.String())
		default:
			return nil, p.unexpected("end of statement")
		}
	}
}

func endsWithBlock(s Stmt) bool {
	switch s.(type) {
	case *FnDecl, *BlockStmt:
		return true
	}
	return false
}

func (p *Parser) parseStmt() (Stmt, error) {
	tok := p.peek()
	if tok.Type == TokenLBrace {
		block, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &BlockStmt{Block: block}, nil
	}

	if tok.Type == TokenIdent {
		switch tok.Value {
		case "let":
			return p.parseLet(false)
		case "const":
			return p.parseLet(true)
		case "fn":
			return p.parseFn()
		case "return":
			return p.parseReturn()
		case "print", "println":
			if p.peekAt(1).Type == TokenBang {
				return p.parsePrintMacro()
			}
			if tok.Value == "print" {
				return p.parsePrint()
			}
		}
	}

	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.at(TokenAssign) {
		id, ok := x.(*Ident)
		if !ok {
			return nil, NewParseError(x.Pos(), "can only assign to a binding name")
		}
		p.next()
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &AssignStmt{At: id.At, Name: id.Name, Value: v}, nil
	}
	return &ExprStmt{At: x.Pos(), X: x}, nil
}

func (p *Parser) parseLet(isConst bool) (Stmt, error) {
	s := &LetStmt{At: p.next().Pos}

	if p.at(TokenLParen) {
		s.Tuple = true
		p.next()
		for !p.at(TokenRParen) {
			mutable := p.acceptKeyword("mut")
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			s.Binders = append(s.Binders, Binder{Name: name, Mutable: mutable})
			if !p.accept(TokenComma) {
				break
			}
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
	} else {
		mutable := !isConst && p.acceptKeyword("mut")
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		s.Binders = []Binder{{Name: name, Mutable: mutable}}
	}

	if p.accept(TokenColon) {
		s.Type = p.parseType()
	}
	if _, err := p.expect(TokenAssign); err != nil {
		return nil, err
	}
	v, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	s.Value = v
	return s, nil
}

func (p *Parser) parseFn() (Stmt, error) {
	fn := &FnDecl{At: p.next().Pos}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	fn.Name = name

	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	p.skipNewlines()
	for !p.at(TokenRParen) {
		mutable := p.acceptKeyword("mut")
		pname, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenColon); err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, Param{Name: pname, Type: p.parseType(), Mutable: mutable})
		p.skipNewlines()
		if !p.accept(TokenComma) {
			break
		}
		p.skipNewlines()
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	if p.accept(TokenArrow) {
		fn.Result = p.parseType()
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

func (p *Parser) parseReturn() (Stmt, error) {
	s := &ReturnStmt{At: p.next().Pos}
	switch p.peek().Type {
	case TokenNewline, TokenSemicolon, TokenRBrace, TokenEOF:
		return s, nil
	}
	v, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	s.Value = v
	return s, nil
}

// parsePrint parses `print a, b`.
func (p *Parser) parsePrint() (Stmt, error) {
	s := &PrintStmt{At: p.next().Pos}
	for {
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		s.Args = append(s.Args, x)
		if !p.accept(TokenComma) {
			return s, nil
		}
	}
}

// parsePrintMacro parses `println!(...)` and `print!(...)`.
func (p *Parser) parsePrintMacro() (Stmt, error) {
	s := &PrintStmt{At: p.next().Pos}
	p.next() // !
	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	s.Args = args
	return s, nil
}

// parseType collects a type annotation as text. Types are recorded for
// display only.
func (p *Parser) parseType() string {
	var b strings.Builder
	depth := 0
	for {
		tok := p.peek()
		switch tok.Type {
		case TokenEOF, TokenNewline:
			return b.String()
		case TokenLParen, TokenLBracket:
			depth++
		case TokenRParen, TokenRBracket:
			if depth == 0 {
				return b.String()
			}
			depth--
		case TokenComma, TokenSemicolon:
			if depth == 0 {
				return b.String()
			}
			b.WriteString(tok.Value + " ")
			p.next()
			continue
		case TokenLBrace, TokenAssign:
			return b.String()
		}
		b.WriteString(tok.Value)
		p.next()
	}
}

func (p *Parser) parseBlock() (*Block, error) {
	open, err := p.expect(TokenLBrace)
	if err != nil {
		return nil, err
	}
	stmts, err := p.parseStmtList(TokenRBrace)
	if err != nil {
		return nil, err
	}
	p.next() // }
	return &Block{At: open.Pos, Stmts: stmts}, nil
}

func (p *Parser) parseExpr() (Expr, error) {
	return p.parseAdditive()
}

func (p *Parser) parseAdditive() (Expr, error) {
	x, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(TokenPlus) || p.at(TokenMinus) {
		op := p.next()
		y, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{At: op.Pos, Op: op.Type, X: x, Y: y}
	}
	return x, nil
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(TokenStar) || p.at(TokenSlash) || p.at(TokenPercent) {
		op := p.next()
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{At: op.Pos, Op: op.Type, X: x, Y: y}
	}
	return x, nil
}

// parseUnary folds negative literals; other negations become a
// BinaryExpr with a nil left operand.
func (p *Parser) parseUnary() (Expr, error) {
	switch p.peek().Type {
	case TokenMinus:
		op := p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		switch lit := x.(type) {
		case *IntLit:
			return &IntLit{At: op.Pos, Value: -lit.Value}, nil
		case *FloatLit:
			return &FloatLit{At: op.Pos, Value: -lit.Value}, nil
		}
		return &BinaryExpr{At: op.Pos, Op: TokenMinus, Y: x}, nil
	case TokenAmp:
		return nil, NewParseError(p.peek().Pos, "references are not modelled; pass ownership or clone instead")
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case TokenDot:
			p.next()
			tok := p.peek()
			switch tok.Type {
			case TokenInt:
				p.next()
				idx, err := strconv.Atoi(tok.Value)
				if err != nil {
					return nil, NewParseErrorf(tok.Pos, "invalid field index %q", tok.Value)
				}
				x = &FieldExpr{At: tok.Pos, X: x, Index: idx}
			case TokenFloat:
				// t.0.1 lexes its indices as one float.
				p.next()
				for _, part := range strings.Split(tok.Value, ".") {
					idx, err := strconv.Atoi(part)
					if err != nil {
						return nil, NewParseErrorf(tok.Pos, "invalid field index %q", part)
					}
					x = &FieldExpr{At: tok.Pos, X: x, Index: idx}
				}
			case TokenIdent:
				p.next()
				if !p.at(TokenLParen) {
					return nil, NewParseErrorf(tok.Pos, "field %q: only tuple fields and method calls are supported", tok.Value)
				}
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				x = &MethodCall{At: tok.Pos, Recv: x, Method: tok.Value, Args: args}
			default:
				return nil, p.unexpected("field or method name")
			}
		case TokenLBracket:
			open := p.next()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenRBracket); err != nil {
				return nil, err
			}
			x = &IndexExpr{At: open.Pos, X: x, Index: idx}
		default:
			return x, nil
		}
	}
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case TokenInt:
		p.next()
		n, err := strconv.ParseInt(tok.Value, 0, 64)
		if err != nil {
			return nil, NewParseErrorf(tok.Pos, "invalid integer literal %q", tok.Value)
		}
		return &IntLit{At: tok.Pos, Value: n}, nil

	case TokenFloat:
		p.next()
		f, err := strconv.ParseFloat(strings.ReplaceAll(tok.Value, "_", ""), 64)
		if err != nil {
			return nil, NewParseErrorf(tok.Pos, "invalid float literal %q", tok.Value)
		}
		return &FloatLit{At: tok.Pos, Value: f}, nil

	case TokenString:
		p.next()
		return &StrLit{At: tok.Pos, Value: tok.Value}, nil

	case TokenChar:
		p.next()
		r := []rune(tok.Value)
		return &CharLit{At: tok.Pos, Value: r[0]}, nil

	case TokenIdent:
		return p.parseName()

	case TokenLParen:
		return p.parseParen()

	case TokenLBracket:
		return p.parseArray()

	case TokenLBrace:
		block, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &BlockExpr{Block: block}, nil
	}
	return nil, p.unexpected("expression")
}

func (p *Parser) parseName() (Expr, error) {
	tok := p.next()
	switch tok.Value {
	case "true", "false":
		return &BoolLit{At: tok.Pos, Value: tok.Value == "true"}, nil
	case "let", "fn", "return", "const", "mut":
		return nil, NewParseErrorf(tok.Pos, "unexpected keyword %q", tok.Value)
	}

	name := tok.Value
	path := false
	if p.accept(TokenPathSep) {
		member, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		name += "::" + member
		path = true
	}

	if p.at(TokenLParen) {
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return &CallExpr{At: tok.Pos, Fn: name, Args: args}, nil
	}
	if path {
		return nil, NewParseErrorf(tok.Pos, "path %q must be called", name)
	}
	return &Ident{At: tok.Pos, Name: name}, nil
}

// parseParen parses a grouping, a tuple, or the unit value.
func (p *Parser) parseParen() (Expr, error) {
	open := p.next()
	p.skipNewlines()
	if p.accept(TokenRParen) {
		return &TupleLit{At: open.Pos}, nil
	}

	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if !p.accept(TokenComma) {
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return first, nil
	}

	elems := []Expr{first}
	rest, err := p.parseExprList(TokenRParen)
	if err != nil {
		return nil, err
	}
	return &TupleLit{At: open.Pos, Elems: append(elems, rest...)}, nil
}

func (p *Parser) parseArray() (Expr, error) {
	open := p.next()
	p.skipNewlines()
	if p.accept(TokenRBracket) {
		return &ArrayLit{At: open.Pos}, nil
	}

	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if p.accept(TokenSemicolon) {
		count, err := p.expect(TokenInt)
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(count.Value)
		if err != nil || n <= 0 {
			return nil, NewParseErrorf(count.Pos, "invalid array length %q", count.Value)
		}
		if _, err := p.expect(TokenRBracket); err != nil {
			return nil, err
		}
		return &ArrayLit{At: open.Pos, Elems: []Expr{first}, Repeat: n}, nil
	}

	elems := []Expr{first}
	if p.accept(TokenComma) {
		rest, err := p.parseExprList(TokenRBracket)
		if err != nil {
			return nil, err
		}
		return &ArrayLit{At: open.Pos, Elems: append(elems, rest...)}, nil
	}
	if _, err := p.expect(TokenRBracket); err != nil {
		return nil, err
	}
	return &ArrayLit{At: open.Pos, Elems: elems}, nil
}

func (p *Parser) parseArgs() ([]Expr, error) {
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	return p.parseExprList(TokenRParen)
}

// parseExprList parses comma-separated expressions and consumes the
// closing token. A trailing comma is allowed.
func (p *Parser) parseExprList(end TokenType) ([]Expr, error) {
	var list []Expr
	for {
		p.skipNewlines()
		if p.accept(end) {
			return list, nil
		}
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list = append(list, x)
		p.skipNewlines()
		if !p.accept(TokenComma) {
			if _, err := p.expect(end); err != nil {
				return nil, err
			}
			return list, nil
		}
	}
}

// Token helpers

func (p *Parser) peek() Token {
	return p.peekAt(0)
}

func (p *Parser) peekAt(n int) Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) next() Token {
	tok := p.peek()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *Parser) at(typ TokenType) bool {
	return p.peek().Type == typ
}

func (p *Parser) accept(typ TokenType) bool {
	if p.at(typ) {
		p.next()
		return true
	}
	return false
}

func (p *Parser) acceptKeyword(kw string) bool {
	if tok := p.peek(); tok.Type == TokenIdent && tok.Value == kw {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(typ TokenType) (Token, error) {
	if !p.at(typ) {
		return Token{}, p.unexpected(typ.String())
	}
	return p.next(), nil
}

func (p *Parser) expectIdent() (string, error) {
	tok, err := p.expect(TokenIdent)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

func (p *Parser) skipNewlines() {
	for p.at(TokenNewline) {
		p.next()
	}
}

func (p *Parser) skipSeparators() {
	for p.at(TokenNewline) || p.at(TokenSemicolon) {
		p.next()
	}
}

func (p *Parser) unexpected(want string) error {
	tok := p.peek()
	return NewParseErrorf(tok.Pos, "expected %s, found %s", want, tok)
}
