package ownscript

// Node is implemented by every AST node.
type Node interface {
	Pos() Position
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Program is a parsed source file.
type Program struct {
	File  string
	Stmts []Stmt
}

// Binder is one name introduced by a let pattern.
type Binder struct {
	Name    string
	Mutable bool
}

// LetStmt is `let [mut] x = v`, `let (a, b) = v` or `const X: T = v`.
type LetStmt struct {
	At      Position
	Binders []Binder
	Tuple   bool // destructuring pattern
	Type    string
	Value   Expr
}

// AssignStmt is `x = v`.
type AssignStmt struct {
	At    Position
	Name  string
	Value Expr
}

// ExprStmt evaluates an expression. Semi records a trailing ';', which
// keeps the last expression of a block from being its value.
type ExprStmt struct {
	At   Position
	X    Expr
	Semi bool
}

// PrintStmt is `print a, b` or `println!("{} {}", a, b)`.
type PrintStmt struct {
	At   Position
	Args []Expr
}

// ReturnStmt is `return [v]`.
type ReturnStmt struct {
	At    Position
	Value Expr
}

// BlockStmt is a `{ ... }` block used as a statement.
type BlockStmt struct {
	Block *Block
}

// Param is a function parameter.
type Param struct {
	Name    string
	Type    string
	Mutable bool
}

// FnDecl is a function declaration.
type FnDecl struct {
	At     Position
	Name   string
	Params []Param
	Result string
	Body   *Block
}

// Block is a braced statement list.
type Block struct {
	At    Position
	Stmts []Stmt
}

// Tail returns the expression whose value the block produces, if its last
// statement is an expression without a trailing semicolon.
func (b *Block) Tail() (Expr, []Stmt) {
	if n := len(b.Stmts); n > 0 {
		if es, ok := b.Stmts[n-1].(*ExprStmt); ok && !es.Semi {
			return es.X, b.Stmts[:n-1]
		}
	}
	return nil, b.Stmts
}

func (s *LetStmt) Pos() Position    { return s.At }
func (s *AssignStmt) Pos() Position { return s.At }
func (s *ExprStmt) Pos() Position   { return s.At }
func (s *PrintStmt) Pos() Position  { return s.At }
func (s *ReturnStmt) Pos() Position { return s.At }
func (s *BlockStmt) Pos() Position  { return s.Block.At }
func (s *FnDecl) Pos() Position     { return s.At }

func (*LetStmt) stmtNode()    {}
func (*AssignStmt) stmtNode() {}
func (*ExprStmt) stmtNode()   {}
func (*PrintStmt) stmtNode()  {}
func (*ReturnStmt) stmtNode() {}
func (*BlockStmt) stmtNode()  {}
func (*FnDecl) stmtNode()     {}

// IntLit is an integer literal.
type IntLit struct {
	At    Position
	Value int64
}

// FloatLit is a float literal.
type FloatLit struct {
	At    Position
	Value float64
}

// BoolLit is true or false.
type BoolLit struct {
	At    Position
	Value bool
}

// CharLit is a character literal.
type CharLit struct {
	At    Position
	Value rune
}

// StrLit is a string literal.
type StrLit struct {
	At    Position
	Value string
}

// Ident is a reference to a binding.
type Ident struct {
	At   Position
	Name string
}

// CallExpr calls a function or a path constructor such as String::from.
type CallExpr struct {
	At   Position
	Fn   string
	Args []Expr
}

// MethodCall is `recv.method(args)`.
type MethodCall struct {
	At     Position
	Recv   Expr
	Method string
	Args   []Expr
}

// FieldExpr is a tuple field access `t.0`.
type FieldExpr struct {
	At    Position
	X     Expr
	Index int
}

// IndexExpr is an array index `a[i]`.
type IndexExpr struct {
	At    Position
	X     Expr
	Index Expr
}

// TupleLit is `(a, b)`; `()` is the unit value.
type TupleLit struct {
	At    Position
	Elems []Expr
}

// ArrayLit is `[a, b]` or the repeat form `[v; n]`, where Repeat is n and
// Elems holds v alone.
type ArrayLit struct {
	At     Position
	Elems  []Expr
	Repeat int
}

// BinaryExpr is arithmetic on copyable numbers. X is nil for a negation.
type BinaryExpr struct {
	At Position
	Op TokenType
	X  Expr
	Y  Expr
}

// BlockExpr is a block used as a value.
type BlockExpr struct {
	Block *Block
}

func (e *IntLit) Pos() Position     { return e.At }
func (e *FloatLit) Pos() Position   { return e.At }
func (e *BoolLit) Pos() Position    { return e.At }
func (e *CharLit) Pos() Position    { return e.At }
func (e *StrLit) Pos() Position     { return e.At }
func (e *Ident) Pos() Position      { return e.At }
func (e *CallExpr) Pos() Position   { return e.At }
func (e *MethodCall) Pos() Position { return e.At }
func (e *FieldExpr) Pos() Position  { return e.At }
func (e *IndexExpr) Pos() Position  { return e.At }
func (e *TupleLit) Pos() Position   { return e.At }
func (e *ArrayLit) Pos() Position   { return e.At }
func (e *BinaryExpr) Pos() Position { return e.At }
func (e *BlockExpr) Pos() Position  { return e.Block.At }

func (*IntLit) exprNode()     {}
func (*FloatLit) exprNode()   {}
func (*BoolLit) exprNode()    {}
func (*CharLit) exprNode()    {}
func (*StrLit) exprNode()     {}
func (*Ident) exprNode()      {}
func (*CallExpr) exprNode()   {}
func (*MethodCall) exprNode() {}
func (*FieldExpr) exprNode()  {}
func (*IndexExpr) exprNode()  {}
func (*TupleLit) exprNode()   {}
func (*ArrayLit) exprNode()   {}
func (*BinaryExpr) exprNode() {}
func (*BlockExpr) exprNode()  {}
