package ownscript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/ownsim/pkg/ownership"
)

func TestParser_Let(t *testing.T) {
	prog, err := Parse(`let mut s = String::from("hi")`, "test.own")
	require.NoError(t, err)
	require.Len(t, prog.Stmts, 1)

	let, ok := prog.Stmts[0].(*LetStmt)
	require.True(t, ok, "expected *LetStmt, got %T", prog.Stmts[0])
	assert.Equal(t, []Binder{{Name: "s", Mutable: true}}, let.Binders)
	assert.False(t, let.Tuple)

	call, ok := let.Value.(*CallExpr)
	require.True(t, ok)
	assert.Equal(t, "String::from", call.Fn)
	require.Len(t, call.Args, 1)
	assert.Equal(t, "hi", call.Args[0].(*StrLit).Value)
}

func TestParser_TuplePatternAndType(t *testing.T) {
	prog, err := Parse("let (a, mut b): (i32, f64) = (1, 2.5);\nconst MAX: u32 = 100_000;", "")
	require.NoError(t, err)
	require.Len(t, prog.Stmts, 2)

	let := prog.Stmts[0].(*LetStmt)
	assert.True(t, let.Tuple)
	assert.Equal(t, []Binder{{Name: "a"}, {Name: "b", Mutable: true}}, let.Binders)
	assert.Equal(t, "(i32, f64)", let.Type)
	tup := let.Value.(*TupleLit)
	assert.Len(t, tup.Elems, 2)

	c := prog.Stmts[1].(*LetStmt)
	assert.Equal(t, "MAX", c.Binders[0].Name)
	assert.Equal(t, "u32", c.Type)
	assert.Equal(t, int64(100000), c.Value.(*IntLit).Value)
}

func TestParser_FunctionDecl(t *testing.T) {
	src := `fn takes_and_gives_back(mut a_string: String, n: [i32; 3]) -> String {
    a_string
}`
	prog, err := Parse(src, "")
	require.NoError(t, err)
	require.Len(t, prog.Stmts, 1)

	fn := prog.Stmts[0].(*FnDecl)
	assert.Equal(t, "takes_and_gives_back", fn.Name)
	assert.Equal(t, []Param{
		{Name: "a_string", Type: "String", Mutable: true},
		{Name: "n", Type: "[i32; 3]"},
	}, fn.Params)
	assert.Equal(t, "String", fn.Result)

	tail, rest := fn.Body.Tail()
	assert.Empty(t, rest)
	require.NotNil(t, tail)
	assert.Equal(t, "a_string", tail.(*Ident).Name)
}

func TestParser_SemicolonSuppressesTail(t *testing.T) {
	prog, err := Parse("{ let x = 1; x; }", "")
	require.NoError(t, err)
	block := prog.Stmts[0].(*BlockStmt).Block
	tail, rest := block.Tail()
	assert.Nil(t, tail)
	assert.Len(t, rest, 2)
}

func TestParser_Expressions(t *testing.T) {
	tests := []struct {
		src   string
		check func(t *testing.T, x Expr)
	}{
		{"s1.clone()", func(t *testing.T, x Expr) {
			mc := x.(*MethodCall)
			assert.Equal(t, "clone", mc.Method)
			assert.Equal(t, "s1", mc.Recv.(*Ident).Name)
		}},
		{"t.0.1", func(t *testing.T, x Expr) {
			outer := x.(*FieldExpr)
			assert.Equal(t, 1, outer.Index)
			assert.Equal(t, 0, outer.X.(*FieldExpr).Index)
		}},
		{"a[2]", func(t *testing.T, x Expr) {
			ix := x.(*IndexExpr)
			assert.Equal(t, int64(2), ix.Index.(*IntLit).Value)
		}},
		{"[3; 5]", func(t *testing.T, x Expr) {
			arr := x.(*ArrayLit)
			assert.Equal(t, 5, arr.Repeat)
			assert.Len(t, arr.Elems, 1)
		}},
		{"(5,)", func(t *testing.T, x Expr) {
			assert.Len(t, x.(*TupleLit).Elems, 1)
		}},
		{"()", func(t *testing.T, x Expr) {
			assert.Empty(t, x.(*TupleLit).Elems)
		}},
		{"(5)", func(t *testing.T, x Expr) {
			assert.Equal(t, int64(5), x.(*IntLit).Value)
		}},
		{"1 + 2 * 3", func(t *testing.T, x Expr) {
			add := x.(*BinaryExpr)
			assert.Equal(t, TokenPlus, add.Op)
			assert.Equal(t, TokenStar, add.Y.(*BinaryExpr).Op)
		}},
		{"-4", func(t *testing.T, x Expr) {
			assert.Equal(t, int64(-4), x.(*IntLit).Value)
		}},
		{"-x", func(t *testing.T, x Expr) {
			neg := x.(*BinaryExpr)
			assert.Nil(t, neg.X)
			assert.Equal(t, "x", neg.Y.(*Ident).Name)
		}},
		{"{ let y = 3; y + 1 }", func(t *testing.T, x Expr) {
			tail, _ := x.(*BlockExpr).Block.Tail()
			assert.NotNil(t, tail)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			x, err := ParseExpr(tt.src, "")
			require.NoError(t, err)
			tt.check(t, x)
		})
	}
}

func TestParser_PrintForms(t *testing.T) {
	prog, err := Parse("print s, 5\nprintln!(\"{} and {}\", a, b)", "")
	require.NoError(t, err)
	require.Len(t, prog.Stmts, 2)
	assert.Len(t, prog.Stmts[0].(*PrintStmt).Args, 2)
	assert.Len(t, prog.Stmts[1].(*PrintStmt).Args, 3)
}

func TestParser_AssignAndReturn(t *testing.T) {
	prog, err := Parse("fn f() -> i32 {\n  x = 5\n  return x\n}", "")
	require.NoError(t, err)
	body := prog.Stmts[0].(*FnDecl).Body
	require.Len(t, body.Stmts, 2)
	assert.Equal(t, "x", body.Stmts[0].(*AssignStmt).Name)
	assert.Equal(t, "x", body.Stmts[1].(*ReturnStmt).Value.(*Ident).Name)
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"borrow", "let r = &s", "references are not modelled"},
		{"assign to call", "f() = 3", "can only assign to a binding name"},
		{"missing value", "let x =", "expected expression"},
		{"two statements", "let x = 1 let y = 2", "expected end of statement"},
		{"unclosed block", "{ let x = 1", "expected '}'"},
		{"bare path", "let s = String::from", "must be called"},
		{"field name", "s.len", "only tuple fields and method calls"},
		{"zero repeat", "[1; 0]", "invalid array length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src, "bad.own")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "bad.own:1:")
		})
	}
}

func TestNeedsMore(t *testing.T) {
	assert.True(t, NeedsMore("fn f() {"))
	assert.True(t, NeedsMore("let t = (1,"))
	assert.True(t, NeedsMore("/* still"))
	assert.False(t, NeedsMore("let x = 5"))
	assert.False(t, NeedsMore("fn f() { 1 }"))
	assert.False(t, NeedsMore(`"unterminated`))
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		src  string
		want ownership.Value
	}{
		{"5", ownership.Int(5)},
		{"-2", ownership.Int(-2)},
		{"true", ownership.Bool(true)},
		{"'c'", ownership.Char('c')},
		{`"lit"`, ownership.Str("lit")},
		{`String::from("hi")`, ownership.String("hi")},
		{`String("hi")`, ownership.String("hi")},
		{`"hi".to_string()`, ownership.String("hi")},
		{`(1, String::new())`, ownership.Tuple(ownership.Int(1), ownership.String(""))},
		{"[0; 3]", ownership.Array(ownership.Int(0), ownership.Int(0), ownership.Int(0))},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			v, err := ParseValue(tt.src)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(v), "want %s, got %s", tt.want, v)
		})
	}

	_, err := ParseValue("x")
	assert.ErrorContains(t, err, "not a constant value")
	_, err = ParseValue("[String::new(); 2]")
	assert.Error(t, err)
}
