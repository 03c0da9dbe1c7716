package ownscript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/leapstack-labs/ownsim/pkg/ownership"
)

// DefaultMaxCallDepth bounds recursion.
const DefaultMaxCallDepth = 256

// Interpreter executes ownscript programs against a Tracker. Every binding
// the program makes lives in the Tracker, so ownership errors surface as
// tracker errors wrapped in *RuntimeError.
type Interpreter struct {
	tracker  *ownership.Tracker
	out      io.Writer
	logger   *slog.Logger
	funcs    map[string]*FnDecl
	maxDepth int
	calls    int
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithOutput sets where print statements write.
func WithOutput(w io.Writer) Option {
	return func(in *Interpreter) {
		in.out = w
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(in *Interpreter) {
		if logger != nil {
			in.logger = logger
		}
	}
}

// WithMaxCallDepth sets the recursion limit.
func WithMaxCallDepth(n int) Option {
	return func(in *Interpreter) {
		if n > 0 {
			in.maxDepth = n
		}
	}
}

// New creates an Interpreter driving tracker.
func New(tracker *ownership.Tracker, opts ...Option) *Interpreter {
	in := &Interpreter{
		tracker:  tracker,
		out:      io.Discard,
		logger:   slog.New(slog.DiscardHandler),
		funcs:    make(map[string]*FnDecl),
		maxDepth: DefaultMaxCallDepth,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Tracker returns the tracker the interpreter drives.
func (in *Interpreter) Tracker() *ownership.Tracker {
	return in.tracker
}

// Funcs returns the names of the declared functions, sorted.
func (in *Interpreter) Funcs() []string {
	names := make([]string, 0, len(in.funcs))
	for name := range in.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// returnSignal carries a return value up to the enclosing call.
type returnSignal struct {
	at    Position
	value ownership.Value
}

func (r *returnSignal) Error() string {
	return r.at.String() + ": return outside of a function"
}

// RunSource parses and runs src.
func (in *Interpreter) RunSource(ctx context.Context, src, file string) error {
	prog, err := Parse(src, file)
	if err != nil {
		return err
	}
	return in.Run(ctx, prog)
}

// Run executes prog. Top-level statements run in a frame named main; if the
// program declares fn main, it is called afterwards. On error every scope
// the run opened is exited again before the error is returned.
func (in *Interpreter) Run(ctx context.Context, prog *Program) error {
	base := in.tracker.Depth()
	stmts := in.declare(prog.Stmts)
	in.logger.Debug("running program", "file", prog.File, "functions", len(in.funcs))

	in.tracker.EnterFrame("main")
	err := in.execStmts(ctx, stmts)
	var ret *returnSignal
	if errors.As(err, &ret) {
		err = in.discard(ret.at, ret.value)
	}

	if err == nil {
		if main, ok := in.funcs["main"]; ok {
			var v ownership.Value
			if v, err = in.call(ctx, main, nil, main.At); err == nil {
				err = in.discard(main.At, v)
			}
		}
	}
	in.unwind(base)
	return err
}

// declare registers function declarations and returns the other statements.
func (in *Interpreter) declare(stmts []Stmt) []Stmt {
	rest := make([]Stmt, 0, len(stmts))
	for _, s := range stmts {
		if fn, ok := s.(*FnDecl); ok {
			in.funcs[fn.Name] = fn
			continue
		}
		rest = append(rest, s)
	}
	return rest
}

// unwind exits scopes until the stack is back at depth.
func (in *Interpreter) unwind(depth int) {
	for in.tracker.Depth() > depth {
		if _, err := in.tracker.ExitScope(); err != nil {
			in.logger.Warn("unwind failed", "error", err)
			return
		}
	}
}

func (in *Interpreter) execStmts(ctx context.Context, stmts []Stmt) error {
	for _, s := range stmts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := in.exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (in *Interpreter) exec(ctx context.Context, s Stmt) error {
	switch s := s.(type) {
	case *LetStmt:
		return in.execLet(ctx, s)

	case *AssignStmt:
		v, err := in.eval(ctx, s.Value)
		if err != nil {
			return err
		}
		_, err = in.tracker.Assign(s.Name, v)
		return in.wrap(s.At, err)

	case *ExprStmt:
		v, err := in.eval(ctx, s.X)
		if err != nil {
			return err
		}
		return in.discard(s.At, v)

	case *PrintStmt:
		return in.execPrint(ctx, s)

	case *ReturnStmt:
		v := ownership.Tuple()
		if s.Value != nil {
			var err error
			if v, err = in.eval(ctx, s.Value); err != nil {
				return err
			}
		}
		return &returnSignal{at: s.At, value: v}

	case *BlockStmt:
		v, err := in.evalBlock(ctx, s.Block)
		if err != nil {
			return err
		}
		return in.discard(s.Block.At, v)

	case *FnDecl:
		in.funcs[s.Name] = s
		return nil
	}
	return NewRuntimeErrorf(s.Pos(), "unsupported statement %T", s)
}

func (in *Interpreter) execLet(ctx context.Context, s *LetStmt) error {
	v, err := in.eval(ctx, s.Value)
	if err != nil {
		return err
	}
	v = annotate(v, s.Type)

	if !s.Tuple {
		return in.bind(s.At, s.Binders[0], v)
	}

	elems, err := in.tracker.Unpack(v)
	if err != nil {
		return in.wrap(s.At, err)
	}
	if len(elems) != len(s.Binders) {
		return NewRuntimeErrorf(s.At, "pattern binds %d names but the value has %d elements", len(s.Binders), len(elems))
	}
	for i, b := range s.Binders {
		if err := in.bind(s.At, b, elems[i]); err != nil {
			return err
		}
	}
	return nil
}

func (in *Interpreter) bind(pos Position, b Binder, v ownership.Value) error {
	var opts []ownership.BindOption
	if b.Mutable {
		opts = append(opts, ownership.Mutable())
	}
	return in.wrap(pos, in.tracker.Bind(b.Name, v, opts...))
}

func (in *Interpreter) execPrint(ctx context.Context, s *PrintStmt) error {
	args := s.Args
	format, hasFormat := "", false
	if len(args) > 0 {
		if lit, ok := args[0].(*StrLit); ok && strings.ContainsAny(lit.Value, "{}") {
			format, hasFormat = lit.Value, true
			args = args[1:]
		}
	}

	values := make([]ownership.Value, len(args))
	var temps []ownership.Value
	for i, a := range args {
		v, temp, err := in.operand(ctx, a)
		if err != nil {
			return err
		}
		values[i] = v
		if temp {
			temps = append(temps, v)
		}
	}

	var line string
	if hasFormat {
		var err error
		line, err = formatValues(format, values, in.tracker.Read)
		if err != nil {
			return in.wrap(s.At, err)
		}
	} else {
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = v.Display()
		}
		line = strings.Join(parts, " ")
	}

	for _, v := range temps {
		if err := in.discard(s.At, v); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(in.out, line)
	return err
}

// eval evaluates x as a value being moved somewhere: naming a Movable
// binding moves out of it.
func (in *Interpreter) eval(ctx context.Context, x Expr) (ownership.Value, error) {
	switch x := x.(type) {
	case *IntLit:
		return ownership.Int(x.Value), nil
	case *FloatLit:
		return ownership.Float(x.Value), nil
	case *BoolLit:
		return ownership.Bool(x.Value), nil
	case *CharLit:
		return ownership.Char(x.Value), nil
	case *StrLit:
		return ownership.Str(x.Value), nil

	case *Ident:
		v, err := in.tracker.MoveOut(x.Name)
		return v, in.wrap(x.At, err)

	case *CallExpr:
		return in.evalCall(ctx, x)

	case *MethodCall:
		return in.evalMethod(ctx, x)

	case *FieldExpr:
		return in.project(ctx, x.X, x.At, func(v ownership.Value) (ownership.Value, error) {
			return v.Field(x.Index)
		})

	case *IndexExpr:
		idx, err := in.evalIndex(ctx, x.Index)
		if err != nil {
			return ownership.Value{}, err
		}
		return in.project(ctx, x.X, x.At, func(v ownership.Value) (ownership.Value, error) {
			if v.Type != ownership.TypeArray {
				return ownership.Value{}, fmt.Errorf("cannot index into %s", v.Type)
			}
			return v.Field(idx)
		})

	case *TupleLit:
		elems, err := in.evalList(ctx, x.Elems)
		if err != nil {
			return ownership.Value{}, err
		}
		return ownership.Tuple(elems...), nil

	case *ArrayLit:
		return in.evalArray(ctx, x)

	case *BinaryExpr:
		return in.evalBinary(ctx, x)

	case *BlockExpr:
		return in.evalBlock(ctx, x.Block)
	}
	return ownership.Value{}, NewRuntimeErrorf(x.Pos(), "unsupported expression %T", x)
}

func (in *Interpreter) evalList(ctx context.Context, xs []Expr) ([]ownership.Value, error) {
	out := make([]ownership.Value, 0, len(xs))
	for _, x := range xs {
		v, err := in.eval(ctx, x)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (in *Interpreter) evalArray(ctx context.Context, x *ArrayLit) (ownership.Value, error) {
	if x.Repeat == 0 {
		elems, err := in.evalList(ctx, x.Elems)
		if err != nil {
			return ownership.Value{}, err
		}
		return ownership.Array(elems...), nil
	}

	v, err := in.eval(ctx, x.Elems[0])
	if err != nil {
		return ownership.Value{}, err
	}
	if v.Kind == ownership.Movable {
		if err := in.discard(x.At, v); err != nil {
			return ownership.Value{}, err
		}
		return ownership.Value{}, NewRuntimeErrorf(x.At, "array repeat needs a copyable value, found %s", v.Type)
	}
	elems := make([]ownership.Value, x.Repeat)
	for i := range elems {
		elems[i] = v
	}
	return ownership.Array(elems...), nil
}

func (in *Interpreter) evalBlock(ctx context.Context, b *Block) (ownership.Value, error) {
	in.tracker.EnterScope()
	tail, stmts := b.Tail()
	v, err := in.execBody(ctx, in.declare(stmts), tail)
	if err != nil {
		return ownership.Value{}, err
	}
	_, err = in.tracker.ExitScope()
	return v, in.wrap(b.At, err)
}

// execBody runs stmts and evaluates the optional tail expression.
func (in *Interpreter) execBody(ctx context.Context, stmts []Stmt, tail Expr) (ownership.Value, error) {
	if err := in.execStmts(ctx, stmts); err != nil {
		return ownership.Value{}, err
	}
	if tail == nil {
		return ownership.Tuple(), nil
	}
	return in.eval(ctx, tail)
}

func (in *Interpreter) evalCall(ctx context.Context, x *CallExpr) (ownership.Value, error) {
	switch x.Fn {
	case "String", "String::from":
		if err := arity(x.At, x.Fn, x.Args, 1); err != nil {
			return ownership.Value{}, err
		}
		v, err := in.readThrough(ctx, x.Args[0], x.At)
		if err != nil {
			return ownership.Value{}, err
		}
		return ownership.String(v.Display()), nil

	case "String::new":
		if err := arity(x.At, x.Fn, x.Args, 0); err != nil {
			return ownership.Value{}, err
		}
		return ownership.String(""), nil

	case "drop":
		if err := arity(x.At, x.Fn, x.Args, 1); err != nil {
			return ownership.Value{}, err
		}
		if id, ok := x.Args[0].(*Ident); ok {
			_, err := in.tracker.Drop(id.Name)
			return ownership.Tuple(), in.wrap(id.At, err)
		}
		v, err := in.eval(ctx, x.Args[0])
		if err != nil {
			return ownership.Value{}, err
		}
		return ownership.Tuple(), in.discard(x.At, v)
	}

	fn, ok := in.funcs[x.Fn]
	if !ok {
		return ownership.Value{}, NewRuntimeErrorf(x.At, "unknown function %q", x.Fn)
	}
	// Arguments are moved out as they are evaluated, so reject bad calls
	// before touching them.
	if len(x.Args) != len(fn.Params) {
		return ownership.Value{}, arityError(fn, len(x.Args), x.At)
	}
	args, err := in.evalList(ctx, x.Args)
	if err != nil {
		return ownership.Value{}, err
	}
	return in.call(ctx, fn, args, x.At)
}

// call moves args into a fresh frame, runs the body and moves the result
// back out. Everything else the frame owns is released when it exits.
func (in *Interpreter) call(ctx context.Context, fn *FnDecl, args []ownership.Value, pos Position) (ownership.Value, error) {
	if len(args) != len(fn.Params) {
		return ownership.Value{}, arityError(fn, len(args), pos)
	}
	if in.calls >= in.maxDepth {
		return ownership.Value{}, NewRuntimeErrorf(pos, "call depth limit %d exceeded calling %q", in.maxDepth, fn.Name)
	}
	in.calls++
	defer func() { in.calls-- }()

	base := in.tracker.Depth()
	in.tracker.EnterFrame(fn.Name)
	in.logger.Debug("call", "fn", fn.Name, "depth", in.calls)

	for i, p := range fn.Params {
		if err := in.bind(pos, Binder{Name: p.Name, Mutable: p.Mutable}, args[i]); err != nil {
			in.unwind(base)
			return ownership.Value{}, err
		}
	}

	tail, stmts := fn.Body.Tail()
	v, err := in.execBody(ctx, in.declare(stmts), tail)
	var ret *returnSignal
	if errors.As(err, &ret) {
		v, err = ret.value, nil
	}
	in.unwind(base)
	if err != nil {
		return ownership.Value{}, err
	}
	return v, nil
}

func arityError(fn *FnDecl, given int, pos Position) error {
	return NewRuntimeErrorf(pos, "function %q takes %d arguments but %d were given", fn.Name, len(fn.Params), given)
}

func (in *Interpreter) evalMethod(ctx context.Context, x *MethodCall) (ownership.Value, error) {
	switch x.Method {
	case "clone":
		if err := arity(x.At, x.Method, x.Args, 0); err != nil {
			return ownership.Value{}, err
		}
		if id, ok := x.Recv.(*Ident); ok {
			v, err := in.tracker.Duplicate(id.Name)
			return v, in.wrap(x.At, err)
		}
		if isPlace(x.Recv) {
			v, err := in.place(ctx, x.Recv)
			if err != nil {
				return ownership.Value{}, err
			}
			return v.Clone(), nil
		}
		// A temporary is already independent of every binding.
		return in.eval(ctx, x.Recv)

	case "len", "is_empty":
		if err := arity(x.At, x.Method, x.Args, 0); err != nil {
			return ownership.Value{}, err
		}
		v, err := in.readThrough(ctx, x.Recv, x.At)
		if err != nil {
			return ownership.Value{}, err
		}
		n, err := v.Len()
		if err != nil {
			return ownership.Value{}, NewRuntimeErrorf(x.At, "%v", err)
		}
		if x.Method == "is_empty" {
			return ownership.Bool(n == 0), nil
		}
		return ownership.Usize(n), nil

	case "to_string", "to_owned":
		if err := arity(x.At, x.Method, x.Args, 0); err != nil {
			return ownership.Value{}, err
		}
		v, err := in.readThrough(ctx, x.Recv, x.At)
		if err != nil {
			return ownership.Value{}, err
		}
		return ownership.String(v.Display()), nil

	case "push_str", "push", "clear":
		return in.evalMutation(ctx, x)
	}
	return ownership.Value{}, NewRuntimeErrorf(x.At, "unknown method %q", x.Method)
}

// evalMutation handles the in-place String edits.
func (in *Interpreter) evalMutation(ctx context.Context, x *MethodCall) (ownership.Value, error) {
	id, ok := x.Recv.(*Ident)
	if !ok {
		return ownership.Value{}, NewRuntimeErrorf(x.At, "%s needs a binding as its receiver", x.Method)
	}

	var suffix string
	if x.Method == "clear" {
		if err := arity(x.At, x.Method, x.Args, 0); err != nil {
			return ownership.Value{}, err
		}
	} else {
		if err := arity(x.At, x.Method, x.Args, 1); err != nil {
			return ownership.Value{}, err
		}
		arg, err := in.readThrough(ctx, x.Args[0], x.At)
		if err != nil {
			return ownership.Value{}, err
		}
		switch {
		case x.Method == "push" && arg.Type != ownership.TypeChar:
			return ownership.Value{}, NewRuntimeErrorf(x.At, "push expects a char, found %s", arg.Type)
		case x.Method == "push_str" && arg.Type != ownership.TypeStr && arg.Type != ownership.TypeString:
			return ownership.Value{}, NewRuntimeErrorf(x.At, "push_str expects a string, found %s", arg.Type)
		}
		suffix = arg.Data
	}

	err := in.tracker.Mutate(id.Name, func(v *ownership.Value) error {
		if v.Type != ownership.TypeString {
			return fmt.Errorf("%s has no method %s", v.Type, x.Method)
		}
		if x.Method == "clear" {
			v.Data = ""
		} else {
			v.Data += suffix
		}
		return nil
	})
	return ownership.Tuple(), in.wrap(x.At, err)
}

func (in *Interpreter) evalBinary(ctx context.Context, x *BinaryExpr) (ownership.Value, error) {
	if x.X == nil {
		v, err := in.readThrough(ctx, x.Y, x.At)
		if err != nil {
			return ownership.Value{}, err
		}
		switch {
		case isInt(v.Type):
			n, _ := strconv.ParseInt(v.Data, 10, 64)
			return withType(ownership.Int(-n), v.Type), nil
		case isFloat(v.Type):
			f, _ := strconv.ParseFloat(v.Data, 64)
			return withType(ownership.Float(-f), v.Type), nil
		}
		return ownership.Value{}, NewRuntimeErrorf(x.At, "cannot negate %s", v.Type)
	}

	l, err := in.readThrough(ctx, x.X, x.At)
	if err != nil {
		return ownership.Value{}, err
	}
	r, err := in.readThrough(ctx, x.Y, x.At)
	if err != nil {
		return ownership.Value{}, err
	}

	switch {
	case isInt(l.Type) && isInt(r.Type):
		a, _ := strconv.ParseInt(l.Data, 10, 64)
		b, _ := strconv.ParseInt(r.Data, 10, 64)
		var n int64
		switch x.Op {
		case TokenPlus:
			n = a + b
		case TokenMinus:
			n = a - b
		case TokenStar:
			n = a * b
		case TokenSlash, TokenPercent:
			if b == 0 {
				return ownership.Value{}, NewRuntimeErrorf(x.At, "attempt to divide by zero")
			}
			if x.Op == TokenSlash {
				n = a / b
			} else {
				n = a % b
			}
		}
		typ := l.Type
		if typ == ownership.TypeInt {
			typ = r.Type
		}
		return withType(ownership.Int(n), typ), nil

	case isFloat(l.Type) && isFloat(r.Type):
		a, _ := strconv.ParseFloat(l.Data, 64)
		b, _ := strconv.ParseFloat(r.Data, 64)
		var f float64
		switch x.Op {
		case TokenPlus:
			f = a + b
		case TokenMinus:
			f = a - b
		case TokenStar:
			f = a * b
		case TokenSlash:
			f = a / b
		case TokenPercent:
			f = math.Mod(a, b)
		}
		return withType(ownership.Float(f), l.Type), nil
	}
	return ownership.Value{}, NewRuntimeErrorf(x.At, "cannot apply %s to %s and %s", x.Op, l.Type, r.Type)
}

func (in *Interpreter) evalIndex(ctx context.Context, x Expr) (int, error) {
	v, err := in.readThrough(ctx, x, x.Pos())
	if err != nil {
		return 0, err
	}
	if !isInt(v.Type) {
		return 0, NewRuntimeErrorf(x.Pos(), "index must be an integer, found %s", v.Type)
	}
	n, err := strconv.Atoi(v.Data)
	if err != nil || n < 0 {
		return 0, NewRuntimeErrorf(x.Pos(), "invalid index %s", v.Data)
	}
	return n, nil
}

// project applies f to the value of base. A place is read in place; any
// other expression is evaluated as a temporary and released afterwards.
func (in *Interpreter) project(ctx context.Context, base Expr, pos Position, f func(ownership.Value) (ownership.Value, error)) (ownership.Value, error) {
	v, temp, err := in.operand(ctx, base)
	if err != nil {
		return ownership.Value{}, err
	}
	r, ferr := f(v)
	if temp {
		if err := in.discard(pos, v); err != nil {
			return ownership.Value{}, err
		}
	}
	if ferr != nil {
		return ownership.Value{}, in.wrap(pos, ferr)
	}
	return r, nil
}

// readThrough reads x without taking ownership of it.
func (in *Interpreter) readThrough(ctx context.Context, x Expr, pos Position) (ownership.Value, error) {
	return in.project(ctx, x, pos, func(v ownership.Value) (ownership.Value, error) {
		return v, nil
	})
}

// operand evaluates x for reading. temp reports whether the value is a
// temporary the caller must discard.
func (in *Interpreter) operand(ctx context.Context, x Expr) (v ownership.Value, temp bool, err error) {
	if isPlace(x) {
		v, err = in.place(ctx, x)
		return v, false, err
	}
	v, err = in.eval(ctx, x)
	return v, true, err
}

// place reads a binding or an element of one without moving it.
func (in *Interpreter) place(ctx context.Context, x Expr) (ownership.Value, error) {
	switch x := x.(type) {
	case *Ident:
		v, err := in.tracker.Read(x.Name)
		return v, in.wrap(x.At, err)
	case *FieldExpr:
		v, err := in.place(ctx, x.X)
		if err != nil {
			return ownership.Value{}, err
		}
		return element(v, x.Index, x.At)
	case *IndexExpr:
		v, err := in.place(ctx, x.X)
		if err != nil {
			return ownership.Value{}, err
		}
		idx, err := in.evalIndex(ctx, x.Index)
		if err != nil {
			return ownership.Value{}, err
		}
		return element(v, idx, x.At)
	}
	return ownership.Value{}, NewRuntimeErrorf(x.Pos(), "expression is not a place")
}

func isPlace(x Expr) bool {
	switch x := x.(type) {
	case *Ident:
		return true
	case *FieldExpr:
		return isPlace(x.X)
	case *IndexExpr:
		return isPlace(x.X)
	}
	return false
}

// element returns element i of v for reading.
func element(v ownership.Value, i int, pos Position) (ownership.Value, error) {
	if !v.IsCompound() {
		return ownership.Value{}, WrapRuntimeError(pos, ownership.ErrNotCompound)
	}
	if i >= len(v.Elems) {
		return ownership.Value{}, WrapRuntimeError(pos, fmt.Errorf("%w: index %d, length %d", ownership.ErrIndexOutOfRange, i, len(v.Elems)))
	}
	return v.Elems[i], nil
}

// discard releases a temporary Movable value.
func (in *Interpreter) discard(pos Position, v ownership.Value) error {
	if v.Kind != ownership.Movable {
		return nil
	}
	_, err := in.tracker.Discard(v)
	return in.wrap(pos, err)
}

// wrap attaches pos to tracker errors.
func (in *Interpreter) wrap(pos Position, err error) error {
	if err == nil {
		return nil
	}
	var se Error
	if errors.As(err, &se) {
		return err
	}
	return WrapRuntimeError(pos, err)
}

func arity(pos Position, name string, args []Expr, n int) error {
	if len(args) != n {
		return NewRuntimeErrorf(pos, "%s takes %d arguments but %d were given", name, n, len(args))
	}
	return nil
}

var intTypes = map[string]bool{
	"i8": true, "i16": true, "i32": true, "i64": true, "i128": true, "isize": true,
	"u8": true, "u16": true, "u32": true, "u64": true, "u128": true, "usize": true,
}

func isInt(typ string) bool   { return intTypes[typ] }
func isFloat(typ string) bool { return typ == "f64" || typ == "f32" }

func withType(v ownership.Value, typ string) ownership.Value {
	v.Type = typ
	return v
}

// annotate applies a numeric type annotation to a literal value.
func annotate(v ownership.Value, typ string) ownership.Value {
	switch {
	case typ == "" || v.Kind != ownership.Copyable:
		return v
	case isInt(v.Type) && isInt(typ), isFloat(v.Type) && isFloat(typ):
		return withType(v, typ)
	}
	return v
}

// formatValues expands {} and {:?} placeholders. Named placeholders such
// as {name} read the binding of that name.
func formatValues(format string, values []ownership.Value, lookup func(string) (ownership.Value, error)) (string, error) {
	var b strings.Builder
	next := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		switch {
		case c == '{' && strings.HasPrefix(format[i+1:], "{"):
			b.WriteByte('{')
			i++
		case c == '}' && strings.HasPrefix(format[i+1:], "}"):
			b.WriteByte('}')
			i++
		case c == '}':
			return "", errors.New("unmatched '}' in format string")
		case c == '{':
			end := strings.IndexByte(format[i:], '}')
			if end < 0 {
				return "", errors.New("unterminated placeholder in format string")
			}
			spec := format[i+1 : i+end]
			i += end

			name, debug := spec, false
			if k := strings.IndexByte(spec, ':'); k >= 0 {
				name, debug = spec[:k], strings.Contains(spec[k+1:], "?")
			}

			var v ownership.Value
			if name == "" {
				if next >= len(values) {
					return "", fmt.Errorf("format string has more placeholders than the %d arguments", len(values))
				}
				v = values[next]
				next++
			} else if n, err := strconv.Atoi(name); err == nil {
				if n >= len(values) {
					return "", fmt.Errorf("invalid reference to positional argument %d", n)
				}
				v = values[n]
				next = len(values)
			} else {
				var err error
				if v, err = lookup(name); err != nil {
					return "", err
				}
			}

			if debug {
				b.WriteString(v.String())
			} else {
				b.WriteString(v.Display())
			}
		default:
			b.WriteByte(c)
		}
	}
	if next < len(values) {
		return "", fmt.Errorf("%d arguments never used", len(values)-next)
	}
	return b.String(), nil
}
