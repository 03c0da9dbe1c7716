package ownscript

import (
	"context"
	"errors"

	"github.com/leapstack-labs/ownsim/pkg/ownership"
)

// ErrSessionClosed is returned by Exec after Close.
var ErrSessionClosed = errors.New("session is closed")

// Session executes input incrementally in one persistent frame, the way
// an interactive shell does. Bindings and functions survive between calls
// to Exec; a failed input leaves the bindings made before it in place.
type Session struct {
	in     *Interpreter
	base   int
	closed bool
}

// NewSession opens a frame named label on the interpreter's tracker.
func (in *Interpreter) NewSession(label string) *Session {
	base := in.tracker.Depth()
	in.tracker.EnterFrame(label)
	return &Session{in: in, base: base}
}

// Interpreter returns the interpreter the session runs on.
func (s *Session) Interpreter() *Interpreter {
	return s.in
}

// Exec runs src. If src ends with an expression that has no trailing
// semicolon, its value is returned with ok set. A trailing binding name or
// tuple field is read rather than moved, so inspecting a value keeps it.
func (s *Session) Exec(ctx context.Context, src string) (v ownership.Value, ok bool, err error) {
	if s.closed {
		return ownership.Value{}, false, ErrSessionClosed
	}
	prog, err := Parse(src, "")
	if err != nil {
		return ownership.Value{}, false, err
	}

	in := s.in
	depth := in.tracker.Depth()
	stmts := in.declare(prog.Stmts)

	var tail Expr
	if n := len(stmts); n > 0 {
		if es, isExpr := stmts[n-1].(*ExprStmt); isExpr && !es.Semi {
			tail, stmts = es.X, stmts[:n-1]
		}
	}

	defer func() {
		if err != nil {
			in.unwind(depth)
		}
	}()

	if err = in.execStmts(ctx, stmts); err != nil {
		return ownership.Value{}, false, err
	}
	if tail == nil {
		return ownership.Value{}, false, nil
	}
	if isPlace(tail) {
		v, err = in.place(ctx, tail)
		return v, err == nil, err
	}
	if v, err = in.eval(ctx, tail); err != nil {
		return ownership.Value{}, false, err
	}
	if err = in.discard(tail.Pos(), v); err != nil {
		return ownership.Value{}, false, err
	}
	return v, true, nil
}

// Scopes returns the tracker's scope stack.
func (s *Session) Scopes() []ownership.ScopeView {
	return s.in.tracker.Scopes()
}

// Close exits the session frame, releasing everything it still owns.
func (s *Session) Close() ([]ownership.Release, error) {
	if s.closed {
		return nil, nil
	}
	s.closed = true
	var released []ownership.Release
	for s.in.tracker.Depth() > s.base {
		r, err := s.in.tracker.ExitScope()
		if err != nil {
			return released, err
		}
		released = append(released, r...)
	}
	return released, nil
}
