package starlark

import (
	"fmt"
	"unicode/utf8"

	"github.com/leapstack-labs/ownsim/pkg/ownership"
	"go.starlark.net/starlark"
)

// Predeclared returns the builtins a script sees: the tracker operations
// bound to h's tracker and the value constructors.
func (h *Host) Predeclared() starlark.StringDict {
	return starlark.StringDict{
		"enter_scope": starlark.NewBuiltin("enter_scope", h.enterScope),
		"enter_frame": starlark.NewBuiltin("enter_frame", h.enterFrame),
		"exit_scope":  starlark.NewBuiltin("exit_scope", h.exitScope),
		"bind":        starlark.NewBuiltin("bind", h.bind),
		"read":        starlark.NewBuiltin("read", h.nameOp(h.tracker.Read)),
		"move_out":    starlark.NewBuiltin("move_out", h.nameOp(h.tracker.MoveOut)),
		"duplicate":   starlark.NewBuiltin("duplicate", h.nameOp(h.tracker.Duplicate)),
		"assign":      starlark.NewBuiltin("assign", h.assign),
		"drop":        starlark.NewBuiltin("drop", h.drop),
		"depth":       starlark.NewBuiltin("depth", h.depth),
		"scopes":      starlark.NewBuiltin("scopes", h.scopes),
		"fails":       starlark.NewBuiltin("fails", h.fails),

		"String": starlark.NewBuiltin("String", makeString),
		"Str":    starlark.NewBuiltin("Str", makeStr),
		"Int":    starlark.NewBuiltin("Int", makeInt),
		"Float":  starlark.NewBuiltin("Float", makeFloat),
		"Bool":   starlark.NewBuiltin("Bool", makeBool),
		"Char":   starlark.NewBuiltin("Char", makeChar),
		"Tuple":  starlark.NewBuiltin("Tuple", makeCompound(ownership.Tuple)),
		"Array":  starlark.NewBuiltin("Array", makeCompound(ownership.Array)),
	}
}

// fail records a tracker error so fails() can classify it after Starlark
// has wrapped it.
func (h *Host) fail(err error) error {
	h.lastErr = err
	return err
}

func (h *Host) enterScope(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	h.tracker.EnterScope()
	return starlark.None, nil
}

func (h *Host) enterFrame(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var label string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &label); err != nil {
		return nil, err
	}
	h.tracker.EnterFrame(label)
	return starlark.None, nil
}

func (h *Host) exitScope(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	released, err := h.tracker.ExitScope()
	if err != nil {
		return nil, h.fail(err)
	}
	return releasedNames(released), nil
}

func (h *Host) bind(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name    string
		value   starlark.Value
		mutable bool
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "value", &value, "mut?", &mutable); err != nil {
		return nil, err
	}
	v, err := FromStarlark(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}

	var opts []ownership.BindOption
	if mutable {
		opts = append(opts, ownership.Mutable())
	}
	if err := h.tracker.Bind(name, v, opts...); err != nil {
		return nil, h.fail(err)
	}
	return starlark.None, nil
}

// nameOp adapts a tracker operation that takes a name and yields a value.
func (h *Host) nameOp(op func(string) (ownership.Value, error)) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
			return nil, err
		}
		v, err := op(name)
		if err != nil {
			return nil, h.fail(err)
		}
		return NewValue(v), nil
	}
}

func (h *Host) assign(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name  string
		value starlark.Value
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &name, &value); err != nil {
		return nil, err
	}
	v, err := FromStarlark(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	released, err := h.tracker.Assign(name, v)
	if err != nil {
		return nil, h.fail(err)
	}
	return releasedNames(released), nil
}

func (h *Host) drop(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	released, err := h.tracker.Drop(name)
	if err != nil {
		return nil, h.fail(err)
	}
	return releasedNames(released), nil
}

func (h *Host) depth(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.MakeInt(h.tracker.Depth()), nil
}

func (h *Host) scopes(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return scopesToStarlark(h.tracker.Scopes()), nil
}

// fails calls fn with args and returns the error code it fails with, or
// None if it succeeds.
func (h *Host) fails(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: missing function argument", b.Name())
	}
	fn, ok := args[0].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s: %s is not callable", b.Name(), args[0].Type())
	}

	h.lastErr = nil
	_, err := starlark.Call(thread, fn, args[1:], kwargs)
	if err == nil {
		return starlark.None, nil
	}
	code := ownership.Code(err)
	if code == "Error" && h.lastErr != nil {
		code = ownership.Code(h.lastErr)
	}
	h.lastErr = nil
	return starlark.String(code), nil
}

func makeString(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &s); err != nil {
		return nil, err
	}
	return NewValue(ownership.String(s)), nil
}

func makeStr(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
		return nil, err
	}
	return NewValue(ownership.Str(s)), nil
}

func makeInt(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var n int
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &n); err != nil {
		return nil, err
	}
	return NewValue(ownership.Int(int64(n))), nil
}

func makeFloat(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	f, ok := starlark.AsFloat(x)
	if !ok {
		return nil, fmt.Errorf("%s: want a number, got %s", b.Name(), x.Type())
	}
	return NewValue(ownership.Float(f)), nil
}

func makeBool(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v bool
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	return NewValue(ownership.Bool(v)), nil
}

func makeChar(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(s) != 1 {
		return nil, fmt.Errorf("%s: want a single character, got %q", b.Name(), s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return NewValue(ownership.Char(r)), nil
}

func makeCompound(build func(...ownership.Value) ownership.Value) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
		}
		elems := make([]ownership.Value, len(args))
		for i, a := range args {
			v, err := FromStarlark(a)
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", b.Name(), i+1, err)
			}
			elems[i] = v
		}
		return NewValue(build(elems...)), nil
	}
}
