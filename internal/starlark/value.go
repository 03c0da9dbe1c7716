// Package starlark exposes the ownership tracker to Starlark scripts.
package starlark

import (
	"fmt"

	"github.com/leapstack-labs/ownsim/pkg/ownership"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// Value wraps a tracker value for use in Starlark.
type Value struct {
	v ownership.Value
}

var (
	_ starlark.Value      = Value{}
	_ starlark.HasAttrs   = Value{}
	_ starlark.Comparable = Value{}
)

// NewValue wraps v.
func NewValue(v ownership.Value) Value {
	return Value{v: v}
}

// Unwrap returns the tracker value.
func (v Value) Unwrap() ownership.Value { return v.v }

func (v Value) String() string        { return v.v.String() }
func (v Value) Type() string          { return "value" }
func (v Value) Freeze()               {}
func (v Value) Truth() starlark.Bool  { return starlark.True }
func (v Value) Hash() (uint32, error) { return starlark.String(v.v.String()).Hash() }

// Attr exposes the parts of the value: type, kind, data, alloc and elems.
func (v Value) Attr(name string) (starlark.Value, error) {
	switch name {
	case "type":
		return starlark.String(v.v.Type), nil
	case "kind":
		return starlark.String(v.v.Kind.String()), nil
	case "data":
		return starlark.String(v.v.Data), nil
	case "alloc":
		return starlark.MakeUint64(v.v.Alloc()), nil
	case "elems":
		elems := make([]starlark.Value, len(v.v.Elems))
		for i, e := range v.v.Elems {
			elems[i] = NewValue(e)
		}
		return starlark.NewList(elems), nil
	}
	return nil, nil
}

// AttrNames lists the attributes in Attr.
func (v Value) AttrNames() []string {
	return []string{"alloc", "data", "elems", "kind", "type"}
}

// CompareSameType compares contents, ignoring allocation identity.
func (v Value) CompareSameType(op syntax.Token, y starlark.Value, _ int) (bool, error) {
	eq := v.v.Equal(y.(Value).v)
	switch op {
	case syntax.EQL:
		return eq, nil
	case syntax.NEQ:
		return !eq, nil
	}
	return false, fmt.Errorf("%s %s %s not implemented", v.Type(), op, y.Type())
}

// FromStarlark converts a Starlark value to a tracker value. Plain Starlark
// strings become string literals, lists become arrays.
func FromStarlark(sv starlark.Value) (ownership.Value, error) {
	switch val := sv.(type) {
	case Value:
		return val.v, nil
	case starlark.Bool:
		return ownership.Bool(bool(val)), nil
	case starlark.Int:
		n, ok := val.Int64()
		if !ok {
			return ownership.Value{}, fmt.Errorf("integer %s out of range", val)
		}
		return ownership.Int(n), nil
	case starlark.Float:
		return ownership.Float(float64(val)), nil
	case starlark.String:
		return ownership.Str(string(val)), nil
	case starlark.Tuple:
		elems, err := fromIterable(val.Iterate(), val.Len())
		if err != nil {
			return ownership.Value{}, fmt.Errorf("tuple: %w", err)
		}
		return ownership.Tuple(elems...), nil
	case *starlark.List:
		elems, err := fromIterable(val.Iterate(), val.Len())
		if err != nil {
			return ownership.Value{}, fmt.Errorf("list: %w", err)
		}
		return ownership.Array(elems...), nil
	}
	return ownership.Value{}, fmt.Errorf("cannot convert %s to a value", sv.Type())
}

func fromIterable(it starlark.Iterator, n int) ([]ownership.Value, error) {
	defer it.Done()
	elems := make([]ownership.Value, 0, n)
	var x starlark.Value
	for i := 0; it.Next(&x); i++ {
		v, err := FromStarlark(x)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		elems = append(elems, v)
	}
	return elems, nil
}

// releasedNames lists the names of released bindings.
func releasedNames(released []ownership.Release) *starlark.List {
	names := make([]starlark.Value, len(released))
	for i, r := range released {
		names[i] = starlark.String(r.Name)
	}
	return starlark.NewList(names)
}

// scopesToStarlark converts a scope snapshot to a list of structs.
func scopesToStarlark(scopes []ownership.ScopeView) *starlark.List {
	out := make([]starlark.Value, len(scopes))
	for i, s := range scopes {
		bindings := make([]starlark.Value, len(s.Bindings))
		for j, b := range s.Bindings {
			bindings[j] = starlarkstruct.FromStringDict(starlark.String("binding"), starlark.StringDict{
				"name":    starlark.String(b.Name),
				"value":   NewValue(b.Value),
				"state":   starlark.String(b.State.String()),
				"mutable": starlark.Bool(b.Mutable),
			})
		}
		out[i] = starlarkstruct.FromStringDict(starlark.String("scope"), starlark.StringDict{
			"depth":    starlark.MakeInt(s.Depth),
			"label":    starlark.String(s.Label),
			"frame":    starlark.Bool(s.Frame),
			"bindings": starlark.NewList(bindings),
		})
	}
	return starlark.NewList(out)
}
