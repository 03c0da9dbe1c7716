package ownership

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tells whether a value is duplicated freely or has a single owner.
type Kind int

// Kind constants.
const (
	// Copyable values are stack-only data; binding them elsewhere copies them.
	Copyable Kind = iota
	// Movable values are heap-backed; binding them elsewhere moves them.
	Movable
)

func (k Kind) String() string {
	switch k {
	case Copyable:
		return "copy"
	case Movable:
		return "move"
	default:
		return "unknown"
	}
}

// Type names used by the value constructors.
const (
	TypeInt    = "i32"
	TypeUsize  = "usize"
	TypeFloat  = "f64"
	TypeBool   = "bool"
	TypeChar   = "char"
	TypeStr    = "&str"
	TypeString = "String"
	TypeTuple  = "tuple"
	TypeArray  = "array"
)

// Value is a unit of simulated data.
//
// Scalars keep their textual form in Data. Tuples and arrays keep their
// elements in Elems. A Movable value receives an allocation identity the
// first time it is bound; moving it carries that identity along, and
// duplicating it produces a fresh one.
type Value struct {
	Type  string
	Kind  Kind
	Data  string
	Elems []Value

	alloc uint64
}

// Int returns a Copyable i32 value.
func Int(n int64) Value {
	return Value{Type: TypeInt, Kind: Copyable, Data: strconv.FormatInt(n, 10)}
}

// Usize returns a Copyable usize value, the type of lengths.
func Usize(n int) Value {
	return Value{Type: TypeUsize, Kind: Copyable, Data: strconv.Itoa(n)}
}

// Float returns a Copyable f64 value.
func Float(f float64) Value {
	return Value{Type: TypeFloat, Kind: Copyable, Data: strconv.FormatFloat(f, 'f', -1, 64)}
}

// Bool returns a Copyable bool value.
func Bool(b bool) Value {
	return Value{Type: TypeBool, Kind: Copyable, Data: strconv.FormatBool(b)}
}

// Char returns a Copyable char value.
func Char(r rune) Value {
	return Value{Type: TypeChar, Kind: Copyable, Data: string(r)}
}

// Str returns a Copyable string literal. Literals are hardcoded and
// immutable, so copying the reference is free.
func Str(s string) Value {
	return Value{Type: TypeStr, Kind: Copyable, Data: s}
}

// String returns a Movable growable string buffer.
func String(s string) Value {
	return Value{Type: TypeString, Kind: Movable, Data: s}
}

// Tuple returns a tuple of the given elements. It is Copyable only if
// every element is Copyable.
func Tuple(elems ...Value) Value {
	return Value{Type: TypeTuple, Kind: compoundKind(elems), Elems: cloneElems(elems)}
}

// Array returns a fixed-length array of the given elements. It is Copyable
// only if every element is Copyable.
func Array(elems ...Value) Value {
	return Value{Type: TypeArray, Kind: compoundKind(elems), Elems: cloneElems(elems)}
}

func compoundKind(elems []Value) Kind {
	for _, e := range elems {
		if e.Kind == Movable {
			return Movable
		}
	}
	return Copyable
}

// Alloc returns the allocation identity of a bound Movable value, or 0.
func (v Value) Alloc() uint64 {
	return v.alloc
}

// IsCompound reports whether v is a tuple or an array.
func (v Value) IsCompound() bool {
	return v.Type == TypeTuple || v.Type == TypeArray
}

// Len returns the byte length of a string value or the element count of a
// compound value.
func (v Value) Len() (int, error) {
	switch {
	case v.Type == TypeString || v.Type == TypeStr:
		return len(v.Data), nil
	case v.IsCompound():
		return len(v.Elems), nil
	default:
		return 0, fmt.Errorf("%s has no length", v.Type)
	}
}

// Field projects element i of a tuple or array. Copyable elements are
// copied out; Movable elements cannot be moved out of their aggregate.
func (v Value) Field(i int) (Value, error) {
	if !v.IsCompound() {
		return Value{}, ErrNotCompound
	}
	if i < 0 || i >= len(v.Elems) {
		return Value{}, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, len(v.Elems))
	}
	e := v.Elems[i]
	if e.Kind == Movable {
		return Value{}, ErrPartialMove
	}
	return e.clone(), nil
}

// Equal compares type, kind and contents, ignoring allocation identity.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type || v.Kind != o.Kind || v.Data != o.Data || len(v.Elems) != len(o.Elems) {
		return false
	}
	for i := range v.Elems {
		if !v.Elems[i].Equal(o.Elems[i]) {
			return false
		}
	}
	return true
}

// Clone returns an independent deep copy with no allocation identity.
// Binding the copy allocates afresh.
func (v Value) Clone() Value {
	return v.deepCopy()
}

// String renders v in debug form, e.g. String("hello"), 'z', (1, 2.5).
func (v Value) String() string {
	switch v.Type {
	case TypeString:
		return fmt.Sprintf("String(%q)", v.Data)
	case TypeStr:
		return strconv.Quote(v.Data)
	case TypeChar:
		return "'" + v.Data + "'"
	case TypeTuple:
		if len(v.Elems) == 1 {
			return "(" + v.Elems[0].String() + ",)"
		}
		return "(" + joinElems(v.Elems, Value.String) + ")"
	case TypeArray:
		return "[" + joinElems(v.Elems, Value.String) + "]"
	default:
		return v.Data
	}
}

// Display renders v the way a program prints it: strings without quotes.
func (v Value) Display() string {
	switch v.Type {
	case TypeTuple:
		return "(" + joinElems(v.Elems, Value.String) + ")"
	case TypeArray:
		return "[" + joinElems(v.Elems, Value.String) + "]"
	default:
		return v.Data
	}
}

func joinElems(elems []Value, f func(Value) string) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = f(e)
	}
	return strings.Join(parts, ", ")
}

// clone copies v including nested element slices, keeping allocations.
func (v Value) clone() Value {
	c := v
	c.Elems = cloneElems(v.Elems)
	return c
}

// deepCopy copies v and forgets every allocation identity, the shape of
// an explicit clone().
func (v Value) deepCopy() Value {
	c := v
	c.alloc = 0
	if v.Elems != nil {
		c.Elems = make([]Value, len(v.Elems))
		for i, e := range v.Elems {
			c.Elems[i] = e.deepCopy()
		}
	}
	return c
}

// allocs returns v's allocation and every nested allocation.
func (v Value) allocs() []uint64 {
	var ids []uint64
	if v.alloc != 0 {
		ids = append(ids, v.alloc)
	}
	for _, e := range v.Elems {
		ids = append(ids, e.allocs()...)
	}
	return ids
}

func cloneElems(elems []Value) []Value {
	if elems == nil {
		return nil
	}
	out := make([]Value, len(elems))
	for i, e := range elems {
		out[i] = e.clone()
	}
	return out
}
