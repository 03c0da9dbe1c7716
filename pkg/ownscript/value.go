package ownscript

import "github.com/leapstack-labs/ownsim/pkg/ownership"

// ParseValue parses a constant value written in ownscript syntax, for
// example `String::from("hi")`, `5`, `(1, 'a')` or `[0; 3]`. Names and
// function calls other than the String constructors are rejected.
func ParseValue(src string) (ownership.Value, error) {
	x, err := ParseExpr(src, "")
	if err != nil {
		return ownership.Value{}, err
	}
	return constValue(x)
}

func constValue(x Expr) (ownership.Value, error) {
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

	case *CallExpr:
		switch x.Fn {
		case "String", "String::from":
			if len(x.Args) == 1 {
				if lit, ok := x.Args[0].(*StrLit); ok {
					return ownership.String(lit.Value), nil
				}
			}
			return ownership.Value{}, NewParseErrorf(x.At, "%s takes one string literal", x.Fn)
		case "String::new":
			return ownership.String(""), nil
		}

	case *MethodCall:
		if lit, ok := x.Recv.(*StrLit); ok && len(x.Args) == 0 && (x.Method == "to_string" || x.Method == "to_owned") {
			return ownership.String(lit.Value), nil
		}

	case *TupleLit:
		elems, err := constList(x.Elems)
		if err != nil {
			return ownership.Value{}, err
		}
		return ownership.Tuple(elems...), nil

	case *ArrayLit:
		elems, err := constList(x.Elems)
		if err != nil {
			return ownership.Value{}, err
		}
		if x.Repeat > 0 {
			if elems[0].Kind == ownership.Movable {
				return ownership.Value{}, NewParseErrorf(x.At, "array repeat needs a copyable value")
			}
			rep := make([]ownership.Value, x.Repeat)
			for i := range rep {
				rep[i] = elems[0]
			}
			elems = rep
		}
		return ownership.Array(elems...), nil
	}
	return ownership.Value{}, NewParseErrorf(x.Pos(), "not a constant value")
}

func constList(xs []Expr) ([]ownership.Value, error) {
	out := make([]ownership.Value, 0, len(xs))
	for _, x := range xs {
		v, err := constValue(x)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
