package ownership

// Op names a Tracker operation.
type Op string

// Op constants.
const (
	OpEnter     Op = "enter"
	OpFrame     Op = "frame"
	OpExit      Op = "exit"
	OpBind      Op = "bind"
	OpRead      Op = "read"
	OpMove      Op = "move"
	OpDuplicate Op = "duplicate"
	OpAssign    Op = "assign"
	OpMutate    Op = "mutate"
	OpDrop      Op = "drop"
	OpUnpack    Op = "unpack"
	OpDiscard   Op = "discard"
)

// State is the lifecycle state of a binding. MovedOut and Released are
// terminal.
type State int

// State constants.
const (
	Live State = iota
	MovedOut
	Released
)

func (s State) String() string {
	switch s {
	case Live:
		return "live"
	case MovedOut:
		return "moved"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// Reason explains why a value was released.
type Reason string

// Reason constants.
const (
	ReasonScopeExit Reason = "scope-exit"
	ReasonAssign    Reason = "assign"
	ReasonDrop      Reason = "drop"
	ReasonTemporary Reason = "temporary"
)

// Release describes one released Movable value.
type Release struct {
	Name   string
	Value  Value
	Depth  int
	Reason Reason
}

// Event describes one Tracker operation, successful or not. Seq numbers
// every attempted operation from 1; it is observation metadata, not
// Tracker state.
type Event struct {
	Seq      int
	Op       Op
	Name     string
	Value    Value
	Depth    int
	Err      error
	Released []Release
}

// Observer receives every Tracker event in order.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev Event) {
	f(ev)
}

// Observers returns an Observer that forwards each event to every non-nil
// observer in order.
func Observers(observers ...Observer) Observer {
	var list []Observer
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return ObserverFunc(func(ev Event) {
		for _, o := range list {
			o.Observe(ev)
		}
	})
}

// BindingView is a read-only snapshot of a binding.
type BindingView struct {
	Name    string
	Value   Value
	State   State
	Mutable bool
}

// ScopeView is a read-only snapshot of a scope, bindings in declaration
// order. Depth 1 is the outermost scope.
type ScopeView struct {
	Depth    int
	Label    string
	Frame    bool
	Bindings []BindingView
}
