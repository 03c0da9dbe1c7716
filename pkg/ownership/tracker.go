// Package ownership simulates single-ownership memory management.
//
// A Tracker keeps a stack of lexical scopes. Each scope holds bindings in
// declaration order; a binding owns its value. Copyable values are
// duplicated whenever they are bound elsewhere, while Movable values have
// exactly one live owner: moving one invalidates its source, and a value that
// is still owned when its scope ends is released, last-declared first.
//
// Every operation is atomic. A failed operation reports an *OpError wrapping
// one of the package sentinels and leaves the Tracker unchanged.
package ownership

import (
	"log/slog"
	"sort"
)

// Tracker is the ownership bookkeeping state machine. It is not safe for
// concurrent use.
type Tracker struct {
	scopes    []*scope
	owners    map[uint64]*binding
	pending   map[uint64]Value
	released  map[uint64]bool
	nextAlloc uint64
	seq       int

	logger    *slog.Logger
	observer  Observer
	onRelease func(Release)
}

type scope struct {
	label    string
	frame    bool
	bindings []*binding
}

type binding struct {
	name    string
	value   Value
	state   State
	mutable bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the structured logger. Operations are logged at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithObserver registers an observer that receives every event.
func WithObserver(o Observer) Option {
	return func(t *Tracker) {
		t.observer = o
	}
}

// WithReleaseFunc registers the release callback. It is invoked exactly once
// per released value, in release order.
func WithReleaseFunc(f func(Release)) Option {
	return func(t *Tracker) {
		t.onRelease = f
	}
}

// BindOption configures a new binding.
type BindOption func(*binding)

// Mutable marks the binding as mutable (let mut).
func Mutable() BindOption {
	return func(b *binding) {
		b.mutable = true
	}
}

// New creates a Tracker with an empty scope stack.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.Reset()
	return t
}

// Reset drops all scopes and allocation history. Nothing is released.
func (t *Tracker) Reset() {
	t.scopes = nil
	t.owners = make(map[uint64]*binding)
	t.pending = make(map[uint64]Value)
	t.released = make(map[uint64]bool)
}

// Depth returns the number of open scopes.
func (t *Tracker) Depth() int {
	return len(t.scopes)
}

// EnterScope pushes a new empty scope.
func (t *Tracker) EnterScope() {
	t.scopes = append(t.scopes, &scope{})
	_ = t.emit(t.event(OpEnter, ""), nil)
}

// EnterFrame pushes a function frame. Names bound outside the frame are not
// visible from inside it.
func (t *Tracker) EnterFrame(label string) {
	t.scopes = append(t.scopes, &scope{label: label, frame: true})
	_ = t.emit(t.event(OpFrame, label), nil)
}

// ExitScope pops the top scope and releases every Movable value it still
// owns, in reverse declaration order.
func (t *Tracker) ExitScope() ([]Release, error) {
	ev := t.event(OpExit, "")
	if len(t.scopes) == 0 {
		return nil, t.emit(ev, ErrScopeUnderflow)
	}

	depth := len(t.scopes)
	s := t.scopes[depth-1]
	t.scopes = t.scopes[:depth-1]

	var released []Release
	for i := len(s.bindings) - 1; i >= 0; i-- {
		b := s.bindings[i]
		if b.state != Live {
			continue
		}
		if b.value.Kind == Movable {
			released = append(released, t.release(b, depth, ReasonScopeExit))
		}
		b.state = Released
	}

	ev.Name = s.label
	ev.Released = released
	return released, t.emit(ev, nil)
}

// Bind introduces a binding in the top scope. An earlier binding of the
// same name is shadowed, not released.
func (t *Tracker) Bind(name string, v Value, opts ...BindOption) error {
	ev := t.event(OpBind, name)
	ev.Value = v
	if err := t.bindable(name); err != nil {
		return t.emit(ev, err)
	}
	if err := t.checkOwnable(v); err != nil {
		return t.emit(ev, err)
	}

	b := &binding{name: name, value: v.clone()}
	for _, opt := range opts {
		opt(b)
	}
	t.adopt(b)

	top := t.scopes[len(t.scopes)-1]
	top.bindings = append(top.bindings, b)

	ev.Value = b.value.clone()
	return t.emit(ev, nil)
}

// CheckBind reports the error Bind(name, ...) would fail with because of
// the name or the scope stack, without binding anything or emitting an
// event. The value itself is not checked.
func (t *Tracker) CheckBind(name string) error {
	if err := t.bindable(name); err != nil {
		return &OpError{Op: OpBind, Name: name, Err: err}
	}
	return nil
}

// CheckAssign is CheckBind for Assign: it fails if name is not a live
// mutable binding.
func (t *Tracker) CheckAssign(name string) error {
	if _, err := t.assignable(name); err != nil {
		return &OpError{Op: OpAssign, Name: name, Err: err}
	}
	return nil
}

func (t *Tracker) bindable(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if len(t.scopes) == 0 {
		return ErrNoScope
	}
	return nil
}

func (t *Tracker) assignable(name string) (*binding, error) {
	b, err := t.lookup(name)
	if err != nil {
		return nil, err
	}
	if !b.mutable {
		return nil, ErrImmutable
	}
	if b.state != Live {
		return nil, ErrUseAfterMove
	}
	return b, nil
}

// Read returns the value of the innermost visible binding named name.
func (t *Tracker) Read(name string) (Value, error) {
	ev := t.event(OpRead, name)
	b, err := t.lookupLive(name)
	if err != nil {
		return Value{}, t.emit(ev, err)
	}
	ev.Value = b.value.clone()
	return ev.Value, t.emit(ev, nil)
}

// MoveOut transfers a Movable value out of its binding, which becomes
// MovedOut. For a Copyable value it returns a copy and the binding stays
// live.
func (t *Tracker) MoveOut(name string) (Value, error) {
	ev := t.event(OpMove, name)
	b, err := t.lookupLive(name)
	if err != nil {
		return Value{}, t.emit(ev, err)
	}

	v := b.value.clone()
	if v.Kind == Movable {
		b.state = MovedOut
		for _, id := range v.allocs() {
			delete(t.owners, id)
		}
		t.pending[v.alloc] = v
	}
	ev.Value = v
	return v, t.emit(ev, nil)
}

// Duplicate returns an independent deep copy. A Movable copy gets a fresh
// allocation; the source binding keeps its original value.
func (t *Tracker) Duplicate(name string) (Value, error) {
	ev := t.event(OpDuplicate, name)
	b, err := t.lookupLive(name)
	if err != nil {
		return Value{}, t.emit(ev, err)
	}

	var v Value
	if b.value.Kind == Movable {
		v = b.value.deepCopy()
		t.allocate(&v)
		t.pending[v.alloc] = v
	} else {
		v = b.value.clone()
	}
	ev.Value = v
	return v, t.emit(ev, nil)
}

// Assign replaces the value of a live mutable binding. The old Movable
// value is released immediately.
func (t *Tracker) Assign(name string, v Value) ([]Release, error) {
	ev := t.event(OpAssign, name)
	ev.Value = v
	b, err := t.assignable(name)
	if err != nil {
		return nil, t.emit(ev, err)
	}
	if err := t.checkOwnable(v); err != nil {
		return nil, t.emit(ev, err)
	}

	var released []Release
	if b.value.Kind == Movable {
		released = append(released, t.release(b, t.scopeDepth(b), ReasonAssign))
	}
	b.value = v.clone()
	t.adopt(b)

	ev.Value = b.value.clone()
	ev.Released = released
	return released, t.emit(ev, nil)
}

// Mutate edits the value of a live mutable binding in place. The edit may
// change contents but not the kind or allocation of the value; if f fails
// the value is left untouched.
func (t *Tracker) Mutate(name string, f func(*Value) error) error {
	ev := t.event(OpMutate, name)
	b, err := t.lookupLive(name)
	if err != nil {
		return t.emit(ev, err)
	}
	if !b.mutable {
		return t.emit(ev, ErrImmutable)
	}

	v := b.value.clone()
	if err := f(&v); err != nil {
		return t.emit(ev, err)
	}
	v.Kind = b.value.Kind
	v.alloc = b.value.alloc
	for _, id := range b.value.allocs() {
		delete(t.owners, id)
	}
	b.value = v
	t.adopt(b)

	ev.Value = b.value.clone()
	return t.emit(ev, nil)
}

// Drop moves a Movable value out of its binding and releases it at once.
// Dropping a Copyable binding does nothing.
func (t *Tracker) Drop(name string) ([]Release, error) {
	ev := t.event(OpDrop, name)
	b, err := t.lookupLive(name)
	if err != nil {
		return nil, t.emit(ev, err)
	}
	ev.Value = b.value.clone()
	if b.value.Kind == Copyable {
		return nil, t.emit(ev, nil)
	}

	b.state = MovedOut
	released := []Release{t.release(b, t.scopeDepth(b), ReasonDrop)}
	ev.Released = released
	return released, t.emit(ev, nil)
}

// Unpack dissolves an in-flight tuple or array into its elements so they
// can be bound separately. The aggregate must not be owned by a binding.
func (t *Tracker) Unpack(v Value) ([]Value, error) {
	ev := t.event(OpUnpack, "")
	ev.Value = v
	if !v.IsCompound() {
		return nil, t.emit(ev, ErrNotCompound)
	}
	if err := t.checkOwnable(v); err != nil {
		return nil, t.emit(ev, err)
	}
	delete(t.pending, v.alloc)

	elems := cloneElems(v.Elems)
	for _, e := range elems {
		if e.alloc != 0 {
			t.pending[e.alloc] = e
		}
	}
	return elems, t.emit(ev, nil)
}

// Discard releases an in-flight value that will never be bound, such as
// the unused result of a call. Copyable values are ignored.
func (t *Tracker) Discard(v Value) ([]Release, error) {
	ev := t.event(OpDiscard, "")
	ev.Value = v
	if v.Kind != Movable {
		return nil, t.emit(ev, nil)
	}
	if err := t.checkOwnable(v); err != nil {
		return nil, t.emit(ev, err)
	}

	b := &binding{value: v.clone()}
	t.allocate(&b.value)
	for _, id := range b.value.allocs() {
		delete(t.pending, id)
	}
	released := []Release{t.release(b, len(t.scopes), ReasonTemporary)}
	ev.Released = released
	return released, t.emit(ev, nil)
}

// Pending returns Movable values that were moved or duplicated out and
// have not been bound or dropped since, ordered by allocation.
func (t *Tracker) Pending() []Value {
	out := make([]Value, 0, len(t.pending))
	for _, v := range t.pending {
		out = append(out, v.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].alloc < out[j].alloc })
	return out
}

// Scopes returns a snapshot of the scope stack, outermost first.
func (t *Tracker) Scopes() []ScopeView {
	views := make([]ScopeView, len(t.scopes))
	for i, s := range t.scopes {
		view := ScopeView{Depth: i + 1, Label: s.label, Frame: s.frame}
		for _, b := range s.bindings {
			view.Bindings = append(view.Bindings, BindingView{
				Name:    b.name,
				Value:   b.value.clone(),
				State:   b.state,
				Mutable: b.mutable,
			})
		}
		views[i] = view
	}
	return views
}

// lookup resolves name from the innermost scope outwards. The walk stops
// at the first function frame.
func (t *Tracker) lookup(name string) (*binding, error) {
	for i := len(t.scopes) - 1; i >= 0; i-- {
		s := t.scopes[i]
		for j := len(s.bindings) - 1; j >= 0; j-- {
			if s.bindings[j].name == name {
				return s.bindings[j], nil
			}
		}
		if s.frame {
			break
		}
	}
	return nil, ErrUnknownName
}

func (t *Tracker) lookupLive(name string) (*binding, error) {
	b, err := t.lookup(name)
	if err != nil {
		return nil, err
	}
	if b.state != Live {
		return nil, ErrUseAfterMove
	}
	return b, nil
}

func (t *Tracker) scopeDepth(b *binding) int {
	for i := len(t.scopes) - 1; i >= 0; i-- {
		for _, sb := range t.scopes[i].bindings {
			if sb == b {
				return i + 1
			}
		}
	}
	return 0
}

// checkOwnable rejects values whose allocation is owned or gone.
func (t *Tracker) checkOwnable(v Value) error {
	if v.Kind != Movable {
		return nil
	}
	for _, id := range v.allocs() {
		if _, owned := t.owners[id]; owned {
			return ErrAlreadyOwned
		}
		if t.released[id] {
			return ErrReleased
		}
	}
	return nil
}

// adopt makes b the owner of its value and of every Movable element
// nested in it, allocating on first bind.
func (t *Tracker) adopt(b *binding) {
	if b.value.Kind != Movable {
		return
	}
	t.allocate(&b.value)
	for _, id := range b.value.allocs() {
		delete(t.pending, id)
		t.owners[id] = b
	}
}

// allocate gives v and each nested Movable element without an identity a
// fresh one.
func (t *Tracker) allocate(v *Value) {
	if v.Kind != Movable {
		return
	}
	if v.alloc == 0 {
		t.nextAlloc++
		v.alloc = t.nextAlloc
	}
	for i := range v.Elems {
		t.allocate(&v.Elems[i])
	}
}

func (t *Tracker) release(b *binding, depth int, reason Reason) Release {
	for _, id := range b.value.allocs() {
		delete(t.owners, id)
		t.released[id] = true
	}
	return Release{
		Name:   b.name,
		Value:  b.value.clone(),
		Depth:  depth,
		Reason: reason,
	}
}

func (t *Tracker) event(op Op, name string) Event {
	return Event{Op: op, Name: name, Depth: len(t.scopes)}
}

// emit numbers and publishes ev, then runs release callbacks. It returns
// err wrapped in an *OpError, or nil. Sequence numbers count attempts, so
// a failed operation consumes one too.
func (t *Tracker) emit(ev Event, err error) error {
	t.seq++
	ev.Seq = t.seq
	if err != nil {
		ev.Err = &OpError{Op: ev.Op, Name: ev.Name, Err: err}
		t.logger.Debug("ownership operation failed", "op", ev.Op, "name", ev.Name, "error", err)
	} else {
		t.logger.Debug("ownership operation", "op", ev.Op, "name", ev.Name, "depth", ev.Depth, "value", ev.Value.String())
	}

	if t.observer != nil {
		t.observer.Observe(ev)
	}
	if t.onRelease != nil {
		for _, r := range ev.Released {
			t.onRelease(r)
		}
	}
	return ev.Err
}
