package ownership

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// releaseLog collects release callbacks in order.
type releaseLog struct {
	names []string
}

func (l *releaseLog) record(r Release) {
	l.names = append(l.names, r.Name)
}

func newTestTracker(t *testing.T) (*Tracker, *releaseLog) {
	t.Helper()
	log := &releaseLog{}
	return New(WithReleaseFunc(log.record)), log
}

func TestTracker_MoveScenario(t *testing.T) {
	tr, log := newTestTracker(t)

	tr.EnterScope()
	require.NoError(t, tr.Bind("s", String("hello")))

	moved, err := tr.MoveOut("s")
	require.NoError(t, err)
	require.NoError(t, tr.Bind("s2", moved))

	_, err = tr.Read("s")
	assert.ErrorIs(t, err, ErrUseAfterMove)
	assert.Equal(t, "UseAfterMove", Code(err))

	v, err := tr.Read("s2")
	require.NoError(t, err)
	assert.True(t, v.Equal(String("hello")), "got %s", v)

	released, err := tr.ExitScope()
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, "s2", released[0].Name)
	assert.Equal(t, ReasonScopeExit, released[0].Reason)
	assert.Equal(t, []string{"s2"}, log.names)
}

func TestTracker_CopySemantics(t *testing.T) {
	tr, log := newTestTracker(t)
	tr.EnterScope()
	require.NoError(t, tr.Bind("x", Int(5)))

	y, err := tr.MoveOut("x")
	require.NoError(t, err)
	require.NoError(t, tr.Bind("y", y))

	for i := 0; i < 2; i++ {
		v, err := tr.Read("x")
		require.NoError(t, err, "read %d", i)
		assert.Equal(t, "5", v.Data)
	}

	released, err := tr.ExitScope()
	require.NoError(t, err)
	assert.Empty(t, released, "copyable values are not released")
	assert.Empty(t, log.names)
}

func TestTracker_ReleaseOrderIsReverseDeclaration(t *testing.T) {
	tr, log := newTestTracker(t)

	tr.EnterScope()
	require.NoError(t, tr.Bind("a", String("a")))
	require.NoError(t, tr.Bind("n", Int(1)))
	require.NoError(t, tr.Bind("b", String("b")))
	require.NoError(t, tr.Bind("c", String("c")))

	tr.EnterScope()
	require.NoError(t, tr.Bind("inner", String("inner")))
	released, err := tr.ExitScope()
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, 2, released[0].Depth)

	moved, err := tr.MoveOut("b")
	require.NoError(t, err)
	assert.Equal(t, TypeString, moved.Type)

	released, err = tr.ExitScope()
	require.NoError(t, err)
	names := make([]string, len(released))
	for i, r := range released {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"c", "a"}, names)
	assert.Equal(t, []string{"inner", "c", "a"}, log.names)
}

func TestTracker_Shadowing(t *testing.T) {
	tr, log := newTestTracker(t)
	tr.EnterScope()

	require.NoError(t, tr.Bind("x", String("v1")))
	require.NoError(t, tr.Bind("x", String("v2")))

	v, err := tr.Read("x")
	require.NoError(t, err)
	assert.Equal(t, "v2", v.Data)

	released, err := tr.ExitScope()
	require.NoError(t, err)
	require.Len(t, released, 2)
	assert.Equal(t, "v2", released[0].Value.Data)
	assert.Equal(t, "v1", released[1].Value.Data)
	assert.Equal(t, []string{"x", "x"}, log.names)
}

func TestTracker_ShadowingConsumesPrior(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.EnterScope()

	require.NoError(t, tr.Bind("s", String("hello")))
	prior, err := tr.MoveOut("s")
	require.NoError(t, err)
	require.NoError(t, tr.Bind("s", prior))

	released, err := tr.ExitScope()
	require.NoError(t, err)
	assert.Len(t, released, 1, "the moved-from binding is not released")
}

func TestTracker_ShadowingInnerScope(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.EnterScope()
	require.NoError(t, tr.Bind("x", Int(1)))

	tr.EnterScope()
	require.NoError(t, tr.Bind("x", Int(2)))
	v, err := tr.Read("x")
	require.NoError(t, err)
	assert.Equal(t, "2", v.Data)
	_, err = tr.ExitScope()
	require.NoError(t, err)

	v, err = tr.Read("x")
	require.NoError(t, err)
	assert.Equal(t, "1", v.Data)
}

func TestTracker_ScopeUnderflowLeavesStateAlone(t *testing.T) {
	tr, log := newTestTracker(t)

	_, err := tr.ExitScope()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScopeUnderflow)

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, OpExit, opErr.Op)

	tr.EnterScope()
	require.NoError(t, tr.Bind("s", String("x")))
	_, err = tr.ExitScope()
	require.NoError(t, err)

	before := tr.Scopes()
	_, err = tr.ExitScope()
	assert.ErrorIs(t, err, ErrScopeUnderflow)
	assert.Equal(t, before, tr.Scopes())
	assert.Equal(t, []string{"s"}, log.names)
}

func TestTracker_UnknownName(t *testing.T) {
	tr, _ := newTestTracker(t)

	_, err := tr.Read("ghost")
	assert.ErrorIs(t, err, ErrUnknownName)

	tr.EnterScope()
	tr.EnterScope()
	require.NoError(t, tr.Bind("inner", Int(1)))
	_, err = tr.ExitScope()
	require.NoError(t, err)

	for _, op := range []func(string) (Value, error){tr.Read, tr.MoveOut, tr.Duplicate} {
		_, err := op("inner")
		assert.ErrorIs(t, err, ErrUnknownName)
	}
}

func TestTracker_Duplicate(t *testing.T) {
	tr, log := newTestTracker(t)
	tr.EnterScope()
	require.NoError(t, tr.Bind("s1", String("hello")))

	dup, err := tr.Duplicate("s1")
	require.NoError(t, err)
	require.NoError(t, tr.Bind("s2", dup))

	v1, err := tr.Read("s1")
	require.NoError(t, err)
	v2, err := tr.Read("s2")
	require.NoError(t, err)
	assert.True(t, v1.Equal(v2))
	assert.NotEqual(t, v1.Alloc(), v2.Alloc(), "clone must allocate")

	_, err = tr.ExitScope()
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s1"}, log.names)
}

func TestTracker_DuplicateAfterMoveFails(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.EnterScope()
	require.NoError(t, tr.Bind("s", String("x")))
	_, err := tr.MoveOut("s")
	require.NoError(t, err)

	_, err = tr.Duplicate("s")
	assert.ErrorIs(t, err, ErrUseAfterMove)
	_, err = tr.MoveOut("s")
	assert.ErrorIs(t, err, ErrUseAfterMove)
}

func TestTracker_SingleOwner(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.EnterScope()
	require.NoError(t, tr.Bind("s", String("x")))

	v, err := tr.Read("s")
	require.NoError(t, err)
	err = tr.Bind("alias", v)
	assert.ErrorIs(t, err, ErrAlreadyOwned)

	released, err := tr.ExitScope()
	require.NoError(t, err)
	require.Len(t, released, 1)

	tr.EnterScope()
	err = tr.Bind("zombie", released[0].Value)
	assert.ErrorIs(t, err, ErrReleased)
}

func TestTracker_BindWithoutScope(t *testing.T) {
	tr, _ := newTestTracker(t)
	err := tr.Bind("x", Int(1))
	assert.ErrorIs(t, err, ErrNoScope)

	tr.EnterScope()
	err = tr.Bind("", Int(1))
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestTracker_Assign(t *testing.T) {
	tests := []struct {
		name    string
		mutable bool
		moved   bool
		value   Value
		wantErr error
		wantRel int
	}{
		{name: "mutable string releases old", mutable: true, value: String("new"), wantRel: 1},
		{name: "immutable", mutable: false, value: String("new"), wantErr: ErrImmutable},
		{name: "moved out", mutable: true, moved: true, value: String("new"), wantErr: ErrUseAfterMove},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTestTracker(t)
			tr.EnterScope()
			var opts []BindOption
			if tt.mutable {
				opts = append(opts, Mutable())
			}
			require.NoError(t, tr.Bind("s", String("old"), opts...))
			if tt.moved {
				_, err := tr.MoveOut("s")
				require.NoError(t, err)
			}

			released, err := tr.Assign("s", tt.value)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, released, tt.wantRel)
			assert.Equal(t, "old", released[0].Value.Data)
			assert.Equal(t, ReasonAssign, released[0].Reason)

			v, err := tr.Read("s")
			require.NoError(t, err)
			assert.Equal(t, "new", v.Data)
		})
	}
}

func TestTracker_AssignCopyable(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.EnterScope()
	require.NoError(t, tr.Bind("x", Int(5), Mutable()))

	released, err := tr.Assign("x", Int(6))
	require.NoError(t, err)
	assert.Empty(t, released)

	v, err := tr.Read("x")
	require.NoError(t, err)
	assert.Equal(t, "6", v.Data)
}

func TestTracker_Mutate(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.EnterScope()
	require.NoError(t, tr.Bind("s", String("hello"), Mutable()))
	require.NoError(t, tr.Bind("frozen", String("ice")))

	err := tr.Mutate("s", func(v *Value) error {
		v.Data += ", world!"
		return nil
	})
	require.NoError(t, err)

	v, err := tr.Read("s")
	require.NoError(t, err)
	assert.Equal(t, "hello, world!", v.Data)

	err = tr.Mutate("frozen", func(v *Value) error { return nil })
	assert.ErrorIs(t, err, ErrImmutable)

	boom := errors.New("boom")
	err = tr.Mutate("s", func(v *Value) error {
		v.Data = "clobbered"
		return boom
	})
	assert.ErrorIs(t, err, boom)
	v, err = tr.Read("s")
	require.NoError(t, err)
	assert.Equal(t, "hello, world!", v.Data, "failed mutation must not change the value")
}

func TestTracker_Drop(t *testing.T) {
	tr, log := newTestTracker(t)
	tr.EnterScope()
	require.NoError(t, tr.Bind("s", String("x")))
	require.NoError(t, tr.Bind("n", Int(1)))

	released, err := tr.Drop("s")
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, ReasonDrop, released[0].Reason)

	_, err = tr.Read("s")
	assert.ErrorIs(t, err, ErrUseAfterMove)

	released, err = tr.Drop("n")
	require.NoError(t, err)
	assert.Empty(t, released)
	_, err = tr.Read("n")
	assert.NoError(t, err)

	released, err = tr.ExitScope()
	require.NoError(t, err)
	assert.Empty(t, released, "a dropped value is released exactly once")
	assert.Equal(t, []string{"s"}, log.names)
}

func TestTracker_FrameHidesOuterBindings(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.EnterScope()
	require.NoError(t, tr.Bind("outer", Int(1)))

	tr.EnterFrame("takes_ownership")
	_, err := tr.Read("outer")
	assert.ErrorIs(t, err, ErrUnknownName)

	tr.EnterScope()
	require.NoError(t, tr.Bind("local", Int(2)))
	_, err = tr.Read("local")
	assert.NoError(t, err)
	_, err = tr.ExitScope()
	require.NoError(t, err)

	_, err = tr.ExitScope()
	require.NoError(t, err)
	_, err = tr.Read("outer")
	assert.NoError(t, err)
}

func TestTracker_FunctionOwnershipFlow(t *testing.T) {
	tr, log := newTestTracker(t)
	tr.EnterFrame("main")
	require.NoError(t, tr.Bind("s", String("hello")))

	arg, err := tr.MoveOut("s")
	require.NoError(t, err)

	tr.EnterFrame("takes_and_gives_back")
	require.NoError(t, tr.Bind("a_string", arg))
	ret, err := tr.MoveOut("a_string")
	require.NoError(t, err)
	released, err := tr.ExitScope()
	require.NoError(t, err)
	assert.Empty(t, released)

	require.NoError(t, tr.Bind("s3", ret))
	assert.Empty(t, tr.Pending())

	_, err = tr.ExitScope()
	require.NoError(t, err)
	assert.Equal(t, []string{"s3"}, log.names)
}

func TestTracker_PendingAndUnpack(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.EnterScope()
	require.NoError(t, tr.Bind("s", String("hello")))

	s, err := tr.MoveOut("s")
	require.NoError(t, err)
	require.Len(t, tr.Pending(), 1)

	pair := Tuple(s, Usize(5))
	assert.Equal(t, Movable, pair.Kind)

	elems, err := tr.Unpack(pair)
	require.NoError(t, err)
	require.Len(t, elems, 2)
	require.NoError(t, tr.Bind("s2", elems[0]))
	require.NoError(t, tr.Bind("len", elems[1]))
	assert.Empty(t, tr.Pending())

	_, err = tr.Unpack(Int(1))
	assert.ErrorIs(t, err, ErrNotCompound)

	released, err := tr.ExitScope()
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, "s2", released[0].Name)
}

// TestTracker_CompoundElementOwnership covers tuples holding a Movable
// element: the element is owned through the tuple and released with it,
// exactly once.
func TestTracker_CompoundElementOwnership(t *testing.T) {
	tests := []struct {
		name     string
		run      func(t *testing.T, tr *Tracker)
		released []string
	}{
		{
			name: "element of live tuple cannot be rebound",
			run: func(t *testing.T, tr *Tracker) {
				tv, err := tr.Read("t")
				require.NoError(t, err)
				assert.ErrorIs(t, tr.Bind("u", tv.Elems[0]), ErrAlreadyOwned)
			},
			released: []string{"t"},
		},
		{
			name: "element of constructed tuple is owned too",
			run: func(t *testing.T, tr *Tracker) {
				require.NoError(t, tr.Bind("c", Tuple(String("a"), Int(2))))
				cv, err := tr.Read("c")
				require.NoError(t, err)
				assert.NotZero(t, cv.Elems[0].Alloc())
				assert.ErrorIs(t, tr.Bind("u", cv.Elems[0]), ErrAlreadyOwned)
			},
			released: []string{"c", "t"},
		},
		{
			name: "drop releases tuple and element together",
			run: func(t *testing.T, tr *Tracker) {
				tv, err := tr.Read("t")
				require.NoError(t, err)
				rel, err := tr.Drop("t")
				require.NoError(t, err)
				require.Len(t, rel, 1)
				assert.ErrorIs(t, tr.Bind("u", tv.Elems[0]), ErrReleased)
			},
			released: []string{"t"},
		},
		{
			name: "duplicate gives fresh element identities",
			run: func(t *testing.T, tr *Tracker) {
				tv, err := tr.Read("t")
				require.NoError(t, err)
				dup, err := tr.Duplicate("t")
				require.NoError(t, err)
				assert.NotZero(t, dup.Elems[0].Alloc())
				assert.NotEqual(t, tv.Elems[0].Alloc(), dup.Elems[0].Alloc())
				assert.NotEqual(t, tv.Alloc(), dup.Alloc())
				require.NoError(t, tr.Bind("d", dup))
			},
			released: []string{"d", "t"},
		},
		{
			name: "moving the tuple frees the element for one new owner",
			run: func(t *testing.T, tr *Tracker) {
				mv, err := tr.MoveOut("t")
				require.NoError(t, err)
				require.NoError(t, tr.Bind("u", mv.Elems[0]))
				assert.ErrorIs(t, tr.Bind("w", mv), ErrAlreadyOwned)
			},
			released: []string{"u"},
		},
		{
			name: "assign releases the old tuple and its element",
			run: func(t *testing.T, tr *Tracker) {
				require.NoError(t, tr.Bind("m", Tuple(String("b")), Mutable()))
				mv, err := tr.Read("m")
				require.NoError(t, err)
				rel, err := tr.Assign("m", Tuple(String("c")))
				require.NoError(t, err)
				require.Len(t, rel, 1)
				assert.ErrorIs(t, tr.Bind("u", mv.Elems[0]), ErrReleased)
			},
			released: []string{"m", "m", "t"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var names []string
			seen := map[uint64]int{}
			tr := New(WithReleaseFunc(func(r Release) {
				names = append(names, r.Name)
				for _, id := range r.Value.allocs() {
					seen[id]++
				}
			}))

			tr.EnterScope()
			require.NoError(t, tr.Bind("s", String("hi")))
			m, err := tr.MoveOut("s")
			require.NoError(t, err)
			require.NoError(t, tr.Bind("t", Tuple(m, Int(1))))

			tt.run(t, tr)
			_, err = tr.ExitScope()
			require.NoError(t, err)

			assert.Equal(t, tt.released, names)
			for id, n := range seen {
				assert.Equal(t, 1, n, "allocation %d released %d times", id, n)
			}
		})
	}
}

func TestTracker_CheckTargets(t *testing.T) {
	var events int
	tr := New(WithObserver(ObserverFunc(func(Event) { events++ })))

	assert.ErrorIs(t, tr.CheckBind("x"), ErrNoScope)
	tr.EnterScope()
	assert.ErrorIs(t, tr.CheckBind(""), ErrInvalidName)
	assert.NoError(t, tr.CheckBind("x"))

	require.NoError(t, tr.Bind("fixed", Int(1)))
	require.NoError(t, tr.Bind("s", String("a"), Mutable()))
	assert.ErrorIs(t, tr.CheckAssign("fixed"), ErrImmutable)
	assert.ErrorIs(t, tr.CheckAssign("nope"), ErrUnknownName)
	assert.NoError(t, tr.CheckAssign("s"))
	_, err := tr.MoveOut("s")
	require.NoError(t, err)
	assert.Equal(t, "UseAfterMove", Code(tr.CheckAssign("s")))

	// Enter, two binds and the move; checks emit nothing.
	assert.Equal(t, 4, events)
}

func TestTracker_DiscardTemporary(t *testing.T) {
	tr, log := newTestTracker(t)
	tr.EnterScope()

	// An unbound constructor result is freed where it is produced.
	released, err := tr.Discard(String("temp"))
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, ReasonTemporary, released[0].Reason)
	assert.NotZero(t, released[0].Value.Alloc())

	require.NoError(t, tr.Bind("s", String("kept")))
	moved, err := tr.MoveOut("s")
	require.NoError(t, err)
	_, err = tr.Discard(moved)
	require.NoError(t, err)
	assert.Empty(t, tr.Pending())

	_, err = tr.Discard(moved)
	assert.ErrorIs(t, err, ErrReleased)
	assert.Error(t, tr.Bind("again", moved))

	released, err = tr.Discard(Int(3))
	require.NoError(t, err)
	assert.Empty(t, released)

	require.NoError(t, tr.Bind("owned", String("x")))
	owned, err := tr.Read("owned")
	require.NoError(t, err)
	_, err = tr.Discard(owned)
	assert.ErrorIs(t, err, ErrAlreadyOwned)

	_, err = tr.ExitScope()
	require.NoError(t, err)
	assert.Equal(t, []string{"", "", "owned"}, log.names)
}

func TestTracker_ObserverSeesEveryOperation(t *testing.T) {
	var events []Event
	tr := New(WithObserver(ObserverFunc(func(ev Event) {
		events = append(events, ev)
	})))

	tr.EnterScope()
	require.NoError(t, tr.Bind("s", String("x")))
	_, _ = tr.Read("missing")
	_, err := tr.ExitScope()
	require.NoError(t, err)

	require.Len(t, events, 4)
	ops := []Op{OpEnter, OpBind, OpRead, OpExit}
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Seq)
		assert.Equal(t, ops[i], ev.Op)
	}
	assert.Error(t, events[2].Err)
	assert.Len(t, events[3].Released, 1)
}

func TestTracker_ScopesSnapshot(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.EnterFrame("main")
	require.NoError(t, tr.Bind("s", String("x"), Mutable()))
	_, err := tr.MoveOut("s")
	require.NoError(t, err)
	tr.EnterScope()
	require.NoError(t, tr.Bind("n", Int(3)))

	scopes := tr.Scopes()
	require.Len(t, scopes, 2)
	assert.Equal(t, "main", scopes[0].Label)
	assert.True(t, scopes[0].Frame)
	assert.Equal(t, MovedOut, scopes[0].Bindings[0].State)
	assert.True(t, scopes[0].Bindings[0].Mutable)
	assert.Equal(t, 2, scopes[1].Depth)
	assert.Equal(t, Live, scopes[1].Bindings[0].State)

	tr.Reset()
	assert.Equal(t, 0, tr.Depth())
}

// TestTracker_ReleaseCountProperty checks, over a family of properly
// nested traces, that releases equal the movable bindings never moved out.
func TestTracker_ReleaseCountProperty(t *testing.T) {
	for n := 1; n <= 6; n++ {
		for moveMask := 0; moveMask < 1<<n; moveMask++ {
			tr, log := newTestTracker(t)
			tr.EnterScope()
			want := 0
			for i := 0; i < n; i++ {
				name := string(rune('a' + i))
				if i%2 == 0 {
					require.NoError(t, tr.Bind(name, String(name)))
					if moveMask&(1<<i) != 0 {
						_, err := tr.MoveOut(name)
						require.NoError(t, err)
					} else {
						want++
					}
				} else {
					require.NoError(t, tr.Bind(name, Int(int64(i))))
				}
				tr.EnterScope()
			}
			for i := 0; i <= n; i++ {
				_, err := tr.ExitScope()
				require.NoError(t, err)
			}
			assert.Len(t, log.names, want, "n=%d mask=%b", n, moveMask)
		}
	}
}

func TestObservers_FanOut(t *testing.T) {
	var first, second []Op
	tr := New(WithObserver(Observers(
		ObserverFunc(func(ev Event) { first = append(first, ev.Op) }),
		nil,
		ObserverFunc(func(ev Event) { second = append(second, ev.Op) }),
	)))

	tr.EnterScope()
	_, err := tr.ExitScope()
	require.NoError(t, err)

	assert.Equal(t, []Op{OpEnter, OpExit}, first)
	assert.Equal(t, first, second)
}
