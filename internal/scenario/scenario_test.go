package scenario

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/ownsim/pkg/ownership"
)

func TestLoadDir(t *testing.T) {
	scenarios, err := LoadDir("testdata")
	require.NoError(t, err)

	var names []string
	for _, sc := range scenarios {
		names = append(names, sc.Name)
	}
	assert.Equal(t, []string{"move-then-use", "copy-types", "nested-scopes", "clone-script"}, names)
	assert.Equal(t, filepath.Join("testdata", "moves.yaml"), scenarios[0].File)
}

func TestRun_Testdata(t *testing.T) {
	scenarios, err := LoadDir("testdata")
	require.NoError(t, err)

	for _, sc := range scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			res := Run(context.Background(), sc, Options{})
			assert.True(t, res.Passed(), res.Failure)
			assert.Positive(t, res.Events)
		})
	}
}

func TestParse_DefaultNames(t *testing.T) {
	data := []byte(`
steps:
  - op: enter
---
steps:
  - op: enter
`)
	scs, err := Parse(data, "dir/basic.yaml")
	require.NoError(t, err)
	require.Len(t, scs, 2)
	assert.Equal(t, "basic", scs[0].Name)
	assert.Equal(t, "basic#2", scs[1].Name)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		step    int
		message string
	}{
		{"unknown field", "steps:\n  - op: enter\n    colour: red\n", 0, "invalid YAML"},
		{"empty", "name: nothing\n", 0, "no steps and no script"},
		{"unknown op", "steps:\n  - op: borrow\n    name: x\n", 1, "unknown op"},
		{"bind without value", "steps:\n  - op: bind\n    name: x\n", 1, "exactly one of"},
		{"two sources", "steps:\n  - op: bind\n    name: x\n    value: \"1\"\n    move: y\n", 1, "exactly one of"},
		{"read without name", "steps:\n  - op: enter\n  - op: read\n", 2, "needs a name"},
		{"want on bind", "steps:\n  - op: bind\n    name: x\n    value: \"1\"\n    want: \"1\"\n", 1, "want is only checked"},
		{"released on read", "steps:\n  - op: read\n    name: x\n    released: []\n", 1, "released is only checked"},
		{"empty script", "script:\n  source: \"  \"\n", 0, "script has no source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "bad.yaml")
			require.Error(t, err)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.step, ve.Step)
			assert.Contains(t, ve.Error(), tt.message)
			assert.Contains(t, ve.Error(), "bad.yaml")
		})
	}
}

func TestRun_ReportsFirstFailure(t *testing.T) {
	scs, err := Parse([]byte(`
name: wrong
steps:
  - op: enter
  - op: bind
    name: s
    value: String::from("a")
  - op: read
    name: s
    want: String("b")
  - op: read
    name: missing
`), "wrong.yaml")
	require.NoError(t, err)

	res := Run(context.Background(), scs[0], Options{})
	assert.False(t, res.Passed())
	assert.Equal(t, 3, res.Step)
	assert.Contains(t, res.Failure, `want String("b"), got String("a")`)
}

func TestRun_ErrorExpectations(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		passed  bool
		failure string
	}{
		{
			name:   "expected error matches",
			yaml:   "steps:\n  - op: exit\n    error: ScopeUnderflow\n",
			passed: true,
		},
		{
			name:    "unexpected error",
			yaml:    "steps:\n  - op: read\n    name: x\n",
			failure: "unexpected error",
		},
		{
			name:    "missing error",
			yaml:    "steps:\n  - op: enter\n    error: NoScope\n",
			failure: "expected error NoScope, got success",
		},
		{
			name:    "wrong error",
			yaml:    "steps:\n  - op: bind\n    name: x\n    value: \"1\"\n    error: Immutable\n",
			failure: "expected error Immutable, got NoScope",
		},
		{
			name:    "bad value",
			yaml:    "steps:\n  - op: enter\n  - op: bind\n    name: x\n    value: foo(1)\n",
			failure: "not a constant value",
		},
		{
			name:    "released mismatch",
			yaml:    "steps:\n  - op: enter\n  - op: bind\n    name: s\n    value: String::new()\n  - op: exit\n    released: []\n",
			failure: "released [s], want []",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scs, err := Parse([]byte(tt.yaml), "case.yaml")
			require.NoError(t, err)

			res := Run(context.Background(), scs[0], Options{})
			assert.Equal(t, tt.passed, res.Passed(), res.Failure)
			if tt.failure != "" {
				assert.Contains(t, res.Failure, tt.failure)
			}
		})
	}
}

func TestRun_FailedTransferKeepsSource(t *testing.T) {
	src := `name: immutable target
steps:
  - op: enter
  - op: bind
    name: s
    value: String::from("x")
  - op: bind
    name: t
    value: String::from("y")
  - op: assign
    name: t
    move: s
    error: Immutable
  - op: read
    name: s
    want: String("x")
  - op: assign
    name: missing
    clone: s
    error: UnknownName
  - op: exit
    released: [t, s]
`
	scs, err := Parse([]byte(src), "transfer.yaml")
	require.NoError(t, err)

	res := Run(context.Background(), scs[0], Options{})
	assert.True(t, res.Passed(), res.Failure)
}

func TestRun_Script(t *testing.T) {
	scs, err := Parse([]byte(`
name: moved
script:
  source: |
    let a = String::from("x");
    let b = a;
    println!("{}", a);
  error: UseAfterMove
`), "moved.yaml")
	require.NoError(t, err)
	res := Run(context.Background(), scs[0], Options{})
	assert.True(t, res.Passed(), res.Failure)

	scs[0].Script.Error = ""
	res = Run(context.Background(), scs[0], Options{})
	assert.False(t, res.Passed())
	assert.Contains(t, res.Failure, "script: unexpected error")

	scs, err = Parse([]byte(`
script:
  source: println!("hi");
  output: bye
`), "out.yaml")
	require.NoError(t, err)
	res = Run(context.Background(), scs[0], Options{})
	assert.Contains(t, res.Failure, "output mismatch")
	assert.Equal(t, "hi\n", res.Output)
}

func TestRun_Observer(t *testing.T) {
	scs, err := Load(filepath.Join("testdata", "moves.yaml"))
	require.NoError(t, err)

	var ops []ownership.Op
	res := Run(context.Background(), scs[0], Options{
		Observer: ownership.ObserverFunc(func(ev ownership.Event) { ops = append(ops, ev.Op) }),
	})
	require.True(t, res.Passed(), res.Failure)
	assert.Equal(t, []ownership.Op{
		ownership.OpEnter, ownership.OpBind, ownership.OpMove, ownership.OpBind,
		ownership.OpRead, ownership.OpRead, ownership.OpExit,
	}, ops)
	assert.Equal(t, len(ops), res.Events)
}

func TestRunAll(t *testing.T) {
	scenarios, err := LoadDir("testdata")
	require.NoError(t, err)

	results, err := RunAll(context.Background(), scenarios, 2, Options{})
	require.NoError(t, err)
	require.Len(t, results, len(scenarios))
	for i, res := range results {
		assert.Same(t, scenarios[i], res.Scenario)
		assert.True(t, res.Passed(), res.Failure)
	}
}

func TestRunAll_Cancelled(t *testing.T) {
	scenarios, err := LoadDir("testdata")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = RunAll(ctx, scenarios, 1, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadPaths(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, name string) string {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte("name: "+name+"\nsteps:\n  - op: enter\n"), 0o600))
		return path
	}
	write(filepath.Join("suite", "b.yml"), "b")
	write(filepath.Join("suite", "nested", "a.yaml"), "a")
	write(filepath.Join("suite", ".cache", "skip.yaml"), "hidden")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "suite", "notes.txt"), []byte("ignored"), 0o600))
	single := write("single.yaml", "single")

	scenarios, err := LoadPaths([]string{single, filepath.Join(dir, "suite")})
	require.NoError(t, err)

	var names []string
	for _, sc := range scenarios {
		names = append(names, sc.Name)
	}
	assert.Equal(t, []string{"single", "b", "a"}, names)

	_, err = LoadPaths([]string{filepath.Join(dir, "missing")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
