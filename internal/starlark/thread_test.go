package starlark

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestThreadPool_Reuse(t *testing.T) {
	pool := NewThreadPool(2, 0)

	first := pool.Get("a.star", nil)
	require.NotNil(t, first)
	assert.Equal(t, "a.star", first.Name)

	pool.Put(first)
	assert.Equal(t, 1, pool.Idle())
	assert.Empty(t, first.Name)

	second := pool.Get("b.star", nil)
	assert.Same(t, first, second)
	assert.Equal(t, 0, pool.Idle())
	assert.Equal(t, "b.star", second.Name)
}

func TestThreadPool_Capacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		puts     int
		want     int
	}{
		{"below capacity", 3, 2, 2},
		{"at capacity", 2, 5, 2},
		{"default capacity", 0, 10, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewThreadPool(tt.capacity, 0)
			threads := make([]*starlark.Thread, tt.puts)
			for i := range threads {
				threads[i] = pool.Get("t", nil)
			}
			for _, th := range threads {
				pool.Put(th)
			}
			assert.Equal(t, tt.want, pool.Idle())
		})
	}
}

func TestThreadPool_Concurrent(t *testing.T) {
	pool := NewThreadPool(8, 0)
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Put(pool.Get("concurrent", nil))
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, pool.Idle(), 8)
}

func TestThreadPool_PrintRouting(t *testing.T) {
	pool := NewThreadPool(1, 0)

	var got []string
	thread := pool.Get("printer", func(msg string) { got = append(got, msg) })
	_, err := starlark.ExecFile(thread, "printer.star", `print("hello")`, nil) //nolint:staticcheck // SA1019
	require.NoError(t, err)

	pool.Put(thread)
	reused := pool.Get("quiet", nil)
	_, err = starlark.ExecFile(reused, "quiet.star", `print("ignored")`, nil) //nolint:staticcheck // SA1019
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, got)
}

func TestThreadPool_StepBudgetPerRun(t *testing.T) {
	pool := NewThreadPool(1, 5000)
	loop := `
def spin(n):
    for i in range(n):
        pass
spin(200)
`
	// Each run stays under the budget, so reuse must not accumulate steps
	// into a cancellation.
	for i := 0; i < 10; i++ {
		thread := pool.Get("loop.star", nil)
		_, err := starlark.ExecFile(thread, "loop.star", loop, nil) //nolint:staticcheck // SA1019
		require.NoError(t, err, "run %d", i)
		pool.Put(thread)
	}

	thread := pool.Get("runaway.star", nil)
	_, err := starlark.ExecFile(thread, "runaway.star", "def f():\n    for i in range(1000000):\n        pass\nf()\n", nil) //nolint:staticcheck // SA1019
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many steps")
}
