package commands

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"

	"github.com/leapstack-labs/ownsim/internal/testutil"
)

func TestWatchLoop_Debounces(t *testing.T) {
	target := filepath.Join(t.TempDir(), "prog.own")
	other := filepath.Join(filepath.Dir(target), "other.own")

	events := make(chan fsnotify.Event)
	errs := make(chan error)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, logs := testutil.NewCaptureLogger(slog.LevelWarn)
	var runs atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		watchLoop(ctx, events, errs, target, 20*time.Millisecond, logger, func() {
			runs.Add(1)
		})
	}()

	// A burst of writes is one run; other files and chmod are ignored.
	events <- fsnotify.Event{Name: target, Op: fsnotify.Write}
	events <- fsnotify.Event{Name: target, Op: fsnotify.Write}
	events <- fsnotify.Event{Name: other, Op: fsnotify.Write}
	events <- fsnotify.Event{Name: target, Op: fsnotify.Chmod}
	errs <- assert.AnError
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	events <- fsnotify.Event{Name: target, Op: fsnotify.Create}
	assert.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch loop did not stop after cancel")
	}
	assert.Equal(t, int32(2), runs.Load())
	assert.Contains(t, logs.String(), "watcher error")
}

func TestWatchLoop_StopsWhenEventsClose(t *testing.T) {
	events := make(chan fsnotify.Event)
	close(events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		watchLoop(context.Background(), events, nil, "x", time.Millisecond, testutil.NewTestLogger(t), func() {
			t.Error("rerun called")
		})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch loop did not stop after the event channel closed")
	}
}

func TestWatchCommand_RejectsUnknownFile(t *testing.T) {
	_, _, err := execCommand(t, NewWatchCommand(), "notes.txt")
	assert.ErrorContains(t, err, "unknown file type")
}
