package starlark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/leapstack-labs/ownsim/pkg/ownership"
	"go.starlark.net/starlark"
)

// Host runs Starlark scripts against one Tracker. It is not safe for
// concurrent use; give each goroutine its own Host.
type Host struct {
	tracker *ownership.Tracker
	out     io.Writer
	logger  *slog.Logger
	pool     *ThreadPool
	maxSteps uint64
	lastErr  error
}

// HostOption is a functional option for configuring a Host.
type HostOption func(*Host)

// WithOutput sets where script print() output goes.
func WithOutput(w io.Writer) HostOption {
	return func(h *Host) {
		h.out = w
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) HostOption {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithThreadPool shares a thread pool between hosts.
func WithThreadPool(pool *ThreadPool) HostOption {
	return func(h *Host) {
		h.pool = pool
	}
}

// WithMaxSteps limits each script run to n Starlark steps; 0 means
// unlimited. Ignored when a thread pool is shared.
func WithMaxSteps(n uint64) HostOption {
	return func(h *Host) {
		h.maxSteps = n
	}
}

// NewHost creates a Host driving tracker.
func NewHost(tracker *ownership.Tracker, opts ...HostOption) *Host {
	h := &Host{
		tracker:  tracker,
		out:      io.Discard,
		logger:   slog.New(slog.DiscardHandler),
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.pool == nil {
		h.pool = NewThreadPool(1, h.maxSteps)
	}
	return h
}

// Tracker returns the tracker scripts drive.
func (h *Host) Tracker() *ownership.Tracker {
	return h.tracker
}

// RunFile reads and executes the script at path.
func (h *Host) RunFile(ctx context.Context, path string) error {
	src, err := os.ReadFile(path) //nolint:gosec // G304: path is a user-supplied script
	if err != nil {
		return &ScriptError{File: path, Message: "failed to read file", Err: err}
	}
	_, err = h.Exec(ctx, path, src)
	return err
}

// Exec executes src as a Starlark module and returns its globals. The run
// is cancelled when ctx is done.
func (h *Host) Exec(ctx context.Context, filename string, src []byte) (_ starlark.StringDict, err error) {
	thread := h.pool.Get(filename, func(msg string) {
		fmt.Fprintln(h.out, msg)
	})
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer func() {
		if stop() && err == nil {
			h.pool.Put(thread)
		}
	}()

	h.lastErr = nil
	h.logger.Debug("executing script", "file", filename)
	globals, err := starlark.ExecFile(thread, filename, src, h.Predeclared()) //nolint:staticcheck // SA1019: will migrate to ExecFileOptions later
	if err != nil {
		se := &ScriptError{File: filename, Message: err.Error(), Err: err}
		if evalErr, ok := err.(*starlark.EvalError); ok {
			se.Message = evalErr.Msg
			se.Backtrace = evalErr.Backtrace()
		}
		if h.lastErr != nil {
			se.Code = ownership.Code(h.lastErr)
		}
		return nil, se
	}
	return globals, nil
}

// ScriptError reports a failed script. Code is the tracker error code of
// the last failing tracker operation, if any.
type ScriptError struct {
	File      string
	Message   string
	Code      string
	Backtrace string
	Err       error
}

func (e *ScriptError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s [%s]", e.File, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}
