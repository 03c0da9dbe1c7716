package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/leapstack-labs/ownsim/internal/scenario"
	"github.com/leapstack-labs/ownsim/internal/starlark"
	"github.com/leapstack-labs/ownsim/pkg/ownership"
	"github.com/leapstack-labs/ownsim/pkg/ownscript"
)

// ErrScenariosFailed is returned when a scenario file ran but at least one
// of its scenarios did not meet its expectations.
var ErrScenariosFailed = errors.New("scenarios failed")

// Kind is the kind of program a file holds.
type Kind string

// Kind constants.
const (
	KindOwnscript Kind = "ownscript"
	KindStarlark  Kind = "starlark"
	KindScenario  Kind = "scenario"
)

// detectKind picks the runner for path from its extension.
func detectKind(path string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".own", ".rs":
		return KindOwnscript, nil
	case ".star":
		return KindStarlark, nil
	case ".yaml", ".yml":
		return KindScenario, nil
	default:
		return "", fmt.Errorf("cannot run %s: unknown file type (want .own, .star, .yaml or .yml)", path)
	}
}

// execution is the outcome of running one file.
type execution struct {
	Kind     Kind
	Output   string
	Released []ownership.Release
	Events   []ownership.Event
	Results  []*scenario.Result
	Err      error
}

// Code returns the error code of a failed run.
func (e *execution) Code() string {
	return errorCode(e.Err)
}

// execOptions configures execute.
type execOptions struct {
	Logger      *slog.Logger
	Observer    ownership.Observer
	Concurrency int
	MaxSteps    uint64
}

// eventLog collects events; scenario runs report from several goroutines.
type eventLog struct {
	mu     sync.Mutex
	events []ownership.Event
}

func (l *eventLog) Observe(ev ownership.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

// execute reads and runs the file at path against a fresh tracker.
func execute(ctx context.Context, path string, opts execOptions) (*execution, error) {
	kind, err := detectKind(path)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path) //nolint:gosec // G304: path is a user-supplied program
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return executeSource(ctx, kind, path, src, opts)
}

// executeSource runs src as a program of the given kind. Errors loading
// scenarios are returned directly; errors raised by the program are
// reported in the execution.
func executeSource(ctx context.Context, kind Kind, file string, src []byte, opts execOptions) (*execution, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	events := &eventLog{}
	observer := ownership.Observers(events, opts.Observer)
	ex := &execution{Kind: kind}
	var out bytes.Buffer

	switch kind {
	case KindScenario:
		scenarios, err := scenario.Parse(src, file)
		if err != nil {
			return nil, err
		}
		results, err := scenario.RunAll(ctx, scenarios, opts.Concurrency, scenario.Options{
			Logger:   logger,
			Observer: observer,
		})
		if err != nil {
			return nil, err
		}
		ex.Results = results
		failed := 0
		for _, res := range results {
			out.WriteString(res.Output)
			if !res.Passed() {
				failed++
			}
		}
		if failed > 0 {
			ex.Err = fmt.Errorf("%w: %d of %d", ErrScenariosFailed, failed, len(results))
		}

	case KindStarlark, KindOwnscript:
		tr := ownership.New(
			ownership.WithLogger(logger),
			ownership.WithObserver(observer),
			ownership.WithReleaseFunc(func(r ownership.Release) {
				ex.Released = append(ex.Released, r)
			}),
		)
		if kind == KindStarlark {
			host := starlark.NewHost(tr,
				starlark.WithOutput(&out),
				starlark.WithLogger(logger),
				starlark.WithMaxSteps(opts.MaxSteps),
			)
			_, ex.Err = host.Exec(ctx, file, src)
		} else {
			in := ownscript.New(tr, ownscript.WithOutput(&out), ownscript.WithLogger(logger))
			ex.Err = in.RunSource(ctx, string(src), file)
		}

	default:
		return nil, fmt.Errorf("unknown program kind %q", kind)
	}

	ex.Output = out.String()
	ex.Events = events.events
	return ex, nil
}

// errorCode returns the tracker error code carried by err, if any.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var se *starlark.ScriptError
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, ErrScenariosFailed) {
		return ""
	}
	if code := ownership.Code(err); code != "Error" {
		return code
	}
	return ""
}
