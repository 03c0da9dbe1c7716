package scenario

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/ownsim/pkg/ownership"
	"github.com/leapstack-labs/ownsim/pkg/ownscript"
	"golang.org/x/sync/errgroup"
)

// Options configures a scenario run.
type Options struct {
	Logger *slog.Logger
	// Observer, if set, receives every tracker event of the run.
	Observer ownership.Observer
}

// Result is the outcome of running one scenario.
type Result struct {
	Scenario *Scenario
	// Failure describes the first unmet expectation; empty if passed.
	Failure string
	// Step is the 1-based index of the failing step, 0 otherwise.
	Step     int
	Output   string
	Events   int
	Duration time.Duration
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool {
	return r.Failure == ""
}

// Run executes sc against a fresh tracker. It stops at the first unmet
// expectation.
func Run(ctx context.Context, sc *Scenario, opts Options) *Result {
	start := time.Now()
	res := &Result{Scenario: sc}
	defer func() { res.Duration = time.Since(start) }()

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("scenario", sc.Name)

	observe := func(ev ownership.Event) {
		res.Events++
		if opts.Observer != nil {
			opts.Observer.Observe(ev)
		}
	}

	tr := ownership.New(ownership.WithLogger(logger), ownership.WithObserver(ownership.ObserverFunc(observe)))
	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			res.Failure = err.Error()
			return res
		}
		if msg := runStep(tr, st); msg != "" {
			res.Step = i + 1
			res.Failure = fmt.Sprintf("step %d (%s): %s", i+1, st.describe(), msg)
			logger.Debug("scenario step failed", "step", i+1, "failure", msg)
			return res
		}
	}

	if sc.Script != nil {
		out, msg := runScript(ctx, sc.Script, logger, observe)
		res.Output = out
		if msg != "" {
			res.Failure = "script: " + msg
		}
	}
	return res
}

func (st Step) describe() string {
	if st.Name != "" {
		return st.Op + " " + st.Name
	}
	return st.Op
}

// runStep performs st and checks its expectations. It returns a failure
// message, or "" if the step met them.
func runStep(tr *ownership.Tracker, st Step) string {
	var (
		got      ownership.Value
		released []ownership.Release
		err      error
	)

	switch st.Op {
	case "enter":
		tr.EnterScope()
	case "frame":
		tr.EnterFrame(st.Label)
	case "exit":
		released, err = tr.ExitScope()
	case "read":
		got, err = tr.Read(st.Name)
	case "move":
		got, err = tr.MoveOut(st.Name)
	case "duplicate":
		got, err = tr.Duplicate(st.Name)
	case "drop":
		released, err = tr.Drop(st.Name)
	case "bind", "assign":
		// Check the target first so a failing step does not consume its
		// move: or clone: source.
		if st.Op == "bind" {
			err = tr.CheckBind(st.Name)
		} else {
			err = tr.CheckAssign(st.Name)
		}
		if err != nil {
			break
		}
		var v ownership.Value
		v, err = source(tr, st)
		if err != nil {
			break
		}
		if st.Op == "bind" {
			var opts []ownership.BindOption
			if st.Mut {
				opts = append(opts, ownership.Mutable())
			}
			err = tr.Bind(st.Name, v, opts...)
		} else {
			released, err = tr.Assign(st.Name, v)
		}
	}

	if code := ownership.Code(err); code != st.Error {
		switch {
		case st.Error == "":
			return fmt.Sprintf("unexpected error: %v", err)
		case err == nil:
			return fmt.Sprintf("expected error %s, got success", st.Error)
		default:
			return fmt.Sprintf("expected error %s, got %s (%v)", st.Error, code, err)
		}
	}
	if err != nil {
		return ""
	}

	if st.Want != "" && got.String() != st.Want {
		return fmt.Sprintf("want %s, got %s", st.Want, got)
	}
	if st.Released != nil {
		names := make([]string, len(released))
		for i, r := range released {
			names[i] = r.Name
		}
		if !slices.Equal(names, *st.Released) {
			return fmt.Sprintf("released %v, want %v", names, *st.Released)
		}
	}
	return ""
}

// source produces the value a bind or assign step stores.
func source(tr *ownership.Tracker, st Step) (ownership.Value, error) {
	switch {
	case st.Move != "":
		return tr.MoveOut(st.Move)
	case st.Clone != "":
		return tr.Duplicate(st.Clone)
	}
	v, err := ownscript.ParseValue(st.Value)
	if err != nil {
		return ownership.Value{}, fmt.Errorf("value %q: %w", st.Value, err)
	}
	return v, nil
}

func runScript(ctx context.Context, s *Script, logger *slog.Logger, observe func(ownership.Event)) (string, string) {
	var out bytes.Buffer
	tr := ownership.New(ownership.WithLogger(logger), ownership.WithObserver(ownership.ObserverFunc(observe)))
	in := ownscript.New(tr, ownscript.WithOutput(&out), ownscript.WithLogger(logger))

	err := in.RunSource(ctx, s.Source, "script")
	if code := ownership.Code(err); code != s.Error {
		if s.Error == "" {
			return out.String(), fmt.Sprintf("unexpected error: %v", err)
		}
		if err == nil {
			return out.String(), fmt.Sprintf("expected error %s, got success", s.Error)
		}
		return out.String(), fmt.Sprintf("expected error %s, got %s (%v)", s.Error, code, err)
	}

	if s.Output != "" && normalize(out.String()) != normalize(s.Output) {
		return out.String(), fmt.Sprintf("output mismatch\n--- want\n%s\n--- got\n%s", normalize(s.Output), normalize(out.String()))
	}
	return out.String(), ""
}

func normalize(s string) string {
	return strings.TrimRight(s, "\n")
}

// RunAll runs scenarios with at most concurrency in flight. Results keep
// the input order. The error is non-nil only if ctx ends early.
func RunAll(ctx context.Context, scenarios []*Scenario, concurrency int, opts Options) ([]*Result, error) {
	results := make([]*Result, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i, sc := range scenarios {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = Run(gctx, sc, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("scenario run interrupted: %w", err)
	}
	return results, nil
}
