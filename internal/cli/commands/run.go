package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/ownsim/internal/cli/output"
	"github.com/leapstack-labs/ownsim/internal/scenario"
	"github.com/leapstack-labs/ownsim/pkg/ownership"
	"github.com/spf13/cobra"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Releases bool
	Events   bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run an ownscript, Starlark or scenario file",
		Long: `Run a program against a fresh ownership tracker.

The file type selects the runner:
  .own, .rs     ownscript program
  .star         Starlark script driving the tracker directly
  .yaml, .yml   scenario file with expected outcomes

With --record (or record: true in ownsim.yaml) every tracker event is
stored in the trace database for later inspection with 'ownsim trace'.`,
		Example: `  # Run a program
  ownsim run examples/move.own

  # Show what was released and when
  ownsim run examples/move.own --releases

  # Record the run and print the full event log
  ownsim run examples/move.star --record --events

  # JSON output for scripting
  ownsim run scenarios/moves.yaml -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Releases, "releases", false, "List released values after the run")
	cmd.Flags().BoolVar(&opts.Events, "events", false, "List every tracker event after the run")

	return cmd
}

func runRun(cmd *cobra.Command, path string, opts *RunOptions) error {
	cc := NewCommandContext(cmd)
	return runFile(cmd.Context(), cc, path, opts)
}

// runFile executes path, records it when enabled and renders the result.
func runFile(ctx context.Context, cc *CommandContext, path string, opts *RunOptions) error {
	rec, err := cc.startRecording(ctx, path)
	if err != nil {
		return err
	}

	ex, err := execute(ctx, path, execOptions{
		Logger:      cc.Logger,
		Observer:    rec.observer(),
		Concurrency: cc.Cfg.Check.Concurrency,
		MaxSteps:    cc.Cfg.Starlark.MaxSteps,
	})
	if err != nil {
		_ = rec.finish(ctx, err)
		return err
	}
	if err := rec.finish(ctx, ex.Err); err != nil {
		cc.Logger.Warn("failed to record trace", "error", err)
	}

	return renderExecution(cc.Renderer, path, ex, rec.sessionID(), opts)
}

// renderExecution writes ex in the renderer's mode and returns the
// program's error, if any.
func renderExecution(r *output.Renderer, path string, ex *execution, session string, opts *RunOptions) error {
	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(toRunOutput(path, ex, session)); err != nil {
			return err
		}
		return ex.Err
	}

	if ex.Output != "" {
		_, _ = fmt.Fprint(r.Writer(), ex.Output)
	}
	if len(ex.Results) > 0 {
		renderResults(r, ex.Results)
	}
	if opts != nil && opts.Releases && ex.Kind != KindScenario {
		r.Header(3, "Released")
		r.Table([]string{"Name", "Value", "Reason", "Depth"}, releaseRows(ex.Released))
	}
	if opts != nil && opts.Events {
		r.Header(3, "Events")
		r.Table([]string{"Seq", "Op", "Name", "Depth", "Value", "Result"}, eventRows(ex.Events))
	}
	if session != "" {
		r.Muted("recorded session " + session)
	}

	if ex.Err != nil {
		return fmt.Errorf("%s: %w", path, ex.Err)
	}
	return nil
}

func toRunOutput(path string, ex *execution, session string) output.RunOutput {
	out := output.RunOutput{
		File:     path,
		Kind:     string(ex.Kind),
		Output:   ex.Output,
		Released: make([]output.ReleaseOutput, 0, len(ex.Released)),
		Code:     ex.Code(),
		Session:  session,
		Results:  scenarioResults(ex.Results),
	}
	for _, rel := range ex.Released {
		out.Released = append(out.Released, output.ReleaseOutput{
			Name:   rel.Name,
			Value:  rel.Value.String(),
			Reason: string(rel.Reason),
		})
	}
	if ex.Err != nil {
		out.Error = ex.Err.Error()
	}
	return out
}

func releaseRows(released []ownership.Release) [][]string {
	rows := make([][]string, 0, len(released))
	for _, rel := range released {
		rows = append(rows, []string{rel.Name, rel.Value.String(), string(rel.Reason), strconv.Itoa(rel.Depth)})
	}
	return rows
}

func eventRows(events []ownership.Event) [][]string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		value := ""
		if ev.Value.Type != "" {
			value = ev.Value.String()
		}
		rows = append(rows, []string{
			strconv.Itoa(ev.Seq),
			string(ev.Op),
			ev.Name,
			strconv.Itoa(ev.Depth),
			value,
			eventResult(ownership.Code(ev.Err), releaseNames(ev.Released)),
		})
	}
	return rows
}

func releaseNames(released []ownership.Release) []string {
	names := make([]string, len(released))
	for i, rel := range released {
		names[i] = rel.Name
	}
	return names
}

// eventResult summarizes an event outcome: the error code, the released
// names, or "ok".
func eventResult(code string, released []string) string {
	switch {
	case code != "":
		return code
	case len(released) > 0:
		return "released " + strings.Join(released, ", ")
	default:
		return "ok"
	}
}

func scenarioResults(results []*scenario.Result) []output.ScenarioResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]output.ScenarioResult, 0, len(results))
	for _, res := range results {
		out = append(out, output.ScenarioResult{
			Name:     res.Scenario.Name,
			File:     res.Scenario.File,
			Passed:   res.Passed(),
			Failure:  res.Failure,
			Events:   res.Events,
			Duration: res.Duration,
		})
	}
	return out
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.Round(time.Microsecond).String()
	}
	return d.Round(time.Millisecond).String()
}
