package commands

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/ownsim/internal/cli/output"
	"github.com/leapstack-labs/ownsim/internal/scenario"
	"github.com/spf13/cobra"
)

// CheckOptions holds options for the check command.
type CheckOptions struct {
	Concurrency int
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	opts := &CheckOptions{}

	cmd := &cobra.Command{
		Use:   "check [paths...]",
		Short: "Run scenario files and report which expectations hold",
		Long: `Run every scenario in the given files and directories.

Directories are searched recursively for .yaml and .yml files. With no
arguments the scenarios directory is checked. Scenarios are independent
and run in parallel, up to check.concurrency at a time. The command
exits non-zero if any scenario fails.`,
		Example: `  # Check the scenarios directory
  ownsim check

  # Check specific files one at a time
  ownsim check moves.yaml scopes.yaml -j 1

  # Machine-readable results
  ownsim check scenarios -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Concurrency, "concurrency", "j", 0, "Scenarios to run at once (default check.concurrency)")

	return cmd
}

func runCheck(cmd *cobra.Command, paths []string, opts *CheckOptions) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()
	r := cc.Renderer

	if len(paths) == 0 {
		paths = []string{"scenarios"}
	}
	concurrency := cc.Cfg.Check.Concurrency
	if opts.Concurrency > 0 {
		concurrency = opts.Concurrency
	}

	scenarios, err := scenario.LoadPaths(paths)
	if err != nil {
		return err
	}
	if len(scenarios) == 0 {
		return fmt.Errorf("no scenarios found in %v", paths)
	}
	cc.Logger.Debug("checking scenarios", "count", len(scenarios), "concurrency", concurrency)

	rec, err := cc.startRecording(ctx, "check")
	if err != nil {
		return err
	}
	results, runErr := scenario.RunAll(ctx, scenarios, concurrency, scenario.Options{
		Logger:   cc.Logger,
		Observer: rec.observer(),
	})

	failed := 0
	for _, res := range results {
		if res != nil && !res.Passed() {
			failed++
		}
	}
	var checkErr error
	switch {
	case runErr != nil:
		checkErr = runErr
	case failed > 0:
		checkErr = fmt.Errorf("%d of %d scenarios failed", failed, len(results))
	}
	if err := rec.finish(ctx, checkErr); err != nil {
		cc.Logger.Warn("failed to record trace", "error", err)
	}
	if runErr != nil {
		return runErr
	}

	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(output.CheckOutput{
			Results: scenarioResults(results),
			Passed:  len(results) - failed,
			Failed:  failed,
		}); err != nil {
			return err
		}
		return checkErr
	}

	renderResults(r, results)
	if failed == 0 {
		r.Success(fmt.Sprintf("%d scenarios passed", len(results)))
	}
	if id := rec.sessionID(); id != "" {
		r.Muted("recorded session " + id)
	}
	return checkErr
}

// renderResults writes a results table followed by the failure details.
func renderResults(r *output.Renderer, results []*scenario.Result) {
	rows := make([][]string, 0, len(results))
	var failures []*scenario.Result
	for _, res := range results {
		status := "pass"
		if !res.Passed() {
			status = "FAIL"
			failures = append(failures, res)
		}
		rows = append(rows, []string{
			res.Scenario.Name,
			res.Scenario.File,
			status,
			strconv.Itoa(res.Events),
			formatDuration(res.Duration),
		})
	}
	r.Table([]string{"Scenario", "File", "Result", "Events", "Time"}, rows)

	if len(failures) == 0 {
		return
	}
	r.Header(3, "Failures")
	for _, res := range failures {
		r.StatusLine(res.Scenario.Name, "fail", res.Failure)
	}
}
