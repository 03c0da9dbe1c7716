package commands

import (
	"embed"
	"fmt"
	"strings"

	"github.com/leapstack-labs/ownsim/internal/cli/output"
	"github.com/spf13/cobra"
)

//go:embed demos/*.own
var demoFS embed.FS

// demoOrder is the order the walkthrough presents the demos in.
var demoOrder = []string{"ownership", "variables", "functions"}

// DemoOptions holds options for the demo command.
type DemoOptions struct {
	RunOptions
	Source bool
	All    bool
}

// NewDemoCommand creates the demo command.
func NewDemoCommand() *cobra.Command {
	opts := &DemoOptions{}

	cmd := &cobra.Command{
		Use:   "demo [name]",
		Short: "Run the built-in demonstration programs",
		Long: `Run the built-in ownscript programs that walk through ownership,
variables and functions.

Without a name the available demos are listed.`,
		Example: `  # List demos
  ownsim demo

  # Run one with its source and the values it released
  ownsim demo ownership --source --releases

  # Run them all
  ownsim demo --all`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: demoOrder,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Source, "source", false, "Print the program before running it")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Run every demo in order")
	cmd.Flags().BoolVar(&opts.Releases, "releases", false, "List released values after the run")
	cmd.Flags().BoolVar(&opts.Events, "events", false, "List every tracker event after the run")

	return cmd
}

func runDemo(cmd *cobra.Command, args []string, opts *DemoOptions) error {
	cc := NewCommandContext(cmd)

	switch {
	case opts.All:
		for _, name := range demoOrder {
			if err := runDemoProgram(cmd, cc, name, opts); err != nil {
				return err
			}
		}
		return nil
	case len(args) == 1:
		return runDemoProgram(cmd, cc, args[0], opts)
	default:
		return listDemos(cc.Renderer)
	}
}

func listDemos(r *output.Renderer) error {
	infos := make([]output.DemoInfo, 0, len(demoOrder))
	for _, name := range demoOrder {
		src, err := demoSource(name)
		if err != nil {
			return err
		}
		infos = append(infos, output.DemoInfo{Name: name, Description: demoDescription(src)})
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(infos)
	}
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{info.Name, info.Description})
	}
	r.Table([]string{"Demo", "Description"}, rows)
	r.Muted("run one with: ownsim demo <name>")
	return nil
}

func runDemoProgram(cmd *cobra.Command, cc *CommandContext, name string, opts *DemoOptions) error {
	ctx := cmd.Context()
	r := cc.Renderer

	src, err := demoSource(name)
	if err != nil {
		return err
	}
	file := "demos/" + name + ".own"

	if r.EffectiveMode() != output.ModeJSON {
		r.Header(2, output.Title(name))
		if opts.Source {
			if r.EffectiveMode() == output.ModeMarkdown {
				r.Println(output.FormatCode("rust", string(src)))
			} else {
				r.Println(strings.TrimRight(string(src), "\n"))
				r.Println()
			}
		}
	}

	rec, err := cc.startRecording(ctx, file)
	if err != nil {
		return err
	}
	ex, err := executeSource(ctx, KindOwnscript, file, src, execOptions{
		Logger:   cc.Logger,
		Observer: rec.observer(),
	})
	if err != nil {
		_ = rec.finish(ctx, err)
		return err
	}
	if err := rec.finish(ctx, ex.Err); err != nil {
		cc.Logger.Warn("failed to record trace", "error", err)
	}
	return renderExecution(r, file, ex, rec.sessionID(), &opts.RunOptions)
}

func demoSource(name string) ([]byte, error) {
	src, err := demoFS.ReadFile("demos/" + name + ".own")
	if err != nil {
		return nil, fmt.Errorf("unknown demo %q (available: %s)", name, strings.Join(demoOrder, ", "))
	}
	return src, nil
}

// demoDescription returns the text of the program's leading comment.
func demoDescription(src []byte) string {
	first, _, _ := strings.Cut(string(src), "\n")
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(first), "//"))
}
