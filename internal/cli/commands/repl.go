package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/ownsim/internal/cli/output"
	"github.com/leapstack-labs/ownsim/pkg/ownership"
	"github.com/leapstack-labs/ownsim/pkg/ownscript"
	"github.com/spf13/cobra"
)

const continuationPrompt = "  ...> "

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive ownscript session",
		Long: `Start an interactive ownscript session.

Bindings and functions persist between inputs. An input ending in an
expression without a semicolon prints its value. Inputs with unbalanced
brackets continue on the next line.

Type .help for the dot-commands.`,
		Args: cobra.NoArgs,
		RunE: runREPL,
	}
}

func runREPL(cmd *cobra.Command, _ []string) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	rec, err := cc.startRecording(ctx, "repl")
	if err != nil {
		return err
	}
	repl := newREPL(cc.Renderer, cc.Logger, rec.observer())
	defer func() {
		if err := rec.finish(ctx, nil); err != nil {
			cc.Logger.Warn("failed to record trace", "error", err)
		}
	}()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cc.Cfg.REPL.Prompt,
		HistoryFile:     cc.Cfg.REPL.HistoryFile,
		AutoComplete:    repl.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ownsim REPL")
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	return repl.loop(ctx, rl, cc.Cfg.REPL.Prompt)
}

// lineReader is the part of *readline.Instance the loop uses.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(string)
}

// repl is one interactive session over a tracker.
type repl struct {
	r        *output.Renderer
	logger   *slog.Logger
	tracker  *ownership.Tracker
	session  *ownscript.Session
	released []ownership.Release
}

func newREPL(r *output.Renderer, logger *slog.Logger, observer ownership.Observer) *repl {
	p := &repl{r: r, logger: logger}
	p.tracker = ownership.New(
		ownership.WithLogger(logger),
		ownership.WithObserver(ownership.Observers(observer)),
		ownership.WithReleaseFunc(func(rel ownership.Release) {
			p.released = append(p.released, rel)
		}),
	)
	p.open()
	return p
}

func (p *repl) open() {
	in := ownscript.New(p.tracker, ownscript.WithOutput(p.r.Writer()), ownscript.WithLogger(p.logger))
	p.session = in.NewSession("repl")
}

// loop reads inputs until EOF or .quit. Lines are collected while the
// input has unbalanced brackets.
func (p *repl) loop(ctx context.Context, rl lineReader, prompt string) error {
	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt(prompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		trimmed := strings.TrimSpace(line)
		if buf.Len() == 0 {
			if trimmed == "" {
				continue
			}
			if strings.HasPrefix(trimmed, ".") {
				if quit := p.dotCommand(trimmed); quit {
					break
				}
				continue
			}
		}

		buf.WriteString(line)
		buf.WriteString("\n")
		if ownscript.NeedsMore(buf.String()) {
			rl.SetPrompt(continuationPrompt)
			continue
		}
		rl.SetPrompt(prompt)

		p.eval(ctx, buf.String())
		buf.Reset()
	}

	_, err := p.session.Close()
	return err
}

// eval runs one input and prints its value, released values and errors.
func (p *repl) eval(ctx context.Context, src string) {
	p.released = nil
	v, ok, err := p.session.Exec(ctx, src)
	if err != nil {
		p.r.Error(err.Error())
	} else if ok {
		p.r.Println(v.String())
	}
	for _, rel := range p.released {
		p.r.Muted(fmt.Sprintf("released %s: %s (%s)", rel.Name, rel.Value, rel.Reason))
	}
}

// dotCommand handles a dot-command and reports whether to quit.
func (p *repl) dotCommand(line string) bool {
	command := strings.ToLower(strings.Fields(line)[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(p.r.Writer())

	case ".scopes":
		p.r.Table([]string{"Depth", "Scope", "Name", "Value", "State", "Mut"}, scopeRows(p.session.Scopes()))

	case ".pending":
		pending := p.tracker.Pending()
		rows := make([][]string, 0, len(pending))
		for _, v := range pending {
			rows = append(rows, []string{v.String(), v.Type})
		}
		p.r.Table([]string{"Value", "Type"}, rows)

	case ".funcs":
		funcs := p.session.Interpreter().Funcs()
		if len(funcs) == 0 {
			p.r.Muted("(none)")
		}
		for _, name := range funcs {
			p.r.Println("fn " + name)
		}

	case ".reset":
		p.tracker.Reset()
		p.open()
		p.r.Muted("session reset")

	default:
		p.r.Error(fmt.Sprintf("unknown command: %s (type .help for commands)", command))
	}
	return false
}

func scopeRows(scopes []ownership.ScopeView) [][]string {
	var rows [][]string
	for _, sc := range scopes {
		label := "block"
		if sc.Frame {
			label = "fn " + sc.Label
		}
		if len(sc.Bindings) == 0 {
			rows = append(rows, []string{strconv.Itoa(sc.Depth), label, "", "", "", ""})
			continue
		}
		for _, b := range sc.Bindings {
			mut := ""
			if b.Mutable {
				mut = "mut"
			}
			rows = append(rows, []string{strconv.Itoa(sc.Depth), label, b.Name, b.Value.String(), b.State.String(), mut})
		}
	}
	return rows
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help           Show this help message
  .scopes         Show the scope stack and every binding
  .pending        Show values created but not yet owned
  .funcs          List declared functions
  .reset          Discard all bindings and functions
  .quit / .exit   Exit the REPL

Tips:
  - A trailing expression without ';' prints its value
  - Unbalanced brackets continue the input on the next line
  - Use arrow keys to navigate history
`
	_, _ = fmt.Fprintln(w, help)
}

// completer offers dot-commands, keywords and declared functions.
func (p *repl) completer() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, word := range []string{"let", "let mut", "fn", "return", "const", "println!", "String::from", "drop"} {
		items = append(items, readline.PcItem(word))
	}
	items = append(items, readline.PcItemDynamic(func(string) []string {
		return p.session.Interpreter().Funcs()
	}))
	for _, dot := range []string{".help", ".scopes", ".pending", ".funcs", ".reset", ".quit", ".exit"} {
		items = append(items, readline.PcItem(dot))
	}
	return readline.NewPrefixCompleter(items...)
}
