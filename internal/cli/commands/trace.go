package commands

import (
	"strconv"

	"github.com/leapstack-labs/ownsim/internal/cli/output"
	"github.com/leapstack-labs/ownsim/internal/trace"
	"github.com/spf13/cobra"
)

// NewTraceCommand creates the trace command and its subcommands.
func NewTraceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded sessions",
		Long: `Inspect sessions recorded with --record.

Sessions are stored in the trace database (trace_path in ownsim.yaml,
default .ownsim/trace.db).`,
	}

	cmd.AddCommand(newTraceListCommand())
	cmd.AddCommand(newTraceShowCommand())
	return cmd
}

func newTraceListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContext(cmd)
			store, err := openTraceStore(cc.Cfg, cc.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sessions, err := store.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return renderSessions(cc.Renderer, sessions)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions to list (0 for all)")
	return cmd
}

func newTraceShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a recorded session and its events",
		Long: `Show a recorded session and every tracker event it recorded.

A unique prefix of the session ID is enough.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := NewCommandContext(cmd)
			ctx := cmd.Context()
			store, err := openTraceStore(cc.Cfg, cc.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sess, err := store.GetSession(ctx, args[0])
			if err != nil {
				return err
			}
			events, err := store.GetEvents(ctx, sess.ID)
			if err != nil {
				return err
			}
			return renderTrace(cc.Renderer, sess, events)
		},
	}
}

func toSessionOutput(s *trace.Session) output.SessionOutput {
	return output.SessionOutput{
		ID:          s.ID,
		Source:      s.Source,
		Status:      string(s.Status),
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
		Error:       s.Error,
		Events:      s.Events,
	}
}

func renderSessions(r *output.Renderer, sessions []*trace.Session) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]output.SessionOutput, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, toSessionOutput(s))
		}
		return r.JSON(out)
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			shortID(s.ID),
			s.Source,
			string(s.Status),
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			strconv.Itoa(s.Events),
		})
	}
	r.Table([]string{"ID", "Source", "Status", "Started", "Events"}, rows)
	return nil
}

func renderTrace(r *output.Renderer, sess *trace.Session, events []trace.EventRecord) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := output.TraceOutput{
			Session: toSessionOutput(sess),
			Events:  make([]output.EventOutput, 0, len(events)),
		}
		for _, ev := range events {
			out.Events = append(out.Events, output.EventOutput{
				Seq:      ev.Seq,
				Op:       ev.Op,
				Name:     ev.Name,
				Depth:    ev.Depth,
				Value:    ev.Value,
				Code:     ev.Code,
				Message:  ev.Message,
				Released: ev.Released,
			})
		}
		return r.JSON(out)
	}

	r.Header(2, "Session "+sess.ID)
	details := [][2]string{
		{"Source", sess.Source},
		{"Status", string(sess.Status)},
		{"Started", sess.StartedAt.Local().Format("2006-01-02 15:04:05")},
	}
	if sess.CompletedAt != nil {
		details = append(details, [2]string{"Duration", formatDuration(sess.Duration())})
	}
	if sess.Error != "" {
		details = append(details, [2]string{"Error", sess.Error})
	}
	for _, kv := range details {
		if r.EffectiveMode() == output.ModeMarkdown {
			r.Println(output.FormatKeyValue(kv[0], kv[1]))
		} else {
			r.Printf("%-9s %s\n", kv[0]+":", kv[1])
		}
	}
	r.Println()

	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			strconv.Itoa(ev.Seq), ev.Op, ev.Name, strconv.Itoa(ev.Depth), ev.Value,
			eventResult(ev.Code, ev.Released),
		})
	}
	r.Table([]string{"Seq", "Op", "Name", "Depth", "Value", "Result"}, rows)
	return nil
}

// shortID abbreviates a session ID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
