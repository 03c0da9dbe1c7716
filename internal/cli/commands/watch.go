package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	RunOptions
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Re-run a file whenever it changes",
		Long: `Run a file, then run it again each time it is saved.

Editors often write a file in several steps; changes are debounced by
watch.debounce (or --debounce) before the file is run again. Press
Ctrl+C to stop.`,
		Example: `  ownsim watch examples/move.own
  ownsim watch scenarios/moves.yaml --debounce 500ms`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args[0], opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 0, "Delay before re-running after a change (default watch.debounce)")
	cmd.Flags().BoolVar(&opts.Releases, "releases", false, "List released values after each run")
	cmd.Flags().BoolVar(&opts.Events, "events", false, "List every tracker event after each run")

	return cmd
}

func runWatch(cmd *cobra.Command, path string, opts *WatchOptions) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()
	r := cc.Renderer

	if _, err := detectKind(path); err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	debounce := cc.Cfg.Watch.Debounce
	if cmd.Flags().Changed("debounce") {
		debounce = opts.Debounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: editors that save by rename replace the file.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	rerun := func() {
		r.Header(2, fmt.Sprintf("%s (%s)", path, time.Now().Format("15:04:05")))
		if err := runFile(ctx, cc, path, &opts.RunOptions); err != nil {
			r.Error(err.Error())
		}
	}

	rerun()
	r.Muted("watching for changes, press Ctrl+C to stop")
	watchLoop(ctx, watcher.Events, watcher.Errors, abs, debounce, cc.Logger, rerun)
	return nil
}

// watchLoop calls rerun once per burst of changes to target, after
// debounce has passed without another change. It returns when ctx is done
// or the event channel closes.
func watchLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, target string, debounce time.Duration, logger *slog.Logger, rerun func()) {
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("file changed", "file", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			rerun()

		case err, ok := <-errs:
			if !ok {
				return
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}
