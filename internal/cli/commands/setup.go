package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/ownsim/internal/cli/config"
	"github.com/leapstack-labs/ownsim/internal/cli/output"
	"github.com/leapstack-labs/ownsim/internal/trace"
	"github.com/leapstack-labs/ownsim/pkg/ownership"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext for cmd.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, or the defaults when the
// command runs without the root command (as in tests).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return config.Default()
}

// recording is an open trace session. A nil *recording records nothing.
type recording struct {
	store    *trace.Store
	recorder *trace.Recorder
}

// startRecording opens the trace store and a session for source when
// recording is enabled.
func (c *CommandContext) startRecording(ctx context.Context, source string) (*recording, error) {
	if !c.Cfg.Record {
		return nil, nil
	}

	store, err := openTraceStore(c.Cfg, c.Logger)
	if err != nil {
		return nil, err
	}
	rec, err := trace.NewRecorder(ctx, store, source)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	c.Logger.Debug("recording session", "id", rec.SessionID(), "trace", c.Cfg.TracePath)
	return &recording{store: store, recorder: rec}, nil
}

func openTraceStore(cfg *config.Config, logger *slog.Logger) (*trace.Store, error) {
	store, err := trace.OpenStore(cfg.TracePath, trace.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open trace store: %w", err)
	}
	return store, nil
}

// observer returns the recorder, or nil when not recording.
func (r *recording) observer() ownership.Observer {
	if r == nil {
		return nil
	}
	return r.recorder
}

func (r *recording) sessionID() string {
	if r == nil {
		return ""
	}
	return r.recorder.SessionID()
}

// finish flushes the session, marking it failed if runErr is non-nil, and
// closes the store.
func (r *recording) finish(ctx context.Context, runErr error) error {
	if r == nil {
		return nil
	}
	err := r.recorder.Close(ctx, runErr)
	if cerr := r.store.Close(); err == nil {
		err = cerr
	}
	return err
}
