// Package cli provides CLI commands for dialectica.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/dialectica/internal/config"
	"github.com/example/dialectica/internal/wire"
)

// skipConfig marks commands that must run without a valid config file.
const skipConfig = "skip-config"

// Bootstrap selects the config file, loads it and installs the default
// logger. Runs once per invocation as the root PersistentPreRunE.
func Bootstrap(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	wire.SetConfigPath(path)

	if cmd.Annotations[skipConfig] == "true" {
		slog.SetDefault(NewLogger(config.Default().Log, os.Stderr))
		return nil
	}

	cfg, err := wire.Config()
	if err != nil {
		return err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}
	slog.SetDefault(NewLogger(cfg.Log, os.Stderr))
	return nil
}

// NewLogger builds the slog logger described by c. Logs go to w so that
// stdout stays free for command output and the stdio tools transport.
func NewLogger(c config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Level)}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// settle drains queued work inline when asked to with --wait, or when the
// queue lives in this process and would otherwise be lost on exit.
func settle(cmd *cobra.Command) error {
	wait, _ := cmd.Flags().GetBool("wait")
	cfg, err := wire.Config()
	if err != nil {
		return err
	}
	if !wait && cfg.Queue.Backend != "memory" {
		return nil
	}

	fmt.Fprintln(os.Stderr, "Running queued work...")
	if err := wire.Dispatcher().RunUntilIdle(cmd.Context()); err != nil {
		return fmt.Errorf("failed to run queued work: %w", err)
	}
	return nil
}
