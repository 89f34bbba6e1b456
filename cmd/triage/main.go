package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/Triage/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Rank tasks by urgency, importance, effort and dependencies",
		Long: `triage scores a batch of tasks and orders them by priority.

It runs as an HTTP service (triage serve) or ranks a JSON file directly:
  triage analyze -f tasks.json --strategy deadline
  cat tasks.json | triage cycles -f -`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")

	cmd.AddCommand(
		newServeCmd(opts),
		newAnalyzeCmd(opts),
		newCyclesCmd(opts),
		newWatchCmd(opts),
	)
	return cmd
}

// load reads the config and builds the logger. Logs go to w so command
// output on stdout stays machine-readable.
func (o *rootOptions) load(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := cfg.NewLogger(w)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
