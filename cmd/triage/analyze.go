package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/Triage/internal/advisor"
	"github.com/MikeSquared-Agency/Triage/internal/scoring"
)

var errCyclesFound = errors.New("dependency cycles found")

type analyzeOptions struct {
	file     string
	strategy string
	date     string
	top      int
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Rank the tasks in a JSON file",
		Long: `Rank the tasks in a JSON file and print the result as JSON.

The file holds either a bare array of tasks or an object with a "tasks" array.
Use "-f -" to read from stdin. With --top the output lists only the first N
tasks, each with a short reason.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			raws, err := readTasks(cmd.InOrStdin(), opts.file)
			if err != nil {
				return err
			}
			tasks, err := scoring.ParseTasks(raws)
			if err != nil {
				return err
			}

			ref := cfg.Today()
			if opts.date != "" {
				d := scoring.ParseDate(opts.date)
				if d == nil {
					return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", opts.date)
				}
				ref = *d
			}

			var overrides map[string]any
			if opts.strategy != "" {
				strategies := advisor.NewStrategies(cfg.Strategies)
				if _, ok := strategies.Lookup(opts.strategy); !ok {
					return fmt.Errorf("unknown strategy %q (known: %v)", opts.strategy, strategies.Names())
				}
				overrides = strategies.Resolve(opts.strategy, nil)
			}

			start := time.Now()
			ranked, meta := scoring.NewEngine(logger).RankTasks(tasks, overrides, ref)
			logger.Debug("ranked file", "file", opts.file, "tasks", len(tasks), "elapsed", time.Since(start))

			if opts.top > 0 {
				return writeOutput(cmd.OutOrStdout(), map[string]any{
					"suggestions": advisor.Suggest(ranked, opts.top),
					"meta":        meta,
				})
			}
			if ranked == nil {
				ranked = []scoring.ScoredTask{}
			}
			return writeOutput(cmd.OutOrStdout(), map[string]any{"tasks": ranked, "meta": meta})
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", `tasks file ("-" for stdin)`)
	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "", "weight preset (fastest, highimpact, deadline, smart or a configured one)")
	cmd.Flags().StringVar(&opts.date, "date", "", "reference date YYYY-MM-DD (default: today)")
	cmd.Flags().IntVarP(&opts.top, "top", "n", 0, "only print the first N tasks with reasons")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type cyclesOptions struct {
	file        string
	failOnCycle bool
}

func newCyclesCmd(root *rootOptions) *cobra.Command {
	opts := &cyclesOptions{}
	cmd := &cobra.Command{
		Use:   "cycles",
		Short: "Report circular dependencies in a JSON task file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, _, err := root.load(cmd.ErrOrStderr()); err != nil {
				return err
			}
			raws, err := readTasks(cmd.InOrStdin(), opts.file)
			if err != nil {
				return err
			}
			tasks, err := scoring.ParseTasks(raws)
			if err != nil {
				return err
			}

			cycles := scoring.FindCycles(tasks)
			if err := writeOutput(cmd.OutOrStdout(), map[string]any{"cycles": cycles}); err != nil {
				return err
			}
			if opts.failOnCycle && len(cycles) > 0 {
				return fmt.Errorf("%w: %d", errCyclesFound, len(cycles))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", `tasks file ("-" for stdin)`)
	cmd.Flags().BoolVar(&opts.failOnCycle, "fail-on-cycle", false, "exit non-zero when any cycle is found")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// readTasks loads a bare JSON array of tasks or an object wrapping one under
// "tasks" (or "data").
func readTasks(stdin io.Reader, path string) ([]map[string]any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var tasks []map[string]any
		if err := json.Unmarshal(data, &tasks); err != nil {
			return nil, fmt.Errorf("parse tasks: %w", err)
		}
		return tasks, nil
	}

	var wrapped struct {
		Tasks []map[string]any `json:"tasks"`
		Data  []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse tasks: %w", err)
	}
	if len(wrapped.Tasks) == 0 {
		return wrapped.Data, nil
	}
	return wrapped.Tasks, nil
}

func writeOutput(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
