package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"storypoints/internal/boardfile"
	"storypoints/internal/config"
	"storypoints/internal/engine"
	"storypoints/internal/estimate"
	"storypoints/internal/logger"
	"storypoints/internal/render"
	"storypoints/internal/watch"
)

func estimateCmd() *cobra.Command {
	var filePath, cfgPath string
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Compute story point totals once",
		Long: `Without --file the active board in the workspace database is used and the
result is not recorded. With --file a YAML board file is read directly; its
config comes from --config, then storypoints.yml, then defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filePath != "" {
				cfg, err := fileConfig(cfgPath)
				if err != nil {
					return err
				}
				snap, err := boardfile.Load(filePath)
				if err != nil {
					return err
				}
				return printResult(estimate.Compute(snap, cfg.EstimateOptions()))
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Estimate(ctx, e.Config.Board.ID)
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "YAML board file instead of the workspace database")
	cmd.Flags().StringVar(&cfgPath, "config", "", "YAML config used with --file")
	return cmd
}

func printResult(res estimate.Result) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	render.Table(os.Stdout, res)
	return nil
}

// fileConfig resolves the config for board files, which have no stored one.
func fileConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.FromFile(path)
	}
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("")
	}
	return cfg, nil
}

func watchCmd() *cobra.Command {
	var filePath, cfgPath string
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh story point totals until interrupted",
		Long: `Runs a refresh immediately and then every refresh.interval_ms (or --interval).
Against the workspace database each cycle is recorded as a board.refresh event.
With --file the board file is re-read on every cycle and a change to it
triggers a cycle right away. Exits when the board does not exist.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if filePath != "" {
				cfg, err := fileConfig(cfgPath)
				if err != nil {
					return err
				}
				return runWatch(ctx, pickInterval(interval, cfg), filePath, func(ctx context.Context) (estimate.Result, error) {
					snap, err := boardfile.Load(filePath)
					if err != nil {
						return estimate.Result{}, err
					}
					return estimate.Compute(snap, cfg.EstimateOptions()), nil
				})
			}
			return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
				boardID := e.Config.Board.ID
				return runWatch(ctx, pickInterval(interval, e.Config), "", func(ctx context.Context) (estimate.Result, error) {
					return e.Refresh(ctx, boardID, actorID())
				})
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "YAML board file instead of the workspace database")
	cmd.Flags().StringVar(&cfgPath, "config", "", "YAML config used with --file")
	cmd.Flags().DurationVar(&interval, "interval", 0, "override refresh.interval_ms")
	return cmd
}

func pickInterval(flag time.Duration, cfg *config.Config) time.Duration {
	if flag > 0 {
		return flag
	}
	return cfg.RefreshInterval()
}

// runWatch drives refresh cycles until ctx is done. When triggerPath is set
// a file watcher runs beside the poller and forces early cycles.
func runWatch(ctx context.Context, interval time.Duration, triggerPath string, refresh func(context.Context) (estimate.Result, error)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	runner := watch.Runner{
		Interval: interval,
		Logger:   logger.Get(ctx),
		Cycle: func(ctx context.Context) error {
			res, err := refresh(ctx)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			fmt.Printf("-- %s\n", time.Now().Format(time.TimeOnly))
			render.Summary(os.Stdout, res)
			return nil
		},
	}
	if triggerPath != "" {
		trigger, loop, err := watch.FileTrigger(ctx, triggerPath)
		if err != nil {
			return err
		}
		runner.Trigger = trigger
		g.Go(loop)
	}
	g.Go(func() error {
		defer cancel()
		return runner.Run(ctx)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
