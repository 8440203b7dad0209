package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/rotator/internal/algo/momentum"
	"github.com/sawpanic/rotator/internal/config"
	"github.com/sawpanic/rotator/internal/market"
	"github.com/sawpanic/rotator/internal/tune/opt"
)

func newOptimizeCmd(a *app, flags *globalFlags) *cobra.Command {
	var (
		months   int
		maxEvals int
		seed     uint64
		write    bool
	)
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search lookback weights that maximize the backtest return",
		Long: `Runs bounded coordinate descent over one weight per momentum lookback in
[0, 3]. Each evaluation ranks the training window with the candidate weights and
simulates the backtest horizon. --write stores the best weights back into the
configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireTickers(); err != nil {
				return err
			}
			if !cmd.Flags().Changed("months") {
				months = a.cfg.RebalanceIntervalMonths
			}
			engine, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			ranker, err := a.ranker()
			if err != nil {
				return err
			}
			objective, err := opt.NewBacktestObjective(engine, ranker, a.cfg.Tickers, months)
			if err != nil {
				return err
			}

			coords := make([]string, 0, len(a.cfg.MomentumLookbacks))
			for _, w := range a.cfg.MomentumLookbacks {
				coords = append(coords, momentum.ColumnPrefix+strconv.Itoa(w))
			}
			ocfg := opt.DefaultOptimizerConfig()
			ocfg.MaxEvaluations = maxEvals
			ocfg.Seed = seed
			cd, err := opt.NewCoordinateDescent(ocfg, coords, objective,
				opt.WithRecorder(a.metrics()),
				opt.WithProgressOutput(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}

			result, err := cd.Optimize(cmd.Context(), a.cfg.LookbackWeights)
			if err != nil {
				return err
			}
			printOptimization(cmd.OutOrStdout(), result)

			if err := os.MkdirAll(a.cfg.Export.Dir, 0755); err != nil {
				return fmt.Errorf("failed to create export dir: %w", err)
			}
			report := filepath.Join(a.cfg.Export.Dir,
				fmt.Sprintf("optimize_%s.md", time.Now().Format(market.DateLayout)))
			if err := opt.WriteReport(report, result); err != nil {
				return err
			}
			log.Info().Str("report", report).Msg("Optimization report written")

			if write {
				if err := config.SaveLookbackWeights(flags.configPath, result.Best); err != nil {
					return err
				}
				log.Info().Str("config", flags.configPath).Msg("Best lookback weights saved")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&months, "months", 0, "Rebalance interval in months (default RebalanceIntervalMonths)")
	cmd.Flags().IntVar(&maxEvals, "max-evals", 50, "Maximum objective evaluations")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for the coordinate order")
	cmd.Flags().BoolVar(&write, "write", false, "Save the best weights to LookbackWeights in the config file")
	return cmd
}
