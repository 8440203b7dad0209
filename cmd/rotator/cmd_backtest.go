package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/market"
	"github.com/sawpanic/rotator/internal/score/portfolio"
)

func newRankCmd(a *app) *cobra.Command {
	var (
		asOf   string
		export bool
	)
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank the universe and allocate the top instruments",
		Long: `Fetches history from HistoryStart to the as-of date (TrainingEndDate by
default), runs indicators, normalization, momentum and scoring, and prints the
selected instruments with their allocation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireTickers(); err != nil {
				return err
			}
			r := a.cfg.TrainingRange()
			if asOf != "" {
				end, err := market.ParseDate(asOf)
				if err != nil {
					return err
				}
				r.End = end
			}

			prices, err := a.prices(cmd.Context(), false)
			if err != nil {
				return err
			}
			history, err := prices.GetPrices(cmd.Context(), a.cfg.Tickers, r)
			if err != nil {
				return err
			}
			ranker, err := a.ranker()
			if err != nil {
				return err
			}
			result, err := ranker.Rank(cmd.Context(), history)
			if err != nil {
				return err
			}

			holdings := result.Holdings()
			printHoldings(cmd.OutOrStdout(), r.End, holdings)

			if export {
				base := fmt.Sprintf("portfolio_%s", r.End.Format(market.DateLayout))
				paths, err := portfolio.NewExporter(a.cfg.Export.Dir).Export(base, holdings)
				if err != nil {
					return err
				}
				log.Info().Str("csv", paths.CSV).Str("json", paths.JSON).Str("xlsx", paths.XLSX).Msg("Portfolio exported")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "Rank with data up to this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&export, "export", true, "Write CSV, JSON and XLSX to Export.Dir")
	return cmd
}

func newBacktestCmd(a *app) *cobra.Command {
	var months int
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Allocate on the training window and simulate the backtest horizon",
		Long: `Derives the initial allocation from [HistoryStart, TrainingEndDate] and
simulates [BacktestStart, BacktestEnd], rebalancing every
RebalanceIntervalMonths months (0 holds the allocation for the whole horizon).`,
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
			alloc, err := engine.AllocateUntil(cmd.Context(), a.cfg.Tickers, a.cfg.TrainingEnd())
			if err != nil {
				return err
			}
			res, err := engine.PortfolioBacktest(cmd.Context(), alloc, months)
			if err != nil {
				return err
			}
			return a.finish(cmd.Context(), res, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&months, "months", 0, "Rebalance interval in months (default RebalanceIntervalMonths)")
	return cmd
}

func newBuyHoldCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "buyhold [TICKER...]",
		Short: "Equal-weight buy-and-hold benchmark",
		Long:  "Holds every ticker (the configured universe by default) in equal weight for the whole backtest horizon.",
		RunE: func(cmd *cobra.Command, args []string) error {
			tickers := args
			if len(tickers) == 0 {
				tickers = a.cfg.Tickers
			}
			engine, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := engine.BuyAndHold(cmd.Context(), tickers)
			if err != nil {
				return err
			}
			return a.finish(cmd.Context(), res, cmd.OutOrStdout())
		},
	}
}

func newIntervalCmd(a *app) *cobra.Command {
	var months int
	cmd := &cobra.Command{
		Use:   "interval",
		Short: "Backtest with a fixed rebalance interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireTickers(); err != nil {
				return err
			}
			if months <= 0 {
				return errs.InvalidArgument("--months must be positive, got %d", months)
			}
			engine, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := engine.Interval(cmd.Context(), a.cfg.Tickers, months)
			if err != nil {
				return err
			}
			return a.finish(cmd.Context(), res, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&months, "months", 3, "Rebalance interval in months")
	return cmd
}
