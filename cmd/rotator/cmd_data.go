package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sawpanic/rotator/internal/domain/indicators"
	"github.com/sawpanic/rotator/internal/market"
)

func newFetchCmd(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "fetch [TICKER...]",
		Short: "Download price history into the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			tickers := args
			if len(tickers) == 0 {
				tickers = a.cfg.Tickers
			}
			prices, err := a.prices(cmd.Context(), refresh)
			if err != nil {
				return err
			}
			m, err := prices.GetPrices(cmd.Context(), tickers, market.DateRange{})
			if err != nil {
				return err
			}
			printCoverage(cmd.OutOrStdout(), m)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Ignore cached data and download again")
	return cmd
}

func newSelfTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Check every indicator against hand-computed values",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := indicators.SelfTest(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", failLabel("FAIL"), err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s all indicators match\n", okLabel("PASS"))
			return nil
		},
	}
}
