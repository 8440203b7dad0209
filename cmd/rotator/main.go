package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/rotator/internal/config"
	applog "github.com/sawpanic/rotator/internal/log"
)

const (
	appName = "rotator"
	version = "v1.0.0"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFile    string
	logJSON    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	a := &app{}
	var logCloser io.Closer

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Instrument ranking, portfolio allocation and rebalancing backtests",
		Version: version,
		Long: `rotator ranks a universe of instruments by technical indicators and
multi-horizon momentum, allocates the top of the ranking, and backtests the
allocation with periodic rebalancing.

Configuration is read from Parameters.yaml and may be overridden with
ROTATOR_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			closer, err := applog.Setup(applog.Options{
				Level: flags.logLevel,
				File:  flags.logFile,
				JSON:  flags.logJSON,
			})
			if err != nil {
				return err
			}
			logCloser = closer

			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			log.Debug().Str("config", flags.configPath).Strs("tickers", cfg.Tickers).Msg("Configuration loaded")
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			a.close()
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", config.DefaultPath, "Path to the YAML configuration")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level (trace|debug|info|warn|error)")
	pf.StringVar(&flags.logFile, "log-file", "", "Also write JSON logs to this file")
	pf.BoolVar(&flags.logJSON, "log-json", false, "Write JSON logs to stderr even on a terminal")

	rootCmd.SetGlobalNormalizationFunc(dashedFlags)

	rootCmd.AddCommand(
		newRankCmd(a),
		newBacktestCmd(a),
		newBuyHoldCmd(a),
		newIntervalCmd(a),
		newOptimizeCmd(a, flags),
		newFetchCmd(a),
		newSelfTestCmd(),
		newMonitorCmd(a),
	)
	return rootCmd
}

// dashedFlags accepts --log_level as an alias of --log-level.
func dashedFlags(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}
