package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"

	httpserver "github.com/sawpanic/rotator/internal/interfaces/http"
	"github.com/sawpanic/rotator/internal/persistence"
)

func newMonitorCmd(a *app) *cobra.Command {
	var (
		addr   string
		replay int
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve health, metrics, stored runs and a live period stream",
		Long: `Starts the read-only monitor on --addr:
  GET /health      dependency checks
  GET /metrics     Prometheus metrics
  GET /runs        stored runs (requires Database.Enabled)
  GET /runs/{id}   one run with its period ledger
  GET /ws          websocket stream of rebalancing periods

--replay N runs an interval backtest with an N month interval after startup and
streams its periods to connected clients.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			hub := httpserver.NewHub()

			checks := map[string]httpserver.Check{}
			var runs persistence.RunStore
			store, err := a.runStore(ctx)
			if err != nil {
				return err
			}
			if store != nil {
				runs = store
				checks["database"] = store.Ping
			}
			if _, err := a.prices(ctx, false); err != nil {
				return err
			}
			checks["provider"] = func(context.Context) error {
				if a.provider.BreakerState() == gobreaker.StateOpen {
					return errors.New("circuit open")
				}
				return nil
			}

			scfg := httpserver.DefaultServerConfig()
			scfg.Addr = addr
			scfg.Version = version
			srv := httpserver.NewServer(scfg, a.metrics(), runs, hub, checks)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			if replay > 0 {
				go func() {
					if err := runReplay(ctx, a, hub, replay); err != nil {
						log.Error().Err(err).Msg("Replay failed")
					}
				}()
			}

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdown)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().IntVar(&replay, "replay", 0, "Run an interval backtest with this many months and stream it")
	return cmd
}

func runReplay(ctx context.Context, a *app, hub *httpserver.Hub, months int) error {
	if err := a.requireTickers(); err != nil {
		return err
	}
	engine, err := a.engine(ctx, hub)
	if err != nil {
		return err
	}
	res, err := engine.Interval(ctx, a.cfg.Tickers, months)
	if err != nil {
		return err
	}
	log.Info().Str("run_id", res.RunID.String()).Float64("total_return", res.TotalReturn).Msg("Replay complete")

	store, err := a.runStore(ctx)
	if err != nil || store == nil {
		return err
	}
	run, err := persistence.FromResult(res, paramsOf(a.cfg))
	if err != nil {
		return err
	}
	return store.SaveRun(ctx, run)
}
