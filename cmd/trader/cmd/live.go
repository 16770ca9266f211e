package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/intraday/broker"
	"github.com/rustyeddy/intraday/broker/sim"
	"github.com/rustyeddy/intraday/dashboard"
	"github.com/rustyeddy/intraday/engine"
	"github.com/rustyeddy/intraday/internal/metrics"
	"github.com/rustyeddy/intraday/session"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run the engine on the wall clock until interrupted",
	Long: `Run the trading engine against the configured feed, ticking every
session.poll_interval. Orders go to the paper executor.

The engine keeps running across sessions: it is idle outside market hours,
closes everything at each cutoff and resets the daily limits every morning.
SIGINT or SIGTERM stops it; with engine.close_on_stop every open position is
closed first.

Example:
  trader live -c intraday.yaml --dashboard`,
	RunE: runLive,
}

var liveDashboard bool

func init() {
	rootCmd.AddCommand(liveCmd)

	liveCmd.Flags().BoolVar(&liveDashboard, "dashboard", false, "serve the dashboard on http.addr")
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	hours, err := cfg.Hours()
	if err != nil {
		return err
	}
	uni := cfg.Instruments()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, _, err := buildSource(cfg, hours, uni, log)
	if err != nil {
		return err
	}
	j, reader, err := buildJournal(cfg)
	if err != nil {
		return err
	}
	if j != nil {
		defer j.Close()
	}
	pubs, mem, err := buildPublishers(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pubs.Close()

	m := metrics.New()
	opts := engineOptions(cfg, hours, uni, log)
	opts.Source = src
	opts.Executor = broker.NewRetrying(sim.NewPaper(sim.Config{SlippageBps: cfg.Engine.SlippageBps}), cfg.ExecutionRetry(), log)
	opts.Journal = j
	opts.Publisher = pubs
	opts.Metrics = m

	eng, err := engine.New(opts)
	if err != nil {
		return err
	}

	if liveDashboard {
		var hist dashboard.History
		if reader != nil {
			hist = dashboard.JournalHistory{Reader: reader}
		}
		srv := dashboard.New(dashboard.Config{Addr: cfg.HTTP.Addr, State: mem, History: hist, Metrics: m, Log: log})
		go func() {
			if err := srv.Start(ctx); err != nil {
				log.Error().Err(err).Msg("dashboard stopped")
			}
		}()
	}

	clock := session.NewCronClock(cfg.Session.PollInterval.D(), hours.Loc, log)
	log.Info().
		Str("session", hours.String()).
		Str("schedule", clock.Spec()).
		Int("symbols", len(uni)).
		Float64("capital", cfg.Account.InitialCapital).
		Msg("starting live engine")

	if err := eng.Run(ctx, clock); err != nil {
		return err
	}
	st := eng.State()
	log.Info().Float64("equity", st.Equity).Float64("balance", st.Balance).Msg("engine stopped")
	return nil
}
