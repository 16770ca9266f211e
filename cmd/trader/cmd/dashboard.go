package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/intraday/dashboard"
	"github.com/rustyeddy/intraday/internal/errs"
	"github.com/rustyeddy/intraday/internal/metrics"
	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/publish"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the read-only dashboard for a running engine",
	Long: `Serve state, open positions, recent trades and events over HTTP.

State is read from the Redis keys a live engine publishes to, so
publish.redis_addr must be set. Trades and events come from Redis as well,
or from the SQLite journal with --history journal.

Endpoints:
  GET /health
  GET /metrics
  GET /api/state
  GET /api/positions
  GET /api/trades?limit=N
  GET /api/events?limit=N

Example:
  trader dashboard -c intraday.yaml --addr :9090`,
	RunE: runDashboard,
}

var (
	dashboardAddr    string
	dashboardHistory string
)

func init() {
	rootCmd.AddCommand(dashboardCmd)

	dashboardCmd.Flags().StringVar(&dashboardAddr, "addr", "", "listen address (default http.addr)")
	dashboardCmd.Flags().StringVar(&dashboardHistory, "history", "redis", "trade and event history: redis or journal")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	const op = "cmd.dashboard"
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Publish.RedisAddr == "" {
		return errs.Ef(errs.ConfigInvalid, op, "publish.redis_addr is required to read engine state")
	}
	if dashboardAddr != "" {
		cfg.HTTP.Addr = dashboardAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := cfg.Publish
	r, err := publish.NewRedis(ctx, p.RedisAddr, p.RedisPassword, p.RedisDB, p.RedisPrefix)
	if err != nil {
		return err
	}
	defer r.Close()

	var hist dashboard.History = r
	switch dashboardHistory {
	case "redis":
	case "journal":
		j, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return err
		}
		defer j.Close()
		hist = dashboard.JournalHistory{Reader: j}
	default:
		return errs.Ef(errs.ConfigInvalid, op, "unknown history %q", dashboardHistory)
	}

	srv := dashboard.New(dashboard.Config{
		Addr:    cfg.HTTP.Addr,
		State:   r,
		History: hist,
		Metrics: metrics.New(),
		Log:     log,
	})
	return srv.Start(ctx)
}
