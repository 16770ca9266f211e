package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/intraday/config"
	"github.com/rustyeddy/intraday/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "An intraday equities trading engine for NSE sessions",
	Long: `Trader scores a universe of NSE equities every tick, ranks the strongest
candidates, sizes them against the risk limits and manages the resulting
bracket positions until each session's cutoff.

It provides tools for:
  - Running the engine live against a feed with a paper executor
  - Replaying historical candles through the same engine as a backtest
  - Previewing scores, ranks and position sizes without trading
  - Serving a read-only dashboard of state, trades and events
  - Inspecting the trade journal

Configuration is read from a YAML or JSON file, a .env file and TRADER_*
environment variables, in that order.`,
	SilenceUsage: true,
}

var (
	cfgFile  string
	logLevel string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// loadConfig resolves the configuration and the process logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log := logger.New(cfg.LoggerConfig())
	logger.SetGlobal(log)
	return cfg, log, nil
}
