package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/intraday/backtest"
	"github.com/rustyeddy/intraday/broker/sim"
	"github.com/rustyeddy/intraday/internal/errs"
	"github.com/rustyeddy/intraday/journal"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical candles through the engine",
	Long: `Run the live engine over historical 5m candles with a simulated
clock and the paper executor, then print the run metrics.

Ticks are the bar times inside each session plus every day's cutoff, so the
daily reset and the end of session close behave exactly as they do live.

Examples:
  trader backtest --start-date 2024-03-01 --end-date 2024-03-28 --data bars.csv
  trader backtest -c intraday.yaml --start-date 2024-03-01 --end-date 2024-03-28 \
    --capital 500000 --db runs.db --json report.json --org report.org`,
	RunE: runBacktest,
}

var (
	btStart   string
	btEnd     string
	btCapital float64
	btData    []string
	btDataset string
	btDB      string
	btJSON    string
	btOrg     string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&btStart, "start-date", "", "first session, YYYY-MM-DD (required)")
	backtestCmd.Flags().StringVar(&btEnd, "end-date", "", "last session, YYYY-MM-DD (required)")
	backtestCmd.Flags().Float64Var(&btCapital, "capital", 0, "initial capital (default account.initial_capital)")
	backtestCmd.Flags().StringSliceVar(&btData, "data", nil, "candle CSV files (default data.paths)")
	backtestCmd.Flags().StringVar(&btDataset, "dataset", "", "dataset label stored with the run")
	backtestCmd.Flags().StringVar(&btDB, "db", "", "SQLite file to record the run, trades and equity in")
	backtestCmd.Flags().StringVar(&btJSON, "json", "", "write the full report as JSON to this file")
	backtestCmd.Flags().StringVar(&btOrg, "org", "", "write the run and its trades as org-mode to this file")
	backtestCmd.MarkFlagRequired("start-date")
	backtestCmd.MarkFlagRequired("end-date")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	const op = "cmd.backtest"
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if btCapital > 0 {
		cfg.Account.InitialCapital = btCapital
	}
	hours, err := cfg.Hours()
	if err != nil {
		return err
	}
	start, err := time.ParseInLocation("2006-01-02", btStart, hours.Loc)
	if err != nil {
		return errs.E(errs.ConfigInvalid, op, fmt.Errorf("--start-date: %w", err))
	}
	end, err := time.ParseInLocation("2006-01-02", btEnd, hours.Loc)
	if err != nil {
		return errs.E(errs.ConfigInvalid, op, fmt.Errorf("--end-date: %w", err))
	}

	paths := btData
	if len(paths) == 0 {
		paths = cfg.Data.Paths
	}
	uni := cfg.Instruments()
	data, err := openCSV(cfg, paths, hours, uni)
	if err != nil {
		return err
	}

	dataset := btDataset
	if dataset == "" {
		dataset = strings.Join(paths, ",")
	}
	r := &backtest.Runner{
		Engine:  engineOptions(cfg, hours, uni, log),
		Data:    data,
		Paper:   sim.Config{SlippageBps: cfg.Engine.SlippageBps},
		Start:   start,
		End:     end,
		Dataset: dataset,
		Log:     log,
	}
	if btDB != "" {
		store, err := journal.NewSQLite(btDB)
		if err != nil {
			return err
		}
		defer store.Close()
		r.Store = store
	}

	rep, err := r.Run(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Backtest %s\n\n", rep.Run.RunID)
	if err := rep.WriteSummary(out); err != nil {
		return err
	}
	if btJSON != "" {
		if err := writeFile(btJSON, rep.WriteJSON); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n✓ Report written: %s\n", btJSON)
	}
	if btOrg != "" {
		if err := writeFile(btOrg, rep.WriteOrg); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Org report written: %s\n", btOrg)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
