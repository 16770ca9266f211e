package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/intraday/internal/errs"
	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/session"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the SQLite trade journal",
	Long: `Query and display records from a SQLite journal written by the live
engine or by backtest --db.

Subcommands:
  trade  - Show one trade by ID
  day    - List trades closed on a session day
  events - List recent risk and session events
  run    - Show a recorded backtest run

Examples:
  trader journal trade 01HX3Q...
  trader journal day 2024-03-04 --org
  trader journal events -n 20
  trader journal run 01HX3R... -d runs.db`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Show one trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a session day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent events",
	Args:  cobra.NoArgs,
	RunE:  runJournalEvents,
}

var journalRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Show a recorded backtest run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRun,
}

var (
	journalDBPath string
	journalOrg    bool
	journalLimit  int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalEventsCmd)
	journalCmd.AddCommand(journalRunCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./intraday.db", "path to SQLite journal DB")
	journalDayCmd.Flags().BoolVar(&journalOrg, "org", false, "print org-mode entries instead of a table")
	journalEventsCmd.Flags().IntVarP(&journalLimit, "limit", "n", 50, "number of events")
}

func openJournal() (*journal.SQLite, error) {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	hours := session.NSE()
	day, err := time.ParseInLocation("2006-01-02", args[0], hours.Loc)
	if err != nil {
		return errs.E(errs.ConfigInvalid, "cmd.journal", fmt.Errorf("bad date: %w", err))
	}

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	trades, err := j.ListTradesClosedBetween(day, day.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}
	out := cmd.OutOrStdout()
	if journalOrg {
		_, err := io.WriteString(out, journal.FormatTradesOrg(trades))
		return err
	}
	return writeTrades(out, trades)
}

func writeTrades(w io.Writer, trades []journal.TradeRecord) error {
	if len(trades) == 0 {
		_, err := fmt.Fprintln(w, "No trades.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYMBOL\tDIR\tSTATUS\tOPEN\tCLOSE\tSIZE\tENTRY\tEXIT\tPNL")
	total := 0.0
	for _, t := range trades {
		total += t.RealizedPnL
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%.0f\t%.2f\t%.2f\t%.2f\n",
			t.ID, t.Symbol, t.Direction, t.Status,
			t.OpenTime.Format("15:04"), t.CloseTime.Format("15:04"),
			t.Size, t.EntryPrice, t.ExitPrice, t.RealizedPnL)
	}
	fmt.Fprintf(tw, "\t\t\t\t\t\t\t\tTotal\t%.2f\n", total)
	return tw.Flush()
}

func runJournalEvents(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	events, err := j.ListEvents(journalLimit)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tSYMBOL\tCODE\tMESSAGE")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Time.Format(time.RFC3339), e.Kind, e.Symbol, e.Code, e.Message)
	}
	return tw.Flush()
}

func runJournalRun(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	run, err := j.GetRun(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	return run.WriteOrg(cmd.OutOrStdout())
}
