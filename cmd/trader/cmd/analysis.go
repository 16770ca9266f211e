package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/intraday/broker/sim"
	"github.com/rustyeddy/intraday/engine"
	"github.com/rustyeddy/intraday/internal/errs"
	"github.com/rustyeddy/intraday/risk"
)

var analysisCmd = &cobra.Command{
	Use:   "analysis",
	Short: "Score, rank and size the universe once without trading",
	Long: `Fetch a snapshot of every symbol, print its signal, then rank the
candidates and show the position each would get from the risk manager at
the configured capital. Nothing is opened and nothing is journaled.

With a CSV source the last bar time in the data is used unless --at is set.

Examples:
  trader analysis -c intraday.yaml
  trader analysis -c intraday.yaml --at "2024-03-04 11:30" --json`,
	RunE: runAnalysis,
}

var (
	analysisAt   string
	analysisJSON bool
)

func init() {
	rootCmd.AddCommand(analysisCmd)

	analysisCmd.Flags().StringVar(&analysisAt, "at", "", `evaluation time, RFC3339 or "2006-01-02 15:04" in the session zone`)
	analysisCmd.Flags().BoolVar(&analysisJSON, "json", false, "print JSON instead of tables")
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	const op = "cmd.analysis"
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	hours, err := cfg.Hours()
	if err != nil {
		return err
	}
	uni := cfg.Instruments()

	src, csvSrc, err := buildSource(cfg, hours, uni, log)
	if err != nil {
		return err
	}

	now := time.Now()
	switch {
	case analysisAt != "":
		if now, err = parseTime(analysisAt, hours.Loc); err != nil {
			return errs.E(errs.ConfigInvalid, op, err)
		}
	case csvSrc != nil:
		times := csvSrc.Times()
		if len(times) == 0 {
			return errs.Ef(errs.DataUnavailable, op, "no bars in %v", cfg.Data.Paths)
		}
		now = times[len(times)-1]
	}

	opts := engineOptions(cfg, hours, uni, log)
	opts.Source = src
	opts.Executor = sim.NewPaper(sim.Config{})
	eng, err := engine.New(opts)
	if err != nil {
		return err
	}

	rep := eng.Preview(context.Background(), now)
	decisions := eng.Decisions(rep)
	if analysisJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"time":      rep.Time,
			"signals":   rep.Signals,
			"decisions": decisions,
			"skipped":   rep.Skipped,
		})
	}
	return writeAnalysis(cmd.OutOrStdout(), rep, decisions)
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02 15:04", s, loc)
}

func writeAnalysis(w io.Writer, rep engine.Report, decisions []risk.Decision) error {
	fmt.Fprintf(w, "Analysis at %s\n\n", rep.Time.Format("2006-01-02 15:04 MST"))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tDIR\tSCORE\tPRICE\tATR\tNOTE")
	for _, s := range rep.Signals {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%.2f\t%.2f\t%s\n", s.Symbol, s.Direction, s.Score, s.Price, s.ATR, s.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(rep.Skipped) > 0 {
		fmt.Fprintf(w, "\nSkipped (no data): %v\n", rep.Skipped)
	}

	fmt.Fprintln(w)
	if len(decisions) == 0 {
		_, err := fmt.Fprintln(w, "No candidates.")
		return err
	}
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSYMBOL\tSECTOR\tDIR\tSCORE\tSIZE\tENTRY\tSTOP\tTARGET\tRISK\tDECISION")
	for _, d := range decisions {
		c := d.Candidate
		verdict := "accept"
		if !d.Accepted {
			verdict = "reject: " + d.Reason()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.1f\t%.0f\t%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
			c.Rank, c.Symbol, c.Sector, c.Direction, c.Score,
			d.Size, d.Entry, d.StopLoss, d.TakeProfit, d.PlannedRisk, verdict)
	}
	return tw.Flush()
}
