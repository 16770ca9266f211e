package backtest

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"gonum.org/v1/gonum/stat"

	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/portfolio"
	"github.com/rustyeddy/intraday/session"
)

// TradingDaysPerYear annualizes the daily Sharpe ratio.
const TradingDaysPerYear = 252

// Report is everything a run produced.
type Report struct {
	Run    journal.Run              `json:"run"`
	Trades []journal.TradeRecord    `json:"trades"`
	Equity []journal.EquitySnapshot `json:"equity"`
	Events []journal.Event          `json:"events"`
}

// Summarize computes the run metrics. Cancelled entries are not trades.
func Summarize(capital float64, final portfolio.State, trades []journal.TradeRecord, equity []journal.EquitySnapshot, events []journal.Event, h session.Hours) journal.Run {
	run := journal.Run{
		InitialCapital: capital,
		FinalEquity:    final.Equity,
		NetPnL:         final.Equity - capital,
		MaxDDPct:       100 * final.MaxDrawdown,
	}
	if capital > 0 {
		run.ReturnPct = 100 * run.NetPnL / capital
	}

	var grossWin, grossLoss, realized float64
	for _, t := range trades {
		if t.Status == string(portfolio.Cancelled) {
			continue
		}
		run.Trades++
		realized += t.RealizedPnL
		switch {
		case t.RealizedPnL > 0:
			run.Wins++
			grossWin += t.RealizedPnL
		case t.RealizedPnL < 0:
			run.Losses++
			grossLoss -= t.RealizedPnL
		}
	}
	if run.Trades > 0 {
		run.WinRate = float64(run.Wins) / float64(run.Trades)
		run.AvgTrade = realized / float64(run.Trades)
	}
	switch {
	case grossLoss > 0:
		run.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		run.Notes = append(run.Notes, "no losing trades; profit factor undefined")
	}

	for _, e := range events {
		if e.Kind == journal.EventBreach {
			run.Breaches++
		}
	}

	daily := DailyEquity(equity, h)
	run.TradingDays = len(daily)
	run.Sharpe = Sharpe(append([]float64{capital}, daily...))
	return run
}

// DailyEquity is the last recorded equity of each session day, in order.
func DailyEquity(equity []journal.EquitySnapshot, h session.Hours) []float64 {
	var out []float64
	last := ""
	for _, e := range equity {
		d := h.Date(e.Time)
		if d == last {
			out[len(out)-1] = e.Equity
			continue
		}
		out = append(out, e.Equity)
		last = d
	}
	return out
}

// Sharpe is the annualized mean over standard deviation of the period
// returns of series. It is zero with fewer than two returns or no variance.
func Sharpe(series []float64) float64 {
	if len(series) < 3 {
		return 0
	}
	rets := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1] == 0 {
			continue
		}
		rets = append(rets, series[i]/series[i-1]-1)
	}
	if len(rets) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(rets, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(TradingDaysPerYear)
}

func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteSummary prints the headline metrics as aligned text.
func (r Report) WriteSummary(w io.Writer) error {
	s := r.Run
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"Period", fmt.Sprintf("%s .. %s (%d days)", s.Start.Format("2006-01-02"), s.End.Format("2006-01-02"), s.TradingDays)},
		{"Initial capital", fmt.Sprintf("%.2f", s.InitialCapital)},
		{"Final equity", fmt.Sprintf("%.2f", s.FinalEquity)},
		{"Net P&L", fmt.Sprintf("%.2f (%.2f%%)", s.NetPnL, s.ReturnPct)},
		{"Sharpe", fmt.Sprintf("%.2f", s.Sharpe)},
		{"Max drawdown", fmt.Sprintf("%.2f%%", s.MaxDDPct)},
		{"Trades", fmt.Sprintf("%d (%d won, %d lost)", s.Trades, s.Wins, s.Losses)},
		{"Win rate", fmt.Sprintf("%.1f%%", 100*s.WinRate)},
		{"Profit factor", fmt.Sprintf("%.2f", s.ProfitFactor)},
		{"Average trade", fmt.Sprintf("%.2f", s.AvgTrade)},
		{"Risk breaches", fmt.Sprintf("%d", s.Breaches)},
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
	}
	for _, n := range s.Notes {
		fmt.Fprintf(tw, "Note\t%s\n", n)
	}
	return tw.Flush()
}

// WriteOrg writes the run heading followed by every trade.
func (r Report) WriteOrg(w io.Writer) error {
	if err := r.Run.WriteOrg(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, journal.FormatTradesOrg(r.Trades))
	return err
}
