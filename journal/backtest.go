package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/template"
	"time"
)

// Run is the summary of one backtest.
type Run struct {
	RunID   string    `json:"run_id"`
	Created time.Time `json:"created"`
	Dataset string    `json:"dataset"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Symbols []string  `json:"symbols"`

	// Risk settings
	RiskPct   float64 `json:"risk_pct"`
	StopATR   float64 `json:"stop_atr"`
	TargetATR float64 `json:"target_atr"`

	// Results
	Trades int `json:"trades"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`

	InitialCapital float64 `json:"initial_capital"`
	FinalEquity    float64 `json:"final_equity"`

	NetPnL       float64 `json:"net_pnl"`
	ReturnPct    float64 `json:"return_pct"`
	Sharpe       float64 `json:"sharpe"`
	MaxDDPct     float64 `json:"max_drawdown_pct"`
	WinRate      float64 `json:"win_rate"` // 0..1
	ProfitFactor float64 `json:"profit_factor"`
	AvgTrade     float64 `json:"avg_trade"`
	Breaches     int     `json:"breaches"`
	TradingDays  int     `json:"trading_days"`

	Notes []string `json:"notes,omitempty"`
}

var runFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var runOrg = template.Must(template.New("backtest").Funcs(runFuncs).Parse(RunOrgTemplate))

// WriteOrg renders the run as an org-mode entry.
func (r Run) WriteOrg(w io.Writer) error {
	return runOrg.Execute(w, r)
}

const RunOrgTemplate = `* BACKTEST: intraday {{.Start.Format "2006-01-02"}} .. {{.End.Format "2006-01-02"}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:START_BAL:   {{printf "%.2f" .InitialCapital}}
:END_BAL:     {{printf "%.2f" .FinalEquity}}
:NET_PL:      {{printf "%.2f" .NetPnL}}
:RETURN_PCT:  {{printf "%.2f" .ReturnPct}}
:SHARPE:      {{printf "%.2f" .Sharpe}}
:MAX_DD_PCT:  {{printf "%.2f" .MaxDDPct}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{printf "%.2f" (mul100 .WinRate)}}
:PROFIT_FAC:  {{printf "%.2f" .ProfitFactor}}
:BREACHES:    {{.Breaches}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Risk Parameters
| Parameter        | Value |
|------------------+-------|
| Risk per Trade % | {{printf "%.2f" (mul100 .RiskPct)}} |
| Stop (ATR)       | {{printf "%.1f" .StopATR}} |
| Target (ATR)     | {{printf "%.1f" .TargetATR}} |

** Performance Summary
- Net P/L:          *{{printf "%.2f" .NetPnL}}*
- Return:           *{{printf "%.2f" .ReturnPct}}%*
- Sharpe:           *{{printf "%.2f" .Sharpe}}*
- Max Drawdown:     *{{printf "%.2f" .MaxDDPct}}%*
- Win Rate:         *{{printf "%.2f" (mul100 .WinRate)}}%*
- Profit Factor:    *{{printf "%.2f" .ProfitFactor}}*
- Avg Trade:        *{{printf "%.2f" .AvgTrade}}*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |
| Total   | {{.Trades}} |
{{- if .Notes }}

** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`

// RecordRun stores the run summary, replacing any run with the same ID.
func (j *SQLite) RecordRun(ctx context.Context, r Run) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO backtest_runs (run_id, created, dataset, start_time, end_time, report)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Dataset, r.Start, r.End, string(body),
	)
	return err
}

func (j *SQLite) GetRun(ctx context.Context, runID string) (Run, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var body string
	err := j.db.QueryRowContext(ctx, `SELECT report FROM backtest_runs WHERE run_id = ?`, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %q not found", runID)
	}
	if err != nil {
		return Run{}, err
	}
	var r Run
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return Run{}, fmt.Errorf("decode run %q: %w", runID, err)
	}
	return r, nil
}
