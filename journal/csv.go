package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var (
	tradeHeader  = []string{"id", "symbol", "sector", "direction", "status", "size", "entry_price", "exit_price", "stop_loss", "take_profit", "score", "open_time", "close_time", "realized_pnl", "reason"}
	equityHeader = []string{"time", "balance", "equity", "cash", "exposure", "unrealized_pnl", "drawdown", "open_positions"}
	eventHeader  = []string{"time", "kind", "symbol", "code", "message"}
)

// CSVJournal writes trades.csv, equity.csv and events.csv into a directory.
// Every record is flushed as it is written.
type CSVJournal struct {
	mu    sync.Mutex
	files []*os.File

	trades *csv.Writer
	equity *csv.Writer
	events *csv.Writer
}

func NewCSV(dir string) (*CSVJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	j := &CSVJournal{}
	var err error
	if j.trades, err = j.create(filepath.Join(dir, "trades.csv"), tradeHeader); err != nil {
		j.Close()
		return nil, err
	}
	if j.equity, err = j.create(filepath.Join(dir, "equity.csv"), equityHeader); err != nil {
		j.Close()
		return nil, err
	}
	if j.events, err = j.create(filepath.Join(dir, "events.csv"), eventHeader); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) create(path string, header []string) (*csv.Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	j.files = append(j.files, f)
	w := csv.NewWriter(f)
	return w, write(w, header)
}

func write(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return write(j.trades, []string{
		t.ID,
		t.Symbol,
		t.Sector,
		t.Direction.String(),
		t.Status,
		f(t.Size),
		f(t.EntryPrice),
		f(t.ExitPrice),
		f(t.StopLoss),
		f(t.TakeProfit),
		f(t.Score),
		t.OpenTime.Format(time.RFC3339),
		t.CloseTime.Format(time.RFC3339),
		f(t.RealizedPnL),
		t.Reason,
	})
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return write(j.equity, []string{
		e.Time.Format(time.RFC3339),
		f(e.Balance),
		f(e.Equity),
		f(e.Cash),
		f(e.Exposure),
		f(e.UnrealizedPnL),
		f(e.Drawdown),
		strconv.Itoa(e.OpenPositions),
	})
}

func (j *CSVJournal) RecordEvent(e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return write(j.events, []string{
		e.Time.Format(time.RFC3339),
		string(e.Kind),
		e.Symbol,
		e.Code,
		e.Message,
	})
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var first error
	for _, w := range []*csv.Writer{j.trades, j.equity, j.events} {
		if w == nil {
			continue
		}
		w.Flush()
		if err := w.Error(); err != nil && first == nil {
			first = err
		}
	}
	for _, fh := range j.files {
		if err := fh.Close(); err != nil && first == nil {
			first = err
		}
	}
	j.files = nil
	return first
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
