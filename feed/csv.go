package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/intraday/indicators"
	"github.com/rustyeddy/intraday/internal/errs"
	"github.com/rustyeddy/intraday/market"
)

// DefaultWindow is how many bars of history go into each snapshot.
const DefaultWindow = 300

// CSVSource builds snapshots from candle files with rows
//
//	time,symbol,open,high,low,close,volume
//
// where time is RFC3339 or "2006-01-02 15:04:05" in Loc. A header row is
// allowed and blank rows are skipped. Data is loaded once and never changes,
// so a CSVSource is safe for concurrent use.
type CSVSource struct {
	Builder *indicators.Builder
	Window  int

	// MaxAge rejects a snapshot when the last bar at or before asOf is older
	// than this. Zero disables the check.
	MaxAge time.Duration

	// IndexSymbol, when present in the data, supplies the index day change
	// for every snapshot's sentiment.
	IndexSymbol string

	// Universe, when set, supplies sector membership for the sector day
	// change.
	Universe market.Universe

	Loc *time.Location

	bars map[string][]market.Candle
}

// NewCSVSource wraps already loaded candles. Each symbol's candles are
// sorted by time.
func NewCSVSource(bars map[string][]market.Candle, b *indicators.Builder) *CSVSource {
	for sym, cs := range bars {
		slices.SortStableFunc(cs, func(x, y market.Candle) int { return x.Time.Compare(y.Time) })
		bars[sym] = cs
	}
	return &CSVSource{Builder: b, Window: DefaultWindow, Loc: time.UTC, bars: bars}
}

// OpenCSV loads every file in paths into one source.
func OpenCSV(b *indicators.Builder, loc *time.Location, paths ...string) (*CSVSource, error) {
	all := map[string][]market.Candle{}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		bars, err := LoadCSV(f, loc)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for sym, cs := range bars {
			all[sym] = append(all[sym], cs...)
		}
	}
	src := NewCSVSource(all, b)
	if loc != nil {
		src.Loc = loc
	}
	return src, nil
}

// LoadCSV reads candle rows grouped by symbol.
func LoadCSV(r io.Reader, loc *time.Location) (map[string][]market.Candle, error) {
	if loc == nil {
		loc = time.UTC
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	out := map[string][]market.Candle{}
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
			continue
		}
		sym, c, err := parseCandleRow(row, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out[sym] = append(out[sym], c)
	}
}

func parseCandleRow(row []string, loc *time.Location) (string, market.Candle, error) {
	if len(row) < 7 {
		return "", market.Candle{}, fmt.Errorf("want 7 fields, got %d", len(row))
	}
	t, err := parseTime(strings.TrimSpace(row[0]), loc)
	if err != nil {
		return "", market.Candle{}, err
	}
	sym := strings.ToUpper(strings.TrimSpace(row[1]))
	if sym == "" {
		return "", market.Candle{}, errors.New("empty symbol")
	}

	var v [5]float64
	for i := range v {
		f, err := strconv.ParseFloat(strings.TrimSpace(row[2+i]), 64)
		if err != nil {
			return "", market.Candle{}, fmt.Errorf("bad number %q: %w", row[2+i], err)
		}
		v[i] = f
	}
	return sym, market.Candle{Time: t, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]}, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

// Symbols lists the symbols with data.
func (s *CSVSource) Symbols() []string {
	out := make([]string, 0, len(s.bars))
	for sym := range s.bars {
		out = append(out, sym)
	}
	slices.Sort(out)
	return out
}

// Candles returns the loaded bars for symbol.
func (s *CSVSource) Candles(symbol string) []market.Candle {
	return slices.Clone(s.bars[symbol])
}

// Times returns every distinct bar time across symbols, in order.
func (s *CSVSource) Times(symbols ...string) []time.Time {
	if len(symbols) == 0 {
		symbols = s.Symbols()
	}
	var out []time.Time
	for _, sym := range symbols {
		for _, c := range s.bars[sym] {
			out = append(out, c.Time)
		}
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return slices.CompactFunc(out, func(a, b time.Time) bool { return a.Equal(b) })
}

func (s *CSVSource) Snapshot(ctx context.Context, symbol string, asOf time.Time) (market.Snapshot, error) {
	const op = "feed.CSVSource"
	if err := ctx.Err(); err != nil {
		return market.Snapshot{}, err
	}

	hist := s.upTo(symbol, asOf)
	if len(hist) == 0 {
		return market.Snapshot{}, errs.Ef(errs.DataUnavailable, op, "%s: no bars at %s", symbol, asOf.Format(time.RFC3339))
	}
	last := hist[len(hist)-1]
	if s.MaxAge > 0 && asOf.Sub(last.Time) > s.MaxAge {
		return market.Snapshot{}, errs.Ef(errs.DataUnavailable, op, "%s: last bar %s is stale", symbol, last.Time.Format(time.RFC3339))
	}

	window := s.Window
	if window <= 0 {
		window = DefaultWindow
	}
	if len(hist) > window {
		hist = hist[len(hist)-window:]
	}

	b := s.Builder
	if b == nil {
		b = indicators.NewBuilder(0, 0)
	}
	return b.Build(symbol, hist, s.sentiment(symbol, asOf))
}

func (s *CSVSource) upTo(symbol string, asOf time.Time) []market.Candle {
	bars := s.bars[symbol]
	n := sort.Search(len(bars), func(i int) bool { return bars[i].Time.After(asOf) })
	return bars[:n]
}

// dayChange is the percent move from the first open of asOf's trading day
// to the latest close at or before asOf.
func (s *CSVSource) dayChange(symbol string, asOf time.Time) (float64, bool) {
	hist := s.upTo(symbol, asOf)
	if len(hist) == 0 {
		return 0, false
	}
	loc := s.Loc
	if loc == nil {
		loc = time.UTC
	}
	last := hist[len(hist)-1]
	day := last.Time.In(loc).Format(time.DateOnly)
	if day != asOf.In(loc).Format(time.DateOnly) {
		return 0, false
	}
	first := len(hist) - 1
	for first > 0 && hist[first-1].Time.In(loc).Format(time.DateOnly) == day {
		first--
	}
	open := hist[first].Open
	if open <= 0 {
		return 0, false
	}
	return (last.Close - open) / open * 100, true
}

func (s *CSVSource) sentiment(symbol string, asOf time.Time) market.Sentiment {
	var sent market.Sentiment
	if s.IndexSymbol != "" {
		sent.IndexChangePct, _ = s.dayChange(s.IndexSymbol, asOf)
	}
	if s.Universe == nil {
		return sent
	}
	sector := s.Universe.Sector(symbol)
	var sum float64
	var n int
	for _, peer := range s.Universe.Symbols() {
		if s.Universe.Sector(peer) != sector {
			continue
		}
		if ch, ok := s.dayChange(peer, asOf); ok {
			sum += ch
			n++
		}
	}
	if n > 0 {
		sent.SectorChangePct = sum / float64(n)
	}
	return sent
}
