package market

import (
	"slices"
	"strings"
)

// OtherSector is the sector tag for symbols with no mapping.
const OtherSector = "OTHERS"

// Instrument is per-symbol metadata the core needs.
type Instrument struct {
	Symbol  string  `json:"symbol" yaml:"symbol"`
	Sector  string  `json:"sector" yaml:"sector"`
	LotSize float64 `json:"lot_size,omitempty" yaml:"lot_size,omitempty"` // 0 means 1
}

// Universe is the set of tradable instruments keyed by symbol.
type Universe map[string]Instrument

func NewUniverse(instruments ...Instrument) Universe {
	u := make(Universe, len(instruments))
	for _, in := range instruments {
		if in.Sector == "" {
			in.Sector = SectorOf(in.Symbol)
		}
		u[in.Symbol] = in
	}
	return u
}

// Symbols returns the universe symbols in lexical order.
func (u Universe) Symbols() []string {
	out := make([]string, 0, len(u))
	for s := range u {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Sector returns the sector tag for symbol, falling back to the built-in
// mapping and then OtherSector.
func (u Universe) Sector(symbol string) string {
	if in, ok := u[symbol]; ok && in.Sector != "" {
		return in.Sector
	}
	return SectorOf(symbol)
}

// LotSize returns the minimum tradable unit for symbol.
func (u Universe) LotSize(symbol string) float64 {
	if in, ok := u[symbol]; ok && in.LotSize > 0 {
		return in.LotSize
	}
	return 1
}

var sectors = map[string]string{
	"RELIANCE.NS":   "ENERGY",
	"ONGC.NS":       "ENERGY",
	"BPCL.NS":       "ENERGY",
	"COALINDIA.NS":  "ENERGY",
	"NTPC.NS":       "POWER",
	"POWERGRID.NS":  "POWER",
	"TCS.NS":        "IT",
	"INFY.NS":       "IT",
	"HCLTECH.NS":    "IT",
	"WIPRO.NS":      "IT",
	"TECHM.NS":      "IT",
	"HDFCBANK.NS":   "BANKING",
	"ICICIBANK.NS":  "BANKING",
	"SBIN.NS":       "BANKING",
	"KOTAKBANK.NS":  "BANKING",
	"AXISBANK.NS":   "BANKING",
	"INDUSINDBK.NS": "BANKING",
	"BAJFINANCE.NS": "FINANCE",
	"BAJAJFINSV.NS": "FINANCE",
	"SBILIFE.NS":    "FINANCE",
	"HDFCLIFE.NS":   "FINANCE",
	"HINDUNILVR.NS": "FMCG",
	"ITC.NS":        "FMCG",
	"NESTLEIND.NS":  "FMCG",
	"BRITANNIA.NS":  "FMCG",
	"TATACONSUM.NS": "FMCG",
	"BHARTIARTL.NS": "TELECOM",
	"ASIANPAINT.NS": "CONSUMER",
	"TITAN.NS":      "CONSUMER",
	"MARUTI.NS":     "AUTO",
	"TATAMOTORS.NS": "AUTO",
	"EICHERMOT.NS":  "AUTO",
	"HEROMOTOCO.NS": "AUTO",
	"M&M.NS":        "AUTO",
	"SUNPHARMA.NS":  "PHARMA",
	"CIPLA.NS":      "PHARMA",
	"DIVISLAB.NS":   "PHARMA",
	"DRREDDY.NS":    "PHARMA",
	"APOLLOHOSP.NS": "PHARMA",
	"ULTRACEMCO.NS": "CEMENT",
	"SHREECEM.NS":   "CEMENT",
	"GRASIM.NS":     "CEMENT",
	"HINDALCO.NS":   "METALS",
	"JSWSTEEL.NS":   "METALS",
	"TATASTEEL.NS":  "METALS",
	"ADANIENT.NS":   "INFRA",
	"ADANIPORTS.NS": "INFRA",
	"LT.NS":         "INFRA",
	"UPL.NS":        "CHEMICALS",
}

// SectorOf returns the built-in sector for an NSE symbol.
func SectorOf(symbol string) string {
	if s, ok := sectors[strings.ToUpper(strings.TrimSpace(symbol))]; ok {
		return s
	}
	return OtherSector
}

// DefaultUniverse is the Nifty 50 list the agent scans by default.
func DefaultUniverse() Universe {
	syms := make([]Instrument, 0, len(sectors))
	for s, sec := range sectors {
		syms = append(syms, Instrument{Symbol: s, Sector: sec, LotSize: 1})
	}
	return NewUniverse(syms...)
}
