// Package config loads the trader configuration from YAML (or JSON), an
// optional .env file and TRADER_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/intraday/internal/errs"
	"github.com/rustyeddy/intraday/internal/logger"
	"github.com/rustyeddy/intraday/internal/retry"
	"github.com/rustyeddy/intraday/market"
	"github.com/rustyeddy/intraday/position"
	"github.com/rustyeddy/intraday/rank"
	"github.com/rustyeddy/intraday/risk"
	"github.com/rustyeddy/intraday/session"
	"github.com/rustyeddy/intraday/signal"
)

// Duration reads "30s" style strings from both YAML and JSON.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config is the complete trader configuration.
type Config struct {
	Account  AccountConfig       `json:"account" yaml:"account"`
	Risk     RiskConfig          `json:"risk" yaml:"risk"`
	Session  SessionConfig       `json:"session" yaml:"session"`
	Strategy StrategyConfig      `json:"strategy" yaml:"strategy"`
	Engine   EngineConfig        `json:"engine" yaml:"engine"`
	Data     DataConfig          `json:"data" yaml:"data"`
	Journal  JournalConfig       `json:"journal" yaml:"journal"`
	Publish  PublishConfig       `json:"publish" yaml:"publish"`
	HTTP     HTTPConfig          `json:"http" yaml:"http"`
	Log      LogConfig           `json:"log" yaml:"log"`
	Universe []market.Instrument `json:"universe,omitempty" yaml:"universe,omitempty"`
}

type AccountConfig struct {
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`
}

type RiskConfig struct {
	RiskPerTradeFraction float64 `json:"risk_per_trade_fraction" yaml:"risk_per_trade_fraction"`
	ATRMultipleStop      float64 `json:"atr_multiple_stop" yaml:"atr_multiple_stop"`
	ATRMultipleTarget    float64 `json:"atr_multiple_target" yaml:"atr_multiple_target"`
	MaxPositionNotional  float64 `json:"max_position_notional" yaml:"max_position_notional"`
	MaxPortfolioExposure float64 `json:"max_portfolio_exposure" yaml:"max_portfolio_exposure"`
	MaxDailyLoss         float64 `json:"max_daily_loss" yaml:"max_daily_loss"`
	MaxDailyTrades       int     `json:"max_daily_trades" yaml:"max_daily_trades"`
	SectorThreshold      float64 `json:"sector_threshold" yaml:"sector_threshold"`
	MinLot               float64 `json:"min_lot" yaml:"min_lot"`
}

type SessionConfig struct {
	Start        string   `json:"session_start" yaml:"session_start"`
	End          string   `json:"session_end" yaml:"session_end"`
	Timezone     string   `json:"timezone" yaml:"timezone"`
	PollInterval Duration `json:"poll_interval" yaml:"poll_interval"`
}

type StrategyConfig struct {
	TopNCandidates     int            `json:"top_n_candidates" yaml:"top_n_candidates"`
	MaxOpenPositions   int            `json:"max_open_positions" yaml:"max_open_positions"`
	MinScore           float64        `json:"min_score" yaml:"min_score"`
	MinBars            int            `json:"min_bars" yaml:"min_bars"`
	MinPrice           float64        `json:"min_price" yaml:"min_price"`
	MinVolume          float64        `json:"min_volume" yaml:"min_volume"`
	RequireVolumeSurge bool           `json:"require_volume_surge" yaml:"require_volume_surge"`
	SentimentVetoPct   float64        `json:"sentiment_veto_pct" yaml:"sentiment_veto_pct"`
	ExitOnReversal     bool           `json:"exit_on_reversal" yaml:"exit_on_reversal"`
	Weights            signal.Weights `json:"weights" yaml:"weights"`
}

type EngineConfig struct {
	CloseOnStop      bool     `json:"close_on_stop" yaml:"close_on_stop"`
	DataTimeout      Duration `json:"data_timeout" yaml:"data_timeout"`
	ExecutionTimeout Duration `json:"execution_timeout" yaml:"execution_timeout"`
	ConfirmTimeout   Duration `json:"confirm_timeout" yaml:"confirm_timeout"`
	RetryAttempts    int      `json:"retry_attempts" yaml:"retry_attempts"`
	SlippageBps      float64  `json:"slippage_bps" yaml:"slippage_bps"`
}

type DataConfig struct {
	Source      string   `json:"source" yaml:"source"` // "csv" or "http"
	Paths       []string `json:"paths,omitempty" yaml:"paths,omitempty"`
	BaseURL     string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	IndexSymbol string   `json:"index_symbol,omitempty" yaml:"index_symbol,omitempty"`
	BarInterval Duration `json:"bar_interval" yaml:"bar_interval"`
	HigherTF    Duration `json:"higher_timeframe" yaml:"higher_timeframe"`
	MaxAge      Duration `json:"max_age" yaml:"max_age"`
}

type JournalConfig struct {
	Type   string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type PublishConfig struct {
	RedisAddr     string   `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisPassword string   `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB       int      `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
	RedisPrefix   string   `json:"redis_prefix,omitempty" yaml:"redis_prefix,omitempty"`
	KafkaBrokers  []string `json:"kafka_brokers,omitempty" yaml:"kafka_brokers,omitempty"`
	KafkaTopic    string   `json:"kafka_topic,omitempty" yaml:"kafka_topic,omitempty"`
}

type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// Default returns the NSE intraday defaults.
func Default() *Config {
	p := risk.DefaultPolicy()
	return &Config{
		Account: AccountConfig{InitialCapital: 1_000_000},
		Risk: RiskConfig{
			RiskPerTradeFraction: p.RiskPerTrade,
			ATRMultipleStop:      p.StopATR,
			ATRMultipleTarget:    p.TargetATR,
			MaxPositionNotional:  p.MaxPositionNotional,
			MaxPortfolioExposure: p.MaxPortfolioExposure,
			MaxDailyLoss:         p.MaxDailyLoss,
			MaxDailyTrades:       p.MaxDailyTrades,
			SectorThreshold:      p.SectorThreshold,
			MinLot:               p.MinLot,
		},
		Session: SessionConfig{
			Start:        "09:15",
			End:          "15:30",
			Timezone:     "Asia/Kolkata",
			PollInterval: Duration(30 * time.Second),
		},
		Strategy: StrategyConfig{
			TopNCandidates:   5,
			MaxOpenPositions: 5,
			MinScore:         30,
			MinBars:          50,
			MinPrice:         100,
			MinVolume:        0,
			SentimentVetoPct: 1,
			Weights:          signal.DefaultWeights(),
		},
		Engine: EngineConfig{
			DataTimeout:      Duration(5 * time.Second),
			ExecutionTimeout: Duration(5 * time.Second),
			ConfirmTimeout:   Duration(10 * time.Second),
			RetryAttempts:    3,
		},
		Data: DataConfig{
			Source:      "csv",
			BarInterval: Duration(5 * time.Minute),
			HigherTF:    Duration(time.Hour),
		},
		Journal: JournalConfig{Type: "sqlite", DBPath: "./intraday.db"},
		Publish: PublishConfig{RedisPrefix: "intraday", KafkaTopic: "intraday-events"},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Log:     LogConfig{Level: "info"},
	}
}

// LoadFromFile reads path over the defaults. YAML is tried first, then JSON.
func LoadFromFile(path string) (*Config, error) {
	const op = "config.Load"
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.E(errs.ConfigInvalid, op, fmt.Errorf("read config file: %w", err))
	}

	cfg := Default()
	if yerr := yaml.Unmarshal(data, cfg); yerr != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, errs.E(errs.ConfigInvalid, op, fmt.Errorf("parse config (tried YAML and JSON): %w", yerr))
		}
	}
	return cfg, nil
}

// Load builds the effective configuration: defaults, then the file when
// path is set, then .env and TRADER_* variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	_ = godotenv.Load()
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays TRADER_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("TRADER_LOG_LEVEL", &c.Log.Level)
	str("TRADER_REDIS_ADDR", &c.Publish.RedisAddr)
	str("TRADER_REDIS_PASSWORD", &c.Publish.RedisPassword)
	str("TRADER_KAFKA_TOPIC", &c.Publish.KafkaTopic)
	str("TRADER_HTTP_ADDR", &c.HTTP.Addr)
	str("TRADER_DATA_URL", &c.Data.BaseURL)

	if v := strings.TrimSpace(getenv("TRADER_KAFKA_BROKERS")); v != "" {
		c.Publish.KafkaBrokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Publish.KafkaBrokers = append(c.Publish.KafkaBrokers, b)
			}
		}
	}
	if v := strings.TrimSpace(getenv("TRADER_JOURNAL_PATH")); v != "" {
		if c.Journal.Type == "csv" {
			c.Journal.Dir = v
		} else {
			c.Journal.DBPath = v
		}
	}
	if v := strings.TrimSpace(getenv("TRADER_CAPITAL")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errs.Ef(errs.ConfigInvalid, "config.ApplyEnv", "TRADER_CAPITAL: %v", err)
		}
		c.Account.InitialCapital = f
	}
	if v := strings.TrimSpace(getenv("TRADER_LOG_PRETTY")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errs.Ef(errs.ConfigInvalid, "config.ApplyEnv", "TRADER_LOG_PRETTY: %v", err)
		}
		c.Log.Pretty = b
	}
	return nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate reports the first bad option as a ConfigInvalid error.
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return errs.Ef(errs.ConfigInvalid, "config.Validate", format, args...)
	}

	if c.Account.InitialCapital <= 0 {
		return bad("account.initial_capital must be positive")
	}

	r := c.Risk
	switch {
	case r.RiskPerTradeFraction <= 0 || r.RiskPerTradeFraction > 1:
		return bad("risk.risk_per_trade_fraction must be in (0, 1]")
	case r.ATRMultipleStop <= 0:
		return bad("risk.atr_multiple_stop must be positive")
	case r.ATRMultipleTarget <= r.ATRMultipleStop:
		return bad("risk.atr_multiple_target must exceed atr_multiple_stop")
	case r.MaxPositionNotional <= 0:
		return bad("risk.max_position_notional must be positive")
	case r.MaxPortfolioExposure <= 0 || r.MaxPortfolioExposure > 1:
		return bad("risk.max_portfolio_exposure must be in (0, 1]")
	case r.MaxDailyLoss <= 0:
		return bad("risk.max_daily_loss must be positive")
	case r.MaxDailyTrades <= 0:
		return bad("risk.max_daily_trades must be positive")
	case r.SectorThreshold < 0 || r.SectorThreshold > 1:
		return bad("risk.sector_threshold must be in [0, 1]")
	case r.MinLot <= 0:
		return bad("risk.min_lot must be positive")
	}

	if _, err := c.Hours(); err != nil {
		return bad("session: %v", err)
	}
	if c.Session.PollInterval.D() < time.Second {
		return bad("session.poll_interval must be at least 1s")
	}

	s := c.Strategy
	switch {
	case s.TopNCandidates <= 0:
		return bad("strategy.top_n_candidates must be positive")
	case s.MaxOpenPositions <= 0:
		return bad("strategy.max_open_positions must be positive")
	case s.MinScore < 0 || s.MinScore > signal.MaxScore:
		return bad("strategy.min_score must be in [0, %d]", signal.MaxScore)
	case s.MinBars < 0:
		return bad("strategy.min_bars must not be negative")
	case s.Weights.Momentum < 0 || s.Weights.Trend < 0 || s.Weights.Volume < 0 || s.Weights.Sentiment < 0:
		return bad("strategy.weights must not be negative")
	}

	e := c.Engine
	if e.RetryAttempts < 1 {
		return bad("engine.retry_attempts must be at least 1")
	}
	if e.DataTimeout < 0 || e.ExecutionTimeout < 0 || e.ConfirmTimeout < 0 {
		return bad("engine timeouts must not be negative")
	}

	switch c.Data.Source {
	case "csv":
	case "http":
		if c.Data.BaseURL == "" {
			return bad("data.base_url required for http source")
		}
	default:
		return bad("data.source must be 'csv' or 'http'")
	}
	if c.Data.BarInterval.D() <= 0 {
		return bad("data.bar_interval must be positive")
	}

	switch c.Journal.Type {
	case "none":
	case "csv":
		if c.Journal.Dir == "" {
			return bad("journal.dir required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return bad("journal.db_path required for SQLite type")
		}
	default:
		return bad("journal.type must be 'csv', 'sqlite' or 'none'")
	}

	if len(c.Publish.KafkaBrokers) > 0 && c.Publish.KafkaTopic == "" {
		return bad("publish.kafka_topic required with kafka_brokers")
	}

	seen := map[string]bool{}
	for _, in := range c.Universe {
		if strings.TrimSpace(in.Symbol) == "" {
			return bad("universe: empty symbol")
		}
		if seen[in.Symbol] {
			return bad("universe: duplicate symbol %s", in.Symbol)
		}
		seen[in.Symbol] = true
	}
	return nil
}

// Hours parses the session window.
func (c *Config) Hours() (session.Hours, error) {
	return session.ParseHours(c.Session.Start, c.Session.End, c.Session.Timezone)
}

func (c *Config) Policy() risk.Policy {
	r := c.Risk
	return risk.Policy{
		RiskPerTrade:         r.RiskPerTradeFraction,
		StopATR:              r.ATRMultipleStop,
		TargetATR:            r.ATRMultipleTarget,
		MinLot:               r.MinLot,
		MaxPositionNotional:  r.MaxPositionNotional,
		MaxPortfolioExposure: r.MaxPortfolioExposure,
		SectorThreshold:      r.SectorThreshold,
		MaxDailyLoss:         r.MaxDailyLoss,
		MaxDailyTrades:       r.MaxDailyTrades,
	}
}

func (c *Config) SignalConfig() signal.Config {
	s := c.Strategy
	return signal.Config{
		Weights:            s.Weights,
		MinScore:           s.MinScore,
		MinBars:            s.MinBars,
		RequireVolumeSurge: s.RequireVolumeSurge,
		SentimentVetoPct:   s.SentimentVetoPct,
	}
}

func (c *Config) RankConfig() rank.Config {
	return rank.Config{
		TopN:      c.Strategy.TopNCandidates,
		MinPrice:  c.Strategy.MinPrice,
		MinVolume: c.Strategy.MinVolume,
	}
}

func (c *Config) PositionConfig() position.Config {
	return position.Config{
		ConfirmTimeout:   c.Engine.ConfirmTimeout.D(),
		ExitOnReversal:   c.Strategy.ExitOnReversal,
		ReversalMinScore: c.Strategy.MinScore,
	}
}

// DataRetry is the policy for snapshot fetches.
func (c *Config) DataRetry() retry.Policy {
	return c.retry(c.Engine.DataTimeout.D())
}

// ExecutionRetry is the policy for order submits.
func (c *Config) ExecutionRetry() retry.Policy {
	return c.retry(c.Engine.ExecutionTimeout.D())
}

func (c *Config) retry(timeout time.Duration) retry.Policy {
	p := retry.DefaultPolicy()
	p.Attempts = c.Engine.RetryAttempts
	p.Timeout = timeout
	return p
}

// Instruments is the configured universe, or the built-in NSE list.
func (c *Config) Instruments() market.Universe {
	if len(c.Universe) == 0 {
		return market.DefaultUniverse()
	}
	return market.NewUniverse(c.Universe...)
}

func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Log.Level, Pretty: c.Log.Pretty}
}
