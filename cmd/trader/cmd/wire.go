package cmd

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/intraday/config"
	"github.com/rustyeddy/intraday/engine"
	"github.com/rustyeddy/intraday/feed"
	"github.com/rustyeddy/intraday/indicators"
	"github.com/rustyeddy/intraday/internal/errs"
	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/market"
	"github.com/rustyeddy/intraday/publish"
	"github.com/rustyeddy/intraday/session"
)

// engineOptions maps the strategy and risk settings. Callers fill in the
// source, executor and sinks.
func engineOptions(cfg *config.Config, hours session.Hours, uni market.Universe, log zerolog.Logger) engine.Options {
	return engine.Options{
		Capital:          cfg.Account.InitialCapital,
		Hours:            hours,
		Universe:         uni,
		Policy:           cfg.Policy(),
		Signal:           cfg.SignalConfig(),
		Rank:             cfg.RankConfig(),
		Position:         cfg.PositionConfig(),
		MaxOpenPositions: cfg.Strategy.MaxOpenPositions,
		CloseOnStop:      cfg.Engine.CloseOnStop,
		Log:              log,
	}
}

func builder(cfg *config.Config) *indicators.Builder {
	return indicators.NewBuilder(cfg.Data.BarInterval.D(), cfg.Data.HigherTF.D())
}

// openCSV loads candle files as a replayable source.
func openCSV(cfg *config.Config, paths []string, hours session.Hours, uni market.Universe) (*feed.CSVSource, error) {
	const op = "cmd.openCSV"
	if len(paths) == 0 {
		return nil, errs.Ef(errs.ConfigInvalid, op, "no candle files: set data.paths or pass --data")
	}
	src, err := feed.OpenCSV(builder(cfg), hours.Loc, paths...)
	if err != nil {
		return nil, errs.E(errs.DataUnavailable, op, err)
	}
	src.IndexSymbol = cfg.Data.IndexSymbol
	src.MaxAge = cfg.Data.MaxAge.D()
	src.Universe = uni
	return src, nil
}

// buildSource returns the configured source behind the retry policy. The
// CSV source is also returned, unwrapped, when that is what was built.
func buildSource(cfg *config.Config, hours session.Hours, uni market.Universe, log zerolog.Logger) (feed.Source, *feed.CSVSource, error) {
	if cfg.Data.Source == "http" {
		h := feed.NewHTTPSource(cfg.Data.BaseURL, cfg.Engine.DataTimeout.D(), log)
		return feed.NewRetrying(h, cfg.DataRetry(), log), nil, nil
	}
	src, err := openCSV(cfg, cfg.Data.Paths, hours, uni)
	if err != nil {
		return nil, nil, err
	}
	return feed.NewRetrying(src, cfg.DataRetry(), log), src, nil
}

// buildJournal opens the configured journal. The reader is nil unless the
// journal can be queried.
func buildJournal(cfg *config.Config) (journal.Journal, journal.Reader, error) {
	switch cfg.Journal.Type {
	case "none":
		return nil, nil, nil
	case "csv":
		j, err := journal.NewCSV(cfg.Journal.Dir)
		if err != nil {
			return nil, nil, err
		}
		return j, nil, nil
	default:
		j, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return j, j, nil
	}
}

// buildPublishers always includes an in-memory publisher, which the
// embedded dashboard reads, plus Redis and Kafka when configured.
func buildPublishers(ctx context.Context, cfg *config.Config, log zerolog.Logger) (publish.Multi, *publish.Memory, error) {
	mem := publish.NewMemory()
	pubs := publish.Multi{mem}

	p := cfg.Publish
	if p.RedisAddr != "" {
		r, err := publish.NewRedis(ctx, p.RedisAddr, p.RedisPassword, p.RedisDB, p.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		pubs = append(pubs, r)
		log.Info().Str("addr", p.RedisAddr).Msg("publishing to redis")
	}
	if len(p.KafkaBrokers) > 0 {
		pubs = append(pubs, publish.NewKafka(p.KafkaBrokers, p.KafkaTopic))
		log.Info().Strs("brokers", p.KafkaBrokers).Str("topic", p.KafkaTopic).Msg("publishing to kafka")
	}
	return pubs, mem, nil
}
