package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/portfolio"
)

// DefaultRecent is how many trades and events Redis keeps.
const DefaultRecent = 200

// Redis stores the latest state under {prefix}:state and capped lists of
// recent trades and events under {prefix}:trades and {prefix}:events,
// newest first. A dashboard in another process reads them back.
type Redis struct {
	rdb    redis.Cmdable
	closer func() error
	prefix string
	recent int64
	ttl    time.Duration
}

// NewRedis connects to addr. The connection is checked with PING.
func NewRedis(ctx context.Context, addr, password string, db int, prefix string) (*Redis, error) {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	r := NewRedisWith(c, prefix)
	r.closer = c.Close
	return r, nil
}

// NewRedisWith uses an existing client.
func NewRedisWith(c redis.Cmdable, prefix string) *Redis {
	if prefix == "" {
		prefix = "intraday"
	}
	return &Redis{rdb: c, prefix: prefix, recent: DefaultRecent}
}

// WithTTL expires the state key if the engine stops publishing.
func (r *Redis) WithTTL(d time.Duration) *Redis {
	r.ttl = d
	return r
}

func (r *Redis) key(name string) string { return r.prefix + ":" + name }

func (r *Redis) PublishState(ctx context.Context, st portfolio.State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return r.rdb.Set(ctx, r.key("state"), b, r.ttl).Err()
}

func (r *Redis) PublishTrade(ctx context.Context, t journal.TradeRecord) error {
	return r.push(ctx, "trades", t)
}

func (r *Redis) PublishEvent(ctx context.Context, e journal.Event) error {
	return r.push(ctx, "events", e)
}

func (r *Redis) push(ctx context.Context, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, r.key(name), b)
	pipe.LTrim(ctx, r.key(name), 0, r.recent-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) State(ctx context.Context) (portfolio.State, error) {
	b, err := r.rdb.Get(ctx, r.key("state")).Bytes()
	if errors.Is(err, redis.Nil) {
		return portfolio.State{}, ErrNoState
	}
	if err != nil {
		return portfolio.State{}, err
	}
	var st portfolio.State
	if err := json.Unmarshal(b, &st); err != nil {
		return portfolio.State{}, fmt.Errorf("decode state: %w", err)
	}
	return st, nil
}

// RecentTrades returns up to n trades, newest first.
func (r *Redis) RecentTrades(ctx context.Context, n int64) ([]journal.TradeRecord, error) {
	return readList[journal.TradeRecord](ctx, r, "trades", n)
}

// RecentEvents returns up to n events, newest first.
func (r *Redis) RecentEvents(ctx context.Context, n int64) ([]journal.Event, error) {
	return readList[journal.Event](ctx, r, "events", n)
}

func readList[T any](ctx context.Context, r *Redis, name string, n int64) ([]T, error) {
	if n <= 0 {
		n = r.recent
	}
	raw, err := r.rdb.LRange(ctx, r.key(name), 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, s := range raw {
		var v T
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Redis) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
