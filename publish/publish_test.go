package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/portfolio"
)

var now = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func TestMemory(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	_, err := m.State(ctx)
	assert.ErrorIs(t, err, ErrNoState)

	require.NoError(t, m.PublishState(ctx, portfolio.State{Time: now, Equity: 100}))
	require.NoError(t, m.PublishState(ctx, portfolio.State{Time: now.Add(time.Minute), Equity: 101}))
	require.NoError(t, m.PublishTrade(ctx, journal.TradeRecord{ID: "a"}))
	require.NoError(t, m.PublishEvent(ctx, journal.Event{Kind: journal.EventHalt}))

	st, err := m.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 101.0, st.Equity)

	trades, events := m.Counts()
	assert.EqualValues(t, 1, trades)
	assert.EqualValues(t, 1, events)
}

type failing struct{ err error }

func (f failing) PublishState(context.Context, portfolio.State) error { return f.err }
func (f failing) PublishTrade(context.Context, journal.TradeRecord) error { return f.err }
func (f failing) PublishEvent(context.Context, journal.Event) error { return f.err }
func (f failing) Close() error { return f.err }

func TestMultiTriesEveryone(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	a, b := NewMemory(), NewMemory()
	m := Multi{a, failing{boom}, b}
	ctx := context.Background()

	err := m.PublishState(ctx, portfolio.State{Equity: 5})
	assert.ErrorIs(t, err, boom)
	for _, mem := range []*Memory{a, b} {
		st, err := mem.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5.0, st.Equity)
	}

	assert.ErrorIs(t, m.PublishTrade(ctx, journal.TradeRecord{}), boom)
	assert.ErrorIs(t, m.PublishEvent(ctx, journal.Event{}), boom)
	assert.ErrorIs(t, m.Close(), boom)

	assert.NoError(t, Multi{a, b}.PublishEvent(ctx, journal.Event{}))
	assert.NoError(t, Multi(nil).Close())
}

type captureWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

func TestKafkaEnvelopes(t *testing.T) {
	t.Parallel()

	w := &captureWriter{}
	k := &Kafka{writer: w, topic: "intraday"}
	ctx := context.Background()

	require.NoError(t, k.PublishState(ctx, portfolio.State{Time: now}))
	assert.Empty(t, w.msgs, "snapshots are off by default")

	require.NoError(t, k.PublishTrade(ctx, journal.TradeRecord{ID: "p1", Symbol: "TCS.NS", CloseTime: now, RealizedPnL: 42}))
	require.NoError(t, k.PublishEvent(ctx, journal.Event{Time: now, Kind: journal.EventHalt, Message: "daily loss limit reached"}))
	k.Snapshots = true
	require.NoError(t, k.PublishState(ctx, portfolio.State{Time: now, Equity: 7}))
	require.Len(t, w.msgs, 3)

	assert.Equal(t, "TCS.NS", string(w.msgs[0].Key))
	var env Envelope
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &env))
	assert.Equal(t, TypeTrade, env.Type)
	require.NotNil(t, env.Trade)
	assert.Equal(t, 42.0, env.Trade.RealizedPnL)
	assert.Nil(t, env.Event)

	assert.Equal(t, "HALT", string(w.msgs[1].Key))
	env = Envelope{}
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &env))
	assert.Equal(t, TypeEvent, env.Type)
	assert.Equal(t, journal.EventHalt, env.Event.Kind)

	env = Envelope{}
	require.NoError(t, json.Unmarshal(w.msgs[2].Value, &env))
	require.NotNil(t, env.State)
	assert.Equal(t, 7.0, env.State.Equity)

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestRedisUnreachable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedis(ctx, "127.0.0.1:1", "", 0, "test")
	assert.Error(t, err)
}

func TestRedisKeys(t *testing.T) {
	t.Parallel()

	r := NewRedisWith(nil, "")
	assert.Equal(t, "intraday:state", r.key("state"))
	assert.Equal(t, "desk:trades", NewRedisWith(nil, "desk").key("trades"))
	assert.NoError(t, r.Close())
}

var (
	_ Publisher   = (*Memory)(nil)
	_ Publisher   = (*Redis)(nil)
	_ Publisher   = (*Kafka)(nil)
	_ Publisher   = Multi(nil)
	_ StateSource = (*Memory)(nil)
	_ StateSource = (*Redis)(nil)
)
