package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"flash-arb-gateway/gateway"
	"flash-arb-gateway/infrastructure/alert"
	"flash-arb-gateway/infrastructure/sink"
	"flash-arb-gateway/market"
)

// fakeAdapter 内存中的交易所适配器，事件通过 events 注入。
type fakeAdapter struct {
	id market.ExchangeID

	mu           sync.Mutex
	connected    bool
	connectErr   error
	subscribeErr error
	connects     int
	subscribes   int
	disconnects  int
	lastSubs     []market.Subscription
	failNextRecv bool

	events chan market.Event
}

func newFakeAdapter(id market.ExchangeID) *fakeAdapter {
	return &fakeAdapter{id: id, events: make(chan market.Event, 256)}
}

func (f *fakeAdapter) Exchange() market.ExchangeID { return f.id }

func (f *fakeAdapter) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeAdapter) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
	return nil
}

func (f *fakeAdapter) Subscribe(_ context.Context, subs []market.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.lastSubs = append([]market.Subscription(nil), subs...)
	return nil
}

func (f *fakeAdapter) Unsubscribe(context.Context, []market.Subscription) error { return nil }

func (f *fakeAdapter) RecvEvent(ctx context.Context) (market.Event, error) {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return nil, nil
	}
	if f.failNextRecv {
		f.failNextRecv = false
		f.connected = false
		f.mu.Unlock()
		return nil, &gateway.TransportError{Exchange: f.id, Op: "read", Err: errors.New("connection reset")}
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, nil
	case ev := <-f.events:
		return ev, nil
	case <-time.After(20 * time.Millisecond):
		return nil, nil
	}
}

func (f *fakeAdapter) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeAdapter) Endpoint() string { return "fake://" + f.id.String() }
func (f *fakeAdapter) Symbols() []string { return nil }

func (f *fakeAdapter) snapshot() (connects, subscribes int, subs []market.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.subscribes, f.lastSubs
}

func (f *fakeAdapter) forceDisconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func testSubs() []market.Subscription {
	return market.BuildSubscriptions([]string{"BTCUSDT", "ETHUSDT"}, []market.KlineInterval{market.Interval1m})
}

func newTestEngine(t *testing.T, cfg Config, s sink.Sink, alerts *alert.Manager, adapters ...gateway.Adapter) *Engine {
	t.Helper()
	reg := gateway.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, reg.Register(a))
	}
	if cfg.Subscriptions == nil {
		cfg.Subscriptions = testSubs()
	}
	if cfg.IdleInterval == 0 {
		cfg.IdleInterval = 5 * time.Millisecond
	}
	e, err := New(cfg, reg, s, zaptest.NewLogger(t), nil, alerts)
	require.NoError(t, err)
	return e
}

// runEngine 启动并在后台运行，返回停止函数。
func runEngine(t *testing.T, e *Engine) func() {
	t.Helper()
	require.NoError(t, e.Start(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("engine did not stop")
		}
		require.NoError(t, e.Stop())
	}
}

func waitMessages(t *testing.T, s *sink.MemorySink, n int) []sink.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if msgs := s.Messages(); len(msgs) >= n {
			return msgs
		}
		select {
		case <-s.Published():
		case <-deadline:
			t.Fatalf("expected %d messages, got %d", n, len(s.Messages()))
		}
	}
}

func TestNewValidates(t *testing.T) {
	s := sink.NewMemorySink(0)
	reg := gateway.NewRegistry()

	_, err := New(Config{Subscriptions: testSubs()}, reg, s, nil, nil, nil)
	assert.Error(t, err)

	require.NoError(t, reg.Register(newFakeAdapter(market.Binance)))
	_, err = New(Config{Subscriptions: testSubs()}, reg, nil, nil, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{}, reg, s, nil, nil, nil)
	assert.Error(t, err)

	e, err := New(Config{Subscriptions: testSubs()}, reg, s, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, e.config.HealthInterval)
	assert.Equal(t, 5*time.Second, e.config.ReconnectInterval)
	assert.Equal(t, 4096, cap(e.queue))
	assert.Equal(t, "flash_arb", e.config.ChannelPrefix)
}

func TestStartConnectsAndSubscribes(t *testing.T) {
	binance := newFakeAdapter(market.Binance)
	okx := newFakeAdapter(market.OKX)
	e := newTestEngine(t, Config{}, sink.NewMemorySink(0), nil, binance, okx)

	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, StateStarted, e.State())
	for _, f := range []*fakeAdapter{binance, okx} {
		connects, subscribes, subs := f.snapshot()
		assert.Equal(t, 1, connects)
		assert.Equal(t, 1, subscribes)
		assert.Equal(t, testSubs(), subs)
		assert.True(t, f.IsConnected())
	}
	assert.Error(t, e.Start(context.Background()))
}

func TestStartConnectFailureIsFatal(t *testing.T) {
	okx := newFakeAdapter(market.OKX)
	okx.connectErr = errors.New("dial tcp: i/o timeout")
	e := newTestEngine(t, Config{}, sink.NewMemorySink(0), nil, okx)

	err := e.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect okx: dial tcp: i/o timeout")
}

func TestStartSubscribeFailureKeepsConnection(t *testing.T) {
	binance := newFakeAdapter(market.Binance)
	binance.subscribeErr = errors.New("bad stream")
	e := newTestEngine(t, Config{}, sink.NewMemorySink(0), nil, binance)

	require.NoError(t, e.Start(context.Background()))
	assert.True(t, binance.IsConnected())
}

func TestRunRoutesEachKind(t *testing.T) {
	binance := newFakeAdapter(market.Binance)
	mem := sink.NewMemorySink(0)
	e := newTestEngine(t, Config{}, mem, nil, binance)
	stop := runEngine(t, e)
	defer stop()

	binance.events <- &market.AggTrade{Exchange: market.Binance, Symbol: "BTCUSDT", Price: 42000.5, TradeID: 1}
	binance.events <- &market.Kline{Exchange: market.Binance, Symbol: "BTCUSDT", Interval: "1m", Close: 42050}
	binance.events <- &market.DepthUpdate{Exchange: market.Binance, Symbol: "BTCUSDT", Bids: []market.PriceLevel{{1, 2}}}
	binance.events <- &market.BookTicker{Exchange: market.Binance, Symbol: "BTCUSDT", BidPrice: 1, AskPrice: 2}

	msgs := waitMessages(t, mem, 4)
	want := []string{"flash_arb:tick", "flash_arb:kline", "flash_arb:depth", "flash_arb:ticker"}
	for i, m := range msgs {
		assert.Equal(t, want[i], m.Channel)
		kind, ok := sink.KindForChannel(sink.DefaultPrefix, m.Channel)
		require.True(t, ok)
		ev, err := market.Decode(kind, m.Payload)
		require.NoError(t, err)
		assert.Equal(t, "BTCUSDT", ev.GetSymbol())
	}
	assert.Equal(t, int64(4), e.Statistics().EventsPublished)
}

func TestRunPreservesOrderPerExchange(t *testing.T) {
	okx := newFakeAdapter(market.OKX)
	mem := sink.NewMemorySink(0)
	e := newTestEngine(t, Config{ChannelPrefix: "test"}, mem, nil, okx)
	stop := runEngine(t, e)
	defer stop()

	for i := 1; i <= 50; i++ {
		okx.events <- &market.AggTrade{Exchange: market.OKX, Symbol: "ETHUSDT", TradeID: uint64(i)}
	}
	msgs := waitMessages(t, mem, 50)
	for i, m := range msgs {
		assert.Equal(t, "test:tick", m.Channel)
		ev, err := market.Decode(market.KindAggTrade, m.Payload)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), ev.(*market.AggTrade).TradeID)
	}
}

func TestSilentExchangeDoesNotBlockOthers(t *testing.T) {
	quiet := newFakeAdapter(market.Binance)
	busy := newFakeAdapter(market.OKX)
	mem := sink.NewMemorySink(0)
	e := newTestEngine(t, Config{}, mem, nil, quiet, busy)
	stop := runEngine(t, e)
	defer stop()

	busy.events <- &market.BookTicker{Exchange: market.OKX, Symbol: "BTCUSDT"}
	msgs := waitMessages(t, mem, 1)
	assert.Equal(t, "flash_arb:ticker", msgs[0].Channel)
}

func TestPublishErrorDropsEvent(t *testing.T) {
	binance := newFakeAdapter(market.Binance)
	mem := sink.NewMemorySink(0)
	e := newTestEngine(t, Config{}, mem, nil, binance)
	stop := runEngine(t, e)
	defer stop()

	mem.FailWith(errors.New("redis: connection refused"))
	binance.events <- &market.AggTrade{Exchange: market.Binance, Symbol: "BTCUSDT", TradeID: 1}
	require.Eventually(t, func() bool { return e.Statistics().PublishErrors == 1 }, 2*time.Second, 5*time.Millisecond)

	mem.FailWith(nil)
	binance.events <- &market.AggTrade{Exchange: market.Binance, Symbol: "BTCUSDT", TradeID: 2}
	msgs := waitMessages(t, mem, 1)
	ev, err := market.Decode(market.KindAggTrade, msgs[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ev.(*market.AggTrade).TradeID)
}

func TestReconnectAfterForcedDisconnect(t *testing.T) {
	binance := newFakeAdapter(market.Binance)
	e := newTestEngine(t, Config{ReconnectInterval: 20 * time.Millisecond, HealthInterval: time.Hour}, sink.NewMemorySink(0), nil, binance)
	stop := runEngine(t, e)
	defer stop()

	binance.forceDisconnect()
	require.Eventually(t, binance.IsConnected, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, subscribes, _ := binance.snapshot()
		return subscribes == 2
	}, 2*time.Second, 5*time.Millisecond)

	connects, _, subs := binance.snapshot()
	assert.Equal(t, 2, connects)
	assert.Equal(t, testSubs(), subs)
	assert.Equal(t, int64(1), e.Statistics().Reconnects)
}

func TestTransportErrorRecovers(t *testing.T) {
	okx := newFakeAdapter(market.OKX)
	mem := sink.NewMemorySink(0)
	e := newTestEngine(t, Config{ReconnectInterval: 20 * time.Millisecond, HealthInterval: time.Hour}, mem, nil, okx)
	stop := runEngine(t, e)
	defer stop()

	okx.mu.Lock()
	okx.failNextRecv = true
	okx.mu.Unlock()

	require.Eventually(t, func() bool { return e.Statistics().TransportErrors == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, okx.IsConnected, 2*time.Second, 5*time.Millisecond)

	okx.events <- &market.AggTrade{Exchange: market.OKX, Symbol: "BTCUSDT", TradeID: 9}
	waitMessages(t, mem, 1)
}

func TestReconnectFailureRetriesWithoutCap(t *testing.T) {
	binance := newFakeAdapter(market.Binance)
	e := newTestEngine(t, Config{ReconnectInterval: 10 * time.Millisecond, HealthInterval: time.Hour}, sink.NewMemorySink(0), nil, binance)
	stop := runEngine(t, e)
	defer stop()

	binance.mu.Lock()
	binance.connectErr = errors.New("refused")
	binance.connected = false
	binance.mu.Unlock()

	require.Eventually(t, func() bool {
		connects, _, _ := binance.snapshot()
		return connects >= 5
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, binance.IsConnected())
}

func TestHealthTickAlertsOncePerExchange(t *testing.T) {
	binance := newFakeAdapter(market.Binance)
	mock := alert.NewMockChannel("mock")
	alerts := alert.NewManager([]alert.Channel{mock}, time.Hour)
	e := newTestEngine(t, Config{HealthInterval: 10 * time.Millisecond, ReconnectInterval: time.Hour}, sink.NewMemorySink(0), alerts, binance)
	stop := runEngine(t, e)
	defer stop()

	binance.forceDisconnect()
	require.Eventually(t, func() bool { return mock.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, mock.Count())
	assert.Equal(t, "binance", mock.Alerts()[0].Fields["exchange"])
}

func TestStopDisconnectsAll(t *testing.T) {
	binance := newFakeAdapter(market.Binance)
	okx := newFakeAdapter(market.OKX)
	e := newTestEngine(t, Config{}, sink.NewMemorySink(0), nil, binance, okx)
	stop := runEngine(t, e)
	stop()

	assert.Equal(t, StateStopped, e.State())
	assert.False(t, binance.IsConnected())
	assert.False(t, okx.IsConnected())
	assert.NoError(t, e.Stop())
}

func TestPublishedSummaryLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reg := gateway.NewRegistry()
	require.NoError(t, reg.Register(newFakeAdapter(market.Binance)))
	e, err := New(Config{Subscriptions: testSubs()}, reg, sink.NewMemorySink(0), zap.New(core), nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	e.publish(ctx, &market.AggTrade{Exchange: market.Binance, Symbol: "BTCUSDT", Price: 42000.5})
	e.publish(ctx, &market.Kline{Exchange: market.Binance, Symbol: "BTCUSDT", Close: 1.5})
	e.publish(ctx, &market.BookTicker{Exchange: market.OKX, Symbol: "BTCUSDT", BidPrice: 1, AskPrice: 2})
	e.publish(ctx, &market.DepthUpdate{Exchange: market.OKX, Symbol: "BTCUSDT"})

	entries := logs.FilterMessage("event published").All()
	require.Len(t, entries, 4)
	want := []string{"price=42000.5", "close=1.5", "bid=1 ask=2", "update"}
	for i, en := range entries {
		assert.Equal(t, want[i], en.ContextMap()["summary"])
	}
}
