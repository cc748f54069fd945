package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flash-arb-gateway/market"
)

// mockWSServer 模拟交易所 websocket 服务端。
func mockWSServer(t *testing.T, handler func(*websocket.Conn, *http.Request)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn, r)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func testOptions(endpoint string) Options {
	return Options{Endpoint: endpoint, Limiter: noopLimiter{}}
}

// recvEvent 反复调用 RecvEvent 直到拿到事件或超时。
func recvEvent(t *testing.T, a Adapter) market.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		ev, err := a.RecvEvent(ctx)
		cancel()
		require.NoError(t, err)
		if ev != nil {
			return ev
		}
	}
	t.Fatal("no event received")
	return nil
}

func TestBinanceSubscribeURL(t *testing.T) {
	paths := make(chan string, 4)
	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		paths <- r.URL.Path
		drain(conn)
	})
	defer server.Close()

	a := NewBinanceAdapter(testOptions(wsURL(server) + "/ws"))
	defer a.Disconnect()

	ctx := context.Background()
	require.NoError(t, a.Connect(ctx))
	assert.Equal(t, "/ws", <-paths)

	iv := market.Interval1m
	subs := []market.Subscription{
		{Symbol: "BTCUSDT", Kind: market.KindAggTrade},
		{Symbol: "BTCUSDT", Kind: market.KindKline, Interval: &iv},
		{Symbol: "ETHUSDT", Kind: market.KindBookTicker},
	}
	require.NoError(t, a.Subscribe(ctx, subs))
	assert.Equal(t, "/ws/btcusdt@aggTrade/btcusdt@kline_1m/ethusdt@bookTicker", <-paths)
	assert.Equal(t, wsURL(server)+"/ws/btcusdt@aggTrade/btcusdt@kline_1m/ethusdt@bookTicker", a.Endpoint())
	assert.True(t, a.IsConnected())
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, a.Symbols())
}

func TestBinanceRecvMalformedKeepsConnection(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"aggTrade",`))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02})
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"aggTrade","E":2,"s":"BTCUSDT","a":11,"p":"100.5","q":"2","T":1,"m":true}`))
		drain(conn)
	})
	defer server.Close()

	a := NewBinanceAdapter(testOptions(wsURL(server)))
	defer a.Disconnect()
	require.NoError(t, a.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := a.RecvEvent(ctx)
	assert.NoError(t, err)
	assert.Nil(t, ev)
	assert.True(t, a.IsConnected())

	ev = recvEvent(t, a)
	trade, ok := ev.(*market.AggTrade)
	require.True(t, ok)
	assert.Equal(t, uint64(11), trade.TradeID)
	assert.True(t, a.IsConnected())
}

func TestRecvWhenDisconnected(t *testing.T) {
	a := NewBinanceAdapter(testOptions("ws://127.0.0.1:1"))
	ev, err := a.RecvEvent(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, ev)
	assert.NoError(t, a.Disconnect())
}

func TestConnectFailureIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	a := NewOKXAdapter(testOptions(wsURL(server)))
	err := a.Connect(context.Background())

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, market.OKX, te.Exchange)
	assert.Equal(t, "connect", te.Op)
	assert.False(t, a.IsConnected())
}

func TestPingAnswered(t *testing.T) {
	pongs := make(chan string, 1)
	server := mockWSServer(t, func(conn *websocket.Conn, _ *http.Request) {
		conn.SetPongHandler(func(data string) error {
			pongs <- data
			return nil
		})
		_ = conn.WriteControl(websocket.PingMessage, []byte("hb-1"), time.Now().Add(time.Second))
		drain(conn)
	})
	defer server.Close()

	a := NewBinanceAdapter(testOptions(wsURL(server)))
	defer a.Disconnect()
	require.NoError(t, a.Connect(context.Background()))

	select {
	case data := <-pongs:
		assert.Equal(t, "hb-1", data)
	case <-time.After(2 * time.Second):
		t.Fatal("pong not received")
	}
	assert.True(t, a.IsConnected())
}

func TestGracefulCloseClearsState(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn, _ *http.Request) {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		drain(conn)
	})
	defer server.Close()

	a := NewBinanceAdapter(testOptions(wsURL(server)))
	require.NoError(t, a.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := a.RecvEvent(ctx)
	assert.NoError(t, err)
	assert.Nil(t, ev)
	assert.False(t, a.IsConnected())
}

func TestAbruptCloseIsTransportError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_ = conn.UnderlyingConn().Close()
	})
	defer server.Close()

	a := NewOKXAdapter(testOptions(wsURL(server)))
	require.NoError(t, a.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := a.RecvEvent(ctx)
	assert.Nil(t, ev)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "read", te.Op)
	assert.False(t, a.IsConnected())
}

func TestReconnectSupersedesOldConnection(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn, _ *http.Request) {
		drain(conn)
	})
	defer server.Close()

	a := NewBinanceAdapter(testOptions(wsURL(server)))
	defer a.Disconnect()
	ctx := context.Background()
	require.NoError(t, a.Connect(ctx))
	old := a.current()
	require.NoError(t, a.Connect(ctx))

	// 旧连接上的读错误不能清除新连接的状态
	assert.Nil(t, a.readFault(old, errors.New("broken pipe")))
	assert.True(t, a.IsConnected())
}

func TestOKXSubscribeMessage(t *testing.T) {
	received := make(chan []byte, 1)
	server := mockWSServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- msg
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"subscribe","arg":{"channel":"public-trade:BTC-USDT"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"arg":{"channel":"public-trade:BTC-USDT","instId":"BTC-USDT"},"data":[{"tradeId":"5","px":"42000","sz":"0.1","side":"buy","ts":"1700000000000"}]}`))
		drain(conn)
	})
	defer server.Close()

	a := NewOKXAdapter(testOptions(wsURL(server)))
	defer a.Disconnect()

	// 未连接时 Subscribe 自动连接
	subs := []market.Subscription{
		{Symbol: "BTCUSDT", Kind: market.KindAggTrade},
		{Symbol: "BTCUSDT", Kind: market.KindBookTicker},
	}
	require.NoError(t, a.Subscribe(context.Background(), subs))
	assert.True(t, a.IsConnected())

	var req okxOpRequest
	select {
	case msg := <-received:
		require.NoError(t, json.Unmarshal(msg, &req))
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe message not received")
	}
	assert.Equal(t, "subscribe", req.Op)
	require.Len(t, req.Args, 2)
	assert.Equal(t, okxOpArg{Channel: "public-trade:BTC-USDT", Op: "subscribe"}, req.Args[0])
	assert.Equal(t, okxOpArg{Channel: "public-tickers:BTC-USDT", Op: "subscribe"}, req.Args[1])

	// ack 被丢弃，下一个事件是成交
	trade, ok := recvEvent(t, a).(*market.AggTrade)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", trade.Symbol)
	assert.Equal(t, uint64(5), trade.TradeID)
	assert.Equal(t, []string{"BTCUSDT"}, a.Symbols())
}

func TestOKXPendingEventsInOrder(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"arg":{"channel":"trades","instId":"ETH-USDT"},"data":[`+
			`{"tradeId":"1","px":"1","sz":"1","side":"buy","ts":"10"},{"tradeId":"2","px":"1","sz":"1","side":"buy","ts":"11"}]}`))
		drain(conn)
	})
	defer server.Close()

	a := NewOKXAdapter(testOptions(wsURL(server)))
	defer a.Disconnect()
	require.NoError(t, a.Connect(context.Background()))

	assert.Equal(t, uint64(1), recvEvent(t, a).(*market.AggTrade).TradeID)
	assert.Equal(t, uint64(2), recvEvent(t, a).(*market.AggTrade).TradeID)
}

func TestPendingEventsDroppedAfterDisconnect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"arg":{"channel":"trades","instId":"ETH-USDT"},"data":[`+
			`{"tradeId":"1","px":"1","sz":"1","side":"buy","ts":"10"},{"tradeId":"2","px":"1","sz":"1","side":"buy","ts":"11"}]}`))
		drain(conn)
	})
	defer server.Close()

	a := NewOKXAdapter(testOptions(wsURL(server)))
	defer a.Disconnect()
	require.NoError(t, a.Connect(context.Background()))

	assert.Equal(t, uint64(1), recvEvent(t, a).(*market.AggTrade).TradeID)
	require.NoError(t, a.Disconnect())

	ev, err := a.RecvEvent(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, ev)
	assert.False(t, a.IsConnected())

	// 重连后也不会再收到旧连接的第二笔成交
	require.NoError(t, a.Connect(context.Background()))
	assert.Equal(t, uint64(1), recvEvent(t, a).(*market.AggTrade).TradeID)
}

func TestUnsubscribeIsNoop(t *testing.T) {
	for _, a := range []Adapter{NewBinanceAdapter(Options{}), NewOKXAdapter(Options{})} {
		assert.NoError(t, a.Unsubscribe(context.Background(), []market.Subscription{{Symbol: "BTCUSDT", Kind: market.KindDepth}}))
	}
}
