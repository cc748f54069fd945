package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"flash-arb-gateway/infrastructure/monitor"
	"flash-arb-gateway/market"
)

type frameParser func(data []byte) ([]market.Event, error)

// baseAdapter 两个交易所共用的连接状态与读路径。
type baseAdapter struct {
	id        market.ExchangeID
	baseURL   string
	dialer    *websocket.Dialer
	limiter   RateLimiter
	logger    *zap.Logger
	monitor   *monitor.Monitor
	writeWait time.Duration
	buffer    int
	parse     frameParser

	mu        sync.Mutex
	conn      *wsConn
	connected bool
	endpoint  string
	symbols   []string
	seen      map[string]struct{}

	// 一帧解析出多个事件时暂存，只由读 goroutine 访问；
	// pendingConn 是产生这些事件的连接，连接变化后丢弃
	pending     []market.Event
	pendingConn *wsConn
}

func newBaseAdapter(id market.ExchangeID, baseURL string, opts Options, parse frameParser) *baseAdapter {
	opts = opts.withDefaults()
	if opts.Endpoint != "" {
		baseURL = opts.Endpoint
	}
	return &baseAdapter{
		id:        id,
		baseURL:   baseURL,
		dialer:    opts.Dialer,
		limiter:   opts.Limiter,
		logger:    opts.Logger.Named("gateway." + id.String()),
		monitor:   opts.Monitor,
		writeWait: opts.WriteTimeout,
		buffer:    opts.FrameBuffer,
		parse:     parse,
		endpoint:  baseURL,
		seen:      make(map[string]struct{}),
	}
}

func (a *baseAdapter) Exchange() market.ExchangeID { return a.id }

func (a *baseAdapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

func (a *baseAdapter) Endpoint() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.endpoint
}

func (a *baseAdapter) Symbols() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.symbols))
	copy(out, a.symbols)
	return out
}

func (a *baseAdapter) trackSymbols(subs []market.Subscription) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range subs {
		if _, ok := a.seen[s.Symbol]; ok {
			continue
		}
		a.seen[s.Symbol] = struct{}{}
		a.symbols = append(a.symbols, s.Symbol)
	}
}

// dial 关闭旧连接后拨号到 url，成功后替换为当前连接。
func (a *baseAdapter) dial(ctx context.Context, url string) error {
	_ = a.Disconnect()
	if err := a.limiter.Wait(ctx); err != nil {
		return &TransportError{Exchange: a.id, Op: "dial", Err: err}
	}
	c, err := dialWS(ctx, a.dialer, url, a.buffer, a.writeWait, func() {
		a.logger.Debug("ping received, pong sent")
	})
	if err != nil {
		return &TransportError{Exchange: a.id, Op: "connect", Err: err}
	}

	a.mu.Lock()
	old := a.conn
	a.conn = c
	a.connected = true
	a.endpoint = url
	a.mu.Unlock()
	if old != nil {
		old.close()
	}
	a.monitor.SetConnected(a.id.String(), true)
	a.logger.Info("connected", zap.String("url", url))
	return nil
}

// Disconnect 发送 close 帧并清除连接状态；未连接时为空操作。
func (a *baseAdapter) Disconnect() error {
	a.mu.Lock()
	c := a.conn
	was := a.connected
	a.conn = nil
	a.connected = false
	a.mu.Unlock()
	if c != nil {
		c.close()
	}
	if was {
		a.monitor.SetConnected(a.id.String(), false)
		a.logger.Info("disconnected")
	}
	return nil
}

func (a *baseAdapter) current() *wsConn {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil
	}
	return a.conn
}

// markDown 仅当 c 仍是当前连接时清除状态；被替换的旧连接返回 false。
func (a *baseAdapter) markDown(c *wsConn) bool {
	a.mu.Lock()
	if a.conn != c {
		a.mu.Unlock()
		return false
	}
	a.conn = nil
	a.connected = false
	a.mu.Unlock()
	c.close()
	a.monitor.SetConnected(a.id.String(), false)
	return true
}

func (a *baseAdapter) RecvEvent(ctx context.Context) (market.Event, error) {
	c := a.current()
	if c != a.pendingConn {
		a.pending = nil
		a.pendingConn = nil
	}
	if c == nil {
		return nil, nil
	}
	if len(a.pending) > 0 {
		ev := a.pending[0]
		a.pending = a.pending[1:]
		return ev, nil
	}
	select {
	case <-ctx.Done():
		return nil, nil
	case f, ok := <-c.frames:
		if !ok {
			a.markDown(c)
			return nil, nil
		}
		if f.err != nil {
			return nil, a.readFault(c, f.err)
		}
		if f.messageType != websocket.TextMessage {
			return nil, nil
		}
		events, err := a.parse(f.data)
		if err != nil {
			a.parseFailed(err, f.data)
			return nil, nil
		}
		if len(events) == 0 {
			return nil, nil
		}
		if len(events) > 1 {
			a.pending = append(a.pending, events[1:]...)
			a.pendingConn = c
		}
		return events[0], nil
	}
}

func (a *baseAdapter) readFault(c *wsConn, err error) error {
	if !a.markDown(c) {
		return nil
	}
	if isGracefulClose(err) {
		a.logger.Info("connection closed by peer", zap.Error(err))
		return nil
	}
	a.logger.Warn("websocket read failed", zap.Error(err))
	return &TransportError{Exchange: a.id, Op: "read", Err: err}
}

func (a *baseAdapter) parseFailed(err error, data []byte) {
	switch {
	case errors.Is(err, errSubscribeAck):
		a.logger.Debug("subscription confirmed", zap.ByteString("frame", data))
		return
	case errors.Is(err, errExchangeNotice):
		a.logger.Warn("exchange returned error", zap.Error(err))
	default:
		a.logger.Debug("frame dropped", zap.Error(err), zap.ByteString("frame", truncate(data, 512)))
	}
	a.monitor.RecordParseFailure(a.id.String(), parseReason(err))
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
