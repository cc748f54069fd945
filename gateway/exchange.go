package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"flash-arb-gateway/infrastructure/monitor"
	"flash-arb-gateway/market"
)

// Adapter 交易所行情适配器的统一能力接口。
//
// 一个适配器同时被一个读 goroutine（RecvEvent）和一个控制 goroutine
// （Connect/Subscribe/Disconnect）使用。
type Adapter interface {
	Exchange() market.ExchangeID
	Connect(ctx context.Context) error
	Disconnect() error
	Subscribe(ctx context.Context, subs []market.Subscription) error
	Unsubscribe(ctx context.Context, subs []market.Subscription) error
	// RecvEvent 返回下一个事件。未连接、ctx 到期、正常关闭、二进制帧、
	// 解析失败时返回 (nil, nil)；仅 socket 故障返回 *TransportError。
	RecvEvent(ctx context.Context) (market.Event, error)
	IsConnected() bool
	Endpoint() string
	Symbols() []string
}

// Options 适配器构造参数，零值可用。
type Options struct {
	Testnet bool
	// Endpoint 覆盖默认的 base URL（测试用）
	Endpoint     string
	Dialer       *websocket.Dialer
	Limiter      RateLimiter
	Logger       *zap.Logger
	Monitor      *monitor.Monitor
	WriteTimeout time.Duration
	FrameBuffer  int
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultFrameBuffer      = 1024
)

func (o Options) withDefaults() Options {
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		}
	}
	if o.Limiter == nil {
		o.Limiter = NewTokenBucketLimiter(2, 5)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.FrameBuffer <= 0 {
		o.FrameBuffer = defaultFrameBuffer
	}
	return o
}

// NewAdapter 按交易所 ID 创建适配器。
func NewAdapter(id market.ExchangeID, opts Options) (Adapter, error) {
	switch id {
	case market.Binance:
		return NewBinanceAdapter(opts), nil
	case market.OKX:
		return NewOKXAdapter(opts), nil
	}
	return nil, fmt.Errorf("unknown exchange: %s", id)
}

// Registry 按配置顺序保存适配器。
type Registry struct {
	order    []market.ExchangeID
	adapters map[market.ExchangeID]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[market.ExchangeID]Adapter)}
}

// BuildRegistry 为每个交易所创建适配器，重复的交易所报错。
func BuildRegistry(ids []market.ExchangeID, opts Options) (*Registry, error) {
	r := NewRegistry()
	for _, id := range ids {
		a, err := NewAdapter(id, opts)
		if err != nil {
			return nil, err
		}
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(a Adapter) error {
	id := a.Exchange()
	if _, ok := r.adapters[id]; ok {
		return fmt.Errorf("exchange %s already registered", id)
	}
	r.order = append(r.order, id)
	r.adapters[id] = a
	return nil
}

func (r *Registry) Get(id market.ExchangeID) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// All 按注册顺序返回全部适配器。
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id])
	}
	return out
}

func (r *Registry) Len() int { return len(r.order) }
