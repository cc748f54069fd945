package gateway

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"flash-arb-gateway/market"
)

const (
	OKXPublicWSEndpoint = "wss://ws.okx.com:8443/ws/v5/public"
	OKXDemoWSEndpoint   = "wss://wspap.okx.com:8443/ws/v5/public"
)

var errNotConnected = errors.New("not connected")

type okxOpArg struct {
	Channel string `json:"channel"`
	Op      string `json:"op"`
}

type okxOpRequest struct {
	Op   string     `json:"op"`
	Args []okxOpArg `json:"args"`
}

// OKXAdapter OKX v5 公共频道，订阅通过在现有连接上发送 op 消息完成。
type OKXAdapter struct {
	*baseAdapter
}

func NewOKXAdapter(opts Options) *OKXAdapter {
	base := OKXPublicWSEndpoint
	if opts.Testnet {
		base = OKXDemoWSEndpoint
	}
	return &OKXAdapter{baseAdapter: newBaseAdapter(market.OKX, base, opts, parseOKXFrame)}
}

func (o *OKXAdapter) Connect(ctx context.Context) error {
	return o.dial(ctx, o.baseURL)
}

// Subscribe 未连接时先连接，再发送一条包含全部频道的订阅消息。
func (o *OKXAdapter) Subscribe(ctx context.Context, subs []market.Subscription) error {
	if !o.IsConnected() {
		if err := o.Connect(ctx); err != nil {
			return err
		}
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return &TransportError{Exchange: o.id, Op: "subscribe", Err: err}
	}
	c := o.current()
	if c == nil {
		return &TransportError{Exchange: o.id, Op: "subscribe", Err: errNotConnected}
	}
	req := subscribeRequest(subs)
	if err := c.writeJSON(req); err != nil {
		o.markDown(c)
		return &TransportError{Exchange: o.id, Op: "subscribe", Err: err}
	}
	o.logger.Info("subscribe sent", zap.Int("channels", len(req.Args)))
	o.trackSymbols(subs)
	return nil
}

func (o *OKXAdapter) Unsubscribe(_ context.Context, subs []market.Subscription) error {
	o.logger.Warn("unsubscribe not implemented", zap.Int("channels", len(subs)))
	return nil
}

// subscribeRequest 构造 {"op":"subscribe","args":[{"channel":...,"op":"subscribe"},...]}。
func subscribeRequest(subs []market.Subscription) okxOpRequest {
	args := make([]okxOpArg, 0, len(subs))
	for _, s := range subs {
		if ch := okxChannelName(s); ch != "" {
			args = append(args, okxOpArg{Channel: ch, Op: "subscribe"})
		}
	}
	return okxOpRequest{Op: "subscribe", Args: args}
}
